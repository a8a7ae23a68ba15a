package engine

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sessiongate/pkg/config"
)

// DefaultTimeout bounds engine calls when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Remote forwards canonical requests to an external engine over HTTP.
// Endpoints are "http(s)://host:port" or "unix:///path/to.sock"; the
// unix form dials the socket and speaks plain HTTP across it.
type Remote struct {
	scheme string
	host   string
	httpc  *http.Client
}

// NewRemote builds a client for the engine at endpoint.
func NewRemote(endpoint string, timeout time.Duration) (*Remote, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("engine: empty endpoint: set engine.endpoint or SESSIONGATE_ENGINE_ENDPOINT")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("engine: invalid endpoint %q: %w", endpoint, err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return nil, fmt.Errorf("engine: endpoint %q has no host", endpoint)
		}
		tr := &http.Transport{
			MaxIdleConns:    64,
			IdleConnTimeout: 90 * time.Second,
		}
		return &Remote{
			scheme: u.Scheme,
			host:   u.Host,
			httpc:  &http.Client{Transport: tr, Timeout: timeout},
		}, nil
	case "unix":
		sock := u.Path
		if sock == "" {
			sock = u.Opaque
		}
		if sock == "" {
			return nil, fmt.Errorf("engine: unix endpoint %q has no socket path", endpoint)
		}
		tr := &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", sock)
			},
		}
		// Requests over the socket still need a URL host; "unix" is a
		// placeholder the transport never resolves.
		return &Remote{
			scheme: "http",
			host:   "unix",
			httpc:  &http.Client{Transport: tr, Timeout: timeout},
		}, nil
	default:
		return nil, fmt.Errorf("engine: unsupported endpoint scheme %q (use http, https or unix)", u.Scheme)
	}
}

// Handle relays req to the remote engine and returns its response with
// the body left streaming. The caller-facing origin travels in
// X-Forwarded-Proto/Host so the engine can build absolute URLs; the
// remote engine carries its own auth configuration, so cfg is not
// serialized across the wire.
func (r *Remote) Handle(req *http.Request, cfg *config.AuthConfig) (*http.Response, error) {
	out := req.Clone(req.Context())
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	if out.Header.Get("X-Forwarded-Proto") == "" && req.URL.Scheme != "" {
		out.Header.Set("X-Forwarded-Proto", req.URL.Scheme)
	}
	if out.Header.Get("X-Forwarded-Host") == "" {
		if h := originHost(req); h != "" {
			out.Header.Set("X-Forwarded-Host", h)
		}
	}
	out.URL.Scheme = r.scheme
	out.URL.Host = r.host
	// Client requests must leave RequestURI unset.
	out.RequestURI = ""

	resp, err := r.httpc.Do(out)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return resp, nil
}

func originHost(req *http.Request) string {
	if req.Host != "" {
		return req.Host
	}
	return req.URL.Host
}
