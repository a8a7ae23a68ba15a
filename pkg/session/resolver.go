package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sessiongate/pkg/config"
	"sessiongate/pkg/engine"
	"sessiongate/pkg/httpx"
	"sessiongate/pkg/logger"
	"sessiongate/pkg/metrics"
)

var (
	// ErrNoProviders rejects resolver construction when the merged
	// config names no authentication providers.
	ErrNoProviders = errors.New("no auth providers configured: set auth.providers in the config file or SESSIONGATE_AUTH_PROVIDERS")

	// ErrMissingSecret rejects resolver construction when no secret is
	// set and development mode is off.
	ErrMissingSecret = errors.New("auth secret not set: set auth.secret or SESSIONGATE_AUTH_SECRET, or enable auth.development for local use")
)

// maxSessionPayload caps session body reads. Real session payloads are
// a few hundred bytes; anything past this indicates a misbehaving
// engine.
const maxSessionPayload = 1 << 20

// Resolver asks the engine for the current session on behalf of one
// native request. Construction validates the merged auth configuration
// once; afterwards every request resolves freshly against the engine
// with no cross-request caching.
type Resolver struct {
	eng engine.Engine
	cfg *config.AuthConfig
}

// NewResolver validates cfg and binds it to eng.
func NewResolver(eng engine.Engine, cfg *config.AuthConfig) (*Resolver, error) {
	if eng == nil {
		return nil, fmt.Errorf("session: nil engine")
	}
	if cfg == nil {
		return nil, fmt.Errorf("session: nil auth config")
	}
	if len(cfg.Providers) == 0 {
		return nil, ErrNoProviders
	}
	if strings.TrimSpace(cfg.Secret) == "" && !cfg.Development {
		return nil, ErrMissingSecret
	}
	return &Resolver{eng: eng, cfg: cfg}, nil
}

// Config exposes the merged auth configuration the resolver validated.
func (rv *Resolver) Config() *config.AuthConfig { return rv.cfg }

// Resolve fetches the session belonging to the native request behind
// ex. A missing, expired or unusable session resolves to (nil, nil);
// only a failed engine invocation returns an error. The distinction
// lets callers treat "anonymous" and "engine down" differently.
func (rv *Resolver) Resolve(ctx context.Context, ad httpx.Adapter, ex *httpx.Exchange) (*Session, error) {
	proto := ad.Protocol(ex)
	host := ad.Host(ex)
	if rv.cfg.TrustHost {
		hdr := ad.Headers(ex)
		if v := hdr.Get("X-Forwarded-Proto"); v != "" {
			proto = v
		}
		if v := hdr.Get("X-Forwarded-Host"); v != "" {
			host = v
		}
	}
	base := config.NormalizeBasePath(rv.cfg.BasePath)
	u := proto + "://" + host + base + "/session"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("session: build request: %w", err)
	}
	req.Header.Set("X-Forwarded-Proto", proto)
	req.Header.Set("X-Forwarded-Host", host)
	req.Header.Set("Accept", "application/json")
	if cookie, ok := ad.Cookie(ex); ok {
		req.Header.Set("Cookie", cookie)
	}
	req.Host = host

	start := time.Now()
	resp, err := rv.eng.Handle(req, rv.cfg)
	if err != nil {
		metrics.ObserveEngineCall("error", time.Since(start))
		logger.Warn("engine_session_call_failed", "url", u, "error", err)
		return nil, err
	}
	metrics.ObserveEngineCall(metrics.OutcomeFor(resp.StatusCode), time.Since(start))
	if resp.Body != nil {
		defer resp.Body.Close()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Debug("session_not_resolved", "status", resp.StatusCode)
		return nil, nil
	}
	var payload []byte
	if resp.Body != nil {
		payload, err = io.ReadAll(io.LimitReader(resp.Body, maxSessionPayload))
		if err != nil {
			// The engine answered but the body was unusable; treat it
			// the same as an unparseable session.
			logger.Warn("session_payload_read_failed", "error", err)
			return nil, nil
		}
	}
	return ProjectSession(payload), nil
}
