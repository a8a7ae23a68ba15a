// Package bridge translates between native runtime requests and the
// canonical messages the auth engine consumes, in both directions, and
// mounts the engine's HTTP surface on either runtime.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"sessiongate/pkg/httpx"
)

// CanonicalRequest builds the canonical request for the native request
// behind ex: an absolute URL assembled from protocol, host and the raw
// request URI, individually filtered headers, and a body encoded
// according to the declared content type. GET and HEAD never carry a
// body, whatever the native request claims.
func CanonicalRequest(ctx context.Context, ad httpx.Adapter, ex *httpx.Exchange) (*http.Request, error) {
	method := ad.Method(ex)
	host := ad.Host(ex)
	target := ad.Protocol(ex) + "://" + host + ad.RequestURI(ex)

	var body io.Reader
	var forcedType string
	if methodCarriesBody(method) {
		var err error
		body, forcedType, err = encodeBody(ad, ex)
		if err != nil {
			return nil, fmt.Errorf("bridge: encode body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("bridge: build request: %w", err)
	}
	copyInboundHeaders(req.Header, ad.Headers(ex))
	if forcedType != "" {
		req.Header.Set("Content-Type", forcedType)
	}
	req.Host = host
	return req, nil
}

func methodCarriesBody(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead:
		return false
	}
	return true
}

// copyInboundHeaders adds each non-empty value individually, so a name
// whose values are all empty never materializes on the canonical
// request. Framing headers are left for the transport to recompute.
func copyInboundHeaders(dst, src http.Header) {
	for name, values := range src {
		if isFramingHeader(name) {
			continue
		}
		for _, v := range values {
			if v == "" {
				continue
			}
			dst.Add(name, v)
		}
	}
}

func isFramingHeader(name string) bool {
	switch strings.ToLower(name) {
	case "content-length", "transfer-encoding", "connection":
		return true
	}
	return false
}

// encodeBody turns the native body into a reader for the canonical
// request. Byte, string and reader bodies pass through untouched
// (binary-safe); object bodies decoded by upstream native middleware
// are re-encoded per the declared content type, defaulting to form
// encoding when no usable declaration exists. The returned content
// type is non-empty only when the encoding overrides the declaration.
func encodeBody(ad httpx.Adapter, ex *httpx.Exchange) (io.Reader, string, error) {
	raw := ad.Body(ex)
	if raw == nil {
		return nil, "", nil
	}

	switch b := raw.(type) {
	case []byte:
		if len(b) == 0 {
			return nil, "", nil
		}
		return bytes.NewReader(b), "", nil
	case string:
		if b == "" {
			return nil, "", nil
		}
		return strings.NewReader(b), "", nil
	case io.Reader:
		return b, "", nil
	}

	switch declaredContentType(ad.Headers(ex)) {
	case "application/json":
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, "", fmt.Errorf("marshal json body: %w", err)
		}
		return bytes.NewReader(data), "", nil
	case "application/x-www-form-urlencoded":
		s, err := encodeForm(raw)
		if err != nil {
			return nil, "", err
		}
		return strings.NewReader(s), "", nil
	default:
		s, err := encodeForm(raw)
		if err != nil {
			return nil, "", err
		}
		return strings.NewReader(s), "application/x-www-form-urlencoded", nil
	}
}

func declaredContentType(h http.Header) string {
	ct := h.Get("Content-Type")
	if ct == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
}

// encodeForm url-encodes an object body, expanding array values into
// repeated keys: {"a": [1, 2]} becomes "a=1&a=2".
func encodeForm(v interface{}) (string, error) {
	vals := url.Values{}
	switch m := v.(type) {
	case url.Values:
		vals = m
	case map[string][]string:
		vals = url.Values(m)
	case map[string]string:
		for k, s := range m {
			vals.Set(k, s)
		}
	case map[string]interface{}:
		for k, item := range m {
			appendFormValue(vals, k, item)
		}
	default:
		return "", fmt.Errorf("cannot form-encode body of type %T", v)
	}
	return vals.Encode(), nil
}

func appendFormValue(vals url.Values, key string, item interface{}) {
	switch t := item.(type) {
	case nil:
	case []string:
		for _, s := range t {
			vals.Add(key, s)
		}
	case []interface{}:
		for _, e := range t {
			appendFormValue(vals, key, e)
		}
	case string:
		vals.Add(key, t)
	case bool:
		vals.Add(key, strconv.FormatBool(t))
	case float64:
		vals.Add(key, strconv.FormatFloat(t, 'f', -1, 64))
	case json.Number:
		vals.Add(key, t.String())
	default:
		vals.Add(key, fmt.Sprint(t))
	}
}
