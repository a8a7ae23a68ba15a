// Package engine defines the authentication engine contract consumed
// by the gateway, plus the two transports for reaching an engine: an
// HTTP client for external engines (TCP or unix socket) and a direct
// in-process invoker.
//
// The engine is opaque to the gateway. It receives one canonical
// request plus the merged auth configuration and returns one canonical
// response; the gateway never inspects how the answer was produced.
package engine

import (
	"net/http"

	"sessiongate/pkg/config"
)

// Engine processes canonical auth requests.
type Engine interface {
	// Handle processes one canonical request under the given auth
	// configuration. The returned response body, when non-nil, is a
	// live stream owned by the caller.
	Handle(req *http.Request, cfg *config.AuthConfig) (*http.Response, error)
}

// Func adapts a plain function to the Engine interface.
type Func func(req *http.Request, cfg *config.AuthConfig) (*http.Response, error)

// Handle implements Engine.
func (f Func) Handle(req *http.Request, cfg *config.AuthConfig) (*http.Response, error) {
	return f(req, cfg)
}
