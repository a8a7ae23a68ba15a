package bridge

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"

	"sessiongate/pkg/config"
	"sessiongate/pkg/engine"
	"sessiongate/pkg/httpx"
	"sessiongate/pkg/logger"
	"sessiongate/pkg/metrics"
)

// Mount exposes the engine's own HTTP surface — sign-in, callbacks,
// session, sign-out, everything under the auth base path — on either
// native runtime. Each request is translated to canonical form, handed
// to the engine, and the engine's response relayed back natively.
type Mount struct {
	eng engine.Engine
	cfg *config.AuthConfig
}

// NewMount binds the engine surface to eng under cfg.
func NewMount(eng engine.Engine, cfg *config.AuthConfig) (*Mount, error) {
	if eng == nil {
		return nil, fmt.Errorf("bridge: nil engine")
	}
	if cfg == nil {
		return nil, fmt.Errorf("bridge: nil auth config")
	}
	return &Mount{eng: eng, cfg: cfg}, nil
}

// ServeHTTP implements http.Handler for the net/http runtime.
func (m *Mount) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ad := httpx.MustAdapter(httpx.RuntimeNetHTTP)
	m.serve(r.Context(), ad, httpx.NewNetHTTPExchange(w, r))
}

// FastHTTP returns the mount as a fasthttp handler.
func (m *Mount) FastHTTP() fasthttp.RequestHandler {
	ad := httpx.MustAdapter(httpx.RuntimeFastHTTP)
	return func(ctx *fasthttp.RequestCtx) {
		m.serve(ctx, ad, httpx.NewFastHTTPExchange(ctx))
	}
}

func (m *Mount) serve(ctx context.Context, ad httpx.Adapter, ex *httpx.Exchange) {
	req, err := CanonicalRequest(ctx, ad, ex)
	if err != nil {
		logger.Error("engine_request_translation_failed", "error", err)
		m.fail(ad, ex, http.StatusBadRequest, "malformed request")
		return
	}

	start := time.Now()
	resp, err := m.eng.Handle(req, m.cfg)
	if err != nil {
		metrics.ObserveEngineCall("error", time.Since(start))
		logger.Error("engine_call_failed", "url", req.URL.String(), "error", err)
		m.fail(ad, ex, http.StatusBadGateway, "auth engine unavailable")
		return
	}
	metrics.ObserveEngineCall(metrics.OutcomeFor(resp.StatusCode), time.Since(start))

	if err := WriteResponse(ad, ex, resp); err != nil {
		// Once relaying has started the connection is tainted; there
		// is no clean error to render. Log and let the runtime tear
		// the connection down.
		logger.Warn("engine_response_relay_failed", "url", req.URL.String(), "error", err)
	}
}

func (m *Mount) fail(ad httpx.Adapter, ex *httpx.Exchange, status int, msg string) {
	if ex.HeadersSent() {
		return
	}
	_ = ad.SetHeader(ex, "Content-Type", []string{"application/json"})
	_ = ad.SetStatus(ex, status)
	_ = ad.Send(ex, []byte(fmt.Sprintf("{%q:%q}\n", "error", msg)))
}
