package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"gopkg.in/yaml.v3"

	"sessiongate/pkg/config"
	"sessiongate/pkg/guard"
	"sessiongate/pkg/telemetry"
	"sessiongate/pkg/utils"
)

// buildFastRouter lays out the fasthttp route table. The engine mount
// owns everything under the auth base path; net/http-only handlers
// (metrics, docs) run through the adaptor.
func (a *App) buildFastRouter() fasthttp.RequestHandler {
	base := config.NormalizeBasePath(a.authCfg.BasePath)

	me := a.guard.FastHTTP(guard.RouteConfig{}, a.meHandlerFast)
	status := a.guard.FastHTTP(guard.RouteConfig{Public: true}, a.statusHandlerFast)
	adminCfg := a.guard.FastHTTP(guard.RouteConfig{RequiredRoles: []string{"admin"}}, a.adminConfigHandlerFast)
	mount := a.mount.FastHTTP()
	metricsH := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())

	var docsH, openapiH fasthttp.RequestHandler
	if a.eff.Config.Docs.Enabled {
		docsH = fasthttpadaptor.NewFastHTTPHandler(httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
		openapiH = fasthttpadaptor.NewFastHTTPHandler(http.FileServer(http.Dir(a.docsDir())))
	}

	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		switch {
		case path == base || strings.HasPrefix(path, base+"/"):
			mount(ctx)
		case path == "/v1/me":
			me(ctx)
		case path == "/v1/status":
			status(ctx)
		case path == "/admin/config":
			adminCfg(ctx)
		case path == "/healthz":
			healthzHandlerFast(ctx)
		case path == "/readyz":
			a.readyzHandlerFast(ctx)
		case path == "/metrics":
			metricsH(ctx)
		case docsH != nil && strings.HasPrefix(path, "/docs/"):
			docsH(ctx)
		case openapiH != nil && path == "/openapi.yaml":
			openapiH(ctx)
		default:
			utils.JSONErrorFast(ctx, fasthttp.StatusNotFound, "not found")
		}
	}
}

// FastHandler returns the fully wrapped fasthttp handler. Exported so
// tests can drive the assembled gateway without a listener.
func (a *App) FastHandler() fasthttp.RequestHandler {
	return telemetry.MiddlewareFast(a.chain.FastHTTP(a.buildFastRouter()))
}

func (a *App) meHandlerFast(ctx *fasthttp.RequestCtx) {
	id, ok := guard.IdentityFromRequestCtx(ctx)
	if !ok {
		utils.JSONErrorFast(ctx, fasthttp.StatusInternalServerError, "identity missing")
		return
	}
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, map[string]interface{}{id.Property: id.Session})
}

func (a *App) statusHandlerFast(ctx *fasthttp.RequestCtx) {
	id, _ := guard.IdentityFromRequestCtx(ctx)
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, map[string]interface{}{
		"status":        "ok",
		"version":       a.version,
		"authenticated": id.Authenticated(),
	})
}

func (a *App) adminConfigHandlerFast(ctx *fasthttp.RequestCtx) {
	view := struct {
		Source  string        `yaml:"source"`
		Addr    string        `yaml:"addr"`
		Runtime string        `yaml:"runtime"`
		Config  config.Config `yaml:"config"`
	}{a.eff.Source, a.eff.Addr, a.eff.Runtime, a.eff.Config.Redacted()}
	b, err := yaml.Marshal(view)
	if err != nil {
		utils.JSONErrorFast(ctx, fasthttp.StatusInternalServerError, "config render failed")
		return
	}
	ctx.SetContentType("application/yaml")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(b)
}

// readyzHandlerFast handles the /readyz endpoint (fasthttp).
func (a *App) readyzHandlerFast(ctx *fasthttp.RequestCtx) {
	if a.eff.Config.Probe.Enabled && !a.prober.Healthy() {
		ctx.SetContentType("application/json")
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		_, _ = ctx.WriteString("{\"status\":\"engine unreachable\"}")
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	_, _ = ctx.WriteString("{\"status\":\"ok\",\"version\":\"" + ver + "\"}")
}

// healthzHandlerFast handles the /healthz endpoint (fasthttp).
func healthzHandlerFast(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	_, _ = ctx.WriteString("{\"status\":\"ok\"}")
}

// startFastHTTP builds and starts the fasthttp server, returning a
// channel that delivers errors.
func (a *App) startFastHTTP(_ context.Context) <-chan error {
	srvCfg := a.eff.Config.Server

	// fasthttp.Server options; config values override where set
	const (
		readBufferSize       = 64 * 1024       // 64 KiB read buffer per connection
		defaultMaxBody       = 5 * 1024 * 1024 // 5 MiB max request body
		defaultIdleTimeout   = 30 * time.Second
		maxKeepaliveDuration = 2 * time.Minute
	)
	maxBody := int(srvCfg.MaxBodyBytes.Int64())
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	idle := srvCfg.IdleTimeout.Duration()
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	a.srvFast = &fasthttp.Server{
		Name:                 "sessiongate",
		Handler:              a.FastHandler(),
		ReadBufferSize:       readBufferSize,
		MaxRequestBodySize:   maxBody,
		ReadTimeout:          srvCfg.ReadTimeout.Duration(),
		WriteTimeout:         srvCfg.WriteTimeout.Duration(),
		IdleTimeout:          idle,
		MaxKeepaliveDuration: maxKeepaliveDuration,
	}

	errCh := make(chan error, 1)
	go func() {
		cert := srvCfg.TLS.CertFile
		key := srvCfg.TLS.KeyFile
		if cert != "" && key != "" {
			errCh <- a.srvFast.ListenAndServeTLS(a.eff.Addr, cert, key)
		} else {
			errCh <- a.srvFast.ListenAndServe(a.eff.Addr)
		}
	}()
	return errCh
}
