package app

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"gopkg.in/yaml.v3"

	"sessiongate/pkg/banner"
	"sessiongate/pkg/config"
	"sessiongate/pkg/guard"
	"sessiongate/pkg/telemetry"
	"sessiongate/pkg/utils"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}

// buildMux lays out the net/http route table: the engine mount under
// the auth base path, the guarded demo routes, and the operational
// endpoints.
func (a *App) buildMux() *http.ServeMux {
	mux := http.NewServeMux()
	base := config.NormalizeBasePath(a.authCfg.BasePath)

	mux.Handle(base+"/", a.mount)
	mux.Handle("/v1/me", a.guard.NetHTTP(guard.RouteConfig{}, http.HandlerFunc(a.meHandler)))
	mux.Handle("/v1/status", a.guard.NetHTTP(guard.RouteConfig{Public: true}, http.HandlerFunc(a.statusHandler)))
	mux.Handle("/admin/config", a.guard.NetHTTP(guard.RouteConfig{RequiredRoles: []string{"admin"}}, http.HandlerFunc(a.adminConfigHandler)))
	mux.HandleFunc("/healthz", healthzHandler)
	mux.HandleFunc("/readyz", a.readyzHandler)
	mux.Handle("/metrics", promhttp.Handler())
	if a.eff.Config.Docs.Enabled {
		mux.Handle("/docs/", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
		mux.Handle("/openapi.yaml", http.FileServer(http.Dir(a.docsDir())))
	}
	return mux
}

func (a *App) docsDir() string {
	if d := a.eff.Config.Docs.Dir; d != "" {
		return d
	}
	return "./docs"
}

// Handler returns the fully wrapped net/http handler. Exported so tests
// can drive the assembled gateway without a listener.
func (a *App) Handler() http.Handler {
	wrapped := a.chain.NetHTTP(a.buildMux())
	wrapped = telemetry.Middleware(wrapped)
	if n := a.eff.Config.Server.MaxBodyBytes.Int64(); n > 0 {
		wrapped = http.MaxBytesHandler(wrapped, n)
	}
	return wrapped
}

// meHandler renders the resolved session under the configured session
// property, the same shape applications see.
func (a *App) meHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := guard.IdentityFromContext(r.Context())
	if !ok {
		utils.JSONError(w, http.StatusInternalServerError, "identity missing")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{id.Property: id.Session})
}

// statusHandler is public: it answers for anonymous and signed-in
// callers alike.
func (a *App) statusHandler(w http.ResponseWriter, r *http.Request) {
	id, _ := guard.IdentityFromContext(r.Context())
	_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"version":       a.version,
		"authenticated": id.Authenticated(),
	})
}

// adminConfigHandler exposes the redacted effective config as YAML.
func (a *App) adminConfigHandler(w http.ResponseWriter, r *http.Request) {
	view := struct {
		Source  string        `yaml:"source"`
		Addr    string        `yaml:"addr"`
		Runtime string        `yaml:"runtime"`
		Config  config.Config `yaml:"config"`
	}{a.eff.Source, a.eff.Addr, a.eff.Runtime, a.eff.Config.Redacted()}
	b, err := yaml.Marshal(view)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "config render failed")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// readyzHandler reports readiness: not-ready while the engine probe
// says the engine is unreachable.
func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if a.eff.Config.Probe.Enabled && !a.prober.Healthy() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("{\"status\":\"engine unreachable\"}"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	_, _ = w.Write([]byte("{\"status\":\"ok\",\"version\":\"" + ver + "\"}"))
}

// healthzHandler handles the /healthz endpoint.
func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("{\"status\":\"ok\"}"))
}

// startNetHTTP starts the net/http server in a goroutine and returns a
// channel that will carry any fatal server error.
func (a *App) startNetHTTP(_ context.Context) <-chan error {
	srvCfg := a.eff.Config.Server
	a.srv = &http.Server{
		Addr:         a.eff.Addr,
		Handler:      a.Handler(),
		ReadTimeout:  srvCfg.ReadTimeout.Duration(),
		WriteTimeout: srvCfg.WriteTimeout.Duration(),
		IdleTimeout:  srvCfg.IdleTimeout.Duration(),
	}

	errCh := make(chan error, 1)
	go func() {
		cert := srvCfg.TLS.CertFile
		key := srvCfg.TLS.KeyFile
		if cert != "" && key != "" {
			errCh <- a.srv.ListenAndServeTLS(cert, key)
		} else {
			errCh <- a.srv.ListenAndServe()
		}
	}()
	return errCh
}
