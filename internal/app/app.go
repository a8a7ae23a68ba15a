package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"sessiongate/internal/devengine"
	"sessiongate/internal/probe"
	"sessiongate/pkg/bridge"
	"sessiongate/pkg/config"
	"sessiongate/pkg/engine"
	"sessiongate/pkg/gateway"
	"sessiongate/pkg/guard"
	"sessiongate/pkg/httpx"
	"sessiongate/pkg/logger"
	"sessiongate/pkg/session"
)

// App groups the assembled gateway components and their lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	runtime httpx.Runtime
	host    *httpx.Host

	authCfg  *config.AuthConfig
	eng      engine.Engine
	dev      *devengine.Engine // set in local mode; owns the session store
	resolver *session.Resolver
	guard    *guard.Guard
	mount    *bridge.Mount
	chain    *gateway.Chain
	prober   *probe.Prober

	probeCancel context.CancelFunc
	srv         *http.Server
	srvFast     *fasthttp.Server
	state       string
}

// New assembles the gateway from the effective config: runtime
// selection, engine transport, resolver, guard, bridge mount and edge
// chain. It does not open listeners; call Run for that.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	// validate config and fail fast if not valid
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	a := &App{eff: eff, version: version, commit: commit, buildDate: buildDate, host: &httpx.Host{}}

	rt, err := httpx.ParseRuntime(eff.Runtime)
	if err != nil {
		return nil, err
	}
	a.runtime = rt
	if _, err := a.host.Attach(rt); err != nil {
		return nil, err
	}

	// merge auth layers once; everything downstream shares the result
	a.authCfg = config.MergeAuth(&eff.Config.Auth)

	if err := a.setupEngine(); err != nil {
		return nil, err
	}

	rv, err := session.NewResolver(a.eng, a.authCfg)
	if err != nil {
		return nil, err
	}
	a.resolver = rv

	g, err := guard.New(rv)
	if err != nil {
		return nil, err
	}
	a.guard = g

	m, err := bridge.NewMount(a.eng, a.authCfg)
	if err != nil {
		return nil, err
	}
	a.mount = m

	sec := eff.Config.Security
	a.chain = gateway.NewChain(gateway.Config{
		AllowedOrigins: append([]string(nil), sec.CORS.AllowedOrigins...),
		RPS:            sec.RateLimit.RPS,
		Burst:          sec.RateLimit.Burst,
		IPWhitelist:    append([]string(nil), sec.IPWhitelist...),
	})

	a.prober = probe.New(a.eng, a.authCfg)
	return a, nil
}

// setupEngine picks the engine transport from config: a remote engine
// over HTTP/unix socket, or the embedded development engine.
func (a *App) setupEngine() error {
	eng := a.eff.Config.Engine
	switch eng.Mode {
	case "", "remote":
		r, err := engine.NewRemote(eng.Endpoint, eng.Timeout.Duration())
		if err != nil {
			return err
		}
		a.eng = r
		logger.Info("engine_configured", "mode", "remote", "endpoint", eng.Endpoint)

	case "local":
		var store devengine.SessionStore
		if eng.Store == "pebble" {
			ps, err := devengine.OpenPebbleStore(filepath.Join(eng.DataDir, "sessions"))
			if err != nil {
				return fmt.Errorf("failed to open session store under %s: %w", eng.DataDir, err)
			}
			store = ps
		}
		a.dev = devengine.New(devengine.Options{
			BasePath:   a.authCfg.BasePath,
			CookieName: eng.CookieName,
			SessionTTL: eng.SessionTTL.Duration(),
			Providers:  a.authCfg.Providers,
			Store:      store,
		})
		a.eng = engine.NewLocal(a.dev)
		logger.Info("engine_configured", "mode", "local", "store", eng.Store)
	}
	return nil
}

// Run starts the probe scheduler and the configured HTTP runtime, then
// blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	cancel, err := a.prober.Start(ctx, a.eff.Config.Probe)
	if err != nil {
		return err
	}
	a.probeCancel = cancel

	a.state = "running"
	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the probe, drains the server and closes the local
// engine's store, bounded by ctx.
func (a *App) Shutdown(ctx context.Context) error {
	a.state = "shutting_down"
	logger.Info("shutdown_requested")

	if a.probeCancel != nil {
		a.probeCancel()
	}

	var firstErr error
	if a.srv != nil {
		if err := a.srv.Shutdown(ctx); err != nil {
			logger.Error("http_shutdown_error", "error", err)
			firstErr = err
		}
	}
	if a.srvFast != nil {
		if err := a.srvFast.Shutdown(); err != nil {
			logger.Error("fasthttp_shutdown_error", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if a.dev != nil {
		if err := a.dev.Store().Close(); err != nil {
			logger.Error("session_store_close_error", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr == nil {
		a.state = "stopped"
		logger.Info("shutdown_complete")
	}
	return firstErr
}

// startHTTP starts the server for the attached runtime and returns a
// channel that delivers any fatal server error.
func (a *App) startHTTP(ctx context.Context) <-chan error {
	if a.runtime == httpx.RuntimeFastHTTP {
		return a.startFastHTTP(ctx)
	}
	return a.startNetHTTP(ctx)
}
