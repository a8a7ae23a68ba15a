// Command devengine runs the development session engine standalone so
// a gateway (or several) can point engine.endpoint at it. It listens on
// TCP by default; with -socket it serves a unix domain socket and
// admits only peers whose UID passes the peer-credential check.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"sessiongate/internal/devengine"
	"sessiongate/pkg/config"
	"sessiongate/pkg/logger"
	"sessiongate/pkg/shutdown"
)

type peerUIDKey struct{}

func main() {
	var (
		addr      = flag.String("addr", ":9100", "TCP listen address")
		socket    = flag.String("socket", "", "unix socket path (overrides -addr)")
		basePath  = flag.String("base-path", "/auth", "engine base path")
		cookie    = flag.String("cookie", devengine.DefaultCookieName, "session cookie name")
		ttl       = flag.Duration("ttl", devengine.DefaultSessionTTL, "session lifetime")
		storeKind = flag.String("store", "memory", "session store: memory or pebble")
		dataDir   = flag.String("data-dir", "./devengine-data", "data directory for the pebble store")
		providers = flag.String("providers", "credentials", "comma-separated provider ids")
	)
	flag.Parse()

	logger.Init()
	defer logger.Sync()

	var store devengine.SessionStore
	if *storeKind == "pebble" {
		ps, err := devengine.OpenPebbleStore(*dataDir)
		if err != nil {
			shutdown.Abort("failed to open session store", err, *dataDir)
		}
		store = ps
	}

	var provCfgs []config.ProviderConfig
	for _, id := range strings.Split(*providers, ",") {
		if id = strings.TrimSpace(id); id != "" {
			provCfgs = append(provCfgs, config.ProviderConfig{ID: id, Name: id, Type: "credentials"})
		}
	}

	eng := devengine.New(devengine.Options{
		BasePath:   *basePath,
		CookieName: *cookie,
		SessionTTL: *ttl,
		Providers:  provCfgs,
		Store:      store,
	})

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	// prune expired sessions in the background
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				if _, err := eng.Store().Prune(now); err != nil {
					logger.Error("session_prune_failed", "error", err)
				}
			}
		}
	}()

	srv := &http.Server{Handler: eng}
	errCh := make(chan error, 1)

	if *socket != "" {
		allowed := allowedUIDs()
		srv.Handler = requirePeerUID(eng, allowed)
		srv.ConnContext = func(c context.Context, conn net.Conn) context.Context {
			return context.WithValue(c, peerUIDKey{}, peerUIDForConn(conn))
		}
		_ = os.Remove(*socket)
		l, err := net.Listen("unix", *socket)
		if err != nil {
			shutdown.Abort("failed to listen on socket", err, *dataDir)
		}
		_ = os.Chmod(*socket, 0o600)
		logger.Info("devengine_listening", "socket", *socket, "base_path", *basePath)
		go func() { errCh <- srv.Serve(l) }()
	} else {
		srv.Addr = *addr
		logger.Info("devengine_listening", "addr", *addr, "base_path", *basePath)
		go func() { errCh <- srv.ListenAndServe() }()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			shutdown.Abort("devengine server failed", err, *dataDir)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = eng.Store().Close()
}

// allowedUIDs reads SESSIONGATE_DEVENGINE_ALLOWED_UIDS; without it only
// the engine's own UID may connect over the socket.
func allowedUIDs() map[int]struct{} {
	out := map[int]struct{}{os.Getuid(): {}}
	if v := os.Getenv("SESSIONGATE_DEVENGINE_ALLOWED_UIDS"); v != "" {
		out = map[int]struct{}{}
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if uid, err := strconv.Atoi(p); err == nil {
				out[uid] = struct{}{}
			}
		}
	}
	return out
}

// requirePeerUID rejects unix-socket connections from unexpected UIDs.
func requirePeerUID(next http.Handler, allowed map[int]struct{}) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, ok := r.Context().Value(peerUIDKey{}).(int)
		if !ok || uid < 0 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if _, allow := allowed[uid]; !allow {
			logger.Warn("devengine_peer_rejected", "uid", uid)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// peerUIDForConn is implemented per-platform in peercred_*.go
