// Command example-nethttp is the smallest useful embedding of the
// gateway packages on the net/http runtime: a local dev engine mounted
// under the auth base path, one guarded route and one public route.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"sessiongate/internal/devengine"
	"sessiongate/pkg/bridge"
	"sessiongate/pkg/config"
	"sessiongate/pkg/engine"
	"sessiongate/pkg/guard"
	"sessiongate/pkg/logger"
	"sessiongate/pkg/session"
	"sessiongate/pkg/utils"
)

func main() {
	addr := flag.String("addr", ":8082", "listen address for the net/http example")
	flag.Parse()

	logger.Init()

	cfg := config.MergeAuth(&config.AuthConfig{
		Secret:      "example-secret-do-not-ship",
		Development: true,
		Providers:   []config.ProviderConfig{{ID: "credentials", Type: "credentials"}},
	})

	dev := devengine.New(devengine.Options{
		BasePath:  cfg.BasePath,
		Providers: cfg.Providers,
	})
	eng := engine.NewLocal(dev)

	resolver, err := session.NewResolver(eng, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolver: %v\n", err)
		os.Exit(1)
	}
	g, err := guard.New(resolver)
	if err != nil {
		fmt.Fprintf(os.Stderr, "guard: %v\n", err)
		os.Exit(1)
	}
	mount, err := bridge.NewMount(eng, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mount: %v\n", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.BasePath+"/", mount)
	mux.Handle("/me", g.NetHTTP(guard.RouteConfig{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := guard.IdentityFromContext(r.Context())
		utils.JSONWrite(w, http.StatusOK, map[string]interface{}{cfg.SessionProperty: id.Session})
	})))
	mux.Handle("/hello", g.NetHTTP(guard.RouteConfig{Public: true}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		greeting := "hello, stranger"
		if id, _ := guard.IdentityFromContext(r.Context()); id.Authenticated() {
			greeting = "hello, " + id.User.Name
		}
		utils.JSONWrite(w, http.StatusOK, map[string]string{"greeting": greeting})
	})))

	srv := &http.Server{
		Addr:         *addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	base := "http://localhost" + *addr
	fmt.Printf("net/http example listening on %s\n", *addr)
	fmt.Printf("  sign in: curl -i -X POST %s%s/signin -H 'Content-Type: application/json' -d '{\"name\":\"dev\"}'\n", base, cfg.BasePath)
	fmt.Printf("  then:    curl -s %s/me -b '%s=<token from Set-Cookie>'\n", base, devengine.DefaultCookieName)
	if err := srv.ListenAndServe(); err != nil {
		fmt.Printf("net/http server exit: %v\n", err)
	}
}
