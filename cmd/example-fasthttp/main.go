// Command example-fasthttp mirrors example-nethttp on the fasthttp
// runtime: the same local dev engine and guard, dispatched from a
// hand-rolled path switch the way fasthttp services usually route.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

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
	addr := flag.String("addr", ":8081", "listen address for the fasthttp example")
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

	authHandler := mount.FastHTTP()
	meHandler := g.FastHTTP(guard.RouteConfig{}, func(ctx *fasthttp.RequestCtx) {
		id, _ := guard.IdentityFromRequestCtx(ctx)
		utils.JSONWriteFast(ctx, fasthttp.StatusOK, map[string]interface{}{cfg.SessionProperty: id.Session})
	})
	helloHandler := g.FastHTTP(guard.RouteConfig{Public: true}, func(ctx *fasthttp.RequestCtx) {
		greeting := "hello, stranger"
		if id, _ := guard.IdentityFromRequestCtx(ctx); id.Authenticated() {
			greeting = "hello, " + id.User.Name
		}
		utils.JSONWriteFast(ctx, fasthttp.StatusOK, map[string]string{"greeting": greeting})
	})

	h := func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		switch {
		case strings.HasPrefix(path, cfg.BasePath+"/"):
			authHandler(ctx)
		case path == "/me":
			meHandler(ctx)
		case path == "/hello":
			helloHandler(ctx)
		default:
			utils.JSONErrorFast(ctx, fasthttp.StatusNotFound, "not found")
		}
	}

	srv := &fasthttp.Server{
		Handler:      h,
		Name:         "sessiongate-example",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	base := "http://localhost" + *addr
	fmt.Printf("fasthttp example listening on %s\n", *addr)
	fmt.Printf("  sign in: curl -i -X POST %s%s/signin -H 'Content-Type: application/json' -d '{\"name\":\"dev\"}'\n", base, cfg.BasePath)
	fmt.Printf("  then:    curl -s %s/me -b '%s=<token from Set-Cookie>'\n", base, devengine.DefaultCookieName)
	if err := srv.ListenAndServe(*addr); err != nil {
		fmt.Printf("fasthttp server exit: %v\n", err)
	}
}
