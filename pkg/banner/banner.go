package banner

import (
	"fmt"

	"sessiongate/pkg/config"
)

const banner = `
███████╗███████╗███████╗███████╗██╗ ██████╗ ███╗   ██╗    ██████╗  █████╗ ████████╗███████╗
██╔════╝██╔════╝██╔════╝██╔════╝██║██╔═══██╗████╗  ██║   ██╔════╝ ██╔══██╗╚══██╔══╝██╔════╝
███████╗█████╗  ███████╗███████╗██║██║   ██║██╔██╗ ██║   ██║  ███╗███████║   ██║   █████╗
╚════██║██╔══╝  ╚════██║╚════██║██║██║   ██║██║╚██╗██║   ██║   ██║██╔══██║   ██║   ██╔══╝
███████║███████╗███████║███████║██║╚██████╔╝██║ ╚████║   ╚██████╔╝██║  ██║   ██║   ███████╗
╚══════╝╚══════╝╚══════╝╚══════╝╚═╝ ╚═════╝ ╚═╝  ╚═══╝    ╚═════╝ ╚═╝  ╚═╝   ╚═╝   ╚══════╝
`

// Print prints the banner with the basics. Callers holding a full
// effective config should prefer PrintWithEff.
func Print(addr, runtime, source, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("Runtime:  %s\n", runtime)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if source != "" {
		fmt.Printf("Config:   %s\n", source)
	}
}

// PrintWithEff prints the banner plus a readiness checklist derived
// from the effective config.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	rt := eff.Runtime
	if rt == "" {
		rt = "nethttp"
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("Runtime:  %s\n", rt)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", src)

	cfg := eff.Config
	if cfg == nil {
		return
	}

	base := config.NormalizeBasePath(cfg.Auth.BasePath)
	fmt.Println("\n== Engine =====================================================")
	mode := cfg.Engine.Mode
	if mode == "" {
		mode = "remote"
	}
	fmt.Printf("Mode:     %s\n", mode)
	if mode == "remote" {
		fmt.Printf("Endpoint: %s\n", cfg.Engine.Endpoint)
	} else {
		store := cfg.Engine.Store
		if store == "" {
			store = "memory"
		}
		fmt.Printf("Store:    %s\n", store)
	}
	fmt.Printf("Mounted:  %s/*\n", base)

	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl 'http://%s%s/session'\n", addr, base)
	fmt.Printf("curl 'http://%s/v1/me' -H 'Cookie: <session cookie>'\n", addr)

	fmt.Println("\n== Production? =================================================")
	if len(cfg.Auth.Providers) > 0 {
		fmt.Printf("- Providers: OK (%d)\n", len(cfg.Auth.Providers))
	} else {
		fmt.Println("- Providers: MISSING (set auth.providers)")
	}
	switch {
	case cfg.Auth.Secret != "":
		fmt.Println("- Auth secret: OK")
	case cfg.Auth.Development:
		fmt.Println("- Auth secret: not set (development mode)")
	default:
		fmt.Println("- Auth secret: MISSING (set auth.secret or SESSIONGATE_AUTH_SECRET)")
	}
	if cfg.Server.TLS.CertFile != "" && cfg.Server.TLS.KeyFile != "" {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured")
	}
	if cfg.Auth.TrustHost {
		fmt.Println("- Forwarded headers: trusted (auth.trust_host)")
	} else {
		fmt.Println("- Forwarded headers: ignored")
	}
	if cfg.Probe.Enabled {
		cron := cfg.Probe.Cron
		if cron == "" {
			cron = "* * * * *"
		}
		fmt.Printf("- Engine probe: enabled (%s)\n", cron)
	} else {
		fmt.Println("- Engine probe: disabled")
	}

	fmt.Println("\n== Logs: =================================================")
}
