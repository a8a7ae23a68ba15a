package app

import (
	"fmt"
	"os"

	"sessiongate/pkg/config"
	"sessiongate/pkg/httpx"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks light
// and focused so callers can surface user-friendly errors. Auth
// preconditions (providers, secret) are enforced by the session
// resolver, which owns their remediation messages.
func validateConfig(eff config.EffectiveConfigResult) error {
	if _, err := httpx.ParseRuntime(eff.Runtime); err != nil {
		return err
	}

	// TLS cert/key presence check if one is set
	cert := eff.Config.Server.TLS.CertFile
	key := eff.Config.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	eng := eff.Config.Engine
	switch eng.Mode {
	case "", "remote":
		if eng.Endpoint == "" {
			return fmt.Errorf("engine endpoint is empty: set engine.endpoint (http(s)://host:port or unix:///path.sock) or use engine.mode: local")
		}
	case "local":
		switch eng.Store {
		case "", "memory":
		case "pebble":
			if eng.DataDir == "" {
				return fmt.Errorf("pebble session store needs a directory: set engine.data_dir")
			}
		default:
			return fmt.Errorf("unknown engine store %q: use memory or pebble", eng.Store)
		}
	default:
		return fmt.Errorf("unknown engine mode %q: use remote or local", eng.Mode)
	}

	return nil
}
