package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Addr returns host:port for the HTTP listener.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Redacted returns a copy of the config safe to expose over the admin
// surface: secrets are masked, never echoed.
func (c *Config) Redacted() Config {
	out := *c
	if out.Auth.Secret != "" {
		out.Auth.Secret = "<redacted>"
	}
	if len(c.Auth.Providers) > 0 {
		out.Auth.Providers = make([]ProviderConfig, len(c.Auth.Providers))
		copy(out.Auth.Providers, c.Auth.Providers)
		for i := range out.Auth.Providers {
			if out.Auth.Providers[i].ClientSecret != "" {
				out.Auth.Providers[i].ClientSecret = "<redacted>"
			}
		}
	}
	return out
}

// ResolveConfigPath decides the config file path using the
// flag-provided value and the SESSIONGATE_CONFIG environment variable
// when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("SESSIONGATE_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
