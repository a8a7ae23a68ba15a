package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Engine   EngineConfig   `yaml:"engine"`
	Auth     AuthConfig     `yaml:"auth"`
	Security SecurityConfig `yaml:"security"`
	Logging  LoggingConfig  `yaml:"logging"`
	Probe    ProbeConfig    `yaml:"probe"`
	Docs     DocsConfig     `yaml:"docs"`
}

// ServerConfig holds listener, runtime and tls settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	// Runtime selects the native HTTP runtime: "nethttp" or "fasthttp".
	Runtime      string    `yaml:"runtime"`
	MaxBodyBytes SizeBytes `yaml:"max_body_bytes"`
	ReadTimeout  Duration  `yaml:"read_timeout"`
	WriteTimeout Duration  `yaml:"write_timeout"`
	IdleTimeout  Duration  `yaml:"idle_timeout"`
	TLS          TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// EngineConfig selects and tunes the auth engine behind the gateway.
type EngineConfig struct {
	// Mode is "remote" (external engine over HTTP or a unix socket)
	// or "local" (the embedded development engine).
	Mode string `yaml:"mode"`
	// Endpoint locates a remote engine: "http(s)://host:port" or
	// "unix:///path/to.sock".
	Endpoint string   `yaml:"endpoint"`
	Timeout  Duration `yaml:"timeout"`
	// Store selects the local engine's session store: "memory" or
	// "pebble".
	Store      string   `yaml:"store"`
	DataDir    string   `yaml:"data_dir"`
	CookieName string   `yaml:"cookie_name"`
	SessionTTL Duration `yaml:"session_ttl"`
}

// SecurityConfig holds edge hardening settings.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text|json
	Audit  struct {
		Enabled bool   `yaml:"enabled"`
		Dir     string `yaml:"dir"`
	} `yaml:"audit"`
}

// ProbeConfig controls the periodic engine reachability probe.
type ProbeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

// DocsConfig controls the embedded API documentation endpoints.
type DocsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// AuthConfig is the auth configuration handed to the engine on every
// call. The gateway itself interprets only the handful of fields it
// needs for request synthesis (base path, session property, secret
// presence); everything else passes through to the engine opaquely.
type AuthConfig struct {
	Secret          string           `yaml:"secret"`
	TrustHost       bool             `yaml:"trust_host"`
	BasePath        string           `yaml:"base_path"`
	SessionProperty string           `yaml:"session_property"`
	Development     bool             `yaml:"development"`
	Session         SessionConfig    `yaml:"session"`
	Providers       []ProviderConfig `yaml:"providers"`
}

// SessionConfig carries session tuning passed through to the engine.
type SessionConfig struct {
	Strategy  string   `yaml:"strategy"`
	MaxAge    Duration `yaml:"max_age"`
	UpdateAge Duration `yaml:"update_age"`
}

// ProviderConfig describes one authentication provider entry.
type ProviderConfig struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// DefaultAuthConfig returns the built-in auth defaults that every
// merge starts from.
func DefaultAuthConfig() *AuthConfig {
	return &AuthConfig{
		BasePath:        "/auth",
		SessionProperty: "user",
		Session: SessionConfig{
			Strategy:  "jwt",
			MaxAge:    Duration(30 * 24 * time.Hour),
			UpdateAge: Duration(24 * time.Hour),
		},
	}
}

// MergeAuth layers auth configurations over the built-in defaults in
// precedence order: later layers win, field by field, and only
// populated fields override. Boolean fields only merge upward (a later
// layer can enable trust_host or development, never reset them); a
// caller that needs a hard reset passes a fully populated config as
// the sole layer.
func MergeAuth(layers ...*AuthConfig) *AuthConfig {
	out := DefaultAuthConfig()
	for _, l := range layers {
		if l == nil {
			continue
		}
		if l.Secret != "" {
			out.Secret = l.Secret
		}
		if l.TrustHost {
			out.TrustHost = true
		}
		if l.BasePath != "" {
			out.BasePath = NormalizeBasePath(l.BasePath)
		}
		if l.SessionProperty != "" {
			out.SessionProperty = l.SessionProperty
		}
		if l.Development {
			out.Development = true
		}
		if l.Session.Strategy != "" {
			out.Session.Strategy = l.Session.Strategy
		}
		if l.Session.MaxAge > 0 {
			out.Session.MaxAge = l.Session.MaxAge
		}
		if l.Session.UpdateAge > 0 {
			out.Session.UpdateAge = l.Session.UpdateAge
		}
		if len(l.Providers) > 0 {
			out.Providers = append([]ProviderConfig(nil), l.Providers...)
		}
	}
	return out
}

// NormalizeBasePath forces a leading slash and strips any trailing
// one, so path concatenation never doubles separators.
func NormalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/auth"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
