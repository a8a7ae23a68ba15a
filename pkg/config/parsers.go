package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr    string
	Runtime string
	Config  string
	Set     map[string]bool
}

// EnvResult describes what ParseConfigEnvs found in the environment.
type EnvResult struct {
	EnvUsed   bool
	SecretSet bool
}

// EffectiveConfigResult holds the result of LoadEffectiveConfig.
type EffectiveConfigResult struct {
	Config  *Config
	Addr    string
	Runtime string
	Source  string // "flags", "config", or "env"
}

// ParseConfigFlags parses command-line flags and returns them as a Flags struct.
func ParseConfigFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	runtimePtr := flag.String("runtime", "nethttp", "HTTP runtime: nethttp or fasthttp")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, Runtime: *runtimePtr, Config: *cfgPtr, Set: setFlags}
}

// ParseConfigFile resolves the config path and loads the YAML file. It
// returns the parsed config, a boolean indicating whether the file was
// present, and an error for fatal parsing problems.
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := Load(cfgPath)
	if err != nil {
		if os.IsNotExist(err) || strings.Contains(err.Error(), "config file not found") {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// ParseConfigEnvs reads SESSIONGATE_* environment variables into a
// fresh Config and reports whether any were present. It does not
// mutate any caller-provided config.
func ParseConfigEnvs() (*Config, EnvResult) {
	envCfg := &Config{}
	res := EnvResult{}
	mark := func() { res.EnvUsed = true }
	parseList := func(v string) []string {
		if v == "" {
			return nil
		}
		parts := []string{}
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}

	// Listener
	if v := os.Getenv("SESSIONGATE_SERVER_ADDR"); v == "" {
		v = os.Getenv("SESSIONGATE_ADDR")
		if v != "" {
			mark()
			applyAddr(envCfg, v)
		}
	} else {
		mark()
		applyAddr(envCfg, v)
	}
	if host := os.Getenv("SESSIONGATE_SERVER_ADDRESS"); host != "" {
		mark()
		envCfg.Server.Address = host
	}
	if port := os.Getenv("SESSIONGATE_SERVER_PORT"); port != "" {
		if pi, err := strconv.Atoi(port); err == nil {
			mark()
			envCfg.Server.Port = pi
		}
	}
	if v := os.Getenv("SESSIONGATE_RUNTIME"); v != "" {
		mark()
		envCfg.Server.Runtime = v
	}
	if c := os.Getenv("SESSIONGATE_TLS_CERT"); c != "" {
		mark()
		envCfg.Server.TLS.CertFile = c
	}
	if k := os.Getenv("SESSIONGATE_TLS_KEY"); k != "" {
		mark()
		envCfg.Server.TLS.KeyFile = k
	}

	// Engine
	if v := os.Getenv("SESSIONGATE_ENGINE_MODE"); v != "" {
		mark()
		envCfg.Engine.Mode = v
	}
	if v := os.Getenv("SESSIONGATE_ENGINE_ENDPOINT"); v != "" {
		mark()
		envCfg.Engine.Endpoint = v
	}
	if v := os.Getenv("SESSIONGATE_ENGINE_TIMEOUT"); v != "" {
		if d, err := parseDurationValue(v); err == nil {
			mark()
			envCfg.Engine.Timeout = d
		}
	}
	if v := os.Getenv("SESSIONGATE_ENGINE_STORE"); v != "" {
		mark()
		envCfg.Engine.Store = v
	}
	if v := os.Getenv("SESSIONGATE_ENGINE_DATA_DIR"); v != "" {
		mark()
		envCfg.Engine.DataDir = v
	}
	if v := os.Getenv("SESSIONGATE_ENGINE_COOKIE_NAME"); v != "" {
		mark()
		envCfg.Engine.CookieName = v
	}
	if v := os.Getenv("SESSIONGATE_ENGINE_SESSION_TTL"); v != "" {
		if d, err := parseDurationValue(v); err == nil {
			mark()
			envCfg.Engine.SessionTTL = d
		}
	}

	// Auth
	if v := os.Getenv("SESSIONGATE_AUTH_SECRET"); v != "" {
		mark()
		res.SecretSet = true
		envCfg.Auth.Secret = v
	}
	if v := os.Getenv("SESSIONGATE_AUTH_PROVIDERS"); v != "" {
		mark()
		for _, id := range parseList(v) {
			envCfg.Auth.Providers = append(envCfg.Auth.Providers, ProviderConfig{
				ID:   id,
				Name: id,
				Type: "credentials",
			})
		}
	}
	if v := os.Getenv("SESSIONGATE_AUTH_BASE_PATH"); v != "" {
		mark()
		envCfg.Auth.BasePath = v
	}
	if v := os.Getenv("SESSIONGATE_AUTH_TRUST_HOST"); v != "" {
		mark()
		envCfg.Auth.TrustHost = parseBoolValue(v)
	}
	if v := os.Getenv("SESSIONGATE_AUTH_DEVELOPMENT"); v != "" {
		mark()
		envCfg.Auth.Development = parseBoolValue(v)
	}
	if v := os.Getenv("SESSIONGATE_SESSION_PROPERTY"); v != "" {
		mark()
		envCfg.Auth.SessionProperty = v
	}

	// Security
	if v := os.Getenv("SESSIONGATE_CORS_ORIGINS"); v != "" {
		mark()
		envCfg.Security.CORS.AllowedOrigins = parseList(v)
	}
	if v := os.Getenv("SESSIONGATE_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			mark()
			envCfg.Security.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("SESSIONGATE_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			mark()
			envCfg.Security.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("SESSIONGATE_IP_WHITELIST"); v != "" {
		mark()
		envCfg.Security.IPWhitelist = parseList(v)
	}

	// Logging
	if v := os.Getenv("SESSIONGATE_LOG_LEVEL"); v != "" {
		mark()
		envCfg.Logging.Level = v
	}
	if v := os.Getenv("SESSIONGATE_LOG_FORMAT"); v != "" {
		mark()
		envCfg.Logging.Format = v
	}

	// Probe
	if v := os.Getenv("SESSIONGATE_PROBE_ENABLED"); v != "" {
		mark()
		envCfg.Probe.Enabled = parseBoolValue(v)
	}
	if v := os.Getenv("SESSIONGATE_PROBE_CRON"); v != "" {
		mark()
		envCfg.Probe.Cron = v
	}

	// Docs
	if v := os.Getenv("SESSIONGATE_DOCS_ENABLED"); v != "" {
		mark()
		envCfg.Docs.Enabled = parseBoolValue(v)
	}
	if v := os.Getenv("SESSIONGATE_DOCS_DIR"); v != "" {
		mark()
		envCfg.Docs.Dir = v
	}

	return envCfg, res
}

// LoadEffectiveConfig picks the effective configuration from flags,
// config file and environment. An explicit --config makes the file
// authoritative; otherwise flags override the file (or, when no file
// exists, the environment); with no flags the file wins over env. The
// auth secret is special-cased: SESSIONGATE_AUTH_SECRET overlays every
// source so secrets never have to live in files.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envRes EnvResult) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult

	base := func() *Config {
		if fileExists {
			return fileCfg
		}
		return envCfg
	}

	switch {
	case flags.Set["config"]:
		if !fileExists {
			return res, fmt.Errorf("config file %s not found", flags.Config)
		}
		res.Config = fileCfg
		res.Source = "config"

	case flags.Set["addr"] || flags.Set["runtime"]:
		cfg := *base()
		if flags.Set["addr"] {
			applyAddr(&cfg, flags.Addr)
		}
		if flags.Set["runtime"] {
			cfg.Server.Runtime = flags.Runtime
		}
		res.Config = &cfg
		res.Source = "flags"

	case fileExists:
		res.Config = fileCfg
		res.Source = "config"

	default:
		res.Config = envCfg
		res.Source = "env"
	}

	if envRes.SecretSet && res.Config.Auth.Secret == "" {
		res.Config.Auth.Secret = envCfg.Auth.Secret
	}

	res.Addr = res.Config.Addr()
	res.Runtime = res.Config.Server.Runtime
	return res, nil
}

func applyAddr(cfg *Config, addr string) {
	if h, p, err := net.SplitHostPort(addr); err == nil {
		cfg.Server.Address = h
		if pi, err := strconv.Atoi(p); err == nil {
			cfg.Server.Port = pi
		}
		return
	}
	cfg.Server.Address = addr
}

func parseBoolValue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func parseDurationValue(v string) (Duration, error) {
	raw := strings.TrimSpace(v)
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", v)
}
