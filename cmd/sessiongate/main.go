package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"

	"sessiongate/internal/app"
	"sessiongate/pkg/config"
	"sessiongate/pkg/logger"
	"sessiongate/pkg/shutdown"
)

// set build metadata
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// load .env file if present
	_ = godotenv.Load(".env")

	// parse config flags
	flags := config.ParseConfigFlags()

	// parse config file
	fileCfg, fileExists, err := config.ParseConfigFile(flags)
	if err != nil {
		shutdown.Abort("failed to load config file", err, "")
	}

	// parse config env variables
	envCfg, envRes := config.ParseConfigEnvs()

	// load effective config
	eff, err := config.LoadEffectiveConfig(flags, fileCfg, fileExists, envCfg, envRes)
	if err != nil {
		shutdown.Abort("failed to build effective config", err, "")
	}

	// initialize logger after config is fully loaded
	logger.InitWith(eff.Config.Logging.Level, eff.Config.Logging.Format)
	defer logger.Sync()

	if eff.Config.Logging.Audit.Enabled {
		dir := eff.Config.Logging.Audit.Dir
		if dir == "" {
			dir = "./audit"
		}
		if err := logger.AttachAuditFileSink(dir); err != nil {
			logger.Error("audit_sink_attach_failed", "dir", dir, "error", err)
		}
	}

	logger.Info("effective_config_loaded", "source", eff.Source, "addr", eff.Addr, "runtime", eff.Runtime)

	// initialize the gateway
	a, err := app.New(eff, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("failed to initialize gateway", err, eff.Config.Engine.DataDir)
	}

	// set up context and signal handling for graceful shutdown
	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	// run the gateway
	if err := a.Run(ctx); err != nil {
		shutdown.Abort("gateway run failed", err, eff.Config.Engine.DataDir)
	}

	// shutdown with a bounded timeout so teardown cannot hang forever
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer shutdownCancel()
	_ = a.Shutdown(shutdownCtx)
}
