package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"chatledger/internal/app"
	"chatledger/pkg/config"
	"chatledger/pkg/logger"
	"chatledger/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load(".env")

	flags := config.ParseConfigFlags()
	cfgPath := config.ResolveConfigPath(flags.Config, flags.Set["config"])

	eff, err := config.LoadEffective(cfgPath, flags)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.InitWithLevel(eff.Config.Logging.Level)

	a, err := app.New(eff, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("startup failed", err, eff.DBPath, 0)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		logger.Error("server_exit", "error", err)
		os.Exit(1)
	}
	logger.Info("server_stopped")
}
