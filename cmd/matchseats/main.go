package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/kirinyoku/matchseats/internal/app"
	"github.com/kirinyoku/matchseats/internal/config"
	"github.com/kirinyoku/matchseats/internal/pkg/logger"
)

func main() {
	boot, _ := logger.New(logger.Options{Env: "production"})

	cfg, err := config.Load(config.DefaultOptions())
	if err != nil {
		boot.Fatal("failed to load config", zap.Error(err))
	}

	log, err := logger.New(logger.Options{
		Env:      cfg.Log.Env,
		Level:    cfg.Log.Level,
		FilePath: cfg.Log.File,
	})
	if err != nil {
		boot.Fatal("failed to create logger", zap.Error(err))
	}
	logger.Set(log)
	defer logger.Sync()

	ctx := context.Background()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to create application", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		log.Error("application finished with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
