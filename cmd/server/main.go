package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/wadjakorntonsri/ns-shortener/pkg/app"
	"github.com/wadjakorntonsri/ns-shortener/pkg/config"
	"github.com/wadjakorntonsri/ns-shortener/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	app.InitLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize application")
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		logging.Error().Err(err).Msg("server stopped with error")
		a.Close()
		os.Exit(1)
	}
	logging.Info().Msg("server stopped")
}
