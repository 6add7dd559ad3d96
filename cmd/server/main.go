// Command server runs the ResumeVault HTTP API. In inline dispatch mode it
// also runs the processing pool.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/ResumeVault/internal/app"
	"github.com/dharsanguruparan/ResumeVault/internal/config"
	"github.com/dharsanguruparan/ResumeVault/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default resumevault.yaml if present)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	l, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = l.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, l)
	if err != nil {
		l.Fatal("init app", zap.Error(err))
	}
	defer a.Close()

	srv, err := a.APIServer(ctx)
	if err != nil {
		l.Fatal("init server", zap.Error(err))
	}
	l.Info("resumevault starting",
		zap.String("dispatch", cfg.Dispatch.Mode),
		zap.String("storage", cfg.Storage.Driver),
		zap.String(logger.FieldProvider, cfg.LLM.Provider))

	if err := srv.Run(ctx); err != nil {
		l.Error("server stopped", zap.Error(err))
		a.Close()
		os.Exit(1)
	}
}
