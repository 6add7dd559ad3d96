// Command worker consumes document tasks from Redis and runs the pipeline.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/ResumeVault/internal/app"
	"github.com/dharsanguruparan/ResumeVault/internal/config"
	"github.com/dharsanguruparan/ResumeVault/internal/logger"
	"github.com/dharsanguruparan/ResumeVault/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default resumevault.yaml if present)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	l, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = l.Sync() }()

	a, err := app.New(ctx, cfg, l)
	if err != nil {
		l.Fatal("init app", zap.Error(err))
	}
	defer a.Close()

	pipeline, err := a.Scheduler(ctx)
	if err != nil {
		l.Fatal("init pipeline", zap.Error(err))
	}

	server := asynq.NewServer(a.RedisOpt(), asynq.Config{
		Concurrency: cfg.Pipeline.Workers,
		Logger:      l.Named("asynq").Sugar(),
	})
	processor := worker.NewProcessor(pipeline, l.Named("worker"))
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	if err := server.Run(mux); err != nil {
		l.Error("worker stopped", zap.Error(err))
		a.Close()
		os.Exit(1)
	}
}
