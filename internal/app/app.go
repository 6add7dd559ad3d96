// Package app assembles ResumeVault's components from a Config. The HTTP
// server, the asynq worker and the CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/ResumeVault/internal/api"
	"github.com/dharsanguruparan/ResumeVault/internal/config"
	"github.com/dharsanguruparan/ResumeVault/internal/database"
	"github.com/dharsanguruparan/ResumeVault/internal/extract"
	"github.com/dharsanguruparan/ResumeVault/internal/llm"
	"github.com/dharsanguruparan/ResumeVault/internal/logger"
	"github.com/dharsanguruparan/ResumeVault/internal/normalize"
	"github.com/dharsanguruparan/ResumeVault/internal/objectstore"
	"github.com/dharsanguruparan/ResumeVault/internal/queue"
	"github.com/dharsanguruparan/ResumeVault/internal/repository"
	"github.com/dharsanguruparan/ResumeVault/internal/scheduler"
	"github.com/dharsanguruparan/ResumeVault/internal/search"
	"github.com/dharsanguruparan/ResumeVault/internal/signing"
	"github.com/dharsanguruparan/ResumeVault/internal/tier"
)

// App holds the long-lived components.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Pool     *pgxpool.Pool
	Store    repository.Store
	Objects  objectstore.Store
	Resolver *tier.Resolver
	Search   *search.Engine

	schedOnce sync.Once
	sched     *scheduler.Scheduler
	schedErr  error

	client *asynq.Client
}

// New connects storage and builds the read-side components. The pipeline is
// built on first use by Scheduler.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	log = logger.OrNop(log)
	a := &App{Config: cfg, Logger: log}

	if err := extract.SetLicenseKey(cfg.Extract.UnidocLicense); err != nil {
		return nil, err
	}

	a.Resolver = tier.Default()
	if cfg.Tier.TablesFile != "" {
		tables, err := tier.LoadTables(cfg.Tier.TablesFile)
		if err != nil {
			return nil, err
		}
		a.Resolver = tier.NewResolver(tables)
	}

	if cfg.Database.URL != "" {
		pool, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.Pool = pool
		if cfg.Database.AutoMigrate {
			if err := database.EnsureSchema(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("ensure schema: %w", err)
			}
		}
		a.Store = repository.NewDocumentRepository(pool)
	} else {
		log.Warn("database.url is empty, documents are kept in memory")
		a.Store = repository.NewMemoryStore()
	}

	objects, err := newObjectStore(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Objects = objects
	a.Search = search.NewEngine(a.Store, a.Resolver, log.Named("search"))
	return a, nil
}

func newObjectStore(ctx context.Context, cfg config.StorageConfig) (objectstore.Store, error) {
	switch cfg.Driver {
	case config.StorageMinIO:
		store, err := objectstore.NewMinIO(objectstore.MinIOConfig{
			Endpoint:      cfg.Endpoint,
			AccessKey:     cfg.AccessKey,
			SecretKey:     cfg.SecretKey,
			UseSSL:        cfg.UseSSL,
			Region:        cfg.Region,
			Bucket:        cfg.Bucket,
			PublicBaseURL: cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("init minio: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
		return store, nil
	case config.StorageS3:
		store, err := objectstore.NewS3(ctx, objectstore.S3Config{
			Endpoint:      cfg.Endpoint,
			Region:        cfg.Region,
			AccessKey:     cfg.AccessKey,
			SecretKey:     cfg.SecretKey,
			Bucket:        cfg.Bucket,
			PublicBaseURL: cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3: %w", err)
		}
		return store, nil
	default:
		return objectstore.NewMemory(""), nil
	}
}

// NewCompleter builds the configured LLM client wrapped with retries.
func NewCompleter(ctx context.Context, cfg config.LLMConfig, log *zap.Logger) (llm.Completer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm.api_key is required")
	}
	var (
		base llm.Completer
		err  error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		base, err = llm.NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout, log)
	default:
		base, err = llm.NewGemini(ctx, cfg.APIKey, cfg.Model, cfg.Timeout, log)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s client: %w", cfg.Provider, err)
	}
	return llm.WithRetry(base, cfg.MaxAttempts, cfg.Backoff, log), nil
}

// Scheduler returns the processing pipeline, building it on first call.
func (a *App) Scheduler(ctx context.Context) (*scheduler.Scheduler, error) {
	a.schedOnce.Do(func() {
		completer, err := NewCompleter(ctx, a.Config.LLM, a.Logger.Named("llm"))
		if err != nil {
			a.schedErr = err
			return
		}
		a.sched = scheduler.New(scheduler.Deps{
			Store:      a.Store,
			Objects:    a.Objects,
			Extractor:  extract.New(a.Config.Portrait, a.Logger.Named("extract")),
			LLM:        completer,
			Normalizer: normalize.New(a.Resolver, a.Logger.Named("normalize")),
			Logger:     a.Logger.Named("scheduler"),
		}, a.Config.Pipeline)
	})
	return a.sched, a.schedErr
}

// Dispatcher returns where uploads and reanalysis requests are sent: the
// in-process scheduler or the asynq queue.
func (a *App) Dispatcher(ctx context.Context) (api.Dispatcher, error) {
	if a.Config.Dispatch.Mode == config.DispatchQueue {
		if a.client == nil {
			a.client = asynq.NewClient(a.RedisOpt())
		}
		return queue.NewDispatcher(a.client), nil
	}
	sched, err := a.Scheduler(ctx)
	if err != nil {
		return nil, err
	}
	return scheduler.InlineDispatcher{Scheduler: sched}, nil
}

// RedisOpt is the asynq connection shared by client and worker.
func (a *App) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	}
}

// APIServer builds the HTTP server.
func (a *App) APIServer(ctx context.Context) (*api.Server, error) {
	dispatcher, err := a.Dispatcher(ctx)
	if err != nil {
		return nil, err
	}
	return api.New(api.Options{
		Address:        a.Config.HTTP.Address,
		MaxUploadBytes: a.Config.HTTP.MaxUploadBytes,
		PublicBaseURL:  a.Config.HTTP.PublicBaseURL,
		SignedURLTTL:   a.Config.HTTP.SignedURLTTL,
	}, api.Deps{
		Store:      a.Store,
		Objects:    a.Objects,
		Dispatcher: dispatcher,
		Search:     a.Search,
		Signer:     signing.NewSigner(a.Config.SigningKey()),
		Logger:     a.Logger.Named("api"),
	}), nil
}

// Close waits for in-process work and releases connections.
func (a *App) Close() {
	if a.sched != nil {
		a.sched.Wait()
	}
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			a.Logger.Warn("close asynq client", zap.Error(err))
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
