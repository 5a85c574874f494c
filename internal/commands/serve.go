package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nholding/cycle-book/internal/config"
	"github.com/nholding/cycle-book/internal/db"
	"github.com/nholding/cycle-book/internal/httpapi"
	"github.com/nholding/cycle-book/internal/jobs"
	"github.com/nholding/cycle-book/internal/logging"
	"github.com/nholding/cycle-book/internal/observability"
	"github.com/nholding/cycle-book/internal/period/domain"
	"github.com/nholding/cycle-book/internal/period/repository"
	"github.com/nholding/cycle-book/internal/period/service"
)

// Version is stamped at build time with -ldflags "-X ...commands.Version=...".
var Version = "dev"

// Serve runs the API until SIGINT or SIGTERM.
func Serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "Path to the YAML config (created on first run)")
	envFile := fs.String("env-file", ".env", "Optional .env file with environment overrides")
	listen := fs.String("listen", "", "Listen address, overrides the config")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Closer()
	logger := log.Base

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, Version)
	if err != nil {
		logger.Warn("sentry disabled", zap.Error(err))
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("cycle-book starting",
		zap.String("version", Version),
		zap.String("listen", cfg.Listen),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("timezone", cfg.Timezone),
		zap.Bool("auth", cfg.AuthEnabled()),
	)

	store, err := openStorage(ctx, cfg)
	if err != nil {
		observability.CaptureErr(err)
		return err
	}
	defer store.close()

	syncer := service.NewSyncer(store.repo, logger, cfg.Sync.QueueSize, cfg.Sync.Timeout)
	go syncer.Run(ctx)
	defer syncer.Close()

	loc := cfg.Location()
	svc := service.NewPeriodService(store.repo, syncer, log.Component("period"),
		service.WithLocation(loc),
		service.WithStoreOptions(domain.WithMaxPeriodDays(cfg.Periods.MaxDays)),
	)

	runner := jobs.New(ctx, loc, logger)
	check := jobs.OpenPeriodCheck(svc, cfg.Jobs.MaxOpenDays, log.Component("jobs"))
	if err := runner.Schedule(cfg.Jobs.OpenPeriodCron, jobs.OpenPeriodCheckName, check); err != nil {
		return err
	}
	runner.Start()
	defer runner.Stop()

	var auth *httpapi.BasicAuth
	if cfg.AuthEnabled() {
		if auth, err = httpapi.NewBasicAuth(cfg.Auth.Username, cfg.Auth.PasswordHash, log.Component("auth")); err != nil {
			return err
		}
	} else {
		logger.Warn("basic auth disabled, every request uses the local session",
			zap.String("owner", httpapi.LocalOwner))
	}

	api := httpapi.NewServer(svc, httpapi.Options{
		Logger: log.Component("http"),
		Auth:   auth,
		Health: store.health,
	})
	hs, err := httpapi.Start(ctx, cfg.Listen, api.Handler(), logger)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}

	err = hs.Wait()
	observability.CaptureErr(err)
	logger.Info("cycle-book stopping")
	return err
}

type storage struct {
	repo   repository.PeriodRepository
	health func(ctx context.Context) error
	close  func()
}

// openStorage builds the repository selected by storage.driver.
func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return &storage{repo: repository.NewMemoryPeriodRepository(), close: func() {}}, nil

	case config.DriverPostgres:
		repo, err := repository.NewRdsPeriodRepository(ctx, cfg.ClientConfig())
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(repo.DB()); err != nil {
			_ = repo.DB().Close()
			return nil, err
		}
		return &storage{
			repo:   repo,
			health: repo.DB().PingContext,
			close:  func() { _ = repo.DB().Close() },
		}, nil

	case config.DriverS3:
		repo, err := repository.NewS3PeriodRepositoryFromConfig(ctx, cfg.ClientConfig())
		if err != nil {
			return nil, err
		}
		return &storage{repo: repo, close: func() {}}, nil
	}

	return nil, errors.New("unknown storage driver " + cfg.Storage.Driver)
}
