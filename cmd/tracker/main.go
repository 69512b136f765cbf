package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/dannoetc/raterhub-tracker/internal/config"
	httptransport "github.com/dannoetc/raterhub-tracker/internal/http"
	"github.com/dannoetc/raterhub-tracker/internal/http/handler"
	httpmiddleware "github.com/dannoetc/raterhub-tracker/internal/http/middleware"
	"github.com/dannoetc/raterhub-tracker/internal/mail"
	"github.com/dannoetc/raterhub-tracker/internal/migrations"
	"github.com/dannoetc/raterhub-tracker/internal/report"
	"github.com/dannoetc/raterhub-tracker/internal/repository"
	"github.com/dannoetc/raterhub-tracker/internal/server"
	"github.com/dannoetc/raterhub-tracker/internal/service"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newPGXPool,
			newStore,
			newRenderer,
			newMailer,
			newAuthService,
			newTrackerService,
			newSummaryService,
			newReportService,
			handler.NewAuthHandler,
			newTrackerHandler,
			newAuthMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := migrations.Up(ctx, cfg.DatabaseURL); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newStore(pool *pgxpool.Pool) repository.Store {
	return repository.NewPostgresStore(pool)
}

func newRenderer() service.ReportRenderer {
	return report.NewRenderer()
}

func newMailer(cfg config.Config) service.Mailer {
	return mail.NewSMTPMailer(cfg)
}

func newAuthService(store repository.Store, cfg config.Config, logger *zap.Logger) *service.AuthService {
	return service.NewAuthService(store, cfg.JWTSecret, cfg.AccessTokenTTL, logger)
}

func newTrackerService(store repository.Store, cfg config.Config, logger *zap.Logger) *service.TrackerService {
	return service.NewTrackerService(store, cfg.DefaultTargetMinutes, logger)
}

func newSummaryService(store repository.Store, logger *zap.Logger) *service.SummaryService {
	return service.NewSummaryService(store, logger)
}

func newReportService(store repository.Store, summaries *service.SummaryService, renderer service.ReportRenderer, mailer service.Mailer, cfg config.Config, logger *zap.Logger) *service.ReportService {
	return service.NewReportService(store, summaries, renderer, mailer, cfg.EmailSendingEnabled, logger)
}

func newTrackerHandler(tracker *service.TrackerService, summaries *service.SummaryService, reports *service.ReportService, renderer service.ReportRenderer) *handler.TrackerHandler {
	return handler.NewTrackerHandler(tracker, summaries, reports, renderer)
}

func newAuthMiddleware(authService *service.AuthService) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{AuthService: authService}
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
