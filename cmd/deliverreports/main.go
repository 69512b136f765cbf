// Command deliverreports runs one pass of the daily report scheduler and
// exits. It is intended to be invoked from cron once an hour.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dannoetc/raterhub-tracker/internal/config"
	"github.com/dannoetc/raterhub-tracker/internal/mail"
	"github.com/dannoetc/raterhub-tracker/internal/report"
	"github.com/dannoetc/raterhub-tracker/internal/repository"
	"github.com/dannoetc/raterhub-tracker/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "deliverreports:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var logger *zap.Logger
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool)
	summaries := service.NewSummaryService(store, logger)
	renderer := report.NewRenderer()
	mailer := mail.NewSMTPMailer(cfg)
	reports := service.NewReportService(store, summaries, renderer, mailer, cfg.EmailSendingEnabled, logger)

	delivered, err := reports.DeliverDailyReports(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	for _, addr := range delivered {
		fmt.Println(addr)
	}
	logger.Info("report delivery pass complete", zap.Int("delivered", len(delivered)))
	return nil
}
