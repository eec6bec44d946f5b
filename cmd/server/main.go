package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/BLNCname/GMailSecretary/internal/app"
	"github.com/BLNCname/GMailSecretary/internal/config"
	"github.com/BLNCname/GMailSecretary/internal/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("Secretary stopped with an error", zap.Error(err))
	}
	zl.Info("Secretary stopped")
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	repo, closeRepo, err := app.OpenRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	a, err := app.New(cfg, repo, app.NewMailboxClient(cfg), zl)
	if err != nil {
		return err
	}

	zl.Info("Secretary starting",
		zap.String("environment", cfg.Environment),
		zap.String("credential_store", cfg.CredentialStore),
		zap.String("mailbox_provider", cfg.MailboxProvider),
	)
	return a.Run(ctx)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Environment == "development",
		LogFile:     cfg.LogFile,
	})
}
