package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BLNCname/GMailSecretary/internal/app"
	"github.com/BLNCname/GMailSecretary/internal/config"
	"github.com/BLNCname/GMailSecretary/internal/credential"
	"github.com/BLNCname/GMailSecretary/internal/crypto"
	"github.com/BLNCname/GMailSecretary/internal/db"
	"github.com/BLNCname/GMailSecretary/internal/logger"
	"github.com/BLNCname/GMailSecretary/internal/models"
	"github.com/BLNCname/GMailSecretary/internal/testutil"
	"github.com/emersion/go-imap/backend/memory"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	demoUserID   = "demo"
	demoAPIToken = "dev-token"
	// The go-imap memory backend has exactly one account.
	imapUsername = "username"
	imapPassword = "password"
	// deliveryEvery is how often a fresh message lands in the demo inbox.
	deliveryEvery = 20 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zl, err := logger.New(logger.Config{Level: "debug", Development: true})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	if err := run(ctx, zl); err != nil {
		zl.Fatal("Dev server failed", zap.Error(err))
	}
}

func run(ctx context.Context, zl *zap.Logger) error {
	container, connStr, err := startPostgres(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := container.Terminate(context.Background()); err != nil {
			zl.Warn("Failed to terminate Postgres container", zap.Error(err))
		}
	}()

	imapAddr, closeIMAP, err := startIMAP()
	if err != nil {
		return err
	}
	defer closeIMAP()

	cfg := devConfig(imapAddr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKeyBase64)
	if err != nil {
		return fmt.Errorf("failed to create encryptor: %w", err)
	}
	repo := credential.NewPostgresRepository(pool, encryptor)
	if err := repo.Save(ctx, &models.Credential{
		UserID: demoUserID,
		Email:  imapUsername,
		Token:  &oauth2.Token{AccessToken: imapPassword, TokenType: "Bearer"},
	}); err != nil {
		return fmt.Errorf("failed to seed demo credential: %w", err)
	}

	a, err := app.New(cfg, repo, app.NewMailboxClient(cfg), zl)
	if err != nil {
		return err
	}

	go deliverPeriodically(ctx, imapAddr, zl)

	zl.Info("Dev server ready",
		zap.String("address", "http://localhost:"+cfg.Port),
		zap.String("api_token", demoAPIToken),
		zap.String("imap", imapAddr),
	)
	return a.Run(ctx)
}

func devConfig(imapAddr string) *config.Config {
	return &config.Config{
		Environment:         "development",
		EncryptionKeyBase64: testutil.TestEncryptionKey(),
		Port:                "8080",
		CredentialStore:     config.StorePostgres,
		MailboxProvider:     config.ProviderIMAP,
		IMAPServer:          imapAddr,
		IMAPUseTLS:          false,
		IMAPPlainLogin:      true,
		GoogleClientID:      "dev-client",
		GoogleClientSecret:  "dev-secret",
		GoogleRedirectURL:   "http://localhost:8080/api/v1/auth/callback",
		BootstrapCount:      50,
		BootstrapPageSize:   50,
		PollCount:           5,
		PollPageSize:        5,
		PollInterval:        5 * time.Second,
		TickDeadline:        4 * time.Second,
		CallTimeout:         2 * time.Second,
		BackfillTimeout:     2 * time.Minute,
		PublishTimeout:      5 * time.Second,
		EmbeddingDimensions: 256,
		APITokensRaw:        demoAPIToken + ":" + demoUserID,
	}
}

// startPostgres starts a throwaway Postgres database using testcontainers.
func startPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("secretary_dev"),
		postgres.WithUsername("secretary"),
		postgres.WithPassword("secretary"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start Postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get connection string: %w", err)
	}
	return container, connStr, nil
}

// startIMAP serves the in-memory IMAP backend on a random local port.
func startIMAP() (string, func(), error) {
	s := server.New(memory.New())
	s.AllowInsecureAuth = true

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("failed to listen for IMAP: %w", err)
	}
	go func() { _ = s.Serve(listener) }()

	return listener.Addr().String(), func() { _ = s.Close() }, nil
}

func deliverPeriodically(ctx context.Context, addr string, zl *zap.Logger) {
	ticker := time.NewTicker(deliveryEvery)
	defer ticker.Stop()

	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			raw := testutil.RawMail(
				fmt.Sprintf("Demo message %d", n),
				"Demo Sender <sender@example.com>",
				"username@example.org",
				now.Format(time.RFC1123Z),
				fmt.Sprintf("This is demo message number %d.", n),
			)
			if err := appendMessage(addr, raw); err != nil {
				zl.Warn("Failed to deliver demo message", zap.Error(err))
			}
		}
	}
}

func appendMessage(addr string, raw []byte) error {
	c, err := imapclient.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = c.Logout() }()

	if err := c.Login(imapUsername, imapPassword); err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}
	if err := c.Append("INBOX", nil, time.Now(), bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("failed to append: %w", err)
	}
	return nil
}
