package app

import (
	"context"
	"fmt"

	"github.com/BLNCname/GMailSecretary/internal/config"
	"github.com/BLNCname/GMailSecretary/internal/credential"
	"github.com/BLNCname/GMailSecretary/internal/crypto"
	"github.com/BLNCname/GMailSecretary/internal/db"
	"github.com/BLNCname/GMailSecretary/internal/mailbox"
)

// OpenRepository opens the configured credential store and returns a function
// that releases it.
func OpenRepository(ctx context.Context, cfg *config.Config) (credential.Repository, func(), error) {
	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKeyBase64)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	switch cfg.CredentialStore {
	case config.StoreSQLite:
		repo, err := credential.OpenSQLite(ctx, cfg.SQLitePath, encryptor)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil

	case config.StorePostgres:
		pool, err := db.NewConnection(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx, pool); err != nil {
			db.CloseConnection(pool)
			return nil, nil, err
		}
		return credential.NewPostgresRepository(pool, encryptor), func() { db.CloseConnection(pool) }, nil

	default:
		return nil, nil, fmt.Errorf("unknown credential store %q", cfg.CredentialStore)
	}
}

// NewMailboxClient returns the configured mailbox client.
func NewMailboxClient(cfg *config.Config) mailbox.Client {
	if cfg.MailboxProvider == config.ProviderIMAP {
		return mailbox.NewIMAPClient(cfg.IMAPServer, cfg.IMAPUseTLS, cfg.IMAPPlainLogin)
	}
	return mailbox.NewGmailClient(
		mailbox.WithEndpoint(cfg.GmailEndpoint),
		mailbox.WithRateLimit(cfg.GmailRequestsPerS, max(int(cfg.GmailRequestsPerS), 1)),
	)
}
