package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/BLNCname/GMailSecretary/internal/crypto"
	"github.com/BLNCname/GMailSecretary/internal/db"
	"github.com/BLNCname/GMailSecretary/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"
)

// PostgresRepository stores sealed token JSON in the auth_tokens table.
type PostgresRepository struct {
	pool      *pgxpool.Pool
	encryptor *crypto.Encryptor
}

func NewPostgresRepository(pool *pgxpool.Pool, encryptor *crypto.Encryptor) *PostgresRepository {
	return &PostgresRepository{pool: pool, encryptor: encryptor}
}

func (r *PostgresRepository) Save(ctx context.Context, cred *models.Credential) error {
	sealed, err := r.encryptor.SealJSON(tokenOf(cred))
	if err != nil {
		return fmt.Errorf("failed to seal token: %w", err)
	}

	return db.SaveAuthToken(ctx, r.pool, &models.AuthToken{
		UserID:         cred.UserID,
		Email:          cred.Email,
		EncryptedToken: sealed,
	})
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.Credential, error) {
	row, err := db.GetAuthToken(ctx, r.pool, userID)
	if errors.Is(err, db.ErrAuthTokenNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var token oauth2.Token
	if err := r.encryptor.OpenJSON(row.EncryptedToken, &token); err != nil {
		return nil, fmt.Errorf("failed to open token for user %s: %w", userID, err)
	}

	return &models.Credential{UserID: row.UserID, Email: row.Email, Token: &token}, nil
}

func (r *PostgresRepository) UserIDs(ctx context.Context) ([]string, error) {
	rows, err := db.ListAuthTokens(ctx, r.pool)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.UserID)
	}
	return ids, nil
}
