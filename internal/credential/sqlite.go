package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/BLNCname/GMailSecretary/internal/crypto"
	"github.com/BLNCname/GMailSecretary/internal/models"
	"golang.org/x/oauth2"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS auth_tokens (
	user_id    TEXT PRIMARY KEY,
	email      TEXT NOT NULL DEFAULT '',
	token      BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLiteRepository is a single-file credential store for small deployments.
type SQLiteRepository struct {
	db        *sql.DB
	encryptor *crypto.Encryptor
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string, encryptor *crypto.Encryptor) (*SQLiteRepository, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One writer at a time; sqlite serializes anyway.
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create auth_tokens table: %w", err)
	}

	return &SQLiteRepository{db: conn, encryptor: encryptor}, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) Save(ctx context.Context, cred *models.Credential) error {
	sealed, err := r.encryptor.SealJSON(tokenOf(cred))
	if err != nil {
		return fmt.Errorf("failed to seal token: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO auth_tokens (user_id, email, token, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`, cred.UserID, cred.Email, sealed)
	if err != nil {
		return fmt.Errorf("failed to save auth token: %w", err)
	}

	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, userID string) (*models.Credential, error) {
	var (
		email  string
		sealed []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT email, token FROM auth_tokens WHERE user_id = ?
	`, userID).Scan(&email, &sealed)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auth token: %w", err)
	}

	var token oauth2.Token
	if err := r.encryptor.OpenJSON(sealed, &token); err != nil {
		return nil, fmt.Errorf("failed to open token for user %s: %w", userID, err)
	}

	return &models.Credential{UserID: userID, Email: email, Token: &token}, nil
}

func (r *SQLiteRepository) UserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM auth_tokens ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list auth tokens: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan auth token: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
