package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/BLNCname/GMailSecretary/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAuthTokenNotFound is returned when no token is stored for a user.
var ErrAuthTokenNotFound = errors.New("auth token not found")

// SaveAuthToken inserts or replaces the token row for the user.
func SaveAuthToken(ctx context.Context, pool *pgxpool.Pool, token *models.AuthToken) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO auth_tokens (user_id, email, encrypted_token)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			encrypted_token = EXCLUDED.encrypted_token,
			updated_at = NOW()
	`, token.UserID, token.Email, token.EncryptedToken)

	if err != nil {
		return fmt.Errorf("failed to save auth token: %w", err)
	}

	return nil
}

// GetAuthToken returns the stored token row for the user.
func GetAuthToken(ctx context.Context, pool *pgxpool.Pool, userID string) (*models.AuthToken, error) {
	var token models.AuthToken

	err := pool.QueryRow(ctx, `
		SELECT user_id, email, encrypted_token, created_at, updated_at
		FROM auth_tokens
		WHERE user_id = $1
	`, userID).Scan(
		&token.UserID,
		&token.Email,
		&token.EncryptedToken,
		&token.CreatedAt,
		&token.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAuthTokenNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get auth token: %w", err)
	}

	return &token, nil
}

// ListAuthTokens returns every stored token row ordered by user id.
func ListAuthTokens(ctx context.Context, pool *pgxpool.Pool) ([]models.AuthToken, error) {
	rows, err := pool.Query(ctx, `
		SELECT user_id, email, encrypted_token, created_at, updated_at
		FROM auth_tokens
		ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list auth tokens: %w", err)
	}
	defer rows.Close()

	var tokens []models.AuthToken
	for rows.Next() {
		var token models.AuthToken
		if err := rows.Scan(
			&token.UserID,
			&token.Email,
			&token.EncryptedToken,
			&token.CreatedAt,
			&token.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan auth token: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate auth tokens: %w", err)
	}

	return tokens, nil
}
