package credential

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/BLNCname/GMailSecretary/internal/models"
	"github.com/BLNCname/GMailSecretary/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// exerciseRepository runs the shared insert-or-replace contract against repo.
func exerciseRepository(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()
	expiry := time.Date(2030, 1, 2, 10, 0, 0, 0, time.UTC)

	t.Run("returns ErrNotFound for unknown user", func(t *testing.T) {
		_, err := repo.Get(ctx, "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("round-trips a credential", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, &models.Credential{
			UserID: "200",
			Email:  "alice@example.com",
			Token:  &oauth2.Token{AccessToken: "a1", RefreshToken: "r1", Expiry: expiry},
		}))

		cred, err := repo.Get(ctx, "200")
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", cred.Email)
		assert.Equal(t, "a1", cred.Token.AccessToken)
		assert.Equal(t, "r1", cred.Token.RefreshToken)
		assert.True(t, cred.Token.Expiry.Equal(expiry))
	})

	t.Run("replaces on save", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, &models.Credential{
			UserID: "200",
			Email:  "alice@example.com",
			Token:  &oauth2.Token{AccessToken: "a2", RefreshToken: "r1", Expiry: expiry},
		}))

		cred, err := repo.Get(ctx, "200")
		require.NoError(t, err)
		assert.Equal(t, "a2", cred.Token.AccessToken)
	})

	t.Run("lists user ids in order", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, &models.Credential{
			UserID: "100",
			Token:  &oauth2.Token{AccessToken: "b1"},
		}))

		ids, err := repo.UserIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"100", "200"}, ids)
	})
}

func TestMemoryRepository(t *testing.T) {
	exerciseRepository(t, NewMemoryRepository())

	t.Run("returns copies", func(t *testing.T) {
		repo := NewMemoryRepository()
		ctx := context.Background()
		require.NoError(t, repo.Save(ctx, &models.Credential{UserID: "x", Token: &oauth2.Token{AccessToken: "one"}}))

		cred, _ := repo.Get(ctx, "x")
		cred.Token.AccessToken = "mutated"

		again, _ := repo.Get(ctx, "x")
		assert.Equal(t, "one", again.Token.AccessToken)
	})
}

func TestSQLiteRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.db")
	repo, err := OpenSQLite(context.Background(), path, testutil.GetTestEncryptor(t))
	require.NoError(t, err)
	defer func() { _ = repo.Close() }()

	exerciseRepository(t, repo)

	t.Run("stores the token sealed", func(t *testing.T) {
		var raw []byte
		err := repo.db.QueryRow(`SELECT token FROM auth_tokens WHERE user_id = '200'`).Scan(&raw)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "a2")
	})
}

func TestPostgresRepository(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	exerciseRepository(t, NewPostgresRepository(pool, testutil.GetTestEncryptor(t)))
}
