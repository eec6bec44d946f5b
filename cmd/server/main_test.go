package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/BLNCname/GMailSecretary/internal/config"
	"github.com/BLNCname/GMailSecretary/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMainWithConfig(t *testing.T) {
	t.Setenv("SECRETARY_ENV", "production")
	t.Setenv("SECRETARY_ENCRYPTION_KEY_BASE64", testutil.TestEncryptionKey())
	t.Setenv("SECRETARY_CREDENTIAL_STORE", "sqlite")
	t.Setenv("SECRETARY_SQLITE_PATH", filepath.Join(t.TempDir(), "secretary.db"))
	t.Setenv("SECRETARY_GOOGLE_CLIENT_ID", "client")
	t.Setenv("SECRETARY_GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("PORT", "0")

	cfg, err := config.NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "0", cfg.Port)

	zl, err := newLogger(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zl) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRunFailsOnBadStore(t *testing.T) {
	cfg := &config.Config{
		EncryptionKeyBase64: "not base64!",
		CredentialStore:     config.StoreSQLite,
	}

	err := run(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}
