package mailbox

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/BLNCname/GMailSecretary/internal/models"
	"github.com/BLNCname/GMailSecretary/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func imapCredential(server *testutil.TestIMAPServer) *models.Credential {
	return &models.Credential{
		UserID: "u1",
		Email:  server.Username(),
		Token:  &oauth2.Token{AccessToken: server.Password()},
	}
}

func TestIMAPClientListRecent(t *testing.T) {
	server := testutil.NewTestIMAPServer(t)
	for i := 1; i <= 4; i++ {
		server.AppendRaw(t, testutil.RawMail(
			fmt.Sprintf("IMAP %d", i), "sender@example.com", "username@example.com",
			"Tue, 02 Jan 2024 09:00:00 +0000", "hello",
		))
	}
	total := int(server.InboxSize(t))

	client := NewIMAPClient(server.Address, false, true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("returns newest first", func(t *testing.T) {
		messages, err := client.ListRecent(ctx, imapCredential(server), 3, 2)
		require.NoError(t, err)
		require.Len(t, messages, 3)

		assert.Contains(t, string(messages[0].Raw), "Subject: IMAP 4")
		assert.Contains(t, string(messages[1].Raw), "Subject: IMAP 3")
		assert.Contains(t, string(messages[2].Raw), "Subject: IMAP 2")

		first, err := strconv.Atoi(messages[0].ID)
		require.NoError(t, err)
		second, err := strconv.Atoi(messages[1].ID)
		require.NoError(t, err)
		assert.Greater(t, first, second)
	})

	t.Run("stops at the start of the mailbox", func(t *testing.T) {
		messages, err := client.ListRecent(ctx, imapCredential(server), 100, 3)
		require.NoError(t, err)
		assert.Len(t, messages, total)
	})

	t.Run("fails on bad credentials", func(t *testing.T) {
		cred := imapCredential(server)
		cred.Token = &oauth2.Token{AccessToken: "wrong"}

		_, err := client.ListRecent(ctx, cred, 1, 1)
		assert.Error(t, err)
	})

	t.Run("fails when the server is unreachable", func(t *testing.T) {
		unreachable := NewIMAPClient("127.0.0.1:1", false, true)
		_, err := unreachable.ListRecent(ctx, imapCredential(server), 1, 1)
		assert.Error(t, err)
	})
}
