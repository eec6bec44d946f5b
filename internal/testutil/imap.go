package testutil

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/emersion/go-imap/backend/memory"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
)

// TestIMAPServer is an in-memory IMAP server. The memory backend has one
// user ("username"/"password") whose INBOX starts with a single message.
type TestIMAPServer struct {
	Server  *server.Server
	Address string
	Backend *memory.Backend
}

// NewTestIMAPServer starts a plain-text IMAP server on a random local port.
// It is closed automatically when the test finishes.
func NewTestIMAPServer(t *testing.T) *TestIMAPServer {
	t.Helper()

	be := memory.New()
	s := server.New(be)
	s.AllowInsecureAuth = true

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	go func() {
		if err := s.Serve(listener); err != nil {
			t.Logf("IMAP server stopped: %v", err)
		}
	}()

	t.Cleanup(func() {
		_ = s.Close()
	})

	return &TestIMAPServer{
		Server:  s,
		Address: listener.Addr().String(),
		Backend: be,
	}
}

// Username returns the memory backend's user.
func (s *TestIMAPServer) Username() string {
	return "username"
}

// Password returns the memory backend's password.
func (s *TestIMAPServer) Password() string {
	return "password"
}

// Connect opens a logged-in client connection.
func (s *TestIMAPServer) Connect(t *testing.T) *imapclient.Client {
	t.Helper()

	client, err := imapclient.Dial(s.Address)
	if err != nil {
		t.Fatalf("Failed to connect to test server: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Logout()
	})

	if err := client.Login(s.Username(), s.Password()); err != nil {
		t.Fatalf("Failed to login: %v", err)
	}

	return client
}

// AppendRaw appends an RFC 822 message to INBOX and returns the new INBOX size.
func (s *TestIMAPServer) AppendRaw(t *testing.T, raw []byte) uint32 {
	t.Helper()

	client := s.Connect(t)
	if err := client.Append("INBOX", nil, time.Now(), bytes.NewReader(raw)); err != nil {
		t.Fatalf("Failed to append message: %v", err)
	}

	status, err := client.Select("INBOX", true)
	if err != nil {
		t.Fatalf("Failed to select INBOX: %v", err)
	}
	return status.Messages
}

// InboxSize returns the number of messages in INBOX.
func (s *TestIMAPServer) InboxSize(t *testing.T) uint32 {
	t.Helper()

	status, err := s.Connect(t).Select("INBOX", true)
	if err != nil {
		t.Fatalf("Failed to select INBOX: %v", err)
	}
	return status.Messages
}
