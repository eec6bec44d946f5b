package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Credential store backends.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Mailbox providers.
const (
	ProviderGmail = "gmail"
	ProviderIMAP  = "imap"
)

type Config struct {
	Environment         string `env:"SECRETARY_ENV" envDefault:"development"`
	EncryptionKeyBase64 string `env:"SECRETARY_ENCRYPTION_KEY_BASE64"`
	Port                string `env:"PORT" envDefault:"8080"`
	Timezone            string `env:"TZ" envDefault:"UTC"`

	LogLevel string `env:"SECRETARY_LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"SECRETARY_LOG_FILE"`

	CredentialStore string `env:"SECRETARY_CREDENTIAL_STORE" envDefault:"postgres"`
	SQLitePath      string `env:"SECRETARY_SQLITE_PATH"`
	DBHost          string `env:"SECRETARY_DB_HOST" envDefault:"localhost"`
	DBPort          string `env:"SECRETARY_DB_PORT" envDefault:"5432"`
	DBUsername      string `env:"SECRETARY_DB_USER" envDefault:"secretary"`
	DBPassword      string `env:"SECRETARY_DB_PASSWORD"`
	DBName          string `env:"SECRETARY_DB_NAME" envDefault:"secretary"`
	DBSSLMode       string `env:"SECRETARY_DB_SSLMODE" envDefault:"disable"`

	MailboxProvider    string  `env:"SECRETARY_MAILBOX_PROVIDER" envDefault:"gmail"`
	GoogleClientID     string  `env:"SECRETARY_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string  `env:"SECRETARY_GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string  `env:"SECRETARY_GOOGLE_REDIRECT_URL" envDefault:"http://localhost:8080/api/v1/auth/callback"`
	GmailEndpoint      string  `env:"SECRETARY_GMAIL_ENDPOINT"`
	GmailRequestsPerS  float64 `env:"SECRETARY_GMAIL_RPS" envDefault:"10"`
	IMAPServer         string  `env:"SECRETARY_IMAP_SERVER" envDefault:"imap.gmail.com:993"`
	IMAPUseTLS         bool    `env:"SECRETARY_IMAP_TLS" envDefault:"true"`
	IMAPPlainLogin     bool    `env:"SECRETARY_IMAP_PLAIN_LOGIN" envDefault:"false"`

	BootstrapCount    int           `env:"SECRETARY_BOOTSTRAP_COUNT" envDefault:"50"`
	BootstrapPageSize int           `env:"SECRETARY_BOOTSTRAP_PAGE_SIZE" envDefault:"50"`
	PollCount         int           `env:"SECRETARY_POLL_COUNT" envDefault:"5"`
	PollPageSize      int           `env:"SECRETARY_POLL_PAGE_SIZE" envDefault:"5"`
	PollInterval      time.Duration `env:"SECRETARY_POLL_INTERVAL" envDefault:"5s"`
	TickDeadline      time.Duration `env:"SECRETARY_TICK_DEADLINE" envDefault:"4s"`
	CallTimeout       time.Duration `env:"SECRETARY_CALL_TIMEOUT" envDefault:"2s"`
	BackfillTimeout   time.Duration `env:"SECRETARY_BACKFILL_TIMEOUT" envDefault:"2m"`
	PublishTimeout    time.Duration `env:"SECRETARY_PUBLISH_TIMEOUT" envDefault:"5s"`

	EmbeddingDimensions int    `env:"SECRETARY_EMBEDDING_DIMENSIONS" envDefault:"256"`
	EmbeddingURL        string `env:"SECRETARY_EMBEDDING_URL"`
	EmbeddingModel      string `env:"SECRETARY_EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	EmbeddingAPIKey     string `env:"SECRETARY_EMBEDDING_API_KEY"`
	LLMURL              string `env:"SECRETARY_LLM_URL"`
	LLMModel            string `env:"SECRETARY_LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMAPIKey           string `env:"SECRETARY_LLM_API_KEY"`

	AMQPURL string `env:"SECRETARY_AMQP_URL"`

	// APITokensRaw is a comma-separated list of token:user_id pairs.
	APITokensRaw string `env:"SECRETARY_API_TOKENS"`
}

func NewConfig() (*Config, error) {
	if getEnvOrDefault("SECRETARY_ENV", "development") == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.EncryptionKeyBase64 == "" {
		return fmt.Errorf("SECRETARY_ENCRYPTION_KEY_BASE64 is required")
	}

	switch c.CredentialStore {
	case StorePostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("SECRETARY_DB_PASSWORD is required")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SECRETARY_SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("unknown credential store %q", c.CredentialStore)
	}

	switch c.MailboxProvider {
	case ProviderGmail, ProviderIMAP:
	default:
		return fmt.Errorf("unknown mailbox provider %q", c.MailboxProvider)
	}

	// Refreshing tokens needs the OAuth client for both providers.
	if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
		return fmt.Errorf("SECRETARY_GOOGLE_CLIENT_ID and SECRETARY_GOOGLE_CLIENT_SECRET are required")
	}

	if c.BootstrapCount <= 0 || c.BootstrapPageSize <= 0 || c.PollCount <= 0 || c.PollPageSize <= 0 {
		return fmt.Errorf("poll counts and page sizes must be positive")
	}

	if c.PollInterval <= 0 || c.TickDeadline <= 0 || c.CallTimeout <= 0 {
		return fmt.Errorf("poll interval, tick deadline and call timeout must be positive")
	}

	if c.BackfillTimeout <= 0 || c.PublishTimeout <= 0 {
		return fmt.Errorf("backfill and publish timeouts must be positive")
	}

	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("SECRETARY_EMBEDDING_DIMENSIONS must be positive")
	}

	if _, err := c.APITokens(); err != nil {
		return err
	}

	return nil
}

// APITokens parses SECRETARY_API_TOKENS into a token to user id map.
func (c *Config) APITokens() (map[string]string, error) {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(c.APITokensRaw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		token, userID, ok := strings.Cut(pair, ":")
		token, userID = strings.TrimSpace(token), strings.TrimSpace(userID)
		if !ok || token == "" || userID == "" {
			return nil, fmt.Errorf("SECRETARY_API_TOKENS entries must look like token:user_id")
		}
		tokens[token] = userID
	}
	return tokens, nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUsername,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
