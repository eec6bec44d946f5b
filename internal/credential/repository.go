package credential

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/BLNCname/GMailSecretary/internal/models"
	"golang.org/x/oauth2"
)

// ErrNotFound is returned when no credential is stored for a user.
var ErrNotFound = errors.New("credential not found")

// Repository persists one credential per user id with insert-or-replace semantics.
type Repository interface {
	Save(ctx context.Context, cred *models.Credential) error
	Get(ctx context.Context, userID string) (*models.Credential, error)
	UserIDs(ctx context.Context) ([]string, error)
}

// MemoryRepository keeps credentials in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	creds map[string]models.Credential
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{creds: make(map[string]models.Credential)}
}

func (r *MemoryRepository) Save(_ context.Context, cred *models.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.creds[cred.UserID] = copyCredential(*cred)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, userID string) (*models.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cred, ok := r.creds[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyCredential(cred)
	return &out, nil
}

func (r *MemoryRepository) UserIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.creds))
	for id := range r.creds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func copyCredential(cred models.Credential) models.Credential {
	if cred.Token != nil {
		token := *cred.Token
		cred.Token = &token
	}
	return cred
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*SQLiteRepository)(nil)
)

// tokenOf returns a non-nil token for sealing.
func tokenOf(cred *models.Credential) *oauth2.Token {
	if cred.Token == nil {
		return &oauth2.Token{}
	}
	return cred.Token
}
