package session

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/policy-portal/models"
	"github.com/upb/policy-portal/repositories"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

// StorageKey is the repository key for a session id. Rows are keyed by the
// blake3 digest so a leaked table does not yield usable cookies.
func StorageKey(id string) string {
	sum := blake3.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

// Manager binds Stores to rows of a SessionRepository.
type Manager struct {
	repo   repositories.SessionRepository
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewManager creates a Manager. ttl caps how long a stored session row lives.
func NewManager(repo repositories.SessionRepository, ttl time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Open returns an initialized Store for the session id.
func (m *Manager) Open(ctx context.Context, id string) *Store {
	if id == "" {
		return m.Anonymous()
	}
	store := m.newStore(id)
	store.Init(ctx)
	return store
}

// Anonymous returns a resolved Store with no session and no storage.
func (m *Manager) Anonymous() *Store {
	store := NewStore(nil, m.logger)
	store.now = m.now
	store.Init(context.Background())
	return store
}

// Create stores sess under a new session id.
func (m *Manager) Create(ctx context.Context, sess Session) (string, *Store, error) {
	id := uuid.NewString()
	store := m.newStore(id)
	if err := store.Login(ctx, sess); err != nil {
		return "", nil, err
	}
	return id, store, nil
}

// PurgeExpired deletes stored sessions past their expiry.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := m.repo.DeleteExpired(ctx, m.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	if n > 0 {
		m.logger.Info("purged expired sessions", zap.Int64("count", n))
	}
	return n, nil
}

func (m *Manager) newStore(id string) *Store {
	key := StorageKey(id)
	store := NewStore(&recordPersister{key: key, manager: m}, m.logger.With(zap.String("session_key", key[:12])))
	store.now = m.now
	return store
}

// recordPersister stores one session as a models.SessionRecord under its
// storage key.
type recordPersister struct {
	key     string
	manager *Manager
}

func (p *recordPersister) Load(ctx context.Context) ([]byte, error) {
	rec, err := p.manager.repo.Get(ctx, p.key)
	if err != nil {
		return nil, err
	}
	if rec.Expired(p.manager.now()) {
		return nil, fmt.Errorf("session %s expired: %w", p.key[:12], repositories.ErrNotFound)
	}
	return rec.Data, nil
}

func (p *recordPersister) Save(ctx context.Context, data []byte, expiresAt time.Time) error {
	return p.manager.repo.Save(ctx, models.NewSessionRecord(p.key, data, p.rowExpiry(expiresAt)))
}

func (p *recordPersister) Update(ctx context.Context, data []byte, expiresAt time.Time) error {
	return p.manager.repo.Update(ctx, models.NewSessionRecord(p.key, data, p.rowExpiry(expiresAt)))
}

func (p *recordPersister) Clear(ctx context.Context) error {
	return p.manager.repo.Delete(ctx, p.key)
}

// rowExpiry is the earlier of the credential expiry and now+ttl.
func (p *recordPersister) rowExpiry(expiresAt time.Time) time.Time {
	if p.manager.ttl <= 0 {
		return expiresAt
	}
	limit := p.manager.now().Add(p.manager.ttl)
	if expiresAt.IsZero() || expiresAt.After(limit) {
		return limit
	}
	return expiresAt
}
