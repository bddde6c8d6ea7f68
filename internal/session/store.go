package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/upb/policy-portal/internal/access"
	"github.com/upb/policy-portal/repositories"
	"go.uber.org/zap"
)

var (
	// ErrInvalidSession is returned when login data lacks identity or token
	ErrInvalidSession = errors.New("invalid session")

	// ErrNoSession is returned when an operation needs an authenticated session
	ErrNoSession = errors.New("no active session")
)

// Persister stores the encoded session of one browser session.
// Load and Update return an error wrapping repositories.ErrNotFound when
// nothing is stored. Update never creates a record.
type Persister interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte, expiresAt time.Time) error
	Update(ctx context.Context, data []byte, expiresAt time.Time) error
	Clear(ctx context.Context) error
}

// persisted is the storage encoding of a Session.
type persisted struct {
	UserID       string    `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	Email        string    `json:"email,omitempty"`
	Role         string    `json:"role"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func encode(s *Session) ([]byte, error) {
	return json.Marshal(persisted{
		UserID:       s.Identity.UserID,
		DisplayName:  s.Identity.DisplayName,
		Email:        s.Identity.Email,
		Role:         string(s.Identity.Role),
		Token:        s.Token,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    s.ExpiresAt,
	})
}

func decode(data []byte) (*Session, error) {
	var p persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	role, err := access.ParseRole(p.Role)
	if err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	s := &Session{
		Identity: Identity{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Email:       p.Email,
			Role:        role,
		},
		Token:        p.Token,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    p.ExpiresAt,
	}
	if !s.valid() {
		return nil, fmt.Errorf("decode session: %w", ErrInvalidSession)
	}
	return s, nil
}

// Store holds the session of one browser session.
type Store struct {
	mu        sync.RWMutex
	wmu       sync.Mutex // serializes Login, Refresh and Logout with their writes
	persister Persister
	logger    *zap.Logger
	now       func() time.Time

	initOnce sync.Once
	state    State
	current  *Session
}

// NewStore creates a Store in the loading state. A nil persister keeps the
// session in memory only.
func NewStore(persister Persister, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		persister: persister,
		logger:    logger,
		now:       time.Now,
		state:     StateLoading,
	}
}

// Init resolves the persisted session. Only the first call reads storage.
// Missing, corrupt or expired data resolves to anonymous.
func (s *Store) Init(ctx context.Context) {
	s.initOnce.Do(func() {
		sess := s.load(ctx)

		s.mu.Lock()
		defer s.mu.Unlock()
		if sess == nil {
			s.state = StateAnonymous
			return
		}
		s.state = StateAuthenticated
		s.current = sess
	})
}

func (s *Store) load(ctx context.Context) *Session {
	if s.persister == nil {
		return nil
	}

	data, err := s.persister.Load(ctx)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			s.logger.Warn("session storage unavailable, continuing anonymous", zap.Error(err))
		}
		return nil
	}

	sess, err := decode(data)
	if err != nil {
		s.logger.Warn("discarding corrupt session", zap.Error(err))
		s.clearStorage(ctx)
		return nil
	}

	if sess.Expired(s.now()) {
		s.logger.Info("discarding expired session", zap.String("user_id", sess.Identity.UserID))
		s.clearStorage(ctx)
		return nil
	}

	return sess
}

func (s *Store) clearStorage(ctx context.Context) {
	if err := s.persister.Clear(ctx); err != nil {
		s.logger.Warn("failed to clear session storage", zap.Error(err))
	}
}

// Current returns a snapshot of the session. Expired sessions read as
// anonymous.
func (s *Store) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != StateAuthenticated {
		return Snapshot{State: s.state}
	}
	if s.current.Expired(s.now()) {
		return Snapshot{State: StateAnonymous}
	}
	cp := *s.current
	return Snapshot{State: StateAuthenticated, Session: &cp}
}

// Token returns the current credential token, or "" without a session.
func (s *Store) Token() string {
	return s.Current().Token()
}

// Login establishes sess and persists it.
func (s *Store) Login(ctx context.Context, sess Session) error {
	if !sess.valid() {
		return ErrInvalidSession
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	if err := s.persist(ctx, &sess); err != nil {
		return err
	}

	// A login settles resolution; a later Init must not overwrite it.
	s.initOnce.Do(func() {})

	s.mu.Lock()
	s.state = StateAuthenticated
	s.current = &sess
	s.mu.Unlock()

	s.logger.Debug("session established", zap.String("user_id", sess.Identity.UserID))
	return nil
}

// Refresh replaces the credential of the current session and keeps its
// identity. A session removed from storage meanwhile is not recreated; the
// store turns anonymous and ErrNoSession is returned.
func (s *Store) Refresh(ctx context.Context, token, refreshToken string, expiresAt time.Time) error {
	if token == "" {
		return ErrInvalidSession
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.RLock()
	if s.state != StateAuthenticated {
		s.mu.RUnlock()
		return ErrNoSession
	}
	next := *s.current
	s.mu.RUnlock()

	next.Token = token
	if refreshToken != "" {
		next.RefreshToken = refreshToken
	}
	next.ExpiresAt = expiresAt

	if err := s.update(ctx, &next); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.logger.Info("session ended before refresh was stored",
				zap.String("user_id", next.Identity.UserID))
			s.mu.Lock()
			s.state = StateAnonymous
			s.current = nil
			s.mu.Unlock()
			return ErrNoSession
		}
		return err
	}

	s.mu.Lock()
	s.current = &next
	s.mu.Unlock()
	return nil
}

// Logout clears the session. Memory is cleared even when storage fails.
func (s *Store) Logout(ctx context.Context) error {
	s.initOnce.Do(func() {})

	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	s.state = StateAnonymous
	s.current = nil
	s.mu.Unlock()

	if s.persister == nil {
		return nil
	}
	if err := s.persister.Clear(ctx); err != nil {
		return fmt.Errorf("clear session storage: %w", err)
	}
	return nil
}

func (s *Store) persist(ctx context.Context, sess *Session) error {
	if s.persister == nil {
		return nil
	}
	data, err := encode(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.persister.Save(ctx, data, sess.ExpiresAt); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

func (s *Store) update(ctx context.Context, sess *Session) error {
	if s.persister == nil {
		return nil
	}
	data, err := encode(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.persister.Update(ctx, data, sess.ExpiresAt); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}
