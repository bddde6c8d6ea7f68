package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/policy-portal/internal/access"
	"github.com/upb/policy-portal/repositories"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memPersister struct {
	mu        sync.Mutex
	data      []byte
	expiresAt time.Time
	loads     int
	clears    int
	loadErr   error
	saveErr   error
	clearErr  error
}

func (p *memPersister) Load(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loads++
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	if p.data == nil {
		return nil, repositories.ErrNotFound
	}
	return p.data, nil
}

func (p *memPersister) Save(ctx context.Context, data []byte, expiresAt time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return p.saveErr
	}
	p.data = data
	p.expiresAt = expiresAt
	return nil
}

func (p *memPersister) Update(ctx context.Context, data []byte, expiresAt time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return p.saveErr
	}
	if p.data == nil {
		return repositories.ErrNotFound
	}
	p.data = data
	p.expiresAt = expiresAt
	return nil
}

func (p *memPersister) stored() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data
}

func (p *memPersister) Clear(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clears++
	if p.clearErr != nil {
		return p.clearErr
	}
	p.data = nil
	return nil
}

func testSession(role access.Role) Session {
	return Session{
		Identity: Identity{
			UserID:      "u-1",
			DisplayName: "Ada Lovelace",
			Email:       "ada@example.com",
			Role:        role,
		},
		Token:        "token-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func encoded(t *testing.T, s Session) []byte {
	t.Helper()
	data, err := encode(&s)
	require.NoError(t, err)
	return data
}

func TestStore_StartsLoading(t *testing.T) {
	store := NewStore(&memPersister{}, nil)

	snap := store.Current()
	assert.Equal(t, StateLoading, snap.State)
	assert.Equal(t, access.Pending(), snap.Subject())
	assert.Empty(t, store.Token())
}

func TestStore_Init(t *testing.T) {
	ctx := context.Background()

	t.Run("restores persisted session", func(t *testing.T) {
		p := &memPersister{data: encoded(t, testSession(access.RoleAdmin))}
		store := NewStore(p, zaptest.NewLogger(t))

		store.Init(ctx)

		snap := store.Current()
		require.Equal(t, StateAuthenticated, snap.State)
		assert.Equal(t, access.Authenticated(access.RoleAdmin), snap.Subject())
		assert.Equal(t, "token-1", snap.Token())
		id, ok := snap.Identity()
		require.True(t, ok)
		assert.Equal(t, "Ada Lovelace", id.DisplayName)
	})

	t.Run("nothing stored resolves anonymous", func(t *testing.T) {
		store := NewStore(&memPersister{}, zaptest.NewLogger(t))
		store.Init(ctx)
		assert.Equal(t, StateAnonymous, store.Current().State)
		assert.Equal(t, access.Anonymous(), store.Current().Subject())
	})

	t.Run("storage error resolves anonymous", func(t *testing.T) {
		p := &memPersister{loadErr: errors.New("connection refused")}
		store := NewStore(p, zaptest.NewLogger(t))
		store.Init(ctx)
		assert.Equal(t, StateAnonymous, store.Current().State)
	})

	t.Run("corrupt data resolves anonymous and is cleared", func(t *testing.T) {
		p := &memPersister{data: []byte("{not json")}
		store := NewStore(p, zaptest.NewLogger(t))
		store.Init(ctx)
		assert.Equal(t, StateAnonymous, store.Current().State)
		assert.Nil(t, p.data)
		assert.Equal(t, 1, p.clears)
	})

	t.Run("unknown role resolves anonymous", func(t *testing.T) {
		p := &memPersister{data: []byte(`{"user_id":"u-1","role":"superuser","token":"t"}`)}
		store := NewStore(p, zaptest.NewLogger(t))
		store.Init(ctx)
		assert.Equal(t, StateAnonymous, store.Current().State)
		assert.Nil(t, p.data)
	})

	t.Run("missing token resolves anonymous", func(t *testing.T) {
		p := &memPersister{data: []byte(`{"user_id":"u-1","role":"user"}`)}
		store := NewStore(p, zaptest.NewLogger(t))
		store.Init(ctx)
		assert.Equal(t, StateAnonymous, store.Current().State)
	})

	t.Run("expired session resolves anonymous and is cleared", func(t *testing.T) {
		sess := testSession(access.RoleUser)
		sess.ExpiresAt = time.Now().Add(-time.Minute)
		p := &memPersister{data: encoded(t, sess)}
		store := NewStore(p, zaptest.NewLogger(t))
		store.Init(ctx)
		assert.Equal(t, StateAnonymous, store.Current().State)
		assert.Equal(t, 1, p.clears)
	})

	t.Run("reads storage only once", func(t *testing.T) {
		p := &memPersister{data: encoded(t, testSession(access.RoleUser))}
		store := NewStore(p, nil)
		store.Init(ctx)
		p.data = nil
		store.Init(ctx)
		assert.Equal(t, 1, p.loads)
		assert.Equal(t, StateAuthenticated, store.Current().State)
	})

	t.Run("nil persister resolves anonymous", func(t *testing.T) {
		store := NewStore(nil, nil)
		store.Init(ctx)
		assert.Equal(t, StateAnonymous, store.Current().State)
	})
}

func TestStore_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("persists and authenticates", func(t *testing.T) {
		p := &memPersister{}
		store := NewStore(p, nil)

		sess := testSession(access.RoleOwner)
		require.NoError(t, store.Login(ctx, sess))

		snap := store.Current()
		assert.Equal(t, StateAuthenticated, snap.State)
		assert.Equal(t, access.Authenticated(access.RoleOwner), snap.Subject())
		assert.Equal(t, sess.ExpiresAt, p.expiresAt)

		restored, err := decode(p.data)
		require.NoError(t, err)
		assert.Equal(t, sess.Identity, restored.Identity)
		assert.Equal(t, sess.RefreshToken, restored.RefreshToken)
	})

	t.Run("later Init does not overwrite login", func(t *testing.T) {
		p := &memPersister{}
		store := NewStore(p, nil)
		require.NoError(t, store.Login(ctx, testSession(access.RoleUser)))
		store.Init(ctx)
		assert.Equal(t, 0, p.loads)
		assert.Equal(t, StateAuthenticated, store.Current().State)
	})

	t.Run("rejects incomplete sessions", func(t *testing.T) {
		store := NewStore(&memPersister{}, nil)

		noToken := testSession(access.RoleUser)
		noToken.Token = ""
		assert.ErrorIs(t, store.Login(ctx, noToken), ErrInvalidSession)

		badRole := testSession(access.Role("root"))
		assert.ErrorIs(t, store.Login(ctx, badRole), ErrInvalidSession)

		noUser := testSession(access.RoleUser)
		noUser.Identity.UserID = ""
		assert.ErrorIs(t, store.Login(ctx, noUser), ErrInvalidSession)

		assert.Equal(t, StateLoading, store.Current().State)
	})

	t.Run("storage failure leaves state unchanged", func(t *testing.T) {
		p := &memPersister{saveErr: errors.New("disk full")}
		store := NewStore(p, nil)
		store.Init(ctx)

		err := store.Login(ctx, testSession(access.RoleUser))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		assert.Equal(t, StateAnonymous, store.Current().State)
	})
}

func TestStore_Logout(t *testing.T) {
	ctx := context.Background()

	t.Run("clears memory and storage", func(t *testing.T) {
		p := &memPersister{}
		store := NewStore(p, nil)
		require.NoError(t, store.Login(ctx, testSession(access.RoleAdmin)))

		require.NoError(t, store.Logout(ctx))

		snap := store.Current()
		assert.Equal(t, StateAnonymous, snap.State)
		assert.Nil(t, snap.Session)
		assert.Empty(t, store.Token())
		assert.Nil(t, p.data)
	})

	t.Run("memory is cleared when storage fails", func(t *testing.T) {
		p := &memPersister{}
		store := NewStore(p, nil)
		require.NoError(t, store.Login(ctx, testSession(access.RoleAdmin)))
		p.clearErr = errors.New("timeout")

		err := store.Logout(ctx)
		require.Error(t, err)
		assert.Equal(t, StateAnonymous, store.Current().State)
		assert.Empty(t, store.Token())
	})

	t.Run("restored store can be logged out", func(t *testing.T) {
		p := &memPersister{data: encoded(t, testSession(access.RoleUser))}
		store := NewStore(p, nil)
		store.Init(ctx)

		require.NoError(t, store.Logout(ctx))

		fresh := NewStore(p, nil)
		fresh.Init(ctx)
		assert.Equal(t, StateAnonymous, fresh.Current().State)
	})
}

func TestStore_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces credential and keeps identity", func(t *testing.T) {
		p := &memPersister{}
		store := NewStore(p, nil)
		sess := testSession(access.RoleUser)
		require.NoError(t, store.Login(ctx, sess))

		expiry := time.Now().Add(2 * time.Hour)
		require.NoError(t, store.Refresh(ctx, "token-2", "", expiry))

		snap := store.Current()
		assert.Equal(t, "token-2", snap.Token())
		assert.Equal(t, "refresh-1", snap.Session.RefreshToken)
		assert.Equal(t, sess.Identity, snap.Session.Identity)
		assert.Equal(t, expiry, p.expiresAt)
	})

	t.Run("requires a session", func(t *testing.T) {
		store := NewStore(&memPersister{}, nil)
		store.Init(ctx)
		assert.ErrorIs(t, store.Refresh(ctx, "token-2", "", time.Time{}), ErrNoSession)
	})

	t.Run("rejects empty token", func(t *testing.T) {
		store := NewStore(nil, nil)
		require.NoError(t, store.Login(ctx, testSession(access.RoleUser)))
		assert.ErrorIs(t, store.Refresh(ctx, "", "", time.Time{}), ErrInvalidSession)
		assert.Equal(t, "token-1", store.Token())
	})
}

// gatedPersister holds Update until release is closed.
type gatedPersister struct {
	*memPersister
	entered chan struct{}
	release chan struct{}
}

func (p *gatedPersister) Update(ctx context.Context, data []byte, expiresAt time.Time) error {
	close(p.entered)
	<-p.release
	return p.memPersister.Update(ctx, data, expiresAt)
}

func TestStore_LogoutDuringRefreshLeavesNothingStored(t *testing.T) {
	ctx := context.Background()
	p := &gatedPersister{
		memPersister: &memPersister{},
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	store := NewStore(p, zaptest.NewLogger(t))
	require.NoError(t, store.Login(ctx, testSession(access.RoleUser)))

	refreshed := make(chan error, 1)
	go func() {
		refreshed <- store.Refresh(ctx, "token-2", "refresh-2", time.Now().Add(time.Hour))
	}()
	<-p.entered

	loggedOut := make(chan error, 1)
	go func() { loggedOut <- store.Logout(ctx) }()

	select {
	case <-loggedOut:
		t.Fatal("logout finished while a refresh was being stored")
	case <-time.After(20 * time.Millisecond):
	}

	close(p.release)
	require.NoError(t, <-refreshed)
	require.NoError(t, <-loggedOut)

	assert.Nil(t, p.stored())
	snap := store.Current()
	assert.Equal(t, StateAnonymous, snap.State)
	assert.Nil(t, snap.Session)
}

func TestStore_RefreshDoesNotRecreateClearedStorage(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{}
	store := NewStore(p, zaptest.NewLogger(t))
	require.NoError(t, store.Login(ctx, testSession(access.RoleUser)))

	// Another holder of the same session logged out.
	require.NoError(t, p.Clear(ctx))

	err := store.Refresh(ctx, "token-2", "refresh-2", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Nil(t, p.stored())
	assert.Equal(t, StateAnonymous, store.Current().State)
	assert.Empty(t, store.Token())
}

func TestStore_ExpiredSessionReadsAnonymous(t *testing.T) {
	store := NewStore(nil, nil)
	require.NoError(t, store.Login(context.Background(), testSession(access.RoleUser)))

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	assert.Equal(t, StateAnonymous, store.Current().State)
	assert.Empty(t, store.Token())
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	store := NewStore(nil, nil)
	require.NoError(t, store.Login(context.Background(), testSession(access.RoleUser)))

	snap := store.Current()
	snap.Session.Token = "tampered"

	assert.Equal(t, "token-1", store.Token())
}

func TestStore_ConcurrentReadsSeeConsistentSnapshots(t *testing.T) {
	ctx := context.Background()
	store := NewStore(&memPersister{}, nil)
	store.Init(ctx)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := store.Current()
				switch snap.State {
				case StateAuthenticated:
					assert.NotNil(t, snap.Session)
					assert.NotEmpty(t, snap.Token())
				case StateAnonymous:
					assert.Nil(t, snap.Session)
				default:
					t.Errorf("unexpected state %s", snap.State)
				}
			}
		}()
	}

	for i := 0; i < 100; i++ {
		require.NoError(t, store.Login(ctx, testSession(access.RoleAdmin)))
		require.NoError(t, store.Logout(ctx))
	}
	close(stop)
	wg.Wait()
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "anonymous", StateAnonymous.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "unknown", State(42).String())
}
