package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiremebahamas/hirebahamas-api/internal/config"
)

func sqliteURL(t *testing.T, name string) string {
	t.Helper()
	return "sqlite:///" + filepath.Join(t.TempDir(), name)
}

// countingOpener wraps OpenURL, counting calls per role and failing the
// roles listed in fail.
type countingOpener struct {
	calls [2]atomic.Int32
	fail  map[Role]error
	delay time.Duration
}

func (o *countingOpener) open(ctx context.Context, role Role, raw string, pool PoolConfig) (*sqlx.DB, error) {
	o.calls[role].Add(1)
	if o.delay > 0 {
		time.Sleep(o.delay)
	}
	if err := o.fail[role]; err != nil {
		return nil, err
	}
	return OpenURL(ctx, role, raw, pool)
}

func newTestManager(t *testing.T, cfg config.DatabaseConfig, o *countingOpener) *Manager {
	t.Helper()
	m := NewManager(cfg, WithOpener(o.open))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestGetEngineIsLazySingleton(t *testing.T) {
	o := &countingOpener{}
	m := newTestManager(t, config.DatabaseConfig{
		URL:     sqliteURL(t, "primary.db"),
		ReadURL: sqliteURL(t, "replica.db"),
	}, o)

	assert.Equal(t, StateUninitialized, m.State(RolePrimary))
	assert.Equal(t, StateUninitialized, m.State(RoleReplica))
	assert.Zero(t, o.calls[RolePrimary].Load())

	ctx := context.Background()
	first, err := m.GetEngine(ctx, RoleReplica)
	require.NoError(t, err)
	second, err := m.GetEngine(ctx, RoleReplica)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, RoleReplica, first.Role())
	assert.Equal(t, FamilySQLite, first.Family())
	assert.Equal(t, StateReady, m.State(RoleReplica))
	assert.Equal(t, StateUninitialized, m.State(RolePrimary))
	assert.EqualValues(t, 1, o.calls[RoleReplica].Load())
	assert.Zero(t, o.calls[RolePrimary].Load())
}

func TestGetEngineConcurrentFirstUseBuildsOnce(t *testing.T) {
	o := &countingOpener{delay: 20 * time.Millisecond}
	m := newTestManager(t, config.DatabaseConfig{URL: sqliteURL(t, "primary.db")}, o)

	const callers = 16
	handles := make([]*EngineHandle, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := m.GetEngine(context.Background(), RolePrimary)
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, o.calls[RolePrimary].Load())
	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
}

func TestReplicaNotConfiguredUsesPrimary(t *testing.T) {
	o := &countingOpener{}
	m := newTestManager(t, config.DatabaseConfig{URL: sqliteURL(t, "primary.db")}, o)

	h, err := m.GetEngine(context.Background(), RoleReplica)
	require.NoError(t, err)
	assert.Equal(t, RolePrimary, h.Role())
	assert.False(t, m.ReplicaConfigured())
	assert.Equal(t, "primary", m.Status()["replica"].ServedBy)
}

func TestReplicaFailureFallsBackWithoutRetry(t *testing.T) {
	o := &countingOpener{fail: map[Role]error{RoleReplica: errors.New("dial tcp: connection refused")}}
	m := newTestManager(t, config.DatabaseConfig{
		URL:     sqliteURL(t, "primary.db"),
		ReadURL: sqliteURL(t, "replica.db"),
	}, o)

	ctx := context.Background()
	primary, err := m.GetEngine(ctx, RolePrimary)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		h, err := m.GetEngine(ctx, RoleReplica)
		require.NoError(t, err)
		assert.Same(t, primary, h)
	}

	assert.EqualValues(t, 1, o.calls[RoleReplica].Load())
	assert.Equal(t, StateFailed, m.State(RoleReplica))

	status := m.Status()
	assert.Equal(t, "failed", status["replica"].State)
	assert.Equal(t, "primary", status["replica"].ServedBy)
	assert.True(t, status["replica"].Configured)
}

func TestPrimaryFailureIsRetried(t *testing.T) {
	boom := errors.New("primary down")
	o := &countingOpener{fail: map[Role]error{RolePrimary: boom}}
	m := newTestManager(t, config.DatabaseConfig{URL: sqliteURL(t, "primary.db")}, o)

	_, err := m.GetEngine(context.Background(), RolePrimary)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StateUninitialized, m.State(RolePrimary))

	delete(o.fail, RolePrimary)
	h, err := m.GetEngine(context.Background(), RolePrimary)
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.EqualValues(t, 2, o.calls[RolePrimary].Load())
}

func TestNoPrimaryConfigured(t *testing.T) {
	m := newTestManager(t, config.DatabaseConfig{}, &countingOpener{})

	_, err := m.GetEngine(context.Background(), RolePrimary)
	assert.ErrorIs(t, err, ErrNoPrimaryURL)
	_, err = m.GetEngine(context.Background(), RoleReplica)
	assert.ErrorIs(t, err, ErrNoPrimaryURL)
	assert.Empty(t, m.Source())
}

func TestGetEngineCanceledContextStillBuilds(t *testing.T) {
	o := &countingOpener{}
	m := newTestManager(t, config.DatabaseConfig{URL: sqliteURL(t, "primary.db")}, o)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h, err := m.GetEngine(ctx, RolePrimary)
	require.NoError(t, err)
	assert.NoError(t, h.Ping(context.Background()))
}

func TestCloseDisposesOnceAndRefusesNewEngines(t *testing.T) {
	o := &countingOpener{}
	m := NewManager(config.DatabaseConfig{
		URL:     sqliteURL(t, "primary.db"),
		ReadURL: sqliteURL(t, "replica.db"),
	}, WithOpener(o.open))

	ctx := context.Background()
	primary, err := m.GetEngine(ctx, RolePrimary)
	require.NoError(t, err)
	_, err = m.GetEngine(ctx, RoleReplica)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.Error(t, primary.Ping(ctx))
	_, err = m.GetEngine(ctx, RolePrimary)
	assert.ErrorIs(t, err, ErrManagerClosed)
	_, err = m.GetSession(ctx, RoleReplica)
	assert.ErrorIs(t, err, ErrManagerClosed)
	assert.Equal(t, StateUninitialized, m.State(RolePrimary))
}

func TestManagerPreparesURLs(t *testing.T) {
	m := NewManager(config.DatabaseConfig{
		URL:        "postgresql+asyncpg://hire:pw@db.example.com/hiremebahamas",
		ReadURL:    "postgresql://hire:pw@replica.example.com:5432/hiremebahamas?sslmode=require",
		Production: true,
	})

	assert.Equal(t, "DATABASE_URL", m.Source())
	assert.Equal(t, "postgresql+asyncpg://hire:pw@db.example.com:5432/hiremebahamas?sslmode=require", m.URL(RolePrimary))
	assert.Equal(t, "postgresql://hire:pw@replica.example.com:5432/hiremebahamas?sslmode=require", m.URL(RoleReplica))
	assert.True(t, m.ReplicaConfigured())
	assert.Equal(t, "postgres", m.Status()["primary"].Family)
}

func TestRoleAndStateStrings(t *testing.T) {
	assert.Equal(t, "primary", RolePrimary.String())
	assert.Equal(t, "replica", RoleReplica.String())
	assert.Equal(t, "role(7)", Role(7).String())
	assert.Equal(t, "initializing", StateInitializing.String())
	assert.Equal(t, "failed", StateFailed.String())
}

func TestReadyHookFailureDiscardsPrimary(t *testing.T) {
	o := &countingOpener{}
	var hookCalls atomic.Int32
	hook := func(ctx context.Context, h *EngineHandle) error {
		if hookCalls.Add(1) == 1 {
			return errors.New("schema locked")
		}
		return h.Ping(ctx)
	}
	m := NewManager(config.DatabaseConfig{
		URL:     sqliteURL(t, "primary.db"),
		ReadURL: sqliteURL(t, "replica.db"),
	}, WithOpener(o.open), WithOnReady(hook))
	t.Cleanup(func() { _ = m.Close() })
	ctx := context.Background()

	_, err := m.GetEngine(ctx, RolePrimary)
	require.ErrorContains(t, err, "schema locked")
	assert.Equal(t, StateUninitialized, m.State(RolePrimary))

	h, err := m.GetEngine(ctx, RolePrimary)
	require.NoError(t, err)
	assert.Equal(t, RolePrimary, h.Role())

	_, err = m.GetEngine(ctx, RoleReplica)
	require.NoError(t, err)
	assert.EqualValues(t, 2, hookCalls.Load(), "replica engines skip the hook")
	assert.EqualValues(t, 2, o.calls[RolePrimary].Load())
}

func TestConstructionHonorsCallerDeadline(t *testing.T) {
	var hang atomic.Bool
	hang.Store(true)
	open := func(ctx context.Context, role Role, raw string, pool PoolConfig) (*sqlx.DB, error) {
		if role == RoleReplica && hang.Load() {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return OpenURL(ctx, role, raw, pool)
	}
	m := NewManager(config.DatabaseConfig{
		URL:     sqliteURL(t, "primary.db"),
		ReadURL: sqliteURL(t, "replica.db"),
	}, WithOpener(open))
	t.Cleanup(func() { _ = m.Close() })

	_, err := m.GetEngine(context.Background(), RolePrimary)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	h, err := m.GetEngine(ctx, RoleReplica)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, RolePrimary, h.Role())
	assert.Equal(t, StateUninitialized, m.State(RoleReplica), "a caller deadline is not a replica failure")

	hang.Store(false)
	h, err = m.GetEngine(context.Background(), RoleReplica)
	require.NoError(t, err)
	assert.Equal(t, RoleReplica, h.Role())
}

func TestUnknownRoleAccessors(t *testing.T) {
	m := NewManager(config.DatabaseConfig{URL: sqliteURL(t, "primary.db")})

	assert.Empty(t, m.URL(Role(7)))
	assert.Empty(t, m.URL(Role(-1)))
	assert.Equal(t, StateUninitialized, m.State(Role(7)))
	_, err := m.GetEngine(context.Background(), Role(7))
	assert.Error(t, err)
}
