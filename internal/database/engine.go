package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/hiremebahamas/hirebahamas-api/internal/config"
)

var (
	ErrManagerClosed = errors.New("database manager is closed")
	ErrNoPrimaryURL  = errors.New("no primary database configured")
)

// Role selects which engine backs a session.
type Role int

const (
	RolePrimary Role = iota
	RoleReplica
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleReplica:
		return "replica"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// State is the lifecycle of one role's engine.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	// StateFailed is terminal and only used for the replica.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Opener constructs the pool for a role. OpenURL is the production
// implementation; tests substitute their own.
type Opener func(ctx context.Context, role Role, rawURL string, pool PoolConfig) (*sqlx.DB, error)

// EngineHandle owns one live pool for one role.
type EngineHandle struct {
	role   Role
	family Family
	db     *sqlx.DB

	closeOnce sync.Once
	closeErr  error
}

func (h *EngineHandle) Role() Role { return h.role }

func (h *EngineHandle) Family() Family { return h.family }

// DB exposes the pool for code that manages its own transactions.
func (h *EngineHandle) DB() *sqlx.DB { return h.db }

// Ping checks the pool can still reach its database.
func (h *EngineHandle) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

// Close disposes the pool. Later calls return the first result.
func (h *EngineHandle) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.db.Close()
	})
	return h.closeErr
}

type slot struct {
	mu      sync.Mutex // held for the whole construction
	state   atomic.Int32
	handle  atomic.Pointer[EngineHandle]
	url     string
	failure error
}

func (s *slot) State() State { return State(s.state.Load()) }

// ReadyHook runs once on every newly built primary engine before it is
// handed out. An error discards the engine, so the next call rebuilds it
// and runs the hook again.
type ReadyHook func(ctx context.Context, h *EngineHandle) error

// Manager lazily builds one engine per role and hands out sessions.
// It replaces process-wide globals: main builds one and passes it down.
type Manager struct {
	log        zerolog.Logger
	open       Opener
	onReady    ReadyHook
	pool       PoolConfig
	production bool

	source string
	slots  [2]*slot
	closed atomic.Bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithOpener replaces the driver-backed pool constructor.
func WithOpener(open Opener) Option {
	return func(m *Manager) { m.open = open }
}

// WithOnReady sets the hook run on each new primary engine.
func WithOnReady(hook ReadyHook) Option {
	return func(m *Manager) { m.onReady = hook }
}

// NewManager resolves and validates the configured URLs. It does not
// connect; engines are built on first use.
func NewManager(cfg config.DatabaseConfig, opts ...Option) *Manager {
	m := &Manager{
		log:        zerolog.Nop(),
		open:       OpenURL,
		production: cfg.Production,
		pool: PoolConfig{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnectTimeout:  cfg.ConnectTimeout,
		},
		slots: [2]*slot{{}, {}},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With().Str("component", "database").Logger()

	ok, _, missing := ValidateDatabaseConfig(cfg)
	if !ok {
		m.log.Warn().Strs("missing", missing).Msg("database configuration incomplete")
	}
	primary, source := ResolveURL(cfg)
	m.source = source
	m.slots[RolePrimary].url = m.prepare(RolePrimary, primary)

	if replica := cfg.ReadURL; replica != "" {
		if primary != "" {
			if res := ValidateReplica(primary, replica); !res.Valid {
				m.log.Warn().Strs("problems", res.Problems).Msg("replica configuration diverges from primary")
			}
		}
		m.slots[RoleReplica].url = m.prepare(RoleReplica, replica)
	}
	return m
}

func (m *Manager) prepare(role Role, raw string) string {
	if raw == "" {
		return ""
	}
	prepared, notes := PrepareURL(raw, m.production)
	for _, note := range notes {
		m.log.Warn().Stringer("role", role).Msg(note)
	}
	if m.production {
		if ok, reason := ValidateURLStructure(prepared); !ok {
			m.log.Warn().Stringer("role", role).Str("reason", reason).Msg("database URL failed production checks")
		}
	}
	return prepared
}

// Source is the configuration source the primary URL came from.
func (m *Manager) Source() string { return m.source }

// ReplicaConfigured reports whether a replica URL was given.
func (m *Manager) ReplicaConfigured() bool { return m.slots[RoleReplica].url != "" }

// URL returns the prepared connection string for a role, "" for an unknown
// role.
func (m *Manager) URL(role Role) string {
	if s := m.slot(role); s != nil {
		return s.url
	}
	return ""
}

// State returns the engine state of a role.
// Unknown roles report StateUninitialized.
func (m *Manager) State(role Role) State {
	if s := m.slot(role); s != nil {
		return s.State()
	}
	return StateUninitialized
}

func (m *Manager) slot(role Role) *slot {
	if role < 0 || int(role) >= len(m.slots) {
		return nil
	}
	return m.slots[role]
}

// GetEngine returns the role's engine, building it on first use. Replica
// requests resolve to the primary when no replica is configured or when
// replica construction has failed; that failure is never retried.
func (m *Manager) GetEngine(ctx context.Context, role Role) (*EngineHandle, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	if role == RoleReplica {
		if !m.ReplicaConfigured() {
			return m.engine(ctx, RolePrimary)
		}
		h, err := m.engine(ctx, RoleReplica)
		if err != nil {
			if errors.Is(err, ErrManagerClosed) {
				return nil, err
			}
			return m.engine(ctx, RolePrimary)
		}
		return h, nil
	}
	if role != RolePrimary {
		return nil, fmt.Errorf("unknown database role %d", int(role))
	}
	return m.engine(ctx, RolePrimary)
}

func (m *Manager) engine(ctx context.Context, role Role) (*EngineHandle, error) {
	s := m.slots[role]
	if h := s.handle.Load(); h != nil && s.State() == StateReady {
		return h, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	if s.State() == StateFailed {
		return nil, s.failure
	}
	if h := s.handle.Load(); h != nil {
		return h, nil
	}
	if s.url == "" {
		return nil, ErrNoPrimaryURL
	}

	s.state.Store(int32(StateInitializing))
	spec, _ := ParseConnectionSpec(s.url)

	buildCtx, cancel := constructionContext(ctx)
	defer cancel()

	h, err := m.build(buildCtx, role, spec.Family, s.url)
	if err != nil {
		// A caller deadline cut construction short; that says nothing
		// about the database, so the slot stays retryable.
		if role == RoleReplica && buildCtx.Err() == nil {
			s.failure = err
			s.state.Store(int32(StateFailed))
			m.log.Error().Err(err).Msg("replica unavailable, routing reads to primary for the rest of the process")
			return nil, err
		}
		s.state.Store(int32(StateUninitialized))
		m.log.Error().Err(err).Stringer("role", role).Msg("failed to open database")
		return nil, err
	}

	s.handle.Store(h)
	s.state.Store(int32(StateReady))
	m.log.Info().
		Stringer("role", role).
		Str("family", string(spec.Family)).
		Str("host", spec.Host).
		Str("database", spec.Database).
		Msg("database connection pool established")
	return h, nil
}

// constructionContext detaches construction from the caller's cancellation
// but keeps its deadline, so a short health probe cannot hold the slot
// for the full connect timeout.
func constructionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(detached, deadline)
	}
	return detached, func() {}
}

func (m *Manager) build(ctx context.Context, role Role, family Family, raw string) (*EngineHandle, error) {
	db, err := m.open(ctx, role, raw, m.pool)
	if err != nil {
		return nil, err
	}
	h := &EngineHandle{role: role, family: family, db: db}
	if role == RolePrimary && m.onReady != nil {
		if err := m.onReady(ctx, h); err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("prepare primary: %w", err)
		}
	}
	return h, nil
}

// replicaLost marks a built replica as failed after it stopped answering.
// Like a construction failure it is terminal; the pool stays open until
// Close so sessions already running on it can finish.
func (m *Manager) replicaLost(h *EngineHandle, err error) {
	s := m.slots[RoleReplica]
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle.Load() != h || s.State() != StateReady {
		return
	}
	s.failure = err
	s.state.Store(int32(StateFailed))
	m.log.Error().Err(err).Msg("replica stopped answering, routing reads to primary for the rest of the process")
}

// RoleStatus is the diagnostic view of one role.
type RoleStatus struct {
	State      string `json:"state"`
	Configured bool   `json:"configured"`
	Family     string `json:"family,omitempty"`
	// ServedBy is the role that actually answers requests for this role.
	ServedBy string `json:"served_by"`
}

// Status reports every role without blocking on construction in progress.
func (m *Manager) Status() map[string]RoleStatus {
	out := make(map[string]RoleStatus, len(m.slots))
	for i, s := range m.slots {
		role := Role(i)
		st := RoleStatus{
			State:      s.State().String(),
			Configured: s.url != "",
			ServedBy:   role.String(),
		}
		if spec, err := ParseConnectionSpec(s.url); err == nil {
			st.Family = string(spec.Family)
		}
		if role == RoleReplica && (!st.Configured || s.State() == StateFailed) {
			st.ServedBy = RolePrimary.String()
		}
		out[role.String()] = st
	}
	return out
}

// Close disposes every built engine exactly once. The Manager hands out no
// engines afterwards.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	var result *multierror.Error
	for i, s := range m.slots {
		s.mu.Lock()
		if h := s.handle.Swap(nil); h != nil {
			if err := h.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("close %s: %w", Role(i), err))
			}
			m.log.Info().Stringer("role", Role(i)).Msg("database connection pool closed")
		}
		if s.State() != StateFailed {
			s.state.Store(int32(StateUninitialized))
		}
		s.mu.Unlock()
	}
	return result.ErrorOrNil()
}
