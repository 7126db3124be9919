package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
)

// ErrSessionClosed is returned when a session is used after Close.
var ErrSessionClosed = errors.New("database session already closed")

// Session is one request's transaction on one engine. It is never shared
// between requests.
type Session struct {
	*sqlx.Tx

	requested Role
	engine    *EngineHandle
	done      atomic.Bool
}

// Role is the role of the engine actually serving the session, which is
// the primary when a replica request fell back.
func (s *Session) Role() Role { return s.engine.role }

// Requested is the role the caller asked for.
func (s *Session) Requested() Role { return s.requested }

func (s *Session) Family() Family { return s.engine.family }

// Commit is Close(nil).
func (s *Session) Commit() error { return s.Close(nil) }

var errRolledBack = errors.New("session rolled back")

// Rollback is Close with a non-nil cause.
func (s *Session) Rollback() error { return s.Close(errRolledBack) }

// Closed reports whether the session has been released.
func (s *Session) Closed() bool { return s.done.Load() }

// Close ends the session: commit when cause is nil, rollback otherwise.
// The connection goes back to the pool either way. Only the first call
// has an effect.
func (s *Session) Close(cause error) error {
	if !s.done.CompareAndSwap(false, true) {
		return nil
	}
	if cause != nil {
		if err := s.Tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			return fmt.Errorf("rollback %s session: %w", s.engine.role, err)
		}
		return nil
	}
	if err := s.Tx.Commit(); err != nil {
		return fmt.Errorf("commit %s session: %w", s.engine.role, err)
	}
	return nil
}

// GetSession begins a transaction on the engine for role. The caller must
// Close it. A replica that can no longer begin transactions is marked
// failed and the session is opened on the primary instead.
func (m *Manager) GetSession(ctx context.Context, role Role) (*Session, error) {
	h, err := m.GetEngine(ctx, role)
	if err != nil {
		return nil, err
	}
	tx, err := h.db.BeginTxx(ctx, nil)
	if err != nil && h.role == RoleReplica && ctx.Err() == nil {
		m.replicaLost(h, err)
		if h, err = m.GetEngine(ctx, RolePrimary); err != nil {
			return nil, err
		}
		tx, err = h.db.BeginTxx(ctx, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("begin %s session: %w", h.role, err)
	}
	return &Session{Tx: tx, requested: role, engine: h}, nil
}

var errPanicked = errors.New("session function panicked")

// WithSession runs fn inside a session, committing when fn returns nil and
// rolling back when it returns an error or panics. Panics are re-raised
// after the rollback.
func (m *Manager) WithSession(ctx context.Context, role Role, fn func(*Session) error) (err error) {
	s, err := m.GetSession(ctx, role)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = s.Close(errPanicked)
			panic(p)
		}
	}()

	if err = fn(s); err != nil {
		_ = s.Close(err)
		return err
	}
	return s.Close(nil)
}

// InsertID runs an INSERT written with ? placeholders and returns the id of
// the new row, using RETURNING where the database supports it.
func (s *Session) InsertID(ctx context.Context, query string, args ...any) (int64, error) {
	if s.Family() == FamilyMySQL {
		res, err := s.ExecContext(ctx, s.Rebind(query), args...)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}
	var id int64
	if err := s.GetContext(ctx, &id, s.Rebind(query+" RETURNING id"), args...); err != nil {
		return 0, err
	}
	return id, nil
}
