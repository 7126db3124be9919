package database

import "context"

// Router picks the engine for a request from its intent. Writes always go
// to the primary; reads go to the replica while it is configured and
// healthy.
type Router struct {
	m *Manager
}

func NewRouter(m *Manager) *Router {
	return &Router{m: m}
}

func (r *Router) Manager() *Manager { return r.m }

// DBWrite opens a session on the primary.
func (r *Router) DBWrite(ctx context.Context) (*Session, error) {
	return r.m.GetSession(ctx, RolePrimary)
}

// DBRead opens a session on the replica, or on the primary when there is no
// usable replica or ctx was marked with WithPrimary.
func (r *Router) DBRead(ctx context.Context) (*Session, error) {
	if forcesPrimary(ctx) {
		return r.m.GetSession(ctx, RolePrimary)
	}
	return r.m.GetSession(ctx, RoleReplica)
}

type primaryKey struct{}

// WithPrimary marks ctx so reads made with it see the caller's own writes.
func WithPrimary(ctx context.Context) context.Context {
	return context.WithValue(ctx, primaryKey{}, true)
}

func forcesPrimary(ctx context.Context) bool {
	v, _ := ctx.Value(primaryKey{}).(bool)
	return v
}
