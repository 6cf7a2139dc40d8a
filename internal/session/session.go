// Package session holds the server-side half of a login: a member snapshot
// keyed by the id carried in the "sid" cookie.
package session

import (
	"context"

	"goodscommunity/internal/domain"
)

// Store maps a session id to at most one member snapshot.
// Get returns nil, nil when the session is unknown, expired or anonymous.
type Store interface {
	Get(ctx context.Context, id string) (*domain.MemberView, error)
	Set(ctx context.Context, id string, m domain.MemberView) error
	Clear(ctx context.Context, id string) error
}

// Session is the handle the services work through. It is cheap to build per
// request.
type Session struct {
	ID    string
	store Store
}

func New(id string, store Store) *Session {
	return &Session{ID: id, store: store}
}

// Member returns the logged-in member, or nil for an anonymous session.
func (s *Session) Member(ctx context.Context) (*domain.MemberView, error) {
	if s == nil || s.ID == "" {
		return nil, nil
	}
	return s.store.Get(ctx, s.ID)
}

func (s *Session) Set(ctx context.Context, m domain.MemberView) error {
	return s.store.Set(ctx, s.ID, m)
}

// Clear drops the snapshot. Clearing an anonymous session is a no-op.
func (s *Session) Clear(ctx context.Context) error {
	if s == nil || s.ID == "" {
		return nil
	}
	return s.store.Clear(ctx, s.ID)
}
