package permission

import (
	"context"

	"erpcore/internal/repository"

	"github.com/google/uuid"
)

// Session is one authenticated user's view of the system. It owns its Resolver.
type Session struct {
	UserID    uuid.UUID
	CompanyID uuid.UUID
	Resolver  *Resolver
}

// NewSession creates a session for the user and loads its grants. A load failure is
// returned for logging but the session is still usable and denies every check.
func NewSession(ctx context.Context, store repository.RecordStore, userID, companyID uuid.UUID) (*Session, error) {
	s := &Session{
		UserID:    userID,
		CompanyID: companyID,
		Resolver:  NewResolver(store),
	}
	err := s.Resolver.SetUser(ctx, Identity{UserID: userID, CompanyID: companyID})
	return s, err
}

// Can is a shorthand for s.Resolver.CheckPermission. A nil session denies.
func (s *Session) Can(code string) bool {
	if s == nil {
		return false
	}
	return s.Resolver.CheckPermission(code)
}

// Close discards the resolved state.
func (s *Session) Close() {
	if s == nil || s.Resolver == nil {
		return
	}
	s.Resolver.Clear()
}

type sessionKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session stored by WithSession.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}
