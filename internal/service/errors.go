package service

import (
	"context"
	"errors"

	"erpcore/internal/permission"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrReservedRoleName  = errors.New("role name is reserved")
	ErrSystemRole        = errors.New("system roles cannot be modified")
	ErrInvalidCredential = errors.New("invalid email or password")
	ErrInactiveUser      = errors.New("user is not active")
)

// actorID returns the user behind the request, or nil for the CLI and background jobs.
func actorID(ctx context.Context) *uuid.UUID {
	s, ok := permission.FromContext(ctx)
	if !ok || s.UserID == uuid.Nil {
		return nil
	}
	id := s.UserID
	return &id
}
