package api

import (
	"context"

	"apseq/cmd/identity"
	"apseq/cmd/internal/membership"
)

// UserDirectory adapts the identity service to the membership and project
// user lookups, translating not-found errors to the membership sentinel.
type UserDirectory struct {
	users *identity.Service
}

// NewUserDirectory wraps an identity service.
func NewUserDirectory(users *identity.Service) *UserDirectory {
	return &UserDirectory{users: users}
}

func (d *UserDirectory) UserRefByID(ctx context.Context, id string) (membership.UserRef, error) {
	u, err := d.users.GetByID(ctx, id)
	if identity.IsNotFound(err) {
		return membership.UserRef{}, membership.ErrUserNotFound
	}
	if err != nil {
		return membership.UserRef{}, err
	}
	return membership.UserRef{ID: u.ID, Email: u.Email}, nil
}

func (d *UserDirectory) UserRefByEmail(ctx context.Context, email string) (membership.UserRef, error) {
	u, err := d.users.GetByEmail(ctx, email)
	if identity.IsNotFound(err) {
		return membership.UserRef{}, membership.ErrUserNotFound
	}
	if err != nil {
		return membership.UserRef{}, err
	}
	return membership.UserRef{ID: u.ID, Email: u.Email}, nil
}
