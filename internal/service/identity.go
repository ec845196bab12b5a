package service

import (
	"context"
	"errors"

	"github.com/spec-kit/hr-ticketing/internal/repository"
)

// Identity is the denormalized view of a submitter captured on a ticket.
type Identity struct {
	ID          string
	Email       string
	DisplayName string
}

// IdentityResolver looks up the submitter of a ticket.
// A nil identity with a nil error means the actor does not exist.
type IdentityResolver interface {
	Resolve(ctx context.Context, actorID string) (*Identity, error)
}

// UserDirectory resolves identities from the user repository.
type UserDirectory struct {
	users repository.UserRepository
}

// NewUserDirectory wraps a user repository.
func NewUserDirectory(users repository.UserRepository) *UserDirectory {
	return &UserDirectory{users: users}
}

// Resolve implements IdentityResolver.
func (d *UserDirectory) Resolve(ctx context.Context, actorID string) (*Identity, error) {
	user, err := d.users.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &Identity{ID: user.ID, Email: user.Email, DisplayName: user.Name}, nil
}
