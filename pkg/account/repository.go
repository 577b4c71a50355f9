package account

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserRepository abstracts persistence concerns from the domain layer.
// The store must enforce uniqueness of email, username and outstanding
// pins with its own constraints; the use case relies on that for
// concurrent invite/register safety.
type UserRepository interface {
	// Create inserts an invited record (email + invite token only).
	// Returns ErrEmailTaken on an email uniqueness violation.
	Create(ctx context.Context, user User) error

	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	// GetByEmailAndToken matches the exact (email, invite token) pair.
	GetByEmailAndToken(ctx context.Context, email, token string) (User, error)
	GetByPin(ctx context.Context, pin string) (User, error)

	// UsernameTaken reports whether username is held by a user with a
	// different email. Re-registration under the same email keeps its
	// own username without conflict.
	UsernameTaken(ctx context.Context, username, exceptEmail string) (bool, error)
	PinInUse(ctx context.Context, pin string) (bool, error)

	// CompleteRegistration sets name/username/password hash/pin and
	// clears the invite token in one statement.
	CompleteRegistration(ctx context.Context, id uuid.UUID, name, username, passwordHash, pin string) error

	// Confirm clears the pin and stamps registered_at.
	Confirm(ctx context.Context, id uuid.UUID, at time.Time) error

	UpdateProfile(ctx context.Context, id uuid.UUID, name, avatarPath string) error

	// HasAdmin supports the startup admin bootstrap.
	HasAdmin(ctx context.Context) (bool, error)
	// CreateAdmin inserts a confirmed admin account.
	CreateAdmin(ctx context.Context, user User) error
}
