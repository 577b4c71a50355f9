package account

import (
	"time"

	"github.com/google/uuid"
)

// Role distinguishes administrators, who may invite new users.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is the domain entity for an account in any lifecycle stage.
// A freshly invited record carries only Email and InviteToken; Name,
// Username and PasswordHash appear at registration; RegisteredAt is set
// at PIN confirmation and gates login.
type User struct {
	ID           uuid.UUID
	Name         string
	Username     string
	Email        string
	PasswordHash string
	AvatarPath   string
	PIN          string
	Role         Role
	InviteToken  string
	RegisteredAt *time.Time
	CreatedAt    time.Time
}

// Confirmed reports whether the account finished the full
// invite -> register -> confirm lifecycle.
func (u User) Confirmed() bool {
	return u.RegisteredAt != nil
}
