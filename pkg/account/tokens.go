package account

import "context"

// TokenIssuer abstracts bearer token creation (e.g., JWT).
// It allows use cases to stay framework-agnostic.
type TokenIssuer interface {
	Issue(ctx context.Context, user User) (string, error)
}
