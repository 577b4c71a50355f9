package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artem13815/accounts/pkg/account"
)

// UserRepository implements account.UserRepository backed by PostgreSQL (pgx).
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) (*UserRepository, error) {
	repo := &UserRepository{pool: pool}
	if err := repo.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

// ensureSchema creates the users table. The unique constraints on email,
// username and pin are what makes concurrent invites/registrations safe;
// the use case never relies on read-then-write alone.
func (r *UserRepository) ensureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			name TEXT,
			username TEXT UNIQUE,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT,
			avatar_path TEXT,
			pin TEXT UNIQUE,
			role TEXT NOT NULL DEFAULT 'user',
			invite_token TEXT,
			registered_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

const userColumns = `id, COALESCE(name, ''), COALESCE(username, ''), email,
	COALESCE(password_hash, ''), COALESCE(avatar_path, ''), COALESCE(pin, ''),
	role, COALESCE(invite_token, ''), registered_at, created_at`

func scanUser(row pgx.Row) (account.User, error) {
	var user account.User
	var registeredAt *time.Time
	var createdAt time.Time
	err := row.Scan(&user.ID, &user.Name, &user.Username, &user.Email,
		&user.PasswordHash, &user.AvatarPath, &user.PIN,
		&user.Role, &user.InviteToken, &registeredAt, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return account.User{}, account.ErrNotFound
		}
		return account.User{}, err
	}
	if registeredAt != nil {
		t := registeredAt.UTC()
		user.RegisteredAt = &t
	}
	user.CreatedAt = createdAt.UTC()
	return user, nil
}

// nullable maps Go's "" convention for unset optional fields to SQL NULL
// so the unique constraints on username/pin ignore absent values.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *UserRepository) Create(ctx context.Context, user account.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, role, invite_token, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Email, user.Role, nullable(user.InviteToken), user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return account.ErrEmailTaken
		}
		return err
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (account.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (account.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *UserRepository) GetByEmailAndToken(ctx context.Context, email, token string) (account.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 AND invite_token = $2`,
		email, token))
}

func (r *UserRepository) GetByPin(ctx context.Context, pin string) (account.User, error) {
	return scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE pin = $1`, pin))
}

func (r *UserRepository) UsernameTaken(ctx context.Context, username, exceptEmail string) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 AND email <> $2)
	`, username, exceptEmail).Scan(&taken)
	return taken, err
}

func (r *UserRepository) PinInUse(ctx context.Context, pin string) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE pin = $1)`, pin).Scan(&taken)
	return taken, err
}

func (r *UserRepository) CompleteRegistration(ctx context.Context, id uuid.UUID, name, username, passwordHash, pin string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET name = $2, username = $3, password_hash = $4, pin = $5, invite_token = NULL
		WHERE id = $1
	`, id, name, nullable(username), passwordHash, nullable(pin))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Lost a race on username or pin uniqueness.
			return &account.ValidationError{Field: "username", Reason: "already taken"}
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}

func (r *UserRepository) Confirm(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET pin = NULL, registered_at = $2 WHERE id = $1
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, name, avatarPath string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET name = $2, avatar_path = $3 WHERE id = $1
	`, id, name, nullable(avatarPath))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}

func (r *UserRepository) HasAdmin(ctx context.Context) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE role = 'admin')`).Scan(&exists)
	return exists, err
}

func (r *UserRepository) CreateAdmin(ctx context.Context, user account.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, registered_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.Role,
		user.RegisteredAt, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return account.ErrEmailTaken
		}
		return err
	}
	return nil
}
