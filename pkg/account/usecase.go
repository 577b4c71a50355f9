package account

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/artem13815/accounts/pkg/mail"
)

// ObjectStorage abstracts the avatar asset store (S3/MinIO in production).
type ObjectStorage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// RegisterInput carries everything the registration form submits.
type RegisterInput struct {
	Name     string
	Username string
	Email    string
	Password string
	Token    string
}

// LoginResult is the outcome of a successful credential check.
type LoginResult struct {
	User  User
	Token string
}

// UseCase describes the account lifecycle behavior:
// invite -> register -> confirm, plus login and profile management.
type UseCase interface {
	Invite(ctx context.Context, actorID uuid.UUID, email string) error
	VerifyInvite(ctx context.Context, email, token string) (User, error)
	Register(ctx context.Context, in RegisterInput) error
	ConfirmPin(ctx context.Context, pin string) error
	Login(ctx context.Context, email, password string) (LoginResult, error)
	Profile(ctx context.Context, userID uuid.UUID) (User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, name string, avatar *Avatar) (User, error)
	EnsureAdmin(ctx context.Context, email, password string) error
}

type service struct {
	repo    UserRepository
	tokens  TokenIssuer
	mailer  mail.Sender
	avatars ObjectStorage
	baseURL string
	log     *zap.Logger
}

// NewService returns the default implementation of UseCase.
func NewService(repo UserRepository, tokens TokenIssuer, mailer mail.Sender, avatars ObjectStorage, baseURL string, log *zap.Logger) UseCase {
	return &service{
		repo:    repo,
		tokens:  tokens,
		mailer:  mailer,
		avatars: avatars,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Invite creates an invited record and mails a registration link.
// Only admins may invite; the email must not be in use.
func (s *service) Invite(ctx context.Context, actorID uuid.UUID, email string) error {
	email = normalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return invalid("email", "must be a valid email address")
	}

	actor, err := s.repo.GetByID(ctx, actorID)
	if err != nil {
		return fmt.Errorf("load inviter: %w", err)
	}
	if actor.Role != RoleAdmin {
		return ErrForbidden
	}

	token, err := newInviteToken()
	if err != nil {
		return err
	}
	user := User{
		ID:          uuid.New(),
		Email:       email,
		Role:        RoleUser,
		InviteToken: token,
		CreatedAt:   time.Now().UTC(),
	}
	// Email uniqueness is enforced by the store constraint, so two
	// concurrent invites for the same address cannot both succeed.
	if err := s.repo.Create(ctx, user); err != nil {
		return err
	}

	if err := s.mailer.Send(ctx, mail.InviteMessage(email, token, s.baseURL)); err != nil {
		return fmt.Errorf("send invitation: %w", err)
	}
	s.log.Info("user invited", zap.String("email", email), zap.String("invited_by", actorID.String()))
	return nil
}

// VerifyInvite returns the invited record matching the exact
// (email, token) pair. Used by the registration UI before submitting.
func (s *service) VerifyInvite(ctx context.Context, email, token string) (User, error) {
	email = normalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return User{}, invalid("email", "must be a valid email address")
	}
	if token == "" {
		return User{}, invalid("token", "is required")
	}
	return s.repo.GetByEmailAndToken(ctx, email, token)
}

// Register completes the invited record with the user's chosen identity,
// draws a one-time pin and mails it. The invite token is cleared.
func (s *service) Register(ctx context.Context, in RegisterInput) error {
	in.Email = normalizeEmail(in.Email)
	if strings.TrimSpace(in.Name) == "" {
		return invalid("name", "is required")
	}
	if n := len(in.Username); n < 4 || n > 20 {
		return invalid("username", "must be between 4 and 20 characters")
	}
	if !emailPattern.MatchString(in.Email) {
		return invalid("email", "must be a valid email address")
	}
	if len(in.Password) < 8 {
		return invalid("password", "must be at least 8 characters")
	}
	if in.Token == "" {
		return invalid("token", "is required")
	}

	user, err := s.repo.GetByEmailAndToken(ctx, in.Email, in.Token)
	if err != nil {
		return err
	}

	// Uniqueness check excludes the user's own email so resubmitting the
	// same registration form is tolerated.
	taken, err := s.repo.UsernameTaken(ctx, in.Username, in.Email)
	if err != nil {
		return fmt.Errorf("check username: %w", err)
	}
	if taken {
		return invalid("username", "already taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	pin, err := uniquePin(ctx, s.repo)
	if err != nil {
		return err
	}

	if err := s.repo.CompleteRegistration(ctx, user.ID, strings.TrimSpace(in.Name), in.Username, string(hash), pin); err != nil {
		return err
	}

	if err := s.mailer.Send(ctx, mail.PinMessage(in.Email, pin)); err != nil {
		return fmt.Errorf("send pin: %w", err)
	}
	s.log.Info("user registered", zap.String("email", in.Email), zap.String("username", in.Username))
	return nil
}

// ConfirmPin activates the account holding this pin. The pin is cleared
// on success, so a second confirmation with the same value is ErrNotFound.
func (s *service) ConfirmPin(ctx context.Context, pin string) error {
	if len(pin) != pinDigits {
		return invalid("pin", "must be exactly 6 characters")
	}
	user, err := s.repo.GetByPin(ctx, pin)
	if err != nil {
		return err
	}
	if err := s.repo.Confirm(ctx, user.ID, time.Now().UTC()); err != nil {
		return err
	}
	s.log.Info("account confirmed", zap.String("email", user.Email))
	return nil
}

// Login verifies credentials and issues a bearer token. An unconfirmed
// account with valid credentials is ErrNotConfirmed, deliberately
// distinct from ErrInvalidCredentials.
func (s *service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = normalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return LoginResult{}, invalid("email", "must be a valid email address")
	}
	if password == "" {
		return LoginResult{}, invalid("password", "is required")
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	if !user.Confirmed() {
		return LoginResult{}, ErrNotConfirmed
	}

	token, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	return LoginResult{User: user, Token: token}, nil
}

func (s *service) Profile(ctx context.Context, userID uuid.UUID) (User, error) {
	return s.repo.GetByID(ctx, userID)
}

// UpdateProfile sets the display name and, when an avatar is supplied,
// stores the new asset under a fresh key before deleting the old one.
// Old-asset deletion is best-effort: an orphaned object is acceptable,
// a failed profile update is not.
func (s *service) UpdateProfile(ctx context.Context, userID uuid.UUID, name string, avatar *Avatar) (User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, invalid("name", "is required")
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return User{}, err
	}

	avatarPath := user.AvatarPath
	if avatar != nil {
		format, err := validateAvatar(*avatar)
		if err != nil {
			return User{}, err
		}
		ext := "jpg"
		if format == "png" {
			ext = "png"
		}
		avatarPath = fmt.Sprintf("avatars/%s.%s", uuid.New(), ext)
		if err := s.avatars.Put(ctx, avatarPath, avatar.Data, "image/"+format); err != nil {
			return User{}, &StorageError{Op: "put", Err: err}
		}
	}

	if err := s.repo.UpdateProfile(ctx, userID, name, avatarPath); err != nil {
		return User{}, err
	}

	if avatar != nil && user.AvatarPath != "" && user.AvatarPath != avatarPath {
		if err := s.avatars.Delete(ctx, user.AvatarPath); err != nil {
			s.log.Warn("old avatar not deleted",
				zap.String("path", user.AvatarPath), zap.Error(err))
		}
	}

	return s.repo.GetByID(ctx, userID)
}

// EnsureAdmin seeds a confirmed admin account on first startup so invites
// have someone to originate from. No-op when any admin already exists or
// when no bootstrap credentials are configured.
func (s *service) EnsureAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	exists, err := s.repo.HasAdmin(ctx)
	if err != nil {
		return fmt.Errorf("check admin: %w", err)
	}
	if exists {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	admin := User{
		ID:           uuid.New(),
		Name:         "Administrator",
		Email:        normalizeEmail(email),
		PasswordHash: string(hash),
		Role:         RoleAdmin,
		RegisteredAt: &now,
		CreatedAt:    now,
	}
	if err := s.repo.CreateAdmin(ctx, admin); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil
		}
		return err
	}
	s.log.Info("bootstrap admin created", zap.String("email", admin.Email))
	return nil
}
