package account

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/artem13815/accounts/pkg/mail"
)

// --- fakes ---

type fakeRepo struct {
	users map[uuid.UUID]*User
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[uuid.UUID]*User)}
}

func (r *fakeRepo) Create(ctx context.Context, user User) error {
	for _, u := range r.users {
		if u.Email == user.Email {
			return ErrEmailTaken
		}
	}
	u := user
	r.users[user.ID] = &u
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	if u, ok := r.users[id]; ok {
		return *u, nil
	}
	return User{}, ErrNotFound
}

func (r *fakeRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return *u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *fakeRepo) GetByEmailAndToken(ctx context.Context, email, token string) (User, error) {
	for _, u := range r.users {
		if u.Email == email && u.InviteToken != "" && u.InviteToken == token {
			return *u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *fakeRepo) GetByPin(ctx context.Context, pin string) (User, error) {
	for _, u := range r.users {
		if u.PIN != "" && u.PIN == pin {
			return *u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *fakeRepo) UsernameTaken(ctx context.Context, username, exceptEmail string) (bool, error) {
	for _, u := range r.users {
		if u.Username == username && u.Email != exceptEmail {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) PinInUse(ctx context.Context, pin string) (bool, error) {
	for _, u := range r.users {
		if u.PIN == pin {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) CompleteRegistration(ctx context.Context, id uuid.UUID, name, username, passwordHash, pin string) error {
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Name = name
	u.Username = username
	u.PasswordHash = passwordHash
	u.PIN = pin
	u.InviteToken = ""
	return nil
}

func (r *fakeRepo) Confirm(ctx context.Context, id uuid.UUID, at time.Time) error {
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PIN = ""
	u.RegisteredAt = &at
	return nil
}

func (r *fakeRepo) UpdateProfile(ctx context.Context, id uuid.UUID, name, avatarPath string) error {
	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Name = name
	u.AvatarPath = avatarPath
	return nil
}

func (r *fakeRepo) HasAdmin(ctx context.Context) (bool, error) {
	for _, u := range r.users {
		if u.Role == RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) CreateAdmin(ctx context.Context, user User) error {
	return r.Create(ctx, user)
}

type fakeMailer struct {
	sent []mail.Message
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, msg mail.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type fakeIssuer struct{}

func (fakeIssuer) Issue(ctx context.Context, user User) (string, error) {
	return "bearer-" + user.ID.String(), nil
}

type fakeObjectStore struct {
	objects   map[string][]byte
	putErr    error
	deleteErr error
	deleted   []string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (s *fakeObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[key] = data
	return nil
}

func (s *fakeObjectStore) Delete(ctx context.Context, key string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, key)
	delete(s.objects, key)
	return nil
}

// --- helpers ---

type fixture struct {
	repo    *fakeRepo
	mailer  *fakeMailer
	store   *fakeObjectStore
	svc     UseCase
	adminID uuid.UUID
	userID  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:   newFakeRepo(),
		mailer: &fakeMailer{},
		store:  newFakeObjectStore(),
	}
	f.svc = NewService(f.repo, fakeIssuer{}, f.mailer, f.store, "http://localhost:8080", zap.NewNop())

	hash, err := bcrypt.GenerateFromPassword([]byte("adminpass123"), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now().UTC()
	f.adminID = uuid.New()
	f.repo.users[f.adminID] = &User{
		ID:           f.adminID,
		Name:         "Admin",
		Email:        "admin@x.com",
		PasswordHash: string(hash),
		Role:         RoleAdmin,
		RegisteredAt: &now,
		CreatedAt:    now,
	}

	hash, err = bcrypt.GenerateFromPassword([]byte("memberpass1"), bcrypt.MinCost)
	require.NoError(t, err)
	f.userID = uuid.New()
	f.repo.users[f.userID] = &User{
		ID:           f.userID,
		Name:         "Member",
		Username:     "member",
		Email:        "member@x.com",
		PasswordHash: string(hash),
		Role:         RoleUser,
		RegisteredAt: &now,
		CreatedAt:    now,
	}
	return f
}

var tokenPattern = regexp.MustCompile(`token=([0-9a-f]{64})`)
var pinPattern = regexp.MustCompile(`PIN: (\d{6})`)

func (f *fixture) invite(t *testing.T, email string) string {
	t.Helper()
	require.NoError(t, f.svc.Invite(context.Background(), f.adminID, email))
	last := f.mailer.sent[len(f.mailer.sent)-1]
	require.Equal(t, email, last.To)
	m := tokenPattern.FindStringSubmatch(last.Body)
	require.Len(t, m, 2, "invite mail must carry the token link")
	return m[1]
}

func (f *fixture) register(t *testing.T, email, username, token string) string {
	t.Helper()
	err := f.svc.Register(context.Background(), RegisterInput{
		Name:     "A",
		Username: username,
		Email:    email,
		Password: "longpass1",
		Token:    token,
	})
	require.NoError(t, err)
	last := f.mailer.sent[len(f.mailer.sent)-1]
	require.Equal(t, email, last.To)
	m := pinPattern.FindStringSubmatch(last.Body)
	require.Len(t, m, 2, "pin mail must carry a 6-digit pin")
	return m[1]
}

// --- tests ---

func TestInviteVerifyRoundTrip(t *testing.T) {
	f := newFixture(t)
	token := f.invite(t, "a@x.com")

	user, err := f.svc.VerifyInvite(context.Background(), "a@x.com", token)
	require.NoError(t, err)
	require.Equal(t, "a@x.com", user.Email)
	require.Equal(t, token, user.InviteToken)

	_, err = f.svc.VerifyInvite(context.Background(), "a@x.com", "wrong-token")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInviteRejectsNonAdmin(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Invite(context.Background(), f.userID, "a@x.com")
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.repo.GetByEmail(context.Background(), "a@x.com")
	require.ErrorIs(t, err, ErrNotFound, "no record may be created on forbidden invite")
	require.Empty(t, f.mailer.sent)
}

func TestInviteRejectsBadEmail(t *testing.T) {
	f := newFixture(t)
	var vErr *ValidationError
	require.ErrorAs(t, f.svc.Invite(context.Background(), f.adminID, "not-an-email"), &vErr)
}

func TestInviteConflictsOnKnownEmail(t *testing.T) {
	f := newFixture(t)
	f.invite(t, "a@x.com")
	require.ErrorIs(t, f.svc.Invite(context.Background(), f.adminID, "a@x.com"), ErrEmailTaken)
	require.ErrorIs(t, f.svc.Invite(context.Background(), f.adminID, "member@x.com"), ErrEmailTaken)
}

func TestFullLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token := f.invite(t, "a@x.com")
	pin := f.register(t, "a@x.com", "alice", token)

	// Registered but unconfirmed: pin set, token cleared, no login yet.
	user, err := f.repo.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.Equal(t, pin, user.PIN)
	require.Empty(t, user.InviteToken)
	require.Nil(t, user.RegisteredAt)

	_, err = f.svc.Login(ctx, "a@x.com", "longpass1")
	require.ErrorIs(t, err, ErrNotConfirmed)

	require.NoError(t, f.svc.ConfirmPin(ctx, pin))

	user, err = f.repo.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.Empty(t, user.PIN)
	require.NotNil(t, user.RegisteredAt)

	result, err := f.svc.Login(ctx, "a@x.com", "longpass1")
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)

	// The pin is single-use.
	require.ErrorIs(t, f.svc.ConfirmPin(ctx, pin), ErrNotFound)
}

func TestRegisterUnknownTokenMutatesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.invite(t, "a@x.com")
	sentBefore := len(f.mailer.sent)

	err := f.svc.Register(ctx, RegisterInput{
		Name:     "A",
		Username: "alice",
		Email:    "a@x.com",
		Password: "longpass1",
		Token:    strings.Repeat("0", 64),
	})
	require.ErrorIs(t, err, ErrNotFound)

	user, err := f.repo.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.Empty(t, user.Name)
	require.Empty(t, user.PIN)
	require.Len(t, f.mailer.sent, sentBefore)
}

func TestRegisterUsernameLengthBoundaries(t *testing.T) {
	cases := []struct {
		username string
		ok       bool
	}{
		{"abc", false},
		{"abcd", true},
		{strings.Repeat("u", 20), true},
		{strings.Repeat("u", 21), false},
	}
	for _, tc := range cases {
		t.Run(tc.username, func(t *testing.T) {
			f := newFixture(t)
			token := f.invite(t, "a@x.com")
			err := f.svc.Register(context.Background(), RegisterInput{
				Name:     "A",
				Username: tc.username,
				Email:    "a@x.com",
				Password: "longpass1",
				Token:    token,
			})
			if tc.ok {
				require.NoError(t, err)
			} else {
				var vErr *ValidationError
				require.ErrorAs(t, err, &vErr)
				require.Equal(t, "username", vErr.Field)
			}
		})
	}
}

func TestRegisterUsernameUniqueScopedByEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token := f.invite(t, "a@x.com")
	f.register(t, "a@x.com", "alice", token)

	// Another invitee cannot take the same username.
	otherToken := f.invite(t, "b@x.com")
	err := f.svc.Register(ctx, RegisterInput{
		Name: "B", Username: "alice", Email: "b@x.com",
		Password: "longpass1", Token: otherToken,
	})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "username", vErr.Field)

	// The check is scoped by email: the same email/username pair stays
	// clean, so resubmitting a registration form is tolerated.
	taken, err := f.repo.UsernameTaken(ctx, "alice", "a@x.com")
	require.NoError(t, err)
	require.False(t, taken)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	token := f.invite(t, "a@x.com")
	base := RegisterInput{
		Name: "A", Username: "alice", Email: "a@x.com",
		Password: "longpass1", Token: token,
	}

	for name, mutate := range map[string]func(*RegisterInput){
		"empty name":     func(in *RegisterInput) { in.Name = "  " },
		"short password": func(in *RegisterInput) { in.Password = "short" },
		"bad email":      func(in *RegisterInput) { in.Email = "nope" },
		"missing token":  func(in *RegisterInput) { in.Token = "" },
	} {
		t.Run(name, func(t *testing.T) {
			in := base
			mutate(&in)
			var vErr *ValidationError
			require.ErrorAs(t, f.svc.Register(context.Background(), in), &vErr)
		})
	}
}

func TestConfirmPinRejectsMalformed(t *testing.T) {
	f := newFixture(t)
	var vErr *ValidationError
	require.ErrorAs(t, f.svc.ConfirmPin(context.Background(), "12345"), &vErr)
	require.ErrorAs(t, f.svc.ConfirmPin(context.Background(), "1234567"), &vErr)
	require.ErrorIs(t, f.svc.ConfirmPin(context.Background(), "999999"), ErrNotFound)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "member@x.com", "wrongpassword")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "nobody@x.com", "whatever123")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	var vErr *ValidationError
	_, err = f.svc.Login(ctx, "member@x.com", "")
	require.ErrorAs(t, err, &vErr)
}

func TestLifecycleInvariant(t *testing.T) {
	// pin set implies unconfirmed; confirmed implies pin cleared.
	// Checked over every stored user after each transition.
	f := newFixture(t)
	ctx := context.Background()

	check := func() {
		t.Helper()
		for _, u := range f.repo.users {
			if u.PIN != "" {
				require.Nil(t, u.RegisteredAt)
			}
			if u.RegisteredAt != nil {
				require.Empty(t, u.PIN)
			}
		}
	}

	token := f.invite(t, "a@x.com")
	check()
	pin := f.register(t, "a@x.com", "alice", token)
	check()
	require.NoError(t, f.svc.ConfirmPin(ctx, pin))
	check()
}

// --- profile ---

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

func TestUpdateProfileReplacesAvatar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.UpdateProfile(ctx, f.userID, "Member One", &Avatar{Data: encodePNG(t, 64, 64)})
	require.NoError(t, err)
	require.Equal(t, "Member One", user.Name)
	require.True(t, strings.HasPrefix(user.AvatarPath, "avatars/"))
	require.True(t, strings.HasSuffix(user.AvatarPath, ".png"))
	first := user.AvatarPath

	user, err = f.svc.UpdateProfile(ctx, f.userID, "Member One", &Avatar{Data: encodeJPEG(t, 32, 32)})
	require.NoError(t, err)
	require.NotEqual(t, first, user.AvatarPath)
	require.True(t, strings.HasSuffix(user.AvatarPath, ".jpg"))
	require.Contains(t, f.store.deleted, first, "old avatar object must be removed")
}

func TestUpdateProfileKeepsAvatarWhenOmitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.UpdateProfile(ctx, f.userID, "With Avatar", &Avatar{Data: encodePNG(t, 10, 10)})
	require.NoError(t, err)
	path := user.AvatarPath

	user, err = f.svc.UpdateProfile(ctx, f.userID, "Renamed", nil)
	require.NoError(t, err)
	require.Equal(t, "Renamed", user.Name)
	require.Equal(t, path, user.AvatarPath)
}

func TestUpdateProfileValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var vErr *ValidationError

	_, err := f.svc.UpdateProfile(ctx, f.userID, "  ", nil)
	require.ErrorAs(t, err, &vErr)

	_, err = f.svc.UpdateProfile(ctx, f.userID, "Name", &Avatar{Data: []byte("not an image")})
	require.ErrorAs(t, err, &vErr)

	_, err = f.svc.UpdateProfile(ctx, f.userID, "Name", &Avatar{Data: encodePNG(t, 300, 100)})
	require.ErrorAs(t, err, &vErr)
}

func TestUpdateProfileStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.store.putErr = errors.New("bucket unavailable")

	_, err := f.svc.UpdateProfile(context.Background(), f.userID, "Name", &Avatar{Data: encodePNG(t, 10, 10)})
	var sErr *StorageError
	require.ErrorAs(t, err, &sErr)

	user, err := f.repo.GetByID(context.Background(), f.userID)
	require.NoError(t, err)
	require.Equal(t, "Member", user.Name, "record must be untouched on storage failure")
}

func TestUpdateProfileSurvivesDeleteFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.UpdateProfile(ctx, f.userID, "Name", &Avatar{Data: encodePNG(t, 10, 10)})
	require.NoError(t, err)
	first := user.AvatarPath

	// Old-object cleanup failing must not fail the update itself.
	f.store.deleteErr = errors.New("delete refused")
	user, err = f.svc.UpdateProfile(ctx, f.userID, "Name", &Avatar{Data: encodePNG(t, 10, 10)})
	require.NoError(t, err)
	require.NotEqual(t, first, user.AvatarPath)
}

// --- admin bootstrap ---

func TestEnsureAdmin(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, fakeIssuer{}, &fakeMailer{}, newFakeObjectStore(), "http://localhost", zap.NewNop())
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, "root@x.com", "rootpass123"))
	admin, err := repo.GetByEmail(ctx, "root@x.com")
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, admin.Role)
	require.NotNil(t, admin.RegisteredAt, "bootstrap admin must be able to log in")

	// Idempotent once an admin exists.
	require.NoError(t, svc.EnsureAdmin(ctx, "other@x.com", "otherpass123"))
	_, err = repo.GetByEmail(ctx, "other@x.com")
	require.ErrorIs(t, err, ErrNotFound)

	// No-op without configured credentials.
	require.NoError(t, NewService(newFakeRepo(), fakeIssuer{}, &fakeMailer{}, newFakeObjectStore(), "", zap.NewNop()).
		EnsureAdmin(ctx, "", ""))
}
