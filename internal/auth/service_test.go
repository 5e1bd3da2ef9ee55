package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
	"github.com/JakeFAU/minuteswatch/internal/storage/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	svc, err := NewService(store, NewPasswordHasher(bcrypt.MinCost), newTestIssuer(t, nil), nil)
	require.NoError(t, err)
	return svc, store
}

func TestServiceLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	created, err := svc.CreateUser(ctx, NewUser{Username: "clerk", Email: "clerk@example.gov", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, minutes.RoleUser, created.Role)

	session, err := svc.Login(ctx, "clerk", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, created.ID, session.User.ID)
	assert.NotEmpty(t, session.Token)

	p, err := svc.Authenticate(session.Token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, p.UserID)
	assert.False(t, p.IsAdmin())

	_, err = svc.Login(ctx, "clerk", "S3CRET-PASS")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.ErrorIs(t, err, minutes.ErrUnauthorized)

	_, err = svc.Login(ctx, "nobody", "s3cret-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestServiceCreateUserValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)

	cases := map[string]NewUser{
		"short username": {Username: "ab", Password: "long-enough"},
		"bad characters": {Username: "a b c", Password: "long-enough"},
		"short password": {Username: "valid", Password: "short"},
		"long password":  {Username: "valid", Password: strings.Repeat("p", MaxPasswordBytes+1)},
		"unknown role":   {Username: "valid", Password: "long-enough", Role: "root"},
	}
	for name, in := range cases {
		_, err := svc.CreateUser(ctx, in)
		assert.ErrorIs(t, err, minutes.ErrInvalid, name)
	}

	_, err := svc.CreateUser(ctx, NewUser{Username: "dup", Password: "long-enough"})
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, NewUser{Username: "dup", Password: "long-enough"})
	require.ErrorIs(t, err, minutes.ErrConflict)
}

func TestServiceChangePassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)
	user, err := svc.CreateUser(ctx, NewUser{Username: "clerk", Password: "first-pass"})
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, user.ID, "wrong-pass", "second-pass")
	require.ErrorIs(t, err, minutes.ErrUnauthorized)

	err = svc.ChangePassword(ctx, user.ID, "first-pass", "short")
	require.ErrorIs(t, err, minutes.ErrInvalid)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, "first-pass", "second-pass"))
	_, err = svc.Login(ctx, "clerk", "first-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "clerk", "second-pass")
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, 999, "x", "y")
	require.ErrorIs(t, err, minutes.ErrNotFound)
}

func TestServiceIssueAuthCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t)
	user, err := svc.CreateUser(ctx, NewUser{Username: "clerk", Password: "first-pass"})
	require.NoError(t, err)

	code, err := svc.IssueAuthCode(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, code, AuthCodeLength)
	for _, r := range code {
		assert.True(t, strings.ContainsRune(authCodeAlphabet, r), "unexpected rune %q", r)
	}

	_, err = svc.Login(ctx, "clerk", "first-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "clerk", code)
	require.NoError(t, err)

	_, err = svc.IssueAuthCode(ctx, 999)
	require.ErrorIs(t, err, minutes.ErrNotFound)
}

func TestServiceEnsureAdmin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, store := newTestService(t)

	created, err := svc.EnsureAdmin(ctx, "", "ignored")
	require.NoError(t, err)
	assert.False(t, created)

	created, err = svc.EnsureAdmin(ctx, "admin", "bootstrap-pass")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.EnsureAdmin(ctx, "admin", "bootstrap-pass")
	require.NoError(t, err)
	assert.False(t, created)

	admin, err := store.GetUserByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, minutes.RoleAdmin, admin.Role)
}

func TestNewServiceRequiresDeps(t *testing.T) {
	t.Parallel()
	_, err := NewService(nil, NewPasswordHasher(bcrypt.MinCost), nil, nil)
	require.ErrorIs(t, err, minutes.ErrInvalid)
}

func TestSessionExpiryMatchesTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := &stepClock{t: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	svc, err := NewService(memory.NewStore(), NewPasswordHasher(bcrypt.MinCost), newTestIssuer(t, clock), nil)
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, NewUser{Username: "clerk", Password: "first-pass"})
	require.NoError(t, err)

	session, err := svc.Login(ctx, "clerk", "first-pass")
	require.NoError(t, err)
	assert.Equal(t, clock.t.Add(time.Hour), session.ExpiresAt)
}
