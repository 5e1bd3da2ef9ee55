package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/minuteswatch/internal/metrics"
	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

const (
	// MinPasswordBytes is the shortest accepted password.
	MinPasswordBytes = 8
	// AuthCodeLength is the length of a one-time login code.
	AuthCodeLength = 12

	// 32 symbols without 0/O or 1/I, so a random byte maps without bias.
	authCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,64}$`)

	// ErrInvalidCredentials is returned for an unknown user or wrong password.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", minutes.ErrUnauthorized)
)

// Session is the result of a successful login.
type Session struct {
	User      minutes.User `json:"user"`
	Token     string       `json:"-"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// NewUser is the input to CreateUser.
type NewUser struct {
	Username string       `json:"username"`
	Email    string       `json:"email"`
	FullName string       `json:"full_name"`
	Role     minutes.Role `json:"role"`
	Password string       `json:"password"`
}

// Service implements login and credential management over a UserStore.
type Service struct {
	users     minutes.UserStore
	passwords *PasswordHasher
	tokens    *TokenIssuer
	logger    *zap.Logger
	dummyHash string
}

// NewService wires the service. It hashes a throwaway secret once so logins
// for unknown users spend the same bcrypt work as real ones.
func NewService(users minutes.UserStore, passwords *PasswordHasher, tokens *TokenIssuer, logger *zap.Logger) (*Service, error) {
	if users == nil || passwords == nil || tokens == nil {
		return nil, fmt.Errorf("auth service: users, passwords, and tokens are required: %w", minutes.ErrInvalid)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dummy, err := passwords.Hash("minuteswatch-timing-equalizer")
	if err != nil {
		return nil, err
	}
	return &Service{
		users:     users,
		passwords: passwords,
		tokens:    tokens,
		logger:    logger.Named("auth"),
		dummyHash: dummy,
	}, nil
}

// Tokens exposes the issuer for middleware wiring.
func (s *Service) Tokens() *TokenIssuer {
	return s.tokens
}

// Login verifies username/password against the local credential and issues a
// session token.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	user, cred, err := s.users.FindCredential(ctx, username, minutes.ProviderLocal)
	if err != nil {
		if errors.Is(err, minutes.ErrNotFound) {
			s.passwords.Verify(s.dummyHash, password)
			metrics.ObserveLogin("invalid")
			s.logger.Info("login rejected", zap.String("username", username), zap.String("reason", "unknown user"))
			return Session{}, ErrInvalidCredentials
		}
		metrics.ObserveLogin("error")
		return Session{}, fmt.Errorf("find credential: %w", err)
	}
	if !s.passwords.Verify(cred.SecretHash, password) {
		metrics.ObserveLogin("invalid")
		s.logger.Info("login rejected", zap.String("username", username), zap.String("reason", "bad password"))
		return Session{}, ErrInvalidCredentials
	}

	full, err := s.users.GetUser(ctx, user.ID)
	if err != nil {
		metrics.ObserveLogin("error")
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	token, expires, err := s.tokens.Issue(full)
	if err != nil {
		metrics.ObserveLogin("error")
		return Session{}, err
	}
	metrics.ObserveLogin("success")
	s.logger.Info("login succeeded", zap.Int64("user_id", full.ID), zap.String("username", full.Username))
	return Session{User: full, Token: token, ExpiresAt: expires}, nil
}

// Authenticate parses a session token into the calling principal.
func (s *Service) Authenticate(token string) (Principal, error) {
	return s.tokens.Parse(token)
}

// CreateUser validates input, hashes the password, and stores the user with
// its local credential.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (minutes.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if !usernamePattern.MatchString(in.Username) {
		return minutes.User{}, fmt.Errorf("username must be 3-64 characters of letters, digits, '.', '_' or '-': %w", minutes.ErrInvalid)
	}
	if in.Role == "" {
		in.Role = minutes.RoleUser
	}
	if !in.Role.Valid() {
		return minutes.User{}, fmt.Errorf("unknown role %q: %w", in.Role, minutes.ErrInvalid)
	}
	if err := validatePassword(in.Password); err != nil {
		return minutes.User{}, err
	}
	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return minutes.User{}, err
	}
	user, err := s.users.CreateUser(ctx, minutes.User{
		Username: in.Username,
		Email:    strings.TrimSpace(in.Email),
		FullName: strings.TrimSpace(in.FullName),
		Role:     in.Role,
	}, minutes.Credential{Provider: minutes.ProviderLocal, SecretHash: hash})
	if err != nil {
		return minutes.User{}, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user created", zap.Int64("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// ChangePassword replaces the local credential after verifying current.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	_, cred, err := s.users.FindCredential(ctx, user.Username, minutes.ProviderLocal)
	if err != nil {
		if errors.Is(err, minutes.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("find credential: %w", err)
	}
	if !s.passwords.Verify(cred.SecretHash, current) {
		return fmt.Errorf("current password is incorrect: %w", minutes.ErrUnauthorized)
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	hash, err := s.passwords.Hash(next)
	if err != nil {
		return err
	}
	if err := s.users.SetCredential(ctx, minutes.Credential{UserID: userID, Provider: minutes.ProviderLocal, SecretHash: hash}); err != nil {
		return fmt.Errorf("set credential: %w", err)
	}
	s.logger.Info("password changed", zap.Int64("user_id", userID))
	return nil
}

// IssueAuthCode replaces the user's local credential with a random one-time
// code and returns the code. It is shown once; only its hash is stored.
func (s *Service) IssueAuthCode(ctx context.Context, userID int64) (string, error) {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}
	code, err := NewAuthCode()
	if err != nil {
		return "", err
	}
	hash, err := s.passwords.Hash(code)
	if err != nil {
		return "", err
	}
	if err := s.users.SetCredential(ctx, minutes.Credential{UserID: userID, Provider: minutes.ProviderLocal, SecretHash: hash}); err != nil {
		return "", fmt.Errorf("set credential: %w", err)
	}
	s.logger.Info("auth code issued", zap.Int64("user_id", userID))
	return code, nil
}

// EnsureAdmin creates an admin account named username when none exists and
// reports whether it did.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	if strings.TrimSpace(username) == "" {
		return false, nil
	}
	if _, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username)); err == nil {
		return false, nil
	} else if !errors.Is(err, minutes.ErrNotFound) {
		return false, fmt.Errorf("look up admin: %w", err)
	}
	if _, err := s.CreateUser(ctx, NewUser{Username: username, Role: minutes.RoleAdmin, Password: password}); err != nil {
		if errors.Is(err, minutes.ErrConflict) {
			return false, nil
		}
		return false, fmt.Errorf("bootstrap admin: %w", err)
	}
	return true, nil
}

// NewAuthCode returns a random code drawn from an unambiguous alphabet.
func NewAuthCode() (string, error) {
	buf := make([]byte, AuthCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate auth code: %w", err)
	}
	for i, b := range buf {
		buf[i] = authCodeAlphabet[int(b)%len(authCodeAlphabet)]
	}
	return string(buf), nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordBytes {
		return fmt.Errorf("password must be at least %d bytes: %w", MinPasswordBytes, minutes.ErrInvalid)
	}
	if len(password) > MaxPasswordBytes {
		return fmt.Errorf("password exceeds %d bytes: %w", MaxPasswordBytes, minutes.ErrInvalid)
	}
	return nil
}
