package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

// Claims is the JWT payload of a session token.
type Claims struct {
	UserID   int64        `json:"uid"`
	Username string       `json:"username"`
	Role     minutes.Role `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID   int64
	Username string
	Role     minutes.Role
}

// IsAdmin reports whether the caller holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == minutes.RoleAdmin
}

// TokenConfig controls session token issuance.
type TokenConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// TokenIssuer signs and parses HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer validates cfg and returns an issuer.
func NewTokenIssuer(cfg TokenConfig, clock minutes.Clock) (*TokenIssuer, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("token secret must be at least 32 bytes: %w", minutes.ErrInvalid)
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("token ttl must be positive: %w", minutes.ErrInvalid)
	}
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	return &TokenIssuer{secret: cfg.Secret, issuer: cfg.Issuer, ttl: cfg.TTL, now: now}, nil
}

// TTL returns the lifetime of issued tokens.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// Issue signs a token for user and returns it with its expiry.
func (t *TokenIssuer) Issue(user minutes.User) (string, time.Time, error) {
	issuedAt := t.now()
	expires := issuedAt.Add(t.ttl)
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse validates the signature, issuer, and expiry of token.
func (t *TokenIssuer) Parse(token string) (Principal, error) {
	if token == "" {
		return Principal{}, fmt.Errorf("missing token: %w", minutes.ErrUnauthorized)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("parse token: %w: %w", minutes.ErrUnauthorized, err)
	}
	if !parsed.Valid || claims.UserID == 0 {
		return Principal{}, fmt.Errorf("parse token: %w", minutes.ErrUnauthorized)
	}
	if !claims.Role.Valid() {
		return Principal{}, fmt.Errorf("parse token: unknown role %q: %w", claims.Role, minutes.ErrUnauthorized)
	}
	return Principal{UserID: claims.UserID, Username: claims.Username, Role: claims.Role}, nil
}
