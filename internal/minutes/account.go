package minutes

import "time"

// Role gates access to admin routes.
type Role string

// Known roles.
const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// ProviderLocal is the username/password provider.
const ProviderLocal = "local"

// User is an account that can sign in to the web application.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	Providers []string  `json:"providers,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Credential is the hashed secret tied to a provider.
type Credential struct {
	UserID     int64     `json:"user_id"`
	Provider   string    `json:"provider"`
	SecretHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CredentialInfo is credential metadata safe to show to admins.
type CredentialInfo struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Provider  string    `json:"provider"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Client is a customer record whose keywords the scraper tracks.
type Client struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Organization string    `json:"organization"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Notes        string    `json:"notes"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
