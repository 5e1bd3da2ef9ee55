package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

const userColumns = `u.id, u.username, u.email, u.full_name, u.role, u.created_at, u.updated_at,
	COALESCE(array_agg(p.name ORDER BY p.name) FILTER (WHERE p.name IS NOT NULL), '{}') AS providers`

const userFrom = `
FROM users u
LEFT JOIN auth_credentials c ON c.user_id = u.id
LEFT JOIN auth_providers p ON p.id = c.provider_id`

const upsertCredentialSQL = `
INSERT INTO auth_credentials (user_id, provider_id, secret_hash)
SELECT $1, p.id, $3 FROM auth_providers p WHERE p.name = $2
ON CONFLICT (user_id, provider_id)
DO UPDATE SET secret_hash = EXCLUDED.secret_hash, updated_at = now()`

// CreateUser inserts the user and, when a secret is given, its credential in
// one transaction.
func (s *Store) CreateUser(ctx context.Context, user minutes.User, cred minutes.Credential) (minutes.User, error) {
	created := user
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
INSERT INTO users (username, email, full_name, role)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at, updated_at`,
			user.Username, user.Email, user.FullName, string(user.Role))
		if err := row.Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt); err != nil {
			return err
		}
		if cred.SecretHash == "" {
			return nil
		}
		provider := cred.Provider
		if provider == "" {
			provider = minutes.ProviderLocal
		}
		tag, err := tx.Exec(ctx, upsertCredentialSQL, created.ID, provider, cred.SecretHash)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("unknown provider %q: %w", provider, minutes.ErrInvalid)
		}
		created.Providers = []string{provider}
		return nil
	})
	if err != nil {
		return minutes.User{}, mapErr("create user", err)
	}
	return created, nil
}

// GetUser loads a user and the providers it has credentials for.
func (s *Store) GetUser(ctx context.Context, id int64) (minutes.User, error) {
	row := s.db.QueryRow(ctx, "SELECT "+userColumns+userFrom+`
WHERE u.id = $1
GROUP BY u.id`, id)
	user, err := scanUser(row)
	if err != nil {
		return minutes.User{}, mapErr("get user", err)
	}
	return user, nil
}

// GetUserByUsername loads a user by its unique username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (minutes.User, error) {
	row := s.db.QueryRow(ctx, "SELECT "+userColumns+userFrom+`
WHERE u.username = $1
GROUP BY u.id`, username)
	user, err := scanUser(row)
	if err != nil {
		return minutes.User{}, mapErr("get user by username", err)
	}
	return user, nil
}

// ListUsers returns every user ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]minutes.User, error) {
	rows, err := s.db.Query(ctx, "SELECT "+userColumns+userFrom+`
GROUP BY u.id
ORDER BY u.username`)
	if err != nil {
		return nil, mapErr("list users", err)
	}
	defer rows.Close()

	var users []minutes.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, mapErr("scan user", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list users", err)
	}
	return users, nil
}

// UpdateUser rewrites the mutable profile fields and role.
func (s *Store) UpdateUser(ctx context.Context, user minutes.User) (minutes.User, error) {
	var role string
	updated := user
	err := s.db.QueryRow(ctx, `
UPDATE users SET email = $2, full_name = $3, role = $4, updated_at = now()
WHERE id = $1
RETURNING username, email, full_name, role, created_at, updated_at`,
		user.ID, user.Email, user.FullName, string(user.Role),
	).Scan(&updated.Username, &updated.Email, &updated.FullName, &role, &updated.CreatedAt, &updated.UpdatedAt)
	if err != nil {
		return minutes.User{}, mapErr("update user", err)
	}
	updated.Role = minutes.Role(role)
	return updated, nil
}

// DeleteUser removes a user; credentials cascade.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete user", err)
	}
	return expectOne("delete user", tag)
}

// FindCredential resolves the user and its credential for provider with a
// single join over users, auth_credentials, and auth_providers.
func (s *Store) FindCredential(ctx context.Context, username, provider string) (minutes.User, minutes.Credential, error) {
	var (
		user minutes.User
		cred minutes.Credential
		role string
	)
	err := s.db.QueryRow(ctx, `
SELECT u.id, u.username, u.email, u.full_name, u.role, u.created_at, u.updated_at,
	c.secret_hash, c.created_at, c.updated_at
FROM users u
JOIN auth_credentials c ON c.user_id = u.id
JOIN auth_providers p ON p.id = c.provider_id
WHERE u.username = $1 AND p.name = $2`, username, provider).Scan(
		&user.ID, &user.Username, &user.Email, &user.FullName, &role, &user.CreatedAt, &user.UpdatedAt,
		&cred.SecretHash, &cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		return minutes.User{}, minutes.Credential{}, mapErr("find credential", err)
	}
	user.Role = minutes.Role(role)
	user.Providers = []string{provider}
	cred.UserID = user.ID
	cred.Provider = provider
	return user, cred, nil
}

// SetCredential creates or replaces the secret for (user, provider).
func (s *Store) SetCredential(ctx context.Context, cred minutes.Credential) error {
	provider := cred.Provider
	if provider == "" {
		provider = minutes.ProviderLocal
	}
	tag, err := s.db.Exec(ctx, upsertCredentialSQL, cred.UserID, provider, cred.SecretHash)
	if err != nil {
		return mapErr("set credential", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set credential: unknown provider %q: %w", provider, minutes.ErrInvalid)
	}
	return nil
}

// ListCredentials returns credential metadata for every user, never hashes.
func (s *Store) ListCredentials(ctx context.Context) ([]minutes.CredentialInfo, error) {
	rows, err := s.db.Query(ctx, `
SELECT u.id, u.username, p.name, c.updated_at
FROM auth_credentials c
JOIN users u ON u.id = c.user_id
JOIN auth_providers p ON p.id = c.provider_id
ORDER BY u.username, p.name`)
	if err != nil {
		return nil, mapErr("list credentials", err)
	}
	defer rows.Close()

	var out []minutes.CredentialInfo
	for rows.Next() {
		var info minutes.CredentialInfo
		if err := rows.Scan(&info.UserID, &info.Username, &info.Provider, &info.UpdatedAt); err != nil {
			return nil, mapErr("scan credential", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list credentials", err)
	}
	return out, nil
}

func scanUser(row pgx.Row) (minutes.User, error) {
	var (
		user minutes.User
		role string
	)
	if err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.FullName, &role,
		&user.CreatedAt, &user.UpdatedAt, &user.Providers,
	); err != nil {
		return minutes.User{}, err
	}
	user.Role = minutes.Role(role)
	return user, nil
}
