package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

// CreateUser stores a user and, when a secret is given, its credential.
func (s *Store) CreateUser(_ context.Context, user minutes.User, cred minutes.Credential) (minutes.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == user.Username {
			return minutes.User{}, fmt.Errorf("create user %q: %w", user.Username, minutes.ErrConflict)
		}
	}
	provider := cred.Provider
	if provider == "" {
		provider = minutes.ProviderLocal
	}
	if cred.SecretHash != "" {
		if _, ok := knownProviders[provider]; !ok {
			return minutes.User{}, fmt.Errorf("create user: unknown provider %q: %w", provider, minutes.ErrInvalid)
		}
	}

	s.nextUserID++
	now := s.now()
	user.ID = s.nextUserID
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Providers = nil
	s.users[user.ID] = user

	if cred.SecretHash != "" {
		s.credentials[user.ID] = map[string]minutes.Credential{
			provider: {UserID: user.ID, Provider: provider, SecretHash: cred.SecretHash, CreatedAt: now, UpdatedAt: now},
		}
	}
	return s.withProviders(user), nil
}

// GetUser loads a user by ID.
func (s *Store) GetUser(_ context.Context, id int64) (minutes.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return minutes.User{}, fmt.Errorf("get user %d: %w", id, minutes.ErrNotFound)
	}
	return s.withProviders(user), nil
}

// GetUserByUsername loads a user by username.
func (s *Store) GetUserByUsername(_ context.Context, username string) (minutes.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.findUsername(username)
	if !ok {
		return minutes.User{}, fmt.Errorf("get user %q: %w", username, minutes.ErrNotFound)
	}
	return s.withProviders(user), nil
}

// ListUsers returns users ordered by username.
func (s *Store) ListUsers(_ context.Context) ([]minutes.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]minutes.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, s.withProviders(u))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// UpdateUser rewrites the mutable profile fields and role.
func (s *Store) UpdateUser(_ context.Context, user minutes.User) (minutes.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[user.ID]
	if !ok {
		return minutes.User{}, fmt.Errorf("update user %d: %w", user.ID, minutes.ErrNotFound)
	}
	existing.Email = user.Email
	existing.FullName = user.FullName
	existing.Role = user.Role
	existing.UpdatedAt = s.now()
	s.users[user.ID] = existing
	return s.withProviders(existing), nil
}

// DeleteUser removes a user and its credentials.
func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("delete user %d: %w", id, minutes.ErrNotFound)
	}
	delete(s.users, id)
	delete(s.credentials, id)
	return nil
}

// FindCredential resolves a user and its credential for provider.
func (s *Store) FindCredential(_ context.Context, username, provider string) (minutes.User, minutes.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.findUsername(username)
	if !ok {
		return minutes.User{}, minutes.Credential{}, fmt.Errorf("find credential: %w", minutes.ErrNotFound)
	}
	cred, ok := s.credentials[user.ID][provider]
	if !ok {
		return minutes.User{}, minutes.Credential{}, fmt.Errorf("find credential: %w", minutes.ErrNotFound)
	}
	user.Providers = []string{provider}
	return user, cred, nil
}

// SetCredential creates or replaces the secret for (user, provider).
func (s *Store) SetCredential(_ context.Context, cred minutes.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cred.Provider == "" {
		cred.Provider = minutes.ProviderLocal
	}
	if _, ok := knownProviders[cred.Provider]; !ok {
		return fmt.Errorf("set credential: unknown provider %q: %w", cred.Provider, minutes.ErrInvalid)
	}
	if _, ok := s.users[cred.UserID]; !ok {
		return fmt.Errorf("set credential: user %d: %w", cred.UserID, minutes.ErrInvalid)
	}
	now := s.now()
	creds := s.credentials[cred.UserID]
	if creds == nil {
		creds = make(map[string]minutes.Credential)
		s.credentials[cred.UserID] = creds
	}
	if existing, ok := creds[cred.Provider]; ok {
		cred.CreatedAt = existing.CreatedAt
	} else {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now
	creds[cred.Provider] = cred
	return nil
}

// ListCredentials returns credential metadata ordered by username, provider.
func (s *Store) ListCredentials(_ context.Context) ([]minutes.CredentialInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []minutes.CredentialInfo
	for userID, creds := range s.credentials {
		user := s.users[userID]
		for provider, cred := range creds {
			out = append(out, minutes.CredentialInfo{
				UserID:    userID,
				Username:  user.Username,
				Provider:  provider,
				UpdatedAt: cred.UpdatedAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].Provider < out[j].Provider
	})
	return out, nil
}

func (s *Store) findUsername(username string) (minutes.User, bool) {
	for _, u := range s.users {
		if u.Username == username {
			return u, true
		}
	}
	return minutes.User{}, false
}

func (s *Store) withProviders(user minutes.User) minutes.User {
	creds := s.credentials[user.ID]
	providers := make([]string, 0, len(creds))
	for name := range creds {
		providers = append(providers, name)
	}
	sort.Strings(providers)
	user.Providers = providers
	return user
}
