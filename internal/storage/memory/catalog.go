package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

// CreateClient stores a client record.
func (s *Store) CreateClient(_ context.Context, client minutes.Client) (minutes.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextClientID++
	now := s.now()
	client.ID = s.nextClientID
	client.CreatedAt = now
	client.UpdatedAt = now
	s.clients[client.ID] = client
	return client, nil
}

// GetClient loads one client.
func (s *Store) GetClient(_ context.Context, id int64) (minutes.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[id]
	if !ok {
		return minutes.Client{}, fmt.Errorf("get client %d: %w", id, minutes.ErrNotFound)
	}
	return client, nil
}

// ListClients returns clients ordered by name.
func (s *Store) ListClients(_ context.Context) ([]minutes.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]minutes.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateClient rewrites every editable field.
func (s *Store) UpdateClient(_ context.Context, client minutes.Client) (minutes.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.clients[client.ID]
	if !ok {
		return minutes.Client{}, fmt.Errorf("update client %d: %w", client.ID, minutes.ErrNotFound)
	}
	client.CreatedAt = existing.CreatedAt
	client.UpdatedAt = s.now()
	s.clients[client.ID] = client
	return client, nil
}

// DeleteClient removes a client and its keywords.
func (s *Store) DeleteClient(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[id]; !ok {
		return fmt.Errorf("delete client %d: %w", id, minutes.ErrNotFound)
	}
	delete(s.clients, id)
	for kwID, kw := range s.keywords {
		if kw.ClientID == id {
			s.deleteKeywordLocked(kwID)
		}
	}
	return nil
}

// CreateKeyword stores a term. Terms are unique per client, ignoring case.
func (s *Store) CreateKeyword(_ context.Context, kw minutes.Keyword) (minutes.Keyword, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kw.Term = strings.TrimSpace(kw.Term)
	if kw.ClientID != 0 {
		if _, ok := s.clients[kw.ClientID]; !ok {
			return minutes.Keyword{}, fmt.Errorf("create keyword: client %d: %w", kw.ClientID, minutes.ErrInvalid)
		}
	}
	for _, existing := range s.keywords {
		if existing.ClientID == kw.ClientID && strings.EqualFold(existing.Term, kw.Term) {
			return minutes.Keyword{}, fmt.Errorf("create keyword %q: %w", kw.Term, minutes.ErrConflict)
		}
	}
	s.nextKeywordID++
	kw.ID = s.nextKeywordID
	kw.CreatedAt = s.now()
	s.keywords[kw.ID] = kw
	return kw, nil
}

// ListKeywords returns keywords ordered by term.
func (s *Store) ListKeywords(_ context.Context, filter minutes.KeywordFilter) ([]minutes.Keyword, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]minutes.Keyword, 0, len(s.keywords))
	for _, kw := range s.keywords {
		if filter.ClientID != 0 && kw.ClientID != filter.ClientID {
			continue
		}
		if filter.ActiveOnly && !kw.Active {
			continue
		}
		out = append(out, kw)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Term), strings.ToLower(out[j].Term)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteKeyword removes a keyword. Existing mentions keep their term text.
func (s *Store) DeleteKeyword(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keywords[id]; !ok {
		return fmt.Errorf("delete keyword %d: %w", id, minutes.ErrNotFound)
	}
	s.deleteKeywordLocked(id)
	return nil
}

func (s *Store) deleteKeywordLocked(id int64) {
	delete(s.keywords, id)
	for i := range s.mentions {
		if s.mentions[i].KeywordID == id {
			s.mentions[i].KeywordID = 0
		}
	}
}
