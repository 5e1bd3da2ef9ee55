package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

// HasDocument reports whether hash was already processed.
func (s *Store) HasDocument(_ context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.documents[hash]
	return ok, nil
}

// SaveDocument records a processed document. Re-saving a hash is a no-op.
func (s *Store) SaveDocument(_ context.Context, doc minutes.Document) error {
	if doc.Hash == "" {
		return fmt.Errorf("save document: hash is required: %w", minutes.ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[doc.Hash]; !ok {
		s.documents[doc.Hash] = doc
	}
	return nil
}

// CountDocuments returns the number of processed documents.
func (s *Store) CountDocuments(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents), nil
}

// SaveMentions appends mentions; IDs must be unique.
func (s *Store) SaveMentions(_ context.Context, mentions []minutes.Mention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]struct{}, len(s.mentions))
	for _, m := range s.mentions {
		ids[m.ID] = struct{}{}
	}
	for _, m := range mentions {
		if _, dup := ids[m.ID]; dup {
			return fmt.Errorf("save mention %s: %w", m.ID, minutes.ErrConflict)
		}
		ids[m.ID] = struct{}{}
	}
	for _, m := range mentions {
		s.mentions = append(s.mentions, cloneMention(m))
	}
	return nil
}

// ListMentions returns mentions newest first.
func (s *Store) ListMentions(_ context.Context, filter minutes.MentionFilter) ([]minutes.Mention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	term := strings.TrimSpace(filter.Keyword)
	var out []minutes.Mention
	for _, m := range s.mentions {
		if filter.ClientID != 0 {
			kw, ok := s.keywords[m.KeywordID]
			if !ok || kw.ClientID != filter.ClientID {
				continue
			}
		}
		if term != "" && !strings.EqualFold(m.Keyword, term) {
			continue
		}
		if !filter.Since.IsZero() && m.FoundAt.Before(filter.Since) {
			continue
		}
		out = append(out, cloneMention(m))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.FoundAt.Equal(b.FoundAt) {
			return a.FoundAt.After(b.FoundAt)
		}
		if a.DocumentHash != b.DocumentHash {
			return a.DocumentHash < b.DocumentHash
		}
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		return a.ID < b.ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// cloneMention copies the slice and pointer fields so stored mentions never
// alias caller memory.
func cloneMention(m minutes.Mention) minutes.Mention {
	m.Entities = append([]minutes.Entity(nil), m.Entities...)
	if m.MeetingDate != nil {
		d := *m.MeetingDate
		m.MeetingDate = &d
	}
	return m
}

// CountMentions returns the total number of mentions.
func (s *Store) CountMentions(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.mentions), nil
}

// CountMentionsBefore counts mentions found before the cutoff.
func (s *Store) CountMentionsBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, m := range s.mentions {
		if m.FoundAt.Before(before) {
			n++
		}
	}
	return n, nil
}

// DeleteMentionsBefore deletes mentions found before the cutoff.
func (s *Store) DeleteMentionsBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.mentions[:0]
	var n int64
	for _, m := range s.mentions {
		if m.FoundAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, m)
	}
	s.mentions = kept
	return n, nil
}

// CreateRun stores a new run in queued status.
func (s *Store) CreateRun(_ context.Context, run minutes.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("create run %s: %w", run.ID, minutes.ErrConflict)
	}
	if run.Status == "" {
		run.Status = minutes.RunStatusQueued
	}
	s.runs[run.ID] = run
	return nil
}

// UpdateRun updates the status and counters for a run.
func (s *Store) UpdateRun(
	_ context.Context,
	id string,
	status minutes.RunStatus,
	errText string,
	counters minutes.RunCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("update run %s: %w", id, minutes.ErrNotFound)
	}
	run.Status = status
	run.ErrorText = errText
	run.Counters = counters
	now := s.now()
	if status == minutes.RunStatusRunning && run.Started == nil {
		run.Started = pointerTime(now)
	}
	if status.Terminal() {
		run.Finished = pointerTime(now)
	}
	s.runs[id] = run
	return nil
}

// GetRun returns a run by ID.
func (s *Store) GetRun(_ context.Context, id string) (minutes.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return minutes.Run{}, fmt.Errorf("get run %s: %w", id, minutes.ErrNotFound)
	}
	return run, nil
}

// LatestRun returns the most recently submitted run.
func (s *Store) LatestRun(_ context.Context) (minutes.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		latest minutes.Run
		found  bool
	)
	for _, run := range s.runs {
		if !found || run.Submitted.After(latest.Submitted) {
			latest, found = run, true
		}
	}
	if !found {
		return minutes.Run{}, fmt.Errorf("latest run: %w", minutes.ErrNotFound)
	}
	return latest, nil
}

// CountRunsBefore counts finished runs submitted before the cutoff.
func (s *Store) CountRunsBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, run := range s.runs {
		if run.Status.Terminal() && run.Submitted.Before(before) {
			n++
		}
	}
	return n, nil
}

// DeleteRunsBefore deletes finished runs submitted before the cutoff.
func (s *Store) DeleteRunsBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, run := range s.runs {
		if run.Status.Terminal() && run.Submitted.Before(before) {
			delete(s.runs, id)
			n++
		}
	}
	return n, nil
}
