// Package memory provides in-memory implementations for development/testing.
package memory

import (
	"sync"
	"time"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

// Store implements minutes.Store with mutex-guarded maps. It mirrors the
// constraints of the Postgres schema: unique usernames, per-client unique
// keyword terms, and cascading deletes.
type Store struct {
	mu sync.RWMutex

	now func() time.Time

	nextUserID    int64
	nextClientID  int64
	nextKeywordID int64

	users       map[int64]minutes.User
	credentials map[int64]map[string]minutes.Credential
	clients     map[int64]minutes.Client
	keywords    map[int64]minutes.Keyword
	documents   map[string]minutes.Document
	mentions    []minutes.Mention
	runs        map[string]minutes.Run
}

var _ minutes.Store = (*Store)(nil)

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(c minutes.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.now = c.Now
		}
	}
}

// NewStore constructs an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:         func() time.Time { return time.Now().UTC() },
		users:       make(map[int64]minutes.User),
		credentials: make(map[int64]map[string]minutes.Credential),
		clients:     make(map[int64]minutes.Client),
		keywords:    make(map[int64]minutes.Keyword),
		documents:   make(map[string]minutes.Document),
		runs:        make(map[string]minutes.Run),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// knownProviders mirrors the seeded auth_providers table.
var knownProviders = map[string]struct{}{
	minutes.ProviderLocal: {},
}

func pointerTime(t time.Time) *time.Time {
	return &t
}
