package minutes

import (
	"context"
	"io"
	"time"
)

// UserStore persists users and their provider credentials.
type UserStore interface {
	CreateUser(ctx context.Context, user User, cred Credential) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, user User) (User, error)
	DeleteUser(ctx context.Context, id int64) error
	// FindCredential resolves a user and its credential for one provider.
	FindCredential(ctx context.Context, username, provider string) (User, Credential, error)
	SetCredential(ctx context.Context, cred Credential) error
	ListCredentials(ctx context.Context) ([]CredentialInfo, error)
}

// ClientStore persists client records.
type ClientStore interface {
	CreateClient(ctx context.Context, client Client) (Client, error)
	GetClient(ctx context.Context, id int64) (Client, error)
	ListClients(ctx context.Context) ([]Client, error)
	UpdateClient(ctx context.Context, client Client) (Client, error)
	DeleteClient(ctx context.Context, id int64) error
}

// KeywordFilter narrows keyword listings.
type KeywordFilter struct {
	ClientID   int64
	ActiveOnly bool
}

// KeywordStore persists search terms.
type KeywordStore interface {
	CreateKeyword(ctx context.Context, kw Keyword) (Keyword, error)
	ListKeywords(ctx context.Context, filter KeywordFilter) ([]Keyword, error)
	DeleteKeyword(ctx context.Context, id int64) error
}

// DocumentStore records processed PDFs by content hash.
type DocumentStore interface {
	HasDocument(ctx context.Context, hash string) (bool, error)
	SaveDocument(ctx context.Context, doc Document) error
	CountDocuments(ctx context.Context) (int, error)
}

// MentionStore persists keyword matches.
type MentionStore interface {
	SaveMentions(ctx context.Context, mentions []Mention) error
	ListMentions(ctx context.Context, filter MentionFilter) ([]Mention, error)
	CountMentions(ctx context.Context) (int, error)
	CountMentionsBefore(ctx context.Context, before time.Time) (int64, error)
	DeleteMentionsBefore(ctx context.Context, before time.Time) (int64, error)
}

// RunStore persists scrape run metadata.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRun(ctx context.Context, id string, status RunStatus, errText string, counters RunCounters) error
	GetRun(ctx context.Context, id string) (Run, error)
	LatestRun(ctx context.Context) (Run, error)
	CountRunsBefore(ctx context.Context, before time.Time) (int64, error)
	DeleteRunsBefore(ctx context.Context, before time.Time) (int64, error)
}

// Store bundles every persistence concern of the application.
type Store interface {
	UserStore
	ClientStore
	KeywordStore
	DocumentStore
	MentionStore
	RunStore
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// MentionSink exports the mentions of one document, returning where they went.
type MentionSink interface {
	WriteMentions(ctx context.Context, doc Document, mentions []Mention) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// TextExtractor turns a PDF body into per-page text.
type TextExtractor interface {
	Extract(data []byte) ([]Page, error)
}

// EntityExtractor finds named entities in a snippet of text.
type EntityExtractor interface {
	Extract(ctx context.Context, text string) ([]Entity, error)
}

// Limiter paces outbound requests per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run and mention IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// QueueItem wraps a run ready to execute.
type QueueItem struct {
	RunID     string
	Trigger   RunTrigger
	Submitted int64
}

// Queue provides enqueue/dequeue semantics for scrape runs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}
