package minutes

import "time"

// RunStatus represents the lifecycle state of a scrape run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// Terminal reports whether no further transitions are expected.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCanceled:
		return true
	default:
		return false
	}
}

// RunTrigger records what started a run.
type RunTrigger string

// Known run triggers.
const (
	TriggerCLI      RunTrigger = "cli"
	TriggerAPI      RunTrigger = "api"
	TriggerSchedule RunTrigger = "schedule"
)

// Run is one execution of the scraper pipeline.
type Run struct {
	ID        string      `json:"id"`
	Status    RunStatus   `json:"status"`
	Trigger   RunTrigger  `json:"trigger"`
	Submitted time.Time   `json:"submitted_at"`
	Started   *time.Time  `json:"started_at,omitempty"`
	Finished  *time.Time  `json:"finished_at,omitempty"`
	ErrorText string      `json:"error_text,omitempty"`
	Counters  RunCounters `json:"counters"`
}

// RunCounters tracks per-run document and mention stats.
type RunCounters struct {
	DocumentsSeen      int `json:"documents_seen"`
	DocumentsProcessed int `json:"documents_processed"`
	DocumentsSkipped   int `json:"documents_skipped"`
	DocumentsFailed    int `json:"documents_failed"`
	MentionsFound      int `json:"mentions_found"`
}

// DocumentLink is a PDF reference discovered on the archive index page.
type DocumentLink struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	MeetingDate *time.Time `json:"meeting_date,omitempty"`
}

// Document is persisted once per distinct PDF body.
type Document struct {
	Hash         string     `json:"hash"`
	URL          string     `json:"url"`
	Title        string     `json:"title"`
	MeetingDate  *time.Time `json:"meeting_date,omitempty"`
	PageCount    int        `json:"page_count"`
	MentionCount int        `json:"mention_count"`
	BlobURI      string     `json:"blob_uri"`
	FetchedAt    time.Time  `json:"fetched_at"`
}

// Page holds the extracted text of one PDF page. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Keyword is a configured search term. ClientID 0 means global.
type Keyword struct {
	ID        int64     `json:"id"`
	Term      string    `json:"term"`
	Category  string    `json:"category,omitempty"`
	ClientID  int64     `json:"client_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Entity is a named entity found near a keyword match.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Mention is a keyword match on a page of a scanned PDF.
type Mention struct {
	ID            string     `json:"id"`
	RunID         string     `json:"run_id"`
	DocumentHash  string     `json:"document_hash"`
	DocumentURL   string     `json:"document_url"`
	DocumentTitle string     `json:"document_title"`
	MeetingDate   *time.Time `json:"meeting_date,omitempty"`
	KeywordID     int64      `json:"keyword_id,omitempty"`
	Keyword       string     `json:"keyword"`
	Page          int        `json:"page"`
	Context       string     `json:"context"`
	Entities      []Entity   `json:"entities"`
	FoundAt       time.Time  `json:"found_at"`
}

// MentionFilter narrows mention listings. Zero values mean no constraint.
type MentionFilter struct {
	Keyword  string
	ClientID int64
	Since    time.Time
	Limit    int
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL           string
	Accept        string
	RespectRobots bool
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}
