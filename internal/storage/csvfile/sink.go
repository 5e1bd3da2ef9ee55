// Package csvfile writes per-document mention exports as CSV files.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

// Header is the column layout of every export.
var Header = []string{"keyword", "page", "meeting_date", "entities", "context", "document_url"}

const dateLayout = "2006-01-02"

// Sink implements minutes.MentionSink under a processed-data directory.
type Sink struct {
	dir string
}

var _ minutes.MentionSink = (*Sink)(nil)

// New prepares dir and returns a Sink writing into it.
func New(dir string) (*Sink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("csv sink: directory is required: %w", minutes.ErrInvalid)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve processed dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create processed dir: %w", err)
	}
	return &Sink{dir: abs}, nil
}

// FileName returns the export name for doc: <date|undated>_<hash12>_mentions.csv.
func FileName(doc minutes.Document) string {
	date := "undated"
	if doc.MeetingDate != nil {
		date = doc.MeetingDate.UTC().Format(dateLayout)
	}
	hash := doc.Hash
	if len(hash) > 12 {
		hash = hash[:12]
	}
	return fmt.Sprintf("%s_%s_mentions.csv", date, hash)
}

// WriteMentions writes the mentions of one document and returns the file path.
// Documents without mentions produce no file and an empty path.
func (s *Sink) WriteMentions(ctx context.Context, doc minutes.Document, mentions []minutes.Mention) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(mentions) == 0 {
		return "", nil
	}
	if doc.Hash == "" {
		return "", fmt.Errorf("write mentions: document hash is required: %w", minutes.ErrInvalid)
	}

	path := filepath.Join(s.dir, FileName(doc))
	tmp, err := os.CreateTemp(s.dir, ".mentions-*.csv")
	if err != nil {
		return "", fmt.Errorf("create temp csv: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write(Header); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write csv header: %w", err)
	}
	for _, m := range mentions {
		if err := w.Write(record(m)); err != nil {
			_ = tmp.Close()
			return "", fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("flush csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close csv: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename csv: %w", err)
	}
	return path, nil
}

func record(m minutes.Mention) []string {
	date := ""
	if m.MeetingDate != nil {
		date = m.MeetingDate.UTC().Format(dateLayout)
	}
	return []string{
		m.Keyword,
		strconv.Itoa(m.Page),
		date,
		FormatEntities(m.Entities),
		m.Context,
		m.DocumentURL,
	}
}

// FormatEntities renders entities as "text (LABEL)" joined by "; ".
func FormatEntities(entities []minutes.Entity) string {
	parts := make([]string, 0, len(entities))
	for _, e := range entities {
		parts = append(parts, fmt.Sprintf("%s (%s)", e.Text, e.Label))
	}
	return strings.Join(parts, "; ")
}
