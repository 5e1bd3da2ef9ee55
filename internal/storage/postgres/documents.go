package postgres

import (
	"context"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

// HasDocument reports whether a document with hash was already processed.
func (s *Store) HasDocument(ctx context.Context, hash string) (bool, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE hash = $1)`, hash).Scan(&exists); err != nil {
		return false, mapErr("has document", err)
	}
	return exists, nil
}

// SaveDocument records a processed document. Re-saving a hash is a no-op.
func (s *Store) SaveDocument(ctx context.Context, doc minutes.Document) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO documents (hash, url, title, meeting_date, page_count, mention_count, blob_uri, fetched_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (hash) DO NOTHING`,
		doc.Hash, doc.URL, doc.Title, doc.MeetingDate, doc.PageCount, doc.MentionCount, doc.BlobURI, doc.FetchedAt)
	if err != nil {
		return mapErr("save document", err)
	}
	return nil
}

// CountDocuments returns the number of processed documents.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&n); err != nil {
		return 0, mapErr("count documents", err)
	}
	return n, nil
}
