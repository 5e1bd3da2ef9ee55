package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

const insertMentionSQL = `
INSERT INTO mentions (
	id, run_id, document_hash, document_url, document_title, meeting_date,
	keyword_id, keyword, page, context, entities, found_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// SaveMentions inserts mentions in one transaction.
func (s *Store) SaveMentions(ctx context.Context, mentions []minutes.Mention) error {
	if len(mentions) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		for _, m := range mentions {
			entities, err := marshalEntities(m.Entities)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, insertMentionSQL,
				m.ID, nullableString(m.RunID), m.DocumentHash, m.DocumentURL, m.DocumentTitle, m.MeetingDate,
				nullableID(m.KeywordID), m.Keyword, m.Page, m.Context, entities, m.FoundAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return mapErr("save mentions", err)
	}
	return nil
}

// ListMentions returns mentions newest first.
func (s *Store) ListMentions(ctx context.Context, filter minutes.MentionFilter) ([]minutes.Mention, error) {
	var (
		where []string
		args  []any
	)
	query := `
SELECT m.id, COALESCE(m.run_id::text, ''), m.document_hash, m.document_url, m.document_title,
	m.meeting_date, COALESCE(m.keyword_id, 0), m.keyword, m.page, m.context, m.entities, m.found_at
FROM mentions m`
	if filter.ClientID != 0 {
		query += `
JOIN keywords k ON k.id = m.keyword_id`
		args = append(args, filter.ClientID)
		where = append(where, fmt.Sprintf("k.client_id = $%d", len(args)))
	}
	if term := strings.TrimSpace(filter.Keyword); term != "" {
		args = append(args, term)
		where = append(where, fmt.Sprintf("lower(m.keyword) = lower($%d)", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		where = append(where, fmt.Sprintf("m.found_at >= $%d", len(args)))
	}
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY m.found_at DESC, m.document_hash, m.page, m.id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapErr("list mentions", err)
	}
	defer rows.Close()

	var out []minutes.Mention
	for rows.Next() {
		var (
			m        minutes.Mention
			entities []byte
		)
		if err := rows.Scan(
			&m.ID, &m.RunID, &m.DocumentHash, &m.DocumentURL, &m.DocumentTitle,
			&m.MeetingDate, &m.KeywordID, &m.Keyword, &m.Page, &m.Context, &entities, &m.FoundAt,
		); err != nil {
			return nil, mapErr("scan mention", err)
		}
		if len(entities) > 0 {
			if err := json.Unmarshal(entities, &m.Entities); err != nil {
				return nil, fmt.Errorf("decode mention entities: %w", err)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list mentions", err)
	}
	return out, nil
}

// CountMentions returns the total number of mentions.
func (s *Store) CountMentions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM mentions`).Scan(&n); err != nil {
		return 0, mapErr("count mentions", err)
	}
	return n, nil
}

// CountMentionsBefore counts mentions found before the cutoff.
func (s *Store) CountMentionsBefore(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM mentions WHERE found_at < $1`, before).Scan(&n); err != nil {
		return 0, mapErr("count old mentions", err)
	}
	return n, nil
}

// DeleteMentionsBefore deletes mentions found before the cutoff.
func (s *Store) DeleteMentionsBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM mentions WHERE found_at < $1`, before)
	if err != nil {
		return 0, mapErr("delete old mentions", err)
	}
	return tag.RowsAffected(), nil
}

func marshalEntities(entities []minutes.Entity) ([]byte, error) {
	if entities == nil {
		entities = []minutes.Entity{}
	}
	b, err := json.Marshal(entities)
	if err != nil {
		return nil, fmt.Errorf("marshal entities: %w", err)
	}
	return b, nil
}
