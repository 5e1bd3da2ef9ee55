package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

const keywordColumns = `id, term, category, COALESCE(client_id, 0), active, created_at`

// CreateKeyword inserts a term. Terms are unique per client, ignoring case.
func (s *Store) CreateKeyword(ctx context.Context, kw minutes.Keyword) (minutes.Keyword, error) {
	row := s.db.QueryRow(ctx, `
INSERT INTO keywords (term, category, client_id, active)
VALUES ($1, $2, $3, $4)
RETURNING `+keywordColumns,
		strings.TrimSpace(kw.Term), kw.Category, nullableID(kw.ClientID), kw.Active)
	created, err := scanKeyword(row)
	if err != nil {
		return minutes.Keyword{}, mapErr("create keyword", err)
	}
	return created, nil
}

// ListKeywords returns keywords ordered by term.
func (s *Store) ListKeywords(ctx context.Context, filter minutes.KeywordFilter) ([]minutes.Keyword, error) {
	var (
		where []string
		args  []any
	)
	if filter.ClientID != 0 {
		args = append(args, filter.ClientID)
		where = append(where, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if filter.ActiveOnly {
		where = append(where, "active")
	}
	query := `SELECT ` + keywordColumns + ` FROM keywords`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY lower(term), id`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapErr("list keywords", err)
	}
	defer rows.Close()

	var keywords []minutes.Keyword
	for rows.Next() {
		kw, err := scanKeyword(rows)
		if err != nil {
			return nil, mapErr("scan keyword", err)
		}
		keywords = append(keywords, kw)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list keywords", err)
	}
	return keywords, nil
}

// DeleteKeyword removes a keyword. Existing mentions keep their term text.
func (s *Store) DeleteKeyword(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM keywords WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete keyword", err)
	}
	return expectOne("delete keyword", tag)
}

func scanKeyword(row pgx.Row) (minutes.Keyword, error) {
	var kw minutes.Keyword
	err := row.Scan(&kw.ID, &kw.Term, &kw.Category, &kw.ClientID, &kw.Active, &kw.CreatedAt)
	return kw, err
}
