package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

const clientColumns = `id, name, organization, email, phone, notes, created_at, updated_at`

// CreateClient inserts a client record.
func (s *Store) CreateClient(ctx context.Context, client minutes.Client) (minutes.Client, error) {
	row := s.db.QueryRow(ctx, `
INSERT INTO clients (name, organization, email, phone, notes)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+clientColumns,
		client.Name, client.Organization, client.Email, client.Phone, client.Notes)
	created, err := scanClient(row)
	if err != nil {
		return minutes.Client{}, mapErr("create client", err)
	}
	return created, nil
}

// GetClient loads one client.
func (s *Store) GetClient(ctx context.Context, id int64) (minutes.Client, error) {
	row := s.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
	client, err := scanClient(row)
	if err != nil {
		return minutes.Client{}, mapErr("get client", err)
	}
	return client, nil
}

// ListClients returns clients ordered by name.
func (s *Store) ListClients(ctx context.Context) ([]minutes.Client, error) {
	rows, err := s.db.Query(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY lower(name), id`)
	if err != nil {
		return nil, mapErr("list clients", err)
	}
	defer rows.Close()

	var clients []minutes.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, mapErr("scan client", err)
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list clients", err)
	}
	return clients, nil
}

// UpdateClient rewrites every editable field.
func (s *Store) UpdateClient(ctx context.Context, client minutes.Client) (minutes.Client, error) {
	row := s.db.QueryRow(ctx, `
UPDATE clients
SET name = $2, organization = $3, email = $4, phone = $5, notes = $6, updated_at = now()
WHERE id = $1
RETURNING `+clientColumns,
		client.ID, client.Name, client.Organization, client.Email, client.Phone, client.Notes)
	updated, err := scanClient(row)
	if err != nil {
		return minutes.Client{}, mapErr("update client", err)
	}
	return updated, nil
}

// DeleteClient removes a client; its keywords cascade.
func (s *Store) DeleteClient(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete client", err)
	}
	return expectOne("delete client", tag)
}

func scanClient(row pgx.Row) (minutes.Client, error) {
	var c minutes.Client
	err := row.Scan(&c.ID, &c.Name, &c.Organization, &c.Email, &c.Phone, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
