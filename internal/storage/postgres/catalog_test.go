package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

var clientCols = []string{"id", "name", "organization", "email", "phone", "notes", "created_at", "updated_at"}

var keywordCols = []string{"id", "term", "category", "client_id", "active", "created_at"}

func TestCreateClient(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO clients (name, organization, email, phone, notes)")).
		WithArgs("Acme", "Acme Corp", "ops@acme.test", "555-0100", "").
		WillReturnRows(pgxmock.NewRows(clientCols).
			AddRow(int64(5), "Acme", "Acme Corp", "ops@acme.test", "555-0100", "", now, now))

	client, err := store.CreateClient(context.Background(), minutes.Client{
		Name: "Acme", Organization: "Acme Corp", Email: "ops@acme.test", Phone: "555-0100",
	})
	require.NoError(t, err)
	require.Equal(t, int64(5), client.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetClientMissing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM clients WHERE id = $1")).
		WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows(clientCols))

	_, err := store.GetClient(context.Background(), 11)
	require.ErrorIs(t, err, minutes.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAndUpdateClients(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM clients ORDER BY lower(name), id")).
		WillReturnRows(pgxmock.NewRows(clientCols).
			AddRow(int64(1), "Acme", "", "", "", "", now, now).
			AddRow(int64(2), "Borough", "", "", "", "", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE clients")).
		WithArgs(int64(2), "Borough Council", "", "", "", "renewed").
		WillReturnRows(pgxmock.NewRows(clientCols).
			AddRow(int64(2), "Borough Council", "", "", "", "renewed", now, now))

	clients, err := store.ListClients(context.Background())
	require.NoError(t, err)
	require.Len(t, clients, 2)

	updated, err := store.UpdateClient(context.Background(), minutes.Client{ID: 2, Name: "Borough Council", Notes: "renewed"})
	require.NoError(t, err)
	require.Equal(t, "Borough Council", updated.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteClient(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM clients WHERE id = $1")).
		WithArgs(int64(2)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, store.DeleteClient(context.Background(), 2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateGlobalKeywordUsesNullClient(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO keywords (term, category, client_id, active)")).
		WithArgs("zoning", "land use", (*int64)(nil), true).
		WillReturnRows(pgxmock.NewRows(keywordCols).AddRow(int64(1), "zoning", "land use", int64(0), true, now))

	kw, err := store.CreateKeyword(context.Background(), minutes.Keyword{Term: "  zoning ", Category: "land use", Active: true})
	require.NoError(t, err)
	require.Equal(t, int64(0), kw.ClientID)
	require.Equal(t, "zoning", kw.Term)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateKeywordDuplicateIsConflict(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	clientID := int64(3)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO keywords")).
		WithArgs("Zoning", "", &clientID, true).
		WillReturnError(&pgconn.PgError{Code: codeUniqueViolation})

	_, err := store.CreateKeyword(context.Background(), minutes.Keyword{Term: "Zoning", ClientID: 3, Active: true})
	require.ErrorIs(t, err, minutes.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListKeywordsFilters(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM keywords WHERE client_id = $1 AND active ORDER BY lower(term), id")).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows(keywordCols).AddRow(int64(1), "zoning", "", int64(3), true, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM keywords ORDER BY lower(term), id")).
		WillReturnRows(pgxmock.NewRows(keywordCols))

	kws, err := store.ListKeywords(context.Background(), minutes.KeywordFilter{ClientID: 3, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, kws, 1)

	kws, err = store.ListKeywords(context.Background(), minutes.KeywordFilter{})
	require.NoError(t, err)
	require.Empty(t, kws)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteKeywordMissing(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM keywords WHERE id = $1")).
		WithArgs(int64(8)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.ErrorIs(t, store.DeleteKeyword(context.Background(), 8), minutes.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
