package postgres

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdesk/internal/docstore"
	"opsdesk/internal/docstore/docstoretest"
	"opsdesk/pkg/domain"
	"opsdesk/pkg/platform/sentinel"
)

func newMockStore(t *testing.T) (*Store[*docstoretest.Widget], sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New[*docstoretest.Widget](db, docstoretest.Schema), mock
}

func TestGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT data FROM documents").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	_, err := store.Get(context.Background(), domain.NewTenantID(), uuid.New())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDecodesDocument(t *testing.T) {
	store, mock := newMockStore(t)
	tenant := domain.NewTenantID()
	w := &docstoretest.Widget{ID: uuid.New(), TenantID: tenant, Name: "alpha", Color: "red"}
	data, err := json.Marshal(w)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT data FROM documents WHERE collection = \\$1").
		WithArgs("widgets", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(data))

	got, err := store.Get(context.Background(), tenant, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListBuildsContainmentFilter(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`AND NOT deleted AND data @> \$3::jsonb ORDER BY seq LIMIT \$4 OFFSET \$5`).
		WithArgs("widgets", sqlmock.AnyArg(), []byte(`{"color":"red"}`), 10, 5).
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	out, err := store.List(context.Background(), domain.NewTenantID(),
		docstore.Query{Limit: 10, Offset: 5}.Where("color", "red"))
	require.NoError(t, err)
	assert.Empty(t, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAllSkipsTenantPredicate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`WHERE collection = \$1 ORDER BY seq`).
		WithArgs("widgets").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	_, err := store.ListAll(context.Background(), docstore.Query{IncludeDeleted: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertTranslatesUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	w := &docstoretest.Widget{ID: uuid.New(), TenantID: domain.NewTenantID(), Name: "a"}

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO documents").WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := store.Insert(context.Background(), w)
	assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRejectsTakenUniqueValue(t *testing.T) {
	store, mock := newMockStore(t)
	w := &docstoretest.Widget{ID: uuid.New(), TenantID: domain.NewTenantID(), Name: "a", Code: "W-1"}

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("widgets", sqlmock.AnyArg(), sqlmock.AnyArg(), []byte(`{"code":"W-1"}`)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := store.Insert(context.Background(), w)
	assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteValidateErrorRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	tenant := domain.NewTenantID()
	w := &docstoretest.Widget{ID: uuid.New(), TenantID: tenant, Name: "a"}
	data, err := json.Marshal(w)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(data))
	mock.ExpectRollback()

	_, err = store.Execute(context.Background(), tenant, w.ID,
		func(*docstoretest.Widget) error { return sentinel.ErrInvalidState },
		func(w *docstoretest.Widget) { w.Name = "b" },
	)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteManyPassesKeysAsArray(t *testing.T) {
	store, mock := newMockStore(t)
	tenant := domain.NewTenantID()
	a, b := uuid.New(), uuid.New()

	mock.ExpectExec("DELETE FROM documents").
		WithArgs("widgets", uuid.UUID(tenant), pq.Array([]string{a.String(), b.String()})).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := store.DeleteMany(context.Background(), tenant, []uuid.UUID{a, b})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteManyWithoutKeysSkipsQuery(t *testing.T) {
	store, mock := newMockStore(t)

	n, err := store.DeleteMany(context.Background(), domain.NewTenantID(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
