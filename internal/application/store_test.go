package application

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"freelance-lifecycle/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var storeTime = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func applicationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "project_id", "freelancer_id", "employer_id", "message", "status", "created_at", "updated_at"})
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

// ==========================
// Insert
// ==========================

func TestPostgresStore_Insert(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO applications`)).
		WithArgs(int64(10), int64(20), int64(99), "hi", "PENDING", storeTime, storeTime).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	app := &models.Application{
		ProjectID: 10, FreelancerID: 20, EmployerID: 99, Message: "hi",
		Status: models.StatusPending, CreatedAt: storeTime, UpdatedAt: storeTime,
	}
	require.NoError(t, store.Insert(context.Background(), app))
	assert.Equal(t, int64(7), app.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Insert_EmptyMessageIsNull(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO applications`)).
		WithArgs(int64(10), int64(20), int64(99), nil, "PENDING", storeTime, storeTime).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))

	app := &models.Application{
		ProjectID: 10, FreelancerID: 20, EmployerID: 99,
		Status: models.StatusPending, CreatedAt: storeTime, UpdatedAt: storeTime,
	}
	require.NoError(t, store.Insert(context.Background(), app))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Insert_Failure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO applications`)).
		WillReturnError(errors.New("connection reset"))

	err := store.Insert(context.Background(), &models.Application{Status: models.StatusPending})
	assert.ErrorIs(t, err, ErrDatabaseInsert)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Get
// ==========================

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM applications WHERE id = $1`)).
		WithArgs(int64(7)).
		WillReturnRows(applicationRows().AddRow(7, 10, 20, 99, nil, "VIEWED", storeTime, storeTime))

	app, err := store.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(99), app.EmployerID)
	assert.Equal(t, models.StatusViewed, app.Status)
	assert.Empty(t, app.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM applications WHERE id = $1`)).
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), 404)
	assert.ErrorIs(t, err, ErrApplicationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Compare-and-set
// ==========================

func TestPostgresStore_CompareAndSetStatus(t *testing.T) {
	store, mock := newMockStore(t)
	later := storeTime.Add(time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE id = $1 AND status = $2`)).
		WithArgs(int64(7), "PENDING", "VIEWED", later).
		WillReturnRows(applicationRows().AddRow(7, 10, 20, 99, "hi", "VIEWED", storeTime, later))

	app, err := store.CompareAndSetStatus(context.Background(), 7, models.StatusPending, models.StatusViewed, later)
	require.NoError(t, err)
	assert.Equal(t, models.StatusViewed, app.Status)
	assert.Equal(t, later, app.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompareAndSetStatus_Conflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE id = $1 AND status = $2`)).
		WithArgs(int64(7), "PENDING", "ACCEPTED", storeTime).
		WillReturnRows(applicationRows())

	_, err := store.CompareAndSetStatus(context.Background(), 7, models.StatusPending, models.StatusAccepted, storeTime)
	assert.ErrorIs(t, err, ErrStatusConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Lists
// ==========================

func TestPostgresStore_Lists(t *testing.T) {
	tests := []struct {
		name   string
		column string
		call   func(s *PostgresStore) ([]models.Application, error)
	}{
		{"project", "project_id", func(s *PostgresStore) ([]models.Application, error) {
			return s.ListByProject(context.Background(), 10)
		}},
		{"freelancer", "freelancer_id", func(s *PostgresStore) ([]models.Application, error) {
			return s.ListByFreelancer(context.Background(), 10)
		}},
		{"employer", "employer_id", func(s *PostgresStore) ([]models.Application, error) {
			return s.ListByEmployer(context.Background(), 10)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)

			mock.ExpectQuery(regexp.QuoteMeta(`WHERE ` + tt.column + ` = $1 ORDER BY created_at, id`)).
				WithArgs(int64(10)).
				WillReturnRows(applicationRows().
					AddRow(1, 10, 20, 99, "a", "PENDING", storeTime, storeTime).
					AddRow(2, 10, 21, 99, nil, "REJECTED", storeTime, storeTime))

			apps, err := tt.call(store)
			require.NoError(t, err)
			require.Len(t, apps, 2)
			assert.Equal(t, int64(1), apps[0].ID)
			assert.Equal(t, models.StatusRejected, apps[1].Status)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_List_EmptyIsNotNil(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE project_id = $1`)).
		WithArgs(int64(5)).
		WillReturnRows(applicationRows())

	apps, err := store.ListByProject(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, apps)
	assert.Empty(t, apps)
}

func TestPostgresStore_List_QueryError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE freelancer_id = $1`)).
		WillReturnError(errors.New("timeout"))

	_, err := store.ListByFreelancer(context.Background(), 5)
	assert.ErrorIs(t, err, ErrDatabaseQuery)
}
