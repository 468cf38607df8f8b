package application

import (
	"context"
	"database/sql"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"freelance-lifecycle/internal/common/errors"
	commonhttp "freelance-lifecycle/internal/common/http"
	"freelance-lifecycle/internal/common/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Postgres resolver
// ==========================

func TestPostgresEmployerResolver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	resolver := NewPostgresEmployerResolver(db)
	query := regexp.QuoteMeta(`SELECT employer_id FROM projects WHERE id = $1`)

	mock.ExpectQuery(query).WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"employer_id"}).AddRow(99))
	id, err := resolver.ResolveEmployer(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(99), id)

	mock.ExpectQuery(query).WithArgs(int64(11)).WillReturnError(sql.ErrNoRows)
	_, err = resolver.ResolveEmployer(context.Background(), 11)
	assert.True(t, errors.HasCode(err, errors.ErrCodeProjectNotFound))

	mock.ExpectQuery(query).WithArgs(int64(12)).WillReturnError(stderrors.New("conn refused"))
	_, err = resolver.ResolveEmployer(context.Background(), 12)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDatabaseQueryFailed))

	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// HTTP resolver
// ==========================

func TestHTTPEmployerResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/projects/10":
			_, _ = w.Write([]byte(`{"id": 10, "employerId": 99}`))
		case "/api/v1/projects/13":
			_, _ = w.Write([]byte(`{"id": 13}`))
		case "/api/v1/projects/14":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	resolver := NewHTTPEmployerResolver(commonhttp.NewClient(time.Second), srv.URL+"/")

	id, err := resolver.ResolveEmployer(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(99), id)

	_, err = resolver.ResolveEmployer(context.Background(), 11)
	assert.True(t, errors.HasCode(err, errors.ErrCodeProjectNotFound))

	_, err = resolver.ResolveEmployer(context.Background(), 13)
	assert.True(t, errors.HasCode(err, errors.ErrCodeExternalService))

	_, err = resolver.ResolveEmployer(context.Background(), 14)
	assert.True(t, errors.HasCode(err, errors.ErrCodeExternalService))
}

func TestHTTPEmployerResolver_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	resolver := NewHTTPEmployerResolver(commonhttp.NewClient(20*time.Millisecond), srv.URL)

	_, err := resolver.ResolveEmployer(context.Background(), 10)
	assert.True(t, errors.HasCode(err, errors.ErrCodeTimeout))
	assert.True(t, errors.IsRetryable(err))
}

// ==========================
// Cache-aside
// ==========================

type countingResolver struct {
	calls int
	id    int64
	err   error
}

func (r *countingResolver) ResolveEmployer(ctx context.Context, projectID int64) (int64, error) {
	r.calls++
	return r.id, r.err
}

func TestCachedEmployerResolver_MissThenHit(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	next := &countingResolver{id: 99}
	resolver := NewCachedEmployerResolver(next, client, 10*time.Minute, logger.NewTestLogger(t))

	for i := 0; i < 3; i++ {
		id, err := resolver.ResolveEmployer(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, int64(99), id)
	}
	assert.Equal(t, 1, next.calls)

	val, err := mr.Get("employer:project:10")
	require.NoError(t, err)
	assert.Equal(t, "99", val)
	assert.Equal(t, 10*time.Minute, mr.TTL("employer:project:10"))
}

func TestCachedEmployerResolver_NotFoundIsNotCached(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	next := &countingResolver{err: errors.NewProjectNotFoundError(10)}
	resolver := NewCachedEmployerResolver(next, client, time.Minute, logger.NewTestLogger(t))

	_, err = resolver.ResolveEmployer(context.Background(), 10)
	assert.True(t, errors.HasCode(err, errors.ErrCodeProjectNotFound))
	assert.False(t, mr.Exists("employer:project:10"))
}

func TestCachedEmployerResolver_RedisDownFallsThrough(t *testing.T) {
	client, mock := redismock.NewClientMock()

	mock.ExpectGet("employer:project:10").SetErr(stderrors.New("connection refused"))
	mock.ExpectSet("employer:project:10", int64(99), time.Minute).SetErr(stderrors.New("connection refused"))

	next := &countingResolver{id: 99}
	resolver := NewCachedEmployerResolver(next, client, time.Minute, logger.NewTestLogger(t))

	id, err := resolver.ResolveEmployer(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(99), id)
	assert.Equal(t, 1, next.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}
