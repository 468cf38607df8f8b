// internal/application/employer.go
package application

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"freelance-lifecycle/internal/common/errors"
	commonhttp "freelance-lifecycle/internal/common/http"
	"freelance-lifecycle/internal/common/logger"
	"freelance-lifecycle/internal/common/metrics"

	"github.com/redis/go-redis/v9"
)

// EmployerResolver maps a project to the employer who owns it. A missing
// project is reported as PROJECT_NOT_FOUND.
type EmployerResolver interface {
	ResolveEmployer(ctx context.Context, projectID int64) (int64, error)
}

// PostgresEmployerResolver reads the projects table shared with the
// project service.
type PostgresEmployerResolver struct {
	db *sql.DB
}

func NewPostgresEmployerResolver(db *sql.DB) *PostgresEmployerResolver {
	return &PostgresEmployerResolver{db: db}
}

func (r *PostgresEmployerResolver) ResolveEmployer(ctx context.Context, projectID int64) (int64, error) {
	var employerID int64
	err := r.db.QueryRowContext(ctx, `SELECT employer_id FROM projects WHERE id = $1`, projectID).Scan(&employerID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, errors.NewProjectNotFoundError(projectID)
	}
	if err != nil {
		return 0, errors.NewDatabaseQueryFailedError("resolve employer", err)
	}
	return employerID, nil
}

// HTTPEmployerResolver asks the project service over HTTP.
type HTTPEmployerResolver struct {
	client  *commonhttp.Client
	baseURL string
}

type projectResponse struct {
	ID         int64 `json:"id"`
	EmployerID int64 `json:"employerId"`
}

func NewHTTPEmployerResolver(client *commonhttp.Client, baseURL string) *HTTPEmployerResolver {
	return &HTTPEmployerResolver{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (r *HTTPEmployerResolver) ResolveEmployer(ctx context.Context, projectID int64) (int64, error) {
	url := fmt.Sprintf("%s/api/v1/projects/%d", r.baseURL, projectID)

	var project projectResponse
	if err := r.client.GetJSON(ctx, url, &project); err != nil {
		var statusErr *commonhttp.StatusError
		if stderrors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return 0, errors.NewProjectNotFoundError(projectID)
		}
		var netErr net.Error
		if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
			return 0, errors.NewTimeoutError("project-service", err)
		}
		return 0, errors.NewExternalServiceError("project-service", err)
	}

	if project.EmployerID <= 0 {
		return 0, errors.NewExternalServiceError("project-service",
			fmt.Errorf("project %d has no employer", projectID))
	}
	return project.EmployerID, nil
}

// CachedEmployerResolver is a Redis cache-aside in front of another
// resolver. Project ownership never changes, so entries only expire by TTL.
// Cache failures degrade to a direct lookup.
type CachedEmployerResolver struct {
	next   EmployerResolver
	redis  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedEmployerResolver(next EmployerResolver, redisClient *redis.Client, ttl time.Duration, log logger.Logger) *CachedEmployerResolver {
	return &CachedEmployerResolver{
		next:   next,
		redis:  redisClient,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "employer-cache"}),
	}
}

func employerCacheKey(projectID int64) string {
	return "employer:project:" + strconv.FormatInt(projectID, 10)
}

func (r *CachedEmployerResolver) ResolveEmployer(ctx context.Context, projectID int64) (int64, error) {
	key := employerCacheKey(projectID)

	employerID, err := r.redis.Get(ctx, key).Int64()
	switch {
	case err == nil:
		metrics.CacheLookups.WithLabelValues("employer", "hit").Inc()
		return employerID, nil
	case stderrors.Is(err, redis.Nil):
		metrics.CacheLookups.WithLabelValues("employer", "miss").Inc()
	default:
		metrics.CacheLookups.WithLabelValues("employer", "error").Inc()
		r.logger.Warn("employer cache read failed", map[string]interface{}{
			"projectId": projectID,
			"error":     err.Error(),
		})
	}

	employerID, err = r.next.ResolveEmployer(ctx, projectID)
	if err != nil {
		return 0, err
	}

	if err := r.redis.Set(ctx, key, employerID, r.ttl).Err(); err != nil {
		r.logger.Warn("employer cache write failed", map[string]interface{}{
			"projectId": projectID,
			"error":     err.Error(),
		})
	}
	return employerID, nil
}
