// internal/application/store.go
package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"freelance-lifecycle/internal/models"
)

var (
	ErrApplicationNotFound = errors.New("APPLICATION_NOT_FOUND")
	ErrStatusConflict      = errors.New("STATUS_CONFLICT")
	ErrDatabaseQuery       = errors.New("DATABASE_QUERY_FAILED")
	ErrDatabaseInsert      = errors.New("DATABASE_INSERT_FAILED")
)

// SchemaStatements bootstraps the application store.
var SchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS applications (
		id            BIGSERIAL PRIMARY KEY,
		project_id    BIGINT      NOT NULL,
		freelancer_id BIGINT      NOT NULL,
		employer_id   BIGINT      NOT NULL,
		message       VARCHAR(1000),
		status        VARCHAR(16) NOT NULL CHECK (status IN ('PENDING', 'VIEWED', 'ACCEPTED', 'REJECTED')),
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_applications_project ON applications (project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_applications_freelancer ON applications (freelancer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_applications_employer ON applications (employer_id)`,
}

// Store persists Application rows.
type Store interface {
	Insert(ctx context.Context, app *models.Application) error
	Get(ctx context.Context, id int64) (*models.Application, error)
	// CompareAndSetStatus moves the row to next only if it is still in
	// expected, returning ErrStatusConflict otherwise.
	CompareAndSetStatus(ctx context.Context, id int64, expected, next models.ApplicationStatus, updatedAt time.Time) (*models.Application, error)
	ListByProject(ctx context.Context, projectID int64) ([]models.Application, error)
	ListByFreelancer(ctx context.Context, freelancerID int64) ([]models.Application, error)
	ListByEmployer(ctx context.Context, employerID int64) ([]models.Application, error)
}

const applicationColumns = `id, project_id, freelancer_id, employer_id, message, status, created_at, updated_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, app *models.Application) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO applications (project_id, freelancer_id, employer_id, message, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		app.ProjectID,
		app.FreelancerID,
		app.EmployerID,
		nullString(app.Message),
		string(app.Status),
		app.CreatedAt,
		app.UpdatedAt,
	).Scan(&app.ID)
	if err != nil {
		return fmt.Errorf("%w: insert application: %v", ErrDatabaseInsert, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*models.Application, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)

	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrApplicationNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get application %d: %v", ErrDatabaseQuery, id, err)
	}
	return app, nil
}

func (s *PostgresStore) CompareAndSetStatus(ctx context.Context, id int64, expected, next models.ApplicationStatus, updatedAt time.Time) (*models.Application, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE applications
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING `+applicationColumns,
		id, string(expected), string(next), updatedAt,
	)

	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: application %d is no longer %s", ErrStatusConflict, id, expected)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: update status of %d: %v", ErrDatabaseQuery, id, err)
	}
	return app, nil
}

func (s *PostgresStore) ListByProject(ctx context.Context, projectID int64) ([]models.Application, error) {
	return s.list(ctx, "project_id", projectID)
}

func (s *PostgresStore) ListByFreelancer(ctx context.Context, freelancerID int64) ([]models.Application, error) {
	return s.list(ctx, "freelancer_id", freelancerID)
}

func (s *PostgresStore) ListByEmployer(ctx context.Context, employerID int64) ([]models.Application, error) {
	return s.list(ctx, "employer_id", employerID)
}

// column is always one of the fixed names above, never caller input.
func (s *PostgresStore) list(ctx context.Context, column string, value int64) ([]models.Application, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE `+column+` = $1 ORDER BY created_at, id`, value)
	if err != nil {
		return nil, fmt.Errorf("%w: list by %s: %v", ErrDatabaseQuery, column, err)
	}
	defer rows.Close()

	apps := []models.Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan application: %v", ErrDatabaseQuery, err)
		}
		apps = append(apps, *app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate applications: %v", ErrDatabaseQuery, err)
	}
	return apps, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app     models.Application
		message sql.NullString
		status  string
	)
	if err := row.Scan(
		&app.ID,
		&app.ProjectID,
		&app.FreelancerID,
		&app.EmployerID,
		&message,
		&status,
		&app.CreatedAt,
		&app.UpdatedAt,
	); err != nil {
		return nil, err
	}
	app.Message = message.String
	app.Status = models.ApplicationStatus(status)
	return &app, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
