// internal/notification/store.go
package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"freelance-lifecycle/internal/models"
)

var (
	ErrNotificationNotFound = errors.New("NOTIFICATION_NOT_FOUND")
	ErrDatabaseQuery        = errors.New("DATABASE_QUERY_FAILED")
	ErrDatabaseInsert       = errors.New("DATABASE_INSERT_FAILED")
)

// SchemaStatements bootstraps the notification store. dedup_key is nullable;
// Postgres lets any number of NULLs through a unique index.
var SchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS notifications (
		id         BIGSERIAL PRIMARY KEY,
		user_id    BIGINT       NOT NULL,
		message    TEXT         NOT NULL,
		type       VARCHAR(64)  NOT NULL,
		is_read    BOOLEAN      NOT NULL DEFAULT FALSE,
		dedup_key  VARCHAR(255) UNIQUE,
		created_at TIMESTAMPTZ  NOT NULL,
		updated_at TIMESTAMPTZ  NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications (user_id, created_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user_unread ON notifications (user_id) WHERE NOT is_read`,
}

// Store persists Notification rows.
type Store interface {
	// InsertIfAbsent stores n unless a row with the same dedup key exists,
	// in which case n is overwritten with the existing row and created is false.
	InsertIfAbsent(ctx context.Context, n *models.Notification) (created bool, err error)
	ListForUser(ctx context.Context, userID int64) ([]models.Notification, error)
	ListUnread(ctx context.Context, userID int64) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, id int64, at time.Time) (*models.Notification, error)
	MarkAllAsRead(ctx context.Context, userID int64, at time.Time) (int64, error)
	UnreadCount(ctx context.Context, userID int64) (int64, error)
}

const notificationColumns = `id, user_id, message, type, is_read, dedup_key, created_at, updated_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InsertIfAbsent(ctx context.Context, n *models.Notification) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, message, type, is_read, dedup_key, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, $4, $5, $6)
		ON CONFLICT (dedup_key) DO NOTHING
		RETURNING `+notificationColumns,
		n.UserID,
		n.Message,
		string(n.Type),
		nullString(n.DedupKey),
		n.CreatedAt,
		n.UpdatedAt,
	)

	stored, err := scanNotification(row)
	if err == nil {
		*n = *stored
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: insert notification: %v", ErrDatabaseInsert, err)
	}

	// conflict: the event was already materialized
	row = s.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE dedup_key = $1`, n.DedupKey)
	existing, err := scanNotification(row)
	if err != nil {
		return false, fmt.Errorf("%w: load notification %q: %v", ErrDatabaseQuery, n.DedupKey, err)
	}
	*n = *existing
	return false, nil
}

func (s *PostgresStore) ListForUser(ctx context.Context, userID int64) ([]models.Notification, error) {
	return s.list(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`, userID)
}

func (s *PostgresStore) ListUnread(ctx context.Context, userID int64) ([]models.Notification, error) {
	return s.list(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE user_id = $1 AND NOT is_read
		ORDER BY created_at DESC, id DESC`, userID)
}

// MarkAsRead only moves updated_at when the row was unread, so repeating the
// call leaves the row untouched.
func (s *PostgresStore) MarkAsRead(ctx context.Context, id int64, at time.Time) (*models.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE notifications
		SET is_read = TRUE,
		    updated_at = CASE WHEN is_read THEN updated_at ELSE $2 END
		WHERE id = $1
		RETURNING `+notificationColumns,
		id, at,
	)

	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotificationNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: mark notification %d read: %v", ErrDatabaseQuery, id, err)
	}
	return n, nil
}

func (s *PostgresStore) MarkAllAsRead(ctx context.Context, userID int64, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET is_read = TRUE, updated_at = $2
		WHERE user_id = $1 AND NOT is_read`,
		userID, at,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: mark all read for user %d: %v", ErrDatabaseQuery, userID, err)
	}

	updated, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %v", ErrDatabaseQuery, err)
	}
	return updated, nil
}

func (s *PostgresStore) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: unread count for user %d: %v", ErrDatabaseQuery, userID, err)
	}
	return count, nil
}

func (s *PostgresStore) list(ctx context.Context, query string, userID int64) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list notifications for user %d: %v", ErrDatabaseQuery, userID, err)
	}
	defer rows.Close()

	notifications := make([]models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan notification: %v", ErrDatabaseQuery, err)
		}
		notifications = append(notifications, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate notifications: %v", ErrDatabaseQuery, err)
	}
	return notifications, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(row scanner) (*models.Notification, error) {
	var (
		n        models.Notification
		typ      string
		dedupKey sql.NullString
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.Message, &typ, &n.IsRead, &dedupKey, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	n.Type = models.NotificationType(typ)
	n.DedupKey = dedupKey.String
	return &n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
