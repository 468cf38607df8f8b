// internal/notification/service.go
package notification

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	"freelance-lifecycle/internal/common/errors"
	"freelance-lifecycle/internal/common/logger"
	"freelance-lifecycle/internal/common/metrics"
	"freelance-lifecycle/internal/common/observability"
	"freelance-lifecycle/internal/events"
	"freelance-lifecycle/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

// Service materializes lifecycle events into the inbox and serves it.
type Service struct {
	store   Store
	cache   *UnreadCache
	decoder *events.Decoder
	obs     *observability.Observability
	logger  logger.Logger
	now     func() time.Time
}

func NewService(store Store, cache *UnreadCache, decoder *events.Decoder, obs *observability.Observability, log logger.Logger) *Service {
	return &Service{
		store:   store,
		cache:   cache,
		decoder: decoder,
		obs:     obs,
		logger:  log.WithFields(map[string]interface{}{"component": "notification-service"}),
		now:     time.Now,
	}
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// HandleEvent adapts Consume to the stream consumer.
func (s *Service) HandleEvent(ctx context.Context, event models.NotificationEvent) error {
	_, err := s.Consume(ctx, event)
	return err
}

// Ingest decodes a pushed payload and consumes it.
func (s *Service) Ingest(ctx context.Context, raw []byte) (*models.Notification, error) {
	event, err := s.decoder.Decode(raw)
	if err != nil {
		return nil, err
	}
	return s.Consume(ctx, event)
}

// Consume stores the notification for event. Redelivered events carry the
// same dedup key and resolve to the row stored the first time.
func (s *Service) Consume(ctx context.Context, event models.NotificationEvent) (n *models.Notification, err error) {
	ctx, span := s.obs.StartSpan(ctx, "notification.consume",
		attribute.Int64("userId", event.UserID),
		attribute.String("type", string(event.Type)),
		attribute.String("eventId", event.EventID))
	start := time.Now()
	defer func() {
		span.End()
		s.obs.RecordOperation(ctx, "notification.consume", observability.Status(err), time.Since(start))
	}()

	if err := s.validateEvent(event); err != nil {
		return nil, err
	}

	now := s.timestamp()
	n = &models.Notification{
		UserID:    event.UserID,
		Message:   event.Message,
		Type:      event.Type,
		IsRead:    false,
		DedupKey:  event.DedupKey,
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := s.store.InsertIfAbsent(ctx, n)
	if err != nil {
		return nil, errors.NewEventProcessingFailedError(string(event.Type), err)
	}

	metrics.NotificationsCreated.WithLabelValues(string(event.Type), strconv.FormatBool(!created)).Inc()
	if !created {
		s.logger.Info("duplicate event, notification already stored", map[string]interface{}{
			"notificationId": n.ID,
			"dedupKey":       event.DedupKey,
			"eventId":        event.EventID,
		})
		return n, nil
	}

	s.cache.Invalidate(ctx, n.UserID)
	s.logger.Info("notification created", map[string]interface{}{
		"notificationId": n.ID,
		"userId":         n.UserID,
		"type":           n.Type,
		"eventId":        event.EventID,
	})
	return n, nil
}

func (s *Service) validateEvent(event models.NotificationEvent) error {
	if event.UserID <= 0 {
		return errors.NewMalformedEventError("userId: must be a positive integer")
	}
	if event.Message == "" {
		return errors.NewMalformedEventError("message: required")
	}
	if !s.decoder.Known(event.Type) {
		return errors.NewUnknownEventTypeError(string(event.Type))
	}
	return nil
}

func (s *Service) ListForUser(ctx context.Context, userID int64) ([]models.Notification, error) {
	notifications, err := s.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError("list notifications", err)
	}
	return notifications, nil
}

func (s *Service) ListUnread(ctx context.Context, userID int64) ([]models.Notification, error) {
	notifications, err := s.store.ListUnread(ctx, userID)
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError("list unread notifications", err)
	}
	return notifications, nil
}

// MarkAsRead is idempotent: marking a read notification again returns it
// unchanged.
func (s *Service) MarkAsRead(ctx context.Context, id int64) (*models.Notification, error) {
	n, err := s.store.MarkAsRead(ctx, id, s.timestamp())
	if stderrors.Is(err, ErrNotificationNotFound) {
		return nil, errors.NewNotificationNotFoundError(id)
	}
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError("mark as read", err)
	}

	metrics.NotificationsMarkedRead.Inc()
	s.cache.Invalidate(ctx, n.UserID)
	return n, nil
}

func (s *Service) MarkAllAsRead(ctx context.Context, userID int64) (int64, error) {
	updated, err := s.store.MarkAllAsRead(ctx, userID, s.timestamp())
	if err != nil {
		return 0, errors.NewDatabaseQueryFailedError("mark all as read", err)
	}

	s.cache.Invalidate(ctx, userID)
	s.logger.Debug("notifications marked read", map[string]interface{}{
		"userId":  userID,
		"updated": updated,
	})
	return updated, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	count, version, ok := s.cache.Get(ctx, userID)
	if ok {
		return count, nil
	}

	count, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return 0, errors.NewDatabaseQueryFailedError("unread count", err)
	}

	s.cache.Set(ctx, userID, version, count)
	return count, nil
}
