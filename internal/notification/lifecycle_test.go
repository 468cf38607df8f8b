package notification

import (
	"context"
	stderrors "errors"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"freelance-lifecycle/internal/application"
	"freelance-lifecycle/internal/common/errors"
	"freelance-lifecycle/internal/common/logger"
	"freelance-lifecycle/internal/common/observability"
	"freelance-lifecycle/internal/events"
	"freelance-lifecycle/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	lifecycleStream = "application-lifecycle"
	lifecycleGroup  = "notification-service"
)

type fixedEmployer int64

func (e fixedEmployer) ResolveEmployer(context.Context, int64) (int64, error) {
	return int64(e), nil
}

// ackLostHandler stores the notification on every delivery but fails the
// first one after the write, as if the process died before acknowledging.
type ackLostHandler struct {
	mu       sync.Mutex
	service  *Service
	received []models.NotificationEvent
}

func (h *ackLostHandler) HandleEvent(ctx context.Context, event models.NotificationEvent) error {
	h.mu.Lock()
	h.received = append(h.received, event)
	first := len(h.received) == 1
	h.mu.Unlock()

	if err := h.service.HandleEvent(ctx, event); err != nil {
		return err
	}
	if first {
		return errors.NewEventProcessingFailedError(string(event.Type), stderrors.New("connection reset before ack"))
	}
	return nil
}

func TestApplicationCreatedReachesEmployerInbox(t *testing.T) {
	ctx := context.Background()
	log := logger.NewTestLogger(t)

	notifications, rows, mr := newTestService(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO applications`)).
		WithArgs(int64(10), int64(20), int64(99), sqlmock.AnyArg(), "PENDING", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	applications := application.NewService(&application.Config{PublishTimeout: time.Second},
		application.NewPostgresStore(db), fixedEmployer(99),
		events.NewStreamPublisher(client, lifecycleStream, 1000, log),
		observability.NewNoop("test"), log)

	decoder, err := events.NewDefaultDecoder()
	require.NoError(t, err)
	handler := &ackLostHandler{service: notifications}
	consumer := events.NewStreamConsumer(client, events.ConsumerConfig{
		Stream:        lifecycleStream,
		Group:         lifecycleGroup,
		Consumer:      "worker-1",
		BatchSize:     10,
		Block:         20 * time.Millisecond,
		MaxDeliveries: 3,
	}, decoder, handler, log)
	require.NoError(t, consumer.EnsureGroup(ctx))

	projectID, freelancerID := int64(10), int64(20)
	app, err := applications.CreateApplication(ctx, models.CreateApplicationRequest{
		ProjectID: &projectID, FreelancerID: &freelancerID, Message: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), app.ID)
	assert.Equal(t, int64(99), app.EmployerID)
	assert.Equal(t, models.StatusPending, app.Status)
	assert.NoError(t, mock.ExpectationsWereMet())

	// first delivery stores the row but is never acknowledged
	n, err := consumer.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, handler.received, 1)
	delivered := handler.received[0]
	assert.Equal(t, app.EmployerID, delivered.UserID)
	assert.Equal(t, models.NotificationTypeNewApplication, delivered.Type)
	assert.Equal(t, app.ID, delivered.ApplicationID)

	inbox, err := notifications.ListForUser(ctx, app.EmployerID)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	stored := inbox[0]
	assert.Equal(t, app.EmployerID, stored.UserID)
	assert.Equal(t, models.NotificationTypeNewApplication, stored.Type)
	assert.False(t, stored.IsRead)
	assert.Contains(t, stored.Message, strconv.FormatInt(freelancerID, 10))
	assert.Contains(t, stored.Message, strconv.FormatInt(projectID, 10))
	assert.Equal(t, models.DedupKeyFor(app.ID, models.NotificationTypeNewApplication), stored.DedupKey)

	// the same stream entry comes back and resolves to the stored row
	result, err := consumer.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reclaimed)
	require.Len(t, handler.received, 2)
	assert.Equal(t, delivered, handler.received[1])

	assert.Equal(t, 1, rows.len())
	summary, err := client.XPending(ctx, lifecycleStream, lifecycleGroup).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.Count)

	count, err := notifications.UnreadCount(ctx, app.EmployerID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
