package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"freelance-lifecycle/internal/common/aws"
	"freelance-lifecycle/internal/common/errors"
	"freelance-lifecycle/internal/common/logger"
	"freelance-lifecycle/internal/models"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSNS struct {
	confirmed []*sns.ConfirmSubscriptionInput
}

func (f *fakeSNS) Publish(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return &sns.PublishOutput{}, nil
}

func (f *fakeSNS) ConfirmSubscription(_ context.Context, in *sns.ConfirmSubscriptionInput, _ ...func(*sns.Options)) (*sns.ConfirmSubscriptionOutput, error) {
	f.confirmed = append(f.confirmed, in)
	return &sns.ConfirmSubscriptionOutput{}, nil
}

func setupTestRouter(t *testing.T) (*gin.Engine, *Service, *memoryStore, *fakeSNS) {
	t.Helper()

	svc, store, _ := newTestService(t)
	fake := &fakeSNS{}
	log := logger.NewTestLogger(t)
	h := NewHandler(svc, aws.NewSNSClientWithAPI(fake), errors.NewErrorHandler(log), log)

	router := gin.New()
	h.RegisterRoutes(router.Group("/api/v1/notifications"))
	return router, svc, store, fake
}

func doRequest(router *gin.Engine, method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errors.StandardError {
	t.Helper()
	var body errors.StandardError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func seed(t *testing.T, svc *Service, applicationID, userID int64) *models.Notification {
	t.Helper()
	n, err := svc.Consume(context.Background(), newEvent(applicationID, userID))
	require.NoError(t, err)
	return n
}

// ==========================
// Inbox queries
// ==========================

func TestHandleListForUser(t *testing.T) {
	router, svc, _, _ := setupTestRouter(t)
	seed(t, svc, 1, 99)
	seed(t, svc, 2, 99)

	w := doRequest(router, http.MethodGet, "/api/v1/notifications/user/99", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var notifications []models.Notification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &notifications))
	require.Len(t, notifications, 2)
	assert.True(t, notifications[0].CreatedAt.After(notifications[1].CreatedAt))
	assert.NotContains(t, w.Body.String(), "dedup")
}

func TestHandleListForUser_Empty(t *testing.T) {
	router, _, _, _ := setupTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/notifications/user/5", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestHandleUnreadAndCount(t *testing.T) {
	router, svc, _, _ := setupTestRouter(t)
	first := seed(t, svc, 1, 99)
	seed(t, svc, 2, 99)

	w := doRequest(router, http.MethodPatch, "/api/v1/notifications/"+strconv.FormatInt(first.ID, 10)+"/read", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var read models.Notification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &read))
	assert.True(t, read.IsRead)

	w = doRequest(router, http.MethodGet, "/api/v1/notifications/user/99/unread-count", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Body.String())

	w = doRequest(router, http.MethodGet, "/api/v1/notifications/user/99/unread", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var unread []models.Notification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &unread))
	assert.Len(t, unread, 1)

	w = doRequest(router, http.MethodPatch, "/api/v1/notifications/user/99/read-all", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated": 1}`, w.Body.String())
}

func TestHandleMarkAsRead_Errors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		code   errors.ErrorCode
	}{
		{"not found", "/api/v1/notifications/404/read", http.StatusNotFound, errors.ErrCodeNotificationNotFound},
		{"bad id", "/api/v1/notifications/abc/read", http.StatusBadRequest, errors.ErrCodeValidationFailed},
		{"zero id", "/api/v1/notifications/0/read", http.StatusBadRequest, errors.ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _, _, _ := setupTestRouter(t)

			w := doRequest(router, http.MethodPatch, tt.path, "", nil)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}
}

// ==========================
// POST /events
// ==========================

const rawEvent = `{"userId": 99, "message": "New application from freelancer 20 for project 10", "type": "NEW_APPLICATION", "dedupKey": "application:7:NEW_APPLICATION", "applicationId": 7}`

func TestHandleIngest_RawEvent(t *testing.T) {
	router, _, store, _ := setupTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/notifications/events", rawEvent, nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	var n models.Notification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &n))
	assert.Equal(t, int64(99), n.UserID)

	// a redelivery resolves to the same notification
	w = doRequest(router, http.MethodPost, "/api/v1/notifications/events", rawEvent, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, store.len())
}

func TestHandleIngest_SNSNotification(t *testing.T) {
	router, _, store, _ := setupTestRouter(t)

	envelope, err := json.Marshal(map[string]string{
		"Type":      "Notification",
		"MessageId": "m-1",
		"TopicArn":  "arn:aws:sns:eu-west-1:1:lifecycle",
		"Message":   rawEvent,
	})
	require.NoError(t, err)

	w := doRequest(router, http.MethodPost, "/api/v1/notifications/events", string(envelope),
		map[string]string{snsMessageTypeHeader: "Notification"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, store.len())
}

func TestHandleIngest_SNSSubscriptionConfirmation(t *testing.T) {
	router, _, _, fake := setupTestRouter(t)

	envelope := `{"Type": "SubscriptionConfirmation", "TopicArn": "arn:aws:sns:eu-west-1:1:lifecycle", "Token": "tok-1", "SubscribeURL": "https://sns.example/confirm"}`
	w := doRequest(router, http.MethodPost, "/api/v1/notifications/events", envelope,
		map[string]string{snsMessageTypeHeader: "SubscriptionConfirmation"})
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, fake.confirmed, 1)
	assert.Equal(t, "tok-1", *fake.confirmed[0].Token)
}

func TestHandleIngest_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   errors.ErrorCode
	}{
		{"not json", `nope`, http.StatusBadRequest, errors.ErrCodeMalformedEvent},
		{"schema violation", `{"userId": -1, "message": "m", "type": "NEW_APPLICATION"}`, http.StatusBadRequest, errors.ErrCodeMalformedEvent},
		{"unknown type", `{"userId": 1, "message": "m", "type": "PROJECT_CLOSED"}`, http.StatusUnprocessableEntity, errors.ErrCodeUnknownEventType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _, store, _ := setupTestRouter(t)

			w := doRequest(router, http.MethodPost, "/api/v1/notifications/events", tt.body, nil)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
			assert.Equal(t, 0, store.len())
		})
	}
}

func TestHandleIngest_StoreDownAsksForRedelivery(t *testing.T) {
	router, _, store, _ := setupTestRouter(t)
	store.failNext = assert.AnError

	w := doRequest(router, http.MethodPost, "/api/v1/notifications/events", rawEvent, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, errors.ErrCodeEventProcessingFailed, body.Code)
	assert.True(t, body.Retryable)
}
