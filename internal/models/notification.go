// internal/models/notification.go
package models

import (
	"fmt"
	"time"
)

type NotificationType string

const (
	NotificationTypeNewApplication NotificationType = "NEW_APPLICATION"
)

type Notification struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"userId"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	IsRead    bool             `json:"isRead"`
	DedupKey  string           `json:"-"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// NotificationEvent is the wire message carried by the event channel.
// Only userId, message and type are required; older producers omit the rest.
type NotificationEvent struct {
	UserID        int64            `json:"userId"`
	Message       string           `json:"message"`
	Type          NotificationType `json:"type"`
	DedupKey      string           `json:"dedupKey,omitempty"`
	ApplicationID int64            `json:"applicationId,omitempty"`
	EventID       string           `json:"eventId,omitempty"`
	OccurredAt    time.Time        `json:"occurredAt"`
}

// DedupKeyFor builds the idempotency key for an application-scoped event.
func DedupKeyFor(applicationID int64, t NotificationType) string {
	return fmt.Sprintf("application:%d:%s", applicationID, t)
}

// PublishResult reports the outcome of handing an event to the channel.
type PublishResult struct {
	EventID   string `json:"eventId"`
	MessageID string `json:"messageId,omitempty"`
	Driver    string `json:"driver"`
	Err       error  `json:"-"`
}

func (r PublishResult) OK() bool {
	return r.Err == nil
}
