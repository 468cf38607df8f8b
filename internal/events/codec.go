// internal/events/codec.go
package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"freelance-lifecycle/internal/common/errors"
	"freelance-lifecycle/internal/common/validation"
	"freelance-lifecycle/internal/models"
	"freelance-lifecycle/pkg/registry"
)

// Stream entry field names.
const (
	FieldPayload    = "payload"
	FieldType       = "type"
	FieldEventID    = "eventId"
	FieldReason     = "reason"
	FieldSourceID   = "sourceId"
	FieldDeliveries = "deliveries"
)

func Encode(event models.NotificationEvent) ([]byte, error) {
	return json.Marshal(event)
}

// Decoder turns wire payloads into events. Undecodable or invalid payloads
// yield MALFORMED_EVENT; types missing from the registry yield
// UNKNOWN_EVENT_TYPE.
type Decoder struct {
	registry  *registry.EventTypeRegistry
	validator *validation.Validator
}

func NewDecoder(reg *registry.EventTypeRegistry) (*Decoder, error) {
	v := validation.NewValidator()
	if err := reg.RegisterSchemas(v); err != nil {
		return nil, fmt.Errorf("register event schemas: %w", err)
	}
	return &Decoder{registry: reg, validator: v}, nil
}

// NewDefaultDecoder uses the catalogue compiled into the binary.
func NewDefaultDecoder() (*Decoder, error) {
	reg, err := registry.Default()
	if err != nil {
		return nil, err
	}
	return NewDecoder(reg)
}

func (d *Decoder) Known(t models.NotificationType) bool {
	return d.registry.Known(string(t))
}

func (d *Decoder) Decode(raw []byte) (models.NotificationEvent, error) {
	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return models.NotificationEvent{}, errors.NewMalformedEventError("payload is not a JSON event: " + err.Error())
	}
	if head.Type == nil || *head.Type == "" {
		return models.NotificationEvent{}, errors.NewMalformedEventError("type: required")
	}
	if !d.registry.Known(*head.Type) {
		return models.NotificationEvent{}, errors.NewUnknownEventTypeError(*head.Type)
	}

	schema := registry.SchemaName(*head.Type)
	if d.validator.Has(schema) {
		result, err := d.validator.ValidateJSON(schema, raw)
		if err != nil {
			return models.NotificationEvent{}, errors.NewMalformedEventError(err.Error())
		}
		if !result.Valid {
			return models.NotificationEvent{}, errors.NewMalformedEventError(strings.Join(result.GetErrorMessages(), "; "))
		}
	}

	var event models.NotificationEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return models.NotificationEvent{}, errors.NewMalformedEventError(err.Error())
	}
	return event, nil
}
