// pkg/registry/schema.go
package registry

// EventTypeRegistry is the catalogue of notification event types the
// consumer accepts.
type EventTypeRegistry struct {
	Version     string      `json:"version"`
	LastUpdated string      `json:"lastUpdated"`
	EventTypes  []EventType `json:"eventTypes"`
}

type EventType struct {
	Type          string                 `json:"type"`
	DisplayName   string                 `json:"displayName"`
	Description   string                 `json:"description"`
	Recipient     string                 `json:"recipient"`
	Version       string                 `json:"version"`
	Producer      string                 `json:"producer"`
	PayloadSchema map[string]interface{} `json:"payloadSchema"`
	Tags          []string               `json:"tags"`
}
