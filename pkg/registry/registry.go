// pkg/registry/registry.go
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"freelance-lifecycle/internal/common/validation"
)

//go:embed event-types.json
var defaultCatalogue []byte

// Default returns the catalogue compiled into the binary.
func Default() (*EventTypeRegistry, error) {
	return Parse(defaultCatalogue)
}

func LoadRegistry(path string) (*EventTypeRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*EventTypeRegistry, error) {
	var reg EventTypeRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(reg.EventTypes))
	for _, et := range reg.EventTypes {
		if et.Type == "" {
			return nil, fmt.Errorf("event type with empty name")
		}
		if seen[et.Type] {
			return nil, fmt.Errorf("duplicate event type %s", et.Type)
		}
		seen[et.Type] = true
	}
	return &reg, nil
}

func (r *EventTypeRegistry) Lookup(eventType string) (EventType, bool) {
	for _, et := range r.EventTypes {
		if et.Type == eventType {
			return et, true
		}
	}
	return EventType{}, false
}

func (r *EventTypeRegistry) Known(eventType string) bool {
	_, ok := r.Lookup(eventType)
	return ok
}

func (r *EventTypeRegistry) Types() []string {
	types := make([]string, 0, len(r.EventTypes))
	for _, et := range r.EventTypes {
		types = append(types, et.Type)
	}
	sort.Strings(types)
	return types
}

// SchemaName is the validator key for an event type's payload schema.
func SchemaName(eventType string) string {
	return "event:" + eventType
}

// RegisterSchemas compiles every payload schema into v.
func (r *EventTypeRegistry) RegisterSchemas(v *validation.Validator) error {
	for _, et := range r.EventTypes {
		if et.PayloadSchema == nil {
			continue
		}
		raw, err := json.Marshal(et.PayloadSchema)
		if err != nil {
			return fmt.Errorf("marshal schema for %s: %w", et.Type, err)
		}
		if err := v.Register(SchemaName(et.Type), string(raw)); err != nil {
			return err
		}
	}
	return nil
}
