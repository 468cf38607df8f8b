// cmd/tools/event-registry/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"freelance-lifecycle/internal/common/validation"
	"freelance-lifecycle/pkg/registry"
)

const defaultPath = "pkg/registry/event-types.json"

var registryPath string

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	checkCmd := flag.NewFlagSet("check", flag.ExitOnError)

	for _, fs := range []*flag.FlagSet{addCmd, updateCmd, validateCmd, listCmd, checkCmd} {
		fs.StringVar(&registryPath, "path", defaultPath, "Path to the event type catalogue")
	}

	// Add command flags
	typeAdd := addCmd.String("type", "", "Event type (e.g., APPLICATION_STATUS_CHANGED)")
	displayName := addCmd.String("displayName", "", "Display name")
	description := addCmd.String("description", "", "Description")
	recipient := addCmd.String("recipient", "", "Who receives the notification (employer, freelancer)")
	producer := addCmd.String("producer", "application-service", "Producing service")
	version := addCmd.String("version", "1.0.0", "Version")

	// Update command flags
	typeUpdate := updateCmd.String("type", "", "Event type to update")
	field := updateCmd.String("field", "", "Field to update (displayName, description, recipient, producer, version)")
	value := updateCmd.String("value", "", "New value for the field")

	// Check command flags
	typeCheck := checkCmd.String("type", "", "Event type whose schema is checked")
	payloadFile := checkCmd.String("payload", "", "JSON file holding a sample payload")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *typeAdd == "" || *displayName == "" || *description == "" || *recipient == "" {
			fmt.Println("Error: type, displayName, description, and recipient are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		et := registry.EventType{
			Type:        strings.ToUpper(*typeAdd),
			DisplayName: *displayName,
			Description: *description,
			Recipient:   *recipient,
			Version:     *version,
			Producer:    *producer,
			PayloadSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"userId", "message", "type"},
			},
			Tags: []string{},
		}
		if err := addEventType(et); err != nil {
			fmt.Printf("Error adding event type: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added event type: %s\n", et.Type)

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *typeUpdate == "" || *field == "" || *value == "" {
			fmt.Println("Error: type, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateEventType(*typeUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating event type: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated event type %s, field %s to %s\n", *typeUpdate, *field, *value)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validateCatalogue(); err != nil {
			fmt.Printf("Catalogue validation failed: %v\n", err)
			os.Exit(1)
		}

	case "list":
		listCmd.Parse(os.Args[2:])
		if err := listEventTypes(); err != nil {
			fmt.Printf("Error listing event types: %v\n", err)
			os.Exit(1)
		}

	case "check":
		checkCmd.Parse(os.Args[2:])
		if *typeCheck == "" || *payloadFile == "" {
			fmt.Println("Error: type and payload are required for check.")
			checkCmd.Usage()
			os.Exit(1)
		}
		if err := checkPayload(*typeCheck, *payloadFile); err != nil {
			fmt.Printf("Payload check failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Payload matches the schema.")

	case "help":
		fallthrough
	default:
		help()
	}
}

func addEventType(et registry.EventType) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to load catalogue: %w", err)
		}
		reg = &registry.EventTypeRegistry{Version: "1.0.0"}
	}

	if reg.Known(et.Type) {
		return fmt.Errorf("event type %s already exists", et.Type)
	}

	reg.EventTypes = append(reg.EventTypes, et)
	return saveCatalogue(reg, registryPath)
}

func updateEventType(eventType, field, value string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load catalogue: %w", err)
	}

	found := false
	for i := range reg.EventTypes {
		if reg.EventTypes[i].Type != eventType {
			continue
		}
		found = true
		switch field {
		case "displayName":
			reg.EventTypes[i].DisplayName = value
		case "description":
			reg.EventTypes[i].Description = value
		case "recipient":
			reg.EventTypes[i].Recipient = value
		case "producer":
			reg.EventTypes[i].Producer = value
		case "version":
			reg.EventTypes[i].Version = value
		default:
			return fmt.Errorf("unknown field: %s", field)
		}
		break
	}

	if !found {
		return fmt.Errorf("event type %s not found", eventType)
	}
	return saveCatalogue(reg, registryPath)
}

// validateCatalogue loads the catalogue the same way the consumer does and
// compiles every payload schema.
func validateCatalogue() error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load catalogue: %w", err)
	}

	if len(reg.EventTypes) == 0 {
		return fmt.Errorf("catalogue contains no event types")
	}

	for _, et := range reg.EventTypes {
		if et.DisplayName == "" {
			return fmt.Errorf("event type %s missing required field: displayName", et.Type)
		}
		if et.Recipient == "" {
			return fmt.Errorf("event type %s missing required field: recipient", et.Type)
		}
	}

	if err := reg.RegisterSchemas(validation.NewValidator()); err != nil {
		return err
	}

	fmt.Printf("Catalogue validation passed. Found %d event types.\n", len(reg.EventTypes))
	return nil
}

func listEventTypes() error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load catalogue: %w", err)
	}

	for _, name := range reg.Types() {
		et, _ := reg.Lookup(name)
		fmt.Printf("%-32s %-10s %-20s %s\n", et.Type, et.Version, et.Producer, et.Recipient)
	}
	return nil
}

func checkPayload(eventType, path string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load catalogue: %w", err)
	}
	if !reg.Known(eventType) {
		return fmt.Errorf("unknown event type %s", eventType)
	}

	v := validation.NewValidator()
	if err := reg.RegisterSchemas(v); err != nil {
		return err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	result, err := v.ValidateJSON(registry.SchemaName(eventType), raw)
	if err != nil {
		return err
	}
	if !result.Valid {
		return fmt.Errorf("%s", strings.Join(result.GetErrorMessages(), "; "))
	}
	return nil
}

// saveCatalogue stamps lastUpdated and writes the file.
func saveCatalogue(reg *registry.EventTypeRegistry, path string) error {
	reg.LastUpdated = time.Now().Format("2006-01-02")

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalogue: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write catalogue file: %w", err)
	}
	return nil
}

func help() {
	fmt.Print(`
Usage: event-registry <command> [flags]

Commands:
  add       Add a new event type to the catalogue
  update    Update an existing event type's field
  validate  Validate the catalogue and compile its schemas
  list      List the known event types
  check     Check a sample payload against an event type's schema
  help      Show this help message

Examples:
  event-registry add -type APPLICATION_STATUS_CHANGED -displayName "Status Changed" -description "An application moved to a new status" -recipient freelancer
  event-registry update -type NEW_APPLICATION -field version -value 1.1.0
  event-registry validate -path pkg/registry/event-types.json
  event-registry check -type NEW_APPLICATION -payload sample.json

Use 'event-registry <command> -h' for more information about a command.
`)
}
