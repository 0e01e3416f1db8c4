package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event field '%s': %s", e.Field, e.Message)
}

// ValidateEvent checks the envelope fields consumers rely on. Source and
// payload are optional.
func ValidateEvent(event *Event) error {
	switch {
	case event == nil:
		return &ValidationError{Field: "event", Message: "event cannot be nil"}
	case event.ID == "":
		return &ValidationError{Field: "id", Message: "event ID is required"}
	case event.Type == "":
		return &ValidationError{Field: "type", Message: "event type is required"}
	case event.Timestamp.IsZero():
		return &ValidationError{Field: "timestamp", Message: "event timestamp is required"}
	}
	return nil
}
