package models

import (
	"fmt"
	"time"
)

// Envelope is the broker wire format for relayed events and inbound
// control commands.
type Envelope struct {
	ID        string                 `json:"id"`
	Source    string                 `json:"source"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload"`
	TraceID   string                 `json:"trace_id,omitempty"`
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateEnvelope(env *Envelope) error {
	if env == nil {
		return &ValidationError{
			Field:   "envelope",
			Message: "envelope cannot be nil",
		}
	}

	if env.ID == "" {
		return &ValidationError{
			Field:   "id",
			Message: "envelope ID is required",
		}
	}

	if env.Type == "" {
		return &ValidationError{
			Field:   "type",
			Message: "envelope type is required",
		}
	}

	return nil
}

func (env *Envelope) GetString(name string) string {
	if env.Payload == nil {
		return ""
	}
	s, _ := env.Payload[name].(string)
	return s
}
