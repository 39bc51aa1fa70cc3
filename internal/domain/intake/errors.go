package intake

import "fmt"

// MappingError is returned when a submission cannot be turned into an
// Intake. It is a client-input rejection and must never be retried.
type MappingError struct {
	Source SourceType
	Field  string
	Reason string
	Cause  error
}

func (e *MappingError) Error() string {
	msg := fmt.Sprintf("mapping error (%s)", e.Source)
	if e.Field != "" {
		msg += " in " + e.Field
	}
	msg += ": " + e.Reason
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *MappingError) Unwrap() error {
	return e.Cause
}

// ValidationError is returned by a normalizer that received structurally
// invalid input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error in %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation error: %s", e.Reason)
}
