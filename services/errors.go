package services

import (
	"fmt"
	"strings"

	"rewards-engine/models"
)

// FieldError pinpoints a single invalid field in a write request.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries itemized field errors instead of one flat message.
type ValidationError struct {
	Items []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		parts = append(parts, fmt.Sprintf("%s: %s", item.Field, item.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string) {
	e.Items = append(e.Items, FieldError{Field: field, Message: message})
}

func (e *ValidationError) orNil() error {
	if len(e.Items) == 0 {
		return nil
	}
	return e
}

// NotFoundError: the template, task, or progress record id doesn't exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// InvalidStateError: a transition was attempted from a state that doesn't
// allow it. A conflict, not a server fault.
type InvalidStateError struct {
	Current   models.ProgressStatus
	Attempted string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s a record in status %q", e.Attempted, e.Current)
}

// DependencyFailure: a badge/voucher collaborator failed after points were
// committed. Surfaced as a warning on a successful response, never fatal.
type DependencyFailure struct {
	Dependency string
	Err        error
}

func (e *DependencyFailure) Error() string {
	return fmt.Sprintf("%s issuance failed: %v", e.Dependency, e.Err)
}

func (e *DependencyFailure) Unwrap() error { return e.Err }
