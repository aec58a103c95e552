package payroll

import (
	"errors"
	"strings"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrEntryNotFound        = errors.New("history entry not found")
	ErrJobNotFound          = errors.New("completed job not found")
	ErrEmployeeNotFound     = errors.New("employee not found")
	ErrDuplicateEmployee    = errors.New("employee already exists")
	ErrJobAlreadyPaid       = errors.New("job is already paid")
	ErrJobAlreadyStaged     = errors.New("job is already on the worksheet")
	ErrJobNotCompleted      = errors.New("job is not completed")
	ErrRowNotFound          = errors.New("worksheet row not found")
	ErrUndoExpired          = errors.New("undo is no longer available")
	ErrEmptyWorksheet       = errors.New("worksheet has no rows")
	ErrConfirmationRequired = errors.New("delete requires explicit confirmation")
	ErrPartialWrite         = errors.New("write partially completed")
)

type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field problem found before a write was attempted.
type ValidationError struct {
	Issues []FieldIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.Field+": "+issue.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func (e *ValidationError) add(field, message string) {
	e.Issues = append(e.Issues, FieldIssue{Field: field, Message: message})
}

func (e *ValidationError) prefixed(prefix string) []FieldIssue {
	out := make([]FieldIssue, 0, len(e.Issues))
	for _, issue := range e.Issues {
		out = append(out, FieldIssue{Field: prefix + issue.Field, Message: issue.Message})
	}
	return out
}

func (e *ValidationError) orNil() error {
	if len(e.Issues) == 0 {
		return nil
	}
	return e
}
