package tool

import "fmt"

const (
	FailureMissingField = "missing_field"
	FailureNotFound     = "not_found"
	FailureTimeout      = "timeout"
	FailureUpstream     = "upstream"
)

// Failure is a stable, categorized tool failure. It is fed back to the model
// during OBSERVE rather than aborting the turn.
type Failure struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
	Field  string `json:"field,omitempty"`
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	if f.Detail == "" {
		return f.Kind
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

// NewFailure creates a categorized failure.
func NewFailure(kind string, detail string) *Failure {
	return &Failure{Kind: kind, Detail: detail}
}

// MissingField reports a required field the user has not supplied yet.
func MissingField(field string, detail string) *Failure {
	return &Failure{Kind: FailureMissingField, Detail: detail, Field: field}
}
