package talk

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags the pipeline stage family an error came from.
type Kind string

// Error kinds. Every kind is fatal for the talk being migrated.
const (
	KindFetch       Kind = "fetch"
	KindExtraction  Kind = "extraction"
	KindProvenance  Kind = "provenance"
	KindAcquisition Kind = "acquisition"
	KindValidation  Kind = "validation"
)

// Sentinels for errors.Is matching on kind alone.
var (
	ErrFetch       = &Error{Kind: KindFetch}
	ErrExtraction  = &Error{Kind: KindExtraction}
	ErrProvenance  = &Error{Kind: KindProvenance}
	ErrAcquisition = &Error{Kind: KindAcquisition}
	ErrValidation  = &Error{Kind: KindValidation}
)

// Error is the tagged error returned by pipeline stages.
type Error struct {
	Kind   Kind
	URL    string
	Status int
	Msg    string
	Err    error
}

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(" error")
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, " (url=%s", e.URL)
		if e.Status != 0 {
			fmt.Fprintf(&b, " status=%d", e.Status)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.URL == "" && t.Err == nil
}

// NewFetchError reports a network or HTTP failure for url.
func NewFetchError(url string, status int, msg string, err error) *Error {
	return &Error{Kind: KindFetch, URL: url, Status: status, Msg: msg, Err: err}
}

// NewExtractionError reports a missing required metadata field.
func NewExtractionError(msg string) *Error {
	return &Error{Kind: KindExtraction, Msg: msg}
}

// NewProvenanceError reports a resource that failed the origin rules.
func NewProvenanceError(msg string) *Error {
	return &Error{Kind: KindProvenance, Msg: msg}
}

// NewAcquisitionError reports a PDF/thumbnail download or upload failure.
func NewAcquisitionError(msg string, err error) *Error {
	return &Error{Kind: KindAcquisition, Msg: msg, Err: err}
}

// NewValidationError reports a record that failed structural checks.
func NewValidationError(msgs []string) *Error {
	return &Error{Kind: KindValidation, Msg: strings.Join(msgs, "; ")}
}

// KindOf returns the kind of err, or "" when err is not a pipeline error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ValidationResult is the outcome of a validator run.
type ValidationResult struct {
	OK     bool
	Errors []string
}

// Valid returns a passing result.
func Valid() ValidationResult {
	return ValidationResult{OK: true}
}

// Fail records a violation.
func (v *ValidationResult) Fail(format string, args ...any) {
	v.OK = false
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// MigrationErrors is the ordered, append-only failure list for one migration attempt.
type MigrationErrors struct {
	items []string
}

// Add appends err's message. Nil errors are ignored.
func (m *MigrationErrors) Add(err error) {
	if err == nil {
		return
	}
	m.items = append(m.items, err.Error())
}

// Addf appends a formatted message.
func (m *MigrationErrors) Addf(format string, args ...any) {
	m.items = append(m.items, fmt.Sprintf(format, args...))
}

// Len reports how many errors were collected.
func (m *MigrationErrors) Len() int {
	return len(m.items)
}

// List returns a copy of the collected messages in insertion order.
func (m *MigrationErrors) List() []string {
	return append([]string(nil), m.items...)
}
