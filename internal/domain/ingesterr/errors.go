// Package ingesterr defines the error taxonomy of the ingestion pipeline.
package ingesterr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline outcome
type Kind string

const (
	KindDetectionFailed     Kind = "DetectionFailed"
	KindParseError          Kind = "ParseError"
	KindValidationWarning   Kind = "ValidationWarning"
	KindStructuralRejection Kind = "StructuralRejection"
	KindDuplicateIngestion  Kind = "DuplicateIngestion"
	KindPersistenceError    Kind = "PersistenceError"
	KindMappingError        Kind = "MappingError"
)

// Sentinels for errors.Is matching against a Kind
var (
	ErrDetectionFailed     = errors.New("vendor detection failed")
	ErrParse               = errors.New("parse error")
	ErrValidationWarning   = errors.New("validation warning")
	ErrStructuralRejection = errors.New("structural rejection")
	ErrDuplicateIngestion  = errors.New("duplicate ingestion")
	ErrPersistence         = errors.New("persistence error")
	ErrMapping             = errors.New("mapping error")
)

var kindSentinels = map[Kind]error{
	KindDetectionFailed:     ErrDetectionFailed,
	KindParseError:          ErrParse,
	KindValidationWarning:   ErrValidationWarning,
	KindStructuralRejection: ErrStructuralRejection,
	KindDuplicateIngestion:  ErrDuplicateIngestion,
	KindPersistenceError:    ErrPersistence,
	KindMappingError:        ErrMapping,
}

// Error is a classified pipeline error
type Error struct {
	Kind    Kind   `json:"kind"`
	Stage   string `json:"stage,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Stage != "" {
		msg += " at " + e.Stage
	}
	if e.Field != "" {
		msg += " [" + e.Field + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// WithStage returns a copy of e tagged with the pipeline stage
func (e *Error) WithStage(stage string) *Error {
	cp := *e
	cp.Stage = stage
	return &cp
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// DetectionFailed reports that no vendor could be identified
func DetectionFailed(reason string) *Error {
	return &Error{Kind: KindDetectionFailed, Message: reason}
}

// Parse reports a required field or section that could not be located
func Parse(field string, format string, args ...any) *Error {
	return &Error{Kind: KindParseError, Field: field, Message: fmt.Sprintf(format, args...)}
}

// ParseWrap wraps a lower-level failure while reading a field or section
func ParseWrap(field string, err error) *Error {
	return &Error{Kind: KindParseError, Field: field, Message: "could not be read", Err: err}
}

// StructuralRejection reports a package that cannot be a real bill
func StructuralRejection(reason string) *Error {
	return &Error{Kind: KindStructuralRejection, Message: reason}
}

// Persistence wraps a persistence port failure
func Persistence(message string, err error) *Error {
	return &Error{Kind: KindPersistenceError, Message: message, Err: err}
}

// Mapping wraps a mapping port failure
func Mapping(err error) *Error {
	return &Error{Kind: KindMappingError, Message: "downstream mapping failed", Err: err}
}

// Warning is a non-fatal finding attached to an ingestion result
type Warning struct {
	Kind    Kind   `json:"kind"`
	Scope   string `json:"scope"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
}

// Warning scopes
const (
	ScopeHeader    = "header"
	ScopeLineTotal = "line_total"
	ScopeCharges   = "charges"
	ScopeCategory  = "category"
	ScopeSign      = "sign"
	ScopeNumbers   = "numbers"
	ScopeMapping   = "mapping"
	ScopeDuplicate = "duplicate"
)

// Validation builds a reconciliation or taxonomy warning
func Validation(scope, subject, format string, args ...any) Warning {
	return Warning{
		Kind:    KindValidationWarning,
		Scope:   scope,
		Subject: subject,
		Message: fmt.Sprintf(format, args...),
	}
}

// MappingWarning records a mapping failure on an already persisted result
func MappingWarning(err error) Warning {
	return Warning{Kind: KindMappingError, Scope: ScopeMapping, Message: err.Error()}
}

// DuplicateNotice records that the fingerprint was already committed under persistedID
func DuplicateNotice(persistedID string) Warning {
	return Warning{
		Kind:    KindDuplicateIngestion,
		Scope:   ScopeDuplicate,
		Subject: persistedID,
		Message: "fingerprint already persisted; skipped",
	}
}
