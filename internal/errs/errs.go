// Package errs holds the error taxonomy of a graph run. Per-file and
// per-entity errors are collected into the run report; store and
// configuration errors abort the run.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for reporting.
type Kind string

const (
	KindParse         Kind = "parse"
	KindCycle         Kind = "cycle"
	KindAmbiguous     Kind = "ambiguous"
	KindStoreIO       Kind = "store_io"
	KindConfiguration Kind = "configuration"
)

// Status is the final outcome of a run.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusPartial Status = "PARTIAL"
	StatusFailed  Status = "FAILED"
)

// ParseError reports a file that could not be parsed. The file yields no
// fragments; the run continues.
type ParseError struct {
	Path       string
	Line       int
	Underlying error
}

func NewParseError(path string, line int, err error) *ParseError {
	return &ParseError{Path: path, Line: line, Underlying: err}
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d: %v", e.Path, e.Line, e.Underlying)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Underlying)
}

func (e *ParseError) Unwrap() error { return e.Underlying }

func (e *ParseError) Kind() Kind { return KindParse }

// GraphIntegrityError reports an inheritance cycle or an ambiguous
// declaration. The offending edges are dropped; the run continues.
type GraphIntegrityError struct {
	IntegrityKind Kind
	// Nodes names the cycle in walk order, or the ambiguous identities.
	Nodes   []string
	Subject string
	Detail  string
}

// NewCycleError names a cycle such as a -> b -> a.
func NewCycleError(subject string, nodes []string) *GraphIntegrityError {
	return &GraphIntegrityError{IntegrityKind: KindCycle, Subject: subject, Nodes: nodes}
}

// NewAmbiguityError reports a declaration that fans out to several targets.
func NewAmbiguityError(subject string, targets []string, detail string) *GraphIntegrityError {
	return &GraphIntegrityError{IntegrityKind: KindAmbiguous, Subject: subject, Nodes: targets, Detail: detail}
}

func (e *GraphIntegrityError) Error() string {
	switch e.IntegrityKind {
	case KindCycle:
		return fmt.Sprintf("%s cycle: %s", e.Subject, strings.Join(e.Nodes, " -> "))
	default:
		msg := fmt.Sprintf("%s ambiguous: %s", e.Subject, strings.Join(e.Nodes, ", "))
		if e.Detail != "" {
			msg += " (" + e.Detail + ")"
		}
		return msg
	}
}

func (e *GraphIntegrityError) Kind() Kind { return e.IntegrityKind }

// StoreIOError wraps a persisted-store failure.
type StoreIOError struct {
	Op         string
	Retryable  bool
	Attempts   int
	Underlying error
}

func NewStoreIOError(op string, retryable bool, err error) *StoreIOError {
	return &StoreIOError{Op: op, Retryable: retryable, Underlying: err}
}

func (e *StoreIOError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("store %s failed after %d attempts: %v", e.Op, e.Attempts, e.Underlying)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Underlying)
}

func (e *StoreIOError) Unwrap() error { return e.Underlying }

func (e *StoreIOError) Kind() Kind { return KindStoreIO }

// ConfigurationError is fatal before the run starts.
type ConfigurationError struct {
	Key    string
	Reason string
}

func NewConfigurationError(key, reason string) *ConfigurationError {
	return &ConfigurationError{Key: key, Reason: reason}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

func (e *ConfigurationError) Kind() Kind { return KindConfiguration }

// Kinded is implemented by every taxonomy error.
type Kinded interface {
	error
	Kind() Kind
}

// KindOf returns the taxonomy kind of err, or "" for foreign errors.
func KindOf(err error) Kind {
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ""
}

// IsRetryable reports whether err is a transient store failure.
func IsRetryable(err error) bool {
	var s *StoreIOError
	return errors.As(err, &s) && s.Retryable
}

// IsFatal reports whether err must abort a run.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindStoreIO, KindConfiguration:
		return true
	case KindParse, KindCycle, KindAmbiguous:
		return false
	}
	return true
}

// Record is the serializable form of a non-fatal error in a run report.
type Record struct {
	Kind    Kind   `json:"kind"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
}

// ToRecord converts err for the run report.
func ToRecord(err error) Record {
	r := Record{Kind: KindOf(err), Message: err.Error()}
	var pe *ParseError
	var ge *GraphIntegrityError
	switch {
	case errors.As(err, &pe):
		r.Subject = pe.Path
	case errors.As(err, &ge):
		r.Subject = ge.Subject
	}
	return r
}
