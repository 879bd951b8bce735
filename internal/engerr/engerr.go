// Package engerr implements the engine's error taxonomy. Kinds are tags,
// not Go types, so call sites wrap ordinary errors with context and the
// CLI boundary can recover the kind via errors.As without a type switch
// per package.
package engerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation/recovery policy and CLI exit codes.
type Kind string

const (
	KindResourceBusy Kind = "resource_busy"
	KindDbBusy       Kind = "db_busy"
	KindIntegrity    Kind = "integrity"
	KindBackend      Kind = "backend_error"
	KindConfig       Kind = "config_error"
	KindPath         Kind = "path_error"
	KindCancelled    Kind = "cancelled"
	KindFatal        Kind = "fatal"
)

// BackendSubKind classifies BackendError attempts.
type BackendSubKind string

const (
	BackendTimeout     BackendSubKind = "timeout"
	BackendHTTPError   BackendSubKind = "http_error"
	BackendParseError  BackendSubKind = "parse_error"
	BackendRateLimited BackendSubKind = "rate_limited"
)

// Error is the engine's structured error envelope.
type Error struct {
	Kind    Kind
	Op      string
	Err     error
	Fields  map[string]any
	SubKind BackendSubKind // only meaningful when Kind == KindBackend
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, engerr.KindX) style checks via a sentinel wrapper.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func newErr(kind Kind, op string, err error, fields map[string]any) *Error {
	return &Error{Kind: kind, Op: op, Err: err, Fields: fields}
}

// ResourceBusy wraps a lock-acquisition or DB-writer timeout.
func ResourceBusy(op, resourceKey, holderID string, waitedMS int64, err error) *Error {
	return newErr(KindResourceBusy, op, err, map[string]any{
		"resource_key": resourceKey,
		"holder_id":    holderID,
		"waited_ms":    waitedMS,
	})
}

// DbBusy wraps DB transaction contention past budget.
func DbBusy(op string, err error) *Error {
	return newErr(KindDbBusy, op, err, nil)
}

// Integrity wraps schema/graph/docgen invariant violations.
func Integrity(op string, err error, fields map[string]any) *Error {
	return newErr(KindIntegrity, op, err, fields)
}

// Backend wraps an LLM/HTTP backend failure.
func Backend(op string, sub BackendSubKind, err error, fields map[string]any) *Error {
	e := newErr(KindBackend, op, err, fields)
	e.SubKind = sub
	return e
}

// Config wraps a missing or invalid configuration value.
func Config(op string, err error) *Error {
	return newErr(KindConfig, op, err, nil)
}

// Path wraps path traversal, unknown path, or size-over-cap errors.
func Path(op string, err error, fields map[string]any) *Error {
	return newErr(KindPath, op, err, fields)
}

// Cancelled wraps cooperative cancellation.
func Cancelled(op string) *Error {
	return newErr(KindCancelled, op, errCancelled, nil)
}

// Fatal wraps an unexpected invariant failure that should trigger a
// process-level alert.
func Fatal(op string, err error) *Error {
	return newErr(KindFatal, op, err, nil)
}

var errCancelled = errors.New("operation cancelled")

// KindOf extracts the Kind of err, if any, walking the wrap chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// ExitCode maps an error to the CLI exit codes of spec §6.
// 0 success; 2 usage error; 3 configuration error; 4 resource busy;
// 5 integrity error; 1 catch-all.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	kind, ok := KindOf(err)
	if !ok {
		return 1
	}
	switch kind {
	case KindConfig:
		return 3
	case KindResourceBusy, KindDbBusy:
		return 4
	case KindIntegrity:
		return 5
	default:
		return 1
	}
}
