package spatial

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// ErrorKind classifies a failure the way §7 of the design asks for: errors
// are kinds, not types. Callers switch on Kind (or use errors.Is against the
// package-level sentinels below) rather than type-asserting concrete error
// structs.
type ErrorKind int

const (
	// KindInvalidArgument covers malformed call parameters: leafSize < 2,
	// range <= 0, k <= 0, m/L <= 0, and similar.
	KindInvalidArgument ErrorKind = iota
	// KindInvalidMetric covers a metric lacking a property the collection
	// requires: non-subadditive for VP/Cover/Ball/RBC, non-p-norm for
	// KD-Tree, non-Euclidean for DCI.
	KindInvalidMetric
	// KindInvalidState covers operations invalid in the collection's
	// current lifecycle state: query before build, insert into a
	// non-incremental family (KD-Tree, RBC).
	KindInvalidState
	// KindInterrupted covers a parallel build aborted mid-flight; the
	// collection is left empty and a retry may fall back to serial build.
	KindInterrupted
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInvalidMetric:
		return "invalid_metric"
	case KindInvalidState:
		return "invalid_state"
	case KindInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Error is the single error type every package in this module returns.
// It carries a Kind for programmatic dispatch, an Op naming the failing
// call, and optionally a wrapped cause.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrInvalidArgument) etc. work against any *Error
// sharing the same Kind, so callers can compare against a sentinel value
// the way errors.Is is meant to be used, while the error itself still
// carries a Kind/Op/cause for structured handling.
func (e *Error) Is(target error) bool {
	var sentinel *Error
	if errors.As(target, &sentinel) {
		return e.Kind == sentinel.Kind
	}
	return false
}

// Sentinel values for errors.Is comparisons, one per kind.
var (
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument, Op: "sentinel"}
	ErrInvalidMetric   = &Error{Kind: KindInvalidMetric, Op: "sentinel"}
	ErrInvalidState    = &Error{Kind: KindInvalidState, Op: "sentinel"}
	ErrInterrupted     = &Error{Kind: KindInterrupted, Op: "sentinel"}
)

// NewError builds an *Error for the given kind/op, optionally wrapping a
// cause with fmt.Errorf's %w verb so Unwrap keeps working.
func NewError(kind ErrorKind, op string, cause error) *Error {
	if cause == nil {
		return &Error{Kind: kind, Op: op}
	}
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf("%w", cause)}
}

// NewFatalError wraps cause with a stack trace via github.com/pkg/errors,
// reserved for the handful of irrecoverable build-abort sites named in
// SPEC_FULL.md section 1 (Cover Tree's promote-loop guard, an interrupted
// parallel build, DCI hyperparameter validation): operators rebuilding a
// large index want to know *where* construction gave up, not just that it
// did.
func NewFatalError(kind ErrorKind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: pkgerrors.Wrap(cause, op)}
}
