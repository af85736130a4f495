// Package types holds the shared data model for the backtesting and
// forward-monitoring core: bars, positions, strategy parameters, run and
// monitor records, and the tagged error variants every component returns.
package types

import "fmt"

// Kind tags the error taxonomy a caller can switch on via errors.As.
type Kind string

const (
	// KindInvalidInput marks validation failures: malformed CLI flags,
	// unknown strategy or source names, bad date ranges. No retry.
	KindInvalidInput Kind = "invalid_input"
	// KindNoData marks an empty asset after load, or missing quotes for a
	// monitor's advance date. Fatal for backtests; soft (Skipped) for
	// monitor daily-advance.
	KindNoData Kind = "no_data"
	// KindStrategyFault marks a panic or error surfaced from strategy code.
	// Fatal to the enclosing simulation.
	KindStrategyFault Kind = "strategy_fault"
	// KindPersistenceFault marks an error raised by a persistence port.
	// Fatal to the job.
	KindPersistenceFault Kind = "persistence_fault"
	// KindConcurrent marks a lock file already held by another instance.
	KindConcurrent Kind = "concurrent"
	// KindStalled marks a record the health check judged stalled.
	KindStalled Kind = "stalled"
)

// Error is the tagged error variant every core operation returns instead of
// a bare error string, so callers can branch on Kind without parsing
// messages.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is(err, types.ErrNoData) style sentinels by comparing Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapErr(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// InvalidInput builds a KindInvalidInput error.
func InvalidInput(format string, args ...any) *Error { return newErr(KindInvalidInput, format, args...) }

// NoData builds a KindNoData error.
func NoData(format string, args ...any) *Error { return newErr(KindNoData, format, args...) }

// StrategyFault builds a KindStrategyFault error wrapping the cause.
func StrategyFault(cause error, format string, args ...any) *Error {
	return wrapErr(KindStrategyFault, cause, format, args...)
}

// PersistenceFault builds a KindPersistenceFault error wrapping the cause.
func PersistenceFault(cause error, format string, args ...any) *Error {
	return wrapErr(KindPersistenceFault, cause, format, args...)
}

// Concurrent builds a KindConcurrent error.
func Concurrent(format string, args ...any) *Error { return newErr(KindConcurrent, format, args...) }

// Stalled builds a KindStalled error.
func Stalled(format string, args ...any) *Error { return newErr(KindStalled, format, args...) }

// ErrNoData is a sentinel usable with errors.Is; only Kind is compared.
var ErrNoData = &Error{Kind: KindNoData}

// ErrConcurrent is a sentinel usable with errors.Is; only Kind is compared.
var ErrConcurrent = &Error{Kind: KindConcurrent}
