// Package faults defines the domain-level error kinds shared by the
// pipeline and its callers. Transport layers (HTTP, CLI) map a Kind to
// their own status codes/exit codes instead of inventing their own
// taxonomy.
package faults

import "fmt"

// Kind classifies a domain failure independent of transport.
type Kind int

const (
	// KindValidation marks malformed input: bad op, out-of-range day,
	// bad config.
	KindValidation Kind = iota
	// KindAuth marks a missing or invalid API key.
	KindAuth
	// KindRateLimited marks a sliding-window limiter rejection.
	KindRateLimited
	// KindBudgetExhausted marks an accountant admission denial.
	KindBudgetExhausted
	// KindConflict marks a request that is individually well formed
	// but invalid against current state (e.g. salt rotation inside an
	// active window).
	KindConflict
	// KindTransient marks I/O failures that may succeed on retry.
	KindTransient
	// KindFatal marks an invariant violation; the caller must not
	// retry and the operation must not have committed.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindAuth:
		return "auth_error"
	case KindRateLimited:
		return "rate_limited"
	case KindBudgetExhausted:
		return "budget_exhausted"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned across package boundaries.
// Fields carries structured detail a caller may want to render (e.g.
// a BudgetExhausted error's metric, cap, and spent amount).
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind.String(), e.Message)
}

// New builds an *Error with the given kind, message, and optional
// structured fields (passed as alternating key/value pairs).
func New(kind Kind, message string, kv ...any) *Error {
	e := &Error{Kind: kind, Message: message}
	if len(kv) > 0 {
		e.Fields = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			key, ok := kv[i].(string)
			if !ok {
				continue
			}
			e.Fields[key] = kv[i+1]
		}
	}
	return e
}

// Of extracts the Kind of err, defaulting to KindFatal for errors not
// produced by this package, an un-classified error is treated as the
// least forgiving kind so it is never silently retried.
func Of(err error) Kind {
	var fe *Error
	if AsError(err, &fe) {
		return fe.Kind
	}
	return KindFatal
}

// AsError is a small errors.As wrapper kept local to avoid importing
// the stdlib errors package in every caller just for this one check.
func AsError(err error, target **Error) bool {
	for err != nil {
		if fe, ok := err.(*Error); ok {
			*target = fe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
