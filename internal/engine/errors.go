package engine

import "errors"

// The engine's user-visible failure taxonomy. Validation failures are
// surfaced as *validate.Error and carry the failing stage.
var (
	// ErrNotFound: the upstream fetch succeeded but returned nothing
	// usable. Not retried automatically.
	ErrNotFound = errors.New("no trend data for category")

	// ErrBusy: another request holds the single-flight lock and the
	// cache did not fill within the poll window. Callers should retry
	// shortly.
	ErrBusy = errors.New("recommendation is being computed, retry later")

	// ErrRateLimited: the daily upstream fetch quota is exhausted.
	ErrRateLimited = errors.New("daily fetch quota exceeded")

	// ErrUnavailable: the request cannot be served even in degraded
	// mode (the fetch path itself failed).
	ErrUnavailable = errors.New("service unavailable")
)
