// Package errs defines the error-kind taxonomy shared across the ingest,
// index, query, alarm, and redaction subsystems. Components never panic or
// use exceptions for control flow; they wrap one of these sentinels with
// fmt.Errorf("...: %w", errs.Kind) so callers can classify failures with
// errors.Is without parsing strings.
package errs

import "errors"

// Client/validation errors: the caller did something the system will never
// satisfy, regardless of retry.
var (
	ErrQuerySyntax       = errors.New("query syntax error")
	ErrEvalUnsupported   = errors.New("eval expression unsupported")
	ErrBadConfig         = errors.New("invalid configuration")
	ErrUnauthorizedReveal = errors.New("reveal not authorized")
)

// Capacity/timing errors: the caller may succeed on retry.
var (
	ErrBufferFull    = errors.New("ingestion buffer full")
	ErrQueryTimeout  = errors.New("query deadline exceeded")
	ErrRateLimited   = errors.New("rate limited")
)

// Availability errors: a dependency is temporarily or permanently unable to
// serve the request.
var (
	ErrPartitionUnavailable = errors.New("partition unavailable")
	ErrArchiveUnavailable   = errors.New("archive unavailable")
	ErrNotifyChannelDown    = errors.New("notification channel down")
)

// Integrity errors: on-disk or in-memory state is inconsistent.
var (
	ErrIndexCorrupt = errors.New("index corrupt")
	ErrIndexIO      = errors.New("index io error")
	ErrConfigIO     = errors.New("config io error")
)

// ErrUnexpected covers anything that should be impossible given the
// invariants documented at the call site; it always indicates a bug.
var ErrUnexpected = errors.New("unexpected internal error")

// Kind returns the first sentinel from this package that err wraps, or
// ErrUnexpected if none match. Useful at HTTP boundaries that need to map
// an arbitrary internal error to a status code without a type switch at
// every call site.
func Kind(err error) error {
	for _, k := range allKinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrUnexpected
}

var allKinds = []error{
	ErrQuerySyntax, ErrEvalUnsupported, ErrBadConfig, ErrUnauthorizedReveal,
	ErrBufferFull, ErrQueryTimeout, ErrRateLimited,
	ErrPartitionUnavailable, ErrArchiveUnavailable, ErrNotifyChannelDown,
	ErrIndexCorrupt, ErrIndexIO, ErrConfigIO,
}
