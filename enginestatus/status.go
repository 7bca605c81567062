// Package enginestatus provides the Status result type shared across the
// storage engine's components. Operations that can fail in ways a caller is
// expected to act on (conflict, not-found, bad argument) return a Status
// rather than a Go error; operations that can only fail in ways a caller
// cannot meaningfully recover from (I/O, corruption) return a plain error.
package enginestatus

import "fmt"

// Kind classifies why a Status is not ok, so callers can branch on failure
// category without parsing Message.
type Kind int

const (
	// KindNone is the zero value, used only on an ok Status.
	KindNone Kind = iota
	// KindArgument marks a bad input: empty PK, negative depth, wrong
	// vector dimension, k <= 0.
	KindArgument
	// KindConflict marks a KV write-write conflict or a uniqueness
	// violation on a unique index. The caller should roll back and retry.
	KindConflict
	// KindNotFound marks a logical not-found: missing path, missing
	// entity, missing index.
	KindNotFound
	// KindIntegrity marks deserialization failure or mirror/persistent
	// divergence.
	KindIntegrity
	// KindIO marks an underlying storage I/O failure.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindArgument:
		return "argument"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindIntegrity:
		return "integrity"
	case KindIO:
		return "io"
	default:
		return "none"
	}
}

// Status is the result shape returned by operations with a caller-actionable
// failure mode. The zero value has Ok false; use OK() for a success.
type Status struct {
	Ok      bool
	Kind    Kind
	Message string
}

// OK returns a successful status.
func OK() Status {
	return Status{Ok: true}
}

// Error returns a failed status of the given kind with a formatted message.
func Error(kind Kind, format string, args ...interface{}) Status {
	return Status{Ok: false, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Errorf is an alias of Error kept for call sites that do not care to
// classify the failure kind explicitly; it defaults to KindIO, the most
// conservative (non-retryable-without-cleanup) classification.
func Errorf(format string, args ...interface{}) Status {
	return Error(KindIO, format, args...)
}

// FromError lifts a Go error into a failed Status of the given kind. It
// returns OK() when err is nil.
func FromError(kind Kind, err error) Status {
	if err == nil {
		return OK()
	}
	return Status{Ok: false, Kind: kind, Message: err.Error()}
}

// Err converts a failed Status back into a Go error, or nil if ok. Useful at
// the boundary where a caller wants the `if err != nil` idiom.
func (s Status) Err() error {
	if s.Ok {
		return nil
	}
	return fmt.Errorf("%s: %s", s.Kind, s.Message)
}

func (s Status) String() string {
	if s.Ok {
		return "ok"
	}
	return fmt.Sprintf("%s: %s", s.Kind, s.Message)
}
