// Package errdefs defines the error taxonomy shared by all arcsync
// components. Every failure is tagged with a Kind so callers can decide
// whether to retry, skip the item, abort the collection, or abort the
// whole process, and so the CLI can map failures to stable exit codes.
package errdefs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	// KindValidation marks bad user input (row count, collection name).
	// Raised before any I/O.
	KindValidation Kind = "validation"

	// KindDependency marks a requested capability that this build does not
	// provide, such as an unknown source backend. Raised before any I/O.
	KindDependency Kind = "dependency"

	// KindTransient marks a network failure worth retrying: timeouts,
	// connection resets, 5xx responses.
	KindTransient Kind = "transient"

	// KindNotFound marks a collection or item that does not exist remotely.
	KindNotFound Kind = "not_found"

	// KindRateLimited marks a 429-class rejection from the remote.
	KindRateLimited Kind = "rate_limited"

	// KindMalformed marks a response body that could not be parsed.
	KindMalformed Kind = "malformed"

	// KindTransfer marks a single item download failure. Isolated: the run
	// continues with the next item.
	KindTransfer Kind = "transfer"

	// KindState marks a state-store failure. Fatal to the run, since state
	// integrity can no longer be guaranteed.
	KindState Kind = "state"

	// KindFilesystem marks directory creation or permission failures.
	// Fatal to the affected collection.
	KindFilesystem Kind = "filesystem"
)

// Error carries the failure kind plus enough context (operation, collection,
// item) to diagnose without re-running in verbose mode.
type Error struct {
	Kind       Kind
	Op         string // operation that failed, e.g. "catalog.fetch"
	Collection string
	Item       string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Collection != "" && e.Item != "":
		return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Collection, e.Item, e.Err)
	case e.Collection != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
	case e.Item != "":
		return fmt.Sprintf("%s item %s: %v", e.Op, e.Item, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

// Unwrap returns the underlying error for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given kind and operation.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates an Error from a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// WithCollection adds collection context.
func (e *Error) WithCollection(collection string) *Error {
	e.Collection = collection
	return e
}

// WithItem adds item context.
func (e *Error) WithItem(item string) *Error {
	e.Item = item
	return e
}

// KindOf reports the Kind of err, unwrapping as needed. Errors without a
// taxonomy tag report an empty Kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsTransient reports whether err is worth retrying. Only transient network
// failures qualify; not-found, rate-limited and malformed responses abort
// immediately without consuming retry budget.
func IsTransient(err error) bool {
	return IsKind(err, KindTransient)
}

// Exit codes reported by the CLI.
const (
	ExitOK         = 0
	ExitGeneral    = 1 // validation, dependency, anything unclassified
	ExitNetwork    = 2 // catalog and transfer failures
	ExitFilesystem = 3 // filesystem and state-store failures
)

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case KindTransient, KindNotFound, KindRateLimited, KindMalformed, KindTransfer:
		return ExitNetwork
	case KindState, KindFilesystem:
		return ExitFilesystem
	default:
		return ExitGeneral
	}
}
