package scrolltable

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrFetchFailed wraps every error reported for a failed range fetch.
	// The affected offsets stay placeholders and are fetched again on the
	// next overlapping request.
	ErrFetchFailed = errors.New("range fetch failed")

	// ErrSuperseded is returned when a view switch completes after a newer
	// switch was issued. Its result has been dropped.
	ErrSuperseded = errors.New("superseded by a newer view switch")

	// ErrMutationFailed wraps errors returned by Source.Mutate.
	ErrMutationFailed = errors.New("mutation failed")

	// ErrNoTargets is returned when a mutation has neither explicit IDs nor
	// a selection to act on.
	ErrNoTargets = errors.New("no rows to act on")

	// ErrInvalidRow is returned when a fetched row does not match the schema.
	ErrInvalidRow = errors.New("invalid row")
)

// NoSuchIDError reports an ID that is not in the RowStore. It usually means
// the row was removed by a concurrent mutation; callers should refresh their
// view of the store rather than treat it as fatal.
type NoSuchIDError struct {
	ID ID
}

func (e *NoSuchIDError) Error() string {
	return fmt.Sprintf("no such row id %q", string(e.ID))
}

// IsNoSuchID reports whether err is or wraps a *NoSuchIDError.
func IsNoSuchID(err error) bool {
	var target *NoSuchIDError
	return errors.As(err, &target)
}

// DuplicateOffsetError reports an insert at an offset already held by a
// different row.
type DuplicateOffsetError struct {
	Offset   int
	Existing ID
	Incoming ID
}

func (e *DuplicateOffsetError) Error() string {
	return fmt.Sprintf("offset %d already holds row %q, cannot insert %q", e.Offset, string(e.Existing), string(e.Incoming))
}

// InvariantError reports a broken structural invariant, such as a gap
// between placeholders and fetched rows.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return "invariant violation: " + e.Msg }

func invariantf(format string, args ...any) *InvariantError {
	return &InvariantError{Msg: fmt.Sprintf(format, args...)}
}

// guard decides what happens on an invariant violation: panic when strict
// (development and tests), log and carry on otherwise.
type guard struct {
	strict bool
	log    *slog.Logger
}

func newGuard(strict bool, logger *slog.Logger) *guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &guard{strict: strict, log: logger}
}

func (g *guard) violate(err error) {
	if g.strict {
		panic(err)
	}
	g.log.Error("scrolltable invariant violation", "err", err)
}
