package baseline

import (
	"errors"
	"fmt"
	"strings"

	"mcpguard/internal/model"
)

var (
	// ErrStale means the file or its stored baseline changed after the
	// Change Set was computed.
	ErrStale = errors.New("changed since the change set was computed")
	// ErrInvalidBaseline means the stored baseline failed validation, so there
	// is nothing trustworthy to revert to.
	ErrInvalidBaseline = errors.New("stored baseline is invalid")
	// ErrUnreadableEntry means the entry carries no readable current content.
	ErrUnreadableEntry = errors.New("current content was unreadable")
	// ErrContentMismatch means the entry's captured content does not hash to
	// its recorded current hash.
	ErrContentMismatch = errors.New("captured content does not match its hash")
	// ErrUntracked means the entry's path is not part of the current
	// configuration's tracked set.
	ErrUntracked = errors.New("path is not tracked by the current configuration")
)

// PartialFailureError reports the paths a transaction could not apply. Every
// path not listed was applied.
type PartialFailureError struct {
	Op       string
	Failures []model.PathFailure
}

func (e *PartialFailureError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed for %d path(s)", e.Op, len(e.Failures))
	for _, f := range e.Failures {
		b.WriteString("\n  ")
		b.WriteString(f.Error())
	}
	return b.String()
}

// Unwrap exposes the per-path causes to errors.Is and errors.As.
func (e *PartialFailureError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// FailedPaths lists the failing paths in Change Set order.
func (e *PartialFailureError) FailedPaths() []string {
	paths := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		paths[i] = f.Path
	}
	return paths
}
