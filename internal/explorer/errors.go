package explorer

import (
	"errors"
	"fmt"
)

var (
	// ErrExhausted is returned by the frontier when a page has no candidates left
	// or has no entry at all.
	ErrExhausted = errors.New("frontier exhausted")
	// ErrNoProgress means navigation did not change the page. It ends a run as stuck.
	ErrNoProgress = errors.New("no forward progress")
	// ErrBoundExceeded means the artifact cap was reached. It ends a run as bounded.
	ErrBoundExceeded = errors.New("artifact bound reached")
	// ErrDriverFailure wraps a page driver error that survived the driver's own
	// retries. It is fatal.
	ErrDriverFailure = errors.New("page driver failure")
)

// StructuralMismatchError reports that replay found the site different from
// what the decision stack recorded. It is always fatal.
type StructuralMismatchError struct {
	Index    int
	Expected PageID
	Actual   PageID
	Reason   string
}

func (e *StructuralMismatchError) Error() string {
	msg := fmt.Sprintf("structural mismatch at decision %d: expected page %q, found %q", e.Index, e.Expected, e.Actual)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// IsFatal reports whether err must abort a run without saving state.
func IsFatal(err error) bool {
	var mismatch *StructuralMismatchError
	return errors.As(err, &mismatch) || errors.Is(err, ErrDriverFailure)
}
