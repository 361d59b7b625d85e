package explorer

import (
	"context"
	"net/url"
	"strings"

	"github.com/xkilldash9x/quizwalk/internal/candidate"
)

// PageID identifies a quiz page: the first path segment of its location,
// lower-cased. The site root is "/".
type PageID string

// RootPageID is the identity of the bare site root.
const RootPageID PageID = "/"

// PageIDFromURL derives a PageID from a location. Query string and fragment
// never take part in the identity.
func PageIDFromURL(raw string) PageID {
	path := raw
	if u, err := url.Parse(raw); err == nil {
		path = u.Path
	} else {
		if i := strings.IndexAny(path, "?#"); i >= 0 {
			path = path[:i]
		}
		if i := strings.Index(path, "://"); i >= 0 {
			path = path[i+3:]
			if j := strings.IndexByte(path, '/'); j >= 0 {
				path = path[j:]
			} else {
				path = ""
			}
		}
	}

	segment, _, _ := strings.Cut(strings.Trim(path, "/"), "/")
	if segment == "" {
		return RootPageID
	}
	return PageID(strings.ToLower(segment))
}

// PageDriver performs every interaction with the quiz site. Navigation calls
// report whether the page identity actually changed.
type PageDriver interface {
	Open(ctx context.Context) error
	CurrentPageID(ctx context.Context) (PageID, error)
	ProbeShape(ctx context.Context) (candidate.Shape, error)
	Apply(ctx context.Context, c candidate.Candidate) error
	NavigateForward(ctx context.Context) (bool, error)
	NavigateBack(ctx context.Context) (bool, error)
}

// ArtifactCounter reports how many target submissions have been observed.
// It is incremented out of band by the network layer.
type ArtifactCounter interface {
	ArtifactsCaptured() int
}
