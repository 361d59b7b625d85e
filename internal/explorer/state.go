package explorer

import (
	"fmt"

	"github.com/xkilldash9x/quizwalk/internal/candidate"
)

// State is the unit of persistence: the decision path, the remaining
// candidates per page and the number of artifacts captured so far.
type State struct {
	DecisionStack     []DecisionNode                   `json:"decision_stack"`
	Frontier          map[PageID][]candidate.Candidate `json:"frontier"`
	ArtifactsCaptured int                              `json:"artifacts_captured"`
}

// NewState returns an empty state with non-nil collections.
func NewState() *State {
	return &State{
		DecisionStack: []DecisionNode{},
		Frontier:      map[PageID][]candidate.Candidate{},
	}
}

// Normalize replaces nil collections so the encoded document always carries
// a list and an object.
func (s *State) Normalize() {
	if s.DecisionStack == nil {
		s.DecisionStack = []DecisionNode{}
	}
	if s.Frontier == nil {
		s.Frontier = map[PageID][]candidate.Candidate{}
	}
	for id, q := range s.Frontier {
		if q == nil {
			s.Frontier[id] = []candidate.Candidate{}
		}
	}
}

// Validate checks a decoded state before it is trusted.
func (s *State) Validate() error {
	if s.ArtifactsCaptured < 0 {
		return fmt.Errorf("negative artifact count %d", s.ArtifactsCaptured)
	}
	for i, n := range s.DecisionStack {
		if n.PageID == "" {
			return fmt.Errorf("decision %d has no page id", i)
		}
		if err := n.Candidate.Validate(); err != nil {
			return fmt.Errorf("decision %d on %q: %w", i, n.PageID, err)
		}
	}
	for id, q := range s.Frontier {
		if id == "" {
			return fmt.Errorf("frontier entry with empty page id")
		}
		for i, c := range q {
			if err := c.Validate(); err != nil {
				return fmt.Errorf("frontier %q candidate %d: %w", id, i, err)
			}
		}
	}
	return nil
}

// restore rebuilds the live structures from a persisted state.
func (s *State) restore() (*Frontier, *Stack) {
	f := NewFrontier()
	for id, q := range s.Frontier {
		f.install(id, q)
	}
	return f, NewStack(s.DecisionStack...)
}
