// File: internal/persistence/document.go
package persistence

import (
	"errors"
	"fmt"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/quizwalk/internal/candidate"
	"github.com/xkilldash9x/quizwalk/internal/explorer"
)

// ErrCorruptState is returned when a state document cannot be decoded.
var ErrCorruptState = errors.New("corrupt state document")

// codec writes byte-stable documents: map keys are sorted and unknown fields
// are refused on the way back in.
var codec = json.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	DisallowUnknownFields:  true,
}.Froze()

// document mirrors explorer.State with pointers so a missing field can be told
// apart from an empty one.
type document struct {
	DecisionStack     *[]explorer.DecisionNode                   `json:"decision_stack"`
	Frontier          *map[explorer.PageID][]candidate.Candidate `json:"frontier"`
	ArtifactsCaptured *int                                       `json:"artifacts_captured"`
}

// Encode renders a state as an indented JSON document with exactly three
// top-level fields. Empty frontier queues are kept as empty lists.
func Encode(state *explorer.State) ([]byte, error) {
	if state == nil {
		return nil, errors.New("cannot encode a nil state")
	}
	normalized := *state
	normalized.Normalize()

	data, err := codec.MarshalIndent(&normalized, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses and validates a state document.
func Decode(data []byte) (*explorer.State, error) {
	var doc document
	if err := codec.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptState, err)
	}
	switch {
	case doc.DecisionStack == nil:
		return nil, fmt.Errorf("%w: missing decision_stack", ErrCorruptState)
	case doc.Frontier == nil:
		return nil, fmt.Errorf("%w: missing frontier", ErrCorruptState)
	case doc.ArtifactsCaptured == nil:
		return nil, fmt.Errorf("%w: missing artifacts_captured", ErrCorruptState)
	}

	state := &explorer.State{
		DecisionStack:     *doc.DecisionStack,
		Frontier:          *doc.Frontier,
		ArtifactsCaptured: *doc.ArtifactsCaptured,
	}
	state.Normalize()
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptState, err)
	}
	return state, nil
}
