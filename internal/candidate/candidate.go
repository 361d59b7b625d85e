// internal/candidate/candidate.go
package candidate

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Candidate.
type Kind string

const (
	// KindOptions is an ordered set of option indices to select together.
	KindOptions Kind = "options"
	// KindPair is an unordered pair of option indices (stored ascending).
	KindPair Kind = "pair"
	// KindText is a single free-text value typed into an input.
	KindText Kind = "text"
	// KindNumber is a numeric value typed into an input.
	KindNumber Kind = "number"
	// KindTexts is a sequence of values picked one after another from an autocomplete field.
	KindTexts Kind = "texts"
	// KindNone is the "nothing to answer" candidate used on intro and informational pages.
	KindNone Kind = "none"
)

// Candidate is one concrete answer to try on a page. The traversal engine moves
// candidates around without interpreting them; only the page driver knows how
// to turn one into UI actions.
//
// Empty slices are always normalized to nil by the constructors so a candidate
// survives a round trip through the state document unchanged.
type Candidate struct {
	Kind    Kind     `json:"kind"`
	Indices []int    `json:"indices,omitempty"`
	Text    string   `json:"text,omitempty"`
	Number  float64  `json:"number,omitempty"`
	Texts   []string `json:"texts,omitempty"`
}

// Options builds an OptionIndexSet candidate. The order given is preserved.
func Options(indices ...int) Candidate {
	return Candidate{Kind: KindOptions, Indices: cloneInts(indices)}
}

// Pair builds a PairOfIndices candidate, storing the smaller index first.
func Pair(i, j int) Candidate {
	if j < i {
		i, j = j, i
	}
	return Candidate{Kind: KindPair, Indices: []int{i, j}}
}

// Text builds a TextValue candidate.
func Text(s string) Candidate {
	return Candidate{Kind: KindText, Text: s}
}

// Number builds a NumericValue candidate.
func Number(f float64) Candidate {
	return Candidate{Kind: KindNumber, Number: f}
}

// TextSet builds a candidate that enters each value in order. Called with no
// values it represents the explicit empty selection.
func TextSet(values ...string) Candidate {
	var texts []string
	if len(values) > 0 {
		texts = slices.Clone(values)
	}
	return Candidate{Kind: KindTexts, Texts: texts}
}

// None builds the no-op candidate.
func None() Candidate {
	return Candidate{Kind: KindNone}
}

// Equal reports whether two candidates describe the same answer.
func (c Candidate) Equal(o Candidate) bool {
	return c.Kind == o.Kind &&
		slices.Equal(c.Indices, o.Indices) &&
		c.Text == o.Text &&
		c.Number == o.Number &&
		slices.Equal(c.Texts, o.Texts)
}

// Validate checks that the fields populated match the kind.
func (c Candidate) Validate() error {
	switch c.Kind {
	case KindOptions:
		for _, idx := range c.Indices {
			if idx < 0 {
				return fmt.Errorf("options candidate has negative index %d", idx)
			}
		}
	case KindPair:
		if len(c.Indices) != 2 {
			return fmt.Errorf("pair candidate needs exactly 2 indices, got %d", len(c.Indices))
		}
		if c.Indices[0] < 0 || c.Indices[0] >= c.Indices[1] {
			return fmt.Errorf("pair candidate indices must be ascending and non-negative, got %v", c.Indices)
		}
	case KindText, KindNumber, KindTexts, KindNone:
	default:
		return fmt.Errorf("unknown candidate kind %q", c.Kind)
	}
	return nil
}

// String renders the candidate for logs and state summaries.
func (c Candidate) String() string {
	switch c.Kind {
	case KindOptions:
		return "options" + joinInts(c.Indices)
	case KindPair:
		return "pair" + joinInts(c.Indices)
	case KindText:
		return "text(" + strconv.Quote(c.Text) + ")"
	case KindNumber:
		return "number(" + strconv.FormatFloat(c.Number, 'g', -1, 64) + ")"
	case KindTexts:
		return "texts[" + strings.Join(c.Texts, ",") + "]"
	case KindNone:
		return "none"
	default:
		return "unknown(" + string(c.Kind) + ")"
	}
}

// Value returns the string the driver types into an input for text and
// number candidates.
func (c Candidate) Value() string {
	if c.Kind == KindNumber {
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	}
	return c.Text
}

// Fits reports whether the candidate can still be applied to a page of the
// given shape. Replay uses this to detect that a page changed underneath a
// recorded decision.
func (c Candidate) Fits(s Shape) bool {
	switch c.Kind {
	case KindOptions:
		switch s.Kind {
		case ShapeSingleChoice, ShapeMultiSelect, ShapeExclusive, ShapePairwise:
		default:
			return false
		}
		return indicesBelow(c.Indices, s.OptionCount)
	case KindPair:
		return s.Kind == ShapePairwise && indicesBelow(c.Indices, s.OptionCount)
	case KindText, KindNumber:
		return s.Kind == ShapeScalar
	case KindTexts:
		if s.Kind != ShapeLookup {
			return false
		}
		pool := s.pool()
		for _, t := range c.Texts {
			if !slices.Contains(pool, t) {
				return false
			}
		}
		return true
	case KindNone:
		return s.Kind == ShapeNone
	}
	return false
}

func indicesBelow(indices []int, n int) bool {
	for _, idx := range indices {
		if idx < 0 || idx >= n {
			return false
		}
	}
	return true
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func cloneInts(values []int) []int {
	if len(values) == 0 {
		return nil
	}
	return slices.Clone(values)
}
