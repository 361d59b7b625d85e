package candidate

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidShape is returned when a shape cannot produce a candidate sequence.
var ErrInvalidShape = errors.New("invalid answer shape")

// Generate maps a page shape to the ordered, finite sequence of candidates to
// try there. It is a pure function: the same shape always yields the same
// sequence, which resume relies on.
func Generate(s Shape) ([]Candidate, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	switch s.Kind {
	case ShapeNone:
		return []Candidate{None()}, nil
	case ShapeDeadEnd:
		return []Candidate{}, nil
	case ShapeSingleChoice:
		out := make([]Candidate, 0, s.OptionCount)
		for i := 0; i < s.OptionCount; i++ {
			out = append(out, Options(i))
		}
		return out, nil
	case ShapeMultiSelect:
		return BoundedSubsets(s.OptionCount, s.MaxSelections, s.AppendEmpty), nil
	case ShapeExclusive:
		return ExclusiveSubsets(s.OptionCount, s.MaxSelections, s.ExclusiveIndex), nil
	case ShapePairwise:
		return PairsThenSingles(s.OptionCount), nil
	case ShapeScalar:
		return scalarPool(s)
	case ShapeLookup:
		return lookupSubsets(s.pool(), s.MaxSelections), nil
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidShape, s.Kind)
}

// BoundedSubsets enumerates every non-empty subset of {0..n-1} with at most
// maxSel members (0 means no limit) in prefix-extension order: {0}, {0,1},
// {0,1,2}, ..., {0,2}, ... When appendEmpty is set the empty subset follows last.
func BoundedSubsets(n, maxSel int, appendEmpty bool) []Candidate {
	var out []Candidate
	walkSubsets(n, maxSel, -1, func(set []int) {
		out = append(out, Options(set...))
	})
	if appendEmpty {
		out = append(out, Options())
	}
	return out
}

// ExclusiveSubsets enumerates subsets like BoundedSubsets but never combines
// the exclusive option with anything; its singleton is appended once at the end.
func ExclusiveSubsets(n, maxSel, exclusive int) []Candidate {
	var out []Candidate
	walkSubsets(n, maxSel, exclusive, func(set []int) {
		out = append(out, Options(set...))
	})
	return append(out, Options(exclusive))
}

// PairsThenSingles lists every pair (i<j) lexicographically, then every singleton.
func PairsThenSingles(n int) []Candidate {
	out := make([]Candidate, 0, n*(n-1)/2+n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out = append(out, Pair(i, j))
		}
	}
	for i := 0; i < n; i++ {
		out = append(out, Options(i))
	}
	return out
}

// walkSubsets drives the canonical recursive combination order. skip is an
// index never included (-1 for none).
func walkSubsets(n, maxSel, skip int, emit func([]int)) {
	prefix := make([]int, 0, n)
	var walk func(start int)
	walk = func(start int) {
		if len(prefix) > 0 {
			emit(prefix)
		}
		if maxSel > 0 && len(prefix) == maxSel {
			return
		}
		for i := start; i < n; i++ {
			if i == skip {
				continue
			}
			prefix = append(prefix, i)
			walk(i + 1)
			prefix = prefix[:len(prefix)-1]
		}
	}
	walk(0)
}

func scalarPool(s Shape) ([]Candidate, error) {
	pool := s.pool()
	out := make([]Candidate, 0, len(pool))
	for _, v := range pool {
		if !s.Field.Numeric() {
			out = append(out, Text(v))
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q value %q is not numeric", ErrInvalidShape, s.Field, v)
		}
		out = append(out, Number(f))
	}
	return out, nil
}

// lookupSubsets picks value combinations from an autocomplete pool, ending
// with the empty selection.
func lookupSubsets(pool []string, maxSel int) []Candidate {
	var out []Candidate
	walkSubsets(len(pool), maxSel, -1, func(set []int) {
		values := make([]string, len(set))
		for i, idx := range set {
			values[i] = pool[idx]
		}
		out = append(out, TextSet(values...))
	})
	return append(out, TextSet())
}
