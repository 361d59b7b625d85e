package candidate

import (
	"fmt"
	"slices"
)

// ShapeKind is the category of answer space a page presents. Generators are
// chosen by switching on it.
type ShapeKind string

const (
	ShapeNone         ShapeKind = "none"
	ShapeSingleChoice ShapeKind = "single_choice"
	ShapeMultiSelect  ShapeKind = "multi_select"
	ShapeExclusive    ShapeKind = "exclusive"
	ShapePairwise     ShapeKind = "pairwise"
	ShapeScalar       ShapeKind = "scalar"
	ShapeLookup       ShapeKind = "lookup"
	ShapeDeadEnd      ShapeKind = "dead_end"
)

// FieldKind names the semantics of a free-input field; it selects the value pool.
type FieldKind string

const (
	FieldText           FieldKind = "text"
	FieldDate           FieldKind = "date"
	FieldHeight         FieldKind = "height"
	FieldWeight         FieldKind = "weight"
	FieldPregnancyWeeks FieldKind = "pregnancy_weeks"
	FieldEmail          FieldKind = "email"
	FieldMedication     FieldKind = "medication"
)

// Numeric reports whether values of this field are numbers.
func (f FieldKind) Numeric() bool {
	switch f {
	case FieldHeight, FieldWeight, FieldPregnancyWeeks:
		return true
	}
	return false
}

// defaultPools holds the hand-picked representative values for each field.
var defaultPools = map[FieldKind][]string{
	FieldText:           {"John Doe"},
	FieldDate:           {"11/02/2004", "16/06/1979", "27/01/1955"},
	FieldHeight:         {"160", "190"},
	FieldWeight:         {"50", "75", "90", "110"},
	FieldPregnancyWeeks: {"8", "16", "24", "32", "40"},
	FieldEmail:          {"asdf@gmail.com"},
	FieldMedication:     {"ATORVASTATIN", "WARFARIN", "ACCURETIC"},
}

// DefaultPool returns a copy of the built-in value pool for a field kind.
func DefaultPool(f FieldKind) []string {
	return slices.Clone(defaultPools[f])
}

// Shape describes the answer space observed on a page. It is produced by the
// page driver (DOM counts plus the site profile) and consumed by Generate.
type Shape struct {
	Kind          ShapeKind `json:"kind" yaml:"kind"`
	OptionCount   int       `json:"option_count,omitempty" yaml:"option_count,omitempty"`
	MaxSelections int       `json:"max_selections,omitempty" yaml:"max_selections,omitempty"`
	// ExclusiveIndex is the "none of the above" option for ShapeExclusive.
	ExclusiveIndex int       `json:"exclusive_index,omitempty" yaml:"exclusive_index,omitempty"`
	Field          FieldKind `json:"field,omitempty" yaml:"field,omitempty"`
	// Pool overrides the default values for the field when non-empty.
	Pool        []string `json:"pool,omitempty" yaml:"pool,omitempty"`
	AppendEmpty bool     `json:"append_empty,omitempty" yaml:"append_empty,omitempty"`
}

// Validate checks the shape is internally consistent.
func (s Shape) Validate() error {
	if s.OptionCount < 0 {
		return fmt.Errorf("%w: negative option count %d", ErrInvalidShape, s.OptionCount)
	}
	if s.MaxSelections < 0 {
		return fmt.Errorf("%w: negative max selections %d", ErrInvalidShape, s.MaxSelections)
	}
	switch s.Kind {
	case ShapeNone, ShapeDeadEnd, ShapeSingleChoice, ShapeMultiSelect, ShapePairwise:
	case ShapeExclusive:
		if s.ExclusiveIndex < 0 || s.ExclusiveIndex >= s.OptionCount {
			return fmt.Errorf("%w: exclusive index %d outside %d options", ErrInvalidShape, s.ExclusiveIndex, s.OptionCount)
		}
	case ShapeScalar, ShapeLookup:
		if len(s.pool()) == 0 {
			return fmt.Errorf("%w: no value pool for field %q", ErrInvalidShape, s.Field)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidShape, s.Kind)
	}
	return nil
}

// pool returns the effective value pool without copying.
func (s Shape) pool() []string {
	if len(s.Pool) > 0 {
		return s.Pool
	}
	return defaultPools[s.Field]
}
