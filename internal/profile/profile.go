// File: internal/profile/profile.go
package profile

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/quizwalk/internal/candidate"
	"github.com/xkilldash9x/quizwalk/internal/explorer"
)

//go:embed default.yaml
var defaultProfile []byte

// Selectors locate the quiz widgets. CSS unless noted.
type Selectors struct {
	Option         string `yaml:"option"`
	SelectedOption string `yaml:"selected_option"`
	YesNoOption    string `yaml:"yes_no_option"`
	Inputs         string `yaml:"inputs"`
	// NextButton is an XPath expression matching Begin, Next or Continue.
	NextButton      string `yaml:"next_button"`
	CookieAccept    string `yaml:"cookie_accept"`
	ConsentCheckbox string `yaml:"consent_checkbox"`
	LookupInput     string `yaml:"lookup_input"`
	LookupClear     string `yaml:"lookup_clear"`
	// LookupSuggestion is an XPath template; %s is replaced by the value typed.
	LookupSuggestion string `yaml:"lookup_suggestion"`
}

// Capture describes the submission the network layer records and mocks.
type Capture struct {
	Pattern    string `yaml:"pattern"`
	MockStatus int    `yaml:"mock_status"`
	MockBody   string `yaml:"mock_body"`
}

// PageSpec is the catalogue entry for one page's answer space.
type PageSpec struct {
	Kind          candidate.ShapeKind `yaml:"kind"`
	MaxSelections int                 `yaml:"max_selections,omitempty"`
	// ExclusiveIndex defaults to the last option when unset.
	ExclusiveIndex *int                `yaml:"exclusive_index,omitempty"`
	Field          candidate.FieldKind `yaml:"field,omitempty"`
	Pool           []string            `yaml:"pool,omitempty"`
	Input          string              `yaml:"input,omitempty"`
	AppendEmpty    bool                `yaml:"append_empty,omitempty"`
}

// Profile describes one quiz site.
type Profile struct {
	Name         string                       `yaml:"name"`
	StartURL     string                       `yaml:"start_url"`
	Root         explorer.PageID              `yaml:"root"`
	CapturePages []explorer.PageID            `yaml:"capture_pages"`
	DeadEnds     []explorer.PageID            `yaml:"dead_ends"`
	Capture      Capture                      `yaml:"capture"`
	BlockedURLs  []string                     `yaml:"blocked_urls"`
	Selectors    Selectors                    `yaml:"selectors"`
	Pages        map[explorer.PageID]PageSpec `yaml:"pages"`
}

// DOMCounts is what the driver sees on a page before consulting the catalogue.
type DOMCounts struct {
	Options int
	YesNo   int
	Inputs  int
}

// Default returns the embedded profile.
func Default() (*Profile, error) {
	p, err := parse(defaultProfile)
	if err != nil {
		return nil, fmt.Errorf("embedded profile: %w", err)
	}
	return p, nil
}

// Load reads a profile file. An empty path yields the embedded default. Blank
// selectors and capture settings are filled from the default.
func Load(path string) (*Profile, error) {
	if path == "" {
		return Default()
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand profile path: %w", err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	p, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", expanded, err)
	}
	return p, nil
}

func parse(data []byte) (*Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	if err := p.fillDefaults(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// fillDefaults copies blank selectors and capture settings from the embedded
// profile so site profiles only need to list what differs.
func (p *Profile) fillDefaults() error {
	var base Profile
	if err := yaml.Unmarshal(defaultProfile, &base); err != nil {
		return fmt.Errorf("embedded profile: %w", err)
	}
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	s, d := &p.Selectors, base.Selectors
	fill(&s.Option, d.Option)
	fill(&s.SelectedOption, d.SelectedOption)
	fill(&s.YesNoOption, d.YesNoOption)
	fill(&s.Inputs, d.Inputs)
	fill(&s.NextButton, d.NextButton)
	fill(&s.CookieAccept, d.CookieAccept)
	fill(&s.ConsentCheckbox, d.ConsentCheckbox)
	fill(&s.LookupInput, d.LookupInput)
	fill(&s.LookupClear, d.LookupClear)
	fill(&s.LookupSuggestion, d.LookupSuggestion)

	fill(&p.Capture.Pattern, base.Capture.Pattern)
	fill(&p.Capture.MockBody, base.Capture.MockBody)
	if p.Capture.MockStatus == 0 {
		p.Capture.MockStatus = base.Capture.MockStatus
	}
	if p.Pages == nil {
		p.Pages = map[explorer.PageID]PageSpec{}
	}
	return nil
}

// Validate checks the profile is usable.
func (p *Profile) Validate() error {
	var errs []error
	if p.StartURL == "" {
		errs = append(errs, errors.New("start_url is required"))
	}
	if p.Root == "" {
		errs = append(errs, errors.New("root is required"))
	}
	if p.Capture.Pattern == "" {
		errs = append(errs, errors.New("capture.pattern is required"))
	}
	for id, spec := range p.Pages {
		switch spec.Kind {
		case candidate.ShapeNone, candidate.ShapeDeadEnd, candidate.ShapeSingleChoice,
			candidate.ShapeMultiSelect, candidate.ShapeExclusive, candidate.ShapePairwise:
		case candidate.ShapeScalar, candidate.ShapeLookup:
			if len(spec.Pool) == 0 && len(candidate.DefaultPool(spec.Field)) == 0 {
				errs = append(errs, fmt.Errorf("page %q: field %q has no value pool", id, spec.Field))
			}
		default:
			errs = append(errs, fmt.Errorf("page %q: unknown kind %q", id, spec.Kind))
		}
		if spec.MaxSelections < 0 {
			errs = append(errs, fmt.Errorf("page %q: negative max_selections", id))
		}
	}
	return errors.Join(errs...)
}

// IsCapture reports whether applying a candidate on the page submits the quiz.
func (p *Profile) IsCapture(id explorer.PageID) bool {
	return slices.Contains(p.CapturePages, id)
}

// IsDeadEnd reports whether the page must be backed out of immediately.
func (p *Profile) IsDeadEnd(id explorer.PageID) bool {
	if slices.Contains(p.DeadEnds, id) {
		return true
	}
	spec, ok := p.Pages[id]
	return ok && spec.Kind == candidate.ShapeDeadEnd
}

// InputSelector returns the selector of the field a scalar candidate is typed into.
func (p *Profile) InputSelector(id explorer.PageID) string {
	if spec, ok := p.Pages[id]; ok && spec.Input != "" {
		return spec.Input
	}
	return p.Selectors.Inputs
}

// OptionSelector returns the selector of the clickable options on a page:
// the option list when present, otherwise the yes/no boxes.
func (p *Profile) OptionSelector(counts DOMCounts) string {
	if counts.Options == 0 && counts.YesNo > 0 {
		return p.Selectors.YesNoOption
	}
	return p.Selectors.Option
}

// ShapeFor combines the catalogue entry for a page with what is on screen.
// Pages missing from the catalogue get a single choice over their options, a
// free text field, or nothing to answer, in that order.
func (p *Profile) ShapeFor(id explorer.PageID, counts DOMCounts) (candidate.Shape, error) {
	options := counts.Options
	if options == 0 {
		options = counts.YesNo
	}

	if p.IsDeadEnd(id) {
		return candidate.Shape{Kind: candidate.ShapeDeadEnd}, nil
	}

	spec, ok := p.Pages[id]
	if !ok {
		switch {
		case options > 0:
			return candidate.Shape{Kind: candidate.ShapeSingleChoice, OptionCount: options}, nil
		case counts.Inputs > 0:
			return candidate.Shape{Kind: candidate.ShapeScalar, Field: candidate.FieldText}, nil
		default:
			return candidate.Shape{Kind: candidate.ShapeNone}, nil
		}
	}

	shape := candidate.Shape{
		Kind:          spec.Kind,
		MaxSelections: spec.MaxSelections,
		Field:         spec.Field,
		Pool:          slices.Clone(spec.Pool),
		AppendEmpty:   spec.AppendEmpty,
	}
	switch spec.Kind {
	case candidate.ShapeSingleChoice, candidate.ShapeMultiSelect, candidate.ShapePairwise:
		shape.OptionCount = options
	case candidate.ShapeExclusive:
		shape.OptionCount = options
		shape.ExclusiveIndex = options - 1
		if spec.ExclusiveIndex != nil {
			shape.ExclusiveIndex = *spec.ExclusiveIndex
		}
	}
	if err := shape.Validate(); err != nil {
		return candidate.Shape{}, fmt.Errorf("page %q with %d options: %w", id, options, err)
	}
	return shape, nil
}
