package browser

import (
	"fmt"

	"github.com/xkilldash9x/quizwalk/internal/candidate"
	"github.com/xkilldash9x/quizwalk/internal/explorer"
	"github.com/xkilldash9x/quizwalk/internal/profile"
)

type stepKind int

const (
	stepClearSelection stepKind = iota
	stepClickOption
	stepFill
	stepLookupClear
	stepLookupPick
	stepConsent
	stepSubmit
)

// uiStep is one browser interaction needed to apply a candidate.
type uiStep struct {
	kind     stepKind
	selector string
	index    int
	value    string
}

// planApply lists the interactions that apply c on page. Prior selections are
// always cleared first so a retried page starts from a blank slate. On a
// capture page the plan ends by ticking consent and submitting.
func planApply(p *profile.Profile, page explorer.PageID, counts profile.DOMCounts, c candidate.Candidate) ([]uiStep, error) {
	var steps []uiStep
	switch c.Kind {
	case candidate.KindOptions, candidate.KindPair:
		optionSel := p.OptionSelector(counts)
		steps = append(steps, uiStep{kind: stepClearSelection, selector: p.Selectors.SelectedOption})
		for _, i := range c.Indices {
			steps = append(steps, uiStep{kind: stepClickOption, selector: optionSel, index: i})
		}
	case candidate.KindText, candidate.KindNumber:
		steps = append(steps, uiStep{kind: stepFill, selector: p.InputSelector(page), value: c.Value()})
	case candidate.KindTexts:
		steps = append(steps, uiStep{kind: stepLookupClear, selector: p.Selectors.LookupClear})
		for _, t := range c.Texts {
			steps = append(steps, uiStep{kind: stepLookupPick, selector: p.Selectors.LookupInput, value: t})
		}
	case candidate.KindNone:
	default:
		return nil, fmt.Errorf("cannot apply candidate of kind %q", c.Kind)
	}

	if p.IsCapture(page) {
		steps = append(steps,
			uiStep{kind: stepConsent, selector: p.Selectors.ConsentCheckbox},
			uiStep{kind: stepSubmit, selector: p.Selectors.NextButton},
		)
	}
	return steps, nil
}
