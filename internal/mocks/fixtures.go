package mocks

import (
	"slices"

	"github.com/xkilldash9x/quizwalk/internal/candidate"
	"github.com/xkilldash9x/quizwalk/internal/explorer"
)

// Page ids used by the fixture sites.
const (
	PageStart    explorer.PageID = "start"
	PageConcerns explorer.PageID = "concerns"
	PageSkin     explorer.PageID = "skin-issues"
	PageEmail    explorer.PageID = "e-mail"
	PageLoading  explorer.PageID = "loading"
	PageIntro    explorer.PageID = "section-intro"
	PageWeight   explorer.PageID = "weight"
)

// TwoByThreeSite is a root with two answers, a child with three and a capture
// page: six submissions in total.
func TwoByThreeSite() *Site {
	return NewSite(PageStart,
		SitePage{ID: PageStart, Shape: candidate.Shape{Kind: candidate.ShapeSingleChoice, OptionCount: 2}, Next: To(PageConcerns)},
		SitePage{ID: PageConcerns, Shape: candidate.Shape{Kind: candidate.ShapeSingleChoice, OptionCount: 3}, Next: To(PageEmail)},
		SitePage{ID: PageEmail, Shape: candidate.Shape{Kind: candidate.ShapeScalar, Field: candidate.FieldEmail}, Capture: true},
	)
}

// BranchingSite mixes generator kinds. The second root answer leads to a dead
// end. Every path through concerns (6 answers) and skin-issues (4 answers)
// submits once: 24 submissions.
func BranchingSite() *Site {
	return NewSite(PageStart,
		SitePage{
			ID:    PageStart,
			Shape: candidate.Shape{Kind: candidate.ShapeSingleChoice, OptionCount: 2},
			Next: func(c candidate.Candidate) explorer.PageID {
				if c.Indices[0] == 1 {
					return PageLoading
				}
				return PageConcerns
			},
		},
		SitePage{
			ID:    PageConcerns,
			Shape: candidate.Shape{Kind: candidate.ShapeMultiSelect, OptionCount: 3, MaxSelections: 2},
			Next:  To(PageSkin),
		},
		SitePage{
			ID:    PageSkin,
			Shape: candidate.Shape{Kind: candidate.ShapeExclusive, OptionCount: 3, ExclusiveIndex: 2},
			Next:  To(PageEmail),
		},
		SitePage{ID: PageEmail, Shape: candidate.Shape{Kind: candidate.ShapeScalar, Field: candidate.FieldEmail}, Capture: true},
		SitePage{ID: PageLoading, Shape: candidate.Shape{Kind: candidate.ShapeDeadEnd}},
	)
}

// RecurringSite opens every section with the same intro page:
// section-intro > weight (2 answers) > section-intro > e-mail. Two submissions.
func RecurringSite() *Site {
	return NewSite(PageIntro,
		SitePage{
			ID:    PageIntro,
			Shape: candidate.Shape{Kind: candidate.ShapeNone},
			Route: func(visited []explorer.PageID, _ candidate.Candidate) explorer.PageID {
				if slices.Contains(visited, PageWeight) {
					return PageEmail
				}
				return PageWeight
			},
		},
		SitePage{ID: PageWeight, Shape: candidate.Shape{Kind: candidate.ShapeSingleChoice, OptionCount: 2}, Next: To(PageIntro)},
		SitePage{ID: PageEmail, Shape: candidate.Shape{Kind: candidate.ShapeScalar, Field: candidate.FieldEmail}, Capture: true},
	)
}

// RecurringConfig matches RecurringSite.
func RecurringConfig() explorer.Config {
	return explorer.Config{
		Root:         PageIntro,
		CapturePages: []explorer.PageID{PageEmail},
	}
}

// FixtureConfig is the engine configuration matching the fixture sites.
func FixtureConfig() explorer.Config {
	return explorer.Config{
		Root:         PageStart,
		CapturePages: []explorer.PageID{PageEmail},
	}
}
