package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/quizwalk/internal/candidate"
	"github.com/xkilldash9x/quizwalk/internal/explorer"
)

func TestDefault_Catalogue(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	assert.Equal(t, explorer.PageID("section-intro"), p.Root)
	assert.True(t, p.IsCapture("e-mail"))
	assert.True(t, p.IsDeadEnd("loading"))
	assert.False(t, p.IsDeadEnd("concerns"))
	assert.Equal(t, "/formula_recommendations/from_answers", p.Capture.Pattern)
	assert.Equal(t, 200, p.Capture.MockStatus)
	assert.Len(t, p.BlockedURLs, 8)

	kinds := map[explorer.PageID]candidate.ShapeKind{
		"concerns":             candidate.ShapeMultiSelect,
		"skin-issues":          candidate.ShapeExclusive,
		"libido-simptoms":      candidate.ShapeExclusive,
		"which-best-describes": candidate.ShapePairwise,
		"pregnancy-weeks":      candidate.ShapeScalar,
		"what-meds":            candidate.ShapeLookup,
		"section-intro":        candidate.ShapeNone,
	}
	for id, kind := range kinds {
		assert.Equal(t, kind, p.Pages[id].Kind, id)
	}
	assert.Equal(t, `input[type="text"][name="question73"]`, p.InputSelector("e-mail"))
	assert.Equal(t, p.Selectors.Inputs, p.InputSelector("unknown-page"))
}

func TestShapeFor(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)

	tests := []struct {
		name   string
		page   explorer.PageID
		counts DOMCounts
		want   candidate.Shape
	}{
		{
			name:   "concerns caps selections at three",
			page:   "concerns",
			counts: DOMCounts{Options: 8},
			want:   candidate.Shape{Kind: candidate.ShapeMultiSelect, OptionCount: 8, MaxSelections: 3},
		},
		{
			name:   "exclusive defaults to the last option",
			page:   "allergic",
			counts: DOMCounts{Options: 5},
			want:   candidate.Shape{Kind: candidate.ShapeExclusive, OptionCount: 5, ExclusiveIndex: 4},
		},
		{
			name:   "scalar ignores the dom counts",
			page:   "height",
			counts: DOMCounts{Inputs: 1},
			want:   candidate.Shape{Kind: candidate.ShapeScalar, Field: candidate.FieldHeight},
		},
		{
			name:   "dead end",
			page:   "loading",
			counts: DOMCounts{Options: 3},
			want:   candidate.Shape{Kind: candidate.ShapeDeadEnd},
		},
		{
			name:   "unlisted page with options",
			page:   "gender",
			counts: DOMCounts{Options: 3},
			want:   candidate.Shape{Kind: candidate.ShapeSingleChoice, OptionCount: 3},
		},
		{
			name:   "unlisted page with yes/no boxes",
			page:   "smoker",
			counts: DOMCounts{YesNo: 2},
			want:   candidate.Shape{Kind: candidate.ShapeSingleChoice, OptionCount: 2},
		},
		{
			name:   "unlisted page with an input",
			page:   "name",
			counts: DOMCounts{Inputs: 1},
			want:   candidate.Shape{Kind: candidate.ShapeScalar, Field: candidate.FieldText},
		},
		{
			name: "unlisted page with nothing",
			page: "about-you",
			want: candidate.Shape{Kind: candidate.ShapeNone},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.ShapeFor(tt.page, tt.counts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = p.ShapeFor("skin-issues", DOMCounts{})
	assert.ErrorIs(t, err, candidate.ErrInvalidShape, "an exclusive page without options is unusable")
}

func TestOptionSelector(t *testing.T) {
	p, err := Default()
	require.NoError(t, err)
	assert.Equal(t, ".option-list .option", p.OptionSelector(DOMCounts{Options: 2, YesNo: 2}))
	assert.Equal(t, ".yes-no-boxes .option", p.OptionSelector(DOMCounts{YesNo: 2}))
}

func TestLoad(t *testing.T) {
	t.Run("empty path is the default", func(t *testing.T) {
		p, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "bioniq-checkout", p.Name)
	})

	t.Run("site file inherits selectors", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "site.yaml")
		doc := `
name: staging
start_url: http://localhost:8080/start
root: start
capture_pages: [finish]
pages:
  colours:
    kind: multi_select
    max_selections: 2
    append_empty: true
  nickname:
    kind: scalar
    field: text
    pool: [Ada, Grace]
`
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

		p, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, explorer.PageID("start"), p.Root)
		assert.Equal(t, ".option-list .option", p.Selectors.Option)
		assert.Equal(t, "/formula_recommendations/from_answers", p.Capture.Pattern)

		shape, err := p.ShapeFor("nickname", DOMCounts{Inputs: 1})
		require.NoError(t, err)
		seq, err := candidate.Generate(shape)
		require.NoError(t, err)
		assert.Equal(t, []candidate.Candidate{candidate.Text("Ada"), candidate.Text("Grace")}, seq)

		shape, err = p.ShapeFor("colours", DOMCounts{Options: 2})
		require.NoError(t, err)
		assert.True(t, shape.AppendEmpty)
	})

	t.Run("unknown keys are rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "typo.yaml")
		require.NoError(t, os.WriteFile(path, []byte("start_url: x\nroot: r\nroots: oops\n"), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("invalid kinds are rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("start_url: x\nroot: r\npages:\n  a:\n    kind: slider\n"), 0o644))
		_, err := Load(path)
		assert.ErrorContains(t, err, "unknown kind")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}
