package persistence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/quizwalk/internal/candidate"
	"github.com/xkilldash9x/quizwalk/internal/explorer"
	"github.com/xkilldash9x/quizwalk/internal/mocks"
)

type fixture struct {
	site func() *mocks.Site
	cfg  explorer.Config
}

var (
	twoByThree = fixture{site: mocks.TwoByThreeSite, cfg: mocks.FixtureConfig()}
	branching  = fixture{site: mocks.BranchingSite, cfg: mocks.FixtureConfig()}
	recurring  = fixture{site: mocks.RecurringSite, cfg: mocks.RecurringConfig()}
)

// uninterrupted runs a site to completion in one go.
func uninterrupted(t *testing.T, fx fixture) (*mocks.SiteDriver, int) {
	t.Helper()
	d := mocks.NewSiteDriver(fx.site(), 0)
	require.NoError(t, d.Open(context.Background()))
	e, err := explorer.New(fx.cfg, d, d, nil)
	require.NoError(t, err)
	reason, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, explorer.ReasonComplete, reason)
	return d, e.Steps()
}

// resume saves the first engine's snapshot, loads it, replays it on a fresh
// session and finishes the run. It returns the submissions of both sessions
// in order.
func resume(t *testing.T, m *Manager, fx fixture, first *mocks.SiteDriver, e1 *explorer.Engine) ([]string, int) {
	t.Helper()
	ctx := context.Background()
	snap := e1.Snapshot()
	require.NoError(t, m.Save(&snap))

	loaded, found, err := m.Load()
	require.NoError(t, err)
	require.True(t, found)

	second := mocks.NewSiteDriver(fx.site(), loaded.ArtifactsCaptured)
	require.NoError(t, m.Replay(ctx, loaded, second))
	e2, err := explorer.New(fx.cfg, second, second, loaded)
	require.NoError(t, err)
	reason, err := e2.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, explorer.ReasonComplete, reason)

	return append(first.Submissions(), second.Submissions()...), second.ArtifactsCaptured()
}

// interruptedAt stops the first session after n whole steps.
func interruptedAt(t *testing.T, fx fixture, n int) ([]string, int) {
	t.Helper()
	ctx := context.Background()
	m := newTestManager(t, Options{})

	first := mocks.NewSiteDriver(fx.site(), 0)
	require.NoError(t, first.Open(ctx))
	e1, err := explorer.New(fx.cfg, first, first, nil)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		phase, err := e1.Step(ctx)
		require.NoError(t, err)
		require.NotEqual(t, explorer.PhaseTerminal, phase, "split point %d is past the end of the run", n)
	}
	return resume(t, m, fx, first, e1)
}

// cancelledAtApply cancels the first session from inside its k-th apply, so
// the step in flight is cut short.
func cancelledAtApply(t *testing.T, fx fixture, k int) ([]string, int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := newTestManager(t, Options{})

	first := mocks.NewSiteDriver(fx.site(), 0)
	applies := 0
	first.OnApply = func(explorer.DecisionNode) {
		applies++
		if applies == k {
			cancel()
		}
	}
	require.NoError(t, first.Open(ctx))
	e1, err := explorer.New(fx.cfg, first, first, nil)
	require.NoError(t, err)
	reason, err := e1.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, explorer.ReasonCancelled, reason, "cancel at apply %d", k)
	return resume(t, m, fx, first, e1)
}

func TestResume_TwoByThreeExample(t *testing.T) {
	full, _ := uninterrupted(t, twoByThree)

	// Step 13 is the first child of the second root answer: start=1 applied,
	// concerns=0 applied and forwarded to the capture page.
	got, artifacts := interruptedAt(t, twoByThree, 13)
	assert.Equal(t, full.Submissions(), got)
	assert.Equal(t, 6, artifacts)
}

func TestResume_EquivalentAtEverySplit(t *testing.T) {
	fixtures := map[string]fixture{
		"two by three": twoByThree,
		"branching":    branching,
		"recurring":    recurring,
	}
	for name, fx := range fixtures {
		t.Run(name, func(t *testing.T) {
			full, steps := uninterrupted(t, fx)
			want := full.Submissions()
			for n := 1; n < steps; n++ {
				got, artifacts := interruptedAt(t, fx, n)
				require.Equal(t, want, got, "split after step %d", n)
				require.Equal(t, len(want), artifacts)
			}
		})
	}
}

func TestResume_CancelledInsideAStep(t *testing.T) {
	t.Run("second answer on concerns", func(t *testing.T) {
		full, _ := uninterrupted(t, twoByThree)
		// Applies: start=0, concerns=0, e-mail, concerns=1.
		got, artifacts := cancelledAtApply(t, twoByThree, 4)
		assert.Equal(t, full.Submissions(), got)
		assert.Contains(t, got, `start=options[0] > concerns=options[1] > e-mail=text("asdf@gmail.com")`)
		assert.Equal(t, 6, artifacts)
	})

	fixtures := map[string]fixture{
		"two by three": twoByThree,
		"branching":    branching,
		"recurring":    recurring,
	}
	for name, fx := range fixtures {
		t.Run(name, func(t *testing.T) {
			full, _ := uninterrupted(t, fx)
			want := full.Submissions()
			for k := 1; k <= len(full.Applied()); k++ {
				got, artifacts := cancelledAtApply(t, fx, k)
				require.Equal(t, want, got, "cancelled at apply %d", k)
				require.Equal(t, len(want), artifacts)
			}
		})
	}
}

func TestReplay_StructuralMismatch(t *testing.T) {
	state := &explorer.State{
		DecisionStack: []explorer.DecisionNode{
			{PageID: mocks.PageStart, Candidate: candidate.Options(1)},
			{PageID: mocks.PageConcerns, Candidate: candidate.Options(2)},
		},
		Frontier: map[explorer.PageID][]candidate.Candidate{},
	}
	m := newTestManager(t, Options{})

	tests := []struct {
		name      string
		change    func(*mocks.Site)
		index     int
		wantFound explorer.PageID
	}{
		{
			name: "navigation leads elsewhere",
			change: func(s *mocks.Site) {
				s.Replace(mocks.SitePage{
					ID:    mocks.PageStart,
					Shape: candidate.Shape{Kind: candidate.ShapeSingleChoice, OptionCount: 2},
					Next:  mocks.To(mocks.PageLoading),
				})
				s.Replace(mocks.SitePage{ID: mocks.PageLoading, Shape: candidate.Shape{Kind: candidate.ShapeDeadEnd}})
			},
			index:     1,
			wantFound: mocks.PageLoading,
		},
		{
			name: "fewer options than recorded",
			change: func(s *mocks.Site) {
				s.Replace(mocks.SitePage{
					ID:    mocks.PageConcerns,
					Shape: candidate.Shape{Kind: candidate.ShapeSingleChoice, OptionCount: 2},
					Next:  mocks.To(mocks.PageEmail),
				})
			},
			index:     1,
			wantFound: mocks.PageConcerns,
		},
		{
			name: "answer kind changed",
			change: func(s *mocks.Site) {
				s.Replace(mocks.SitePage{
					ID:    mocks.PageStart,
					Shape: candidate.Shape{Kind: candidate.ShapeScalar, Field: candidate.FieldDate},
					Next:  mocks.To(mocks.PageConcerns),
				})
			},
			index:     0,
			wantFound: mocks.PageStart,
		},
		{
			name: "continue no longer moves",
			change: func(s *mocks.Site) {
				s.Replace(mocks.SitePage{
					ID:    mocks.PageConcerns,
					Shape: candidate.Shape{Kind: candidate.ShapeSingleChoice, OptionCount: 3},
				})
			},
			index:     1,
			wantFound: mocks.PageConcerns,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := mocks.TwoByThreeSite()
			tt.change(site)
			driver := mocks.NewSiteDriver(site, 0)

			err := m.Replay(context.Background(), state, driver)
			require.Error(t, err)
			var mismatch *explorer.StructuralMismatchError
			require.True(t, errors.As(err, &mismatch), "got %v", err)
			assert.Equal(t, tt.index, mismatch.Index)
			assert.Equal(t, tt.wantFound, mismatch.Actual)
			assert.True(t, explorer.IsFatal(err))
			assert.Zero(t, driver.ArtifactsCaptured(), "replay never submits")
		})
	}
}

func TestReplay_EmptyStackOnlyOpens(t *testing.T) {
	m := newTestManager(t, Options{})
	driver := mocks.NewSiteDriver(mocks.TwoByThreeSite(), 0)

	require.NoError(t, m.Replay(context.Background(), explorer.NewState(), driver))
	assert.Equal(t, 1, driver.Opens())
	assert.Empty(t, driver.Applied())
}

func TestReplay_Cancelled(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	driver := mocks.NewSiteDriver(mocks.TwoByThreeSite(), 0)
	driver.OnApply = func(explorer.DecisionNode) { cancel() }

	state := &explorer.State{
		DecisionStack: []explorer.DecisionNode{
			{PageID: mocks.PageStart, Candidate: candidate.Options(0)},
			{PageID: mocks.PageConcerns, Candidate: candidate.Options(0)},
		},
		Frontier: map[explorer.PageID][]candidate.Candidate{},
	}
	err := m.Replay(ctx, state, driver)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, explorer.IsFatal(err))
}

func TestDescribe_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	var buf bytes.Buffer
	require.NoError(t, Describe(&buf, midRunState()))
	g.Assert(t, "describe_mid_run", buf.Bytes())

	buf.Reset()
	require.NoError(t, Describe(&buf, explorer.NewState()))
	g.Assert(t, "describe_empty", buf.Bytes())
}

func TestDescribe_AfterSave(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(Options{Path: filepath.Join(dir, "state.json")}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, m.Save(midRunState()))

	loaded, _, err := m.Load()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Describe(&buf, loaded))
	assert.Contains(t, buf.String(), fmt.Sprintf("Artifacts captured:  %d", 4))
	assert.Contains(t, buf.String(), "next options[0,2]")
}
