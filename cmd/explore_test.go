// File: cmd/explore_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/quizwalk/internal/capture"
	"github.com/xkilldash9x/quizwalk/internal/config"
	"github.com/xkilldash9x/quizwalk/internal/explorer"
	"github.com/xkilldash9x/quizwalk/internal/mocks"
	"github.com/xkilldash9x/quizwalk/internal/persistence"
	"github.com/xkilldash9x/quizwalk/internal/profile"
)

type traversalFixture struct {
	cfg      *config.Config
	stateMgr *persistence.Manager
	out      *bytes.Buffer
}

func newTraversalFixture(t *testing.T) *traversalFixture {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.SetStatePath(filepath.Join(t.TempDir(), "progress.json"))
	mgr, err := newStateManager(cfg.State(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return &traversalFixture{cfg: cfg, stateMgr: mgr, out: new(bytes.Buffer)}
}

func (f *traversalFixture) run(t *testing.T, ctx context.Context, engineCfg explorer.Config, d *mocks.SiteDriver, state *explorer.State) error {
	t.Helper()
	return runTraversal(ctx, traversal{
		cfg:      f.cfg,
		engine:   engineCfg,
		driver:   d,
		counter:  d,
		state:    state,
		stateMgr: f.stateMgr,
		logger:   zaptest.NewLogger(t),
		out:      f.out,
	})
}

func TestRunTraversal_CompletesAndSaves(t *testing.T) {
	f := newTraversalFixture(t)
	d := mocks.NewSiteDriver(mocks.TwoByThreeSite(), 0)

	require.NoError(t, f.run(t, context.Background(), mocks.FixtureConfig(), d, nil))
	assert.Equal(t, 1, d.Opens())
	assert.Len(t, d.Submissions(), 6)
	assert.Contains(t, f.out.String(), "Traversal complete after 23 steps.")
	assert.Contains(t, f.out.String(), "Artifacts captured: 6")

	state, found, err := f.stateMgr.Load()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 6, state.ArtifactsCaptured)
	assert.Empty(t, state.DecisionStack)
}

func TestRunTraversal_BoundedThenResumed(t *testing.T) {
	full := mocks.NewSiteDriver(mocks.TwoByThreeSite(), 0)
	require.NoError(t, newTraversalFixture(t).run(t, context.Background(), mocks.FixtureConfig(), full, nil))

	f := newTraversalFixture(t)
	bounded := mocks.FixtureConfig()
	bounded.MaxArtifacts = 2
	first := mocks.NewSiteDriver(mocks.TwoByThreeSite(), 0)
	require.NoError(t, f.run(t, context.Background(), bounded, first, nil))
	assert.Contains(t, f.out.String(), "Traversal bounded")

	state, found, err := f.stateMgr.Load()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 2, state.ArtifactsCaptured)

	second := mocks.NewSiteDriver(mocks.TwoByThreeSite(), state.ArtifactsCaptured)
	require.NoError(t, f.run(t, context.Background(), mocks.FixtureConfig(), second, state))

	combined := append(first.Submissions(), second.Submissions()...)
	assert.ElementsMatch(t, full.Submissions(), combined, "the two runs together cover every path once")
	assert.Equal(t, 6, second.ArtifactsCaptured())

	backups, err := f.stateMgr.Backups()
	require.NoError(t, err)
	assert.NotEmpty(t, backups, "the bounded document was backed up before being replaced")
}

func TestRunTraversal_FatalErrorKeepsPreviousState(t *testing.T) {
	f := newTraversalFixture(t)
	d := mocks.NewSiteDriver(mocks.TwoByThreeSite(), 0)
	d.ApplyErr = errors.New("element detached")

	err := f.run(t, context.Background(), mocks.FixtureConfig(), d, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, explorer.ErrDriverFailure)

	_, found, err := f.stateMgr.Load()
	require.NoError(t, err)
	assert.False(t, found, "nothing is written after a fatal error")
}

func TestRunTraversal_StuckIsSavedAndReported(t *testing.T) {
	f := newTraversalFixture(t)
	d := mocks.NewSiteDriver(mocks.TwoByThreeSite(), 0)
	d.BackBroken = true

	err := f.run(t, context.Background(), mocks.FixtureConfig(), d, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, explorer.ErrNoProgress)

	_, found, err := f.stateMgr.Load()
	require.NoError(t, err)
	assert.True(t, found)
}

func TestRunTraversal_CancelledMidRun(t *testing.T) {
	f := newTraversalFixture(t)
	d := mocks.NewSiteDriver(mocks.TwoByThreeSite(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	applies := 0
	d.OnApply = func(explorer.DecisionNode) {
		applies++
		if applies == 3 {
			cancel()
		}
	}

	err := f.run(t, ctx, mocks.FixtureConfig(), d, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, f.out.String(), "Traversal cancelled")

	state, found, err := f.stateMgr.Load()
	require.NoError(t, err)
	require.True(t, found, "progress is saved on interruption")
	assert.Equal(t, 1, state.ArtifactsCaptured)
}

func TestRunTraversal_CancelledBeforeOpen(t *testing.T) {
	f := newTraversalFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.run(t, ctx, mocks.FixtureConfig(), mocks.NewSiteDriver(mocks.TwoByThreeSite(), 0), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunTraversal_WithMetricsServer(t *testing.T) {
	f := newTraversalFixture(t)
	f.cfg.MetricsCfg = config.MetricsConfig{Enabled: true, Listen: "127.0.0.1:0"}
	d := mocks.NewSiteDriver(mocks.TwoByThreeSite(), 0)

	require.NoError(t, f.run(t, context.Background(), mocks.FixtureConfig(), d, nil))
	assert.Len(t, d.Submissions(), 6)
}

func TestEngineConfig_FromProfileAndConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.SetExplorerMaxArtifacts(7)
	p, err := profile.Default()
	require.NoError(t, err)

	ec := engineConfig(cfg, p)
	assert.Equal(t, p.Root, ec.Root)
	assert.Equal(t, p.CapturePages, ec.CapturePages)
	assert.Equal(t, 7, ec.MaxArtifacts)
	assert.Equal(t, cfg.Explorer().MaxStalls, ec.MaxStalls)
	assert.Equal(t, cfg.Network().NavigationTimeout, ec.NavigationTimeout)
	assert.Equal(t, cfg.Explorer().CheckpointEvery, ec.CheckpointEvery)
}

func TestApplyExploreOverrides(t *testing.T) {
	cfg := config.NewDefaultConfig()
	flags := exploreFlags{maxArtifacts: 3, headless: true, statePath: "/tmp/p.json", profilePath: "site.yaml"}

	cmd := &cobra.Command{}
	cmd.Flags().Int("max-artifacts", 0, "")
	cmd.Flags().Bool("headless", false, "")
	cmd.Flags().String("state", "", "")
	cmd.Flags().String("profile", "", "")
	require.NoError(t, cmd.Flags().Set("max-artifacts", "3"))
	require.NoError(t, cmd.Flags().Set("headless", "true"))

	applyExploreOverrides(cmd, cfg, flags, []string{"https://quiz.example.test/start"})
	assert.Equal(t, 3, cfg.Explorer().MaxArtifacts)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, "https://quiz.example.test/start", cfg.Explorer().StartURL)
	// Unset flags leave the configuration alone.
	assert.Equal(t, "progress.json", cfg.State().Path)
	assert.Empty(t, cfg.Explorer().Profile)
}

func TestOpenSink(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	t.Run("file", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "payloads")
		sink, release, err := openSink(ctx, config.CaptureConfig{Sink: config.SinkFile, Dir: dir}, logger)
		require.NoError(t, err)
		defer release()
		require.NoError(t, sink.Write(ctx, capture.Payload{Sequence: 1, Body: []byte(`{"a":1}`)}))
		_, err = os.Stat(filepath.Join(dir, "payload_1.json"))
		assert.NoError(t, err)
	})

	t.Run("badger", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "payloads.badger")
		sink, release, err := openSink(ctx, config.CaptureConfig{Sink: config.SinkBadger, BadgerPath: path}, logger)
		require.NoError(t, err)
		require.NoError(t, sink.Write(ctx, capture.Payload{Sequence: 1, Body: []byte(`{}`)}))
		release()
	})

	t.Run("postgres with a bad url", func(t *testing.T) {
		_, _, err := openSink(ctx, config.CaptureConfig{Sink: config.SinkPostgres, DatabaseURL: "postgres://u:p@localhost:5432/db?sslmode=sometimes"}, logger)
		assert.Error(t, err)
	})
}
