// File: cmd/explore.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/quizwalk/internal/browser"
	"github.com/xkilldash9x/quizwalk/internal/capture"
	"github.com/xkilldash9x/quizwalk/internal/config"
	"github.com/xkilldash9x/quizwalk/internal/explorer"
	"github.com/xkilldash9x/quizwalk/internal/observability"
	"github.com/xkilldash9x/quizwalk/internal/persistence"
	"github.com/xkilldash9x/quizwalk/internal/profile"
	"github.com/xkilldash9x/quizwalk/internal/store"
)

const shutdownTimeout = 15 * time.Second

type exploreFlags struct {
	maxArtifacts int
	headless     bool
	statePath    string
	profilePath  string
	fresh        bool
}

func newExploreCmd(a *app) *cobra.Command {
	var flags exploreFlags

	exploreCmd := &cobra.Command{
		Use:   "explore [start-url]",
		Short: "Walk every answer path of the quiz, resuming from saved progress",
		Long: `Explore drives a browser through the quiz depth first, trying every answer
on every page and capturing the submission each complete path produces.
Progress is saved on completion, on interruption and periodically, so a later
run continues where the last one stopped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyExploreOverrides(cmd, a.cfg, flags, args)
			if err := a.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runExplore(cmd.Context(), a.cfg, flags.fresh, cmd.OutOrStdout())
		},
	}

	exploreCmd.Flags().IntVarP(&flags.maxArtifacts, "max-artifacts", "n", 0, "Stop after this many captured submissions. (Overrides config/env)")
	exploreCmd.Flags().BoolVar(&flags.headless, "headless", false, "Run the browser without a window. (Overrides config/env)")
	exploreCmd.Flags().StringVar(&flags.statePath, "state", "", "Path of the progress document. (Overrides config/env)")
	exploreCmd.Flags().StringVar(&flags.profilePath, "profile", "", "Quiz profile YAML. Defaults to the built-in profile.")
	exploreCmd.Flags().BoolVar(&flags.fresh, "fresh", false, "Ignore saved progress and start from the first page.")
	return exploreCmd
}

// applyExploreOverrides copies explicitly set flags onto the configuration.
func applyExploreOverrides(cmd *cobra.Command, cfg config.Interface, flags exploreFlags, args []string) {
	if cmd.Flags().Changed("max-artifacts") {
		cfg.SetExplorerMaxArtifacts(flags.maxArtifacts)
	}
	if cmd.Flags().Changed("headless") {
		cfg.SetBrowserHeadless(flags.headless)
	}
	if cmd.Flags().Changed("state") {
		cfg.SetStatePath(flags.statePath)
	}
	if cmd.Flags().Changed("profile") {
		cfg.SetExplorerProfile(flags.profilePath)
	}
	if len(args) == 1 {
		cfg.SetExplorerStartURL(args[0])
	}
}

func runExplore(ctx context.Context, cfg config.Interface, fresh bool, out io.Writer) error {
	logger := observability.GetLogger()

	prof, err := loadProfile(cfg.Explorer().Profile)
	if err != nil {
		return err
	}

	stateMgr, err := newStateManager(cfg.State(), logger)
	if err != nil {
		return err
	}
	var state *explorer.State
	if fresh {
		logger.Info("Starting fresh; saved progress will be overwritten.", zap.String("state", stateMgr.Path()))
	} else {
		loaded, found, err := stateMgr.Load()
		if err != nil {
			return fmt.Errorf("failed to load saved progress: %w", err)
		}
		if found {
			state = loaded
		}
	}
	seed := 0
	if state != nil {
		seed = state.ArtifactsCaptured
	}

	sink, closeSink, err := openSink(ctx, cfg.Capture(), logger)
	if err != nil {
		return err
	}
	defer closeSink()
	recorder := capture.NewRecorder(sink, seed, cfg.Explorer().MaxArtifacts, logger)

	browserMgr, err := browser.NewManager(ctx, logger, cfg.Browser(), cfg.Network())
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := browserMgr.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown", zap.Error(err))
		}
	}()

	tabCtx, release := browserMgr.NewTab()
	defer release()
	if err := browser.NewInterceptor(prof, recorder, logger).Attach(tabCtx); err != nil {
		return fmt.Errorf("failed to enable request interception: %w", err)
	}
	driver := browser.NewDriver(tabCtx, prof, cfg.Explorer().StartURL, cfg.Network(), logger)

	return runTraversal(ctx, traversal{
		cfg:      cfg,
		engine:   engineConfig(cfg, prof),
		driver:   driver,
		counter:  recorder,
		state:    state,
		stateMgr: stateMgr,
		logger:   logger,
		out:      out,
	})
}

// traversal is everything a run needs once the browser side is wired.
type traversal struct {
	cfg      config.Interface
	engine   explorer.Config
	driver   explorer.PageDriver
	counter  explorer.ArtifactCounter
	state    *explorer.State
	stateMgr *persistence.Manager
	logger   *zap.Logger
	out      io.Writer
}

// runTraversal positions the driver, runs the engine next to the optional
// metrics server and saves progress unless the run failed.
func runTraversal(ctx context.Context, t traversal) error {
	if t.state != nil {
		t.logger.Info("Resuming saved progress.",
			zap.Int("depth", len(t.state.DecisionStack)),
			zap.Int("artifacts", t.state.ArtifactsCaptured),
		)
		if err := t.stateMgr.Replay(ctx, t.state, t.driver); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("failed to resume saved progress: %w", err)
		}
	} else if err := t.driver.Open(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: open session: %w", explorer.ErrDriverFailure, err)
	}

	metrics := observability.NewMetrics()
	engine, err := explorer.New(t.engine, t.driver, t.counter, t.state,
		explorer.WithLogger(t.logger),
		explorer.WithMetrics(metrics),
		explorer.WithCheckpointer(t.stateMgr),
	)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	engineDone := make(chan struct{})
	var reason explorer.TerminalReason
	var runErr error
	g.Go(func() error {
		defer close(engineDone)
		reason, runErr = engine.Run(gctx)
		return runErr
	})
	if mc := t.cfg.Metrics(); mc.Enabled {
		serveMetrics(gctx, g, engineDone, mc.Listen, metrics.Handler(), t.logger)
	}
	waitErr := g.Wait()

	if runErr != nil {
		// The last saved document stays as it is.
		t.logger.Error("Traversal failed; progress not saved.", zap.Int("steps", engine.Steps()), zap.Error(runErr))
		return runErr
	}

	snapshot := engine.Snapshot()
	if err := t.stateMgr.Save(&snapshot); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	printSummary(t.out, reason, engine, t.stateMgr.Path())

	if waitErr != nil {
		return waitErr
	}
	if reason == explorer.ReasonStuck {
		return fmt.Errorf("traversal stopped: %w", explorer.ErrNoProgress)
	}
	if reason == explorer.ReasonCancelled {
		return context.Canceled
	}
	return nil
}

// serveMetrics runs the Prometheus endpoint until the engine finishes.
func serveMetrics(ctx context.Context, g *errgroup.Group, engineDone <-chan struct{}, listen string, handler http.Handler, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		logger.Info("Serving metrics.", zap.String("listen", listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-engineDone:
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func printSummary(w io.Writer, reason explorer.TerminalReason, engine *explorer.Engine, statePath string) {
	snapshot := engine.Snapshot()
	fmt.Fprintf(w, "\nTraversal %s after %d steps.\n", reason, engine.Steps())
	fmt.Fprintf(w, "Artifacts captured: %d\n", snapshot.ArtifactsCaptured)
	fmt.Fprintf(w, "Progress saved to %s\n", statePath)
}

func engineConfig(cfg config.Interface, prof *profile.Profile) explorer.Config {
	return explorer.Config{
		Root:              prof.Root,
		CapturePages:      prof.CapturePages,
		MaxArtifacts:      cfg.Explorer().MaxArtifacts,
		MaxStalls:         cfg.Explorer().MaxStalls,
		StepTimeout:       cfg.Explorer().StepTimeout,
		NavigationTimeout: cfg.Network().NavigationTimeout,
		CheckpointEvery:   cfg.Explorer().CheckpointEvery,
	}
}

func loadProfile(path string) (*profile.Profile, error) {
	if path == "" {
		return profile.Default()
	}
	return profile.Load(path)
}

func newStateManager(sc config.StateConfig, logger *zap.Logger) (*persistence.Manager, error) {
	return persistence.NewManager(persistence.Options{
		Path:             sc.Path,
		MaxBackups:       sc.MaxBackups,
		CompressBackups:  sc.CompressBackups,
		FallbackToBackup: sc.FallbackToBackup,
	}, logger)
}

// openSink builds the configured payload sink. The returned func releases it.
func openSink(ctx context.Context, cc config.CaptureConfig, logger *zap.Logger) (capture.Sink, func(), error) {
	closeWith := func(s capture.Sink, extra func()) func() {
		return func() {
			if err := s.Close(); err != nil {
				logger.Warn("Failed to close payload sink", zap.Error(err))
			}
			if extra != nil {
				extra()
			}
		}
	}

	switch cc.Sink {
	case config.SinkBadger:
		sink, err := capture.OpenBadgerSink(cc.BadgerPath, logger)
		if err != nil {
			return nil, nil, err
		}
		return sink, closeWith(sink, nil), nil

	case config.SinkPostgres:
		pool, err := pgxpool.New(ctx, cc.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		st, err := store.New(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := st.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("Payloads go to PostgreSQL.", zap.String("run_id", st.RunID().String()))
		return st, closeWith(st, pool.Close), nil

	default:
		sink, err := capture.NewFileSink(cc.Dir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Payloads go to files.", zap.String("dir", sink.Dir()))
		return sink, closeWith(sink, nil), nil
	}
}
