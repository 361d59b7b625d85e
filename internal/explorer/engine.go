// File: internal/explorer/engine.go
package explorer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/quizwalk/internal/candidate"
	"github.com/xkilldash9x/quizwalk/internal/observability"
)

// DefaultMaxStalls is the number of consecutive stalled forward navigations
// that end a run as stuck.
const DefaultMaxStalls = 2

// Phase is the position of the engine in its state machine.
type Phase int

const (
	PhaseArrived Phase = iota
	PhaseDescending
	PhaseBacktracking
	PhaseTerminal
)

func (p Phase) String() string {
	switch p {
	case PhaseArrived:
		return "ARRIVED"
	case PhaseDescending:
		return "DESCENDING"
	case PhaseBacktracking:
		return "BACKTRACKING"
	case PhaseTerminal:
		return "TERMINAL"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// TerminalReason says why a run ended.
type TerminalReason int

const (
	ReasonNone TerminalReason = iota
	// ReasonComplete means the root was exhausted: the whole space was enumerated.
	ReasonComplete
	// ReasonBounded means the artifact cap was reached.
	ReasonBounded
	// ReasonStuck means navigation stopped making progress.
	ReasonStuck
	// ReasonCancelled means the context was cancelled. A step cut short by the
	// cancellation is rolled back.
	ReasonCancelled
	// ReasonFailed means a fatal error aborted the run.
	ReasonFailed
)

func (r TerminalReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonComplete:
		return "complete"
	case ReasonBounded:
		return "bounded"
	case ReasonStuck:
		return "stuck"
	case ReasonCancelled:
		return "cancelled"
	case ReasonFailed:
		return "failed"
	}
	return fmt.Sprintf("TerminalReason(%d)", int(r))
}

// Config tunes a traversal.
type Config struct {
	// Root is the page whose exhaustion completes the run.
	Root PageID
	// CapturePages submit on apply and are never navigated forward from.
	CapturePages []PageID
	// MaxArtifacts stops the run once reached. Zero means unbounded.
	MaxArtifacts int
	// MaxStalls is the number of consecutive stalls tolerated. Zero uses DefaultMaxStalls.
	MaxStalls         int
	StepTimeout       time.Duration
	NavigationTimeout time.Duration
	// CheckpointEvery hands a snapshot to the Checkpointer every n steps. Zero disables it.
	CheckpointEvery int
}

// Checkpointer persists intermediate snapshots during a run.
type Checkpointer interface {
	Checkpoint(ctx context.Context, state State) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the parent logger. The engine logs under "engine".
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger.Named("engine") }
}

// WithMetrics records transitions on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithCheckpointer enables periodic checkpoints.
func WithCheckpointer(c Checkpointer) Option {
	return func(e *Engine) { e.checkpointer = c }
}

// Engine is the depth-first traversal controller. It runs as an explicit loop
// of steps; each step is one arrival at a page followed by either a descent
// or a backtrack. An Engine is not safe for concurrent use.
type Engine struct {
	cfg          Config
	driver       PageDriver
	counter      ArtifactCounter
	frontier     *Frontier
	stack        *Stack
	logger       *zap.Logger
	metrics      *observability.Metrics
	checkpointer Checkpointer

	phase  Phase
	reason TerminalReason
	cause  error

	// descended is true while the driver sits on the page reached by moving
	// forward from the stack's top node.
	descended bool
	stalls    int
	steps     int
	artifacts int
}

// New creates an engine. A nil state starts a fresh traversal; otherwise the
// engine continues from the restored frontier and stack, assuming the driver
// has already been replayed to the state's frontier.
func New(cfg Config, driver PageDriver, counter ArtifactCounter, state *State, opts ...Option) (*Engine, error) {
	if driver == nil {
		return nil, errors.New("explorer: page driver is required")
	}
	if counter == nil {
		return nil, errors.New("explorer: artifact counter is required")
	}
	if cfg.MaxStalls <= 0 {
		cfg.MaxStalls = DefaultMaxStalls
	}

	e := &Engine{
		cfg:      cfg,
		driver:   driver,
		counter:  counter,
		frontier: NewFrontier(),
		stack:    NewStack(),
		logger:   zap.NewNop(),
		phase:    PhaseArrived,
	}
	for _, opt := range opts {
		opt(e)
	}

	if state != nil {
		if err := state.Validate(); err != nil {
			return nil, fmt.Errorf("explorer: invalid state: %w", err)
		}
		e.frontier, e.stack = state.restore()
		e.descended = e.stack.Len() > 0
	}
	e.artifacts = counter.ArtifactsCaptured()
	e.metrics.SetTraversalSize(e.stack.Len(), e.frontier.Len())
	return e, nil
}

// Phase returns the phase entered by the last step.
func (e *Engine) Phase() Phase { return e.phase }

// Reason returns the terminal reason, or ReasonNone while running.
func (e *Engine) Reason() TerminalReason { return e.reason }

// Cause returns the error behind a stuck, bounded, cancelled or failed run.
func (e *Engine) Cause() error { return e.cause }

// Steps is the number of steps taken by this engine.
func (e *Engine) Steps() int { return e.steps }

// Frontier exposes the live frontier for inspection.
func (e *Engine) Frontier() *Frontier { return e.frontier }

// Stack exposes the live decision stack for inspection.
func (e *Engine) Stack() *Stack { return e.stack }

// Snapshot returns the persistable state. Its decision stack is exactly the
// replay path to the driver's current page: when the engine has not moved
// forward from the top node, that node is left out.
func (e *Engine) Snapshot() State {
	nodes := e.stack.Nodes()
	if !e.descended && len(nodes) > 0 {
		nodes = nodes[:len(nodes)-1]
	}
	return State{
		DecisionStack:     nodes,
		Frontier:          e.frontier.Queues(),
		ArtifactsCaptured: e.counter.ArtifactsCaptured(),
	}
}

// Run steps until a terminal state. The returned error is non-nil only for
// fatal failures; stuck, bounded and cancelled runs return a nil error and
// their reason.
func (e *Engine) Run(ctx context.Context) (TerminalReason, error) {
	e.logger.Info("Starting traversal.",
		zap.String("root", string(e.cfg.Root)),
		zap.Int("max_artifacts", e.cfg.MaxArtifacts),
		zap.Int("resumed_depth", e.stack.Len()),
		zap.Int("frontier_pages", e.frontier.Len()),
		zap.Int("artifacts", e.counter.ArtifactsCaptured()),
	)
	for {
		phase, err := e.Step(ctx)
		if err != nil {
			return ReasonFailed, err
		}
		if phase == PhaseTerminal {
			return e.reason, nil
		}
	}
}

// Step performs one iteration of the traversal loop.
func (e *Engine) Step(ctx context.Context) (Phase, error) {
	if e.phase == PhaseTerminal {
		if e.reason == ReasonFailed {
			return e.phase, e.cause
		}
		return e.phase, nil
	}
	if err := ctx.Err(); err != nil {
		e.terminate(ReasonCancelled, err)
		return e.phase, nil
	}
	if e.boundReached() {
		return e.phase, nil
	}

	// 1. Where are we?
	page, err := e.currentPage(ctx)
	if err != nil {
		return e.fail(ctx, "read current page", err)
	}
	e.enter(PhaseArrived)

	// 2. Make sure the page has a queue, probing only unseen pages.
	key := e.instanceKey(page)
	created, err := e.frontier.Ensure(key, func() (candidate.Shape, error) {
		sctx, cancel := withTimeout(ctx, e.cfg.StepTimeout)
		defer cancel()
		return e.driver.ProbeShape(sctx)
	})
	if err != nil {
		return e.fail(ctx, "ensure frontier", err)
	}
	if created {
		e.logger.Debug("Discovered page.",
			zap.String("page", string(page)),
			zap.String("key", string(key)),
			zap.Int("candidates", len(e.frontier.Remaining(key))),
		)
	}

	// 3/4. Backtrack out of an exhausted page, otherwise descend.
	if e.frontier.Exhausted(key) {
		err = e.backtrack(ctx, page, key)
	} else {
		err = e.descend(ctx, page, key)
	}
	if err != nil {
		return e.phase, err
	}

	e.steps++
	e.observeArtifacts()
	e.metrics.SetTraversalSize(e.stack.Len(), e.frontier.Len())
	if e.phase == PhaseTerminal {
		return e.phase, nil
	}

	// 5. Global stop condition.
	if e.boundReached() {
		return e.phase, nil
	}
	e.maybeCheckpoint(ctx)
	return e.phase, nil
}

// instanceKey names the frontier entry for the page the driver is on. A page
// that was already decided on further up the current path gets its own entry.
func (e *Engine) instanceKey(page PageID) PageID {
	path := e.stack.nodes
	if !e.descended && len(path) > 0 {
		path = path[:len(path)-1]
	}
	n := 1
	for _, node := range path {
		if node.PageID == page {
			n++
		}
	}
	return InstanceKey(page, n)
}

func (e *Engine) backtrack(ctx context.Context, page, key PageID) error {
	e.enter(PhaseBacktracking)
	e.metrics.ObserveBacktrack()

	// Sitting on the root when only its own decision, or none, is left.
	atRoot := !e.descended && e.stack.IsEmptyOrRoot(e.cfg.Root)

	e.frontier.Retire(key)
	e.popOwnNode(page)
	e.descended = false

	if atRoot || e.stack.Len() == 0 {
		e.logger.Info("Root exhausted, traversal complete.", zap.String("page", string(page)))
		e.terminate(ReasonComplete, nil)
		return nil
	}

	e.logger.Debug("Page exhausted, backtracking.",
		zap.String("page", string(page)),
		zap.Int("depth", e.stack.Len()),
	)
	moved, err := e.navigate(ctx, e.driver.NavigateBack)
	if err != nil {
		_, err = e.fail(ctx, "navigate back", err)
		return err
	}
	if !moved {
		e.terminate(ReasonStuck, fmt.Errorf("back navigation from %q: %w", page, ErrNoProgress))
		return nil
	}
	e.stalls = 0
	return nil
}

func (e *Engine) descend(ctx context.Context, page, key PageID) error {
	e.enter(PhaseDescending)

	mark := e.markDescent(key)
	next, err := e.frontier.ConsumeHead(key)
	if err != nil {
		e.terminate(ReasonFailed, err)
		return err
	}

	actx, cancel := withTimeout(ctx, e.cfg.StepTimeout)
	err = e.driver.Apply(actx, next)
	cancel()
	if err != nil {
		return e.abortDescent(ctx, mark, fmt.Sprintf("apply %s on %q", next, page), err)
	}
	e.metrics.ObserveApply()

	// One live node per page instance: a retry replaces it.
	e.popOwnNode(page)
	e.stack.Push(page, next)
	e.descended = false

	if slices.Contains(e.cfg.CapturePages, page) {
		e.logger.Info("Submitted on capture page.",
			zap.String("page", string(page)),
			zap.Stringer("candidate", next),
		)
		return nil
	}

	moved, err := e.navigate(ctx, e.driver.NavigateForward)
	if err != nil {
		return e.abortDescent(ctx, mark, "navigate forward", err)
	}
	if moved {
		e.descended = true
		e.stalls = 0
		e.logger.Debug("Descended.",
			zap.String("page", string(page)),
			zap.Stringer("candidate", next),
			zap.Int("depth", e.stack.Len()),
		)
		return nil
	}

	e.stalls++
	e.metrics.ObserveStall()
	fields := []zap.Field{
		zap.String("page", string(page)),
		zap.Stringer("candidate", next),
		zap.Int("consecutive", e.stalls),
	}
	if upcoming, ok := e.frontier.Peek(key); ok {
		fields = append(fields, zap.Stringer("next", upcoming))
	}
	e.logger.Warn("Forward navigation stalled.", fields...)
	if e.stalls >= e.cfg.MaxStalls {
		e.terminate(ReasonStuck, fmt.Errorf("%d stalled forward navigations on %q: %w", e.stalls, page, ErrNoProgress))
	}
	return nil
}

// popOwnNode drops the top node when it was decided on the page the driver
// still sits on.
func (e *Engine) popOwnNode(page PageID) {
	if e.descended {
		return
	}
	if top, ok := e.stack.Top(); ok && top.PageID == page {
		e.stack.Pop()
	}
}

// descentMark is what a descent changes before it completes.
type descentMark struct {
	key       PageID
	queue     []candidate.Candidate
	nodes     []DecisionNode
	descended bool
}

func (e *Engine) markDescent(key PageID) descentMark {
	return descentMark{
		key:       key,
		queue:     e.frontier.Remaining(key),
		nodes:     e.stack.Nodes(),
		descended: e.descended,
	}
}

// abortDescent ends a descent that did not finish. A cancelled descent is
// rolled back so the snapshot puts the candidate back at the head of its queue.
func (e *Engine) abortDescent(ctx context.Context, m descentMark, op string, err error) error {
	if ctx.Err() != nil {
		e.frontier.install(m.key, m.queue)
		e.stack = NewStack(m.nodes...)
		e.descended = m.descended
	}
	_, err = e.fail(ctx, op, err)
	return err
}

// navigate runs a navigation under the navigation timeout. A timeout counts as
// not having moved.
func (e *Engine) navigate(ctx context.Context, nav func(context.Context) (bool, error)) (bool, error) {
	nctx, cancel := withTimeout(ctx, e.cfg.NavigationTimeout)
	defer cancel()
	moved, err := nav(nctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return false, nil
	}
	return moved, err
}

func (e *Engine) currentPage(ctx context.Context) (PageID, error) {
	cctx, cancel := withTimeout(ctx, e.cfg.StepTimeout)
	defer cancel()
	return e.driver.CurrentPageID(cctx)
}

func (e *Engine) boundReached() bool {
	if e.cfg.MaxArtifacts <= 0 {
		return false
	}
	n := e.counter.ArtifactsCaptured()
	if n < e.cfg.MaxArtifacts {
		return false
	}
	e.terminate(ReasonBounded, fmt.Errorf("%d of %d artifacts: %w", n, e.cfg.MaxArtifacts, ErrBoundExceeded))
	return true
}

func (e *Engine) maybeCheckpoint(ctx context.Context) {
	if e.checkpointer == nil || e.cfg.CheckpointEvery <= 0 || e.steps%e.cfg.CheckpointEvery != 0 {
		return
	}
	err := e.checkpointer.Checkpoint(ctx, e.Snapshot())
	e.metrics.ObserveCheckpoint(err)
	if err != nil {
		e.logger.Error("Checkpoint failed, continuing.", zap.Int("step", e.steps), zap.Error(err))
	}
}

func (e *Engine) observeArtifacts() {
	n := e.counter.ArtifactsCaptured()
	for ; e.artifacts < n; e.artifacts++ {
		e.metrics.ObserveArtifact()
	}
}

// fail converts a driver error into a terminal state. Errors caused by the
// caller's cancellation end the run as cancelled instead of failed.
func (e *Engine) fail(ctx context.Context, op string, err error) (Phase, error) {
	if ctx.Err() != nil {
		e.terminate(ReasonCancelled, ctx.Err())
		return e.phase, nil
	}
	if !IsFatal(err) {
		err = fmt.Errorf("%w: %s: %w", ErrDriverFailure, op, err)
	}
	e.terminate(ReasonFailed, err)
	return e.phase, err
}

func (e *Engine) enter(p Phase) {
	e.phase = p
	e.metrics.ObserveStep(p.String())
}

func (e *Engine) terminate(reason TerminalReason, cause error) {
	e.phase = PhaseTerminal
	e.reason = reason
	e.cause = cause
	e.metrics.ObserveTerminal(reason.String())

	fields := []zap.Field{
		zap.String("reason", reason.String()),
		zap.Int("steps", e.steps),
		zap.Int("artifacts", e.counter.ArtifactsCaptured()),
		zap.Int("depth", e.stack.Len()),
	}
	switch reason {
	case ReasonFailed:
		e.logger.Error("Traversal aborted.", append(fields, zap.Error(cause))...)
	case ReasonStuck:
		e.logger.Warn("Traversal stuck.", append(fields, zap.Error(cause))...)
	default:
		e.logger.Info("Traversal finished.", fields...)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
