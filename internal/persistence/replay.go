// File: internal/persistence/replay.go
package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/quizwalk/internal/explorer"
)

// Replay drives a fresh session from the root back to the frontier recorded in
// state by re-applying every decision in order. Queues are never regenerated;
// any deviation from the recorded path is a StructuralMismatchError.
func (m *Manager) Replay(ctx context.Context, state *explorer.State, driver explorer.PageDriver) error {
	if err := driver.Open(ctx); err != nil {
		return fmt.Errorf("%w: open session: %w", explorer.ErrDriverFailure, err)
	}

	for i, node := range state.DecisionStack {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := driver.CurrentPageID(ctx)
		if err != nil {
			return fmt.Errorf("%w: read page during replay: %w", explorer.ErrDriverFailure, err)
		}
		mismatch := func(reason string) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &explorer.StructuralMismatchError{Index: i, Expected: node.PageID, Actual: page, Reason: reason}
		}

		if page != node.PageID {
			return mismatch("unexpected page")
		}
		shape, err := driver.ProbeShape(ctx)
		if err != nil {
			return mismatch("probe failed: " + err.Error())
		}
		if !node.Candidate.Fits(shape) {
			return mismatch(fmt.Sprintf("recorded %s does not fit a %s page", node.Candidate, shape.Kind))
		}
		if err := driver.Apply(ctx, node.Candidate); err != nil {
			return mismatch("apply failed: " + err.Error())
		}
		moved, err := driver.NavigateForward(ctx)
		if err != nil {
			return mismatch("navigate forward failed: " + err.Error())
		}
		if !moved {
			return mismatch("did not move forward")
		}

		m.logger.Debug("Replayed decision.",
			zap.Int("index", i),
			zap.String("page", string(node.PageID)),
			zap.Stringer("candidate", node.Candidate),
		)
	}

	m.logger.Info("Replay reached the saved frontier.", zap.Int("decisions", len(state.DecisionStack)))
	return nil
}
