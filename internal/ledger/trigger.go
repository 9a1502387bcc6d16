package ledger

import (
	"context"
	"log/slog"

	"github.com/dukerupert/tally/internal/model"
)

// Trigger routes task transition deliveries into the award engine. The feed
// is at-least-once: a delivery whose award attempt failed is retried with
// the same payload, and genuine redeliveries are deduplicated by the
// engine's persisted marker rather than by the trigger.
type Trigger struct {
	engine *Engine
	logger *slog.Logger
}

func NewTrigger(engine *Engine, logger *slog.Logger) *Trigger {
	return &Trigger{engine: engine, logger: logger}
}

// ShouldAward reports whether the delivered task state is an approved
// completion. The check is level-based on the after snapshot: deriving an
// edge from locally stored state would classify the retry of a failed award
// as already handled and lose the credit.
func ShouldAward(after *model.Task) bool {
	return after != nil &&
		after.Status == model.TaskCompleted &&
		after.ValidationStatus == model.ValidationApproved
}

// HandleTransition awards points when the delivered state is an approved
// completion. A (nil, nil) return means the delivery required no award;
// redelivery of an already-awarded task comes back with Duplicate set.
func (t *Trigger) HandleTransition(ctx context.Context, before, after *model.Task) (*AwardResult, error) {
	if !ShouldAward(after) {
		return nil, nil
	}

	res, err := t.engine.AwardPoints(ctx, after.ID)
	if err != nil {
		from := "new"
		if before != nil {
			from = string(before.Status)
		}
		t.logger.Error("award failed", "task_id", after.ID, "from_status", from, "error", err)
		return nil, err
	}
	return res, nil
}
