package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/tally/internal/model"
)

// ParentChecker answers the single authorization question the ledger needs.
// It is injected rather than derived from raw family rows so every caller
// agrees on what "parent" means. The check reads through the caller's
// transaction so the answer is consistent with the rest of the entity group.
type ParentChecker interface {
	IsParentOf(ctx context.Context, tx *sql.Tx, familyID, memberID int64) (bool, error)
}

// Engine executes the point-award side of the ledger: one atomic transaction
// over {task, member, family, audit entry} per approved task.
type Engine struct {
	db      *sql.DB
	parents ParentChecker
	logger  *slog.Logger
}

func NewEngine(db *sql.DB, parents ParentChecker, logger *slog.Logger) *Engine {
	return &Engine{db: db, parents: parents, logger: logger}
}

// AwardResult reports what a call to AwardPoints did. Duplicate deliveries
// of an already-processed approval are a successful no-op, not an error.
type AwardResult struct {
	TaskID    int64 `json:"task_id"`
	FamilyID  int64 `json:"family_id"`
	MemberID  int64 `json:"member_id"`
	Points    int   `json:"points"`
	Duplicate bool  `json:"duplicate"`
}

// AwardPoints credits a task's assignee and updates the family counters
// exactly once for the given task. The task's points_awarded_at column is
// the idempotency marker: it is checked and set inside the same transaction,
// so redelivered approvals cannot double-award.
func (e *Engine) AwardPoints(ctx context.Context, taskID int64) (*AwardResult, error) {
	res := &AwardResult{TaskID: taskID}

	err := inTx(ctx, e.db, func(tx *sql.Tx) error {
		// Re-read the entity group inside the transaction; the trigger's
		// payload may be stale under concurrent writes.
		var (
			familyID     int64
			assignedTo   int64
			status       string
			validation   string
			validatedBy  sql.NullInt64
			rewardPoints int
			awardedAt    sql.NullTime
		)
		err := tx.QueryRowContext(ctx,
			`SELECT family_id, assigned_to, status, validation_status, validated_by, reward_points, points_awarded_at
			 FROM tasks WHERE id = ?`, taskID,
		).Scan(&familyID, &assignedTo, &status, &validation, &validatedBy, &rewardPoints, &awardedAt)
		if err == sql.ErrNoRows {
			return fmt.Errorf("task %d: %w", taskID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read task %d: %w", taskID, err)
		}

		res.FamilyID = familyID
		res.MemberID = assignedTo

		if awardedAt.Valid {
			res.Duplicate = true
			return nil
		}

		// The delivered snapshot said completed+approved; the row is the
		// truth. A racing sync may have rescinded the approval.
		if model.TaskStatus(status) != model.TaskCompleted || model.ValidationStatus(validation) != model.ValidationApproved {
			return fmt.Errorf("task %d is %s/%s: %w", taskID, status, validation, ErrNotAwardable)
		}

		if !validatedBy.Valid {
			return fmt.Errorf("task %d has no approver: %w", taskID, ErrPermissionDenied)
		}
		isParent, err := e.parents.IsParentOf(ctx, tx, familyID, validatedBy.Int64)
		if err != nil {
			return fmt.Errorf("check approver: %w", err)
		}
		if !isParent {
			return fmt.Errorf("approver %d is not a parent of family %d: %w",
				validatedBy.Int64, familyID, ErrPermissionDenied)
		}

		if rewardPoints <= 0 {
			return fmt.Errorf("task %d carries %d points: %w", taskID, rewardPoints, ErrInvalidPoints)
		}
		delta := rewardPoints

		var memberPoints int
		err = tx.QueryRowContext(ctx,
			`SELECT points FROM members WHERE id = ? AND family_id = ?`, assignedTo, familyID,
		).Scan(&memberPoints)
		if err == sql.ErrNoRows {
			return fmt.Errorf("member %d: %w", assignedTo, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read member %d: %w", assignedTo, err)
		}

		var famID int64
		err = tx.QueryRowContext(ctx, `SELECT id FROM families WHERE id = ?`, familyID).Scan(&famID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("family %d: %w", familyID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read family %d: %w", familyID, err)
		}

		now := time.Now().UTC()

		if _, err := tx.ExecContext(ctx,
			`UPDATE members SET
				points = points + ?,
				total_points_earned = total_points_earned + ?,
				tasks_completed = tasks_completed + 1,
				last_task_completed_at = ?,
				updated_at = ?
			 WHERE id = ?`,
			delta, delta, now, now, assignedTo,
		); err != nil {
			return fmt.Errorf("credit member %d: %w", assignedTo, err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE tasks SET points_awarded = ?, points_awarded_at = ?, updated_at = ? WHERE id = ?`,
			delta, now, now, taskID,
		); err != nil {
			return fmt.Errorf("mark task %d awarded: %w", taskID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE families SET
				pending_tasks = MAX(pending_tasks - 1, 0),
				completed_tasks = completed_tasks + 1,
				total_points_awarded = total_points_awarded + ?,
				updated_at = ?
			 WHERE id = ?`,
			delta, now, familyID,
		); err != nil {
			return fmt.Errorf("update family %d counters: %w", familyID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO audit_log (action, family_id, actor_id, subject_id, amount, task_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			model.ActionPointsAwarded, familyID, validatedBy.Int64, assignedTo, delta, taskID, now,
		); err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}

		res.Points = delta
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Duplicate {
		e.logger.Info("award already processed", "task_id", taskID)
	} else {
		e.logger.Info("points awarded",
			"task_id", taskID, "member_id", res.MemberID, "points", res.Points)
	}
	return res, nil
}
