package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/tally/internal/model"
	"github.com/google/uuid"
)

// RedemptionService executes the point-spend side of the ledger: one atomic
// transaction over {member, family, reward, redemption record, audit entry}.
type RedemptionService struct {
	db      *sql.DB
	parents ParentChecker
	logger  *slog.Logger
}

func NewRedemptionService(db *sql.DB, parents ParentChecker, logger *slog.Logger) *RedemptionService {
	return &RedemptionService{db: db, parents: parents, logger: logger}
}

type RedeemRequest struct {
	FamilyID    int64
	MemberID    int64
	RewardID    int64
	PointCost   int
	RequesterID int64
}

type RedeemResult struct {
	RedemptionID    string `json:"redemption_id"`
	RemainingPoints int    `json:"remaining_points"`
}

// Redeem deducts points from a member's balance in exchange for a catalog
// reward. The balance check and the deduction happen in the same transaction,
// so two concurrent redemptions against an insufficient shared balance can
// never both succeed: the loser restarts, re-reads the lowered balance, and
// fails the check.
func (s *RedemptionService) Redeem(ctx context.Context, req RedeemRequest) (*RedeemResult, error) {
	res := &RedeemResult{}

	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		var memberPoints int
		err := tx.QueryRowContext(ctx,
			`SELECT points FROM members WHERE id = ? AND family_id = ?`,
			req.MemberID, req.FamilyID,
		).Scan(&memberPoints)
		if err == sql.ErrNoRows {
			return fmt.Errorf("member %d: %w", req.MemberID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read member %d: %w", req.MemberID, err)
		}

		var famID int64
		err = tx.QueryRowContext(ctx, `SELECT id FROM families WHERE id = ?`, req.FamilyID).Scan(&famID)
		if err == sql.ErrNoRows {
			return fmt.Errorf("family %d: %w", req.FamilyID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read family %d: %w", req.FamilyID, err)
		}

		var (
			rewardTitle string
			rewardCost  int
			active      int
		)
		err = tx.QueryRowContext(ctx,
			`SELECT title, point_cost, active FROM rewards WHERE id = ? AND family_id = ?`,
			req.RewardID, req.FamilyID,
		).Scan(&rewardTitle, &rewardCost, &active)
		if err == sql.ErrNoRows {
			return fmt.Errorf("reward %d: %w", req.RewardID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read reward %d: %w", req.RewardID, err)
		}
		if active == 0 {
			return fmt.Errorf("reward %d: %w", req.RewardID, ErrRewardInactive)
		}

		if req.RequesterID != req.MemberID {
			isParent, err := s.parents.IsParentOf(ctx, tx, req.FamilyID, req.RequesterID)
			if err != nil {
				return fmt.Errorf("check requester: %w", err)
			}
			if !isParent {
				return fmt.Errorf("requester %d may not redeem for member %d: %w",
					req.RequesterID, req.MemberID, ErrPermissionDenied)
			}
		}

		// The catalog price is authoritative; a stale client quote is
		// rejected rather than honored.
		if req.PointCost != rewardCost {
			return &CostMismatchError{Supplied: req.PointCost, Actual: rewardCost}
		}

		if memberPoints < rewardCost {
			return &InsufficientBalanceError{Current: memberPoints, Required: rewardCost}
		}

		now := time.Now().UTC()
		redemptionID := uuid.NewString()

		if _, err := tx.ExecContext(ctx,
			`UPDATE members SET
				points = points - ?,
				total_points_redeemed = total_points_redeemed + ?,
				last_redemption_at = ?,
				updated_at = ?
			 WHERE id = ?`,
			rewardCost, rewardCost, now, now, req.MemberID,
		); err != nil {
			return fmt.Errorf("debit member %d: %w", req.MemberID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO redemptions (id, family_id, member_id, reward_id, reward_title, point_cost, status, redeemed_by, redeemed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			redemptionID, req.FamilyID, req.MemberID, req.RewardID, rewardTitle,
			rewardCost, model.RedemptionPending, req.RequesterID, now,
		); err != nil {
			return fmt.Errorf("insert redemption: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE families SET
				total_points_redeemed = total_points_redeemed + ?,
				pending_redemptions = pending_redemptions + 1,
				updated_at = ?
			 WHERE id = ?`,
			rewardCost, now, req.FamilyID,
		); err != nil {
			return fmt.Errorf("update family %d counters: %w", req.FamilyID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO audit_log (action, family_id, actor_id, subject_id, amount, redemption_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			model.ActionRewardRedeemed, req.FamilyID, req.RequesterID, req.MemberID,
			rewardCost, redemptionID, now,
		); err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}

		res.RedemptionID = redemptionID
		res.RemainingPoints = memberPoints - rewardCost
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("reward redeemed",
		"family_id", req.FamilyID, "member_id", req.MemberID,
		"reward_id", req.RewardID, "cost", req.PointCost,
		"redemption_id", res.RedemptionID, "remaining", res.RemainingPoints)
	return res, nil
}
