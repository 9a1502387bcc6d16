package model

import "time"

const (
	ActionPointsAwarded  = "task_approved_points_awarded"
	ActionRewardRedeemed = "reward_redeemed"
)

// AuditEntry is append-only: written inside ledger transactions, never
// mutated or deleted by the ledger path.
type AuditEntry struct {
	ID           int64     `json:"id"`
	Action       string    `json:"action"`
	FamilyID     int64     `json:"family_id"`
	ActorID      int64     `json:"actor_id"`
	SubjectID    int64     `json:"subject_id"`
	Amount       int       `json:"amount"`
	TaskID       *int64    `json:"task_id,omitempty"`
	RedemptionID *string   `json:"redemption_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
