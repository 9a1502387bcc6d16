package model

import "time"

// Family carries the denormalized family-wide counters. The counters are a
// projection of the ledger: they are only ever updated inside the same
// transaction as the member/task mutation they summarize.
type Family struct {
	ID                  int64     `json:"id"`
	Name                string    `json:"name"`
	PendingTasks        int       `json:"pending_tasks"`
	CompletedTasks      int       `json:"completed_tasks"`
	TotalPointsAwarded  int       `json:"total_points_awarded"`
	TotalPointsRedeemed int       `json:"total_points_redeemed"`
	PendingRedemptions  int       `json:"pending_redemptions"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}
