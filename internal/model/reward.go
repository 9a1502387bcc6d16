package model

import "time"

type Reward struct {
	ID          int64     `json:"id"`
	FamilyID    int64     `json:"family_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PointCost   int       `json:"point_cost"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "pending"
	RedemptionFulfilled RedemptionStatus = "fulfilled"
	RedemptionCancelled RedemptionStatus = "cancelled"
)

// Redemption snapshots the reward title and cost at redemption time so the
// record stays meaningful if the catalog item is later edited or deleted.
type Redemption struct {
	ID          string           `json:"id"`
	FamilyID    int64            `json:"family_id"`
	MemberID    int64            `json:"member_id"`
	RewardID    int64            `json:"reward_id"`
	RewardTitle string           `json:"reward_title"`
	PointCost   int              `json:"point_cost"`
	Status      RedemptionStatus `json:"status"`
	RedeemedBy  int64            `json:"redeemed_by"`
	RedeemedAt  time.Time        `json:"redeemed_at"`
}

type PointBalance struct {
	MemberID      int64  `json:"member_id"`
	MemberName    string `json:"member_name"`
	TotalEarned   int    `json:"total_earned"`
	TotalRedeemed int    `json:"total_redeemed"`
	Balance       int    `json:"balance"`
}
