package model

import "time"

const (
	RoleParent = "parent"
	RoleChild  = "child"
)

type Member struct {
	ID                  int64      `json:"id"`
	FamilyID            int64      `json:"family_id"`
	Name                string     `json:"name"`
	Role                string     `json:"role"`
	HasPIN              bool       `json:"has_pin"`
	Points              int        `json:"points"`
	TotalPointsEarned   int        `json:"total_points_earned"`
	TotalPointsRedeemed int        `json:"total_points_redeemed"`
	TasksCompleted      int        `json:"tasks_completed"`
	LastTaskCompletedAt *time.Time `json:"last_task_completed_at,omitempty"`
	LastRedemptionAt    *time.Time `json:"last_redemption_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}
