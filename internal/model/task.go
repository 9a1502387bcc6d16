package model

import "time"

type TaskStatus string

const (
	TaskPending           TaskStatus = "pending"
	TaskInProgress        TaskStatus = "in_progress"
	TaskPendingValidation TaskStatus = "pending_validation"
	TaskCompleted         TaskStatus = "completed"
	TaskRejected          TaskStatus = "rejected"
)

type ValidationStatus string

const (
	ValidationNone     ValidationStatus = "none"
	ValidationApproved ValidationStatus = "approved"
	ValidationRejected ValidationStatus = "rejected"
)

// Task is the local projection of the external task service's record. The
// ledger reads it and writes only the two points-award fields, which together
// form the idempotency marker for the award path.
type Task struct {
	ID               int64            `json:"id"`
	FamilyID         int64            `json:"family_id"`
	AssignedTo       int64            `json:"assigned_to"`
	Title            string           `json:"title"`
	Status           TaskStatus       `json:"status"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	ValidatedBy      *int64           `json:"validated_by,omitempty"`
	RewardPoints     int              `json:"reward_points"`
	PointsAwarded    *int             `json:"points_awarded,omitempty"`
	PointsAwardedAt  *time.Time       `json:"points_awarded_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}
