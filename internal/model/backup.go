package model

import "time"

type BackupStatus string

// A backup moves through pending -> encrypting -> uploading -> completed,
// landing on failed from any phase.
const (
	BackupStatusPending    BackupStatus = "pending"
	BackupStatusEncrypting BackupStatus = "encrypting"
	BackupStatusUploading  BackupStatus = "uploading"
	BackupStatusCompleted  BackupStatus = "completed"
	BackupStatusFailed     BackupStatus = "failed"
)

// Terminal reports whether the backup will make no further progress.
func (s BackupStatus) Terminal() bool {
	return s == BackupStatusCompleted || s == BackupStatusFailed
}

type Backup struct {
	ID           int64        `json:"id"`
	Filename     string       `json:"filename"`
	S3Key        string       `json:"s3_key"`
	SizeBytes    int64        `json:"size_bytes"`
	Status       BackupStatus `json:"status"`
	ErrorMessage string       `json:"error_message,omitempty"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
