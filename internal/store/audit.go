package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/tally/internal/model"
)

// AuditStore is read-only: entries are appended inside ledger transactions
// and never mutated or deleted on this path. Retention is an external
// concern.
type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

func scanAuditEntry(scanner interface{ Scan(...any) error }) (*model.AuditEntry, error) {
	var e model.AuditEntry
	var taskID sql.NullInt64
	var redemptionID sql.NullString

	err := scanner.Scan(
		&e.ID, &e.Action, &e.FamilyID, &e.ActorID, &e.SubjectID, &e.Amount,
		&taskID, &redemptionID, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if taskID.Valid {
		e.TaskID = &taskID.Int64
	}
	if redemptionID.Valid {
		e.RedemptionID = &redemptionID.String
	}
	return &e, nil
}

const auditCols = `id, action, family_id, actor_id, subject_id, amount, task_id, redemption_id, created_at`

// ListByFamily returns a family's audit trail, newest first.
func (s *AuditStore) ListByFamily(familyID int64, limit int) ([]model.AuditEntry, error) {
	rows, err := s.db.Query(
		`SELECT `+auditCols+` FROM audit_log WHERE family_id = ? ORDER BY id DESC LIMIT ?`,
		familyID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// ListByMember returns entries where the member is the subject, newest first.
func (s *AuditStore) ListByMember(memberID int64, limit int) ([]model.AuditEntry, error) {
	rows, err := s.db.Query(
		`SELECT `+auditCols+` FROM audit_log WHERE subject_id = ? ORDER BY id DESC LIMIT ?`,
		memberID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries by member: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
