package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/tally/internal/model"
)

// TaskStore holds the local projection of the external task service's
// records. Task lifecycle belongs to that service; the ledger only reads
// rows here and writes the two points-award fields.
type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

func scanTask(scanner interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var validatedBy sql.NullInt64
	var pointsAwarded sql.NullInt64
	var awardedAt sql.NullTime

	err := scanner.Scan(
		&t.ID, &t.FamilyID, &t.AssignedTo, &t.Title,
		&t.Status, &t.ValidationStatus, &validatedBy,
		&t.RewardPoints, &pointsAwarded, &awardedAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if validatedBy.Valid {
		t.ValidatedBy = &validatedBy.Int64
	}
	if pointsAwarded.Valid {
		p := int(pointsAwarded.Int64)
		t.PointsAwarded = &p
	}
	if awardedAt.Valid {
		t.PointsAwardedAt = &awardedAt.Time
	}
	return &t, nil
}

const taskCols = `id, family_id, assigned_to, title, status, validation_status, validated_by, reward_points, points_awarded, points_awarded_at, created_at, updated_at`

// Create inserts a new task and bumps the family's pending counter in the
// same transaction, keeping the counter a faithful projection.
func (s *TaskStore) Create(familyID, assignedTo int64, title string, rewardPoints int) (*model.Task, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO tasks (family_id, assigned_to, title, reward_points) VALUES (?, ?, ?, ?)`,
		familyID, assignedTo, title, rewardPoints,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE families SET pending_tasks = pending_tasks + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), familyID,
	); err != nil {
		return nil, fmt.Errorf("bump pending tasks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return s.GetByID(id)
}

func (s *TaskStore) GetByID(id int64) (*model.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *TaskStore) ListByFamily(familyID int64) ([]model.Task, error) {
	rows, err := s.db.Query(
		`SELECT `+taskCols+` FROM tasks WHERE family_id = ? ORDER BY created_at DESC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// Sync upserts the after-state of a task delivered on the transition feed.
// The points-award fields are deliberately left alone: they belong to the
// ledger and must survive redeliveries of stale snapshots. A brand-new task
// bumps the family's pending counter.
func (s *TaskStore) Sync(t model.Task) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int64
	err = tx.QueryRow(`SELECT id FROM tasks WHERE id = ?`, t.ID).Scan(&exists)
	isNew := err == sql.ErrNoRows
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("check task: %w", err)
	}

	var validatedBy sql.NullInt64
	if t.ValidatedBy != nil {
		validatedBy = sql.NullInt64{Int64: *t.ValidatedBy, Valid: true}
	}
	now := time.Now().UTC()

	if isNew {
		if _, err := tx.Exec(
			`INSERT INTO tasks (id, family_id, assigned_to, title, status, validation_status, validated_by, reward_points, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.FamilyID, t.AssignedTo, t.Title, t.Status, t.ValidationStatus,
			validatedBy, t.RewardPoints, now,
		); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		if _, err := tx.Exec(
			`UPDATE families SET pending_tasks = pending_tasks + 1, updated_at = ? WHERE id = ?`,
			now, t.FamilyID,
		); err != nil {
			return fmt.Errorf("bump pending tasks: %w", err)
		}
	} else {
		if _, err := tx.Exec(
			`UPDATE tasks SET assigned_to = ?, title = ?, status = ?, validation_status = ?, validated_by = ?, reward_points = ?, updated_at = ?
			 WHERE id = ?`,
			t.AssignedTo, t.Title, t.Status, t.ValidationStatus, validatedBy,
			t.RewardPoints, now, t.ID,
		); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
	}

	return tx.Commit()
}
