package store

import (
	"testing"
	"time"

	"github.com/dukerupert/tally/internal/model"
)

func TestTaskCreateBumpsPendingCounter(t *testing.T) {
	db := setupTestDB(t)
	ts := NewTaskStore(db)
	familyID := testFamily(t, db)
	member, _ := NewMemberStore(db).Create(familyID, "Sam", model.RoleChild)

	task, err := ts.Create(familyID, member.ID, "Dishes", 25)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Status != model.TaskPending {
		t.Errorf("status = %q, want pending", task.Status)
	}
	if task.RewardPoints != 25 {
		t.Errorf("reward_points = %d, want 25", task.RewardPoints)
	}

	family, err := NewFamilyStore(db).GetByID(familyID)
	if err != nil {
		t.Fatalf("get family: %v", err)
	}
	if family.PendingTasks != 1 {
		t.Errorf("pending_tasks = %d, want 1", family.PendingTasks)
	}
}

func TestTaskSyncPreservesAwardFields(t *testing.T) {
	db := setupTestDB(t)
	ts := NewTaskStore(db)
	familyID := testFamily(t, db)
	member, _ := NewMemberStore(db).Create(familyID, "Sam", model.RoleChild)

	task, err := ts.Create(familyID, member.ID, "Dishes", 25)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	// Simulate the ledger marking the task awarded.
	now := time.Now().UTC()
	if _, err := db.Exec(
		`UPDATE tasks SET points_awarded = 25, points_awarded_at = ? WHERE id = ?`, now, task.ID,
	); err != nil {
		t.Fatalf("mark awarded: %v", err)
	}

	// A stale redelivered snapshot must not clear the award marker.
	stale := *task
	stale.Status = model.TaskCompleted
	stale.ValidationStatus = model.ValidationApproved
	if err := ts.Sync(stale); err != nil {
		t.Fatalf("sync task: %v", err)
	}

	got, err := ts.GetByID(task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.PointsAwarded == nil || *got.PointsAwarded != 25 {
		t.Errorf("points_awarded = %v, want 25", got.PointsAwarded)
	}
	if got.PointsAwardedAt == nil {
		t.Error("points_awarded_at cleared by sync")
	}
	if got.Status != model.TaskCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
}

func TestTaskSyncInsertsNewTask(t *testing.T) {
	db := setupTestDB(t)
	ts := NewTaskStore(db)
	familyID := testFamily(t, db)
	member, _ := NewMemberStore(db).Create(familyID, "Sam", model.RoleChild)

	err := ts.Sync(model.Task{
		ID:               42,
		FamilyID:         familyID,
		AssignedTo:       member.ID,
		Title:            "Sweep",
		Status:           model.TaskPending,
		ValidationStatus: model.ValidationNone,
		RewardPoints:     10,
	})
	if err != nil {
		t.Fatalf("sync new task: %v", err)
	}

	got, err := ts.GetByID(42)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got == nil {
		t.Fatal("expected task, got nil")
	}
	if got.Title != "Sweep" {
		t.Errorf("title = %q, want Sweep", got.Title)
	}

	family, err := NewFamilyStore(db).GetByID(familyID)
	if err != nil {
		t.Fatalf("get family: %v", err)
	}
	if family.PendingTasks != 1 {
		t.Errorf("pending_tasks = %d, want 1", family.PendingTasks)
	}
}
