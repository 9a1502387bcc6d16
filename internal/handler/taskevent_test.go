package handler

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/tally/internal/database"
	"github.com/dukerupert/tally/internal/ledger"
	"github.com/dukerupert/tally/internal/membership"
	"github.com/dukerupert/tally/internal/model"
	"github.com/dukerupert/tally/internal/store"
)

func setupTaskEventHandler(t *testing.T) (*TaskEventHandler, *sql.DB, int64, int64, int64) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.DiscardHandler)

	family, err := store.NewFamilyStore(db).Create("Smith")
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	ms := store.NewMemberStore(db)
	parent, err := ms.Create(family.ID, "Dana", model.RoleParent)
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := ms.Create(family.ID, "Sam", model.RoleChild)
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	engine := ledger.NewEngine(db, membership.NewChecker(), logger)
	trigger := ledger.NewTrigger(engine, logger)
	h := NewTaskEventHandler(store.NewTaskStore(db), trigger, nil, logger)
	return h, db, family.ID, parent.ID, child.ID
}

func postTaskEvent(t *testing.T, h *TaskEventHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/task-events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)
	return rec
}

func snapshotJSON(familyID, childID int64, status, validation string, validatedBy int64) string {
	s := fmt.Sprintf(
		`{"task_id": 1, "family_id": %d, "assigned_to": %d, "title": "Dishes", "status": %q, "validation_status": %q, "reward_points": 25`,
		familyID, childID, status, validation)
	if validatedBy > 0 {
		s += fmt.Sprintf(`, "validated_by": %d`, validatedBy)
	}
	return s + "}"
}

func memberPointsAndMarker(t *testing.T, db *sql.DB, memberID int64) (int, bool) {
	t.Helper()
	var points int
	if err := db.QueryRow(`SELECT points FROM members WHERE id = ?`, memberID).Scan(&points); err != nil {
		t.Fatalf("read points: %v", err)
	}
	var awardedAt sql.NullTime
	if err := db.QueryRow(`SELECT points_awarded_at FROM tasks WHERE id = 1`).Scan(&awardedAt); err != nil {
		t.Fatalf("read marker: %v", err)
	}
	return points, awardedAt.Valid
}

func TestReceiveAwardsOnApproval(t *testing.T) {
	h, db, familyID, parentID, childID := setupTaskEventHandler(t)

	created := fmt.Sprintf(`{"before": null, "after": %s}`,
		snapshotJSON(familyID, childID, "pending_validation", "none", 0))
	if rec := postTaskEvent(t, h, created); rec.Code != http.StatusOK {
		t.Fatalf("create event status = %d: %s", rec.Code, rec.Body.String())
	}

	approved := fmt.Sprintf(`{"before": %s, "after": %s}`,
		snapshotJSON(familyID, childID, "pending_validation", "none", 0),
		snapshotJSON(familyID, childID, "completed", "approved", parentID))
	rec := postTaskEvent(t, h, approved)
	if rec.Code != http.StatusOK {
		t.Fatalf("approved event status = %d: %s", rec.Code, rec.Body.String())
	}

	var result ledger.AwardResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Duplicate {
		t.Error("first approval marked duplicate")
	}
	if result.Points != 25 {
		t.Errorf("points = %d, want 25", result.Points)
	}

	points, marker := memberPointsAndMarker(t, db, childID)
	if points != 25 {
		t.Errorf("member points = %d, want 25", points)
	}
	if !marker {
		t.Error("task not marked awarded")
	}

	// Redelivery of the same transition is a successful duplicate no-op.
	rec = postTaskEvent(t, h, approved)
	if rec.Code != http.StatusOK {
		t.Fatalf("redelivery status = %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode redelivery result: %v", err)
	}
	if !result.Duplicate {
		t.Error("redelivery not marked duplicate")
	}
	if points, _ := memberPointsAndMarker(t, db, childID); points != 25 {
		t.Errorf("member points after redelivery = %d, want 25", points)
	}
}

// A delivery whose award attempt fails after the snapshot is stored must
// still award when the feed retries it. The award decision depends on the
// delivered payload and the persisted marker, never on the stored status.
func TestReceiveRetryAfterFailedAward(t *testing.T) {
	h, db, familyID, _, childID := setupTaskEventHandler(t)

	sibling, err := store.NewMemberStore(db).Create(familyID, "Alex", model.RoleChild)
	if err != nil {
		t.Fatalf("create sibling: %v", err)
	}

	delivery := fmt.Sprintf(`{"before": %s, "after": %s}`,
		snapshotJSON(familyID, childID, "pending_validation", "none", 0),
		snapshotJSON(familyID, childID, "completed", "approved", sibling.ID))

	// First attempt fails: the approver is not a parent. The snapshot is
	// already stored as completed by then.
	rec := postTaskEvent(t, h, delivery)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("first delivery status = %d, want 403: %s", rec.Code, rec.Body.String())
	}
	points, marker := memberPointsAndMarker(t, db, childID)
	if points != 0 || marker {
		t.Fatalf("failed award left state: points = %d, marker = %v", points, marker)
	}

	// The task service fixes the membership and redelivers verbatim.
	if _, err := db.Exec(`UPDATE members SET role = ? WHERE id = ?`, model.RoleParent, sibling.ID); err != nil {
		t.Fatalf("promote approver: %v", err)
	}

	rec = postTaskEvent(t, h, delivery)
	if rec.Code != http.StatusOK {
		t.Fatalf("retry status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var result ledger.AwardResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode retry result: %v", err)
	}
	if result.Duplicate {
		t.Error("retry of a failed award marked duplicate")
	}
	points, marker = memberPointsAndMarker(t, db, childID)
	if points != 25 {
		t.Errorf("member points = %d, want 25", points)
	}
	if !marker {
		t.Error("task not marked awarded after retry")
	}
}

func TestReceiveRejectsUnknownStatus(t *testing.T) {
	h, _, familyID, _, childID := setupTaskEventHandler(t)

	body := fmt.Sprintf(`{"after": %s}`,
		snapshotJSON(familyID, childID, "destroyed", "none", 0))
	rec := postTaskEvent(t, h, body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestReceiveRejectsMissingAfter(t *testing.T) {
	h, _, familyID, _, childID := setupTaskEventHandler(t)

	body := fmt.Sprintf(`{"before": %s}`,
		snapshotJSON(familyID, childID, "pending", "none", 0))
	rec := postTaskEvent(t, h, body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestReceiveRejectsMismatchedSnapshots(t *testing.T) {
	h, _, familyID, _, childID := setupTaskEventHandler(t)

	before := fmt.Sprintf(
		`{"task_id": 2, "family_id": %d, "assigned_to": %d, "status": "pending", "validation_status": "none", "reward_points": 25}`,
		familyID, childID)
	body := fmt.Sprintf(`{"before": %s, "after": %s}`, before,
		snapshotJSON(familyID, childID, "completed", "approved", 0))
	rec := postTaskEvent(t, h, body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestReceiveChildApproverDenied(t *testing.T) {
	h, db, familyID, _, childID := setupTaskEventHandler(t)

	sibling, err := store.NewMemberStore(db).Create(familyID, "Alex", model.RoleChild)
	if err != nil {
		t.Fatalf("create sibling: %v", err)
	}

	body := fmt.Sprintf(`{"before": %s, "after": %s}`,
		snapshotJSON(familyID, childID, "pending_validation", "none", 0),
		snapshotJSON(familyID, childID, "completed", "approved", sibling.ID))
	rec := postTaskEvent(t, h, body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403: %s", rec.Code, rec.Body.String())
	}

	var points int
	if err := db.QueryRow(`SELECT points FROM members WHERE id = ?`, childID).Scan(&points); err != nil {
		t.Fatalf("read points: %v", err)
	}
	if points != 0 {
		t.Errorf("member points = %d, want 0", points)
	}
}
