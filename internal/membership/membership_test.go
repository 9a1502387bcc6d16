package membership

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dukerupert/tally/internal/database"
	"github.com/dukerupert/tally/internal/model"
)

func seedMember(t *testing.T, tx *sql.Tx, familyID int64, name, role string) int64 {
	t.Helper()
	res, err := tx.Exec(
		`INSERT INTO members (family_id, name, role) VALUES (?, ?, ?)`,
		familyID, name, role,
	)
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func TestIsParentOf(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO families (name) VALUES ('Smith')`)
	if err != nil {
		t.Fatalf("seed family: %v", err)
	}
	familyID, _ := res.LastInsertId()

	parentID := seedMember(t, tx, familyID, "Dana", model.RoleParent)
	childID := seedMember(t, tx, familyID, "Sam", model.RoleChild)

	checker := NewChecker()
	ctx := context.Background()

	// The members exist only in this transaction; the check must see them.
	ok, err := checker.IsParentOf(ctx, tx, familyID, parentID)
	if err != nil {
		t.Fatalf("check parent: %v", err)
	}
	if !ok {
		t.Error("parent not recognized")
	}

	ok, err = checker.IsParentOf(ctx, tx, familyID, childID)
	if err != nil {
		t.Fatalf("check child: %v", err)
	}
	if ok {
		t.Error("child recognized as parent")
	}

	// A member of another family is not a parent here, and not an error.
	ok, err = checker.IsParentOf(ctx, tx, familyID+1, parentID)
	if err != nil {
		t.Fatalf("check cross-family: %v", err)
	}
	if ok {
		t.Error("cross-family member recognized as parent")
	}

	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	tx2, err := db.Begin()
	if err != nil {
		t.Fatalf("begin second tx: %v", err)
	}
	defer tx2.Rollback()

	ok, err = checker.IsParentOf(ctx, tx2, familyID, parentID)
	if err != nil {
		t.Fatalf("check after rollback: %v", err)
	}
	if ok {
		t.Error("rolled-back member recognized as parent")
	}
}
