package ledger

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dukerupert/tally/internal/membership"
	"github.com/dukerupert/tally/internal/model"
)

func newTestRedemptionService(t *testing.T, db *sql.DB) *RedemptionService {
	t.Helper()
	return NewRedemptionService(db, membership.NewChecker(), testLogger())
}

func seedReward(t *testing.T, db *sql.DB, familyID int64, title string, cost int, active bool) int64 {
	t.Helper()
	res, err := db.Exec(
		`INSERT INTO rewards (family_id, title, point_cost, active) VALUES (?, ?, ?, ?)`,
		familyID, title, cost, active,
	)
	if err != nil {
		t.Fatalf("seed reward: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func TestRedeem(t *testing.T) {
	db := openTestDB(t, ":memory:")
	svc := newTestRedemptionService(t, db)

	familyID := seedFamily(t, db, "Smith")
	childID := seedMember(t, db, familyID, "Sam", model.RoleChild, 100)
	rewardID := seedReward(t, db, familyID, "Movie Night", 60, true)

	res, err := svc.Redeem(context.Background(), RedeemRequest{
		FamilyID:    familyID,
		MemberID:    childID,
		RewardID:    rewardID,
		PointCost:   60,
		RequesterID: childID,
	})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if res.RedemptionID == "" {
		t.Error("empty redemption id")
	}
	if res.RemainingPoints != 40 {
		t.Errorf("remaining = %d, want 40", res.RemainingPoints)
	}

	if got := memberPoints(t, db, childID); got != 40 {
		t.Errorf("member points = %d, want 40", got)
	}

	var title string
	var cost int
	var status string
	err = db.QueryRow(
		`SELECT reward_title, point_cost, status FROM redemptions WHERE id = ?`, res.RedemptionID,
	).Scan(&title, &cost, &status)
	if err != nil {
		t.Fatalf("read redemption: %v", err)
	}
	if title != "Movie Night" || cost != 60 {
		t.Errorf("snapshot = (%q, %d), want (Movie Night, 60)", title, cost)
	}
	if status != string(model.RedemptionPending) {
		t.Errorf("status = %q, want pending", status)
	}

	var redeemed, pendingRedemptions int
	err = db.QueryRow(
		`SELECT total_points_redeemed, pending_redemptions FROM families WHERE id = ?`, familyID,
	).Scan(&redeemed, &pendingRedemptions)
	if err != nil {
		t.Fatalf("read family counters: %v", err)
	}
	if redeemed != 60 || pendingRedemptions != 1 {
		t.Errorf("family counters = (%d, %d), want (60, 1)", redeemed, pendingRedemptions)
	}

	if n := auditCount(t, db, familyID); n != 1 {
		t.Errorf("audit entries = %d, want 1", n)
	}
}

func TestRedeemInsufficientBalance(t *testing.T) {
	db := openTestDB(t, ":memory:")
	svc := newTestRedemptionService(t, db)

	familyID := seedFamily(t, db, "Smith")
	childID := seedMember(t, db, familyID, "Sam", model.RoleChild, 30)
	rewardID := seedReward(t, db, familyID, "Movie Night", 60, true)

	_, err := svc.Redeem(context.Background(), RedeemRequest{
		FamilyID:    familyID,
		MemberID:    childID,
		RewardID:    rewardID,
		PointCost:   60,
		RequesterID: childID,
	})

	var insufficient *InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientBalanceError", err)
	}
	if insufficient.Current != 30 || insufficient.Required != 60 {
		t.Errorf("error values = (%d, %d), want (30, 60)", insufficient.Current, insufficient.Required)
	}

	// A rejected redemption must leave no trace.
	if got := memberPoints(t, db, childID); got != 30 {
		t.Errorf("member points = %d, want 30", got)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM redemptions`).Scan(&n); err != nil {
		t.Fatalf("count redemptions: %v", err)
	}
	if n != 0 {
		t.Errorf("redemptions = %d, want 0", n)
	}
	if n := auditCount(t, db, familyID); n != 0 {
		t.Errorf("audit entries = %d, want 0", n)
	}
}

func TestRedeemCostMismatch(t *testing.T) {
	db := openTestDB(t, ":memory:")
	svc := newTestRedemptionService(t, db)

	familyID := seedFamily(t, db, "Smith")
	childID := seedMember(t, db, familyID, "Sam", model.RoleChild, 100)
	rewardID := seedReward(t, db, familyID, "Movie Night", 60, true)

	_, err := svc.Redeem(context.Background(), RedeemRequest{
		FamilyID:    familyID,
		MemberID:    childID,
		RewardID:    rewardID,
		PointCost:   50,
		RequesterID: childID,
	})

	var mismatch *CostMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("err = %v, want CostMismatchError", err)
	}
	if mismatch.Supplied != 50 || mismatch.Actual != 60 {
		t.Errorf("error values = (%d, %d), want (50, 60)", mismatch.Supplied, mismatch.Actual)
	}
	if got := memberPoints(t, db, childID); got != 100 {
		t.Errorf("member points = %d, want 100", got)
	}
}

func TestRedeemInactiveReward(t *testing.T) {
	db := openTestDB(t, ":memory:")
	svc := newTestRedemptionService(t, db)

	familyID := seedFamily(t, db, "Smith")
	childID := seedMember(t, db, familyID, "Sam", model.RoleChild, 100)
	rewardID := seedReward(t, db, familyID, "Retired", 60, false)

	_, err := svc.Redeem(context.Background(), RedeemRequest{
		FamilyID:    familyID,
		MemberID:    childID,
		RewardID:    rewardID,
		PointCost:   60,
		RequesterID: childID,
	})
	if !errors.Is(err, ErrRewardInactive) {
		t.Fatalf("err = %v, want ErrRewardInactive", err)
	}
}

func TestRedeemRewardNotFound(t *testing.T) {
	db := openTestDB(t, ":memory:")
	svc := newTestRedemptionService(t, db)

	familyID := seedFamily(t, db, "Smith")
	childID := seedMember(t, db, familyID, "Sam", model.RoleChild, 100)

	_, err := svc.Redeem(context.Background(), RedeemRequest{
		FamilyID:    familyID,
		MemberID:    childID,
		RewardID:    9999,
		PointCost:   60,
		RequesterID: childID,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRedeemOnBehalf(t *testing.T) {
	db := openTestDB(t, ":memory:")
	svc := newTestRedemptionService(t, db)

	familyID := seedFamily(t, db, "Smith")
	parentID := seedMember(t, db, familyID, "Dana", model.RoleParent, 0)
	childID := seedMember(t, db, familyID, "Sam", model.RoleChild, 100)
	siblingID := seedMember(t, db, familyID, "Alex", model.RoleChild, 0)
	rewardID := seedReward(t, db, familyID, "Movie Night", 60, true)

	// A parent may redeem for a child.
	if _, err := svc.Redeem(context.Background(), RedeemRequest{
		FamilyID:    familyID,
		MemberID:    childID,
		RewardID:    rewardID,
		PointCost:   60,
		RequesterID: parentID,
	}); err != nil {
		t.Fatalf("parent redeem on behalf: %v", err)
	}
	if got := memberPoints(t, db, childID); got != 40 {
		t.Errorf("member points = %d, want 40", got)
	}

	// A sibling may not.
	_, err := svc.Redeem(context.Background(), RedeemRequest{
		FamilyID:    familyID,
		MemberID:    childID,
		RewardID:    rewardID,
		PointCost:   60,
		RequesterID: siblingID,
	})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	if got := memberPoints(t, db, childID); got != 40 {
		t.Errorf("member points after denied redeem = %d, want 40", got)
	}
}

func TestRedeemConcurrentNoDoubleSpend(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "ledger.db"))
	svc := newTestRedemptionService(t, db)

	familyID := seedFamily(t, db, "Smith")
	childID := seedMember(t, db, familyID, "Sam", model.RoleChild, 60)
	rewardID := seedReward(t, db, familyID, "Movie Night", 60, true)

	const attempts = 4
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Redeem(context.Background(), RedeemRequest{
				FamilyID:    familyID,
				MemberID:    childID,
				RewardID:    rewardID,
				PointCost:   60,
				RequesterID: childID,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for i := 0; i < attempts; i++ {
		if errs[i] == nil {
			succeeded++
			continue
		}
		var insufficient *InsufficientBalanceError
		if !errors.As(errs[i], &insufficient) {
			t.Fatalf("attempt %d: %v", i, errs[i])
		}
	}
	if succeeded != 1 {
		t.Errorf("successful redemptions = %d, want 1", succeeded)
	}
	if got := memberPoints(t, db, childID); got != 0 {
		t.Errorf("member points = %d, want 0", got)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM redemptions`).Scan(&n); err != nil {
		t.Fatalf("count redemptions: %v", err)
	}
	if n != 1 {
		t.Errorf("redemptions = %d, want 1", n)
	}
}
