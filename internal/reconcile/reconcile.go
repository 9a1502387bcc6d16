package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Reconciler recomputes the derived counters on families and members from
// the underlying rows and reports any drift. Every mutation keeps the
// counters in the same transaction as the rows, so drift indicates a bug or
// out-of-band edits, not normal operation.
type Reconciler struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(db *sql.DB, logger *slog.Logger) *Reconciler {
	return &Reconciler{db: db, logger: logger.With("component", "reconcile")}
}

// Drift is one counter whose stored value disagrees with the recomputed one.
type Drift struct {
	Entity   string `json:"entity"`
	EntityID int64  `json:"entity_id"`
	Counter  string `json:"counter"`
	Stored   int64  `json:"stored"`
	Computed int64  `json:"computed"`
}

// Report is the outcome of one reconciliation pass.
type Report struct {
	CheckedFamilies int       `json:"checked_families"`
	CheckedMembers  int       `json:"checked_members"`
	Drifts          []Drift   `json:"drifts"`
	Repaired        bool      `json:"repaired"`
	RanAt           time.Time `json:"ran_at"`
}

type counterCheck struct {
	counter string
	stored  int64
	query   string
}

// Run recomputes all counters. With repair set, drifted counters are reset
// to the recomputed values in a single transaction.
func (r *Reconciler) Run(ctx context.Context, repair bool) (*Report, error) {
	report := &Report{RanAt: time.Now().UTC(), Repaired: repair}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := r.checkFamilies(ctx, tx, report, repair); err != nil {
		return nil, err
	}
	if err := r.checkMembers(ctx, tx, report, repair); err != nil {
		return nil, err
	}

	if repair {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit repairs: %w", err)
		}
	}

	if len(report.Drifts) > 0 {
		r.logger.Warn("counter drift detected",
			"drifts", len(report.Drifts), "repaired", repair)
	} else {
		r.logger.Info("counters consistent",
			"families", report.CheckedFamilies, "members", report.CheckedMembers)
	}
	return report, nil
}

func (r *Reconciler) checkFamilies(ctx context.Context, tx *sql.Tx, report *Report, repair bool) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, pending_tasks, completed_tasks, total_points_awarded, total_points_redeemed, pending_redemptions
		 FROM families`)
	if err != nil {
		return fmt.Errorf("list families: %w", err)
	}
	defer rows.Close()

	type familyRow struct {
		id                                    int64
		pending, completed, awarded, redeemed int64
		pendingRedemptions                    int64
	}
	var families []familyRow
	for rows.Next() {
		var f familyRow
		if err := rows.Scan(&f.id, &f.pending, &f.completed, &f.awarded, &f.redeemed, &f.pendingRedemptions); err != nil {
			return fmt.Errorf("scan family: %w", err)
		}
		families = append(families, f)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, f := range families {
		report.CheckedFamilies++

		checks := []counterCheck{
			{"pending_tasks", f.pending,
				`SELECT COUNT(*) FROM tasks WHERE family_id = ? AND points_awarded_at IS NULL`},
			{"completed_tasks", f.completed,
				`SELECT COUNT(*) FROM tasks WHERE family_id = ? AND points_awarded_at IS NOT NULL`},
			{"total_points_awarded", f.awarded,
				`SELECT COALESCE(SUM(points_awarded), 0) FROM tasks WHERE family_id = ?`},
			{"total_points_redeemed", f.redeemed,
				`SELECT COALESCE(SUM(point_cost), 0) FROM redemptions WHERE family_id = ? AND status != 'cancelled'`},
			{"pending_redemptions", f.pendingRedemptions,
				`SELECT COUNT(*) FROM redemptions WHERE family_id = ? AND status = 'pending'`},
		}

		for _, c := range checks {
			var computed int64
			if err := tx.QueryRowContext(ctx, c.query, f.id).Scan(&computed); err != nil {
				return fmt.Errorf("recompute %s for family %d: %w", c.counter, f.id, err)
			}
			if computed == c.stored {
				continue
			}
			report.Drifts = append(report.Drifts, Drift{
				Entity: "family", EntityID: f.id,
				Counter: c.counter, Stored: c.stored, Computed: computed,
			})
			if repair {
				q := fmt.Sprintf(`UPDATE families SET %s = ?, updated_at = ? WHERE id = ?`, c.counter)
				if _, err := tx.ExecContext(ctx, q, computed, time.Now().UTC(), f.id); err != nil {
					return fmt.Errorf("repair %s for family %d: %w", c.counter, f.id, err)
				}
			}
		}
	}
	return nil
}

func (r *Reconciler) checkMembers(ctx context.Context, tx *sql.Tx, report *Report, repair bool) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, points, total_points_earned, total_points_redeemed, tasks_completed FROM members`)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	type memberRow struct {
		id                                  int64
		points, earned, redeemed, completed int64
	}
	var members []memberRow
	for rows.Next() {
		var m memberRow
		if err := rows.Scan(&m.id, &m.points, &m.earned, &m.redeemed, &m.completed); err != nil {
			return fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range members {
		report.CheckedMembers++

		var earned, redeemed, completed int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(points_awarded), 0),
			        COUNT(points_awarded_at)
			 FROM tasks WHERE assigned_to = ?`, m.id,
		).Scan(&earned, &completed); err != nil {
			return fmt.Errorf("recompute earnings for member %d: %w", m.id, err)
		}
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(point_cost), 0)
			 FROM redemptions WHERE member_id = ? AND status != 'cancelled'`, m.id,
		).Scan(&redeemed); err != nil {
			return fmt.Errorf("recompute redemptions for member %d: %w", m.id, err)
		}
		balance := earned - redeemed

		drifted := false
		record := func(counter string, stored, computed int64) {
			if stored == computed {
				return
			}
			drifted = true
			report.Drifts = append(report.Drifts, Drift{
				Entity: "member", EntityID: m.id,
				Counter: counter, Stored: stored, Computed: computed,
			})
		}
		record("total_points_earned", m.earned, earned)
		record("total_points_redeemed", m.redeemed, redeemed)
		record("tasks_completed", m.completed, completed)
		record("points", m.points, balance)

		// All ledger columns go in one statement; the members table enforces
		// points = earned - redeemed per row.
		if drifted && repair {
			if _, err := tx.ExecContext(ctx,
				`UPDATE members SET
					points = ?,
					total_points_earned = ?,
					total_points_redeemed = ?,
					tasks_completed = ?,
					updated_at = ?
				 WHERE id = ?`,
				balance, earned, redeemed, completed, time.Now().UTC(), m.id,
			); err != nil {
				return fmt.Errorf("repair member %d: %w", m.id, err)
			}
		}
	}
	return nil
}
