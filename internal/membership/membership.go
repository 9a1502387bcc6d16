// Package membership supplies the narrow authorization capability the
// ledger depends on. The ledger never mutates membership; it only asks
// whether an actor is a parent of a family.
package membership

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/tally/internal/model"
)

type Checker struct{}

func NewChecker() *Checker {
	return &Checker{}
}

// IsParentOf reports whether the member belongs to the family with the
// parent role. It reads through the caller's transaction so the answer is
// consistent with the entity group the transaction already holds. An
// unknown member is simply not a parent, not an error.
func (c *Checker) IsParentOf(ctx context.Context, tx *sql.Tx, familyID, memberID int64) (bool, error) {
	var role string
	err := tx.QueryRowContext(ctx,
		`SELECT role FROM members WHERE id = ? AND family_id = ?`,
		memberID, familyID,
	).Scan(&role)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup member role: %w", err)
	}
	return role == model.RoleParent, nil
}
