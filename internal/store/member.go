package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/tally/internal/model"
)

type MemberStore struct {
	db *sql.DB
}

func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db}
}

func scanMember(scanner interface{ Scan(...any) error }) (*model.Member, error) {
	var m model.Member
	var lastTask, lastRedemption sql.NullTime

	err := scanner.Scan(
		&m.ID, &m.FamilyID, &m.Name, &m.Role, &m.HasPIN,
		&m.Points, &m.TotalPointsEarned, &m.TotalPointsRedeemed, &m.TasksCompleted,
		&lastTask, &lastRedemption, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastTask.Valid {
		m.LastTaskCompletedAt = &lastTask.Time
	}
	if lastRedemption.Valid {
		m.LastRedemptionAt = &lastRedemption.Time
	}
	return &m, nil
}

const memberCols = `id, family_id, name, role, pin_hash != '', points, total_points_earned, total_points_redeemed, tasks_completed, last_task_completed_at, last_redemption_at, created_at, updated_at`

func (s *MemberStore) Create(familyID int64, name, role string) (*model.Member, error) {
	result, err := s.db.Exec(
		`INSERT INTO members (family_id, name, role) VALUES (?, ?, ?)`,
		familyID, name, role,
	)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *MemberStore) GetByID(id int64) (*model.Member, error) {
	row := s.db.QueryRow(`SELECT `+memberCols+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *MemberStore) ListByFamily(familyID int64) ([]model.Member, error) {
	rows, err := s.db.Query(
		`SELECT `+memberCols+` FROM members WHERE family_id = ? ORDER BY name ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *MemberStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM members WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

// --- PIN methods ---

func (s *MemberStore) SetPIN(id int64, hashedPIN string) error {
	_, err := s.db.Exec(`UPDATE members SET pin_hash = ?, updated_at = ? WHERE id = ?`,
		hashedPIN, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

func (s *MemberStore) ClearPIN(id int64) error {
	_, err := s.db.Exec(`UPDATE members SET pin_hash = '', updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("clear pin: %w", err)
	}
	return nil
}

func (s *MemberStore) GetPINHash(id int64) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT pin_hash FROM members WHERE id = ?`, id).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("member not found")
	}
	if err != nil {
		return "", fmt.Errorf("query pin: %w", err)
	}
	return hash, nil
}

// --- Balance reads ---

// GetPointBalance reads a member's balance off the ledger columns. The
// reconciliation invariant (balance == earned - redeemed) is enforced by the
// ledger transactions and a table CHECK, not recomputed here.
func (s *MemberStore) GetPointBalance(memberID int64) (*model.PointBalance, error) {
	var b model.PointBalance
	err := s.db.QueryRow(
		`SELECT id, name, total_points_earned, total_points_redeemed, points
		 FROM members WHERE id = ?`, memberID,
	).Scan(&b.MemberID, &b.MemberName, &b.TotalEarned, &b.TotalRedeemed, &b.Balance)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get point balance: %w", err)
	}
	return &b, nil
}

// ListBalancesByFamily returns every member's balance, highest first.
func (s *MemberStore) ListBalancesByFamily(familyID int64) ([]model.PointBalance, error) {
	rows, err := s.db.Query(
		`SELECT id, name, total_points_earned, total_points_redeemed, points
		 FROM members WHERE family_id = ? ORDER BY points DESC, name ASC`, familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	var balances []model.PointBalance
	for rows.Next() {
		var b model.PointBalance
		if err := rows.Scan(&b.MemberID, &b.MemberName, &b.TotalEarned, &b.TotalRedeemed, &b.Balance); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}
