// Package storage - Escrow leg persistence.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Swap leg errors
var (
	ErrSwapLegNotFound = errors.New("swap leg not found")
	ErrSwapLegExists   = errors.New("swap leg already exists")
)

// LegRole identifies which side funded a leg.
type LegRole string

const (
	// LegRoleMaker is the maker's escrow on chain A, paid to the resolver.
	LegRoleMaker LegRole = "maker"
	// LegRoleResolver is the resolver's escrow on chain B, paid to the maker.
	LegRoleResolver LegRole = "resolver"
)

// LegState is the relayer's view of an escrow leg.
type LegState string

const (
	LegStateFunded      LegState = "funded"
	LegStateWithdrawing LegState = "withdrawing"
	LegStateWithdrawn   LegState = "withdrawn"
	LegStateCancelling  LegState = "cancelling"
	LegStateCancelled   LegState = "cancelled"
)

// IsClosed reports whether the escrow behind the leg no longer holds funds.
func (s LegState) IsClosed() bool {
	return s == LegStateWithdrawn || s == LegStateCancelled
}

// SwapLeg is one escrow taking part in a swap.
type SwapLeg struct {
	ID         string   `json:"id"`
	SwapID     string   `json:"swap_id"`
	Role       LegRole  `json:"role"`
	Chain      string   `json:"chain"`
	EscrowID   uint64   `json:"escrow_id"`
	Amount     uint64   `json:"amount"`
	Creator    string   `json:"creator"`
	Taker      string   `json:"taker,omitempty"`
	RescueTime int64    `json:"rescue_time"`
	State      LegState `json:"state"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LegID returns the primary key of a swap's leg.
func LegID(swapID string, role LegRole) string {
	return swapID + ":" + string(role)
}

const swapLegColumns = `id, swap_id, role, chain, escrow_id, amount, creator, taker,
	rescue_time, state, created_at, updated_at`

// CreateSwapLeg inserts a new leg.
func (s *Storage) CreateSwapLeg(leg *SwapLeg) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if leg.ID == "" {
		leg.ID = LegID(leg.SwapID, leg.Role)
	}
	now := time.Now()
	if leg.CreatedAt.IsZero() {
		leg.CreatedAt = now
	}
	leg.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO swap_legs (`+swapLegColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		leg.ID, leg.SwapID, string(leg.Role), leg.Chain, leg.EscrowID, leg.Amount,
		leg.Creator, nullString(leg.Taker), leg.RescueTime, string(leg.State),
		leg.CreatedAt.Unix(), leg.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrSwapLegExists
		}
		return fmt.Errorf("failed to create swap leg: %w", err)
	}
	return nil
}

// GetSwapLeg retrieves a leg by id.
func (s *Storage) GetSwapLeg(id string) (*SwapLeg, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getSwapLegLocked(id)
}

func (s *Storage) getSwapLegLocked(id string) (*SwapLeg, error) {
	row := s.db.QueryRow(`SELECT `+swapLegColumns+` FROM swap_legs WHERE id = ?`, id)
	leg, err := scanSwapLeg(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSwapLegNotFound
		}
		return nil, fmt.Errorf("failed to get swap leg: %w", err)
	}
	return leg, nil
}

// GetSwapLegByRole retrieves the maker or resolver leg of a swap.
func (s *Storage) GetSwapLegByRole(swapID string, role LegRole) (*SwapLeg, error) {
	return s.GetSwapLeg(LegID(swapID, role))
}

// GetSwapLegsBySwapID returns all legs of a swap, maker first.
func (s *Storage) GetSwapLegsBySwapID(swapID string) ([]*SwapLeg, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT `+swapLegColumns+`
		FROM swap_legs WHERE swap_id = ?
		ORDER BY CASE role WHEN 'maker' THEN 0 ELSE 1 END
	`, swapID)
	if err != nil {
		return nil, fmt.Errorf("failed to query swap legs: %w", err)
	}
	defer rows.Close()

	return scanSwapLegs(rows)
}

// GetOpenSwapLegs returns legs whose escrow may still hold funds.
func (s *Storage) GetOpenSwapLegs() ([]*SwapLeg, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT `+swapLegColumns+`
		FROM swap_legs WHERE state NOT IN (?, ?)
		ORDER BY rescue_time ASC
	`, string(LegStateWithdrawn), string(LegStateCancelled))
	if err != nil {
		return nil, fmt.Errorf("failed to query open swap legs: %w", err)
	}
	defer rows.Close()

	return scanSwapLegs(rows)
}

// UpdateSwapLegState updates the state of a leg.
func (s *Storage) UpdateSwapLegState(id string, state LegState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`UPDATE swap_legs SET state = ?, updated_at = ? WHERE id = ?`,
		string(state), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update swap leg state: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrSwapLegNotFound
	}
	return nil
}

// UpdateSwapLegTaker records the taker assigned to a leg's escrow.
func (s *Storage) UpdateSwapLegTaker(id string, taker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`UPDATE swap_legs SET taker = ?, updated_at = ? WHERE id = ?`,
		nullString(taker), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update swap leg taker: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrSwapLegNotFound
	}
	return nil
}

func scanSwapLeg(row rowScanner) (*SwapLeg, error) {
	var leg SwapLeg
	var role, state string
	var taker sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&leg.ID, &leg.SwapID, &role, &leg.Chain, &leg.EscrowID, &leg.Amount,
		&leg.Creator, &taker, &leg.RescueTime, &state, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	leg.Role = LegRole(role)
	leg.State = LegState(state)
	if taker.Valid {
		leg.Taker = taker.String
	}
	leg.CreatedAt = time.Unix(createdAt, 0)
	leg.UpdatedAt = time.Unix(updatedAt, 0)
	return &leg, nil
}

func scanSwapLegs(rows *sql.Rows) ([]*SwapLeg, error) {
	var legs []*SwapLeg
	for rows.Next() {
		leg, err := scanSwapLeg(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan swap leg: %w", err)
		}
		legs = append(legs, leg)
	}
	return legs, rows.Err()
}
