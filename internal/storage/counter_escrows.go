// Package storage - Counter escrows funded by the built-in resolver.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Counter escrow errors
var (
	ErrCounterEscrowNotFound = errors.New("counter escrow not found")
	ErrCounterEscrowExists   = errors.New("counter escrow already tracked for this swap")
)

// CounterEscrowState tracks a resolver escrow from funding to its end.
type CounterEscrowState string

const (
	// CounterEscrowFunding is written before the escrow is created. A row
	// left in this state by a crash may or may not have a funded escrow.
	CounterEscrowFunding CounterEscrowState = "funding"
	// CounterEscrowCreated means the escrow exists but is not yet a leg.
	CounterEscrowCreated CounterEscrowState = "created"
	// CounterEscrowRegistered means the escrow is the swap's resolver leg.
	CounterEscrowRegistered CounterEscrowState = "registered"
	// CounterEscrowAbandoned means the escrow can never become a leg and
	// waits for its rescue time to be cancelled.
	CounterEscrowAbandoned CounterEscrowState = "abandoned"
	// CounterEscrowClosed means an abandoned escrow was cancelled or
	// otherwise closed on chain.
	CounterEscrowClosed CounterEscrowState = "closed"
)

// CounterEscrow is one resolver escrow and the swap it was funded for.
type CounterEscrow struct {
	SwapID   string
	Chain    string
	Resolver string
	EscrowID uint64
	State    CounterEscrowState
	Reason   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

const counterEscrowColumns = `swap_id, chain, resolver, escrow_id, state, reason, created_at, updated_at`

// BeginCounterEscrow records the intent to fund a counter escrow for a swap.
// It fails with ErrCounterEscrowExists if the swap already has one.
func (s *Storage) BeginCounterEscrow(swapID, chain, resolver string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO counter_escrows (swap_id, chain, resolver, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, swapID, chain, resolver, string(CounterEscrowFunding), now, now)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrCounterEscrowExists
		}
		return fmt.Errorf("failed to record counter escrow: %w", err)
	}
	return nil
}

// SetCounterEscrowCreated stores the id of the escrow funded for a swap.
func (s *Storage) SetCounterEscrowCreated(swapID string, escrowID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE counter_escrows SET escrow_id = ?, state = ?, updated_at = ?
		WHERE swap_id = ?
	`, escrowID, string(CounterEscrowCreated), time.Now().Unix(), swapID)
	if err != nil {
		return fmt.Errorf("failed to update counter escrow: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrCounterEscrowNotFound
	}
	return nil
}

// SetCounterEscrowState moves a counter escrow to state.
func (s *Storage) SetCounterEscrowState(swapID string, state CounterEscrowState, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE counter_escrows SET state = ?, reason = ?, updated_at = ?
		WHERE swap_id = ?
	`, string(state), nullString(reason), time.Now().Unix(), swapID)
	if err != nil {
		return fmt.Errorf("failed to update counter escrow: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrCounterEscrowNotFound
	}
	return nil
}

// DeleteCounterEscrow forgets a counter escrow that was never funded.
func (s *Storage) DeleteCounterEscrow(swapID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM counter_escrows WHERE swap_id = ?`, swapID); err != nil {
		return fmt.Errorf("failed to delete counter escrow: %w", err)
	}
	return nil
}

// GetCounterEscrow returns the counter escrow of a swap.
func (s *Storage) GetCounterEscrow(swapID string) (*CounterEscrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+counterEscrowColumns+` FROM counter_escrows WHERE swap_id = ?`, swapID)
	ce, err := scanCounterEscrow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCounterEscrowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get counter escrow: %w", err)
	}
	return ce, nil
}

// ListCounterEscrows returns the counter escrows in any of states, oldest
// first.
func (s *Storage) ListCounterEscrows(states ...CounterEscrowState) ([]*CounterEscrow, error) {
	if len(states) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	args := make([]interface{}, len(states))
	for i, st := range states {
		args[i] = string(st)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(states)), ",")
	rows, err := s.db.Query(`
		SELECT `+counterEscrowColumns+` FROM counter_escrows
		WHERE state IN (`+placeholders+`)
		ORDER BY created_at ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query counter escrows: %w", err)
	}
	defer rows.Close()

	var out []*CounterEscrow
	for rows.Next() {
		ce, err := scanCounterEscrow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan counter escrow: %w", err)
		}
		out = append(out, ce)
	}
	return out, rows.Err()
}

func scanCounterEscrow(row rowScanner) (*CounterEscrow, error) {
	var ce CounterEscrow
	var state string
	var escrowID sql.NullInt64
	var reason sql.NullString
	var createdAt, updatedAt int64

	if err := row.Scan(&ce.SwapID, &ce.Chain, &ce.Resolver, &escrowID, &state, &reason, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	ce.State = CounterEscrowState(state)
	if escrowID.Valid {
		ce.EscrowID = uint64(escrowID.Int64)
	}
	ce.Reason = reason.String
	ce.CreatedAt = time.Unix(createdAt, 0)
	ce.UpdatedAt = time.Unix(updatedAt, 0)
	return &ce, nil
}
