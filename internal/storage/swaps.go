// Package storage - Swap checkpoint persistence.
// Every swap transition is written here before the relayer acts on it, so a
// restarted relayer resumes from the last checkpoint.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Swap persistence errors
var (
	ErrSwapNotFound     = errors.New("swap not found")
	ErrInvalidSwapState = errors.New("invalid swap state")
)

// SwapState represents the current state of a swap.
type SwapState string

const (
	SwapStatePending        SwapState = "pending"
	SwapStateAuctionOpen    SwapState = "auction_open"
	SwapStateSold           SwapState = "sold"
	SwapStateCounterFunded  SwapState = "counter_funded"
	SwapStateSecretRevealed SwapState = "secret_revealed"
	SwapStateCompleted      SwapState = "completed"
	SwapStateRefunded       SwapState = "refunded"
	SwapStateFailed         SwapState = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s SwapState) IsTerminal() bool {
	return isTerminalState(s)
}

// SwapRecord represents a persisted swap checkpoint.
type SwapRecord struct {
	ID         string    `json:"id"`
	State      SwapState `json:"state"`
	Maker      string    `json:"maker"`
	SecretHash string    `json:"secret_hash"`

	// Maker leg (chain A) and the chain the resolver must fund (chain B)
	MakerChain    string `json:"maker_chain"`
	MakerEscrowID uint64 `json:"maker_escrow_id"`
	CounterChain  string `json:"counter_chain"`

	// Auction outcome
	AuctionID uint64 `json:"auction_id"`
	Winner    string `json:"winner,omitempty"`
	SoldPrice uint64 `json:"sold_price,omitempty"`

	FailureReason string `json:"failure_reason,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

const swapColumns = `id, state, maker, secret_hash, maker_chain, maker_escrow_id,
	counter_chain, auction_id, winner, sold_price, failure_reason,
	created_at, updated_at, completed_at`

// SaveSwap saves or updates a swap record.
// Uses UPSERT pattern - creates if not exists, updates if exists.
func (s *Storage) SaveSwap(swap *SwapRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if swap.ID == "" {
		return fmt.Errorf("%w: swap id is required", ErrInvalidSwapState)
	}

	now := time.Now()
	if swap.CreatedAt.IsZero() {
		swap.CreatedAt = now
	}
	swap.UpdatedAt = now
	if isTerminalState(swap.State) && swap.CompletedAt.IsZero() {
		swap.CompletedAt = now
	}

	query := `
		INSERT INTO swaps (` + swapColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			winner = excluded.winner,
			sold_price = excluded.sold_price,
			failure_reason = excluded.failure_reason,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at
	`

	_, err := s.db.Exec(query,
		swap.ID,
		string(swap.State),
		swap.Maker,
		swap.SecretHash,
		swap.MakerChain,
		swap.MakerEscrowID,
		swap.CounterChain,
		swap.AuctionID,
		nullString(swap.Winner),
		swap.SoldPrice,
		nullString(swap.FailureReason),
		swap.CreatedAt.Unix(),
		swap.UpdatedAt.Unix(),
		timeToUnixOrZero(swap.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save swap: %w", err)
	}

	return nil
}

// GetSwap retrieves a swap by id.
func (s *Storage) GetSwap(id string) (*SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+swapColumns+` FROM swaps WHERE id = ?`, id)
	return scanSwapRecord(row)
}

// GetSwapByMakerEscrow retrieves the swap built on the given maker escrow.
func (s *Storage) GetSwapByMakerEscrow(chain string, escrowID uint64) (*SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+swapColumns+` FROM swaps WHERE maker_chain = ? AND maker_escrow_id = ?`, chain, escrowID)
	return scanSwapRecord(row)
}

// GetPendingSwaps returns all swaps not in a terminal state.
// Used on startup to resume in-flight swaps.
func (s *Storage) GetPendingSwaps() ([]*SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT `+swapColumns+`
		FROM swaps
		WHERE state NOT IN (?, ?, ?)
		ORDER BY created_at ASC
	`, string(SwapStateCompleted), string(SwapStateRefunded), string(SwapStateFailed))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending swaps: %w", err)
	}
	defer rows.Close()

	return scanSwapRecords(rows)
}

// UpdateSwapState updates only the state of a swap.
func (s *Storage) UpdateSwapState(id string, state SwapState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	var completedAt int64
	if isTerminalState(state) {
		completedAt = now
	}

	result, err := s.db.Exec(`
		UPDATE swaps SET state = ?, updated_at = ?,
			completed_at = CASE WHEN ? > 0 THEN ? ELSE completed_at END
		WHERE id = ?
	`, string(state), now, completedAt, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update swap state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrSwapNotFound
	}

	return nil
}

// ListSwaps returns swaps newest first.
func (s *Storage) ListSwaps(limit int, includeCompleted bool) ([]*SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + swapColumns + ` FROM swaps`
	var args []interface{}
	if !includeCompleted {
		query += ` WHERE state NOT IN (?, ?, ?)`
		args = append(args, string(SwapStateCompleted), string(SwapStateRefunded), string(SwapStateFailed))
	}
	query += ` ORDER BY created_at DESC, id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list swaps: %w", err)
	}
	defer rows.Close()

	return scanSwapRecords(rows)
}

// SwapCount returns the number of in-flight and finished swaps.
func (s *Storage) SwapCount() (pending, completed int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	err = s.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN state NOT IN (?, ?, ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state IN (?, ?, ?) THEN 1 ELSE 0 END), 0)
		FROM swaps
	`,
		string(SwapStateCompleted), string(SwapStateRefunded), string(SwapStateFailed),
		string(SwapStateCompleted), string(SwapStateRefunded), string(SwapStateFailed),
	).Scan(&pending, &completed)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count swaps: %w", err)
	}
	return pending, completed, nil
}

func isTerminalState(state SwapState) bool {
	switch state {
	case SwapStateCompleted, SwapStateRefunded, SwapStateFailed:
		return true
	}
	return false
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSwap(row rowScanner) (*SwapRecord, error) {
	var swap SwapRecord
	var state string
	var winner, failureReason sql.NullString
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64

	err := row.Scan(
		&swap.ID, &state, &swap.Maker, &swap.SecretHash,
		&swap.MakerChain, &swap.MakerEscrowID, &swap.CounterChain,
		&swap.AuctionID, &winner, &swap.SoldPrice, &failureReason,
		&createdAt, &updatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	swap.State = SwapState(state)
	if winner.Valid {
		swap.Winner = winner.String
	}
	if failureReason.Valid {
		swap.FailureReason = failureReason.String
	}
	swap.CreatedAt = time.Unix(createdAt, 0)
	swap.UpdatedAt = time.Unix(updatedAt, 0)
	if completedAt.Valid {
		swap.CompletedAt = unixOrZero(completedAt.Int64)
	}

	return &swap, nil
}

func scanSwapRecord(row *sql.Row) (*SwapRecord, error) {
	swap, err := scanSwap(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSwapNotFound
		}
		return nil, fmt.Errorf("failed to scan swap: %w", err)
	}
	return swap, nil
}

func scanSwapRecords(rows *sql.Rows) ([]*SwapRecord, error) {
	var swaps []*SwapRecord
	for rows.Next() {
		swap, err := scanSwap(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan swap: %w", err)
		}
		swaps = append(swaps, swap)
	}
	return swaps, rows.Err()
}
