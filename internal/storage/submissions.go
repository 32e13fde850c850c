// Package storage provides persistent storage using SQLite.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrSubmissionNotFound is returned when a submission id is unknown.
var ErrSubmissionNotFound = errors.New("submission not found")

// =============================================================================
// Submission Constants
// =============================================================================

// SubmissionAction is the escrow operation the relayer submits to a chain.
type SubmissionAction string

const (
	ActionAssignTaker SubmissionAction = "assign_taker"
	ActionWithdraw    SubmissionAction = "withdraw"
	ActionCancel      SubmissionAction = "cancel"
)

// SubmissionStatus represents the status of a queued submission.
type SubmissionStatus string

const (
	SubmissionStatusPending SubmissionStatus = "pending" // Awaiting (re)submission
	SubmissionStatusDone    SubmissionStatus = "done"    // Executed on chain
	SubmissionStatusFailed  SubmissionStatus = "failed"  // Permanently rejected
	SubmissionStatusExpired SubmissionStatus = "expired" // Deadline passed before execution
)

// =============================================================================
// Submission Types
// =============================================================================

// Submission is one queued chain operation with its retry bookkeeping.
type Submission struct {
	ID           int64            `json:"id"`
	SubmissionID string           `json:"submission_id"`
	SwapID       string           `json:"swap_id"`
	Chain        string           `json:"chain"`
	Action       SubmissionAction `json:"action"`
	LegRole      LegRole          `json:"leg_role"`
	EscrowID     uint64           `json:"escrow_id"`
	Payload      []byte           `json:"payload,omitempty"`
	Deadline     int64            `json:"deadline"` // chain time; 0 means none
	CreatedAt    int64            `json:"created_at"`
	RetryCount   int              `json:"retry_count"`
	LastAttempt  int64            `json:"last_attempt_at"`
	NextRetryAt  int64            `json:"next_retry_at"`
	CompletedAt  *int64           `json:"completed_at"`
	Status       SubmissionStatus `json:"status"`
	ErrorMessage string           `json:"error_message"`
}

// SubmissionPayload carries the action arguments.
type SubmissionPayload struct {
	Taker  string `json:"taker,omitempty"`
	Secret string `json:"secret,omitempty"`
}

// DecodePayload unmarshals the submission payload.
func (m *Submission) DecodePayload() (*SubmissionPayload, error) {
	var p SubmissionPayload
	if len(m.Payload) == 0 {
		return &p, nil
	}
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode submission payload: %w", err)
	}
	return &p, nil
}

// PastDeadline reports whether chain time now is at or beyond the deadline.
func (m *Submission) PastDeadline(now int64) bool {
	return m.Deadline > 0 && now >= m.Deadline
}

const submissionColumns = `id, submission_id, swap_id, chain, action, leg_role, escrow_id,
	payload, deadline, created_at, retry_count, last_attempt_at, next_retry_at,
	completed_at, status, error_message`

// =============================================================================
// Outbox Operations
// =============================================================================

// EnqueueSubmission adds a submission to the outbox. It is due immediately.
func (s *Storage) EnqueueSubmission(sub *Submission, payload *SubmissionPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	if sub.SubmissionID == "" {
		sub.SubmissionID = uuid.New().String()
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode submission payload: %w", err)
		}
		sub.Payload = data
	}
	sub.CreatedAt = now
	sub.NextRetryAt = now
	sub.Status = SubmissionStatusPending

	result, err := s.db.Exec(`
		INSERT INTO submissions (
			submission_id, swap_id, chain, action, leg_role, escrow_id, payload,
			deadline, created_at, retry_count, next_retry_at, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, 'pending')
	`,
		sub.SubmissionID, sub.SwapID, sub.Chain, string(sub.Action), string(sub.LegRole),
		sub.EscrowID, sub.Payload, sub.Deadline, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue submission: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		sub.ID = id
	}

	return nil
}

// GetPendingSubmissions returns a chain's submissions due at wall time now.
func (s *Storage) GetPendingSubmissions(chain string, now int64) ([]*Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT `+submissionColumns+`
		FROM submissions
		WHERE chain = ? AND status = 'pending' AND next_retry_at <= ?
		ORDER BY next_retry_at ASC, id ASC
		LIMIT 100
	`, chain, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending submissions: %w", err)
	}
	defer rows.Close()

	return scanSubmissions(rows)
}

// GetSubmissionsForSwap returns every submission of a swap in queue order.
func (s *Storage) GetSubmissionsForSwap(swapID string) ([]*Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT `+submissionColumns+`
		FROM submissions WHERE swap_id = ?
		ORDER BY id ASC
	`, swapID)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions for swap: %w", err)
	}
	defer rows.Close()

	return scanSubmissions(rows)
}

// HasActiveSubmission reports whether a pending or done submission exists
// for the given swap leg and action.
func (s *Storage) HasActiveSubmission(swapID string, role LegRole, action SubmissionAction) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM submissions
		WHERE swap_id = ? AND leg_role = ? AND action = ? AND status IN ('pending', 'done')
	`, swapID, string(role), string(action)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query submissions: %w", err)
	}
	return count > 0, nil
}

// GetSubmission retrieves a submission by its submission id.
func (s *Storage) GetSubmission(submissionID string) (*Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT `+submissionColumns+` FROM submissions WHERE submission_id = ?`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query submission: %w", err)
	}
	defer rows.Close()

	subs, err := scanSubmissions(rows)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, ErrSubmissionNotFound
	}
	return subs[0], nil
}

// MarkSubmissionAttempt records an attempt and bumps the retry count.
func (s *Storage) MarkSubmissionAttempt(submissionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE submissions
		SET last_attempt_at = ?, retry_count = retry_count + 1
		WHERE submission_id = ?
	`, time.Now().Unix(), submissionID)

	return err
}

// MarkSubmissionDone marks a submission as executed.
func (s *Storage) MarkSubmissionDone(submissionID string) error {
	return s.finishSubmission(submissionID, SubmissionStatusDone, "")
}

// MarkSubmissionFailed marks a submission as permanently rejected.
func (s *Storage) MarkSubmissionFailed(submissionID string, errorMsg string) error {
	return s.finishSubmission(submissionID, SubmissionStatusFailed, errorMsg)
}

// MarkSubmissionExpired marks a submission whose deadline passed.
func (s *Storage) MarkSubmissionExpired(submissionID string, errorMsg string) error {
	return s.finishSubmission(submissionID, SubmissionStatusExpired, errorMsg)
}

func (s *Storage) finishSubmission(submissionID string, status SubmissionStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE submissions
		SET status = ?, completed_at = ?, error_message = COALESCE(?, error_message)
		WHERE submission_id = ?
	`, string(status), time.Now().Unix(), nullString(errorMsg), submissionID)
	if err != nil {
		return fmt.Errorf("failed to update submission: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

// ScheduleRetry sets the next attempt time of a pending submission.
func (s *Storage) ScheduleRetry(submissionID string, nextRetryAt int64, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE submissions
		SET status = 'pending', next_retry_at = ?, error_message = ?
		WHERE submission_id = ?
	`, nextRetryAt, nullString(errorMsg), submissionID)

	return err
}

// CleanupOldSubmissions removes finished submissions created before olderThan.
func (s *Storage) CleanupOldSubmissions(olderThan int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		DELETE FROM submissions
		WHERE status IN ('done', 'failed', 'expired')
		  AND created_at < ?
	`, olderThan)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// GetSubmissionStats returns submission counts per status.
func (s *Storage) GetSubmissionStats() (map[SubmissionStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT status, COUNT(*) as count
		FROM submissions
		GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[SubmissionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[SubmissionStatus(status)] = count
	}

	return stats, rows.Err()
}

func scanSubmissions(rows *sql.Rows) ([]*Submission, error) {
	var subs []*Submission

	for rows.Next() {
		var sub Submission
		var action, role, status string
		var lastAttempt, completedAt sql.NullInt64
		var errorMsg sql.NullString

		err := rows.Scan(
			&sub.ID, &sub.SubmissionID, &sub.SwapID, &sub.Chain, &action, &role,
			&sub.EscrowID, &sub.Payload, &sub.Deadline, &sub.CreatedAt,
			&sub.RetryCount, &lastAttempt, &sub.NextRetryAt, &completedAt,
			&status, &errorMsg,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}

		sub.Action = SubmissionAction(action)
		sub.LegRole = LegRole(role)
		sub.Status = SubmissionStatus(status)
		if lastAttempt.Valid {
			sub.LastAttempt = lastAttempt.Int64
		}
		if completedAt.Valid {
			sub.CompletedAt = &completedAt.Int64
		}
		if errorMsg.Valid {
			sub.ErrorMessage = errorMsg.String
		}

		subs = append(subs, &sub)
	}

	return subs, rows.Err()
}
