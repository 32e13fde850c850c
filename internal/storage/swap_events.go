package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SwapEvent is one entry in a swap's audit log.
type SwapEvent struct {
	ID        int64           `json:"id"`
	SwapID    string          `json:"swap_id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// AddSwapEvent appends an event to a swap's audit log. data is marshalled to
// JSON and may be nil.
func (s *Storage) AddSwapEvent(swapID, eventType string, data interface{}) error {
	var encoded *string
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to encode swap event: %w", err)
		}
		str := string(b)
		encoded = &str
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO swap_events (swap_id, event_type, data, created_at)
		VALUES (?, ?, ?, ?)
	`, swapID, eventType, encoded, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to add swap event: %w", err)
	}
	return nil
}

// ListSwapEvents returns a swap's events oldest first.
func (s *Storage) ListSwapEvents(swapID string) ([]*SwapEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, swap_id, event_type, data, created_at
		FROM swap_events WHERE swap_id = ?
		ORDER BY id ASC
	`, swapID)
	if err != nil {
		return nil, fmt.Errorf("failed to query swap events: %w", err)
	}
	defer rows.Close()

	var events []*SwapEvent
	for rows.Next() {
		var ev SwapEvent
		var data sql.NullString
		var createdAt int64
		if err := rows.Scan(&ev.ID, &ev.SwapID, &ev.Type, &data, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan swap event: %w", err)
		}
		if data.Valid {
			ev.Data = json.RawMessage(data.String)
		}
		ev.CreatedAt = time.Unix(createdAt, 0)
		events = append(events, &ev)
	}
	return events, rows.Err()
}
