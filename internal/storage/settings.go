package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSettingNotFound is returned by GetSetting for an unknown key.
var ErrSettingNotFound = errors.New("setting not found")

// Setting keys.
const (
	SettingNetwork = "network"
	SettingRelayer = "relayer"
)

// SetSetting stores a key/value pair.
func (s *Storage) SetSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

// GetSetting returns the value stored under key.
func (s *Storage) GetSetting(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSettingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

// EnsureSetting stores value under key on first use and otherwise checks that
// the stored value matches. Used to refuse opening a data directory created
// for another network or relayer.
func (s *Storage) EnsureSetting(key, value string) error {
	stored, err := s.GetSetting(key)
	if errors.Is(err, ErrSettingNotFound) {
		return s.SetSetting(key, value)
	}
	if err != nil {
		return err
	}
	if stored != value {
		return fmt.Errorf("data directory was created with %s %q, not %q", key, stored, value)
	}
	return nil
}
