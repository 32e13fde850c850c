// Package storage - Hash-lock secret storage.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Secret errors
var (
	ErrSecretNotFound      = errors.New("secret not found")
	ErrSecretAlreadyExists = errors.New("secret already exists for this swap")
)

// SecretSource records where the relayer learned a preimage.
type SecretSource string

const (
	// SecretSourceMaker means the maker handed the secret to the relayer.
	SecretSourceMaker SecretSource = "maker"
	// SecretSourceChain means the secret was read from a withdrawn escrow.
	SecretSourceChain SecretSource = "chain"
)

// Secret is the hash lock of a swap, plus the preimage once revealed.
type Secret struct {
	SwapID     string
	SecretHash string // hex, always known
	Secret     string // hex, empty until revealed
	Source     SecretSource

	CreatedAt  time.Time
	RevealedAt *time.Time
}

// Revealed reports whether the preimage is known.
func (s *Secret) Revealed() bool {
	return s.Secret != ""
}

// CreateSecret stores the hash lock of a swap. The preimage may be empty.
func (s *Storage) CreateSecret(secret *Secret) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if secret.CreatedAt.IsZero() {
		secret.CreatedAt = time.Now()
	}

	var revealedAt *int64
	if secret.RevealedAt != nil {
		ts := secret.RevealedAt.Unix()
		revealedAt = &ts
	}

	_, err := s.db.Exec(`
		INSERT INTO secrets (swap_id, secret_hash, secret, source, created_at, revealed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		secret.SwapID, secret.SecretHash, nullString(secret.Secret), nullString(string(secret.Source)),
		secret.CreatedAt.Unix(), revealedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrSecretAlreadyExists
		}
		return fmt.Errorf("failed to create secret: %w", err)
	}
	return nil
}

// GetSecret returns the secret of a swap.
func (s *Storage) GetSecret(swapID string) (*Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT swap_id, secret_hash, secret, source, created_at, revealed_at
		FROM secrets WHERE swap_id = ?
	`, swapID)
	return scanSecret(row)
}

// GetSecretByHash returns the first secret stored under a hash lock.
func (s *Storage) GetSecretByHash(secretHash string) (*Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT swap_id, secret_hash, secret, source, created_at, revealed_at
		FROM secrets WHERE secret_hash = ?
		ORDER BY created_at ASC LIMIT 1
	`, secretHash)
	return scanSecret(row)
}

// RevealSecret stores the preimage of a swap's hash lock. Revealing an
// already revealed secret is a no-op.
func (s *Storage) RevealSecret(swapID string, preimage string, source SecretSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()

	result, err := s.db.Exec(`
		UPDATE secrets SET secret = ?, source = ?, revealed_at = ?
		WHERE swap_id = ? AND secret IS NULL
	`, preimage, string(source), now, swapID)
	if err != nil {
		return fmt.Errorf("failed to reveal secret: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var existing sql.NullString
		err := s.db.QueryRow("SELECT secret FROM secrets WHERE swap_id = ?", swapID).Scan(&existing)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSecretNotFound
		}
		return nil
	}

	return nil
}

// GetUnrevealedSecrets returns secrets whose preimage is still unknown.
func (s *Storage) GetUnrevealedSecrets() ([]*Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT swap_id, secret_hash, secret, source, created_at, revealed_at
		FROM secrets WHERE secret IS NULL
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unrevealed secrets: %w", err)
	}
	defer rows.Close()

	var secrets []*Secret
	for rows.Next() {
		sec, err := scanSecretRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan secret: %w", err)
		}
		secrets = append(secrets, sec)
	}
	return secrets, rows.Err()
}

func scanSecret(row *sql.Row) (*Secret, error) {
	sec, err := scanSecretRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSecretNotFound
		}
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}
	return sec, nil
}

func scanSecretRow(row rowScanner) (*Secret, error) {
	var sec Secret
	var preimage, source sql.NullString
	var createdAt int64
	var revealedAt sql.NullInt64

	if err := row.Scan(&sec.SwapID, &sec.SecretHash, &preimage, &source, &createdAt, &revealedAt); err != nil {
		return nil, err
	}

	if preimage.Valid {
		sec.Secret = preimage.String
	}
	if source.Valid {
		sec.Source = SecretSource(source.String)
	}
	sec.CreatedAt = time.Unix(createdAt, 0)
	if revealedAt.Valid {
		t := time.Unix(revealedAt.Int64, 0)
		sec.RevealedAt = &t
	}
	return &sec, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite unique constraint error contains "UNIQUE constraint failed"
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
