// Package hashlock implements the hash commitment shared by every escrow leg
// of a swap: a single keccak256 over the raw secret bytes, with no salt and
// no domain tag. Both ledgers must compute it identically.
//
// A secret must be uniformly random and never reused: two escrows committed
// to the same hash are linkable, and revealing the secret on one ledger
// unlocks every escrow that shares it.
package hashlock

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Klingon-tech/crosslock/pkg/helpers"
)

// SecretSize is the length of secrets produced by GenerateSecret.
const SecretSize = 32

// MaxSecretSize bounds secrets decoded from API callers by ParseSecret and
// CheckSecret. Escrows and Verify take a preimage of any length, so a secret
// published on a ledger is always usable.
const MaxSecretSize = 1024

var (
	ErrEmptySecret    = errors.New("secret is empty")
	ErrSecretTooLarge = errors.New("secret exceeds maximum size")
	ErrInvalidHash    = errors.New("invalid secret hash")
)

// Hash is a 32-byte keccak256 commitment.
type Hash [32]byte

// Secret is a hash preimage.
type Secret []byte

// Sum computes the commitment of secret.
func Sum(secret []byte) Hash {
	return Hash(crypto.Keccak256Hash(secret))
}

// Verify reports whether secret hashes to commitment. Empty secrets never match.
func Verify(secret []byte, commitment Hash) bool {
	if len(secret) == 0 {
		return false
	}
	got := Sum(secret)
	return helpers.ConstantTimeCompare(got[:], commitment[:])
}

// GenerateSecret returns a fresh random secret and its commitment.
func GenerateSecret() (Secret, Hash, error) {
	b, err := helpers.GenerateSecureRandom(SecretSize)
	if err != nil {
		return nil, Hash{}, fmt.Errorf("failed to generate secret: %w", err)
	}
	return Secret(b), Sum(b), nil
}

// ParseHash decodes a 0x-prefixed or bare hex commitment.
func ParseHash(s string) (Hash, error) {
	b, err := helpers.HexToFixed(s, 32)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// ParseSecret decodes a hex secret and checks its size.
func ParseSecret(s string) (Secret, error) {
	b, err := DecodeSecret(s)
	if err != nil {
		return nil, err
	}
	if err := CheckSecret(b); err != nil {
		return nil, err
	}
	return b, nil
}

// DecodeSecret decodes a hex secret without a size limit.
func DecodeSecret(s string) (Secret, error) {
	b, err := helpers.HexToBytes(s)
	if err != nil {
		return nil, fmt.Errorf("invalid secret: %w", err)
	}
	return Secret(b), nil
}

// CheckSecret validates the size of a caller-supplied secret.
func CheckSecret(b []byte) error {
	if len(b) == 0 {
		return ErrEmptySecret
	}
	if len(b) > MaxSecretSize {
		return ErrSecretTooLarge
	}
	return nil
}

// Hex returns the 0x-prefixed hex form.
func (h Hash) Hex() string {
	return helpers.BytesToHex(h[:])
}

// String implements fmt.Stringer.
func (h Hash) String() string {
	return h.Hex()
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return helpers.IsZeroBytes(h[:])
}

// Bytes32 returns h as the fixed array used by contract bindings.
func (h Hash) Bytes32() [32]byte {
	return h
}

// Common returns h as a go-ethereum hash.
func (h Hash) Common() common.Hash {
	return common.Hash(h)
}

// Hex returns the 0x-prefixed hex form of the secret.
func (s Secret) Hex() string {
	return helpers.BytesToHex(s)
}

// Clone returns a copy of s.
func (s Secret) Clone() Secret {
	return helpers.CopyBytes(s)
}

// Hash returns the commitment of s.
func (s Secret) Hash() Hash {
	return Sum(s)
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	v, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty string decodes
// to a nil secret.
func (s *Secret) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*s = nil
		return nil
	}
	v, err := ParseSecret(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
