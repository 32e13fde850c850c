// Package wallet holds the relayer's keys: an encrypted BIP39 mnemonic on
// disk, from which the EVM signing key and the AVM account key are derived.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters used for new keystores.
const (
	argon2Time        = 3
	argon2Memory      = 64 * 1024 // KiB
	argon2Parallelism = 4
	argon2KeyLen      = 32 // AES-256
	argon2SaltLen     = 32

	keystoreVersion = 1
)

var (
	ErrWrongPassword   = errors.New("wrong password or corrupted keystore")
	ErrKeystoreExists  = errors.New("keystore already exists")
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
)

// EncryptedSeed is the on-disk keystore format.
type EncryptedSeed struct {
	Version     int    `json:"version"`
	Ciphertext  []byte `json:"ciphertext"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Time        uint32 `json:"time"`
	Memory      uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
}

// EncryptMnemonic seals mnemonic under a key derived from password.
func EncryptMnemonic(mnemonic, password string) (*EncryptedSeed, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}
	if !ValidateMnemonic(mnemonic) {
		return nil, ErrInvalidMnemonic
	}

	seed := &EncryptedSeed{
		Version:     keystoreVersion,
		Salt:        make([]byte, argon2SaltLen),
		Time:        argon2Time,
		Memory:      argon2Memory,
		Parallelism: argon2Parallelism,
	}
	if _, err := rand.Read(seed.Salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := seed.aead(password)
	if err != nil {
		return nil, err
	}
	seed.Nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(seed.Nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	seed.Ciphertext = gcm.Seal(nil, seed.Nonce, []byte(mnemonic), seed.additionalData())

	return seed, nil
}

// DecryptMnemonic opens an encrypted seed.
func DecryptMnemonic(seed *EncryptedSeed, password string) (string, error) {
	if seed.Version != keystoreVersion {
		return "", fmt.Errorf("unsupported keystore version %d", seed.Version)
	}

	gcm, err := seed.aead(password)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, seed.Nonce, seed.Ciphertext, seed.additionalData())
	if err != nil {
		return "", ErrWrongPassword
	}
	defer SecureClear(plaintext)

	return string(plaintext), nil
}

// aead derives the AES-256-GCM cipher for password from the stored KDF
// parameters.
func (e *EncryptedSeed) aead(password string) (cipher.AEAD, error) {
	if e.Time == 0 || e.Memory == 0 || e.Parallelism == 0 {
		return nil, errors.New("keystore is missing KDF parameters")
	}

	key := argon2.IDKey([]byte(password), e.Salt, e.Time, e.Memory, e.Parallelism, argon2KeyLen)
	defer SecureClear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// additionalData binds the ciphertext to its KDF parameters.
func (e *EncryptedSeed) additionalData() []byte {
	return []byte(fmt.Sprintf("crosslock-keystore/v%d/%d/%d/%d", e.Version, e.Time, e.Memory, e.Parallelism))
}

// SaveEncryptedSeed writes seed to path with owner-only permissions. An
// existing keystore is never overwritten.
func SaveEncryptedSeed(seed *EncryptedSeed, path string) error {
	if err := ValidateFilePath(path); err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrKeystoreExists, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(seed, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal keystore: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}
	return nil
}

// LoadEncryptedSeed reads a keystore file.
func LoadEncryptedSeed(path string) (*EncryptedSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore: %w", err)
	}

	var seed EncryptedSeed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse keystore: %w", err)
	}
	return &seed, nil
}

// SecureClear overwrites a byte slice with zeros.
func SecureClear(data []byte) {
	for i := range data {
		data[i] = 0
	}
}

// Password limits.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 256
)

// ValidatePassword requires 8..256 characters drawn from at least three of
// upper case, lower case, digits and symbols.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("password must be at most %d characters", MaxPasswordLength)
	}

	var classes [4]bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			classes[0] = true
		case unicode.IsLower(r):
			classes[1] = true
		case unicode.IsNumber(r):
			classes[2] = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			classes[3] = true
		}
	}

	n := 0
	for _, ok := range classes {
		if ok {
			n++
		}
	}
	if n < 3 {
		return fmt.Errorf("password must contain at least 3 of: uppercase, lowercase, number, special character")
	}
	return nil
}

// ValidateFilePath rejects empty, non-UTF-8 and traversing relative paths.
func ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if clean := filepath.Clean(path); clean != path && !filepath.IsAbs(path) {
		return fmt.Errorf("suspicious path (potential traversal): %s", path)
	}
	if !utf8.ValidString(path) {
		return fmt.Errorf("path contains invalid UTF-8")
	}
	return nil
}
