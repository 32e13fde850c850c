package ledger

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha512"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

// AVM addresses are base32(publicKey || checksum) without padding, where the
// checksum is the last 4 bytes of SHA-512/256 over the 32-byte key.
const (
	avmKeyLen      = 32
	avmChecksumLen = 4
	avmAddressLen  = 58
)

var (
	ErrAVMAddressLength   = errors.New("avm address has wrong length")
	ErrAVMAddressChecksum = errors.New("avm address checksum mismatch")
	ErrAVMNotCurvePoint   = errors.New("avm key is not a valid ed25519 point")
)

var avmEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodeAVMAddress encodes a 32-byte account key as an AVM address.
func EncodeAVMAddress(key [32]byte) Identity {
	sum := sha512.Sum512_256(key[:])
	buf := make([]byte, 0, avmKeyLen+avmChecksumLen)
	buf = append(buf, key[:]...)
	buf = append(buf, sum[len(sum)-avmChecksumLen:]...)
	return Identity(avmEncoding.EncodeToString(buf))
}

// DecodeAVMAddress parses an AVM address and verifies its checksum.
func DecodeAVMAddress(s string) ([32]byte, error) {
	var key [32]byte
	if len(s) != avmAddressLen {
		return key, fmt.Errorf("%w: %d", ErrAVMAddressLength, len(s))
	}
	raw, err := avmEncoding.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("invalid avm address encoding: %w", err)
	}
	if len(raw) != avmKeyLen+avmChecksumLen {
		return key, fmt.Errorf("%w: decoded %d bytes", ErrAVMAddressLength, len(raw))
	}
	copy(key[:], raw[:avmKeyLen])
	sum := sha512.Sum512_256(key[:])
	if !bytes.Equal(raw[avmKeyLen:], sum[len(sum)-avmChecksumLen:]) {
		return key, ErrAVMAddressChecksum
	}
	return key, nil
}

// AVMAccount returns the address of an ed25519 signing key, rejecting keys
// that do not decode to a curve point.
func AVMAccount(pub ed25519.PublicKey) (Identity, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: key length %d", ErrAVMAddressLength, len(pub))
	}
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return "", ErrAVMNotCurvePoint
	}
	var key [32]byte
	copy(key[:], pub)
	return EncodeAVMAddress(key), nil
}

// IsAVMAccountKey reports whether the address encodes an ed25519 point, as
// opposed to an application or logic-signature address.
func IsAVMAccountKey(id Identity) bool {
	key, err := DecodeAVMAddress(string(id))
	if err != nil {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(key[:])
	return err == nil
}

// AVMAppAddress derives the escrow account of an application:
// SHA-512/256("appID" || big-endian app id).
func AVMAppAddress(appID uint64) Identity {
	buf := make([]byte, 0, 13)
	buf = append(buf, "appID"...)
	buf = binary.BigEndian.AppendUint64(buf, appID)
	return EncodeAVMAddress(sha512.Sum512_256(buf))
}
