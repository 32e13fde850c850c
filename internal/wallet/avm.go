package wallet

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/crosslock/internal/ledger"
)

// slip10Curve is the SLIP-0010 master key domain for ed25519.
const slip10Curve = "ed25519 seed"

// AVMKey returns the ed25519 account key at m/44'/283'/account'/0'/index',
// derived with SLIP-0010.
func (w *Wallet) AVMKey(account, index uint32) (ed25519.PrivateKey, error) {
	key, _, err := deriveEd25519(w.seed, AVMPath(account, index))
	if err != nil {
		return nil, err
	}
	defer SecureClear(key)
	return ed25519.NewKeyFromSeed(key), nil
}

// AVMIdentity returns the AVM address of AVMKey(account, index).
func (w *Wallet) AVMIdentity(account, index uint32) (ledger.Identity, error) {
	priv, err := w.AVMKey(account, index)
	if err != nil {
		return "", err
	}
	return ledger.AVMAccount(priv.Public().(ed25519.PublicKey))
}

// deriveEd25519 walks a hardened-only path from seed and returns the 32-byte
// private key seed and chain code.
func deriveEd25519(seed []byte, path DerivationPath) (key, chainCode []byte, err error) {
	mac := hmac.New(sha512.New, []byte(slip10Curve))
	mac.Write(seed)
	sum := mac.Sum(nil)
	key, chainCode = sum[:32], sum[32:]

	for _, el := range path {
		if el < HardenedOffset {
			return nil, nil, fmt.Errorf("ed25519 path %s has a non-hardened element", path)
		}
		var data [1 + 32 + 4]byte
		copy(data[1:33], key)
		binary.BigEndian.PutUint32(data[33:], el)

		mac = hmac.New(sha512.New, chainCode)
		mac.Write(data[:])
		sum = mac.Sum(nil)
		SecureClear(key)
		key, chainCode = sum[:32], sum[32:]
	}
	return key, chainCode, nil
}
