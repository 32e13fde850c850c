package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Klingon-tech/crosslock/internal/config"
	"github.com/Klingon-tech/crosslock/internal/ledger"
)

// ErrInvalidSignature is returned when a signature cannot be recovered.
var ErrInvalidSignature = errors.New("invalid signature")

// PublicKeyToEVMAddress converts a secp256k1 public key to an EVM address.
func PublicKeyToEVMAddress(pub *btcec.PublicKey) common.Address {
	return crypto.PubkeyToAddress(*pub.ToECDSA())
}

// PersonalSign signs message with the EIP-191 personal_sign prefix. The
// recovery byte is 27 or 28, as wallets produce it.
func PersonalSign(key *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverPersonalSigner returns the address that produced a personal_sign
// signature over message. Recovery bytes 0/1 and 27/28 are both accepted.
func RecoverPersonalSigner(message, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	normalized := append([]byte(nil), sig...)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	if normalized[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, sig[crypto.RecoveryIDOffset])
	}

	pub, err := crypto.SigToPub(accounts.TextHash(message), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SignBid signs the bid message for auctionID.
func SignBid(key *ecdsa.PrivateKey, auctionID uint64) ([]byte, error) {
	return PersonalSign(key, config.BidMessage(auctionID))
}

// RecoverBidder returns the identity that signed a bid on auctionID.
func RecoverBidder(auctionID uint64, sig []byte) (ledger.Identity, error) {
	addr, err := RecoverPersonalSigner(config.BidMessage(auctionID), sig)
	if err != nil {
		return "", err
	}
	return ledger.EVMIdentity(addr), nil
}

// PrivateKeyFromHex parses a hex private key, with or without 0x.
func PrivateKeyFromHex(s string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}
