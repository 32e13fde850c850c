// Package ledger defines the host-ledger primitives escrow and auction logic
// runs against: account identities, the ledger clock, the funding-transfer
// and outbound-payment collaborators, and an in-memory Bank implementing them.
package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Identity is an account address on one ledger. EVM identities are stored in
// EIP-55 checksum form, AVM identities in their base32 form.
type Identity string

// ErrInvalidIdentity is returned when an address cannot be parsed.
var ErrInvalidIdentity = errors.New("invalid identity")

// IsZero reports whether id is empty.
func (id Identity) IsZero() bool {
	return id == ""
}

// String implements fmt.Stringer.
func (id Identity) String() string {
	return string(id)
}

// Short returns a shortened form for log lines.
func (id Identity) Short() string {
	s := string(id)
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

// EVMIdentity converts an EVM address.
func EVMIdentity(addr common.Address) Identity {
	return Identity(addr.Hex())
}

// ParseIdentity accepts either a 0x-prefixed EVM address or an AVM address.
func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidIdentity)
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if !common.IsHexAddress(s) {
			return "", fmt.Errorf("%w: %s", ErrInvalidIdentity, s)
		}
		return EVMIdentity(common.HexToAddress(s)), nil
	}
	if _, err := DecodeAVMAddress(s); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return Identity(s), nil
}

// IsEVM reports whether id is an EVM address.
func (id Identity) IsEVM() bool {
	return strings.HasPrefix(string(id), "0x") && common.IsHexAddress(string(id))
}

// EVMAddress returns id as an EVM address. The result is the zero address
// when id is not an EVM identity.
func (id Identity) EVMAddress() common.Address {
	if !id.IsEVM() {
		return common.Address{}
	}
	return common.HexToAddress(string(id))
}

// FundingTransfer is the value transfer that must accompany escrow creation
// in the same atomic operation.
type FundingTransfer struct {
	Sender   Identity `json:"sender"`
	Receiver Identity `json:"receiver"`
	Amount   uint64   `json:"amount"`
}

// Funder settles a funding transfer into an escrow account.
type Funder interface {
	Collect(deposit FundingTransfer) error
}

// Payer issues one outbound value transfer.
type Payer interface {
	Pay(from, to Identity, amount uint64) error
}
