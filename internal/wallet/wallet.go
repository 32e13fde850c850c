package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"

	"github.com/Klingon-tech/crosslock/internal/config"
	"github.com/Klingon-tech/crosslock/internal/ledger"
)

// BIP44 coin types.
const (
	PurposeBIP44   uint32 = 44
	CoinTypeEVM    uint32 = 60
	CoinTypeAVM    uint32 = 283
	HardenedOffset uint32 = hdkeychain.HardenedKeyStart
)

// DerivationPath is a BIP32 path below the master key. Hardened elements
// carry HardenedOffset.
type DerivationPath []uint32

// EVMPath returns m/44'/60'/account'/0/index.
func EVMPath(account, index uint32) DerivationPath {
	return DerivationPath{
		PurposeBIP44 + HardenedOffset,
		CoinTypeEVM + HardenedOffset,
		account + HardenedOffset,
		0,
		index,
	}
}

// AVMPath returns m/44'/283'/account'/0'/index'. ed25519 derivation only
// supports hardened children.
func AVMPath(account, index uint32) DerivationPath {
	return DerivationPath{
		PurposeBIP44 + HardenedOffset,
		CoinTypeAVM + HardenedOffset,
		account + HardenedOffset,
		HardenedOffset,
		index + HardenedOffset,
	}
}

func (p DerivationPath) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, el := range p {
		b.WriteByte('/')
		if el >= HardenedOffset {
			b.WriteString(strconv.FormatUint(uint64(el-HardenedOffset), 10))
			b.WriteByte('\'')
		} else {
			b.WriteString(strconv.FormatUint(uint64(el), 10))
		}
	}
	return b.String()
}

// Wallet derives the relayer's keys from a BIP39 seed.
type Wallet struct {
	seed      []byte
	masterKey *hdkeychain.ExtendedKey
	network   config.NetworkType

	mu    sync.Mutex
	cache map[string]*hdkeychain.ExtendedKey
}

// GenerateMnemonic generates a new 24-word BIP39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// ValidateMnemonic checks the word list and checksum of a mnemonic.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// NewFromMnemonic creates a wallet from a BIP39 mnemonic and optional
// passphrase.
func NewFromMnemonic(mnemonic, passphrase string, network config.NetworkType) (*Wallet, error) {
	if !ValidateMnemonic(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	return NewFromSeed(bip39.NewSeed(mnemonic, passphrase), network)
}

// NewFromSeed creates a wallet from a raw BIP39 seed.
func NewFromSeed(seed []byte, network config.NetworkType) (*Wallet, error) {
	// The extended-key version bytes follow the network; derived keys do not.
	params := &chaincfg.MainNetParams
	if network != config.Mainnet {
		params = &chaincfg.TestNet3Params
	}

	masterKey, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	return &Wallet{
		seed:      append([]byte(nil), seed...),
		masterKey: masterKey,
		network:   network,
		cache:     make(map[string]*hdkeychain.ExtendedKey),
	}, nil
}

// CreateKeystore generates a fresh mnemonic, stores it encrypted at path and
// returns the wallet together with the mnemonic for backup.
func CreateKeystore(path, password string, network config.NetworkType) (*Wallet, string, error) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		return nil, "", err
	}
	if err := ImportKeystore(path, password, mnemonic); err != nil {
		return nil, "", err
	}
	w, err := NewFromMnemonic(mnemonic, "", network)
	if err != nil {
		return nil, "", err
	}
	return w, mnemonic, nil
}

// ImportKeystore stores an existing mnemonic encrypted at path.
func ImportKeystore(path, password, mnemonic string) error {
	encrypted, err := EncryptMnemonic(mnemonic, password)
	if err != nil {
		return err
	}
	return SaveEncryptedSeed(encrypted, path)
}

// OpenKeystore decrypts the keystore at path.
func OpenKeystore(path, password string, network config.NetworkType) (*Wallet, error) {
	encrypted, err := LoadEncryptedSeed(path)
	if err != nil {
		return nil, err
	}
	mnemonic, err := DecryptMnemonic(encrypted, password)
	if err != nil {
		return nil, err
	}
	return NewFromMnemonic(mnemonic, "", network)
}

// Network returns the wallet's network.
func (w *Wallet) Network() config.NetworkType {
	return w.network
}

// DeriveKey derives the secp256k1 extended key at path.
func (w *Wallet) DeriveKey(path DerivationPath) (*hdkeychain.ExtendedKey, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := path.String()
	if key, ok := w.cache[id]; ok {
		return key, nil
	}

	key := w.masterKey
	for depth, el := range path {
		var err error
		key, err = key.Derive(el)
		if err != nil {
			return nil, fmt.Errorf("failed to derive %s at depth %d: %w", id, depth+1, err)
		}
	}
	w.cache[id] = key
	return key, nil
}

// EVMKey returns the EVM signing key at m/44'/60'/account'/0/index.
func (w *Wallet) EVMKey(account, index uint32) (*ecdsa.PrivateKey, error) {
	key, err := w.DeriveKey(EVMPath(account, index))
	if err != nil {
		return nil, err
	}
	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get private key: %w", err)
	}
	return crypto.ToECDSA(priv.Serialize())
}

// EVMIdentity returns the address of EVMKey(account, index).
func (w *Wallet) EVMIdentity(account, index uint32) (ledger.Identity, error) {
	key, err := w.DeriveKey(EVMPath(account, index))
	if err != nil {
		return "", err
	}
	pub, err := key.ECPubKey()
	if err != nil {
		return "", fmt.Errorf("failed to get public key: %w", err)
	}
	return ledger.EVMIdentity(PublicKeyToEVMAddress(pub)), nil
}

// ClearCache drops derived keys from memory.
func (w *Wallet) ClearCache() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cache = make(map[string]*hdkeychain.ExtendedKey)
}
