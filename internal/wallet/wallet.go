package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrReadOnly is returned when signing with a wallet that holds no key.
var ErrReadOnly = errors.New("wallet is read-only")

// Wallet is the source of truth for the connected owner.
type Wallet interface {
	// Owner returns the connected address, or false when disconnected.
	Owner() (common.Address, bool)
}

// Signer is a Wallet that can sign transactions for its owner.
type Signer interface {
	Wallet
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// KeyWallet signs with a local private key.
type KeyWallet struct {
	mu        sync.RWMutex
	key       *ecdsa.PrivateKey
	address   common.Address
	signer    types.Signer
	connected bool
}

// NewKeyWallet parses a hex private key for chainID.
func NewKeyWallet(hexKey string, chainID *big.Int) (*KeyWallet, error) {
	if chainID == nil {
		return nil, fmt.Errorf("chain id is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &KeyWallet{
		key:       key,
		address:   crypto.PubkeyToAddress(key.PublicKey),
		signer:    types.LatestSignerForChainID(chainID),
		connected: true,
	}, nil
}

// Owner returns the key's address while connected.
func (w *KeyWallet) Owner() (common.Address, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.address, w.connected
}

// SignTx signs tx with the wallet key.
func (w *KeyWallet) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.connected {
		return nil, fmt.Errorf("sign transaction: wallet disconnected")
	}
	return types.SignTx(tx, w.signer, w.key)
}

// Disconnect drops the session connection; the key is kept.
func (w *KeyWallet) Disconnect() {
	w.mu.Lock()
	w.connected = false
	w.mu.Unlock()
}

// Connect restores the session connection.
func (w *KeyWallet) Connect() {
	w.mu.Lock()
	w.connected = true
	w.mu.Unlock()
}

// WatchWallet observes an address without being able to sign.
type WatchWallet struct {
	address common.Address
}

// NewWatchWallet returns a read-only wallet for address. The zero address
// is a disconnected wallet.
func NewWatchWallet(address common.Address) *WatchWallet {
	return &WatchWallet{address: address}
}

// Owner returns the watched address.
func (w *WatchWallet) Owner() (common.Address, bool) {
	return w.address, w.address != (common.Address{})
}

// SignTx always fails.
func (w *WatchWallet) SignTx(*types.Transaction) (*types.Transaction, error) {
	return nil, ErrReadOnly
}
