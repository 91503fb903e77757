package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TxKind is the kind of state-changing call.
type TxKind string

const (
	TxApprove TxKind = "approve"
	TxSwap    TxKind = "swap"
)

// TxStatus is the lifecycle of a submitted transaction.
type TxStatus string

const (
	TxSubmitted TxStatus = "submitted"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// Terminal reports whether no further transitions follow.
func (s TxStatus) Terminal() bool {
	return s == TxConfirmed || s == TxFailed
}

// PendingTransaction tracks a submitted approve or swap.
type PendingTransaction struct {
	Kind        TxKind         `json:"kind"`
	Token       common.Address `json:"token"`
	Hash        common.Hash    `json:"hash"`
	Status      TxStatus       `json:"status"`
	RawAmount   *big.Int       `json:"raw_amount"`
	BlockNumber uint64         `json:"block_number,omitempty"`
	Err         string         `json:"error,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Swap        *SwapEvent     `json:"swap,omitempty"`
}

// PendingKey identifies the tracking slot of a transaction.
type PendingKey struct {
	Kind  TxKind
	Token common.Address
}

// Key returns the tracking slot of the transaction.
func (p PendingTransaction) Key() PendingKey {
	return PendingKey{Kind: p.Kind, Token: p.Token}
}
