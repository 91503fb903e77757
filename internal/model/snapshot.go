package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Field identifies one independently cached TokenSnapshot value.
type Field uint8

const (
	FieldBalance Field = 1 << iota
	FieldDecimals
	FieldAllowance
	FieldWhitelisted
)

const (
	// FieldsOwner are the reads that depend on the connected owner.
	FieldsOwner = FieldBalance | FieldAllowance
	// FieldsAll is every snapshot field.
	FieldsAll = FieldBalance | FieldDecimals | FieldAllowance | FieldWhitelisted
)

// Has reports whether every field in other is set in f.
func (f Field) Has(other Field) bool {
	return f&other == other
}

func (f Field) String() string {
	switch f {
	case FieldBalance:
		return "balance"
	case FieldDecimals:
		return "decimals"
	case FieldAllowance:
		return "allowance"
	case FieldWhitelisted:
		return "whitelisted"
	default:
		return "fields"
	}
}

// SnapshotKey identifies the query a snapshot answers. The spender is
// always the swap contract and is not part of the key.
type SnapshotKey struct {
	Token common.Address
	Owner common.Address
}

// TokenSnapshot is a point-in-time read of on-chain token state. A nil
// field is unknown: not yet read, not readable without an owner, or failed.
type TokenSnapshot struct {
	Token        common.Address
	Owner        common.Address
	RawBalance   *big.Int
	Decimals     *uint8
	RawAllowance *big.Int
	Whitelisted  *bool

	// Failed marks fields whose most recent read errored.
	Failed Field
	// Seq increases with every refresh of the same key.
	Seq uint64
}

// Key returns the query key of the snapshot.
func (s TokenSnapshot) Key() SnapshotKey {
	return SnapshotKey{Token: s.Token, Owner: s.Owner}
}

// Known returns the set of fields with a value.
func (s TokenSnapshot) Known() Field {
	var known Field
	if s.RawBalance != nil {
		known |= FieldBalance
	}
	if s.Decimals != nil {
		known |= FieldDecimals
	}
	if s.RawAllowance != nil {
		known |= FieldAllowance
	}
	if s.Whitelisted != nil {
		known |= FieldWhitelisted
	}
	return known
}
