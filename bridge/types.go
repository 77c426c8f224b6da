// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"
)

// BpsDenominator is the fee basis-points denominator (10000 = 100%).
const BpsDenominator = 10000

// MaxDepositFeeBps caps the configurable deposit fee at 10%.
const MaxDepositFeeBps = 1000

var (
	ErrBridgePaused           = errors.New("bridge paused")
	ErrZeroAmount             = errors.New("amount must be positive")
	ErrEmptyRemoteAddress     = errors.New("remote ledger address is empty")
	ErrFeeTooHigh             = errors.New("fee rate above ceiling")
	ErrNotOwner               = errors.New("caller is not the owner")
	ErrAlreadyProcessed       = errors.New("withdrawal already processed")
	ErrInsufficientSignatures = errors.New("signature count below threshold")
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrUnauthorizedSigner     = errors.New("signer is not a validator")
	ErrDuplicateSigner        = errors.New("duplicate signer")
	ErrValidatorExists        = errors.New("validator already registered")
	ErrValidatorNotFound      = errors.New("validator not found")
	ErrThresholdUnderflow     = errors.New("validator set would drop below threshold")
	ErrInvalidThreshold       = errors.New("threshold must be positive and at most the set size")
	ErrRecordNotFound         = errors.New("record not found")
	ErrReentrantCall          = errors.New("reentrant call")
)

// DepositRecord is the append-only audit entry for one deposit bound for the
// remote ledger. It is never mutated after creation.
type DepositRecord struct {
	ID                 common.Hash    `json:"id"`
	Depositor          common.Address `json:"depositor"`
	Asset              common.Address `json:"asset"`
	Amount             *big.Int       `json:"amount"` // net of fee
	Fee                *big.Int       `json:"fee"`
	DestinationAddress string         `json:"destinationAddress"` // stored verbatim
	Sequence           uint64         `json:"sequence"`
	Processed          bool           `json:"processed"`
	Timestamp          uint64         `json:"timestamp"`
}

// WithdrawalRecord is created exactly once per accepted withdrawal. Its ID is
// derived deterministically from the withdrawal parameters, so a resubmission
// of identical parameters collides with the existing record.
type WithdrawalRecord struct {
	ID            common.Hash    `json:"id"`
	Recipient     common.Address `json:"recipient"`
	Asset         common.Address `json:"asset"`
	Amount        *big.Int       `json:"amount"`
	SourceAddress string         `json:"sourceAddress"`
	Sequence      uint64         `json:"sequence"`
	Processed     bool           `json:"processed"`
	Timestamp     uint64         `json:"timestamp"`
}

// AssetLedger is the fungible-asset interface the bridge settles against.
// A failure from the ledger aborts the whole calling operation. Snapshot and
// RevertToSnapshot let the gateway undo transfers when a later step of the
// same operation fails.
type AssetLedger interface {
	Transfer(asset, from, to common.Address, amount *big.Int) error
	TransferFrom(asset, spender, from, to common.Address, amount *big.Int) error
	BalanceOf(asset, account common.Address) *big.Int
	Snapshot() int
	RevertToSnapshot(id int) error
}

// BusySource reports whether a cooperating component is mid-operation with
// funds it may still roll back. A gateway configured with one rejects all
// mutations while the source is busy, so a flash-loan callback cannot commit
// bridge records against custody balances that revert when the loan
// defaults.
type BusySource interface {
	Busy() bool
}

// SignerScheme recovers a signer identity from a signature over a digest. The
// concrete scheme (ECDSA, Ed25519, ...) is swappable without touching the
// quorum logic.
type SignerScheme interface {
	RecoverSigner(digest common.Hash, sig []byte) (common.Address, error)
}
