// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"
)

const (
	// BpsDenominator is the fee basis-points denominator (10000 = 100%).
	BpsDenominator = 10000

	// MaxFeeBps is the hard ceiling on a pool's swap fee (10%).
	MaxFeeBps = 1000

	// FlashLoanFeeBps is the flash loan fee (9 bps).
	FlashLoanFeeBps = 9

	// MinimumLiquidity is permanently burned on the first deposit into a
	// pool so its share price cannot be manipulated by a near-zero seed.
	MinimumLiquidity = 1000
)

var (
	ErrExchangePaused       = errors.New("exchange paused")
	ErrReentrantCall        = errors.New("reentrant call")
	ErrNotOwner             = errors.New("caller is not the owner")
	ErrZeroAmount           = errors.New("amount must be positive")
	ErrIdenticalAssets      = errors.New("pool assets must differ")
	ErrFeeTooHigh           = errors.New("fee rate above ceiling")
	ErrPoolExists           = errors.New("pool already exists")
	ErrPoolNotFound         = errors.New("pool not found")
	ErrPoolInactive         = errors.New("pool is deactivated")
	ErrAssetNotInPool       = errors.New("asset not in pool")
	ErrInsufficientShares   = errors.New("insufficient shares")
	ErrInsufficientMinted   = errors.New("minted shares below minimum")
	ErrInsufficientOutput   = errors.New("output below minimum")
	ErrInsufficientReserves = errors.New("insufficient reserves")
	ErrFlashLoanNotRepaid   = errors.New("flash loan not repaid")
	ErrInvariantViolated    = errors.New("constant product decreased")
	ErrPositionNotFound     = errors.New("position not found")
)

// Pool holds the per-pair reserve state. Assets are stored in canonical
// (byte-sorted) order; the invariant product Reserve0*Reserve1 never
// decreases across a swap.
type Pool struct {
	ID                 common.Hash    `json:"id"`
	Asset0             common.Address `json:"asset0"`
	Asset1             common.Address `json:"asset1"`
	Reserve0           *big.Int       `json:"reserve0"`
	Reserve1           *big.Int       `json:"reserve1"`
	TotalShares        *big.Int       `json:"totalShares"`
	FeeRateBps         uint32         `json:"feeRateBps"`
	Active             bool           `json:"active"`
	AccumulatedFees0   *big.Int       `json:"accumulatedFees0"`
	AccumulatedFees1   *big.Int       `json:"accumulatedFees1"`
	RewardRatePerShare *big.Int       `json:"rewardRatePerShare"` // reward units per share-second
	CreatedAt          uint64         `json:"createdAt"`
}

// Position is one account's stake in one pool.
type Position struct {
	Owner       common.Address `json:"owner"`
	PoolID      common.Hash    `json:"poolId"`
	Shares      *big.Int       `json:"shares"`
	LastHarvest uint64         `json:"lastHarvest"` // unix seconds
	Accrued     *big.Int       `json:"accrued"`     // accrued but unharvested reward
}

type positionKey struct {
	pool  common.Hash
	owner common.Address
}

// AssetLedger is the fungible-asset interface the exchange settles against.
// Snapshot/RevertToSnapshot give flash loans their all-or-nothing behavior.
type AssetLedger interface {
	Transfer(asset, from, to common.Address, amount *big.Int) error
	TransferFrom(asset, spender, from, to common.Address, amount *big.Int) error
	BalanceOf(asset, account common.Address) *big.Int
	Snapshot() int
	RevertToSnapshot(id int) error
}

// FlashBorrower is the caller-supplied logic a flash loan hands control to.
// It runs with the loan already in the borrower's balance and must return the
// custody balance to at least its prior level plus fee before returning.
type FlashBorrower interface {
	OnFlashLoan(initiator, asset common.Address, amount, fee *big.Int, payload []byte) error
}
