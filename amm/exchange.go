// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"

	"github.com/luxfi/settlement/events"
)

// Exchange is the singleton AMM. All pools live in this one component, keyed
// by the BLAKE3 hash of their canonically ordered asset pair.
//
// Every public operation runs under the exchange mutex as one atomic unit.
// The locked flag rejects reentrant mutating calls while a flash loan
// callback holds control.
type Exchange struct {
	Pools     map[common.Hash]*Pool
	Positions map[positionKey]*Position

	// Claimable accumulates harvested-but-unclaimed reward units per account.
	Claimable map[common.Address]*big.Int

	// FlashFees tracks flash loan income per asset, kept apart from the
	// swap fees that accrue inside pool reserves.
	FlashFees map[common.Address]*big.Int

	Owner       common.Address
	Custody     common.Address
	FlashFeeBps uint32
	Paused      bool

	locked  bool
	ledger  AssetLedger
	emitter events.Emitter

	mu sync.RWMutex
}

// ExchangeConfig carries construction parameters.
type ExchangeConfig struct {
	Owner       common.Address
	Custody     common.Address
	FlashFeeBps uint32 // 0 means the default FlashLoanFeeBps
	Ledger      AssetLedger
	Emitter     events.Emitter
}

// NewExchange creates an empty exchange.
func NewExchange(cfg ExchangeConfig) (*Exchange, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("amm: nil asset ledger")
	}
	if cfg.Emitter == nil {
		cfg.Emitter = events.Nop()
	}
	if cfg.FlashFeeBps == 0 {
		cfg.FlashFeeBps = FlashLoanFeeBps
	}
	if cfg.FlashFeeBps > MaxFeeBps {
		return nil, ErrFeeTooHigh
	}
	return &Exchange{
		Pools:       make(map[common.Hash]*Pool),
		Positions:   make(map[positionKey]*Position),
		Claimable:   make(map[common.Address]*big.Int),
		FlashFees:   make(map[common.Address]*big.Int),
		Owner:       cfg.Owner,
		Custody:     cfg.Custody,
		FlashFeeBps: cfg.FlashFeeBps,
		ledger:      cfg.Ledger,
		emitter:     cfg.Emitter,
	}, nil
}

// PoolID derives the pool identifier for an asset pair, in either order.
func PoolID(assetA, assetB common.Address) common.Hash {
	a0, a1 := sortAssets(assetA, assetB)
	h := blake3.New()
	h.Write(a0.Bytes())
	h.Write(a1.Bytes())
	return common.BytesToHash(h.Sum(nil)[:common.HashLength])
}

func sortAssets(a, b common.Address) (common.Address, common.Address) {
	if a.Cmp(b) < 0 {
		return a, b
	}
	return b, a
}

// CreatePool registers a new pair. Owner-only; self-paired assets, duplicate
// pairs and fees above the ceiling are rejected.
func (e *Exchange) CreatePool(caller, assetA, assetB common.Address, feeRateBps uint32) (*Pool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.enter(); err != nil {
		return nil, err
	}
	if caller != e.Owner {
		return nil, ErrNotOwner
	}
	if assetA == assetB {
		return nil, ErrIdenticalAssets
	}
	if feeRateBps > MaxFeeBps {
		return nil, ErrFeeTooHigh
	}

	id := PoolID(assetA, assetB)
	if e.Pools[id] != nil {
		return nil, ErrPoolExists
	}

	a0, a1 := sortAssets(assetA, assetB)
	pool := &Pool{
		ID:                 id,
		Asset0:             a0,
		Asset1:             a1,
		Reserve0:           big.NewInt(0),
		Reserve1:           big.NewInt(0),
		TotalShares:        big.NewInt(0),
		FeeRateBps:         feeRateBps,
		Active:             true,
		AccumulatedFees0:   big.NewInt(0),
		AccumulatedFees1:   big.NewInt(0),
		RewardRatePerShare: big.NewInt(0),
		CreatedAt:          uint64(time.Now().Unix()),
	}
	e.Pools[id] = pool

	e.emitter.Emit(events.New(events.TypePoolCreated, map[string]string{
		"id":     id.Hex(),
		"asset0": a0.Hex(),
		"asset1": a1.Hex(),
		"feeBps": fmt.Sprintf("%d", feeRateBps),
	}))
	return pool, nil
}

// SetPoolActive deactivates or reactivates a pool. Pools are never deleted.
func (e *Exchange) SetPoolActive(caller common.Address, poolID common.Hash, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.enter(); err != nil {
		return err
	}
	if caller != e.Owner {
		return ErrNotOwner
	}
	pool := e.Pools[poolID]
	if pool == nil {
		return ErrPoolNotFound
	}
	pool.Active = active
	return nil
}

// AddLiquidity deposits amount0/amount1 (in the pool's canonical asset
// order) and mints proportional shares. The first deposit into an empty pool
// mints floor(sqrt(amount0*amount1)) - MinimumLiquidity, with the floor
// burned forever. Later deposits mint the minimum of the two reserve ratios;
// any excess over the balanced ratio is not refunded.
func (e *Exchange) AddLiquidity(caller common.Address, poolID common.Hash, amount0, amount1, minShares *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.enter(); err != nil {
		return nil, err
	}
	pool := e.Pools[poolID]
	if pool == nil {
		return nil, ErrPoolNotFound
	}
	if !pool.Active {
		return nil, ErrPoolInactive
	}
	if amount0 == nil || amount0.Sign() <= 0 || amount1 == nil || amount1.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	var minted *big.Int
	if pool.TotalShares.Sign() == 0 {
		liquidity := sqrtFloor(new(big.Int).Mul(amount0, amount1))
		minted = new(big.Int).Sub(liquidity, big.NewInt(MinimumLiquidity))
		if minted.Sign() <= 0 {
			return nil, ErrInsufficientMinted
		}
	} else {
		share0 := mulDiv(amount0, pool.TotalShares, pool.Reserve0)
		share1 := mulDiv(amount1, pool.TotalShares, pool.Reserve1)
		minted = new(big.Int).Set(minBig(share0, share1))
		if minted.Sign() <= 0 {
			return nil, ErrInsufficientMinted
		}
	}
	if minShares != nil && minted.Cmp(minShares) < 0 {
		return nil, ErrInsufficientMinted
	}

	snap := e.ledger.Snapshot()
	if err := e.ledger.TransferFrom(pool.Asset0, e.Custody, caller, e.Custody, amount0); err != nil {
		return nil, err
	}
	if err := e.ledger.TransferFrom(pool.Asset1, e.Custody, caller, e.Custody, amount1); err != nil {
		_ = e.ledger.RevertToSnapshot(snap)
		return nil, err
	}

	now := uint64(time.Now().Unix())
	pos := e.position(poolID, caller)
	if pos == nil {
		pos = &Position{
			Owner:       caller,
			PoolID:      poolID,
			Shares:      big.NewInt(0),
			LastHarvest: now,
			Accrued:     big.NewInt(0),
		}
		e.Positions[positionKey{poolID, caller}] = pos
	} else {
		e.settleRewards(pool, pos, now)
	}
	pos.Shares.Add(pos.Shares, minted)

	pool.Reserve0.Add(pool.Reserve0, amount0)
	pool.Reserve1.Add(pool.Reserve1, amount1)
	if pool.TotalShares.Sign() == 0 {
		// First deposit: total includes the burned floor.
		pool.TotalShares.Add(minted, big.NewInt(MinimumLiquidity))
	} else {
		pool.TotalShares.Add(pool.TotalShares, minted)
	}

	e.emitter.Emit(events.New(events.TypeLiquidityAdded, map[string]string{
		"pool":    poolID.Hex(),
		"owner":   caller.Hex(),
		"amount0": amount0.String(),
		"amount1": amount1.String(),
		"shares":  minted.String(),
	}))
	return minted, nil
}

// RemoveLiquidity burns shares and pays out both assets exactly
// proportionally to the share of TotalShares being burned.
func (e *Exchange) RemoveLiquidity(caller common.Address, poolID common.Hash, shares, minAmount0, minAmount1 *big.Int) (*big.Int, *big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.enter(); err != nil {
		return nil, nil, err
	}
	pool := e.Pools[poolID]
	if pool == nil {
		return nil, nil, ErrPoolNotFound
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, nil, ErrZeroAmount
	}
	pos := e.position(poolID, caller)
	if pos == nil {
		return nil, nil, ErrPositionNotFound
	}
	if pos.Shares.Cmp(shares) < 0 {
		return nil, nil, ErrInsufficientShares
	}

	out0 := mulDiv(shares, pool.Reserve0, pool.TotalShares)
	out1 := mulDiv(shares, pool.Reserve1, pool.TotalShares)
	if minAmount0 != nil && out0.Cmp(minAmount0) < 0 {
		return nil, nil, ErrInsufficientOutput
	}
	if minAmount1 != nil && out1.Cmp(minAmount1) < 0 {
		return nil, nil, ErrInsufficientOutput
	}

	snap := e.ledger.Snapshot()
	if err := e.ledger.Transfer(pool.Asset0, e.Custody, caller, out0); err != nil {
		return nil, nil, err
	}
	if err := e.ledger.Transfer(pool.Asset1, e.Custody, caller, out1); err != nil {
		_ = e.ledger.RevertToSnapshot(snap)
		return nil, nil, err
	}

	e.settleRewards(pool, pos, uint64(time.Now().Unix()))
	pos.Shares.Sub(pos.Shares, shares)
	pool.TotalShares.Sub(pool.TotalShares, shares)
	pool.Reserve0.Sub(pool.Reserve0, out0)
	pool.Reserve1.Sub(pool.Reserve1, out1)

	e.emitter.Emit(events.New(events.TypeLiquidityRemoved, map[string]string{
		"pool":    poolID.Hex(),
		"owner":   caller.Hex(),
		"shares":  shares.String(),
		"amount0": out0.String(),
		"amount1": out1.String(),
	}))
	return out0, out1, nil
}

// Swap trades amountIn of tokenIn for the other pool asset. The fee is taken
// from the input leg and stays in the reserves, so the invariant product
// never decreases; that is re-checked as a hard postcondition.
func (e *Exchange) Swap(caller common.Address, poolID common.Hash, tokenIn common.Address, amountIn, minAmountOut *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.enter(); err != nil {
		return nil, err
	}
	pool := e.Pools[poolID]
	if pool == nil {
		return nil, ErrPoolNotFound
	}
	if !pool.Active {
		return nil, ErrPoolInactive
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	var reserveIn, reserveOut *big.Int
	var tokenOut common.Address
	switch tokenIn {
	case pool.Asset0:
		reserveIn, reserveOut, tokenOut = pool.Reserve0, pool.Reserve1, pool.Asset1
	case pool.Asset1:
		reserveIn, reserveOut, tokenOut = pool.Reserve1, pool.Reserve0, pool.Asset0
	default:
		return nil, ErrAssetNotInPool
	}
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return nil, ErrInsufficientReserves
	}

	out := swapOutput(reserveIn, reserveOut, amountIn, pool.FeeRateBps)
	if minAmountOut != nil && out.Cmp(minAmountOut) < 0 {
		return nil, ErrInsufficientOutput
	}
	if out.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientReserves
	}

	kBefore := new(big.Int).Mul(reserveIn, reserveOut)
	newIn := new(big.Int).Add(reserveIn, amountIn)
	newOut := new(big.Int).Sub(reserveOut, out)
	kAfter := new(big.Int).Mul(newIn, newOut)
	if kAfter.Cmp(kBefore) < 0 {
		return nil, ErrInvariantViolated
	}

	snap := e.ledger.Snapshot()
	if err := e.ledger.TransferFrom(tokenIn, e.Custody, caller, e.Custody, amountIn); err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(tokenOut, e.Custody, caller, out); err != nil {
		_ = e.ledger.RevertToSnapshot(snap)
		return nil, err
	}

	reserveIn.Set(newIn)
	reserveOut.Set(newOut)
	fee := feeOf(amountIn, pool.FeeRateBps)
	if tokenIn == pool.Asset0 {
		pool.AccumulatedFees0.Add(pool.AccumulatedFees0, fee)
	} else {
		pool.AccumulatedFees1.Add(pool.AccumulatedFees1, fee)
	}

	e.emitter.Emit(events.New(events.TypeSwapExecuted, map[string]string{
		"pool":      poolID.Hex(),
		"caller":    caller.Hex(),
		"tokenIn":   tokenIn.Hex(),
		"amountIn":  amountIn.String(),
		"tokenOut":  tokenOut.Hex(),
		"amountOut": out.String(),
		"fee":       fee.String(),
	}))
	return out, nil
}

// Quote computes the output of a swap without mutating state.
func (e *Exchange) Quote(poolID common.Hash, tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pool := e.Pools[poolID]
	if pool == nil {
		return nil, ErrPoolNotFound
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	var reserveIn, reserveOut *big.Int
	switch tokenIn {
	case pool.Asset0:
		reserveIn, reserveOut = pool.Reserve0, pool.Reserve1
	case pool.Asset1:
		reserveIn, reserveOut = pool.Reserve1, pool.Reserve0
	default:
		return nil, ErrAssetNotInPool
	}
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return nil, ErrInsufficientReserves
	}
	return swapOutput(reserveIn, reserveOut, amountIn, pool.FeeRateBps), nil
}

// Pause stops all mutating operations. Only the locked flag is checked here,
// not the full enter() guard: Unpause must stay callable on a paused
// exchange.
func (e *Exchange) Pause(caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.locked {
		return ErrReentrantCall
	}
	if caller != e.Owner {
		return ErrNotOwner
	}
	e.Paused = true
	e.emitter.Emit(events.New(events.TypeExchangePaused, nil))
	return nil
}

// Unpause resumes normal operation.
func (e *Exchange) Unpause(caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.locked {
		return ErrReentrantCall
	}
	if caller != e.Owner {
		return ErrNotOwner
	}
	e.Paused = false
	e.emitter.Emit(events.New(events.TypeExchangeUnpaused, nil))
	return nil
}

// Busy reports whether a flash-loan callback currently holds control. Other
// components sharing the vault consult this so a callback cannot commit
// state against custody funds that may still be rolled back.
func (e *Exchange) Busy() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.locked
}

// Read-only queries.

// GetPool returns the pool for id.
func (e *Exchange) GetPool(id common.Hash) (*Pool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pool := e.Pools[id]
	if pool == nil {
		return nil, ErrPoolNotFound
	}
	return pool, nil
}

// GetPosition returns owner's position in a pool.
func (e *Exchange) GetPosition(poolID common.Hash, owner common.Address) (*Position, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pos := e.position(poolID, owner)
	if pos == nil {
		return nil, ErrPositionNotFound
	}
	return pos, nil
}

// enter is the shared entry guard for mutating operations. Callers hold e.mu.
func (e *Exchange) enter() error {
	if e.locked {
		return ErrReentrantCall
	}
	if e.Paused {
		return ErrExchangePaused
	}
	return nil
}

func (e *Exchange) position(poolID common.Hash, owner common.Address) *Position {
	return e.Positions[positionKey{poolID, owner}]
}
