// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"math/big"
	"time"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/settlement/events"
)

// Reward emission is an administrative parameter, not derived from trading
// fees; the two income streams are tracked separately.

// SetRewardRate sets a pool's reward rate in reward units per share-second.
func (e *Exchange) SetRewardRate(caller common.Address, poolID common.Hash, ratePerShare *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.enter(); err != nil {
		return err
	}
	if caller != e.Owner {
		return ErrNotOwner
	}
	if ratePerShare == nil || ratePerShare.Sign() < 0 {
		return ErrZeroAmount
	}
	pool := e.Pools[poolID]
	if pool == nil {
		return ErrPoolNotFound
	}
	pool.RewardRatePerShare = new(big.Int).Set(ratePerShare)

	e.emitter.Emit(events.New(events.TypeRewardRateUpdated, map[string]string{
		"pool": poolID.Hex(),
		"rate": ratePerShare.String(),
	}))
	return nil
}

// HarvestRewards settles the caller's accrued reward for a pool into their
// claimable balance and resets the harvest clock.
func (e *Exchange) HarvestRewards(caller common.Address, poolID common.Hash) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.enter(); err != nil {
		return nil, err
	}
	pool := e.Pools[poolID]
	if pool == nil {
		return nil, ErrPoolNotFound
	}
	pos := e.position(poolID, caller)
	if pos == nil {
		return nil, ErrPositionNotFound
	}

	e.settleRewards(pool, pos, uint64(time.Now().Unix()))
	harvested := pos.Accrued
	pos.Accrued = big.NewInt(0)

	if prev := e.Claimable[caller]; prev != nil {
		prev.Add(prev, harvested)
	} else {
		e.Claimable[caller] = new(big.Int).Set(harvested)
	}

	e.emitter.Emit(events.New(events.TypeRewardsHarvested, map[string]string{
		"pool":   poolID.Hex(),
		"owner":  caller.Hex(),
		"amount": harvested.String(),
	}))
	return harvested, nil
}

// ClaimableRewards returns the account's harvested, unclaimed balance.
func (e *Exchange) ClaimableRewards(account common.Address) *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if v := e.Claimable[account]; v != nil {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

// settleRewards accrues shares * elapsed * ratePerShare into the position and
// advances its harvest clock. Called before any change to the share count so
// accrual always reflects the shares actually held over the elapsed window.
// Callers hold e.mu.
func (e *Exchange) settleRewards(pool *Pool, pos *Position, now uint64) {
	if now <= pos.LastHarvest {
		return
	}
	elapsed := now - pos.LastHarvest
	pos.LastHarvest = now
	if pool.RewardRatePerShare.Sign() == 0 || pos.Shares.Sign() == 0 {
		return
	}
	owed := new(big.Int).Mul(pos.Shares, new(big.Int).SetUint64(elapsed))
	owed.Mul(owed, pool.RewardRatePerShare)
	pos.Accrued.Add(pos.Accrued, owed)
}
