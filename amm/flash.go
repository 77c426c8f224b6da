// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/settlement/events"
)

// ExecuteFlashLoan lends amount of asset to the borrower for the duration of
// one callback. The custody balance is snapshotted before the outbound
// transfer; after the callback returns it must be at least balanceBefore+fee
// or every effect since the snapshot, the outbound transfer included, is
// rolled back. The loan either nets the exchange a non-negative fee or has no
// effect at all.
//
// The callback runs arbitrary, possibly hostile code. The locked flag stays
// set while it holds control so nested mutating calls on the exchange are
// rejected rather than allowed to observe a half-updated ledger.
func (e *Exchange) ExecuteFlashLoan(caller, asset common.Address, amount *big.Int, borrower FlashBorrower, payload []byte) error {
	e.mu.Lock()

	if err := e.enter(); err != nil {
		e.mu.Unlock()
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		e.mu.Unlock()
		return ErrZeroAmount
	}
	if borrower == nil {
		e.mu.Unlock()
		return ErrFlashLoanNotRepaid
	}

	balanceBefore := e.ledger.BalanceOf(asset, e.Custody)
	if balanceBefore.Cmp(amount) < 0 {
		e.mu.Unlock()
		return ErrInsufficientReserves
	}

	fee := feeOf(amount, e.FlashFeeBps)
	required := new(big.Int).Add(balanceBefore, fee)

	snap := e.ledger.Snapshot()
	if err := e.ledger.Transfer(asset, e.Custody, caller, amount); err != nil {
		e.mu.Unlock()
		return err
	}

	// Hand control to the borrower with the exchange marked busy. The mutex
	// is released so the callback can legitimately move funds through the
	// ledger; any attempt to reenter the exchange itself fails on the flag.
	e.locked = true
	e.mu.Unlock()

	cbErr := borrower.OnFlashLoan(caller, asset, amount, fee, payload)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.locked = false

	balanceAfter := e.ledger.BalanceOf(asset, e.Custody)
	if cbErr != nil || balanceAfter.Cmp(required) < 0 {
		_ = e.ledger.RevertToSnapshot(snap)
		if cbErr != nil {
			return cbErr
		}
		return ErrFlashLoanNotRepaid
	}

	if prev := e.FlashFees[asset]; prev != nil {
		prev.Add(prev, fee)
	} else {
		e.FlashFees[asset] = new(big.Int).Set(fee)
	}

	e.emitter.Emit(events.New(events.TypeFlashLoanExecuted, map[string]string{
		"caller": caller.Hex(),
		"asset":  asset.Hex(),
		"amount": amount.String(),
		"fee":    fee.String(),
	}))
	return nil
}
