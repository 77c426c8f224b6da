// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package token

import (
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// Vault is a multi-asset fungible ledger. Each asset is identified by an
// address and carries per-account balances and ERC20-style allowances.
// Balance mutations are journaled so a caller can take a snapshot and roll
// every later mutation back, which is what gives flash loans their
// all-or-nothing behavior.
type Vault struct {
	// Balances maps asset -> account -> balance.
	Balances map[common.Address]map[common.Address]*uint256.Int

	// Allowances maps asset -> owner -> spender -> remaining allowance.
	Allowances map[common.Address]map[common.Address]map[common.Address]*uint256.Int

	journal []journalEntry

	mu sync.RWMutex
}

// journalEntry records the previous value of a single cell so it can be
// restored on revert.
type journalEntry struct {
	asset   common.Address
	owner   common.Address
	spender common.Address // zero for balance entries
	prev    *uint256.Int
	isAllow bool
}

// NewVault creates an empty ledger.
func NewVault() *Vault {
	return &Vault{
		Balances:   make(map[common.Address]map[common.Address]*uint256.Int),
		Allowances: make(map[common.Address]map[common.Address]map[common.Address]*uint256.Int),
	}
}

// Mint credits newly issued units of asset to an account. It exists for
// bootstrapping custody and for test fixtures; it is not reachable from the
// settlement cores.
func (v *Vault) Mint(asset, to common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	u, err := toU256(amount)
	if err != nil {
		return err
	}
	bal := v.balance(asset, to)
	next, overflow := new(uint256.Int).AddOverflow(bal, u)
	if overflow {
		return ErrBalanceOverflow
	}
	v.setBalance(asset, to, next)
	return nil
}

// BalanceOf returns the current balance of account in asset.
func (v *Vault) BalanceOf(asset, account common.Address) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.balance(asset, account).ToBig()
}

// Transfer moves amount of asset from one account to another.
func (v *Vault) Transfer(asset, from, to common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.transfer(asset, from, to, amount)
}

// Approve sets spender's allowance over owner's asset balance.
func (v *Vault) Approve(asset, owner, spender common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	u, err := toU256(amount)
	if err != nil {
		return err
	}
	v.setAllowance(asset, owner, spender, u)
	return nil
}

// Allowance returns the remaining allowance of spender over owner's asset.
func (v *Vault) Allowance(asset, owner, spender common.Address) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.allowance(asset, owner, spender).ToBig()
}

// TransferFrom moves amount of asset from `from` to `to` using spender's
// allowance, decrementing it.
func (v *Vault) TransferFrom(asset, spender, from, to common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	u, err := toU256(amount)
	if err != nil {
		return err
	}
	allowed := v.allowance(asset, from, spender)
	if allowed.Lt(u) {
		return ErrInsufficientAllowance
	}
	if err := v.transfer(asset, from, to, amount); err != nil {
		return err
	}
	v.setAllowance(asset, from, spender, new(uint256.Int).Sub(allowed, u))
	return nil
}

// Snapshot returns an identifier for the current ledger state. Passing it to
// RevertToSnapshot undoes every mutation made after this call.
func (v *Vault) Snapshot() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.journal)
}

// RevertToSnapshot rolls the ledger back to a previously taken snapshot.
func (v *Vault) RevertToSnapshot(id int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if id < 0 || id > len(v.journal) {
		return ErrInvalidSnapshot
	}
	for i := len(v.journal) - 1; i >= id; i-- {
		e := v.journal[i]
		if e.isAllow {
			v.restoreAllowance(e)
		} else {
			v.restoreBalance(e)
		}
	}
	v.journal = v.journal[:id]
	return nil
}

// Internal helpers. All assume v.mu is held.

func (v *Vault) transfer(asset, from, to common.Address, amount *big.Int) error {
	u, err := toU256(amount)
	if err != nil {
		return err
	}
	fromBal := v.balance(asset, from)
	if fromBal.Lt(u) {
		return ErrInsufficientBalance
	}
	if from == to || u.IsZero() {
		return nil
	}
	toBal := v.balance(asset, to)
	next, overflow := new(uint256.Int).AddOverflow(toBal, u)
	if overflow {
		return ErrBalanceOverflow
	}
	v.setBalance(asset, from, new(uint256.Int).Sub(fromBal, u))
	v.setBalance(asset, to, next)
	return nil
}

func (v *Vault) balance(asset, account common.Address) *uint256.Int {
	if accounts := v.Balances[asset]; accounts != nil {
		if bal := accounts[account]; bal != nil {
			return bal
		}
	}
	return uint256.NewInt(0)
}

func (v *Vault) setBalance(asset, account common.Address, bal *uint256.Int) {
	v.journal = append(v.journal, journalEntry{
		asset: asset,
		owner: account,
		prev:  v.balance(asset, account).Clone(),
	})
	if v.Balances[asset] == nil {
		v.Balances[asset] = make(map[common.Address]*uint256.Int)
	}
	v.Balances[asset][account] = bal
}

func (v *Vault) restoreBalance(e journalEntry) {
	if v.Balances[e.asset] == nil {
		v.Balances[e.asset] = make(map[common.Address]*uint256.Int)
	}
	v.Balances[e.asset][e.owner] = e.prev
}

func (v *Vault) allowance(asset, owner, spender common.Address) *uint256.Int {
	if owners := v.Allowances[asset]; owners != nil {
		if spenders := owners[owner]; spenders != nil {
			if a := spenders[spender]; a != nil {
				return a
			}
		}
	}
	return uint256.NewInt(0)
}

func (v *Vault) setAllowance(asset, owner, spender common.Address, a *uint256.Int) {
	v.journal = append(v.journal, journalEntry{
		asset:   asset,
		owner:   owner,
		spender: spender,
		prev:    v.allowance(asset, owner, spender).Clone(),
		isAllow: true,
	})
	if v.Allowances[asset] == nil {
		v.Allowances[asset] = make(map[common.Address]map[common.Address]*uint256.Int)
	}
	if v.Allowances[asset][owner] == nil {
		v.Allowances[asset][owner] = make(map[common.Address]*uint256.Int)
	}
	v.Allowances[asset][owner][spender] = a
}

func (v *Vault) restoreAllowance(e journalEntry) {
	if v.Allowances[e.asset] == nil {
		v.Allowances[e.asset] = make(map[common.Address]map[common.Address]*uint256.Int)
	}
	if v.Allowances[e.asset][e.owner] == nil {
		v.Allowances[e.asset][e.owner] = make(map[common.Address]*uint256.Int)
	}
	v.Allowances[e.asset][e.owner][e.spender] = e.prev
}

func toU256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil {
		return nil, ErrNilAmount
	}
	if amount.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	u, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return u, nil
}
