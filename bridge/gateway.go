// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/settlement/events"
)

// Gateway settles value between this ledger and a remote one. Deposits lock
// funds in custody and append an audit record for the off-chain validators;
// withdrawals release custody only against a quorum of distinct validator
// signatures over a unique, non-replayable message.
//
// Every public operation runs under the gateway mutex as one atomic unit:
// it either fully commits or leaves no observable state change.
type Gateway struct {
	// Ledger state
	Deposits    map[common.Hash]*DepositRecord
	Withdrawals map[common.Hash]*WithdrawalRecord
	Processed   map[common.Hash]bool
	Sequences   map[common.Address]uint64

	// Validator set and quorum threshold
	Validators map[common.Address]bool
	Threshold  int

	// Configuration
	Owner         common.Address
	Custody       common.Address
	FeeSink       common.Address
	DepositFeeBps uint32
	Paused        bool

	ledger  AssetLedger
	scheme  SignerScheme
	store   *RecordStore
	emitter events.Emitter
	busy    BusySource

	mu sync.RWMutex
}

// GatewayConfig carries everything a gateway needs at construction.
type GatewayConfig struct {
	Owner         common.Address
	Custody       common.Address
	FeeSink       common.Address
	DepositFeeBps uint32
	Validators    []common.Address
	Threshold     int
	Ledger        AssetLedger
	Scheme        SignerScheme
	Store         *RecordStore // optional; replay ledger survives restarts when set
	Emitter       events.Emitter
	Busy          BusySource // optional; rejects mutations while the source is busy
}

// NewGateway creates a gateway with a bootstrapped validator set.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("bridge: nil asset ledger")
	}
	if cfg.Scheme == nil {
		cfg.Scheme = Secp256k1Scheme{}
	}
	if cfg.Emitter == nil {
		cfg.Emitter = events.Nop()
	}
	if cfg.DepositFeeBps > MaxDepositFeeBps {
		return nil, ErrFeeTooHigh
	}
	if cfg.Threshold <= 0 || cfg.Threshold > len(cfg.Validators) {
		return nil, ErrInvalidThreshold
	}

	g := &Gateway{
		Deposits:      make(map[common.Hash]*DepositRecord),
		Withdrawals:   make(map[common.Hash]*WithdrawalRecord),
		Processed:     make(map[common.Hash]bool),
		Sequences:     make(map[common.Address]uint64),
		Validators:    make(map[common.Address]bool),
		Threshold:     cfg.Threshold,
		Owner:         cfg.Owner,
		Custody:       cfg.Custody,
		FeeSink:       cfg.FeeSink,
		DepositFeeBps: cfg.DepositFeeBps,
		ledger:        cfg.Ledger,
		scheme:        cfg.Scheme,
		store:         cfg.Store,
		emitter:       cfg.Emitter,
		busy:          cfg.Busy,
	}
	for _, v := range cfg.Validators {
		if g.Validators[v] {
			return nil, ErrValidatorExists
		}
		g.Validators[v] = true
	}
	return g, nil
}

// Deposit pulls amount of asset from the caller into bridge custody, deducts
// the deposit fee to the fee sink and records the net amount bound for the
// destination ledger address. The caller must have pre-approved the transfer.
func (g *Gateway) Deposit(caller, asset common.Address, amount *big.Int, destinationAddress string) (*DepositRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.busyNow() {
		return nil, ErrReentrantCall
	}
	if g.Paused {
		return nil, ErrBridgePaused
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if destinationAddress == "" {
		return nil, ErrEmptyRemoteAddress
	}

	fee := feeOf(amount, g.DepositFeeBps)
	net := new(big.Int).Sub(amount, fee)
	if net.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	snap := g.ledger.Snapshot()
	if err := g.ledger.TransferFrom(asset, g.Custody, caller, g.Custody, amount); err != nil {
		return nil, err
	}
	if fee.Sign() > 0 {
		if err := g.ledger.Transfer(asset, g.Custody, g.FeeSink, fee); err != nil {
			_ = g.ledger.RevertToSnapshot(snap)
			return nil, err
		}
	}

	seq := g.Sequences[caller]
	now := uint64(time.Now().Unix())
	record := &DepositRecord{
		ID:                 depositID(caller, asset, net, destinationAddress, seq, now),
		Depositor:          caller,
		Asset:              asset,
		Amount:             net,
		Fee:                fee,
		DestinationAddress: destinationAddress,
		Sequence:           seq,
		Timestamp:          now,
	}

	// The audit write commits before any in-memory state so a store failure
	// can still unwind the transfers and leave no trace of the deposit.
	if g.store != nil {
		if err := g.store.PutDeposit(record); err != nil {
			_ = g.ledger.RevertToSnapshot(snap)
			return nil, err
		}
	}

	g.Deposits[record.ID] = record
	g.Sequences[caller] = seq + 1

	g.emitter.Emit(events.New(events.TypeDepositCreated, map[string]string{
		"id":          record.ID.Hex(),
		"depositor":   caller.Hex(),
		"asset":       asset.Hex(),
		"amount":      net.String(),
		"fee":         fee.String(),
		"destination": destinationAddress,
		"sequence":    fmt.Sprintf("%d", seq),
	}))
	return record, nil
}

// Withdraw releases amount of asset from custody to recipient, provided the
// derived withdrawal ID has never been processed and the signatures contain a
// quorum of distinct, currently authorized validators over the canonical
// digest. Any failure aborts with no state change.
func (g *Gateway) Withdraw(recipient, asset common.Address, amount *big.Int, sourceAddress string, sequence uint64, signatures [][]byte) (*WithdrawalRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.busyNow() {
		return nil, ErrReentrantCall
	}
	if g.Paused {
		return nil, ErrBridgePaused
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if sourceAddress == "" {
		return nil, ErrEmptyRemoteAddress
	}

	digest := WithdrawalDigest(recipient, asset, amount, sourceAddress, sequence)
	if g.processed(digest) {
		return nil, ErrAlreadyProcessed
	}
	if err := g.verifyQuorum(digest, signatures); err != nil {
		return nil, err
	}

	snap := g.ledger.Snapshot()
	if err := g.ledger.Transfer(asset, g.Custody, recipient, amount); err != nil {
		return nil, err
	}

	record := &WithdrawalRecord{
		ID:            digest,
		Recipient:     recipient,
		Asset:         asset,
		Amount:        new(big.Int).Set(amount),
		SourceAddress: sourceAddress,
		Sequence:      sequence,
		Processed:     true,
		Timestamp:     uint64(time.Now().Unix()),
	}

	// Store first: if the processed marker cannot be persisted the transfer
	// is unwound rather than released without a durable replay record.
	if g.store != nil {
		if err := g.store.PutWithdrawal(record); err != nil {
			_ = g.ledger.RevertToSnapshot(snap)
			return nil, err
		}
	}

	g.Withdrawals[digest] = record
	g.Processed[digest] = true

	g.emitter.Emit(events.New(events.TypeWithdrawalSettled, map[string]string{
		"id":        digest.Hex(),
		"recipient": recipient.Hex(),
		"asset":     asset.Hex(),
		"amount":    amount.String(),
		"source":    sourceAddress,
		"sequence":  fmt.Sprintf("%d", sequence),
	}))
	return record, nil
}

// verifyQuorum checks that signatures carries at least Threshold valid,
// distinct signatures from current validators over digest. A signature from a
// non-validator or a repeated signer rejects the whole set; one validator
// signing twice must never satisfy quorum.
func (g *Gateway) verifyQuorum(digest common.Hash, signatures [][]byte) error {
	seen := make(map[common.Address]bool, len(signatures))
	for _, sig := range signatures {
		signer, err := g.scheme.RecoverSigner(digest, sig)
		if err != nil {
			return ErrInvalidSignature
		}
		if !g.Validators[signer] {
			return ErrUnauthorizedSigner
		}
		if seen[signer] {
			return ErrDuplicateSigner
		}
		seen[signer] = true
	}
	if len(seen) < g.Threshold {
		return ErrInsufficientSignatures
	}
	return nil
}

// busyNow reports whether the configured busy source is mid-operation.
// Callers hold g.mu.
func (g *Gateway) busyNow() bool {
	return g.busy != nil && g.busy.Busy()
}

func (g *Gateway) processed(id common.Hash) bool {
	if g.Processed[id] {
		return true
	}
	if g.store != nil {
		done, err := g.store.IsWithdrawalProcessed(id)
		return err == nil && done
	}
	return false
}

// Validator management. All owner-only.

// AddValidator authorizes a new signer identity.
func (g *Gateway) AddValidator(caller, validator common.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.busyNow() {
		return ErrReentrantCall
	}
	if caller != g.Owner {
		return ErrNotOwner
	}
	if g.Validators[validator] {
		return ErrValidatorExists
	}
	g.Validators[validator] = true
	g.emitter.Emit(events.New(events.TypeValidatorAdded, map[string]string{
		"validator": validator.Hex(),
	}))
	return nil
}

// RemoveValidator deauthorizes a signer. Removal that would drop the active
// set below the current threshold is rejected, not clamped; lower the
// threshold first.
func (g *Gateway) RemoveValidator(caller, validator common.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.busyNow() {
		return ErrReentrantCall
	}
	if caller != g.Owner {
		return ErrNotOwner
	}
	if !g.Validators[validator] {
		return ErrValidatorNotFound
	}
	if len(g.Validators)-1 < g.Threshold {
		return ErrThresholdUnderflow
	}
	delete(g.Validators, validator)
	g.emitter.Emit(events.New(events.TypeValidatorRemoved, map[string]string{
		"validator": validator.Hex(),
	}))
	return nil
}

// SetThreshold updates the quorum threshold.
func (g *Gateway) SetThreshold(caller common.Address, threshold int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.busyNow() {
		return ErrReentrantCall
	}
	if caller != g.Owner {
		return ErrNotOwner
	}
	if threshold <= 0 || threshold > len(g.Validators) {
		return ErrInvalidThreshold
	}
	g.Threshold = threshold
	g.emitter.Emit(events.New(events.TypeThresholdUpdated, map[string]string{
		"threshold": fmt.Sprintf("%d", threshold),
	}))
	return nil
}

// Pause stops deposits and withdrawals.
func (g *Gateway) Pause(caller common.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.busyNow() {
		return ErrReentrantCall
	}
	if caller != g.Owner {
		return ErrNotOwner
	}
	g.Paused = true
	g.emitter.Emit(events.New(events.TypeBridgePaused, nil))
	return nil
}

// Unpause resumes normal operation.
func (g *Gateway) Unpause(caller common.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.busyNow() {
		return ErrReentrantCall
	}
	if caller != g.Owner {
		return ErrNotOwner
	}
	g.Paused = false
	g.emitter.Emit(events.New(events.TypeBridgeUnpaused, nil))
	return nil
}

// EmergencyWithdraw moves custodied funds out via the trusted-operator escape
// hatch. It is deliberately not quorum-gated and is logged under its own
// event type so observers can tell it apart from the trustless path.
func (g *Gateway) EmergencyWithdraw(caller, asset, to common.Address, amount *big.Int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.busyNow() {
		return ErrReentrantCall
	}
	if caller != g.Owner {
		return ErrNotOwner
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if err := g.ledger.Transfer(asset, g.Custody, to, amount); err != nil {
		return err
	}
	g.emitter.Emit(events.New(events.TypeEmergencyWithdrawal, map[string]string{
		"asset":  asset.Hex(),
		"to":     to.Hex(),
		"amount": amount.String(),
	}))
	return nil
}

// Read-only queries.

// GetDeposit returns the deposit record for id.
func (g *Gateway) GetDeposit(id common.Hash) (*DepositRecord, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if rec := g.Deposits[id]; rec != nil {
		return rec, nil
	}
	if g.store != nil {
		if rec, err := g.store.GetDeposit(id); err == nil {
			return rec, nil
		}
	}
	return nil, ErrRecordNotFound
}

// GetWithdrawal returns the withdrawal record for id.
func (g *Gateway) GetWithdrawal(id common.Hash) (*WithdrawalRecord, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if rec := g.Withdrawals[id]; rec != nil {
		return rec, nil
	}
	if g.store != nil {
		if rec, err := g.store.GetWithdrawal(id); err == nil {
			return rec, nil
		}
	}
	return nil, ErrRecordNotFound
}

// IsProcessed reports whether a withdrawal ID has been settled.
func (g *Gateway) IsProcessed(id common.Hash) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.processed(id)
}

// Sequence returns the next deposit sequence number for account.
func (g *Gateway) Sequence(account common.Address) uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.Sequences[account]
}

// ValidatorSet returns the current validators and threshold.
func (g *Gateway) ValidatorSet() ([]common.Address, int) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]common.Address, 0, len(g.Validators))
	for v := range g.Validators {
		out = append(out, v)
	}
	return out, g.Threshold
}

func feeOf(amount *big.Int, bps uint32) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return fee.Div(fee, big.NewInt(BpsDenominator))
}
