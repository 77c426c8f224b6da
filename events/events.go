// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Type identifies the kind of state change an event describes.
type Type string

const (
	// Bridge events
	TypeDepositCreated      Type = "deposit_created"
	TypeWithdrawalSettled   Type = "withdrawal_settled"
	TypeValidatorAdded      Type = "validator_added"
	TypeValidatorRemoved    Type = "validator_removed"
	TypeThresholdUpdated    Type = "threshold_updated"
	TypeBridgePaused        Type = "bridge_paused"
	TypeBridgeUnpaused      Type = "bridge_unpaused"
	TypeEmergencyWithdrawal Type = "emergency_withdrawal"

	// Exchange events
	TypePoolCreated       Type = "pool_created"
	TypeLiquidityAdded    Type = "liquidity_added"
	TypeLiquidityRemoved  Type = "liquidity_removed"
	TypeSwapExecuted      Type = "swap_executed"
	TypeFlashLoanExecuted Type = "flash_loan_executed"
	TypeRewardsHarvested  Type = "rewards_harvested"
	TypeRewardRateUpdated Type = "reward_rate_updated"
	TypeExchangePaused    Type = "exchange_paused"
	TypeExchangeUnpaused  Type = "exchange_unpaused"
)

// Event is a structured record of one committed state change. Off-chain
// observers (validators, indexers) consume these instead of re-deriving state.
type Event struct {
	Type       Type
	Time       time.Time
	Attributes map[string]string
}

// Emitter receives events from the settlement cores. Implementations must not
// mutate the event.
type Emitter interface {
	Emit(Event)
}

// New builds an event stamped with the current time.
func New(t Type, attrs map[string]string) Event {
	return Event{Type: t, Time: time.Now(), Attributes: attrs}
}

// nopEmitter drops everything.
type nopEmitter struct{}

func (nopEmitter) Emit(Event) {}

// Nop returns an emitter that discards all events.
func Nop() Emitter { return nopEmitter{} }

// ZapEmitter writes each event as one structured log line.
type ZapEmitter struct {
	log *zap.Logger
}

// NewZapEmitter wraps a zap logger as an event sink.
func NewZapEmitter(log *zap.Logger) *ZapEmitter {
	return &ZapEmitter{log: log}
}

func (z *ZapEmitter) Emit(ev Event) {
	fields := make([]zap.Field, 0, len(ev.Attributes)+1)
	fields = append(fields, zap.Time("at", ev.Time))
	for k, val := range ev.Attributes {
		fields = append(fields, zap.String(k, val))
	}
	z.log.Info(string(ev.Type), fields...)
}

// Recorder keeps every emitted event in order. It backs the query API's
// /events endpoint and the test suites.
type Recorder struct {
	mu     sync.RWMutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Filter returns recorded events of one type, in emission order.
func (r *Recorder) Filter(t Type) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// multiEmitter fans out to several sinks.
type multiEmitter []Emitter

func (m multiEmitter) Emit(ev Event) {
	for _, e := range m {
		e.Emit(ev)
	}
}

// Multi fans every event out to each of the given emitters.
func Multi(emitters ...Emitter) Emitter {
	return multiEmitter(emitters)
}
