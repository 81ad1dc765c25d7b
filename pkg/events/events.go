// Package events defines the structured records emitted by every
// state-changing registry and auction operation.
package events

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type Kind string

const (
	KindRegistered        Kind = "registered"
	KindRenewed           Kind = "renewed"
	KindTransferred       Kind = "transferred"
	KindRecordStoreSet    Kind = "record_store_set"
	KindApproval          Kind = "approval"
	KindOperatorApproval  Kind = "operator_approval"
	KindPriceChanged      Kind = "price_changed"
	KindPaused            Kind = "paused"
	KindUnpaused          Kind = "unpaused"
	KindWithdrawn         Kind = "withdrawn"
	KindCapabilityGranted Kind = "capability_granted"
	KindCapabilityRevoked Kind = "capability_revoked"
	KindAuctionStarted    Kind = "auction_started"
	KindBidCommitted      Kind = "bid_committed"
	KindBidRevealed       Kind = "bid_revealed"
	KindAuctionFinalized  Kind = "auction_finalized"
	KindAuctionVoided     Kind = "auction_voided"
)

type Event struct {
	ID     string            `json:"id"`
	Kind   Kind              `json:"kind"`
	Node   common.Hash       `json:"node"`
	Label  string            `json:"label,omitempty"`
	Actor  common.Address    `json:"actor"`
	Owner  common.Address    `json:"owner"`
	Amount *big.Int          `json:"amount,omitempty"`
	Refund *big.Int          `json:"refund,omitempty"`
	Expiry uint64            `json:"expiry,omitempty"`
	Data   map[string]string `json:"data,omitempty"`
	At     uint64            `json:"at"`
}

// New stamps an event with a fresh id.
func New(kind Kind, actor common.Address, at uint64) Event {
	return Event{
		ID:    uuid.NewString(),
		Kind:  kind,
		Actor: actor,
		At:    at,
	}
}

// Sink receives events after the operation producing them has applied.
// Implementations must not block for long and must not fail the caller.
type Sink interface {
	Emit(evs ...Event)
}

// Discard drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(...Event) {}

type multi []Sink

// Multi fans events out to every sink in order.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Emit(evs ...Event) {
	for _, s := range m {
		s.Emit(evs...)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.RWMutex
	events []Event
}

func (r *Recorder) Emit(evs ...Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evs...)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfKind returns recorded events of kind k.
func (r *Recorder) OfKind(k Kind) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
