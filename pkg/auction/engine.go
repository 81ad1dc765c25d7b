package auction

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"

	"github.com/acorn-io/acorn-names/pkg/capability"
	"github.com/acorn-io/acorn-names/pkg/clock"
	"github.com/acorn-io/acorn-names/pkg/events"
	"github.com/acorn-io/acorn-names/pkg/keylock"
	"github.com/acorn-io/acorn-names/pkg/model"
	"github.com/acorn-io/acorn-names/pkg/namehash"
	"github.com/acorn-io/acorn-names/pkg/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Registrar is the part of the registry the engine drives.
//
// Hold and Guard run a callback under the registry's lock for node, which
// linearizes auction state changes with registrations of the same node.
// Register must not be called from inside either callback.
type Registrar interface {
	Register(caller common.Address, req registry.RegisterRequest) (registry.Receipt, error)
	Hold(node common.Hash, fn func() error) error
	Guard(node common.Hash, fn func() error) error
	Paused() bool
	HasCapability(who common.Address, c capability.Capability) bool
	SetReservations(res registry.Reservations)
}

type Config struct {
	// Address is the engine's identity. It must hold the registrar
	// capability for finalize to succeed.
	Address common.Address

	Clock  clock.Clock
	Events events.Sink
	Log    *logrus.Entry
}

// RevealReceipt reports the escrow taken at reveal and the overpayment
// handed back.
type RevealReceipt struct {
	Escrowed *big.Int `json:"escrowed"`
	Refund   *big.Int `json:"refund"`
}

type Engine struct {
	address   common.Address
	registrar Registrar
	clock     clock.Clock
	sink      events.Sink
	log       *logrus.Entry

	locks keylock.Locks
	opMu  sync.RWMutex

	mu       sync.RWMutex
	auctions map[common.Hash]*Auction

	proceedsMu sync.Mutex
	proceeds   *big.Int
}

// New builds an engine and installs it as the registry's reservation hook.
func New(cfg Config, reg Registrar) (*Engine, error) {
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("auction engine address is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.Events == nil {
		cfg.Events = events.Discard
	}
	if cfg.Log == nil {
		cfg.Log = logrus.WithField("component", "auction")
	}
	e := &Engine{
		address:   cfg.Address,
		registrar: reg,
		clock:     cfg.Clock,
		sink:      cfg.Events,
		log:       cfg.Log,
		auctions:  map[common.Hash]*Auction{},
		proceeds:  new(big.Int),
	}
	reg.SetReservations(e)
	return e, nil
}

func (e *Engine) Address() common.Address {
	return e.address
}

// Reserved holds back a node while its auction can still produce a winner.
func (e *Engine) Reserved(node common.Hash, by common.Address) bool {
	if by == e.address {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.auctions[node]
	if !ok {
		return false
	}
	switch a.PhaseAt(e.clock.Now()) {
	case PhaseCommitting, PhaseRevealing, PhaseEnded:
		return true
	}
	return false
}

// Auction returns a copy of label's auction.
func (e *Engine) Auction(label string) (Auction, error) {
	node, err := namehash.NodeID(namehash.Root, label)
	if err != nil {
		return Auction{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.auctions[node]
	if !ok {
		return Auction{}, fmt.Errorf("%w: %s", model.ErrAuctionNotFound, label)
	}
	return a.clone(), nil
}

// Phase reports label's phase now, PhaseNone if it never had an auction.
func (e *Engine) Phase(label string) Phase {
	a, err := e.Auction(label)
	if err != nil {
		return PhaseNone
	}
	return a.PhaseAt(e.clock.Now())
}

// Proceeds returns the settlement payments not yet withdrawn.
func (e *Engine) Proceeds() *big.Int {
	e.proceedsMu.Lock()
	defer e.proceedsMu.Unlock()
	return new(big.Int).Set(e.proceeds)
}

// StartAuction opens an auction for label. The node must be available and
// any earlier auction must be finalized or lapsed without reveals.
func (e *Engine) StartAuction(caller common.Address, label string, commitDuration, revealDuration uint64) (Auction, error) {
	if e.registrar.Paused() {
		return Auction{}, model.ErrSystemPaused
	}
	if commitDuration == 0 || revealDuration == 0 {
		return Auction{}, fmt.Errorf("%w: commit %ds, reveal %ds", model.ErrInvalidWindow, commitDuration, revealDuration)
	}
	node, err := namehash.NodeID(namehash.Root, label)
	if err != nil {
		return Auction{}, err
	}

	unlock := e.lock(node)
	defer unlock()

	var a *Auction
	err = e.registrar.Hold(node, func() error {
		now := e.clock.Now()
		if prev, ok := e.get(node); ok {
			switch prev.PhaseAt(now) {
			case PhaseCommitting, PhaseRevealing, PhaseEnded:
				return fmt.Errorf("%w: %s until %d", model.ErrAuctionActive, label, prev.RevealDeadline)
			}
		}
		commitDeadline := clock.AddSat(now, commitDuration)
		a = &Auction{
			Label:          label,
			Node:           node,
			StartedBy:      caller,
			StartedAt:      now,
			CommitDeadline: commitDeadline,
			RevealDeadline: clock.AddSat(commitDeadline, revealDuration),
			Commitments:    map[common.Address]common.Hash{},
		}
		e.put(a)
		return nil
	})
	if err != nil {
		return Auction{}, fmt.Errorf("start auction for %s: %w", label, err)
	}

	e.log.WithFields(logrus.Fields{
		"label":          label,
		"commitDeadline": a.CommitDeadline,
		"revealDeadline": a.RevealDeadline,
	}).Debug("auction started")

	ev := events.New(events.KindAuctionStarted, caller, a.StartedAt)
	ev.Node = node
	ev.Label = label
	ev.Expiry = a.RevealDeadline
	ev.Data = map[string]string{
		"commitDeadline": strconv.FormatUint(a.CommitDeadline, 10),
		"revealDeadline": strconv.FormatUint(a.RevealDeadline, 10),
	}
	e.sink.Emit(ev)
	return a.clone(), nil
}

// CommitBid stores bidder's sealed bid, replacing any earlier one.
func (e *Engine) CommitBid(bidder common.Address, label string, commitment common.Hash) error {
	if e.registrar.Paused() {
		return model.ErrSystemPaused
	}
	node, err := namehash.NodeID(namehash.Root, label)
	if err != nil {
		return err
	}

	unlock := e.lock(node)
	defer unlock()

	now := e.clock.Now()
	err = e.registrar.Guard(node, func() error {
		a, err := e.open(node, label)
		if err != nil {
			return err
		}
		if now >= a.CommitDeadline {
			return fmt.Errorf("%w: %s closed at %d", model.ErrCommitClosed, label, a.CommitDeadline)
		}
		e.mu.Lock()
		a.Commitments[bidder] = commitment
		e.mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}

	ev := events.New(events.KindBidCommitted, bidder, now)
	ev.Node = node
	ev.Label = label
	ev.Data = map[string]string{"commitment": commitment.Hex()}
	e.sink.Emit(ev)
	return nil
}

// RevealBid opens bidder's commitment and escrows amount out of payment.
// Anything paid above amount is refunded.
func (e *Engine) RevealBid(bidder common.Address, label string, amount *big.Int, salt common.Hash, payment *big.Int) (RevealReceipt, error) {
	if e.registrar.Paused() {
		return RevealReceipt{}, model.ErrSystemPaused
	}
	node, err := namehash.NodeID(namehash.Root, label)
	if err != nil {
		return RevealReceipt{}, err
	}
	if amount == nil || amount.Sign() < 0 || amount.BitLen() > 256 {
		return RevealReceipt{}, fmt.Errorf("%w: bid amount out of range", model.ErrCommitmentMismatch)
	}
	if payment == nil {
		payment = new(big.Int)
	}

	unlock := e.lock(node)
	defer unlock()

	now := e.clock.Now()
	err = e.registrar.Guard(node, func() error {
		a, err := e.open(node, label)
		if err != nil {
			return err
		}
		if now <= a.CommitDeadline {
			return fmt.Errorf("%w: %s opens after %d", model.ErrRevealNotOpen, label, a.CommitDeadline)
		}
		if now > a.RevealDeadline {
			return fmt.Errorf("%w: %s closed at %d", model.ErrRevealClosed, label, a.RevealDeadline)
		}
		if a.revealed(bidder) {
			return fmt.Errorf("%w: %s", model.ErrAlreadyRevealed, bidder.Hex())
		}
		stored, ok := a.Commitments[bidder]
		if !ok || Commitment(amount, salt, bidder) != stored {
			return fmt.Errorf("%w: %s on %s", model.ErrCommitmentMismatch, bidder.Hex(), label)
		}
		if payment.Cmp(amount) < 0 {
			return fmt.Errorf("%w: bid %s, paid %s", model.ErrInsufficientPay, amount, payment)
		}

		bid := Bid{Bidder: bidder, Amount: new(big.Int).Set(amount), RevealedAt: now}
		e.mu.Lock()
		a.Reveals = append(a.Reveals, bid)
		a.Outcome = a.Outcome.Apply(bid)
		e.mu.Unlock()
		return nil
	})
	if err != nil {
		return RevealReceipt{}, err
	}

	rcpt := RevealReceipt{
		Escrowed: new(big.Int).Set(amount),
		Refund:   new(big.Int).Sub(payment, amount),
	}

	e.log.WithFields(logrus.Fields{
		"label":  label,
		"bidder": bidder.Hex(),
	}).Debug("bid revealed")

	ev := events.New(events.KindBidRevealed, bidder, now)
	ev.Node = node
	ev.Label = label
	ev.Amount = new(big.Int).Set(rcpt.Escrowed)
	ev.Refund = new(big.Int).Set(rcpt.Refund)
	e.sink.Emit(ev)
	return rcpt, nil
}

// Finalize settles label's auction after the reveal deadline: the winner is
// registered for duration and charged the second-highest bid, every other
// escrow is refunded.
func (e *Engine) Finalize(caller common.Address, label string, duration uint64, recordStore common.Address) (Settlement, error) {
	if e.registrar.Paused() {
		return Settlement{}, model.ErrSystemPaused
	}
	node, err := namehash.NodeID(namehash.Root, label)
	if err != nil {
		return Settlement{}, err
	}

	unlock := e.lock(node)
	defer unlock()

	a, ok := e.get(node)
	if !ok {
		return Settlement{}, fmt.Errorf("%w: %s", model.ErrAuctionNotFound, label)
	}
	if a.Finalized {
		return Settlement{}, fmt.Errorf("%w: %s", model.ErrAlreadyFinalized, label)
	}
	now := e.clock.Now()
	if now <= a.RevealDeadline {
		return Settlement{}, fmt.Errorf("%w: %s reveals close at %d", model.ErrAuctionNotEnded, label, a.RevealDeadline)
	}
	if len(a.Reveals) == 0 {
		return Settlement{}, fmt.Errorf("%w: %s", model.ErrNoBids, label)
	}

	outcome := Tally(a.Reveals)
	price := outcome.Price()

	rcpt, err := e.registrar.Register(e.address, registry.RegisterRequest{
		Label:       label,
		Parent:      namehash.Root,
		Owner:       outcome.HighestBidder,
		Duration:    duration,
		RecordStore: recordStore,
	})
	if errors.Is(err, model.ErrNameUnavailable) || errors.Is(err, model.ErrInvariantViolation) {
		return e.void(caller, a, now, err)
	}
	if err != nil {
		return Settlement{}, err
	}

	s := &Settlement{
		Winner:  outcome.HighestBidder,
		Price:   price,
		Refunds: make(map[common.Address]*big.Int, len(a.Reveals)),
		TokenID: rcpt.TokenID,
		Expiry:  rcpt.Expiry,
		At:      now,
	}
	for _, b := range a.Reveals {
		if b.Bidder == outcome.HighestBidder {
			s.Refunds[b.Bidder] = new(big.Int).Sub(b.Amount, price)
			continue
		}
		s.Refunds[b.Bidder] = new(big.Int).Set(b.Amount)
	}

	e.mu.Lock()
	a.Finalized = true
	a.Settlement = s
	e.mu.Unlock()

	e.proceedsMu.Lock()
	e.proceeds.Add(e.proceeds, price)
	e.proceedsMu.Unlock()

	e.log.WithFields(logrus.Fields{
		"label":  label,
		"winner": s.Winner.Hex(),
		"price":  price.String(),
	}).Info("auction finalized")

	ev := events.New(events.KindAuctionFinalized, caller, now)
	ev.Node = node
	ev.Label = label
	ev.Owner = s.Winner
	ev.Amount = new(big.Int).Set(price)
	ev.Expiry = s.Expiry
	ev.Data = map[string]string{"reveals": strconv.Itoa(len(a.Reveals))}
	for bidder, r := range s.Refunds {
		ev.Data["refund."+bidder.Hex()] = r.String()
	}
	e.sink.Emit(ev)

	return *a.clone().Settlement, nil
}

// void closes an auction whose winner can no longer be registered. Nothing
// is charged and every escrow is refunded in full.
func (e *Engine) void(caller common.Address, a *Auction, now uint64, cause error) (Settlement, error) {
	s := &Settlement{
		Price:   new(big.Int),
		Refunds: make(map[common.Address]*big.Int, len(a.Reveals)),
		At:      now,
		Voided:  true,
	}
	for _, b := range a.Reveals {
		s.Refunds[b.Bidder] = new(big.Int).Set(b.Amount)
	}

	e.mu.Lock()
	a.Finalized = true
	a.Settlement = s
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{
		"label": a.Label,
		"cause": cause.Error(),
	}).Warn("auction voided")

	ev := events.New(events.KindAuctionVoided, caller, now)
	ev.Node = a.Node
	ev.Label = a.Label
	ev.Data = map[string]string{
		"reveals": strconv.Itoa(len(a.Reveals)),
		"cause":   cause.Error(),
	}
	for bidder, r := range s.Refunds {
		ev.Data["refund."+bidder.Hex()] = r.String()
	}
	e.sink.Emit(ev)

	return *a.clone().Settlement, nil
}

// Withdraw drains the settlement proceeds. The caller must be a registry
// admin.
func (e *Engine) Withdraw(caller common.Address) (*big.Int, error) {
	if !e.registrar.HasCapability(caller, capability.Admin) {
		return nil, fmt.Errorf("%w: %s lacks %s capability", model.ErrNotAuthorized, caller.Hex(), capability.Admin)
	}
	e.opMu.RLock()
	defer e.opMu.RUnlock()

	e.proceedsMu.Lock()
	taken := e.proceeds
	e.proceeds = new(big.Int)
	e.proceedsMu.Unlock()

	ev := events.New(events.KindWithdrawn, caller, e.clock.Now())
	ev.Amount = new(big.Int).Set(taken)
	ev.Data = map[string]string{"source": "auction"}
	e.sink.Emit(ev)
	return taken, nil
}

func (e *Engine) lock(node common.Hash) func() {
	e.opMu.RLock()
	unlock := e.locks.Lock(node[:])
	return func() {
		unlock()
		e.opMu.RUnlock()
	}
}

func (e *Engine) get(node common.Hash) (*Auction, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.auctions[node]
	return a, ok
}

func (e *Engine) put(a *Auction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auctions[a.Node] = a
}

// open returns a started, unfinalized auction.
func (e *Engine) open(node common.Hash, label string) (*Auction, error) {
	a, ok := e.get(node)
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrAuctionNotFound, label)
	}
	if a.Finalized {
		return nil, fmt.Errorf("%w: %s", model.ErrAlreadyFinalized, label)
	}
	return a, nil
}
