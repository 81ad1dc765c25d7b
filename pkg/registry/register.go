package registry

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/acorn-io/acorn-names/pkg/capability"
	"github.com/acorn-io/acorn-names/pkg/clock"
	"github.com/acorn-io/acorn-names/pkg/events"
	"github.com/acorn-io/acorn-names/pkg/model"
	"github.com/acorn-io/acorn-names/pkg/namehash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

type RegisterRequest struct {
	Label string
	// Parent defaults to the root node.
	Parent      common.Hash
	Owner       common.Address
	Duration    uint64
	RecordStore common.Address
}

// Register creates or overwrites the record of req.Label under req.Parent
// for req.Owner. The caller must hold the registrar capability.
func (r *Registry) Register(caller common.Address, req RegisterRequest) (Receipt, error) {
	if err := r.checkRunning(); err != nil {
		return Receipt{}, err
	}
	if err := r.caps.Require(caller, capability.Registrar); err != nil {
		return Receipt{}, err
	}
	return r.register(caller, req, nil)
}

// BuyAtListedPrice registers label under the root for the caller, charging
// the listed price and refunding the rest of payment.
func (r *Registry) BuyAtListedPrice(caller common.Address, label string, recordStore common.Address, duration uint64, payment *big.Int) (Receipt, error) {
	if err := r.checkRunning(); err != nil {
		return Receipt{}, err
	}
	return r.register(caller, RegisterRequest{
		Label:       label,
		Parent:      namehash.Root,
		Owner:       caller,
		Duration:    duration,
		RecordStore: recordStore,
	}, amount(payment))
}

// register runs a registration. A nil payment means the caller is a
// registrar and nothing is charged.
func (r *Registry) register(caller common.Address, req RegisterRequest, payment *big.Int) (Receipt, error) {
	parent := req.Parent
	if parent == (common.Hash{}) {
		parent = namehash.Root
	}
	node, err := namehash.NodeID(parent, req.Label)
	if err != nil {
		return Receipt{}, err
	}
	if err := r.checkDuration(req.Duration); err != nil {
		return Receipt{}, err
	}
	if req.Owner == (common.Address{}) {
		return Receipt{}, fmt.Errorf("%w: owner is the zero address", model.ErrInvalidRecipient)
	}

	unlock := r.lockNode(node)
	defer unlock()

	if err := r.checkRunning(); err != nil {
		return Receipt{}, err
	}
	now := r.clock.Now()
	if err := r.checkRegistrable(caller, node, parent, now); err != nil {
		return Receipt{}, err
	}

	charged := new(big.Int)
	refunded := new(big.Int)
	if payment != nil {
		r.mu.RLock()
		price := r.pricing.PriceOf(req.Label, node, req.Duration)
		r.mu.RUnlock()
		if payment.Cmp(price) < 0 {
			return Receipt{}, fmt.Errorf("%w: price %s, paid %s", model.ErrInsufficientPay, price, payment)
		}
		charged = price
		refunded = refund(payment, price)
	}

	rec, err := r.assign(Record{
		Node:        node,
		Label:       req.Label,
		Parent:      parent,
		Owner:       req.Owner,
		RecordStore: req.RecordStore,
		Expiry:      clock.AddSat(now, req.Duration),
		Exists:      true,
	})
	if err != nil {
		return Receipt{}, err
	}
	r.collect(charged)

	r.log.WithFields(logrus.Fields{
		"label":  req.Label,
		"node":   node.Hex(),
		"owner":  req.Owner.Hex(),
		"expiry": rec.Expiry,
	}).Debug("registered")

	ev := events.New(events.KindRegistered, caller, now)
	ev.Node = node
	ev.Label = req.Label
	ev.Owner = req.Owner
	ev.Amount = amount(charged)
	ev.Refund = amount(refunded)
	ev.Expiry = rec.Expiry
	ev.Data = map[string]string{
		"parent":      parent.Hex(),
		"tokenId":     strconv.FormatUint(rec.TokenID, 10),
		"recordStore": req.RecordStore.Hex(),
	}
	r.emit(ev)

	return Receipt{
		Node:    node,
		TokenID: rec.TokenID,
		Expiry:  rec.Expiry,
		Charged: charged,
		Refund:  refunded,
	}, nil
}

func (r *Registry) checkRegistrable(caller common.Address, node, parent common.Hash, now uint64) error {
	r.mu.RLock()
	if r.halted[node] {
		r.mu.RUnlock()
		return fmt.Errorf("%w: node %s is halted", model.ErrInvariantViolation, node.Hex())
	}
	p, ok := r.records[parent]
	if !ok || !p.Exists {
		r.mu.RUnlock()
		return fmt.Errorf("%w: parent %s", model.ErrNotFound, parent.Hex())
	}
	if now > p.Expiry {
		r.mu.RUnlock()
		return fmt.Errorf("%w: parent %s", model.ErrDomainExpired, parent.Hex())
	}
	rec, ok := r.records[node]
	res := r.reservations
	r.mu.RUnlock()

	if !r.available(rec, ok, now) {
		return fmt.Errorf("%w: %s is registered until %d", model.ErrNameUnavailable, rec.Label, rec.Expiry)
	}
	if res != nil && res.Reserved(node, caller) {
		return fmt.Errorf("%w: %s is reserved by a running auction", model.ErrNameUnavailable, node.Hex())
	}
	return nil
}

// Renew extends node by duration from its current expiry. Only the owner
// may renew, and only until the grace period ends.
func (r *Registry) Renew(caller common.Address, node common.Hash, duration uint64, payment *big.Int) (Receipt, error) {
	if err := r.checkRunning(); err != nil {
		return Receipt{}, err
	}
	if err := r.checkDuration(duration); err != nil {
		return Receipt{}, err
	}
	payment = amount(payment)

	unlock := r.lockNode(node)
	defer unlock()

	if err := r.checkRunning(); err != nil {
		return Receipt{}, err
	}
	rec, err := r.loadLive(node)
	if err != nil {
		return Receipt{}, err
	}
	if caller != rec.Owner {
		return Receipt{}, fmt.Errorf("%w: %s does not own %s", model.ErrNotAuthorized, caller.Hex(), rec.Label)
	}
	now := r.clock.Now()
	if now > clock.AddSat(rec.Expiry, r.gracePeriod) {
		return Receipt{}, fmt.Errorf("%w: %s expired at %d", model.ErrGracePeriodExpired, rec.Label, rec.Expiry)
	}

	r.mu.RLock()
	price := r.pricing.RenewalPriceOf(rec.Label, node, duration)
	r.mu.RUnlock()
	if payment.Cmp(price) < 0 {
		return Receipt{}, fmt.Errorf("%w: renewal price %s, paid %s", model.ErrInsufficientPay, price, payment)
	}

	rec.Expiry = clock.AddSat(rec.Expiry, duration)
	r.store(rec)
	r.collect(price)
	refunded := refund(payment, price)

	r.log.WithFields(logrus.Fields{
		"label":  rec.Label,
		"node":   node.Hex(),
		"expiry": rec.Expiry,
	}).Debug("renewed")

	ev := events.New(events.KindRenewed, caller, now)
	ev.Node = node
	ev.Label = rec.Label
	ev.Owner = rec.Owner
	ev.Amount = amount(price)
	ev.Refund = amount(refunded)
	ev.Expiry = rec.Expiry
	r.emit(ev)

	return Receipt{
		Node:    node,
		TokenID: rec.TokenID,
		Expiry:  rec.Expiry,
		Charged: price,
		Refund:  refunded,
	}, nil
}
