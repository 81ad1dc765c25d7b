package registry

import (
	"fmt"
	"strconv"

	"github.com/acorn-io/acorn-names/pkg/events"
	"github.com/acorn-io/acorn-names/pkg/ledger"
	"github.com/acorn-io/acorn-names/pkg/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// assign writes a freshly registered record and hands its token to
// rec.Owner, minting the token on first registration.
func (r *Registry) assign(rec Record) (Record, error) {
	id, _ := r.ledger.Assign(rec.Node, rec.Owner)
	rec.TokenID = id
	r.store(rec)
	return rec, r.checkSync(rec.Node)
}

// move hands rec's token and record to to. rec.Owner must already have been
// checked as the current owner, so a ledger refusal means the two sides
// disagree.
func (r *Registry) move(rec Record, to common.Address) (Record, error) {
	if err := r.ledger.Move(rec.Node, rec.Owner, to); err != nil {
		return rec, r.halt(rec.Node, err)
	}
	rec.Owner = to
	r.store(rec)
	return rec, r.checkSync(rec.Node)
}

func (r *Registry) checkSync(node common.Hash) error {
	holder, ok := r.ledger.Holder(node)
	rec, _ := r.Record(node)
	if !ok || holder != rec.Owner {
		return r.halt(node, fmt.Errorf("owner %s, token holder %s", rec.Owner.Hex(), holder.Hex()))
	}
	return nil
}

func (r *Registry) halt(node common.Hash, cause error) error {
	r.mu.Lock()
	r.halted[node] = true
	r.mu.Unlock()
	r.log.WithField("node", node.Hex()).Errorf("halting node, owner and token out of sync: %v", cause)
	return fmt.Errorf("%w: node %s: %v", model.ErrInvariantViolation, node.Hex(), cause)
}

// Transfer moves node from from to to. The caller must be the owner, the
// token's approved delegate or an operator of the owner.
func (r *Registry) Transfer(caller common.Address, node common.Hash, from, to common.Address) error {
	if err := r.checkRunning(); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return fmt.Errorf("%w: transfer to the zero address", model.ErrInvalidRecipient)
	}

	unlock := r.lockNode(node)
	defer unlock()

	if err := r.checkRunning(); err != nil {
		return err
	}
	rec, err := r.loadLive(node)
	if err != nil {
		return err
	}
	if from != rec.Owner {
		return fmt.Errorf("%w: %s does not own %s", model.ErrNotAuthorized, from.Hex(), rec.Label)
	}
	if !r.ledger.CanMove(node, caller) {
		return fmt.Errorf("%w: %s may not move %s", model.ErrNotAuthorized, caller.Hex(), rec.Label)
	}
	now := r.clock.Now()
	if now > rec.Expiry {
		return fmt.Errorf("%w: %s expired at %d", model.ErrDomainExpired, rec.Label, rec.Expiry)
	}
	return r.transfer(caller, rec, to, now, nil)
}

// TransferWithPermit runs a transfer pre-authorised by the owner's
// signature. Anyone may submit it.
func (r *Registry) TransferWithPermit(submitter common.Address, p ledger.Permit) error {
	if err := r.checkRunning(); err != nil {
		return err
	}
	if p.To == (common.Address{}) {
		return fmt.Errorf("%w: transfer to the zero address", model.ErrInvalidRecipient)
	}

	unlock := r.lockNode(p.Node)
	defer unlock()

	if err := r.checkRunning(); err != nil {
		return err
	}
	rec, err := r.loadLive(p.Node)
	if err != nil {
		return err
	}
	now := r.clock.Now()
	if err := p.Verify(now); err != nil {
		return err
	}
	if r.ledger.NonceUsed(p.From, p.Nonce) {
		return fmt.Errorf("%w: nonce %d for %s", model.ErrNonceReused, p.Nonce, p.From.Hex())
	}
	if p.From != rec.Owner {
		return fmt.Errorf("%w: %s does not own %s", model.ErrNotAuthorized, p.From.Hex(), rec.Label)
	}
	if now > rec.Expiry {
		return fmt.Errorf("%w: %s expired at %d", model.ErrDomainExpired, rec.Label, rec.Expiry)
	}
	// Nonces are per owner, not per node, so this is the point where a
	// racing permit on another node loses.
	if err := r.ledger.UseNonce(p.From, p.Nonce); err != nil {
		return err
	}
	return r.transfer(submitter, rec, p.To, now, map[string]string{
		"nonce": strconv.FormatUint(p.Nonce, 10),
	})
}

func (r *Registry) transfer(caller common.Address, rec Record, to common.Address, now uint64, data map[string]string) error {
	from := rec.Owner
	rec, err := r.move(rec, to)
	if err != nil {
		return err
	}

	r.log.WithFields(logrus.Fields{
		"label": rec.Label,
		"node":  rec.Node.Hex(),
		"from":  from.Hex(),
		"to":    to.Hex(),
	}).Debug("transferred")

	ev := events.New(events.KindTransferred, caller, now)
	ev.Node = rec.Node
	ev.Label = rec.Label
	ev.Owner = to
	ev.Expiry = rec.Expiry
	if data == nil {
		data = map[string]string{}
	}
	data["from"] = from.Hex()
	data["tokenId"] = strconv.FormatUint(rec.TokenID, 10)
	ev.Data = data
	r.emit(ev)
	return nil
}

// SetRecordStore points node at a record store. The zero address clears it.
func (r *Registry) SetRecordStore(caller common.Address, node common.Hash, store common.Address) error {
	if err := r.checkRunning(); err != nil {
		return err
	}

	unlock := r.lockNode(node)
	defer unlock()

	if err := r.checkRunning(); err != nil {
		return err
	}
	rec, err := r.ownedActive(caller, node)
	if err != nil {
		return err
	}
	rec.RecordStore = store
	r.store(rec)

	ev := events.New(events.KindRecordStoreSet, caller, r.clock.Now())
	ev.Node = node
	ev.Label = rec.Label
	ev.Owner = rec.Owner
	ev.Data = map[string]string{"recordStore": store.Hex()}
	r.emit(ev)
	return nil
}

// Approve lets delegate move node's token until it next moves. The zero
// address clears the approval.
func (r *Registry) Approve(caller common.Address, node common.Hash, delegate common.Address) error {
	if err := r.checkRunning(); err != nil {
		return err
	}

	unlock := r.lockNode(node)
	defer unlock()

	if err := r.checkRunning(); err != nil {
		return err
	}
	rec, err := r.ownedActive(caller, node)
	if err != nil {
		return err
	}
	if err := r.ledger.Approve(node, delegate); err != nil {
		return r.halt(node, err)
	}

	ev := events.New(events.KindApproval, caller, r.clock.Now())
	ev.Node = node
	ev.Label = rec.Label
	ev.Owner = rec.Owner
	ev.Data = map[string]string{"approved": delegate.Hex()}
	r.emit(ev)
	return nil
}

// SetApprovalForAll lets operator move, approve and repoint every name the
// caller owns.
func (r *Registry) SetApprovalForAll(caller, operator common.Address, approved bool) error {
	if err := r.checkRunning(); err != nil {
		return err
	}
	if operator == caller || operator == (common.Address{}) {
		return fmt.Errorf("%w: operator %s", model.ErrInvalidRecipient, operator.Hex())
	}
	r.opMu.RLock()
	if err := r.checkRunning(); err != nil {
		r.opMu.RUnlock()
		return err
	}
	r.ledger.SetOperator(caller, operator, approved)
	r.opMu.RUnlock()

	ev := events.New(events.KindOperatorApproval, caller, r.clock.Now())
	ev.Owner = caller
	ev.Data = map[string]string{
		"operator": operator.Hex(),
		"approved": strconv.FormatBool(approved),
	}
	r.emit(ev)
	return nil
}

// ownedActive loads node for an owner-side mutation by the owner or one of
// its operators.
func (r *Registry) ownedActive(caller common.Address, node common.Hash) (Record, error) {
	rec, err := r.loadLive(node)
	if err != nil {
		return Record{}, err
	}
	if caller != rec.Owner && !r.ledger.IsOperator(rec.Owner, caller) {
		return Record{}, fmt.Errorf("%w: %s does not control %s", model.ErrNotAuthorized, caller.Hex(), rec.Label)
	}
	if now := r.clock.Now(); now > rec.Expiry {
		return Record{}, fmt.Errorf("%w: %s expired at %d", model.ErrDomainExpired, rec.Label, rec.Expiry)
	}
	return rec, nil
}
