// Package ledger keeps the transferable ownership tokens of registered nodes.
//
// Tokens are numbered from 1 in mint order. The ledger only knows the token
// side of ownership; the registry pairs every ledger mutation with the
// matching domain record write.
package ledger

import (
	"fmt"
	"sync"

	"github.com/acorn-io/acorn-names/pkg/model"
	"github.com/ethereum/go-ethereum/common"
)

type Ledger struct {
	mu        sync.RWMutex
	next      uint64
	tokens    map[common.Hash]uint64
	nodes     map[uint64]common.Hash
	holders   map[uint64]common.Address
	approved  map[uint64]common.Address
	operators map[common.Address]map[common.Address]bool
	nonces    map[common.Address]map[uint64]bool
}

func New() *Ledger {
	return &Ledger{
		next:      1,
		tokens:    map[common.Hash]uint64{},
		nodes:     map[uint64]common.Hash{},
		holders:   map[uint64]common.Address{},
		approved:  map[uint64]common.Address{},
		operators: map[common.Address]map[common.Address]bool{},
		nonces:    map[common.Address]map[uint64]bool{},
	}
}

// Assign gives node's token to owner, minting it on first use. Any
// approval on the token is cleared.
func (l *Ledger) Assign(node common.Hash, owner common.Address) (tokenID uint64, minted bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.tokens[node]
	if !ok {
		id = l.next
		l.next++
		l.tokens[node] = id
		l.nodes[id] = node
		minted = true
	}
	l.holders[id] = owner
	delete(l.approved, id)
	return id, minted
}

// Move hands node's token from from to to.
func (l *Ledger) Move(node common.Hash, from, to common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.tokens[node]
	if !ok {
		return fmt.Errorf("%w: no token for %s", model.ErrNotFound, node.Hex())
	}
	if l.holders[id] != from {
		return fmt.Errorf("%w: %s does not hold token %d", model.ErrNotAuthorized, from.Hex(), id)
	}
	l.holders[id] = to
	delete(l.approved, id)
	return nil
}

func (l *Ledger) TokenOf(node common.Hash) (uint64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.tokens[node]
	return id, ok
}

func (l *Ledger) NodeOf(tokenID uint64) (common.Hash, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	node, ok := l.nodes[tokenID]
	return node, ok
}

// Holder returns the holder of node's token.
func (l *Ledger) Holder(node common.Hash) (common.Address, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.tokens[node]
	if !ok {
		return common.Address{}, false
	}
	return l.holders[id], true
}

// HolderOf returns the holder of a token by id.
func (l *Ledger) HolderOf(tokenID uint64) (common.Address, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.holders[tokenID]
	return h, ok
}

// BalanceOf counts the tokens held by owner.
func (l *Ledger) BalanceOf(owner common.Address) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, h := range l.holders {
		if h == owner {
			n++
		}
	}
	return n
}

// Minted returns the number of tokens ever minted.
func (l *Ledger) Minted() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.next - 1
}

// Approve sets the single delegate allowed to move node's token. The zero
// address clears it.
func (l *Ledger) Approve(node common.Hash, delegate common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.tokens[node]
	if !ok {
		return fmt.Errorf("%w: no token for %s", model.ErrNotFound, node.Hex())
	}
	if delegate == (common.Address{}) {
		delete(l.approved, id)
		return nil
	}
	l.approved[id] = delegate
	return nil
}

func (l *Ledger) Approved(node common.Hash) common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.approved[l.tokens[node]]
}

// SetOperator lets operator move every token owner holds.
func (l *Ledger) SetOperator(owner, operator common.Address, approved bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !approved {
		delete(l.operators[owner], operator)
		if len(l.operators[owner]) == 0 {
			delete(l.operators, owner)
		}
		return
	}
	if l.operators[owner] == nil {
		l.operators[owner] = map[common.Address]bool{}
	}
	l.operators[owner][operator] = true
}

func (l *Ledger) IsOperator(owner, operator common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.operators[owner][operator]
}

// CanMove reports whether caller is the holder of node's token, its
// approved delegate or an operator of the holder.
func (l *Ledger) CanMove(node common.Hash, caller common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.tokens[node]
	if !ok {
		return false
	}
	holder := l.holders[id]
	return caller == holder || l.approved[id] == caller || l.operators[holder][caller]
}

func (l *Ledger) NonceUsed(owner common.Address, nonce uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nonces[owner][nonce]
}

// UseNonce consumes nonce for owner.
func (l *Ledger) UseNonce(owner common.Address, nonce uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.nonces[owner][nonce] {
		return fmt.Errorf("%w: nonce %d for %s", model.ErrNonceReused, nonce, owner.Hex())
	}
	if l.nonces[owner] == nil {
		l.nonces[owner] = map[uint64]bool{}
	}
	l.nonces[owner][nonce] = true
	return nil
}
