package ledger

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

type Token struct {
	ID       uint64         `json:"id"`
	Node     common.Hash    `json:"node"`
	Holder   common.Address `json:"holder"`
	Approved common.Address `json:"approved,omitempty"`
}

type Snapshot struct {
	Next      uint64                              `json:"next"`
	Tokens    []Token                             `json:"tokens"`
	Operators map[common.Address][]common.Address `json:"operators,omitempty"`
	Nonces    map[common.Address][]uint64         `json:"nonces,omitempty"`
}

// Snapshot copies the ledger, tokens ordered by id.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Snapshot{
		Next:      l.next,
		Tokens:    make([]Token, 0, len(l.nodes)),
		Operators: map[common.Address][]common.Address{},
		Nonces:    map[common.Address][]uint64{},
	}
	for id, node := range l.nodes {
		s.Tokens = append(s.Tokens, Token{
			ID:       id,
			Node:     node,
			Holder:   l.holders[id],
			Approved: l.approved[id],
		})
	}
	sort.Slice(s.Tokens, func(i, j int) bool { return s.Tokens[i].ID < s.Tokens[j].ID })

	for owner, ops := range l.operators {
		for op := range ops {
			s.Operators[owner] = append(s.Operators[owner], op)
		}
	}
	for owner, used := range l.nonces {
		for n := range used {
			s.Nonces[owner] = append(s.Nonces[owner], n)
		}
		sort.Slice(s.Nonces[owner], func(i, j int) bool { return s.Nonces[owner][i] < s.Nonces[owner][j] })
	}
	return s
}

// Restore builds a ledger from a snapshot.
func Restore(s Snapshot) *Ledger {
	l := New()
	if s.Next > 0 {
		l.next = s.Next
	}
	for _, t := range s.Tokens {
		l.tokens[t.Node] = t.ID
		l.nodes[t.ID] = t.Node
		l.holders[t.ID] = t.Holder
		if t.Approved != (common.Address{}) {
			l.approved[t.ID] = t.Approved
		}
		if t.ID >= l.next {
			l.next = t.ID + 1
		}
	}
	for owner, ops := range s.Operators {
		for _, op := range ops {
			l.SetOperator(owner, op, true)
		}
	}
	for owner, used := range s.Nonces {
		l.nonces[owner] = map[uint64]bool{}
		for _, n := range used {
			l.nonces[owner][n] = true
		}
	}
	return l
}
