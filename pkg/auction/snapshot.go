package auction

import (
	"math/big"
	"sort"
)

type Snapshot struct {
	Auctions []Auction `json:"auctions"`
	Proceeds *big.Int  `json:"proceeds"`
}

// Snapshot waits for running operations and copies every auction, ordered
// by start time then label.
func (e *Engine) Snapshot() Snapshot {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.RLock()
	s := Snapshot{Auctions: make([]Auction, 0, len(e.auctions))}
	for _, a := range e.auctions {
		s.Auctions = append(s.Auctions, a.clone())
	}
	e.mu.RUnlock()
	sort.Slice(s.Auctions, func(i, j int) bool {
		if s.Auctions[i].StartedAt != s.Auctions[j].StartedAt {
			return s.Auctions[i].StartedAt < s.Auctions[j].StartedAt
		}
		return s.Auctions[i].Label < s.Auctions[j].Label
	})
	s.Proceeds = e.Proceeds()
	return s
}

// Restore builds an engine holding the auctions in s.
func Restore(cfg Config, reg Registrar, s Snapshot) (*Engine, error) {
	e, err := New(cfg, reg)
	if err != nil {
		return nil, err
	}
	for i := range s.Auctions {
		a := s.Auctions[i].clone()
		e.auctions[a.Node] = &a
	}
	if s.Proceeds != nil {
		e.proceeds = new(big.Int).Set(s.Proceeds)
	}
	return e, nil
}
