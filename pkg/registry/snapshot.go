package registry

import (
	"math/big"
	"sort"

	"github.com/acorn-io/acorn-names/pkg/capability"
	"github.com/acorn-io/acorn-names/pkg/ledger"
	"github.com/acorn-io/acorn-names/pkg/pricing"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/exp/maps"
)

// Snapshot is the full registry state.
type Snapshot struct {
	Records   []Record                                   `json:"records"`
	Halted    []common.Hash                              `json:"halted,omitempty"`
	Ledger    ledger.Snapshot                            `json:"ledger"`
	Pricing   *pricing.Config                            `json:"pricing"`
	Paused    bool                                       `json:"paused"`
	Collected *big.Int                                   `json:"collected"`
	Grants    map[common.Address][]capability.Capability `json:"grants"`
}

// Snapshot waits for running mutations to finish and copies the state.
func (r *Registry) Snapshot() Snapshot {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.RLock()
	s := Snapshot{
		Records: maps.Values(r.records),
		Halted:  maps.Keys(r.halted),
		Pricing: r.pricing.Clone(),
		Paused:  r.paused,
	}
	r.mu.RUnlock()
	sort.Slice(s.Records, func(i, j int) bool { return s.Records[i].TokenID < s.Records[j].TokenID })

	s.Ledger = r.ledger.Snapshot()
	s.Collected = r.Collected()
	s.Grants = r.caps.Grants()
	return s
}

// Restore builds a registry from s. cfg supplies timing, clock, sinks and
// logging; the snapshot's pricing table wins over cfg.Pricing. cfg.Admin
// keeps the admin capability.
func Restore(cfg Config, s Snapshot) (*Registry, error) {
	if s.Pricing != nil {
		cfg.Pricing = s.Pricing
	}
	if err := cfg.complete(); err != nil {
		return nil, err
	}
	r := newRegistry(cfg)
	r.ledger = ledger.Restore(s.Ledger)
	for _, rec := range s.Records {
		r.records[rec.Node] = rec
	}
	for _, node := range s.Halted {
		r.halted[node] = true
	}
	r.paused = s.Paused
	r.pool = amount(s.Collected)

	grants := map[common.Address][]capability.Capability{}
	maps.Copy(grants, s.Grants)
	if !hasCap(grants[cfg.Admin], capability.Admin) {
		grants[cfg.Admin] = append(grants[cfg.Admin], capability.Admin)
	}
	r.caps.Load(grants)

	for node := range r.records {
		if err := r.checkSync(node); err != nil {
			r.log.Warnf("restored halted node: %v", err)
		}
	}
	return r, nil
}

func hasCap(caps []capability.Capability, c capability.Capability) bool {
	for _, have := range caps {
		if have == c {
			return true
		}
	}
	return false
}
