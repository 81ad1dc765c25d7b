package registry

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/acorn-io/acorn-names/pkg/capability"
	"github.com/acorn-io/acorn-names/pkg/events"
	"github.com/acorn-io/acorn-names/pkg/model"
	"github.com/acorn-io/acorn-names/pkg/pricing"
	"github.com/ethereum/go-ethereum/common"
)

// Admin operations stay available while paused.

func (r *Registry) SetBasePrice(caller common.Address, price *big.Int) error {
	return r.updatePricing(caller, "basePrice", func(c *pricing.Config) {
		c.BasePrice = amount(price)
	})
}

// SetPremium sets the premium for labels of the given length (1..4).
func (r *Registry) SetPremium(caller common.Address, length int, price *big.Int) error {
	if length < 1 || length > pricing.PremiumTiers {
		return fmt.Errorf("%w: no premium tier for length %d", model.ErrInvalidPricing, length)
	}
	return r.updatePricing(caller, "premium."+strconv.Itoa(length), func(c *pricing.Config) {
		c.Premiums[length-1] = amount(price)
	})
}

// SetDurationMultiplier sets the multiplier for registrations of at least
// years whole years. A zero bps removes the tier.
func (r *Registry) SetDurationMultiplier(caller common.Address, years, bps uint64) error {
	return r.updatePricing(caller, "durationMultiplier."+strconv.FormatUint(years, 10), func(c *pricing.Config) {
		if bps == 0 {
			delete(c.DurationMultiplierBps, years)
			return
		}
		c.DurationMultiplierBps[years] = bps
	})
}

// SetCustomPrice overrides the price of one node. A nil price removes the
// override.
func (r *Registry) SetCustomPrice(caller common.Address, node common.Hash, price *big.Int) error {
	return r.updatePricing(caller, "customPrice."+node.Hex(), func(c *pricing.Config) {
		if price == nil {
			delete(c.CustomPrice, node)
			return
		}
		c.CustomPrice[node] = amount(price)
	})
}

// SetFixedPrice overrides the price of a label at any level. A nil price
// removes the override.
func (r *Registry) SetFixedPrice(caller common.Address, label string, price *big.Int) error {
	return r.updatePricing(caller, "fixedPrice."+label, func(c *pricing.Config) {
		if price == nil {
			delete(c.FixedPrice, label)
			return
		}
		c.FixedPrice[label] = amount(price)
	})
}

// SetPricing replaces the whole pricing table.
func (r *Registry) SetPricing(caller common.Address, cfg *pricing.Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil pricing table", model.ErrInvalidPricing)
	}
	return r.updatePricing(caller, "all", func(c *pricing.Config) {
		*c = *cfg.Clone()
	})
}

// updatePricing applies change to a copy of the table and swaps it in only
// if the result validates.
func (r *Registry) updatePricing(caller common.Address, field string, change func(*pricing.Config)) error {
	if err := r.caps.Require(caller, capability.Admin); err != nil {
		return err
	}
	r.opMu.RLock()
	defer r.opMu.RUnlock()

	r.mu.Lock()
	next := r.pricing.Clone()
	change(next)
	if err := next.Validate(); err != nil {
		r.mu.Unlock()
		return err
	}
	r.pricing = next
	r.mu.Unlock()

	r.log.WithField("field", field).Info("pricing changed")
	ev := events.New(events.KindPriceChanged, caller, r.clock.Now())
	ev.Data = map[string]string{"field": field}
	r.emit(ev)
	return nil
}

func (r *Registry) Pause(caller common.Address) error {
	return r.setPaused(caller, true)
}

func (r *Registry) Unpause(caller common.Address) error {
	return r.setPaused(caller, false)
}

func (r *Registry) setPaused(caller common.Address, paused bool) error {
	if err := r.caps.Require(caller, capability.Admin); err != nil {
		return err
	}
	// Waits out every mutation in flight; each re-checks the flag under
	// its node lock.
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	r.paused = paused
	r.mu.Unlock()

	kind := events.KindUnpaused
	if paused {
		kind = events.KindPaused
	}
	r.log.WithField("paused", paused).Info("pause state changed")
	r.emit(events.New(kind, caller, r.clock.Now()))
	return nil
}

// Withdraw drains the collected payments and returns the amount taken.
func (r *Registry) Withdraw(caller common.Address) (*big.Int, error) {
	if err := r.caps.Require(caller, capability.Admin); err != nil {
		return nil, err
	}
	r.opMu.RLock()
	defer r.opMu.RUnlock()

	r.poolMu.Lock()
	taken := r.pool
	r.pool = new(big.Int)
	r.poolMu.Unlock()

	ev := events.New(events.KindWithdrawn, caller, r.clock.Now())
	ev.Amount = new(big.Int).Set(taken)
	ev.Data = map[string]string{"source": "registry"}
	r.emit(ev)
	return taken, nil
}

func (r *Registry) GrantCapability(caller, who common.Address, c capability.Capability) error {
	r.opMu.RLock()
	defer r.opMu.RUnlock()
	if err := r.caps.Grant(caller, who, c); err != nil {
		return err
	}
	ev := events.New(events.KindCapabilityGranted, caller, r.clock.Now())
	ev.Owner = who
	ev.Data = map[string]string{"capability": string(c)}
	r.emit(ev)
	return nil
}

func (r *Registry) RevokeCapability(caller, who common.Address, c capability.Capability) error {
	r.opMu.RLock()
	defer r.opMu.RUnlock()
	if err := r.caps.Revoke(caller, who, c); err != nil {
		return err
	}
	ev := events.New(events.KindCapabilityRevoked, caller, r.clock.Now())
	ev.Owner = who
	ev.Data = map[string]string{"capability": string(c)}
	r.emit(ev)
	return nil
}
