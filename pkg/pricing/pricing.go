// Package pricing computes registration and renewal cost for a label.
//
// The annual price is the base price plus a premium for short labels. A
// duration multiplier (basis points, keyed by whole years) discounts longer
// commitments; durations that are not whole years interpolate linearly with
// the multiplier of their year tier. Per-node and per-label overrides win
// over the formula.
package pricing

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/acorn-io/acorn-names/pkg/model"
	"github.com/ethereum/go-ethereum/common"
)

const (
	OneYear uint64 = 365 * 24 * 60 * 60

	// FullBps is a multiplier of 1.
	FullBps uint64 = 10_000

	// PremiumTiers is the number of label lengths (1..PremiumTiers) that
	// carry a premium; longer labels pay the base price only.
	PremiumTiers = 4
)

var (
	Ether = big.NewInt(1_000_000_000_000_000_000)
	Milli = big.NewInt(1_000_000_000_000_000)
)

type Config struct {
	BasePrice             *big.Int                 `json:"basePrice"`
	Premiums              [PremiumTiers]*big.Int   `json:"premiums"`
	DurationMultiplierBps map[uint64]uint64        `json:"durationMultiplierBps,omitempty"`
	CustomPrice           map[common.Hash]*big.Int `json:"customPrice,omitempty"`
	FixedPrice            map[string]*big.Int      `json:"fixedPrice,omitempty"`
}

// DefaultConfig prices a long label at 0.01 per year with premiums of
// 1, 0.5, 0.1 and 0.05 for one to four characters.
func DefaultConfig() *Config {
	return &Config{
		BasePrice: new(big.Int).Mul(big.NewInt(10), Milli),
		Premiums: [PremiumTiers]*big.Int{
			new(big.Int).Set(Ether),
			new(big.Int).Mul(big.NewInt(500), Milli),
			new(big.Int).Mul(big.NewInt(100), Milli),
			new(big.Int).Mul(big.NewInt(50), Milli),
		},
		DurationMultiplierBps: map[uint64]uint64{
			1:  FullBps,
			2:  9_500,
			3:  9_000,
			5:  8_500,
			10: 8_000,
		},
		CustomPrice: map[common.Hash]*big.Int{},
		FixedPrice:  map[string]*big.Int{},
	}
}

// Validate rejects tables that would let a longer label cost as much as a
// shorter one or that would surcharge multi-year registrations.
func (c *Config) Validate() error {
	if c.BasePrice == nil || c.BasePrice.Sign() <= 0 {
		return fmt.Errorf("%w: base price must be positive", model.ErrInvalidPricing)
	}
	for i, p := range c.Premiums {
		if p == nil || p.Sign() <= 0 {
			return fmt.Errorf("%w: premium for length %d must be positive", model.ErrInvalidPricing, i+1)
		}
		if i > 0 && p.Cmp(c.Premiums[i-1]) >= 0 {
			return fmt.Errorf("%w: premium for length %d must be below length %d", model.ErrInvalidPricing, i+1, i)
		}
	}
	for years, bps := range c.DurationMultiplierBps {
		if years == 0 {
			return fmt.Errorf("%w: multiplier keyed by zero years", model.ErrInvalidPricing)
		}
		if bps == 0 || bps > FullBps {
			return fmt.Errorf("%w: multiplier for %d years must be in (0, %d]", model.ErrInvalidPricing, years, FullBps)
		}
	}
	for node, p := range c.CustomPrice {
		if p == nil || p.Sign() < 0 {
			return fmt.Errorf("%w: negative custom price for %s", model.ErrInvalidPricing, node.Hex())
		}
	}
	for label, p := range c.FixedPrice {
		if p == nil || p.Sign() < 0 {
			return fmt.Errorf("%w: negative fixed price for %q", model.ErrInvalidPricing, label)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := &Config{
		BasePrice:             cloneInt(c.BasePrice),
		DurationMultiplierBps: make(map[uint64]uint64, len(c.DurationMultiplierBps)),
		CustomPrice:           make(map[common.Hash]*big.Int, len(c.CustomPrice)),
		FixedPrice:            make(map[string]*big.Int, len(c.FixedPrice)),
	}
	for i, p := range c.Premiums {
		out.Premiums[i] = cloneInt(p)
	}
	for k, v := range c.DurationMultiplierBps {
		out.DurationMultiplierBps[k] = v
	}
	for k, v := range c.CustomPrice {
		out.CustomPrice[k] = cloneInt(v)
	}
	for k, v := range c.FixedPrice {
		out.FixedPrice[k] = cloneInt(v)
	}
	return out
}

// PriceOf is the registration cost of label (whose node id is node) for
// duration seconds.
func (c *Config) PriceOf(label string, node common.Hash, duration uint64) *big.Int {
	if p, ok := c.override(label, node); ok {
		return p
	}
	return c.scale(c.annual(label), duration)
}

// RenewalPriceOf is the renewal cost: the formula without the length
// premium, capped by any override so renewal never costs more than
// registration.
func (c *Config) RenewalPriceOf(label string, node common.Hash, duration uint64) *big.Int {
	price := c.scale(cloneInt(c.BasePrice), duration)
	if p, ok := c.override(label, node); ok && p.Cmp(price) < 0 {
		return p
	}
	return price
}

// MultiplierBps returns the multiplier of the largest configured year count
// not above years.
func (c *Config) MultiplierBps(years uint64) uint64 {
	tiers := make([]uint64, 0, len(c.DurationMultiplierBps))
	for y := range c.DurationMultiplierBps {
		tiers = append(tiers, y)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] > tiers[j] })
	for _, y := range tiers {
		if y <= years {
			return c.DurationMultiplierBps[y]
		}
	}
	return FullBps
}

func (c *Config) override(label string, node common.Hash) (*big.Int, bool) {
	if p, ok := c.CustomPrice[node]; ok && p != nil {
		return cloneInt(p), true
	}
	if p, ok := c.FixedPrice[label]; ok && p != nil {
		return cloneInt(p), true
	}
	return nil, false
}

func (c *Config) annual(label string) *big.Int {
	price := cloneInt(c.BasePrice)
	if n := len(label); n >= 1 && n <= PremiumTiers && c.Premiums[n-1] != nil {
		price.Add(price, c.Premiums[n-1])
	}
	return price
}

// scale computes annual * bps(tier) * duration / (FullBps * OneYear).
func (c *Config) scale(annual *big.Int, duration uint64) *big.Int {
	tier := duration / OneYear
	if tier == 0 {
		tier = 1
	}
	bps := c.MultiplierBps(tier)

	price := new(big.Int).Mul(annual, new(big.Int).SetUint64(bps))
	price.Mul(price, new(big.Int).SetUint64(duration))
	denom := new(big.Int).Mul(new(big.Int).SetUint64(FullBps), new(big.Int).SetUint64(OneYear))
	return price.Div(price, denom)
}

func cloneInt(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}
