package pricing

import (
	"math/big"
	"strings"
	"testing"

	"github.com/acorn-io/acorn-names/pkg/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var someNode = common.HexToHash("0xabc")

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestPriceOfOneYear(t *testing.T) {
	cfg := DefaultConfig()

	// 5+ characters pay the base price only.
	assert.Equal(t, cfg.BasePrice, cfg.PriceOf("hello", someNode, OneYear))

	want := new(big.Int).Add(cfg.BasePrice, cfg.Premiums[2])
	assert.Equal(t, want, cfg.PriceOf("abc", someNode, OneYear))
}

func TestPriceOfMultiYearDiscount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DurationMultiplierBps = map[uint64]uint64{1: 10_000, 2: 9_500}

	one := cfg.PriceOf("hello", someNode, OneYear)
	two := cfg.PriceOf("hello", someNode, 2*OneYear)

	doubled := new(big.Int).Mul(one, big.NewInt(2))
	assert.Equal(t, -1, two.Cmp(doubled), "two years %s should be below %s", two, doubled)

	// 0.01 * 2 * 0.95
	assert.Equal(t, new(big.Int).Mul(big.NewInt(19), Milli), two)
}

func TestPriceOfPartialYearInterpolates(t *testing.T) {
	cfg := DefaultConfig()

	half := cfg.PriceOf("hello", someNode, OneYear/2)
	assert.Equal(t, new(big.Int).Div(cfg.BasePrice, big.NewInt(2)), half)

	// 2.5 years uses the 2 year tier for the whole duration.
	got := cfg.PriceOf("hello", someNode, 2*OneYear+OneYear/2)
	want := new(big.Int).Mul(cfg.BasePrice, big.NewInt(9_500*5))
	want.Div(want, big.NewInt(10_000*2))
	assert.Equal(t, want, got)
}

func TestMultiplierFallsBackToLowerTier(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, uint64(9_000), cfg.MultiplierBps(4))
	assert.Equal(t, uint64(8_000), cfg.MultiplierBps(30))

	cfg.DurationMultiplierBps = nil
	assert.Equal(t, FullBps, cfg.MultiplierBps(3))
}

func TestOverridesWinAndIgnoreDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FixedPrice["vip"] = big.NewInt(7)
	cfg.CustomPrice[someNode] = big.NewInt(3)

	assert.Equal(t, big.NewInt(3), cfg.PriceOf("vip", someNode, 5*OneYear), "custom node price wins over label price")
	assert.Equal(t, big.NewInt(7), cfg.PriceOf("vip", common.HexToHash("0x1"), OneYear))
	assert.Equal(t, big.NewInt(7), cfg.PriceOf("vip", common.HexToHash("0x1"), 9*OneYear))
}

func TestRenewalOmitsPremium(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, cfg.BasePrice, cfg.RenewalPriceOf("a", someNode, OneYear))
	assert.Equal(t, cfg.PriceOf("hello", someNode, OneYear), cfg.RenewalPriceOf("hello", someNode, OneYear))

	cfg.FixedPrice["a"] = big.NewInt(1)
	assert.Equal(t, big.NewInt(1), cfg.RenewalPriceOf("a", someNode, OneYear))
}

func TestReturnedPricesAreCopies(t *testing.T) {
	cfg := DefaultConfig()
	p := cfg.PriceOf("hello", someNode, OneYear)
	p.SetInt64(0)
	assert.NotZero(t, cfg.BasePrice.Sign())
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"zero base":            func(c *Config) { c.BasePrice = big.NewInt(0) },
		"increasing premium":   func(c *Config) { c.Premiums[3] = new(big.Int).Set(c.Premiums[2]) },
		"zero premium":         func(c *Config) { c.Premiums[3] = big.NewInt(0) },
		"surcharge multiplier": func(c *Config) { c.DurationMultiplierBps[2] = 10_001 },
		"zero multiplier":      func(c *Config) { c.DurationMultiplierBps[2] = 0 },
		"zero years":           func(c *Config) { c.DurationMultiplierBps[0] = 10_000 },
		"negative fixed":       func(c *Config) { c.FixedPrice["x"] = big.NewInt(-1) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), model.ErrInvalidPricing)
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FixedPrice["x"] = big.NewInt(5)
	c := cfg.Clone()

	c.BasePrice.SetInt64(1)
	c.Premiums[0].SetInt64(1)
	c.FixedPrice["x"].SetInt64(1)
	c.DurationMultiplierBps[2] = 1

	assert.NotEqual(t, int64(1), cfg.BasePrice.Int64())
	assert.Equal(t, int64(5), cfg.FixedPrice["x"].Int64())
	assert.Equal(t, uint64(9_500), cfg.DurationMultiplierBps[2])
}

func TestPricingProperties(t *testing.T) {
	cfg := DefaultConfig()

	rapid.Check(t, func(rt *rapid.T) {
		label := rapid.StringMatching(`[a-z0-9]{1,12}`).Draw(rt, "label")
		duration := rapid.Uint64Range(OneYear/12, 20*OneYear).Draw(rt, "duration")

		price := cfg.PriceOf(label, someNode, duration)
		renewal := cfg.RenewalPriceOf(label, someNode, duration)
		if price.Sign() < 0 || renewal.Sign() < 0 {
			rt.Fatalf("negative price %s / %s", price, renewal)
		}
		if renewal.Cmp(price) > 0 {
			rt.Fatalf("renewal %s above registration %s for %q", renewal, price, label)
		}

		years := rapid.Uint64Range(2, 10).Draw(rt, "years")
		multi := cfg.PriceOf(label, someNode, years*OneYear)
		single := new(big.Int).Mul(cfg.PriceOf(label, someNode, OneYear), new(big.Int).SetUint64(years))
		if multi.Cmp(single) >= 0 {
			rt.Fatalf("%d years cost %s, not below %s", years, multi, single)
		}
	})
}

func TestShorterLabelsCostMore(t *testing.T) {
	cfg := DefaultConfig()
	rapid.Check(t, func(rt *rapid.T) {
		short := rapid.IntRange(1, PremiumTiers).Draw(rt, "short")
		long := rapid.IntRange(short+1, PremiumTiers+3).Draw(rt, "long")
		years := rapid.Uint64Range(1, 10).Draw(rt, "years")

		ps := cfg.PriceOf(strings.Repeat("a", short), someNode, years*OneYear)
		pl := cfg.PriceOf(strings.Repeat("a", long), someNode, years*OneYear)
		if ps.Cmp(pl) <= 0 {
			rt.Fatalf("length %d costs %s, length %d costs %s", short, ps, long, pl)
		}
	})
}

func TestParseFile(t *testing.T) {
	raw := []byte(`
basePrice: "100"
premiums:
  1: "400"
  2: "300"
  3: "200"
  4: "100"
durationMultiplierBps:
  1: 10000
  3: 9000
fixedPrices:
  acorn: "0"
customPrices:
  "0x0000000000000000000000000000000000000000000000000000000000000abc": "9"
`)
	cfg, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(100), cfg.BasePrice)
	assert.Equal(t, big.NewInt(400), cfg.Premiums[0])
	assert.Equal(t, uint64(9_000), cfg.MultiplierBps(4))
	assert.Equal(t, "0", cfg.PriceOf("acorn", common.Hash{}, OneYear).String())
	assert.Equal(t, big.NewInt(9), cfg.PriceOf("zzz", someNode, OneYear))
}

func TestParseFileRejects(t *testing.T) {
	_, err := Parse([]byte(`basePrice: "abc"`))
	assert.Error(t, err)

	_, err = Parse([]byte("premiums:\n  5: \"1\"\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("premiums:\n  4: \"999999999999999999999\"\n"))
	assert.ErrorIs(t, err, model.ErrInvalidPricing)
}
