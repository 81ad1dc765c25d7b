package pricing

import (
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// File is the on-disk pricing table. Amounts are decimal strings in the
// smallest unit.
//
//	basePrice: "10000000000000000"
//	premiums:
//	  1: "1000000000000000000"
//	  2: "500000000000000000"
//	  3: "100000000000000000"
//	  4: "50000000000000000"
//	durationMultiplierBps:
//	  1: 10000
//	  2: 9500
//	fixedPrices:
//	  acorn: "0"
//	customPrices:
//	  "0x…node": "42"
type File struct {
	BasePrice             string            `yaml:"basePrice" json:"basePrice,omitempty"`
	Premiums              map[int]string    `yaml:"premiums" json:"premiums,omitempty"`
	DurationMultiplierBps map[uint64]uint64 `yaml:"durationMultiplierBps" json:"durationMultiplierBps,omitempty"`
	FixedPrices           map[string]string `yaml:"fixedPrices" json:"fixedPrices,omitempty"`
	CustomPrices          map[string]string `yaml:"customPrices" json:"customPrices,omitempty"`
}

// LoadFile reads and validates a pricing table.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes a YAML pricing table. Missing sections fall back to
// DefaultConfig.
func Parse(raw []byte) (*Config, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode pricing file: %w", err)
	}
	return f.Config()
}

// Config builds a validated pricing table from f on top of DefaultConfig.
func (f File) Config() (*Config, error) {
	cfg := DefaultConfig()
	if f.BasePrice != "" {
		v, err := parseAmount(f.BasePrice)
		if err != nil {
			return nil, fmt.Errorf("basePrice: %w", err)
		}
		cfg.BasePrice = v
	}
	for length, s := range f.Premiums {
		if length < 1 || length > PremiumTiers {
			return nil, fmt.Errorf("premiums: length %d outside 1..%d", length, PremiumTiers)
		}
		v, err := parseAmount(s)
		if err != nil {
			return nil, fmt.Errorf("premiums[%d]: %w", length, err)
		}
		cfg.Premiums[length-1] = v
	}
	if len(f.DurationMultiplierBps) > 0 {
		cfg.DurationMultiplierBps = f.DurationMultiplierBps
	}
	for label, s := range f.FixedPrices {
		v, err := parseAmount(s)
		if err != nil {
			return nil, fmt.Errorf("fixedPrices[%s]: %w", label, err)
		}
		cfg.FixedPrice[label] = v
	}
	for node, s := range f.CustomPrices {
		v, err := parseAmount(s)
		if err != nil {
			return nil, fmt.Errorf("customPrices[%s]: %w", node, err)
		}
		cfg.CustomPrice[common.HexToHash(node)] = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
