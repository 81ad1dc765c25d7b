package commands

import (
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/acorn-io/acorn-names/pkg/namehash"
	"github.com/acorn-io/acorn-names/pkg/pricing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
)

var priceYears = []uint64{1, 2, 3, 5, 10}

func printPrices(c *cli.Context) error {
	cfg := pricing.DefaultConfig()
	if path := c.String("pricing-config"); path != "" {
		var err error
		if cfg, err = pricing.LoadFile(path); err != nil {
			return err
		}
	}

	header := []string{"Length"}
	for _, y := range priceYears {
		header = append(header, strconv.FormatUint(y, 10)+"y")
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for length := 1; length <= pricing.PremiumTiers+1; length++ {
		label := strings.Repeat("a", length)
		node, err := namehash.NodeID(namehash.Root, label)
		if err != nil {
			return err
		}
		name := strconv.Itoa(length)
		if length > pricing.PremiumTiers {
			name += "+"
		}
		table.Append(priceRow(cfg, name, label, node))
	}

	if label := c.Args().First(); label != "" {
		node, err := namehash.NodeID(namehash.Root, label)
		if err != nil {
			return err
		}
		table.Append(priceRow(cfg, label, label, node))
	}

	table.Render()
	return nil
}

func priceRow(cfg *pricing.Config, name, label string, node common.Hash) []string {
	row := []string{name}
	for _, y := range priceYears {
		row = append(row, formatEther(cfg.PriceOf(label, node, y*pricing.OneYear)))
	}
	return row
}

// formatEther renders wei as a decimal ether amount without trailing zeros.
func formatEther(wei *big.Int) string {
	r := new(big.Rat).SetFrac(wei, pricing.Ether)
	s := r.FloatString(18)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func pricesCommand() *cli.Command {
	return &cli.Command{
		Name:      "prices",
		Usage:     "print registration prices by label length and years",
		ArgsUsage: "[label]",
		Action:    printPrices,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "pricing-config",
				Usage:   "YAML pricing table",
				EnvVars: []string{"ACORN_NAMES_PRICING_CONFIG"},
			},
		},
	}
}
