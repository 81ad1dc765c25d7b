package commands

import (
	"fmt"
	"math/big"

	"github.com/acorn-io/acorn-names/pkg/auction"
	"github.com/acorn-io/acorn-names/pkg/rand"
	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
)

// printCommitment prints what a bidder sends at commit time and what they
// must keep for the reveal.
func printCommitment(c *cli.Context) error {
	bidder := c.String("bidder")
	if !common.IsHexAddress(bidder) {
		return fmt.Errorf("--bidder %q is not an address", bidder)
	}
	amount, ok := new(big.Int).SetString(c.String("amount"), 10)
	if !ok || amount.Sign() < 0 {
		return fmt.Errorf("--amount %q is not a non-negative integer", c.String("amount"))
	}

	salt := rand.Salt()
	if s := c.String("salt"); s != "" {
		salt = common.HexToHash(s)
	}

	fmt.Printf("salt:       %s\n", salt.Hex())
	fmt.Printf("commitment: %s\n", auction.Commitment(amount, salt, common.HexToAddress(bidder)).Hex())
	return nil
}

func commitmentCommand() *cli.Command {
	return &cli.Command{
		Name:   "commitment",
		Usage:  "compute a sealed bid commitment",
		Action: printCommitment,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "bidder",
				Usage:    "Address the bid is committed for",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "amount",
				Usage:    "Bid amount in the smallest unit",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "salt",
				Usage: "32-byte hex salt. A random one is generated when empty",
			},
		},
	}
}
