package commands

import (
	"fmt"

	"github.com/acorn-io/acorn-names/pkg/namehash"
	"github.com/urfave/cli/v2"
)

func printNamehash(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one dotted name is required, e.g. foo.acorn")
	}
	for _, name := range c.Args().Slice() {
		node, err := namehash.NameHash(name)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", node.Hex(), name)
	}
	return nil
}

func namehashCommand() *cli.Command {
	return &cli.Command{
		Name:      "namehash",
		Usage:     "print the node id of dotted names",
		ArgsUsage: "name [name...]",
		Action:    printNamehash,
	}
}
