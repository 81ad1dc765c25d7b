package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/acorn-io/acorn-names/pkg/version"
	"github.com/urfave/cli/v2"
)

func printVersion(c *cli.Context) error {
	v := version.Get()
	if c.Bool("json") {
		return json.NewEncoder(os.Stdout).Encode(v)
	}
	fmt.Printf("%s\n", v)
	return nil
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "print version",
		Action: printVersion,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print the version as JSON",
			},
		},
	}
}
