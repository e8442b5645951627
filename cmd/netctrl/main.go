package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Set via -ldflags at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "netctrl",
		Usage:   "process-targeted network traffic control (block, degrade, restore)",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Commands: []*cli.Command{
			runCommand,
			ctlCommand,
			logsCommand,
			recoverCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
