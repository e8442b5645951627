package main

import (
	"fmt"

	"netctrl-go/pkg/log"
	"netctrl-go/pkg/netctrl"
	"netctrl-go/pkg/priv"

	"github.com/urfave/cli/v2"
)

var recoverCommand = &cli.Command{
	Name:        "recover",
	Usage:       "removes OS rules left behind by a crashed run",
	UsageText:   "recover",
	Description: `Reads the restriction journal and deletes any firewall rules or qdiscs that a previous run applied but never reversed.`,
	Action:      recoverCmd,
}

func recoverCmd(c *cli.Context) error {
	if !priv.IsElevated() {
		return cli.Exit("netctrl needs administrative privileges to edit firewall rules.", 1)
	}

	cfg, err := netctrl.LoadConfig()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to load configuration: %v", err), 1)
	}

	if err := log.Init(cfg.LogDBFile); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to initialize logger: %v", err), 1)
	}
	log.SetStd()
	defer log.Close()

	n, err := netctrl.Recover(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Recovery failed: %v", err), 1)
	}
	if n == 0 {
		fmt.Println("No orphaned restrictions found.")
		return nil
	}
	fmt.Printf("Cleaned up %d orphaned restriction(s).\n", n)
	return nil
}
