package main

import (
	"fmt"
	stdlog "log"
	"os"
	"strings"

	"netctrl-go/pkg/management"
	"netctrl-go/pkg/netctrl"

	"github.com/urfave/cli/v2"
)

var ctlCommand = &cli.Command{
	Name:        "ctl",
	Usage:       "controls a running daemon via the management socket",
	UsageText:   "ctl <command> [args...]",
	Description: `Sends one command to the daemon's management socket and prints the response. Try 'ctl help' for the list of daemon commands.`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "password",
			Aliases: []string{"k"},
			Usage:   "management socket password, if the daemon requires one",
		},
	},
	Action: ctlCmd,
}

func ctl(command, password string) {
	cfg, err := netctrl.LoadConfig()
	if err != nil {
		stdlog.Fatalf("failed to load configuration: %v", err)
	}
	if password == "" {
		password = cfg.ManagementPassword
	}

	mgmt := management.NewClient(cfg.ManagementApp, password)
	res, err := mgmt.SendCommand(command)
	if err != nil {
		stdlog.Fatalf("%v", err)
	}
	fmt.Println(res)
	os.Exit(0)
}

func ctlCmd(c *cli.Context) error {
	ctl(strings.Join(c.Args().Slice(), " "), c.String("password"))
	return nil
}
