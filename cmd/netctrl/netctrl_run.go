package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"netctrl-go/pkg/ledger"
	"netctrl-go/pkg/log"
	"netctrl-go/pkg/management"
	"netctrl-go/pkg/netctrl"
	"netctrl-go/pkg/priv"
	"netctrl-go/pkg/shaper"

	"github.com/urfave/cli/v2"
)

var runCommand = &cli.Command{
	Name:        "run",
	Usage:       "starts the netctrl daemon with an interactive console",
	UsageText:   "run [options] [target]",
	Description: `Starts the controller, opens the management socket and drops into an interactive console. All restrictions are reversed on quit or signal.`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "target",
			Aliases: []string{"t"},
			Usage:   "process name to control `NAME` (may also be given as positional argument)",
		},
		&cli.StringFlag{
			Name:    "match-mode",
			Aliases: []string{"m"},
			Usage:   "how the target name matches running processes: exact, prefix or substring",
		},
		&cli.StringFlag{
			Name:    "interface",
			Aliases: []string{"i"},
			Usage:   "network interface `IFACE` for the lag command",
		},
		&cli.BoolFlag{
			Name:  "confirm-setup",
			Usage: "wait for firewall bootstrap to finish instead of running it in the background",
		},
		&cli.StringFlag{
			Name:  "api",
			Usage: "listen address `ADDR` for the read-only HTTP API (e.g. 127.0.0.1:7878)",
		},
		&cli.BoolFlag{
			Name:  "no-management",
			Usage: "do not open the management socket",
		},
	},
	Action: runCmd,
}

func runCmd(c *cli.Context) error {
	cfg, err := netctrl.LoadConfig()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to load configuration: %v", err), 1)
	}

	if c.IsSet("target") {
		cfg.Target = c.String("target")
	}
	if c.Args().Len() > 0 {
		cfg.Target = c.Args().First()
	}
	if c.IsSet("match-mode") {
		cfg.MatchMode = c.String("match-mode")
	}
	if c.IsSet("interface") {
		cfg.Interface = c.String("interface")
	}
	if c.Bool("confirm-setup") {
		cfg.ConfirmSetup = true
	}
	if c.IsSet("api") {
		cfg.APIListenAddr = c.String("api")
	}
	if c.Bool("no-management") {
		cfg.EnableManagement = false
	}

	run(cfg)
	return nil
}

func run(cfg *netctrl.Config) {
	if !priv.IsElevated() {
		fmt.Fprintln(os.Stderr, "netctrl needs administrative privileges to edit firewall rules.")
		os.Exit(1)
	}

	if err := log.Init(cfg.LogDBFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log.SetStd()
	defer log.Close()

	log.Printf("netctrl %s starting", Version)

	ctrl, err := netctrl.NewController(cfg)
	if err != nil {
		log.Fatalf("Failed to create controller: %v", err)
	}
	defer ctrl.Close()

	var mgmt *management.Server
	if cfg.EnableManagement {
		mgmt = management.NewServer(cfg.ManagementApp, cfg.ManagementPassword)
		registerControlHandlers(mgmt, ctrl, cfg)
		if err := mgmt.Start(); err != nil {
			log.Printf("management socket unavailable: %v", err)
			mgmt = nil
		} else {
			defer mgmt.Stop()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %s, reversing restrictions...", sig)
		ctrl.Close()
		// os.Exit skips the deferred cleanup; stop the socket explicitly so
		// no stale file is left behind.
		if mgmt != nil {
			mgmt.Stop()
		}
		log.Close()
		os.Exit(0)
	}()

	if cfg.APIListenAddr != "" {
		api := netctrl.NewAPI(ctrl, cfg.APIListenAddr)
		go func() {
			if err := api.Run(); err != nil {
				log.Printf("http api stopped: %v", err)
			}
		}()
	}

	console(ctrl, cfg)
}

// registerControlHandlers wires the controller's operations onto the
// management socket, mirroring the interactive console commands.
func registerControlHandlers(s *management.Server, ctrl *netctrl.Controller, cfg *netctrl.Config) {
	target := func(args []string) string {
		if len(args) > 0 {
			return args[0]
		}
		return cfg.Target
	}

	s.RegisterHandler("block", "Block the target in both directions. Usage: block [name]", func(args []string) (string, error) {
		return outcomeReply(ctrl.Block(context.Background(), target(args)))
	})
	s.RegisterHandler("block-out", "Block the target's outbound traffic. Usage: block-out [name]", func(args []string) (string, error) {
		return outcomeReply(ctrl.BlockOutbound(context.Background(), target(args)))
	})
	s.RegisterHandler("block-in", "Block the target's inbound traffic. Usage: block-in [name]", func(args []string) (string, error) {
		return outcomeReply(ctrl.BlockInbound(context.Background(), target(args)))
	})
	s.RegisterHandler("lag", "Degrade an interface. Usage: lag <delay-ms> [loss-percent] [iface]", func(args []string) (string, error) {
		p, iface, err := parseLagArgs(args)
		if err != nil {
			return "", err
		}
		return outcomeReply(ctrl.Lag(context.Background(), iface, p))
	})
	s.RegisterHandler("off", "Reverse every active restriction", func(args []string) (string, error) {
		n := ctrl.Unblock(context.Background())
		return fmt.Sprintf("OK: %d restriction(s) reversed", n), nil
	})
	s.RegisterHandler("status", "Show active restrictions as JSON", func(args []string) (string, error) {
		buf, err := json.MarshalIndent(ctrl.Status(), "", "  ")
		if err != nil {
			return "", err
		}
		return string(buf), nil
	})
}

func outcomeReply(outcome ledger.Outcome, err error) (string, error) {
	if err != nil {
		return "", err
	}
	switch outcome {
	case ledger.Applied:
		return "OK: applied", nil
	case ledger.AlreadyActive:
		return "OK: already active", nil
	default:
		return "NOK: failed", nil
	}
}

// parseLagArgs reads "<delay-ms> [loss-percent] [iface]".
func parseLagArgs(args []string) (shaper.Params, string, error) {
	var p shaper.Params
	if len(args) == 0 {
		return p, "", fmt.Errorf("usage: lag <delay-ms> [loss-percent] [iface]")
	}
	ms, err := strconv.Atoi(args[0])
	if err != nil || ms < 0 {
		return p, "", fmt.Errorf("invalid delay %q, want milliseconds", args[0])
	}
	p.Delay = time.Duration(ms) * time.Millisecond
	iface := ""
	if len(args) > 1 {
		loss, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return p, "", fmt.Errorf("invalid loss %q, want percent", args[1])
		}
		p.Loss = loss
	}
	if len(args) > 2 {
		iface = args[2]
	}
	return p, iface, nil
}

const consoleHelp = `Commands:
  block,  b            block target traffic in both directions
  block-out, bo        block outbound only
  block-in,  bi        block inbound only
  lag <ms> [loss%]     add delay/loss on the configured interface
  off, unblock, u      reverse every active restriction
  status, s            show active restrictions
  target <name>        change the controlled process
  help, h              this text
  quit, q              reverse everything and exit`

// console runs the interactive loop. It exits on quit or EOF; restrictions
// are reversed by the deferred Close in run.
func console(ctrl *netctrl.Controller, cfg *netctrl.Config) {
	in := bufio.NewScanner(os.Stdin)
	for {
		prompt := "netctrl> "
		if ctrl.AnyActive() {
			prompt = "netctrl*> "
		}
		fmt.Print(prompt)
		if !in.Scan() {
			fmt.Println()
			return
		}
		fields := strings.Fields(in.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := strings.ToLower(fields[0]), fields[1:]

		ctx := context.Background()
		targetName := cfg.Target
		if (cmd == "block" || cmd == "b" || cmd == "block-out" || cmd == "bo" ||
			cmd == "block-in" || cmd == "bi") && len(args) > 0 {
			targetName = args[0]
		}

		switch cmd {
		case "block", "b":
			printOutcome(ctrl.Block(ctx, targetName))
		case "block-out", "bo":
			printOutcome(ctrl.BlockOutbound(ctx, targetName))
		case "block-in", "bi":
			printOutcome(ctrl.BlockInbound(ctx, targetName))
		case "lag":
			p, iface, err := parseLagArgs(args)
			if err != nil {
				fmt.Println(err)
				continue
			}
			printOutcome(ctrl.Lag(ctx, iface, p))
		case "off", "unblock", "u", "disable":
			n := ctrl.Unblock(ctx)
			fmt.Printf("%d restriction(s) reversed\n", n)
		case "status", "s":
			printStatus(ctrl.Status())
		case "target":
			if len(args) == 0 {
				fmt.Printf("target: %q (match mode %s)\n", cfg.Target, cfg.MatchMode)
				continue
			}
			cfg.Target = args[0]
			fmt.Printf("target set to %q\n", cfg.Target)
		case "help", "h", "?":
			fmt.Println(consoleHelp)
		case "quit", "q", "exit":
			return
		default:
			fmt.Printf("unknown command %q, try 'help'\n", cmd)
		}
	}
}

func printOutcome(outcome ledger.Outcome, err error) {
	if err != nil {
		fmt.Printf("failed: %v\n", err)
		return
	}
	switch outcome {
	case ledger.Applied:
		fmt.Println("applied")
	case ledger.AlreadyActive:
		fmt.Println("already active")
	}
}

func printStatus(s netctrl.Status) {
	fmt.Printf("target: %q (match mode %s)\n", s.Target, s.MatchMode)
	fmt.Printf("blocked: outbound=%v inbound=%v\n", s.BlockedOutbound, s.BlockedInbound)
	if len(s.Restrictions) == 0 {
		fmt.Println("no active restrictions")
		return
	}
	for _, r := range s.Restrictions {
		fmt.Printf("  %-8s %-7s %-30s since %s\n", r.Direction, r.Kind, r.Key, r.AppliedAt)
	}
}
