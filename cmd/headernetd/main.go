// Command headernetd runs the headers-only chain's peer-to-peer networking
// core standalone: it maintains peer connections, synchronizes headers
// from the network, and relays newly-connected blocks, driven against
// whatever chain.Reader implementation is wired in (chain/memchain, here,
// standing in for a real validation engine).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/urfave/cli.v1"

	"github.com/unicity-labs/headernet/chain/memchain"
	"github.com/unicity-labs/headernet/log"
	"github.com/unicity-labs/headernet/network"
	"github.com/unicity-labs/headernet/wire"
)

var (
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	listenPortFlag = cli.IntFlag{
		Name:  "port",
		Usage: "Override the listen port from config",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=crit ... 5=trace",
		Value: int(log.LvlInfo),
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "headernetd"
	app.Usage = "headers-only chain peer-to-peer networking daemon"
	app.Flags = []cli.Flag{configFileFlag, listenPortFlag, verbosityFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	log.SetLevel(log.Lvl(ctx.Int(verbosityFlag.Name)))

	cfg := defaultDaemonConfig()
	if file := ctx.String(configFileFlag.Name); file != "" {
		loaded, err := loadConfig(file)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	if ctx.IsSet(listenPortFlag.Name) {
		cfg.Network.ListenPort = ctx.Int(listenPortFlag.Name)
	}

	genesis := wire.BlockHeader{Version: wire.ProtocolVersion, Bits: 0x1d00ffff}
	reader := memchain.New(genesis)

	mgr := network.NewManager(cfg.Network, reader)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(runCtx); err != nil {
		return fmt.Errorf("starting network core: %w", err)
	}

	log.Info("headernetd started", "listen_port", cfg.Network.ListenPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	cancel()
	return mgr.Stop()
}
