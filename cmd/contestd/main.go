package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/inconshreveable/log15"

	"github.com/evotools/contestd/caster"
	"github.com/evotools/contestd/common"
	"github.com/evotools/contestd/config"
	"github.com/evotools/contestd/node"
	"github.com/evotools/contestd/platform"
	"github.com/evotools/contestd/refresh"
)

var (
	configFlag   = flag.String("config", "", "path to contestd.config.json")
	endpointFlag = flag.String("endpoint", "http://127.0.0.1:9998", "platform gateway endpoint")
	dataDirFlag  = flag.String("datadir", "", "data directory override")
	networkFlag  = flag.String("network", "", "network name override")
	refreshNow   = flag.Bool("refresh-now", false, "run one refresh immediately on startup")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *dataDirFlag != "" {
		cfg.DataDir = *dataDirFlag
	}
	if *networkFlag != "" {
		cfg.Network = *networkFlag
	}

	log15.Root().SetHandler(log15.MultiHandler(
		log15.LvlFilterHandler(log15.LvlInfo, log15.StdoutHandler),
		common.LogHandler(cfg.DataDir, "log", "contestd.log", cfg.LogLevel),
	))

	n := node.New(cfg, platform.NewHTTPClient(*endpointFlag))
	if err := n.Init(); err != nil {
		log.Fatalf("initializing node: %v", err)
	}
	if err := n.Start(); err != nil {
		log.Fatalf("starting node: %v", err)
	}

	color.Green("contestd started on %s, gateway %s", cfg.Network, *endpointFlag)
	go printEvents(n)

	if *refreshNow {
		go n.RefreshNow()
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-interrupt

	color.Yellow("shutting down")
	if err := n.Stop(); err != nil {
		log.Fatalf("stopping node: %v", err)
	}
}

func printEvents(n *node.Node) {
	refreshCh := n.Bus().On(node.TopicRefresh)
	errorCh := n.Bus().On(node.TopicError)
	voteCh := n.Bus().On(node.TopicVote)
	for {
		select {
		case ev := <-refreshCh:
			if rev, ok := ev.Args[0].(refresh.Event); ok && rev.Kind == refresh.EventSuccess {
				color.Green("%s", rev.Message)
			}
		case ev := <-errorCh:
			if rev, ok := ev.Args[0].(refresh.Event); ok {
				color.Red("%s", rev.Message)
			}
		case ev := <-voteCh:
			if cev, ok := ev.Args[0].(caster.Event); ok && cev.Kind == caster.EventCastStarting {
				color.Cyan("casting %s on %q for %d voter(s)", cev.Choice.String(), cev.ContestedName, cev.Voters)
			}
		}
	}
}
