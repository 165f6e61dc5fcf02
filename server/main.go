package main

import (
	"fmt"
	"go_blackbox/config"
	"go_blackbox/constants"
	"go_blackbox/logging"
	server "go_blackbox/server/controller"
	"go_blackbox/server/worker"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/akamensky/argparse"
	"github.com/rs/zerolog/log"
)

func main() {
	args := argparse.NewParser("server", constants.Title)

	conf := args.String("c", "config", &argparse.Options{Required: false, Help: "Config file (.toml or .yaml)"})
	level := args.String("d", "log-level", &argparse.Options{Required: false, Help: "Log level"})
	bind := args.String("l", "listen", &argparse.Options{Required: false, Help: "Listen on address for tcp transport"})
	network := args.Selector("n", "network", []string{"vsock", "tcp"}, &argparse.Options{Required: false,
		Help: "Transport (config default vsock)"})
	port := args.Int("p", "port", &argparse.Options{Required: false, Help: "Listening vsock port (config default 1234)"})
	queue := args.Int("q", "queue", &argparse.Options{Required: false, Help: "Report write queue length",
		Default: constants.REPORT_WRITE_QUEUE})
	path := args.String("r", "root", &argparse.Options{Required: false, Help: "Root path for persisting reports"})

	err := args.Parse(os.Args)

	if err != nil {
		fmt.Print(args.Usage(err))
		os.Exit(1)
	}

	logging.ConfigureRuntime()

	cfg, err := config.Load(*conf)
	if err != nil {
		log.Fatal().Err(err).Msg("could not load config")
	}
	logging.ResolveLevel(*level, cfg.Log.Level)

	if *network != "" {
		cfg.Transport.Network = *network
	}
	if *bind != "" {
		cfg.Transport.Address = *bind
	}
	if *port > 0 {
		cfg.Transport.Port = uint32(*port)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid settings")
	}

	store := worker.NewReportStore()
	if *path != "" {
		store, err = worker.OpenReportStore(filepath.Clean(*path), *queue)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid root folder")
		}
	}

	handler := server.NewHandler(store)
	handler.MaxBody = cfg.Protocol.MaxBodySize
	handler.ShutdownRetries = cfg.Session.ShutdownRetries
	handler.ShutdownWait = cfg.Session.ShutdownWaitDuration()

	// Flush persisted reports on interrupt.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		store.Close()
		os.Exit(0)
	}()

	if err := server.NewServer(handler).StartListening(cfg.TransportConfig()); err != nil {
		store.Close()
		log.Fatal().Err(err).Msg("could not bind listening socket")
	}
}
