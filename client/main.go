package main

import (
	"context"
	"fmt"
	"go_blackbox/client/comms"
	"go_blackbox/config"
	"go_blackbox/constants"
	"go_blackbox/fileio"
	"go_blackbox/logging"
	"go_blackbox/networking/opcode"
	"os"
	"path/filepath"
	"time"

	"github.com/akamensky/argparse"
	"github.com/rs/zerolog/log"
)

var saveCommands = map[string]uint8{
	"state":   opcode.SAVE,
	"process": opcode.SAVE_PROCESS,
	"crash":   opcode.SAVE_CRASH_LOG,
}

var dumpCommands = map[string]uint8{
	"state":   opcode.DUMP,
	"process": opcode.DUMP_PROCESS,
	"crash":   opcode.DUMP_CRASH_LOG,
}

func main() {
	args := argparse.NewParser("client", constants.Title)

	address := args.String("a", "address", &argparse.Options{Required: false, Help: "Host address for tcp transport"})
	conf := args.String("c", "config", &argparse.Options{Required: false, Help: "Config file (.toml or .yaml)"})
	dump := args.String("d", "dump", &argparse.Options{Required: false, Help: "Dump reports from host into file"})
	cid := args.Int("i", "cid", &argparse.Options{Required: false, Help: "Host context id (config default 103)"})
	kind := args.Selector("k", "kind", []string{"state", "process", "crash"}, &argparse.Options{Required: false,
		Help: "Report kind", Default: "state"})
	level := args.String("l", "log-level", &argparse.Options{Required: false, Help: "Log level"})
	network := args.Selector("n", "network", []string{"vsock", "tcp"}, &argparse.Options{Required: false,
		Help: "Transport (config default vsock)"})
	port := args.Int("p", "port", &argparse.Options{Required: false, Help: "Host vsock port (config default 1234)"})
	save := args.String("s", "save", &argparse.Options{Required: false, Help: "Save JSON file to host"})
	pretty := args.Flag("y", "pretty", &argparse.Options{Help: "Indent dumped JSON"})
	codec := args.String("z", "codec", &argparse.Options{Required: false, Help: "Payload codec " +
		fmt.Sprint(fileio.CodecNames())})

	err := args.Parse(os.Args)

	if err != nil {
		fmt.Print(args.Usage(err))
		os.Exit(1)
	}

	if (*save == "") == (*dump == "") {
		fmt.Print(args.Usage("exactly one of --save or --dump is required"))
		os.Exit(1)
	}

	logging.ConfigureRuntime()

	cfg, err := config.Load(*conf)
	if err != nil {
		log.Fatal().Err(err).Msg("could not load config")
	}
	logging.ResolveLevel(*level, cfg.Log.Level)

	// Flags override config values.
	if *network != "" {
		cfg.Transport.Network = *network
	}
	if *address != "" {
		cfg.Transport.Address = *address
	}
	if *cid > 0 {
		cfg.Transport.CID = uint32(*cid)
	}
	if *port > 0 {
		cfg.Transport.Port = uint32(*port)
	}
	if *codec != "" {
		cfg.Protocol.Codec = *codec
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid settings")
	}
	payloadCodec, err := fileio.GetCodec(cfg.Protocol.Codec)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid codec")
	}

	opts := comms.Options{
		Transport:       cfg.TransportConfig(),
		MaxBodySize:     cfg.Protocol.MaxBodySize,
		MessageID:       cfg.Protocol.MessageID,
		DumpMessageID:   cfg.Protocol.DumpMessageID,
		Codec:           payloadCodec,
		DumpSettle:      cfg.Session.DumpSettleDuration(),
		ShutdownRetries: cfg.Session.ShutdownRetries,
		ShutdownWait:    cfg.Session.ShutdownWaitDuration(),
	}
	// Zero in the file means off, zero in Options means default.
	if opts.DumpSettle == 0 {
		opts.DumpSettle = -1
	}
	if opts.ShutdownRetries == 0 {
		opts.ShutdownRetries = -1
	}
	if opts.ShutdownWait == 0 {
		opts.ShutdownWait = -1
	}

	begin := time.Now()
	if *save != "" {
		fileName := filepath.Clean(*save)
		payload, err := fileio.ReadJSONCompact(fileName)
		if err != nil {
			log.Fatal().Err(err).Str("file", fileName).Msg("could not read payload")
		}

		progress := newProgress("saving " + *kind)
		if progress != nil {
			opts.Progress = progress
		}
		err = comms.NewClient(opts).Save(context.Background(), saveCommands[*kind], payload)
		if progress != nil {
			progress.Close()
		}
		if err != nil {
			log.Error().Err(err).Str("file", fileName).Msg("save failed")
			os.Exit(2)
		}
		log.Info().Str("file", fileName).Int("bytes", len(payload)).Dur("took", time.Since(begin)).
			Msg("host confirmed report has been saved")
		return
	}

	fileName := filepath.Clean(*dump)
	result, err := comms.NewClient(opts).Dump(context.Background(), dumpCommands[*kind])
	if err != nil {
		log.Error().Err(err).Msg("dump failed")
		os.Exit(2)
	}
	for _, skipped := range result.Skipped {
		log.Warn().Err(skipped).Msg("report skipped")
	}
	if err := fileio.WriteJSON(fileName, result.Compact(), *pretty); err != nil {
		log.Fatal().Err(err).Str("file", fileName).Msg("could not write dump")
	}
	log.Info().Str("file", fileName).Int("reports", len(result.Items)).Dur("took", time.Since(begin)).
		Msg("dump written")
}
