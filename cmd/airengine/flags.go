package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

// version is injected at build time with -ldflags "-X main.version=...".
var version = "dev"

// cliConfig holds user supplied flag values prior to validation and
// translation into the components main() wires together.
type cliConfig struct {
	channelConfigPath string
	controlListenAddr string
	evidenceSpoolDir  string
	asrunDir          string
	padWidth          int
	padHeight         int
	sampleRateHz      int
	audioChannels     int
	logLevel          string
	showVersion       bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("airengine", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	fs.StringVar(&cfg.channelConfigPath, "channel-config", "", "Path to the channel configuration YAML file (required)")
	fs.StringVar(&cfg.controlListenAddr, "control-listen", ":7100", "Control surface gRPC listen address")
	fs.StringVar(&cfg.evidenceSpoolDir, "evidence-dir", "evidence", "Directory for the durable evidence spool")
	fs.StringVar(&cfg.asrunDir, "asrun-dir", "asrun", "Directory for as-run fixed-width and JSONL logs")
	fs.IntVar(&cfg.padWidth, "pad-width", 1280, "Pad/black frame width in pixels")
	fs.IntVar(&cfg.padHeight, "pad-height", 720, "Pad/black frame height in pixels")
	fs.IntVar(&cfg.sampleRateHz, "sample-rate", 48000, "House audio sample rate in Hz")
	fs.IntVar(&cfg.audioChannels, "audio-channels", 2, "House audio channel count")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.showVersion {
		return cfg, nil
	}

	if cfg.channelConfigPath == "" {
		return nil, errors.New("-channel-config is required")
	}
	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q", cfg.logLevel)
	}
	if cfg.sampleRateHz <= 0 {
		return nil, errors.New("-sample-rate must be positive")
	}
	if cfg.audioChannels <= 0 {
		return nil, errors.New("-audio-channels must be positive")
	}

	return cfg, nil
}
