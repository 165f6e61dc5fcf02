package config

import (
	"fmt"
	"go_blackbox/constants"
	"go_blackbox/fileio"
	"go_blackbox/networking"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config is the file configuration shared by client and server
type Config struct {
	Transport TransportSection `toml:"transport" yaml:"transport"`
	Protocol  ProtocolSection  `toml:"protocol" yaml:"protocol"`
	Session   SessionSection   `toml:"session" yaml:"session"`
	Log       LogSection       `toml:"log" yaml:"log"`
}

// TransportSection selects the socket family and peer address
type TransportSection struct {
	Network string `toml:"network" yaml:"network"`
	CID     uint32 `toml:"cid" yaml:"cid"`
	Port    uint32 `toml:"port" yaml:"port"`
	Address string `toml:"address" yaml:"address"`
	DSCP    int    `toml:"dscp" yaml:"dscp"`
}

// ProtocolSection holds frame sizing, message ids and the payload codec
type ProtocolSection struct {
	MaxBodySize   int    `toml:"max_body_size" yaml:"max_body_size"`
	MessageID     uint32 `toml:"message_id" yaml:"message_id"`
	DumpMessageID uint32 `toml:"dump_message_id" yaml:"dump_message_id"`
	Codec         string `toml:"codec" yaml:"codec"`
}

// SessionSection tunes pauses and close confirmation around a session
type SessionSection struct {
	DumpSettle      string `toml:"dump_settle" yaml:"dump_settle"`
	ShutdownRetries int    `toml:"shutdown_retries" yaml:"shutdown_retries"`
	ShutdownWait    string `toml:"shutdown_wait" yaml:"shutdown_wait"`
}

// LogSection sets the log level used when no flag or env var overrides it
type LogSection struct {
	Level string `toml:"level" yaml:"level"`
}

// Default returns configuration matching the deployed host peer
func Default() Config {
	return Config{
		Transport: TransportSection{
			Network: "vsock",
			CID:     constants.DEFAULT_SERVER_CID,
			Port:    constants.DEFAULT_SERVER_PORT,
			Address: constants.DEFAULT_TCP_ADDRESS,
			DSCP:    constants.DEFAULT_DSCP,
		},
		Protocol: ProtocolSection{
			MaxBodySize:   constants.MAX_MESSAGE_BODY_SIZE,
			MessageID:     constants.DEFAULT_MESSAGE_ID,
			DumpMessageID: constants.DEFAULT_DUMP_MESSAGE_ID,
			Codec:         constants.DEFAULT_CODEC,
		},
		Session: SessionSection{
			DumpSettle:      (constants.DUMP_SETTLE_MS * time.Millisecond).String(),
			ShutdownRetries: constants.SHUTDOWN_RETRIES,
			ShutdownWait:    (constants.SHUTDOWN_WAIT_MS * time.Millisecond).String(),
		},
		Log: LogSection{Level: "info"},
	}
}

// Load reads path on top of Default. YAML is used for .yaml/.yml files,
// TOML otherwise. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	default:
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		for _, key := range meta.Undecoded() {
			log.Warn().Str("key", key.String()).Str("file", path).Msg("unknown config key")
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges
func (c Config) Validate() error {
	switch c.Transport.Network {
	case "vsock":
		if c.Transport.Port == 0 {
			return fmt.Errorf("transport.port is required for vsock")
		}
	case "tcp":
		if strings.TrimSpace(c.Transport.Address) == "" {
			return fmt.Errorf("transport.address is required for tcp")
		}
	default:
		return fmt.Errorf("transport.network must be vsock or tcp, got %q", c.Transport.Network)
	}
	if c.Protocol.MaxBodySize < 1 || c.Protocol.MaxBodySize > constants.MAX_MESSAGE_BODY_SIZE {
		return fmt.Errorf("protocol.max_body_size must be 1..%d", constants.MAX_MESSAGE_BODY_SIZE)
	}
	if _, err := fileio.GetCodec(c.Protocol.Codec); err != nil {
		return fmt.Errorf("protocol.codec: %w", err)
	}
	if _, err := time.ParseDuration(c.Session.DumpSettle); err != nil {
		return fmt.Errorf("parse session.dump_settle: %w", err)
	}
	if _, err := time.ParseDuration(c.Session.ShutdownWait); err != nil {
		return fmt.Errorf("parse session.shutdown_wait: %w", err)
	}
	if c.Session.ShutdownRetries < 0 {
		return fmt.Errorf("session.shutdown_retries must not be negative")
	}
	return nil
}

// TransportConfig returns the dial/listen parameters
func (c Config) TransportConfig() networking.TransportConfig {
	return networking.TransportConfig{
		Network: c.Transport.Network,
		CID:     c.Transport.CID,
		Port:    c.Transport.Port,
		Address: c.Transport.Address,
		DSCP:    c.Transport.DSCP,
	}
}

// DumpSettleDuration returns pause after a dump, zero when unparsable
func (s SessionSection) DumpSettleDuration() time.Duration {
	d, _ := time.ParseDuration(s.DumpSettle)
	return d
}

// ShutdownWaitDuration returns read deadline per shutdown attempt, zero when unparsable
func (s SessionSection) ShutdownWaitDuration() time.Duration {
	d, _ := time.ParseDuration(s.ShutdownWait)
	return d
}
