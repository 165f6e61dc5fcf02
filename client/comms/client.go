package comms

import (
	"context"
	"errors"
	"fmt"
	"go_blackbox/chunking"
	"go_blackbox/constants"
	"go_blackbox/fileio"
	"go_blackbox/networking"
	"go_blackbox/networking/opcode"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrInvalidCommand reports a save command given to Dump or the reverse
var ErrInvalidCommand = errors.New("comms: command not valid for this operation")

// DialFunc opens the channel a session runs over
type DialFunc func(cfg networking.TransportConfig) (networking.Channel, error)

// Options configures a Client. NewClient fills zero fields from DefaultOptions;
// a negative DumpSettle, ShutdownRetries, ShutdownWait or Transport.DSCP turns
// that step off.
type Options struct {
	Transport     networking.TransportConfig
	MaxBodySize   int
	MessageID     uint32
	DumpMessageID uint32
	Codec         fileio.Codec
	DumpSettle    time.Duration
	Progress      Progress

	ShutdownRetries int
	ShutdownWait    time.Duration

	Dial DialFunc
}

// DefaultOptions returns options for the deployed host peer
func DefaultOptions() Options {
	codec, _ := fileio.GetCodec(constants.DEFAULT_CODEC)
	return Options{
		Transport: networking.TransportConfig{
			Network: "vsock",
			CID:     constants.DEFAULT_SERVER_CID,
			Port:    constants.DEFAULT_SERVER_PORT,
			DSCP:    constants.DEFAULT_DSCP,
		},
		MaxBodySize:     constants.MAX_MESSAGE_BODY_SIZE,
		MessageID:       constants.DEFAULT_MESSAGE_ID,
		DumpMessageID:   constants.DEFAULT_DUMP_MESSAGE_ID,
		Codec:           codec,
		DumpSettle:      constants.DUMP_SETTLE_MS * time.Millisecond,
		ShutdownRetries: constants.SHUTDOWN_RETRIES,
		ShutdownWait:    constants.SHUTDOWN_WAIT_MS * time.Millisecond,
		Dial:            dialChannel,
	}
}

func dialChannel(cfg networking.TransportConfig) (networking.Channel, error) {
	conn, err := networking.Dial(cfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Client saves and dumps reports, one session at a time
type Client struct {
	opts      Options
	scheduler *Scheduler
}

// NewClient returns client using opts. Zero fields take their defaults.
func NewClient(opts Options) *Client {
	def := DefaultOptions()
	if opts.Transport.Network == "" {
		opts.Transport.Network = def.Transport.Network
	}
	if opts.Transport.Network == "vsock" {
		if opts.Transport.CID == 0 {
			opts.Transport.CID = def.Transport.CID
		}
		if opts.Transport.Port == 0 {
			opts.Transport.Port = def.Transport.Port
		}
	}
	if opts.Transport.DSCP == 0 {
		opts.Transport.DSCP = def.Transport.DSCP
	}
	if opts.MaxBodySize == 0 {
		opts.MaxBodySize = def.MaxBodySize
	}
	if opts.MessageID == 0 {
		opts.MessageID = def.MessageID
	}
	if opts.DumpMessageID == 0 {
		opts.DumpMessageID = def.DumpMessageID
	}
	if opts.Codec == nil {
		opts.Codec = def.Codec
	}
	if opts.Dial == nil {
		opts.Dial = def.Dial
	}
	opts.DumpSettle = durationOrDefault(opts.DumpSettle, def.DumpSettle)
	opts.ShutdownWait = durationOrDefault(opts.ShutdownWait, def.ShutdownWait)
	switch {
	case opts.ShutdownRetries == 0:
		opts.ShutdownRetries = def.ShutdownRetries
	case opts.ShutdownRetries < 0:
		opts.ShutdownRetries = 0
	}
	return &Client{opts: opts, scheduler: NewScheduler()}
}

func durationOrDefault(d, def time.Duration) time.Duration {
	switch {
	case d == 0:
		return def
	case d < 0:
		return 0
	}
	return d
}

// withSession runs fn while holding the transport, from dial to close
func (c *Client) withSession(ctx context.Context, fn func(ticket *Ticket, ch networking.Channel) error) error {
	ticket, err := c.scheduler.Acquire(ctx)
	if err != nil {
		return err
	}
	defer ticket.Release()

	ch, err := c.opts.Dial(c.opts.Transport)
	if err != nil {
		return err
	}
	return fn(ticket, ch)
}

// Save compresses payload and pushes it as one report
func (c *Client) Save(ctx context.Context, command uint8, payload []byte) error {
	if !opcode.IsSave(command) {
		return fmt.Errorf("%w: %s", ErrInvalidCommand, opcode.CommandName(command))
	}
	packets, size, err := chunking.Pack(payload, c.opts.Codec, c.opts.MaxBodySize, c.opts.MessageID)
	if err != nil {
		return err
	}
	log.Debug().Str("codec", c.opts.Codec.Name()).Int("raw", len(payload)).Int("compressed", size).
		Uint32("crc", fileio.ShortDigest(payload)).Msg("payload packed")
	return c.savePackets(ctx, command, packets)
}

// SaveRaw pushes data as is, skipping compression
func (c *Client) SaveRaw(ctx context.Context, command uint8, data []byte) error {
	if !opcode.IsSave(command) {
		return fmt.Errorf("%w: %s", ErrInvalidCommand, opcode.CommandName(command))
	}
	if c.opts.MaxBodySize <= 0 || c.opts.MaxBodySize > constants.MAX_MESSAGE_BODY_SIZE {
		return fmt.Errorf("comms: max body size %d out of range", c.opts.MaxBodySize)
	}
	packets := chunking.Split(data, c.opts.MaxBodySize)
	chunking.Stamp(packets, c.opts.MessageID)
	return c.savePackets(ctx, command, packets)
}

func (c *Client) savePackets(ctx context.Context, command uint8, packets []*networking.Packet) error {
	return c.withSession(ctx, func(ticket *Ticket, ch networking.Channel) error {
		session := &SaveSession{
			Ticket:          ticket,
			Channel:         ch,
			MessageID:       c.opts.MessageID,
			Command:         command,
			Packets:         packets,
			Progress:        c.opts.Progress,
			ShutdownRetries: c.opts.ShutdownRetries,
			ShutdownWait:    c.opts.ShutdownWait,
		}
		return session.Run()
	})
}

// Dump fetches every report the peer holds for a dump command
func (c *Client) Dump(ctx context.Context, command uint8) (*DumpResult, error) {
	if !opcode.IsDump(command) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCommand, opcode.CommandName(command))
	}
	var result *DumpResult
	err := c.withSession(ctx, func(ticket *Ticket, ch networking.Channel) error {
		session := &DumpSession{
			Ticket:          ticket,
			Channel:         ch,
			MessageID:       c.opts.DumpMessageID,
			Command:         command,
			Codec:           c.opts.Codec,
			MaxBody:         c.opts.MaxBodySize,
			Settle:          c.opts.DumpSettle,
			ShutdownRetries: c.opts.ShutdownRetries,
			ShutdownWait:    c.opts.ShutdownWait,
		}
		var err error
		result, err = session.Run()
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SaveState pushes a state snapshot
func (c *Client) SaveState(ctx context.Context, payload []byte) error {
	return c.Save(ctx, opcode.SAVE, payload)
}

// DumpState fetches every saved state snapshot
func (c *Client) DumpState(ctx context.Context) (*DumpResult, error) {
	return c.Dump(ctx, opcode.DUMP)
}

// SaveProcess pushes a process report
func (c *Client) SaveProcess(ctx context.Context, payload []byte) error {
	return c.Save(ctx, opcode.SAVE_PROCESS, payload)
}

// DumpProcess fetches every saved process report
func (c *Client) DumpProcess(ctx context.Context) (*DumpResult, error) {
	return c.Dump(ctx, opcode.DUMP_PROCESS)
}

// SaveCrashLog pushes a crash log
func (c *Client) SaveCrashLog(ctx context.Context, payload []byte) error {
	return c.Save(ctx, opcode.SAVE_CRASH_LOG, payload)
}

// DumpCrashLog fetches every saved crash log
func (c *Client) DumpCrashLog(ctx context.Context) (*DumpResult, error) {
	return c.Dump(ctx, opcode.DUMP_CRASH_LOG)
}
