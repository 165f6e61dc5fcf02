package networking

import (
	"bufio"
	"errors"
	"fmt"
	"go_blackbox/constants"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/mdlayher/vsock"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/ipv4"
)

// ShutdownHow selects which direction of a channel to shut down
type ShutdownHow int

const (
	ShutdownRead ShutdownHow = iota
	ShutdownWrite
	ShutdownBoth
)

// Channel is a connected reliable ordered byte stream to the peer
type Channel interface {
	io.Reader
	io.Writer
	Flush() error
	Shutdown(how ShutdownHow) error
	Close() error
}

// TransportConfig describes how to reach or expose the peer
type TransportConfig struct {
	Network string // "vsock" or "tcp"
	CID     uint32 // vsock context id
	Port    uint32 // vsock port
	Address string // tcp host:port
	DSCP    int    // tcp only
}

// Conn is a Channel over net.Conn with a packet sized write buffer
type Conn struct {
	conn   net.Conn
	writer *bufio.Writer
	closed atomic.Bool
}

// NewConn wraps conn as a Channel
func NewConn(conn net.Conn) *Conn {
	return &Conn{
		conn:   conn,
		writer: bufio.NewWriterSize(conn, constants.MAX_MESSAGE_PACKET_SIZE),
	}
}

// Dial connects to the peer over vsock or tcp
func Dial(cfg TransportConfig) (*Conn, error) {
	switch cfg.Network {
	case "vsock", "":
		conn, err := vsock.Dial(cfg.CID, cfg.Port, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: dial vsock %d:%d: %w", ErrTransport, cfg.CID, cfg.Port, err)
		}
		return NewConn(conn), nil
	case "tcp":
		dial := new(net.Dialer)
		conn, err := dial.Dial("tcp", cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("%w: dial tcp %s: %w", ErrTransport, cfg.Address, err)
		}
		// Set TCP_NODELAY to always immediately send.
		conn.(*net.TCPConn).SetNoDelay(true)
		// DSCP sits in the upper six bits of TOS.
		if cfg.DSCP > 0 {
			if err := ipv4.NewConn(conn).SetTOS(cfg.DSCP << 2); err != nil {
				log.Debug().Err(err).Msg("could not set DSCP")
			}
		}
		return NewConn(conn), nil
	default:
		return nil, fmt.Errorf("%w: unknown network %q", ErrTransport, cfg.Network)
	}
}

// Listen binds a listening socket for the host side of the protocol
func Listen(cfg TransportConfig) (net.Listener, error) {
	switch cfg.Network {
	case "vsock", "":
		l, err := vsock.Listen(cfg.Port, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: listen vsock port %d: %w", ErrTransport, cfg.Port, err)
		}
		return l, nil
	case "tcp":
		l, err := net.Listen("tcp", cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("%w: listen tcp %s: %w", ErrTransport, cfg.Address, err)
		}
		return l, nil
	default:
		return nil, fmt.Errorf("%w: unknown network %q", ErrTransport, cfg.Network)
	}
}

// Read reads straight from the socket
func (c *Conn) Read(p []byte) (int, error) {
	return c.conn.Read(p)
}

// Write buffers p until Flush
func (c *Conn) Write(p []byte) (int, error) {
	return c.writer.Write(p)
}

// Flush pushes buffered frames to the socket
func (c *Conn) Flush() error {
	return c.writer.Flush()
}

// Shutdown closes one or both directions of the connection
func (c *Conn) Shutdown(how ShutdownHow) error {
	switch how {
	case ShutdownRead:
		if hc, ok := c.conn.(interface{ CloseRead() error }); ok {
			return hc.CloseRead()
		}
		return fmt.Errorf("%w: read half-close on %T", ErrShutdownUnsupported, c.conn)
	case ShutdownWrite:
		if hc, ok := c.conn.(interface{ CloseWrite() error }); ok {
			return hc.CloseWrite()
		}
		return fmt.Errorf("%w: write half-close on %T", ErrShutdownUnsupported, c.conn)
	case ShutdownBoth:
		return c.Close()
	default:
		return ErrShutdownUnsupported
	}
}

// Close closes the connection, later calls return net.ErrClosed
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return net.ErrClosed
	}
	return c.conn.Close()
}

// Closed reports whether Close has been called
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// AwaitPeerClose drains the read side until the peer closes its end.
// Each attempt waits at most wait; returns true once EOF is observed.
func (c *Conn) AwaitPeerClose(attempts int, wait time.Duration) bool {
	buf := make([]byte, constants.MESSAGE_HEADER_SIZE)
	for i := 0; i < attempts; i++ {
		if err := c.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
			return false
		}
		for {
			_, err := c.conn.Read(buf)
			if err == nil {
				continue
			}
			if errors.Is(err, io.EOF) {
				return true
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				break
			}
			return false
		}
		log.Debug().Int("attempt", i+1).Msg("peer has not closed yet")
	}
	return false
}

// GracefulShutdown closes the channel on a best-effort basis.
// Errors are logged, never returned, and repeated calls are harmless.
func GracefulShutdown(ch Channel, attempts int, wait time.Duration) {
	if c, ok := ch.(interface{ Closed() bool }); ok && c.Closed() {
		log.Debug().Msg("channel already closed")
		return
	}
	if err := ch.Flush(); err != nil {
		log.Debug().Err(err).Msg("flush before shutdown failed")
	}
	if err := ch.Shutdown(ShutdownWrite); err != nil {
		log.Debug().Err(err).Msg("write shutdown failed")
	}
	if w, ok := ch.(interface {
		AwaitPeerClose(int, time.Duration) bool
	}); ok && attempts > 0 {
		if !w.AwaitPeerClose(attempts, wait) {
			log.Debug().Int("attempts", attempts).Msg("peer did not confirm close")
		}
	}
	if err := ch.Close(); err != nil {
		log.Warn().Err(err).Msg("closing channel failed")
	}
}
