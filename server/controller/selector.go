package server

import (
	"errors"
	"go_blackbox/networking"
	"net"

	"github.com/rs/zerolog/log"
)

// Server accepts one session at a time and hands it to the handler
type Server struct {
	handler *Handler
}

// NewServer returns server passing every connection to handler
func NewServer(handler *Handler) *Server {
	return &Server{handler: handler}
}

// StartListening binds new listening socket and serves it until it fails
func (s *Server) StartListening(cfg networking.TransportConfig) error {
	l, err := networking.Listen(cfg)
	if err != nil {
		return err
	}
	// Close the listener when serving ends.
	defer l.Close()

	log.Info().Str("network", cfg.Network).Str("addr", l.Addr().String()).Msg("listening")
	return s.Serve(l)
}

// Serve handles connections one at a time until the listener is closed
func (s *Server) Serve(l net.Listener) error {
	for {
		// Handle incoming connection.
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn().Err(err).Msg("failed to establish incoming connection")
			continue
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			// Set TCP_NODELAY to always immediately send.
			tcp.SetNoDelay(true)
		}

		remote := conn.RemoteAddr().String()
		log.Info().Str("remote", remote).Msg("new connection")
		if err := s.handler.Handle(networking.NewConn(conn)); err != nil {
			log.Warn().Err(err).Str("remote", remote).Msg("session failed")
		}
		log.Info().Str("remote", remote).Msg("client disconnected")
	}
}
