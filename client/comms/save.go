package comms

import (
	"errors"
	"fmt"
	"go_blackbox/networking"
	"go_blackbox/networking/opcode"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrServerNotReady          = fmt.Errorf("%w: server not ready", networking.ErrHandshakeRejected)
	ErrTransmissionInterrupted = errors.New("comms: transmission interrupted")
	ErrEndRejected             = fmt.Errorf("%w: end of transfer not acknowledged", networking.ErrHandshakeRejected)
)

type saveState int

const (
	saveIdle saveState = iota
	saveStartSent
	saveAckSent
	saveDataSent
	saveEndSent
	saveDone
	saveFailed
)

func (s saveState) String() string {
	switch s {
	case saveIdle:
		return "idle"
	case saveStartSent:
		return "start-sent"
	case saveAckSent:
		return "ack-sent"
	case saveDataSent:
		return "data-sent"
	case saveEndSent:
		return "end-sent"
	case saveDone:
		return "done"
	case saveFailed:
		return "failed"
	}
	return "unknown"
}

// Progress receives the body bytes the peer has acknowledged
type Progress interface {
	Start(total int)
	Add(n int) error
}

// SaveSession pushes one prepared payload to the peer
type SaveSession struct {
	Ticket    *Ticket
	Channel   networking.Channel
	MessageID uint32
	Command   uint8
	Packets   []*networking.Packet
	Progress  Progress

	ShutdownRetries int
	ShutdownWait    time.Duration

	state  saveState
	logger zerolog.Logger
}

func (s *SaveSession) transition(next saveState) {
	s.logger.Debug().Stringer("from", s.state).Stringer("to", next).Msg("save state")
	s.state = next
}

// Run drives the save handshake, streams every packet in lock-step and
// closes the channel whatever the outcome.
func (s *SaveSession) Run() (err error) {
	if err := s.Ticket.Valid(); err != nil {
		return err
	}
	s.logger = s.Ticket.Logger().With().
		Uint32("msg_id", s.MessageID).
		Str("command", opcode.CommandName(s.Command)).Logger()
	s.state = saveIdle

	defer networking.GracefulShutdown(s.Channel, s.ShutdownRetries, s.ShutdownWait)
	defer func() {
		if err != nil {
			s.transition(saveFailed)
		}
	}()

	if err := networking.SendStart(s.Channel, s.MessageID, s.Command); err != nil {
		return err
	}
	s.transition(saveStartSent)
	if err := networking.ExpectAck(s.Channel, s.MessageID); err != nil {
		return fmt.Errorf("%w: %w", ErrServerNotReady, err)
	}

	// Second handshake beat before the peer accepts data.
	if err := networking.SendAck(s.Channel, s.MessageID); err != nil {
		return err
	}
	s.transition(saveAckSent)

	if s.Progress != nil {
		total := 0
		for _, packet := range s.Packets {
			total += len(packet.Body)
		}
		s.Progress.Start(total)
	}
	for _, packet := range s.Packets {
		if err := networking.SendData(s.Channel, packet); err != nil {
			return fmt.Errorf("%w: chunk %d: %w", ErrTransmissionInterrupted, packet.ChunkIndex, err)
		}
		s.transition(saveDataSent)
		if err := networking.ExpectAck(s.Channel, s.MessageID); err != nil {
			return fmt.Errorf("%w: chunk %d of %d: %w", ErrTransmissionInterrupted,
				packet.ChunkIndex, packet.ChunkCount, err)
		}
		if s.Progress != nil {
			if err := s.Progress.Add(len(packet.Body)); err != nil {
				s.logger.Debug().Err(err).Msg("progress update failed")
			}
		}
	}

	if err := networking.SendEnd(s.Channel, s.MessageID); err != nil {
		return err
	}
	s.transition(saveEndSent)
	if err := networking.ExpectAck(s.Channel, s.MessageID); err != nil {
		return fmt.Errorf("%w: %w", ErrEndRejected, err)
	}
	s.transition(saveDone)
	s.logger.Info().Int("chunks", len(s.Packets)).Msg("save complete")
	return nil
}
