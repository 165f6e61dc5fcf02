package comms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"go_blackbox/chunking"
	"go_blackbox/constants"
	"go_blackbox/fileio"
	"go_blackbox/networking"
	"go_blackbox/networking/opcode"
	"time"

	"github.com/rs/zerolog"
)

type dumpState int

const (
	dumpIdle dumpState = iota
	dumpStartSent
	dumpAckWait
	dumpAckSent
	dumpReceiveLoop
	dumpDone
	dumpFailed
)

func (s dumpState) String() string {
	switch s {
	case dumpIdle:
		return "idle"
	case dumpStartSent:
		return "start-sent"
	case dumpAckWait:
		return "ack-wait"
	case dumpAckSent:
		return "ack-sent"
	case dumpReceiveLoop:
		return "receive-loop"
	case dumpDone:
		return "done"
	case dumpFailed:
		return "failed"
	}
	return "unknown"
}

// DumpResult holds every report the peer returned, in arrival order
type DumpResult struct {
	Items   []json.RawMessage
	Skipped []error // Reports that could not be decoded
}

// Compact returns items as one compact JSON array, empty when nothing arrived
func (r *DumpResult) Compact() []byte {
	if r == nil || len(r.Items) == 0 {
		return nil
	}
	items := make([][]byte, len(r.Items))
	for i, item := range r.Items {
		items[i] = item
	}
	out := []byte{'['}
	out = append(out, bytes.Join(items, []byte{','})...)
	return append(out, ']')
}

// DumpSession pulls every stored report of one kind from the peer
type DumpSession struct {
	Ticket    *Ticket
	Channel   networking.Channel
	MessageID uint32
	Command   uint8
	Codec     fileio.Codec
	MaxBody   int
	Settle    time.Duration

	ShutdownRetries int
	ShutdownWait    time.Duration

	state  dumpState
	logger zerolog.Logger
}

func (s *DumpSession) transition(next dumpState) {
	s.logger.Debug().Stringer("from", s.state).Stringer("to", next).Msg("dump state")
	s.state = next
}

// Run performs the dump handshake and receives reports until ALL_END.
// Protocol and transport failures abort the whole dump.
func (s *DumpSession) Run() (result *DumpResult, err error) {
	if err := s.Ticket.Valid(); err != nil {
		return nil, err
	}
	s.logger = s.Ticket.Logger().With().
		Uint32("msg_id", s.MessageID).
		Str("command", opcode.CommandName(s.Command)).Logger()
	s.state = dumpIdle

	defer networking.GracefulShutdown(s.Channel, s.ShutdownRetries, s.ShutdownWait)
	defer func() {
		if err != nil {
			s.transition(dumpFailed)
		}
		if s.Settle > 0 {
			time.Sleep(s.Settle)
		}
	}()

	if err := networking.SendStart(s.Channel, s.MessageID, s.Command); err != nil {
		return nil, err
	}
	s.transition(dumpStartSent)
	s.transition(dumpAckWait)
	if err := networking.ExpectAck(s.Channel, s.MessageID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServerNotReady, err)
	}
	if err := networking.SendAck(s.Channel, s.MessageID); err != nil {
		return nil, err
	}
	s.transition(dumpAckSent)

	result = &DumpResult{}
	if err := s.receive(result); err != nil {
		return nil, err
	}
	s.transition(dumpDone)
	s.logger.Info().Int("reports", len(result.Items)).Int("skipped", len(result.Skipped)).Msg("dump complete")
	return result, nil
}

func (s *DumpSession) receive(result *DumpResult) error {
	s.transition(dumpReceiveLoop)
	assembler := chunking.NewAssembler(s.MessageID)
	reports := 0
	for {
		packet, err := networking.ReceivePacket(s.Channel, s.MaxBody)
		if err != nil {
			return err
		}
		switch packet.MsgType {
		case opcode.DATA:
			if err := assembler.Add(packet); err != nil {
				return err
			}
			if packet.ChunkIndex%constants.ACK_PACING_INTERVAL == constants.ACK_PACING_INTERVAL-1 {
				if err := networking.SendAck(s.Channel, s.MessageID); err != nil {
					return err
				}
			}
		case opcode.END:
			if !assembler.Empty() {
				if !assembler.Complete() {
					chunks, size := assembler.Received()
					return fmt.Errorf("%w: report %d ended after %d chunks and %d bytes", networking.ErrProtocolViolation,
						reports, chunks, size)
				}
				s.collect(result, reports, assembler.Bytes())
			} else {
				s.logger.Debug().Int("report", reports).Msg("empty report")
			}
			assembler.Reset()
			if err := networking.SendAck(s.Channel, s.MessageID); err != nil {
				return err
			}
			if err := networking.ExpectAck(s.Channel, s.MessageID); err != nil {
				return fmt.Errorf("%w: report %d: %w", networking.ErrHandshakeRejected, reports, err)
			}
			reports++
		case opcode.ALL_END:
			if !assembler.Empty() {
				chunks, _ := assembler.Received()
				s.logger.Warn().Uint32("chunks", chunks).Msg("dropping report without END")
			}
			if err := networking.SendAck(s.Channel, s.MessageID); err != nil {
				return err
			}
			// The stream is already complete, a missing ACK changes nothing.
			networking.WaitAck(s.Channel, s.MessageID)
			return nil
		default:
			s.logger.Debug().Str("type", opcode.Name(packet.MsgType)).Msg("ignoring frame")
		}
	}
}

// collect decodes one report. Undecodable reports are recorded and skipped.
func (s *DumpSession) collect(result *DumpResult, report int, data []byte) {
	text, err := s.Codec.Decompress(data)
	if err == nil {
		var item []byte
		if item, err = fileio.CompactJSON(text); err == nil {
			result.Items = append(result.Items, item)
			s.logger.Debug().Int("report", report).Str("digest", fileio.Digest(item)).Msg("report received")
			return
		}
	}
	skipped := fmt.Errorf("%w: report %d: %w", networking.ErrPayload, report, err)
	s.logger.Warn().Err(skipped).Msg("skipping report")
	result.Skipped = append(result.Skipped, skipped)
}
