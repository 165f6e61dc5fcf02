package server

import (
	"fmt"
	"go_blackbox/chunking"
	"go_blackbox/constants"
	"go_blackbox/networking"
	"go_blackbox/networking/opcode"
	"go_blackbox/server/worker"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Handler plays the host side of one session
type Handler struct {
	Store   *worker.ReportStore
	MaxBody int

	ShutdownRetries int
	ShutdownWait    time.Duration
}

// NewHandler returns handler with default protocol settings
func NewHandler(store *worker.ReportStore) *Handler {
	return &Handler{
		Store:           store,
		MaxBody:         constants.MAX_MESSAGE_BODY_SIZE,
		ShutdownRetries: constants.SHUTDOWN_RETRIES,
		ShutdownWait:    constants.SHUTDOWN_WAIT_MS * time.Millisecond,
	}
}

// Handle serves one connection from START to close
func (h *Handler) Handle(ch networking.Channel) error {
	defer networking.GracefulShutdown(ch, h.ShutdownRetries, h.ShutdownWait)

	start, err := networking.ReceivePacket(ch, h.MaxBody)
	if err != nil {
		return err
	}
	if start.MsgType != opcode.START {
		networking.SendError(ch, start.MessageID)
		return fmt.Errorf("%w: session opened with %s", networking.ErrProtocolViolation, opcode.Name(start.MsgType))
	}
	id, command := start.MessageID, start.Reserved
	logger := log.With().Uint32("msg_id", id).Str("command", opcode.CommandName(command)).Logger()

	if !opcode.IsSave(command) && !opcode.IsDump(command) {
		networking.SendError(ch, id)
		return fmt.Errorf("%w: unknown command %d", networking.ErrProtocolViolation, command)
	}
	if err := networking.SendAck(ch, id); err != nil {
		return err
	}
	if err := networking.ExpectAck(ch, id); err != nil {
		return err
	}

	if opcode.IsSave(command) {
		return h.receiveSave(ch, id, command, logger)
	}
	return h.serveDump(ch, id, command, logger)
}

// receiveSave acknowledges every verified chunk and stores the report on END
func (h *Handler) receiveSave(ch networking.Channel, id uint32, command uint8, logger zerolog.Logger) error {
	assembler := chunking.NewAssembler(id)
	for {
		packet, err := networking.ReceivePacket(ch, h.MaxBody)
		if err != nil {
			return err
		}
		switch packet.MsgType {
		case opcode.DATA:
			if err := assembler.Add(packet); err != nil {
				networking.SendError(ch, id)
				return err
			}
			if err := networking.SendAck(ch, id); err != nil {
				return err
			}
		case opcode.END:
			if assembler.Empty() {
				logger.Info().Msg("empty save")
				return networking.SendAck(ch, id)
			}
			if !assembler.Complete() {
				networking.SendError(ch, id)
				chunks, size := assembler.Received()
				return fmt.Errorf("%w: save ended after %d chunks and %d bytes", networking.ErrProtocolViolation,
					chunks, size)
			}
			report, err := h.Store.Put(command, assembler.Bytes())
			if err != nil {
				networking.SendError(ch, id)
				return err
			}
			logger.Info().Uint64("report", report.Seq).Int("bytes", len(report.Data)).
				Str("digest", report.Digest).Msg("report stored")
			return networking.SendAck(ch, id)
		default:
			networking.SendError(ch, id)
			return fmt.Errorf("%w: %s during save", networking.ErrProtocolViolation, opcode.Name(packet.MsgType))
		}
	}
}

// serveDump streams every stored report of the matching save command, then ALL_END
func (h *Handler) serveDump(ch networking.Channel, id uint32, command uint8, logger zerolog.Logger) error {
	reports := h.Store.Reports(opcode.SaveCommandFor(command))
	for _, report := range reports {
		packets := chunking.Split(report.Data, h.MaxBody)
		chunking.Stamp(packets, id)
		for _, packet := range packets {
			if err := networking.SendData(ch, packet); err != nil {
				return err
			}
			// Client paces every fifth chunk.
			if packet.ChunkIndex%constants.ACK_PACING_INTERVAL == constants.ACK_PACING_INTERVAL-1 {
				if err := networking.ExpectAck(ch, id); err != nil {
					return err
				}
			}
		}
		if err := networking.SendEnd(ch, id); err != nil {
			return err
		}
		if err := networking.ExpectAck(ch, id); err != nil {
			return err
		}
		if err := networking.SendAck(ch, id); err != nil {
			return err
		}
		logger.Debug().Uint64("report", report.Seq).Int("chunks", len(packets)).Msg("report sent")
	}
	if err := networking.SendAllEnd(ch, id); err != nil {
		return err
	}
	if err := networking.ExpectAck(ch, id); err != nil {
		return err
	}
	if err := networking.SendAck(ch, id); err != nil {
		return err
	}
	logger.Info().Int("reports", len(reports)).Msg("dump served")
	return nil
}
