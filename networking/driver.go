package networking

import (
	"fmt"
	"go_blackbox/constants"
	"go_blackbox/networking/opcode"
	"io"

	"github.com/rs/zerolog/log"
)

// SendStart sends header-only START frame with command in the reserved byte
func SendStart(ch Channel, id uint32, command uint8) error {
	start := NewPacket(opcode.START, 0, 0, 0)
	start.MessageID = id
	start.Reserved = command
	return writePacket(ch, start)
}

// SendAck sends header-only ACK frame
func SendAck(ch Channel, id uint32) error {
	return sendControl(ch, opcode.ACK, id)
}

// SendEnd sends header-only END frame
func SendEnd(ch Channel, id uint32) error {
	return sendControl(ch, opcode.END, id)
}

// SendAllEnd tells a dump client no further reports follow
func SendAllEnd(ch Channel, id uint32) error {
	return sendControl(ch, opcode.ALL_END, id)
}

// SendError tells the peer its previous frame was rejected
func SendError(ch Channel, id uint32) error {
	return sendControl(ch, opcode.ERROR, id)
}

// SendData writes full DATA frame in a single write and flushes
func SendData(ch Channel, packet *Packet) error {
	return writePacket(ch, packet)
}

func sendControl(ch Channel, msgType uint8, id uint32) error {
	packet := NewPacket(msgType, 0, 0, 0)
	packet.MessageID = id
	return writePacket(ch, packet)
}

func writePacket(ch Channel, packet *Packet) error {
	out, err := PacketToBytes(packet)
	if err != nil {
		return err
	}
	if _, err := ch.Write(out); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrTransport, opcode.Name(packet.MsgType), err)
	}
	if err := ch.Flush(); err != nil {
		return fmt.Errorf("%w: flush %s: %w", ErrTransport, opcode.Name(packet.MsgType), err)
	}
	return nil
}

// ExpectAck reads exactly one header and checks it is an ACK for id
func ExpectAck(ch Channel, id uint32) error {
	msg := make([]byte, constants.MESSAGE_HEADER_SIZE)
	if _, err := io.ReadFull(ch, msg); err != nil {
		return fmt.Errorf("%w: read ack: %w", ErrTransport, err)
	}
	header, err := DecodeHeader(msg)
	if err != nil {
		return err
	}
	if header.MsgType != opcode.ACK || header.MessageID != id {
		return fmt.Errorf("%w: expected ACK id=%d, got %s id=%d", ErrProtocolViolation,
			id, opcode.Name(header.MsgType), header.MessageID)
	}
	return nil
}

// WaitAck returns true only when the next frame is an ACK for id.
// Failures are logged and left for the caller to act on.
func WaitAck(ch Channel, id uint32) bool {
	if err := ExpectAck(ch, id); err != nil {
		log.Warn().Err(err).Uint32("msg_id", id).Msg("no ack")
		return false
	}
	return true
}

// BodyLen returns body length a header announces for a given max body size.
// Only DATA frames carry a body.
func BodyLen(header *Header, maxBody int) (int, error) {
	if header.MsgType != opcode.DATA {
		return 0, nil
	}
	if maxBody <= 0 || maxBody > constants.MAX_MESSAGE_BODY_SIZE {
		return 0, fmt.Errorf("%w: max body size %d", ErrDecode, maxBody)
	}
	if header.ChunkIndex >= header.ChunkCount {
		return 0, fmt.Errorf("%w: chunk %d of %d", ErrDecode, header.ChunkIndex, header.ChunkCount)
	}
	total := uint64(header.TotalSize)
	size := uint64(maxBody)
	if uint64(header.ChunkCount) != (total+size-1)/size {
		return 0, fmt.Errorf("%w: %d chunks declared for %d bytes", ErrDecode, header.ChunkCount, total)
	}
	offset := uint64(header.ChunkIndex) * size
	return int(min(size, total-offset)), nil
}

// ReceivePacket reads one complete frame. The header is read first and the
// body length it implies is then read in full, however the stream splits it.
func ReceivePacket(ch Channel, maxBody int) (*Packet, error) {
	msg := make([]byte, constants.MESSAGE_HEADER_SIZE)
	if _, err := io.ReadFull(ch, msg); err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrTransport, err)
	}
	header, err := DecodeHeader(msg)
	if err != nil {
		return nil, err
	}
	bodyLen, err := BodyLen(header, maxBody)
	if err != nil {
		return nil, err
	}
	packet := &Packet{Header: *header}
	if bodyLen > 0 {
		packet.Body = make([]byte, bodyLen)
		if _, err := io.ReadFull(ch, packet.Body); err != nil {
			return nil, fmt.Errorf("%w: read body of chunk %d: %w", ErrTransport, header.ChunkIndex, err)
		}
	}
	return packet, nil
}
