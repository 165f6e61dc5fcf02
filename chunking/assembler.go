package chunking

import (
	"fmt"
	"go_blackbox/networking"
	"go_blackbox/networking/opcode"
)

// Assembler accumulates the DATA packets of one report in order
type Assembler struct {
	messageID  uint32
	totalSize  uint32
	chunkCount uint32
	received   uint32
	bytes      uint64
	packets    []*networking.Packet
}

// NewAssembler returns assembler accepting packets of given message id
func NewAssembler(messageID uint32) *Assembler {
	return &Assembler{messageID: messageID}
}

// Add verifies packet and appends it to the current report
func (a *Assembler) Add(packet *networking.Packet) error {
	if packet.MsgType != opcode.DATA {
		return fmt.Errorf("%w: %s frame is not a chunk", networking.ErrProtocolViolation, opcode.Name(packet.MsgType))
	}
	if packet.MessageID != a.messageID {
		return fmt.Errorf("%w: chunk for message %d in session %d", networking.ErrProtocolViolation,
			packet.MessageID, a.messageID)
	}
	if sum := networking.Checksum(packet.Body); sum != packet.Checksum {
		return fmt.Errorf("%w: chunk %d checksum 0x%02x, computed 0x%02x", networking.ErrProtocolViolation,
			packet.ChunkIndex, packet.Checksum, sum)
	}
	if len(a.packets) == 0 {
		a.totalSize = packet.TotalSize
		a.chunkCount = packet.ChunkCount
	} else if packet.TotalSize != a.totalSize || packet.ChunkCount != a.chunkCount {
		return fmt.Errorf("%w: chunk %d declares %d bytes in %d chunks, report declared %d in %d",
			networking.ErrProtocolViolation, packet.ChunkIndex, packet.TotalSize, packet.ChunkCount,
			a.totalSize, a.chunkCount)
	}
	if packet.ChunkIndex != a.received {
		return fmt.Errorf("%w: chunk %d arrived, expected %d", networking.ErrProtocolViolation,
			packet.ChunkIndex, a.received)
	}
	a.packets = append(a.packets, packet)
	a.received++
	a.bytes += uint64(len(packet.Body))
	return nil
}

// Empty reports whether no chunk of the current report has arrived
func (a *Assembler) Empty() bool {
	return len(a.packets) == 0
}

// Received returns number of chunks and body bytes accumulated so far
func (a *Assembler) Received() (uint32, uint64) {
	return a.received, a.bytes
}

// Complete reports whether chunk count and byte total match the first chunk's declaration
func (a *Assembler) Complete() bool {
	return !a.Empty() && a.received == a.chunkCount && a.bytes == uint64(a.totalSize)
}

// Packets returns accumulated packets of the current report
func (a *Assembler) Packets() []*networking.Packet {
	return a.packets
}

// Bytes returns combined body of the current report
func (a *Assembler) Bytes() []byte {
	return Combine(a.packets)
}

// Reset drops the current report so the next one can start
func (a *Assembler) Reset() {
	a.totalSize = 0
	a.chunkCount = 0
	a.received = 0
	a.bytes = 0
	a.packets = nil
}
