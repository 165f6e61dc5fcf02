package networking

import (
	"encoding/binary"
	"fmt"
	"go_blackbox/constants"
)

// Header contains static message parts
//
// Byte layout (big-endian):
//
//	0   1   2       6        10        14        18  19
//	+---+---+-------+--------+---------+---------+---+---+
//	|Ver|Typ| MsgID | Total  | ChunkIdx| ChunkCnt|Res|Sum|
//	+---+---+-------+--------+---------+---------+---+---+
type Header struct {
	Version    uint8
	MsgType    uint8
	MessageID  uint32
	TotalSize  uint32
	ChunkIndex uint32
	ChunkCount uint32
	Reserved   uint8 // Command code on START frames
	Checksum   uint8
	// Followed by body on DATA frames.
}

// Packet contains Header + body
type Packet struct {
	Header
	Body []byte
}

// NewPacket returns header-only packet of given type with protocol version set
func NewPacket(msgType uint8, totalSize, chunkIndex, chunkCount uint32) *Packet {
	return &Packet{
		Header: Header{
			Version:    constants.PROTOCOL_VERSION,
			MsgType:    msgType,
			TotalSize:  totalSize,
			ChunkIndex: chunkIndex,
			ChunkCount: chunkCount,
		},
	}
}

// Encode encodes header to its fixed 20 byte form
func (h *Header) Encode() []byte {
	buf := make([]byte, constants.MESSAGE_HEADER_SIZE)
	buf[0] = h.Version
	buf[1] = h.MsgType
	binary.BigEndian.PutUint32(buf[2:6], h.MessageID)
	binary.BigEndian.PutUint32(buf[6:10], h.TotalSize)
	binary.BigEndian.PutUint32(buf[10:14], h.ChunkIndex)
	binary.BigEndian.PutUint32(buf[14:18], h.ChunkCount)
	buf[18] = h.Reserved
	buf[19] = h.Checksum
	return buf
}

// DecodeHeader decodes the first 20 bytes of message to Header
func DecodeHeader(message []byte) (*Header, error) {
	if len(message) < constants.MESSAGE_HEADER_SIZE {
		return nil, fmt.Errorf("%w: %d of %d header bytes", ErrTruncated, len(message), constants.MESSAGE_HEADER_SIZE)
	}
	return &Header{
		Version:    message[0],
		MsgType:    message[1],
		MessageID:  binary.BigEndian.Uint32(message[2:6]),
		TotalSize:  binary.BigEndian.Uint32(message[6:10]),
		ChunkIndex: binary.BigEndian.Uint32(message[10:14]),
		ChunkCount: binary.BigEndian.Uint32(message[14:18]),
		Reserved:   message[18],
		Checksum:   message[19],
	}, nil
}

// PacketToBytes encodes packet to slice of bytes, body omitted when empty
func PacketToBytes(packet *Packet) ([]byte, error) {
	if len(packet.Body) > constants.MAX_MESSAGE_BODY_SIZE {
		return nil, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, len(packet.Body))
	}
	out := make([]byte, 0, constants.MESSAGE_HEADER_SIZE+len(packet.Body))
	out = append(out, packet.Header.Encode()...)
	return append(out, packet.Body...), nil
}

// PacketFromBytes decodes header and treats any trailing bytes as body.
// Declared sizes are not checked against the body here.
func PacketFromBytes(message []byte) (*Packet, error) {
	header, err := DecodeHeader(message)
	if err != nil {
		return nil, err
	}
	packet := &Packet{Header: *header}
	if len(message) > constants.MESSAGE_HEADER_SIZE {
		packet.Body = make([]byte, len(message)-constants.MESSAGE_HEADER_SIZE)
		copy(packet.Body, message[constants.MESSAGE_HEADER_SIZE:])
	}
	return packet, nil
}

// Len returns serialized length of packet
func (p *Packet) Len() int {
	return constants.MESSAGE_HEADER_SIZE + len(p.Body)
}

// Checksum returns 8-bit wrapping sum of data, 0 for empty data.
// Reordered bytes and mod-256 collisions go undetected.
func Checksum(data []byte) uint8 {
	var sum uint8
	for _, b := range data {
		sum += b
	}
	return sum
}
