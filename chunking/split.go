// Package chunking splits compressed payloads into DATA packets and
// reassembles them on the receiving side.
package chunking

import (
	"fmt"
	"go_blackbox/constants"
	"go_blackbox/fileio"
	"go_blackbox/networking"
	"go_blackbox/networking/opcode"
	"sort"
)

// Split cuts buffer into ceil(len/maxBody) DATA packets.
// Every packet declares the same total size and chunk count, and carries the
// checksum of its own body only. Returns nil for an empty buffer or maxBody < 1.
func Split(buffer []byte, maxBody int) []*networking.Packet {
	if maxBody <= 0 || len(buffer) == 0 {
		return nil
	}
	total := len(buffer)
	count := (total + maxBody - 1) / maxBody
	packets := make([]*networking.Packet, 0, count)
	for i := 0; i < count; i++ {
		start := i * maxBody
		end := min(start+maxBody, total)
		packet := networking.NewPacket(opcode.DATA, uint32(total), uint32(i), uint32(count))
		packet.Body = make([]byte, end-start)
		copy(packet.Body, buffer[start:end])
		packet.Checksum = networking.Checksum(packet.Body)
		packets = append(packets, packet)
	}
	return packets
}

// Stamp sets message id of every packet
func Stamp(packets []*networking.Packet, id uint32) {
	for _, packet := range packets {
		packet.MessageID = id
	}
}

// Combine concatenates bodies in ascending chunk index order.
// Completeness must already have been checked by the caller.
func Combine(packets []*networking.Packet) []byte {
	ordered := make([]*networking.Packet, len(packets))
	copy(ordered, packets)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ChunkIndex < ordered[j].ChunkIndex
	})
	size := 0
	for _, packet := range ordered {
		size += len(packet.Body)
	}
	out := make([]byte, 0, size)
	for _, packet := range ordered {
		out = append(out, packet.Body...)
	}
	return out
}

// Pack compresses payload and splits it into packets stamped with id
func Pack(payload []byte, codec fileio.Codec, maxBody int, id uint32) ([]*networking.Packet, int, error) {
	if maxBody <= 0 || maxBody > constants.MAX_MESSAGE_BODY_SIZE {
		return nil, 0, fmt.Errorf("chunking: max body size %d out of range 1..%d", maxBody, constants.MAX_MESSAGE_BODY_SIZE)
	}
	compressed, err := codec.Compress(payload)
	if err != nil {
		return nil, 0, err
	}
	packets := Split(compressed, maxBody)
	Stamp(packets, id)
	return packets, len(compressed), nil
}

// Unpack combines packets and decompresses the result
func Unpack(packets []*networking.Packet, codec fileio.Codec) ([]byte, error) {
	out, err := codec.Decompress(Combine(packets))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", networking.ErrDecode, err)
	}
	return out, nil
}
