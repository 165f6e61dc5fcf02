package fileio

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

const (
	blockRaw        = 0
	blockCompressed = 1
	blockHeaderSize = 5
	maxBlockSize    = 64 << 20 // Refuse to allocate more for one report
)

// LZ4BlockCodec stores a single LZ4 block behind a flag byte and the raw length.
// Incompressible payloads are kept as they are.
type LZ4BlockCodec struct{}

// Compress packs data into a single flagged block
func (c *LZ4BlockCodec) Compress(data []byte) ([]byte, error) {
	if len(data) > maxBlockSize {
		return nil, fmt.Errorf("lz4 block: %d bytes exceeds %d", len(data), maxBlockSize)
	}
	buffer := make([]byte, blockHeaderSize+lz4.CompressBlockBound(len(data)))
	binary.BigEndian.PutUint32(buffer[1:blockHeaderSize], uint32(len(data)))

	// Attempt to compress.
	compressed, err := lz4.CompressBlock(data, buffer[blockHeaderSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 block compress failed: %w", err)
	}
	if compressed == 0 || compressed >= len(data) {
		// Chunk was not compressible.
		buffer[0] = blockRaw
		return append(buffer[:blockHeaderSize], data...), nil
	}
	buffer[0] = blockCompressed
	return buffer[:blockHeaderSize+compressed], nil
}

// Decompress restores a flagged block, capped at maxBlockSize
func (c *LZ4BlockCodec) Decompress(data []byte) ([]byte, error) {
	if len(data) < blockHeaderSize {
		return nil, fmt.Errorf("%w: lz4 block header is %d bytes", ErrCorrupt, len(data))
	}
	size := binary.BigEndian.Uint32(data[1:blockHeaderSize])
	block := data[blockHeaderSize:]
	switch data[0] {
	case blockRaw:
		if int(size) != len(block) {
			return nil, fmt.Errorf("%w: raw block of %d bytes declares %d", ErrCorrupt, len(block), size)
		}
		out := make([]byte, len(block))
		copy(out, block)
		return out, nil
	case blockCompressed:
		if size > maxBlockSize {
			return nil, fmt.Errorf("%w: lz4 block declares %d bytes", ErrCorrupt, size)
		}
		buffer := make([]byte, size)
		actual, err := lz4.UncompressBlock(block, buffer)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if actual != int(size) {
			return nil, fmt.Errorf("%w: lz4 block gave %d of %d bytes", ErrCorrupt, actual, size)
		}
		return buffer, nil
	default:
		return nil, fmt.Errorf("%w: lz4 block flag %d", ErrCorrupt, data[0])
	}
}

// Name returns codec registry key
func (c *LZ4BlockCodec) Name() string {
	return "lz4-block"
}
