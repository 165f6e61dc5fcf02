package fileio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"
)

var (
	ErrCorrupt      = errors.New("fileio: corrupt compressed data")
	ErrUnknownCodec = errors.New("fileio: unknown codec")
)

// Codec compresses payloads before chunking and restores them after reassembly
type Codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Name() string
}

// ZlibCodec produces zlib streams, the format the host peer expects
type ZlibCodec struct {
	Level int
}

// Compress deflates data at c.Level
func (c *ZlibCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer, err := zlib.NewWriterLevel(&buf, c.Level)
	if err != nil {
		return nil, fmt.Errorf("create zlib writer failed: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("zlib write failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("zlib close failed: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress inflates a zlib stream
func (c *ZlibCodec) Decompress(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	defer reader.Close()
	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return out, nil
}

// Name returns codec registry key
func (c *ZlibCodec) Name() string {
	return "zlib"
}

// LZ4Codec uses the LZ4 frame format
type LZ4Codec struct{}

// Compress writes data as one LZ4 frame
func (c *LZ4Codec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("lz4 write failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("lz4 close failed: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reads an LZ4 frame
func (c *LZ4Codec) Decompress(data []byte) ([]byte, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return out, nil
}

// Name returns codec registry key
func (c *LZ4Codec) Name() string {
	return "lz4"
}

// NoneCodec passes data through untouched
type NoneCodec struct{}

// Compress returns data unchanged
func (c *NoneCodec) Compress(data []byte) ([]byte, error) {
	return data, nil
}

// Decompress returns data unchanged
func (c *NoneCodec) Decompress(data []byte) ([]byte, error) {
	return data, nil
}

// Name returns codec registry key
func (c *NoneCodec) Name() string {
	return "none"
}

var codecs = map[string]Codec{}

// RegisterCodec makes a codec available by name
func RegisterCodec(codec Codec) {
	if codec == nil {
		panic("fileio: RegisterCodec codec is nil")
	}
	if _, exists := codecs[codec.Name()]; exists {
		panic("fileio: RegisterCodec called twice for " + codec.Name())
	}
	codecs[codec.Name()] = codec
}

// GetCodec returns registered codec of given name
func GetCodec(name string) (Codec, error) {
	codec, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return codec, nil
}

// CodecNames lists registered codec names
func CodecNames() []string {
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterCodec(&ZlibCodec{Level: zlib.DefaultCompression})
	RegisterCodec(&LZ4Codec{})
	RegisterCodec(&LZ4BlockCodec{})
	RegisterCodec(&NoneCodec{})
}
