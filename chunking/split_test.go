package chunking

import (
	"bytes"
	"math/rand"
	"testing"

	"go_blackbox/fileio"
	"go_blackbox/networking"
	"go_blackbox/networking/opcode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payload(n int) []byte {
	buf := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(buf)
	return buf
}

func TestSplitCombine(t *testing.T) {
	const maxBody = 4076
	for _, n := range []int{0, 1, maxBody, maxBody + 1, 10000, 3 * maxBody} {
		buf := payload(n)
		packets := Split(buf, maxBody)
		wantCount := (n + maxBody - 1) / maxBody
		require.Len(t, packets, wantCount, "length %d", n)
		for i, packet := range packets {
			assert.Equal(t, uint8(opcode.DATA), packet.MsgType)
			assert.Equal(t, uint32(i), packet.ChunkIndex)
			assert.Equal(t, uint32(wantCount), packet.ChunkCount)
			assert.Equal(t, uint32(n), packet.TotalSize)
			assert.Equal(t, networking.Checksum(packet.Body), packet.Checksum)
			assert.LessOrEqual(t, len(packet.Body), maxBody)
		}
		assert.Equal(t, len(buf), len(Combine(packets)))
		assert.True(t, bytes.Equal(buf, Combine(packets)), "length %d", n)
	}
}

func TestSplitTenThousandBytes(t *testing.T) {
	packets := Split(payload(10000), 4076)
	sizes := []int{}
	for _, packet := range packets {
		sizes = append(sizes, len(packet.Body))
	}
	assert.Equal(t, []int{4076, 4076, 1848}, sizes)
}

func TestSplitInvalidMaxBody(t *testing.T) {
	assert.Nil(t, Split([]byte("abc"), 0))
	assert.Nil(t, Split([]byte("abc"), -1))
}

func TestSplitCopiesInput(t *testing.T) {
	buf := []byte("abcdef")
	packets := Split(buf, 4)
	buf[0] = 'z'
	assert.Equal(t, []byte("abcd"), packets[0].Body)
}

func TestCombineOrdersByIndex(t *testing.T) {
	packets := Split([]byte("abcdefghij"), 3)
	reversed := []*networking.Packet{packets[3], packets[1], packets[2], packets[0]}
	assert.Equal(t, []byte("abcdefghij"), Combine(reversed))
	assert.Equal(t, uint32(3), reversed[0].ChunkIndex)
}

func TestStamp(t *testing.T) {
	packets := Split([]byte("abcdefghij"), 3)
	Stamp(packets, 77)
	for _, packet := range packets {
		assert.Equal(t, uint32(77), packet.MessageID)
	}
}

func TestPackUnpack(t *testing.T) {
	text := []byte(`{"events":["` + string(bytes.Repeat([]byte("tick,"), 3000)) + `"]}`)
	for _, name := range fileio.CodecNames() {
		t.Run(name, func(t *testing.T) {
			codec, err := fileio.GetCodec(name)
			require.NoError(t, err)
			packets, size, err := Pack(text, codec, 512, 5)
			require.NoError(t, err)
			require.NotEmpty(t, packets)
			assert.Equal(t, uint32(size), packets[0].TotalSize)
			assert.Equal(t, uint32(5), packets[len(packets)-1].MessageID)

			out, err := Unpack(packets, codec)
			require.NoError(t, err)
			assert.Equal(t, text, out)
		})
	}
}

func TestPackRejectsBodySize(t *testing.T) {
	codec, err := fileio.GetCodec("none")
	require.NoError(t, err)
	_, _, err = Pack([]byte("x"), codec, 0, 1)
	assert.Error(t, err)
	_, _, err = Pack([]byte("x"), codec, 4077, 1)
	assert.Error(t, err)
}

func TestUnpackMalformed(t *testing.T) {
	codec, err := fileio.GetCodec("zlib")
	require.NoError(t, err)
	packets := Split([]byte("definitely not zlib"), 8)
	_, err = Unpack(packets, codec)
	assert.ErrorIs(t, err, networking.ErrDecode)
	assert.ErrorIs(t, err, fileio.ErrCorrupt)
}
