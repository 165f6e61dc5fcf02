package comms

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"go_blackbox/constants"
	"go_blackbox/fileio"
	"go_blackbox/logging/testlog"
	"go_blackbox/networking"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpImmediateAllEndIsEmpty(t *testing.T) {
	testlog.Start(t)
	opts, peer := pipeOptions(t, constants.MAX_MESSAGE_BODY_SIZE, nil)
	peerErr := make(chan error, 1)
	go func() { peerErr <- dumpPeer(peer, constants.MAX_MESSAGE_BODY_SIZE, nil) }()

	result, err := NewClient(opts).DumpState(context.Background())
	require.NoError(t, err)
	require.NoError(t, <-peerErr)
	assert.Empty(t, result.Items)
	assert.Empty(t, result.Skipped)
	assert.Empty(t, result.Compact())
}

func TestDumpCollectsReportsAndSkipsMalformed(t *testing.T) {
	testlog.Start(t)
	const maxBody = 16
	codec, err := fileio.GetCodec("zlib")
	require.NoError(t, err)
	opts, peer := pipeOptions(t, maxBody, codec)

	var events []string
	for i := 1; i <= 60; i++ {
		events = append(events, strconv.Itoa(i*7919%10007))
	}
	big := `{"events":[` + strings.Join(events, ",") + `]}`
	reports := [][]*networking.Packet{
		report(t, `{"pid": 1, "name": "init"}`, codec, maxBody),
		{},
		report(t, `{"broken": `, codec, maxBody),
		report(t, big, codec, maxBody),
	}
	peerErr := make(chan error, 1)
	go func() { peerErr <- dumpPeer(peer, maxBody, reports) }()

	result, err := NewClient(opts).DumpProcess(context.Background())
	require.NoError(t, err)
	require.NoError(t, <-peerErr)

	require.Len(t, result.Items, 2)
	assert.JSONEq(t, `{"pid":1,"name":"init"}`, string(result.Items[0]))
	assert.JSONEq(t, big, string(result.Items[1]))
	require.Len(t, result.Skipped, 1)
	assert.ErrorIs(t, result.Skipped[0], networking.ErrPayload)
	assert.True(t, strings.HasPrefix(string(result.Compact()), `[{"pid":1,"name":"init"},`))
}

func TestDumpCorruptedChecksumAborts(t *testing.T) {
	testlog.Start(t)
	opts, peer := pipeOptions(t, constants.MAX_MESSAGE_BODY_SIZE, &fileio.NoneCodec{})
	packets := report(t, `{"a":1}`, &fileio.NoneCodec{}, constants.MAX_MESSAGE_BODY_SIZE)
	go func() {
		start, err := networking.ReceivePacket(peer, constants.MAX_MESSAGE_BODY_SIZE)
		if err != nil {
			return
		}
		networking.SendAck(peer, start.MessageID)
		networking.ExpectAck(peer, start.MessageID)
		packets[0].Checksum++
		networking.SendData(peer, packets[0])
		drain(peer, constants.MAX_MESSAGE_BODY_SIZE)
	}()

	result, err := NewClient(opts).DumpState(context.Background())
	assert.Nil(t, result)
	assert.ErrorIs(t, err, networking.ErrProtocolViolation)
}

func TestDumpMismatchedMessageIDAborts(t *testing.T) {
	testlog.Start(t)
	opts, peer := pipeOptions(t, constants.MAX_MESSAGE_BODY_SIZE, &fileio.NoneCodec{})
	packets := report(t, `{"a":1}`, &fileio.NoneCodec{}, constants.MAX_MESSAGE_BODY_SIZE)
	go func() {
		start, err := networking.ReceivePacket(peer, constants.MAX_MESSAGE_BODY_SIZE)
		if err != nil {
			return
		}
		networking.SendAck(peer, start.MessageID)
		networking.ExpectAck(peer, start.MessageID)
		packets[0].MessageID = start.MessageID + 7
		networking.SendData(peer, packets[0])
		drain(peer, constants.MAX_MESSAGE_BODY_SIZE)
	}()

	_, err := NewClient(opts).DumpCrashLog(context.Background())
	assert.ErrorIs(t, err, networking.ErrProtocolViolation)
}

func TestDumpIncompleteReportAborts(t *testing.T) {
	testlog.Start(t)
	const maxBody = 4
	opts, peer := pipeOptions(t, maxBody, &fileio.NoneCodec{})
	packets := report(t, `{"a":12}`, &fileio.NoneCodec{}, maxBody)
	go func() {
		start, err := networking.ReceivePacket(peer, maxBody)
		if err != nil {
			return
		}
		networking.SendAck(peer, start.MessageID)
		networking.ExpectAck(peer, start.MessageID)
		networking.SendData(peer, packets[0])
		networking.SendEnd(peer, start.MessageID)
		drain(peer, maxBody)
	}()

	_, err := NewClient(opts).DumpState(context.Background())
	assert.ErrorIs(t, err, networking.ErrProtocolViolation)
}

func TestDumpWithoutStartAck(t *testing.T) {
	testlog.Start(t)
	opts, peer := pipeOptions(t, constants.MAX_MESSAGE_BODY_SIZE, nil)
	go func() {
		networking.ReceivePacket(peer, constants.MAX_MESSAGE_BODY_SIZE)
		peer.Close()
	}()

	_, err := NewClient(opts).DumpState(context.Background())
	assert.ErrorIs(t, err, ErrServerNotReady)
}

func TestDumpRejectsSaveCommand(t *testing.T) {
	testlog.Start(t)
	_, err := NewClient(Options{}).Dump(context.Background(), 0x01)
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestCompactJoinsItems(t *testing.T) {
	result := &DumpResult{}
	assert.Nil(t, result.Compact())
	result.Items = append(result.Items, []byte(`{"a":1}`), []byte(`[2]`))
	assert.Equal(t, `[{"a":1},[2]]`, string(result.Compact()))
}
