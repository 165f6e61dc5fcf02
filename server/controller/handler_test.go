package server

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"go_blackbox/chunking"
	"go_blackbox/client/comms"
	"go_blackbox/logging/testlog"
	"go_blackbox/networking"
	"go_blackbox/networking/opcode"
	"go_blackbox/server/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer serves store on a loopback port until the test ends
func startServer(t *testing.T, store *worker.ReportStore, maxBody int) networking.TransportConfig {
	t.Helper()
	cfg := networking.TransportConfig{Network: "tcp", Address: "127.0.0.1:0"}
	l, err := networking.Listen(cfg)
	require.NoError(t, err)

	handler := NewHandler(store)
	handler.MaxBody = maxBody
	handler.ShutdownWait = 20 * time.Millisecond
	done := make(chan error, 1)
	go func() { done <- NewServer(handler).Serve(l) }()
	t.Cleanup(func() {
		l.Close()
		assert.NoError(t, <-done)
	})

	cfg.Address = l.Addr().String()
	return cfg
}

func newClient(cfg networking.TransportConfig, maxBody int) *comms.Client {
	return comms.NewClient(comms.Options{
		Transport:       cfg,
		MaxBodySize:     maxBody,
		ShutdownRetries: 2,
		ShutdownWait:    20 * time.Millisecond,
	})
}

func TestSaveThenDumpRoundTrip(t *testing.T) {
	testlog.Start(t)
	store := worker.NewReportStore()
	cfg := startServer(t, store, 4076)
	client := newClient(cfg, 4076)
	ctx := context.Background()

	require.NoError(t, client.SaveProcess(ctx, []byte(`{"pid": 42, "cmd": "agent"}`)))
	require.NoError(t, client.SaveProcess(ctx, []byte(`{"pid": 43, "cmd": "shell"}`)))
	require.NoError(t, client.SaveState(ctx, []byte(`{"uptime": 12}`)))
	assert.Equal(t, 3, store.Len())

	processes, err := client.DumpProcess(ctx)
	require.NoError(t, err)
	assert.Equal(t, `[{"pid":42,"cmd":"agent"},{"pid":43,"cmd":"shell"}]`, string(processes.Compact()))

	state, err := client.DumpState(ctx)
	require.NoError(t, err)
	assert.Equal(t, `[{"uptime":12}]`, string(state.Compact()))

	crashes, err := client.DumpCrashLog(ctx)
	require.NoError(t, err)
	assert.Empty(t, crashes.Compact())
}

func TestRoundTripWithPacedChunks(t *testing.T) {
	testlog.Start(t)
	const maxBody = 32
	store := worker.NewReportStore()
	cfg := startServer(t, store, maxBody)
	client := newClient(cfg, maxBody)
	ctx := context.Background()

	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, fmt.Sprintf(`"line %d: %x"`, i, i*2654435761))
	}
	payload := `{"log":[` + strings.Join(lines, ",") + `]}`
	require.NoError(t, client.SaveCrashLog(ctx, []byte(payload)))

	stored := store.Reports(opcode.SAVE_CRASH_LOG)
	require.Len(t, stored, 1)
	assert.Greater(t, len(stored[0].Data), 10*maxBody)

	result, err := client.DumpCrashLog(ctx)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.JSONEq(t, payload, string(result.Items[0]))
}

// dialRaw opens a session by hand and completes the START handshake
func dialRaw(t *testing.T, cfg networking.TransportConfig, command uint8) *networking.Conn {
	t.Helper()
	conn, err := networking.Dial(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, networking.SendStart(conn, 1, command))
	require.NoError(t, networking.ExpectAck(conn, 1))
	require.NoError(t, networking.SendAck(conn, 1))
	return conn
}

func TestCorruptedChunkGetsError(t *testing.T) {
	testlog.Start(t)
	store := worker.NewReportStore()
	cfg := startServer(t, store, 4076)
	conn := dialRaw(t, cfg, opcode.SAVE)

	packets := chunking.Split([]byte(`{"a":1}`), 4076)
	chunking.Stamp(packets, 1)
	packets[0].Checksum ^= 0xff
	require.NoError(t, networking.SendData(conn, packets[0]))

	reply, err := networking.ReceivePacket(conn, 4076)
	require.NoError(t, err)
	assert.Equal(t, uint8(opcode.ERROR), reply.MsgType)
	assert.Equal(t, 0, store.Len())
}

func TestIncompleteSaveGetsError(t *testing.T) {
	testlog.Start(t)
	store := worker.NewReportStore()
	cfg := startServer(t, store, 4)
	conn := dialRaw(t, cfg, opcode.SAVE_PROCESS)

	packets := chunking.Split([]byte(`{"a":12}`), 4)
	chunking.Stamp(packets, 1)
	require.NoError(t, networking.SendData(conn, packets[0]))
	require.NoError(t, networking.ExpectAck(conn, 1))
	require.NoError(t, networking.SendEnd(conn, 1))

	reply, err := networking.ReceivePacket(conn, 4)
	require.NoError(t, err)
	assert.Equal(t, uint8(opcode.ERROR), reply.MsgType)
	assert.Equal(t, 0, store.Len())
}

func TestUnknownCommandGetsError(t *testing.T) {
	testlog.Start(t)
	cfg := startServer(t, worker.NewReportStore(), 4076)
	conn, err := networking.Dial(cfg)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, networking.SendStart(conn, 1, 0x7f))
	reply, err := networking.ReceivePacket(conn, 4076)
	require.NoError(t, err)
	assert.Equal(t, uint8(opcode.ERROR), reply.MsgType)
}
