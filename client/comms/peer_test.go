package comms

import (
	"fmt"
	"net"
	"testing"
	"time"

	"go_blackbox/chunking"
	"go_blackbox/constants"
	"go_blackbox/fileio"
	"go_blackbox/networking"
	"go_blackbox/networking/opcode"
)

// pipeOptions returns client options dialing the client end of an in-memory pipe
func pipeOptions(t *testing.T, maxBody int, codec fileio.Codec) (Options, *networking.Conn) {
	t.Helper()
	clientSide, peerSide := net.Pipe()
	client := networking.NewConn(clientSide)
	peer := networking.NewConn(peerSide)
	t.Cleanup(func() {
		client.Close()
		peer.Close()
	})
	opts := Options{
		MaxBodySize:     maxBody,
		MessageID:       constants.DEFAULT_MESSAGE_ID,
		DumpMessageID:   constants.DEFAULT_DUMP_MESSAGE_ID,
		Codec:           codec,
		DumpSettle:      -1,
		ShutdownRetries: 1,
		ShutdownWait:    20 * time.Millisecond,
		Dial: func(networking.TransportConfig) (networking.Channel, error) {
			return client, nil
		},
	}
	return opts, peer
}

// ackingPeer acknowledges every save frame and reports what it saw on frames
func ackingPeer(peer *networking.Conn, maxBody int, frames chan<- *networking.Packet) error {
	defer peer.Close()
	defer close(frames)
	start, err := networking.ReceivePacket(peer, maxBody)
	if err != nil {
		return err
	}
	frames <- start
	if err := networking.SendAck(peer, start.MessageID); err != nil {
		return err
	}
	if err := networking.ExpectAck(peer, start.MessageID); err != nil {
		return err
	}
	for {
		packet, err := networking.ReceivePacket(peer, maxBody)
		if err != nil {
			return err
		}
		frames <- packet
		if err := networking.SendAck(peer, start.MessageID); err != nil {
			return err
		}
		if packet.MsgType == opcode.END {
			return nil
		}
	}
}

// dumpPeer answers a dump handshake, streams reports, then ALL_END
func dumpPeer(peer *networking.Conn, maxBody int, reports [][]*networking.Packet) error {
	defer peer.Close()
	start, err := networking.ReceivePacket(peer, maxBody)
	if err != nil {
		return err
	}
	if start.MsgType != opcode.START {
		return fmt.Errorf("expected START, got %s", opcode.Name(start.MsgType))
	}
	id := start.MessageID
	if err := networking.SendAck(peer, id); err != nil {
		return err
	}
	if err := networking.ExpectAck(peer, id); err != nil {
		return err
	}
	for _, packets := range reports {
		for _, packet := range packets {
			if err := networking.SendData(peer, packet); err != nil {
				return err
			}
			if packet.ChunkIndex%constants.ACK_PACING_INTERVAL == constants.ACK_PACING_INTERVAL-1 {
				if err := networking.ExpectAck(peer, id); err != nil {
					return fmt.Errorf("pacing ack after chunk %d: %w", packet.ChunkIndex, err)
				}
			}
		}
		if err := networking.SendEnd(peer, id); err != nil {
			return err
		}
		if err := networking.ExpectAck(peer, id); err != nil {
			return err
		}
		if err := networking.SendAck(peer, id); err != nil {
			return err
		}
	}
	if err := networking.SendAllEnd(peer, id); err != nil {
		return err
	}
	if err := networking.ExpectAck(peer, id); err != nil {
		return err
	}
	return networking.SendAck(peer, id)
}

// drain reads frames until the client closes, counting DATA frames
func drain(peer *networking.Conn, maxBody int) int {
	data := 0
	for {
		packet, err := networking.ReceivePacket(peer, maxBody)
		if err != nil {
			return data
		}
		if packet.MsgType == opcode.DATA {
			data++
		}
	}
}

func report(t *testing.T, payload string, codec fileio.Codec, maxBody int) []*networking.Packet {
	t.Helper()
	packets, _, err := chunking.Pack([]byte(payload), codec, maxBody, constants.DEFAULT_DUMP_MESSAGE_ID)
	if err != nil {
		t.Fatal(err)
	}
	return packets
}
