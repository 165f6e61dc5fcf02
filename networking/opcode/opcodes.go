package opcode

import "strconv"

// Message types carried in the header msg_type byte.
const (
	START   = 0x01 // Session start, command code in reserved byte
	DATA    = 0x02 // One chunk of a report
	END     = 0x03 // Report complete
	ACK     = 0x04 // Acknowledgement
	ERROR   = 0x05 // Peer rejected the previous frame
	ALL_END = 0x06 // No more reports in this dump
)

// Name returns printable name of a message type
func Name(msgType uint8) string {
	switch msgType {
	case START:
		return "START"
	case DATA:
		return "DATA"
	case END:
		return "END"
	case ACK:
		return "ACK"
	case ERROR:
		return "ERROR"
	case ALL_END:
		return "ALL_END"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(msgType)) + ")"
	}
}
