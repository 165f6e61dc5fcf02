package constants

const (
	PROTOCOL_VERSION        = 1    // Single wire version, no negotiation
	MESSAGE_HEADER_SIZE     = 20   // Fixed header length on the wire
	MAX_MESSAGE_PACKET_SIZE = 4096 // Largest frame the host reads atomically
	MAX_MESSAGE_BODY_SIZE   = 4076 // Packet size minus header
	ACK_PACING_INTERVAL     = 5    // Dump client acknowledges every 5th chunk
	DEFAULT_SERVER_CID      = 103  // Host peer context id
	DEFAULT_SERVER_PORT     = 1234 // Host peer vsock port
	DEFAULT_TCP_ADDRESS     = "127.0.0.1:1234"
	DEFAULT_MESSAGE_ID      = 1    // Save sessions use a fixed id
	DEFAULT_DUMP_MESSAGE_ID = 1    // Dump sessions use a fixed id
	DUMP_SETTLE_MS          = 100  // Pause after a dump before closing
	SHUTDOWN_RETRIES        = 3    // Attempts to observe the peer closing
	SHUTDOWN_WAIT_MS        = 50   // Read deadline per shutdown attempt
	DEFAULT_DSCP            = 0x0A // QoS for high throughput
	DEFAULT_CODEC           = "zlib"
	REPORT_WRITE_QUEUE      = 10 // Queued reports before blocking on file writes
)

const Title = "Black box state relay over vsock"
