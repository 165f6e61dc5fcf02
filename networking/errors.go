package networking

import (
	"errors"
	"fmt"
)

var (
	ErrTransport         = errors.New("networking: transport failure")
	ErrProtocolViolation = errors.New("networking: protocol violation")
	ErrHandshakeRejected = errors.New("networking: handshake rejected")
	ErrDecode            = errors.New("networking: malformed data")
	ErrPayload           = errors.New("networking: malformed payload item")
)

var (
	ErrTruncated           = fmt.Errorf("%w: truncated frame", ErrDecode)
	ErrBodyTooLarge        = errors.New("networking: body larger than max body size")
	ErrShutdownUnsupported = errors.New("networking: unsupported shutdown direction")
)
