package canbus

import (
	"errors"
	"time"
)

const (
	// MAX_DATA_LEN is the classic CAN payload limit.
	MAX_DATA_LEN = 8

	// frameSize is the size of a raw can_frame as read from a SocketCAN
	// raw socket.
	frameSize = 16
)

// errors
var (
	ERR_FRAME_TOO_SHORT = errors.New("raw frame shorter than 16 bytes")
	ERR_BUS_CLOSED      = errors.New("bus has been closed")
)

// CANMsg is a single received bus frame. The vision system addresses motors
// through the low nibble of the identifier; interpreting that is left to the
// bridge layer.
type CANMsg struct {
	ID   uint32 // identifier with EFF/SFF masking already applied
	Data []byte // payload, up to MAX_DATA_LEN bytes
}

// CANBusInterface is the receive-only view of the bus. The bridge never
// transmits; commands leave the system over the serial link instead.
type CANBusInterface interface {
	// Recv waits up to timeout for a single frame. ok is false when the
	// timeout expires without one.
	Recv(timeout time.Duration) (msg CANMsg, ok bool, err error)
	Close() error
}
