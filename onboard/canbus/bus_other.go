//go:build !linux

package canbus

import (
	"errors"
	"time"
)

// SocketCAN only exists on linux. Off-target builds (development laptops)
// get a stub so the rest of the tree still compiles; point the bridge at a
// vcan interface on the deployment host instead.
type CANBus struct{}

func NewCANBus(ifname string) (*CANBus, error) {
	return nil, errors.New("canbus: SocketCAN is only available on linux")
}

func (c *CANBus) Recv(timeout time.Duration) (CANMsg, bool, error) {
	return CANMsg{}, false, ERR_BUS_CLOSED
}

func (c *CANBus) Close() error {
	return nil
}
