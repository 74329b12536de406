package canbus

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// CANBus reads frames from a SocketCAN interface. It is receive only; no
// filter is installed so the kernel delivers everything on the wire, the
// same way the firmware ran its controller with an accept-all filter.
type CANBus struct {
	fd   int
	open bool
}

func NewCANBus(ifname string) (bus *CANBus, err error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return
	}

	bus = new(CANBus)

	bus.fd, err = unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, err
	}

	addr := &unix.SockaddrCAN{Ifindex: iface.Index}
	if err = unix.Bind(bus.fd, addr); err != nil {
		unix.Close(bus.fd)
		return nil, err
	}

	bus.open = true
	return
}

// Recv polls the socket for at most timeout and reads a single frame when
// one is pending. Frames arriving faster than the caller drains them queue
// in the kernel receive buffer and are eventually dropped there; that is
// the accepted behaviour for this link.
func (c *CANBus) Recv(timeout time.Duration) (msg CANMsg, ok bool, err error) {
	if !c.open {
		err = ERR_BUS_CLOSED
		return
	}

	fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			return msg, false, nil
		}
		return
	}
	if n == 0 {
		return msg, false, nil
	}

	raw := make([]byte, frameSize)
	nr, err := unix.Read(c.fd, raw)
	if err != nil {
		return
	}
	if nr < frameSize {
		err = ERR_FRAME_TOO_SHORT
		return
	}

	msg, err = msgFromByteArray(raw)
	if err != nil {
		return
	}
	return msg, true, nil
}

func (c *CANBus) Close() error {
	if !c.open {
		return nil
	}
	c.open = false
	return unix.Close(c.fd)
}
