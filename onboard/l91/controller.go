// Package l91 drives Robstride motors through an L91 USB-serial adapter.
// The adapter speaks a fixed AT-framed sub-protocol; every command is a
// single frame and the motors never answer, so the link is fire-and-forget.
package l91

import (
	"fmt"
	"sync"
	"time"
)

const (
	CMD_POWER  = 0x00 // activate/deactivate
	CMD_PARAMS = 0x20 // load parameter set
	CMD_JOG    = 0x90 // continuous jog move

	// command id carried in the jog payload (MOVE_JOG = 0x0570)
	JOG_CMD_HI = 0x05
	JOG_CMD_LO = 0x70

	// flag byte for Jog
	FLAG_HOLD = 0x00
	FLAG_MOVE = 0x01

	// speed wire encoding
	SPEED_IDLE  = 0x7fff
	SPEED_SCALE = 3283.0

	DEFAULT_BAUD = 921600
)

// Motor CAN IDs as wired on the robot.
const (
	MOTOR_12 MotorID = 0x0C
	MOTOR_13 MotorID = 0x0D
	MOTOR_14 MotorID = 0x0E
)

// MotorID addresses one motor on the L91 sub-protocol. The set of valid ids
// comes from configuration; the controller itself does not validate them.
type MotorID uint8

// ShortWriteError reports a frame the port only partially accepted. The
// frame is not resent; whatever reached the adapter is already on the wire.
type ShortWriteError struct {
	Wrote, Frame int
}

func (e *ShortWriteError) Error() string {
	return fmt.Sprintf("l91: short write: %d of %d bytes", e.Wrote, e.Frame)
}

// Settle holds the post-command delays. Write applies after every frame;
// the per-operation values cover the physical action the motor performs
// before it may safely receive another command. These are actuator settle
// times, not transport latency, which is why they live here and not in the
// port implementation.
type Settle struct {
	Write      time.Duration
	Activate   time.Duration
	Deactivate time.Duration
	LoadParams time.Duration
}

// DefaultSettle returns the delays the original firmware used.
func DefaultSettle() Settle {
	return Settle{
		Write:      10 * time.Millisecond,
		Activate:   200 * time.Millisecond,
		Deactivate: 100 * time.Millisecond,
		LoadParams: 200 * time.Millisecond,
	}
}

// Controller owns exclusive use of one serial port shared by all motors.
// The lock keeps shell and API issued commands from interleaving bytes with
// the bridge loop.
type Controller struct {
	port   Port
	settle Settle
	lock   sync.Mutex
}

func NewController(port Port, settle Settle) *Controller {
	return &Controller{
		port:   port,
		settle: settle,
	}
}

// send transmits one frame: stale input is dropped, the frame is written in
// a single call, and the port is drained before the settle delay runs. A
// short write is a hard failure for this call with no retry.
func (c *Controller) send(frame []byte, settle time.Duration) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.port.ResetInputBuffer(); err != nil {
		return err
	}

	n, err := c.port.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return &ShortWriteError{Wrote: n, Frame: len(frame)}
	}

	if err := c.port.Drain(); err != nil {
		return err
	}

	time.Sleep(c.settle.Write)
	time.Sleep(settle)
	return nil
}

// Activate brings a motor under AT-command control.
// Frame: AT 00 07 e8 <id> 01 00 0d 0a
func (c *Controller) Activate(id MotorID) error {
	return c.send(powerFrame(id, 0x01), c.settle.Activate)
}

// Deactivate releases control of a motor.
// Frame: AT 00 07 e8 <id> 00 00 0d 0a
func (c *Controller) Deactivate(id MotorID) error {
	return c.send(powerFrame(id, 0x00), c.settle.Deactivate)
}

// LoadParams loads the stored parameter set into a motor.
// Frame: AT 20 07 e8 <id> 08 00 c4 00 00 00 00 00 00 0d 0a
func (c *Controller) LoadParams(id MotorID) error {
	frame := []byte{
		0x41, 0x54, CMD_PARAMS, 0x07, 0xe8, byte(id), 0x08,
		0x00, 0xc4, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x0d, 0x0a,
	}
	return c.send(frame, c.settle.LoadParams)
}

// Jog commands a continuous move at the given normalized speed. The caller
// is responsible for clamping speed to [-1, 1] first.
// Frame: AT 90 07 e8 <id> 08 05 70 00 00 07 <flag> <hi> <lo> 0d 0a
func (c *Controller) Jog(id MotorID, speed float64, flag byte) error {
	code := SpeedCode(speed)
	frame := []byte{
		0x41, 0x54, CMD_JOG, 0x07, 0xe8, byte(id), 0x08,
		JOG_CMD_HI, JOG_CMD_LO, 0x00, 0x00, 0x07, flag,
		byte(code >> 8), byte(code),
		0x0d, 0x0a,
	}
	return c.send(frame, 0)
}

// Stop halts a motor, holding position.
func (c *Controller) Stop(id MotorID) error {
	return c.Jog(id, 0, FLAG_HOLD)
}

// MoveAt jogs a motor at speed, selecting the move flag automatically.
func (c *Controller) MoveAt(id MotorID, speed float64) error {
	flag := byte(FLAG_MOVE)
	if speed == 0 {
		flag = FLAG_HOLD
	}
	return c.Jog(id, speed, flag)
}

// Close releases the serial port.
func (c *Controller) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.port.Close()
}

func powerFrame(id MotorID, on byte) []byte {
	return []byte{0x41, 0x54, CMD_POWER, 0x07, 0xe8, byte(id), on, 0x00, 0x0d, 0x0a}
}

// SpeedCode converts a normalized speed to the 16-bit big-endian wire code.
// 0x7fff is the idle point. Positive speeds offset from 0x8000, negative
// speeds from 0x7fff; the one-code asymmetry around idle is what the motor
// firmware expects, so it is preserved rather than smoothed out. The
// fraction truncates toward zero, matching the controller's int16 cast.
func SpeedCode(speed float64) uint16 {
	switch {
	case speed == 0:
		return SPEED_IDLE
	case speed > 0:
		return uint16(0x8000 + int(speed*SPEED_SCALE))
	default:
		return uint16(0x7fff + int(speed*SPEED_SCALE))
	}
}
