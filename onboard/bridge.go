package onboard

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Jak3Gil/Melvin-Research/onboard/canbus"
	"github.com/Jak3Gil/Melvin-Research/onboard/l91"
)

// MotorDriver is the outbound side of the bridge. *l91.Controller satisfies
// it; tests substitute a recording fake.
type MotorDriver interface {
	Activate(id l91.MotorID) error
	Deactivate(id l91.MotorID) error
	LoadParams(id l91.MotorID) error
	MoveAt(id l91.MotorID, speed float64) error
	Stop(id l91.MotorID) error
}

type EventKind string

const (
	EventIgnored EventKind = "ignored"
	EventCommand EventKind = "command"
	EventError   EventKind = "error"
)

// Event describes one observed action on the command path. Subscribers get
// them best-effort; a slow consumer misses events rather than stalling the
// loop.
type Event struct {
	Time  time.Time   `json:"time"`
	Kind  EventKind   `json:"kind"`
	CANID uint32      `json:"can_id"`
	Motor l91.MotorID `json:"motor,omitempty"`
	Name  string      `json:"name,omitempty"`
	Op    string      `json:"op,omitempty"`
	Speed float64     `json:"speed,omitempty"`
	Error string      `json:"error,omitempty"`
}

// BridgeStats are running counters over the lifetime of the process.
type BridgeStats struct {
	Received uint64 `json:"received"`
	Ignored  uint64 `json:"ignored"`
	Commands uint64 `json:"commands"`
	Errors   uint64 `json:"errors"`
}

// Bridge translates inbound CAN frames into motor commands. Each frame is
// handled to completion, including the transmit settle delay, before the
// next one is read; inbound bursts queue in the kernel receive buffer.
type Bridge struct {
	bus    canbus.CANBusInterface
	motors MotorDriver

	conf    BridgeConfig
	ids     map[l91.MotorID]string // id -> configured name
	timeout time.Duration

	statsMu sync.Mutex
	stats   BridgeStats

	subMu       sync.Mutex
	subscribers map[string]chan Event
}

func NewBridge(bus canbus.CANBusInterface, motors MotorDriver, conf BridgeConfig) (b *Bridge, err error) {
	switch conf.Version {
	case 1:
		b = &Bridge{
			bus:         bus,
			motors:      motors,
			conf:        conf,
			ids:         make(map[l91.MotorID]string, len(conf.Motors)),
			timeout:     conf.PollTimeout(),
			subscribers: make(map[string]chan Event),
		}
		for _, m := range conf.Motors {
			b.ids[l91.MotorID(m.ID)] = m.Name
		}
		if len(b.ids) == 0 {
			err = fmt.Errorf("config lists no motors")
		}

	default:
		err = fmt.Errorf("unable to work with config version %d", conf.Version)
	}

	return
}

// Motors returns the configured motor set.
func (b *Bridge) Motors() []MotorConfig {
	return b.conf.Motors
}

// Resolve turns a motor name from the shell or API into its id.
func (b *Bridge) Resolve(name string) (l91.MotorID, error) {
	for _, m := range b.conf.Motors {
		if m.Name == name {
			return l91.MotorID(m.ID), nil
		}
	}
	return 0, fmt.Errorf("no such motor '%s'", name)
}

// ClampSpeed bounds a normalized speed to [-1, 1]. The -128 payload byte
// normalizes to about -1.008, so inbound frames rely on this.
func ClampSpeed(speed float64) float64 {
	if speed > 1 {
		return 1
	}
	if speed < -1 {
		return -1
	}
	return speed
}

// HandleMsg translates one bus frame into at most one MoveAt. Frames that
// do not address a configured motor are not errors; most traffic on a
// shared bus is simply for somebody else.
func (b *Bridge) HandleMsg(msg canbus.CANMsg) (handled bool, err error) {
	id := l91.MotorID(msg.ID & 0x0F)
	name, ok := b.ids[id]
	if !ok || len(msg.Data) == 0 {
		b.count(func(s *BridgeStats) { s.Ignored++ })
		b.publish(Event{Time: time.Now(), Kind: EventIgnored, CANID: msg.ID})
		return false, nil
	}

	speed := ClampSpeed(float64(int8(msg.Data[0])) / 127.0)

	if err = b.motors.MoveAt(id, speed); err != nil {
		b.count(func(s *BridgeStats) { s.Errors++ })
		b.publish(Event{
			Time: time.Now(), Kind: EventError, CANID: msg.ID,
			Motor: id, Name: name, Op: "move", Speed: speed, Error: err.Error(),
		})
		return true, err
	}

	b.count(func(s *BridgeStats) { s.Commands++ })
	b.publish(Event{
		Time: time.Now(), Kind: EventCommand, CANID: msg.ID,
		Motor: id, Name: name, Op: "move", Speed: speed,
	})
	return true, nil
}

// Run is the polling loop: one bounded-wait receive per cycle, then the
// full translate-and-transmit path before the next read. There is no
// cancellation of an in-flight command; ctx is only checked between frames.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, ok, err := b.bus.Recv(b.timeout)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		b.count(func(s *BridgeStats) { s.Received++ })
		if _, err := b.HandleMsg(msg); err != nil {
			// command failures are reported per frame and the loop keeps
			// going; the caller decided long ago that this link has no retry
			log.Printf("bridge: motor command failed: %v", err)
		}
	}
}

// Startup activates every configured motor and loads its parameter set,
// mirroring the firmware power-on sequence. A motor that fails to come up
// is logged and skipped so the rest still run.
func (b *Bridge) Startup() {
	for _, m := range b.conf.Motors {
		id := l91.MotorID(m.ID)
		log.Printf("motor %s (0x%02X): activating", m.Name, m.ID)
		if err := b.motors.Activate(id); err != nil {
			log.Printf("motor %s: activate failed: %v", m.Name, err)
			continue
		}
		if err := b.motors.LoadParams(id); err != nil {
			log.Printf("motor %s: load params failed: %v", m.Name, err)
			continue
		}
		log.Printf("motor %s: ready", m.Name)
	}
}

// Shutdown stops and releases every motor.
func (b *Bridge) Shutdown() {
	for _, m := range b.conf.Motors {
		id := l91.MotorID(m.ID)
		if err := b.motors.Stop(id); err != nil {
			log.Printf("motor %s: stop failed: %v", m.Name, err)
		}
		if err := b.motors.Deactivate(id); err != nil {
			log.Printf("motor %s: deactivate failed: %v", m.Name, err)
		}
	}
}

// Command jogs a motor by name on behalf of the shell or API. Speed is
// clamped the same way inbound frames are.
func (b *Bridge) Command(name string, speed float64) error {
	id, err := b.Resolve(name)
	if err != nil {
		return err
	}

	speed = ClampSpeed(speed)
	if err := b.motors.MoveAt(id, speed); err != nil {
		b.count(func(s *BridgeStats) { s.Errors++ })
		return err
	}

	b.count(func(s *BridgeStats) { s.Commands++ })
	b.publish(Event{
		Time: time.Now(), Kind: EventCommand,
		Motor: id, Name: name, Op: "move", Speed: speed,
	})
	return nil
}

// CommandStop halts a motor by name.
func (b *Bridge) CommandStop(name string) error {
	id, err := b.Resolve(name)
	if err != nil {
		return err
	}

	if err := b.motors.Stop(id); err != nil {
		b.count(func(s *BridgeStats) { s.Errors++ })
		return err
	}

	b.count(func(s *BridgeStats) { s.Commands++ })
	b.publish(Event{
		Time: time.Now(), Kind: EventCommand,
		Motor: id, Name: name, Op: "stop",
	})
	return nil
}

func (b *Bridge) Stats() BridgeStats {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return b.stats
}

func (b *Bridge) count(update func(*BridgeStats)) {
	b.statsMu.Lock()
	update(&b.stats)
	b.statsMu.Unlock()
}

// randomID generates a random subscriber ID (8 byte random hex encoded value)
func randomID() string {
	raw := make([]byte, 8)
	crand.Read(raw)
	return hex.EncodeToString(raw)
}

// Subscribe registers a buffered event channel. The returned id is used to
// unsubscribe.
func (b *Bridge) Subscribe() (string, chan Event) {
	id := randomID()
	ch := make(chan Event, 16)
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.subscribers[id] = ch
	return id, ch
}

func (b *Bridge) Unsubscribe(id string) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

func (b *Bridge) publish(ev Event) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			// full channel: drop rather than block the command path
		}
	}
}
