package l91

import (
	"log"
	"sync"

	"go.bug.st/serial"
)

// Port is the minimal serial surface the controller needs. go.bug.st's
// serial.Port satisfies it directly.
type Port interface {
	Write(p []byte) (n int, err error)
	ResetInputBuffer() error
	Drain() error
	Close() error
}

// portMode builds the 8N1 mode the adapter expects. A zero baud selects the
// adapter's fixed 921600 rate.
func portMode(baud int) *serial.Mode {
	if baud == 0 {
		baud = DEFAULT_BAUD
	}
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// OpenPort opens the L91 adapter at path.
func OpenPort(path string, baud int) (Port, error) {
	port, err := serial.Open(path, portMode(baud))
	if err != nil {
		return nil, err
	}
	return port, nil
}

// SimPort stands in for the adapter when running with -sim. Frames are
// logged and retained instead of written to hardware.
type SimPort struct {
	lock   sync.Mutex
	frames [][]byte
}

func (p *SimPort) Write(b []byte) (int, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	frame := make([]byte, len(b))
	copy(frame, b)
	p.frames = append(p.frames, frame)
	log.Printf("l91 sim: tx % x", b)
	return len(b), nil
}

func (p *SimPort) ResetInputBuffer() error { return nil }

func (p *SimPort) Drain() error { return nil }

func (p *SimPort) Close() error { return nil }

// Frames returns a copy of everything written so far.
func (p *SimPort) Frames() [][]byte {
	p.lock.Lock()
	defer p.lock.Unlock()

	out := make([][]byte, len(p.frames))
	for i, f := range p.frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}
