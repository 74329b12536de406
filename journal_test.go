package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Jak3Gil/Melvin-Research/onboard"
	"github.com/Jak3Gil/Melvin-Research/onboard/l91"
	. "github.com/smartystreets/goconvey/convey"
)

func testBridgeConfig() onboard.BridgeConfig {
	var conf onboard.BridgeConfig
	conf.Version = 1
	conf.Motors = []onboard.MotorConfig{
		{Name: "motor12", ID: 0x0C},
		{Name: "motor13", ID: 0x0D},
		{Name: "motor14", ID: 0x0E},
	}
	return conf
}

// newSimBridge builds a bridge backed by the l91 simulator port with all
// settle delays zeroed.
func newSimBridge(t *testing.T) *onboard.Bridge {
	t.Helper()
	motors := l91.NewController(new(l91.SimPort), l91.Settle{})
	bridge, err := onboard.NewBridge(nil, motors, testBridgeConfig())
	if err != nil {
		t.Fatal(err)
	}
	return bridge
}

func TestJournal(t *testing.T) {
	db, err := openDb(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	bridge := newSimBridge(t)
	journal := NewJournal(db, bridge, 5)

	Convey("records persist and come back newest first", t, func() {
		for i := 0; i < 3; i++ {
			err := journal.record(onboard.Event{
				Time:  time.Now(),
				Kind:  onboard.EventCommand,
				Motor: 0x0C,
				Name:  "motor12",
				Op:    "move",
				Speed: float64(i) / 10,
			})
			So(err, ShouldBeNil)
		}

		recs, err := journal.Recent(10)
		So(err, ShouldBeNil)
		So(recs, ShouldHaveLength, 3)
		So(recs[0].Speed, ShouldEqual, 0.2)

		// limit caps the result
		recs, err = journal.Recent(2)
		So(err, ShouldBeNil)
		So(recs, ShouldHaveLength, 2)

		// prune trims down to the keep count
		for i := 0; i < 10; i++ {
			journal.record(onboard.Event{Time: time.Now(), Kind: onboard.EventCommand, Op: "move"})
		}
		journal.prune()

		recs, err = journal.Recent(100)
		So(err, ShouldBeNil)
		So(recs, ShouldHaveLength, 5)
	})
}

func TestJournalRun(t *testing.T) {
	db, err := openDb(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	bridge := newSimBridge(t)
	journal := NewJournal(db, bridge, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go journal.Run(ctx)

	Convey("issued commands end up in the journal", t, func() {
		// give the subscriber a moment to register
		time.Sleep(10 * time.Millisecond)

		So(bridge.Command("motor13", 0.5), ShouldBeNil)

		var recs []CommandRecord
		for i := 0; i < 100; i++ {
			recs, _ = journal.Recent(10)
			if len(recs) > 0 {
				break
			}
			time.Sleep(time.Millisecond)
		}

		So(recs, ShouldHaveLength, 1)
		So(recs[0].Name, ShouldEqual, "motor13")
		So(recs[0].Op, ShouldEqual, "move")
		So(recs[0].Speed, ShouldEqual, 0.5)
	})
}
