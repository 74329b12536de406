package main

import (
	"context"
	"log"
	"time"

	"github.com/Jak3Gil/Melvin-Research/onboard"
	"github.com/asdine/storm/v3"
)

// CommandRecord is one persisted motor command, kept so command traffic can
// be analyzed after the fact the way the capture scripts used to allow.
type CommandRecord struct {
	Pk    int       `storm:"id,increment"`
	Time  time.Time `storm:"index" json:"time"`
	Kind  string    `json:"kind"`
	Motor uint8     `json:"motor"`
	Name  string    `json:"name"`
	Op    string    `json:"op"`
	Speed float64   `json:"speed"`
	Error string    `json:"error,omitempty"`
}

func openDb(dbFile string) (db *storm.DB, err error) {
	db, err = storm.Open(dbFile)
	if err != nil {
		return
	}

	// call inits for each type
	if err := db.Init(&CommandRecord{}); err != nil {
		return nil, err
	}

	return
}

// Journal subscribes to bridge events and persists the ones that resulted
// in a transmitted command.
type Journal struct {
	db     *storm.DB
	bridge *onboard.Bridge
	keep   int
	saved  int
}

func NewJournal(db *storm.DB, bridge *onboard.Bridge, keep int) *Journal {
	return &Journal{
		db:     db,
		bridge: bridge,
		keep:   keep,
	}
}

func (j *Journal) Run(ctx context.Context) {
	id, events := j.bridge.Subscribe()
	defer j.bridge.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind == onboard.EventIgnored {
				// not motor traffic, not worth a row
				continue
			}
			if err := j.record(ev); err != nil {
				log.Printf("journal: save failed: %v", err)
			}
		}
	}
}

func (j *Journal) record(ev onboard.Event) error {
	rec := &CommandRecord{
		Time:  ev.Time,
		Kind:  string(ev.Kind),
		Motor: uint8(ev.Motor),
		Name:  ev.Name,
		Op:    ev.Op,
		Speed: ev.Speed,
		Error: ev.Error,
	}
	if err := j.db.Save(rec); err != nil {
		return err
	}

	j.saved++
	if j.keep > 0 && j.saved%256 == 0 {
		j.prune()
	}
	return nil
}

// prune drops the oldest records beyond the keep count.
func (j *Journal) prune() {
	var old []CommandRecord
	if err := j.db.All(&old, storm.Reverse(), storm.Skip(j.keep)); err != nil {
		return
	}
	for i := range old {
		j.db.DeleteStruct(&old[i])
	}
}

// Recent returns up to limit records, newest first.
func (j *Journal) Recent(limit int) ([]CommandRecord, error) {
	var recs []CommandRecord
	err := j.db.All(&recs, storm.Limit(limit), storm.Reverse())
	if err == storm.ErrNotFound {
		return nil, nil
	}
	return recs, err
}
