package poidb

import (
	"context"
	"sync"

	"github.com/banshee-data/lidar.poi/internal/tracker"
)

// Recorder is a tracker.Reporter that logs every POI change to a session.
type Recorder struct {
	db      *DB
	session string

	mu      sync.Mutex
	pending bool
}

func NewRecorder(db *DB, session string) *Recorder {
	return &Recorder{db: db, session: session}
}

// Session returns the id events are recorded under.
func (r *Recorder) Session() string { return r.session }

// Report implements tracker.Reporter. A change is recorded with the POI it
// leaves; if the write fails the next report retries with the current POI.
// Changes that leave no POI are not recorded.
func (r *Recorder) Report(_ context.Context, rep tracker.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rep.Changed {
		r.pending = rep.Found
	}
	if !r.pending {
		return nil
	}
	if err := r.db.RecordPOI(r.session, rep); err != nil {
		return err
	}
	r.pending = false
	return nil
}
