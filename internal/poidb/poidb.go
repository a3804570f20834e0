// Package poidb keeps a write-only sqlite log of point-of-interest changes,
// grouped into one session per process run.
package poidb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/lidar.poi/internal/poi"
	"github.com/banshee-data/lidar.poi/internal/timeutil"
	"github.com/banshee-data/lidar.poi/internal/tracker"
)

// ErrNoSession is returned for an unknown session id.
var ErrNoSession = errors.New("session not found")

type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies the
// embedded migrations.
func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := sqldb.Ping(); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	db := &DB{DB: sqldb, path: path}
	if err := db.MigrateUp(); err != nil {
		sqldb.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string { return db.path }

// sessionParams is the stored form of poi.Params.
type sessionParams struct {
	DivisionsPerDegree float64 `json:"divisions_per_degree"`
	MovedFactor        float64 `json:"moved_factor"`
	ForgetWindowMS     int64   `json:"forget_window_ms"`
	TransientWindowMS  int64   `json:"transient_window_ms"`
	AngularNear        float64 `json:"angular_near_deg"`
	RadialNear         float64 `json:"radial_near_mm"`
	MaxPOIDistance     float64 `json:"max_poi_dist_mm"`
}

func encodeParams(p poi.Params) sessionParams {
	return sessionParams{
		DivisionsPerDegree: p.DivisionsPerDegree,
		MovedFactor:        p.MovedFactor,
		ForgetWindowMS:     p.ForgetWindow.Milliseconds(),
		TransientWindowMS:  p.TransientWindow.Milliseconds(),
		AngularNear:        p.AngularNear,
		RadialNear:         p.RadialNear,
		MaxPOIDistance:     p.MaxPOIDistance,
	}
}

func (s sessionParams) params() poi.Params {
	return poi.Params{
		DivisionsPerDegree: s.DivisionsPerDegree,
		MovedFactor:        s.MovedFactor,
		ForgetWindow:       time.Duration(s.ForgetWindowMS) * time.Millisecond,
		TransientWindow:    time.Duration(s.TransientWindowMS) * time.Millisecond,
		AngularNear:        s.AngularNear,
		RadialNear:         s.RadialNear,
		MaxPOIDistance:     s.MaxPOIDistance,
	}
}

// Session is one run of the tracker.
type Session struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Params    poi.Params `json:"-"`
}

// StartSession records a new session with the tuning in force and returns
// its id.
func (db *DB) StartSession(p poi.Params, at time.Time) (string, error) {
	raw, err := json.Marshal(encodeParams(p))
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = db.Exec(`INSERT INTO sessions (session_id, started_at, params_json) VALUES (?, ?, ?)`,
		id, at.UnixMilli(), string(raw))
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	return id, nil
}

// EndSession stamps the session's end time.
func (db *DB) EndSession(id string, at time.Time) error {
	res, err := db.Exec(`UPDATE sessions SET ended_at = ? WHERE session_id = ?`, at.UnixMilli(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoSession
	}
	return nil
}

// GetSession loads one session.
func (db *DB) GetSession(id string) (Session, error) {
	var (
		s       Session
		started int64
		ended   sql.NullInt64
		raw     string
	)
	err := db.QueryRow(`SELECT session_id, started_at, ended_at, params_json FROM sessions WHERE session_id = ?`, id).
		Scan(&s.ID, &started, &ended, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, err
	}
	s.StartedAt = time.UnixMilli(started).UTC()
	if ended.Valid {
		t := time.UnixMilli(ended.Int64).UTC()
		s.EndedAt = &t
	}
	var sp sessionParams
	if err := json.Unmarshal([]byte(raw), &sp); err != nil {
		return Session{}, fmt.Errorf("session %s has bad params: %w", id, err)
	}
	s.Params = sp.params()
	return s, nil
}

// Event is one recorded POI change.
type Event struct {
	ID          int64        `json:"id"`
	SessionID   string       `json:"session_id"`
	RecordedAt  time.Time    `json:"recorded_at"`
	Found       bool         `json:"found"`
	POI         poi.Snapshot `json:"poi"`
	Decision    poi.Decision `json:"decision"`
	Packets     int64        `json:"packets"`
	LossPercent float64      `json:"loss_percent"`
}

// RecordPOI appends a report to session.
func (db *DB) RecordPOI(session string, r tracker.Report) error {
	_, err := db.Exec(`
		INSERT INTO poi_events (
			session_id, recorded_at, found, angle, distance, times_seen,
			last_seen_ms, last_moved_ms, decision, packets, loss_percent
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session, r.At.UnixMilli(), r.Found, r.POI.Angle, r.POI.Distance, r.POI.TimesSeen,
		uint32(r.POI.LastSeen), uint32(r.POI.LastMoved), string(r.Decision), r.Packets, r.LossPercent,
	)
	if err != nil {
		return fmt.Errorf("failed to record poi: %w", err)
	}
	return nil
}

// RecentPOIs returns up to limit events for session, newest first. An empty
// session id selects events from every session.
func (db *DB) RecentPOIs(session string, limit int) ([]Event, error) {
	if limit < 1 {
		limit = 1
	}
	rows, err := db.Query(`
		SELECT event_id, session_id, recorded_at, found, angle, distance, times_seen,
			last_seen_ms, last_moved_ms, decision, packets, loss_percent
		FROM poi_events
		WHERE ? = '' OR session_id = ?
		ORDER BY event_id DESC
		LIMIT ?`, session, session, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			e           Event
			at          int64
			seen, moved int64
			decision    string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &at, &e.Found, &e.POI.Angle, &e.POI.Distance,
			&e.POI.TimesSeen, &seen, &moved, &decision, &e.Packets, &e.LossPercent); err != nil {
			return nil, err
		}
		e.RecordedAt = time.UnixMilli(at).UTC()
		e.POI.LastSeen = timeutil.Millis(seen)
		e.POI.LastMoved = timeutil.Millis(moved)
		e.Decision = poi.Decision(decision)
		events = append(events, e)
	}
	return events, rows.Err()
}

// AttachAdminRoutes mounts a tailsql console over the database and a
// session listing under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "POI log",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("poi-sessions", "Recorded tracker sessions", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessions, err := db.ListSessions(r.Context(), 50)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(sessions); err != nil {
			log.Printf("[POIDB] failed to encode sessions: %v", err)
		}
	}))
	return nil
}

// ListSessions returns up to limit sessions, newest first.
func (db *DB) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT session_id FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sessions := make([]Session, 0, len(ids))
	for _, id := range ids {
		s, err := db.GetSession(id)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}
