// Package api serves the tracker's state over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/banshee-data/lidar.poi/internal/httputil"
	"github.com/banshee-data/lidar.poi/internal/monitoring"
	"github.com/banshee-data/lidar.poi/internal/network"
	"github.com/banshee-data/lidar.poi/internal/poi"
	"github.com/banshee-data/lidar.poi/internal/poidb"
	"github.com/banshee-data/lidar.poi/internal/tracker"
	"github.com/banshee-data/lidar.poi/internal/version"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// History is the read side of the POI log.
type History interface {
	RecentPOIs(session string, limit int) ([]poidb.Event, error)
}

// Options wires a Server to its data sources. Only Tracker is required.
type Options struct {
	Tracker  *tracker.Tracker
	Sequence *network.SequenceTracker
	Scan     *monitoring.ScanLogger
	History  History
	Session  string
	Command  func(string) error // forwards text to the serial sensor
}

type Server struct {
	opts  Options
	table *poi.BinTable
}

func NewServer(opts Options) (*Server, error) {
	if opts.Tracker == nil {
		return nil, errors.New("api server requires a tracker")
	}
	return &Server{opts: opts, table: opts.Tracker.Table()}, nil
}

// ServeMux returns a mux with every API and debug route attached.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/poi", s.showPOI)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/bins", s.listBins)
	mux.HandleFunc("/api/params", s.handleParams)
	mux.HandleFunc("/api/history", s.listHistory)
	mux.HandleFunc("/command", s.sendCommand)
	s.attachCharts(mux)
	return mux
}

func (s *Server) showPOI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.opts.Tracker.Last())
}

// RotationStats is the JSON form of the latest rotation summary.
type RotationStats struct {
	Readings    int     `json:"readings"`
	MinDist     float64 `json:"min_distance_mm"`
	MaxDist     float64 `json:"max_distance_mm"`
	MeanDist    float64 `json:"mean_distance_mm"`
	StdDevDist  float64 `json:"stddev_distance_mm"`
	MeanQuality float64 `json:"mean_quality"`
	Hz          float64 `json:"hz"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Table        poi.Stats      `json:"table"`
	Reports      int64          `json:"reports"`
	Lost         uint64         `json:"lost"`
	LostPercent  float64        `json:"lost_percent"`
	SenderResets uint64         `json:"sender_resets"`
	Rotation     *RotationStats `json:"rotation,omitempty"`
	Version      string         `json:"version"`
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := StatsResponse{
		Table:   s.table.Stats(),
		Reports: s.opts.Tracker.Reports(),
		Version: version.String(),
	}
	if seq := s.opts.Sequence; seq != nil {
		resp.Lost, resp.LostPercent = seq.Lost()
		resp.SenderResets = seq.Resets()
	}
	if s.opts.Scan != nil {
		if rs := s.opts.Scan.LastRotation(); rs.N > 0 {
			resp.Rotation = &RotationStats{
				Readings:    rs.N,
				MinDist:     rs.MinDist,
				MaxDist:     rs.MaxDist,
				MeanDist:    rs.MeanDist,
				StdDevDist:  rs.StdDevDist,
				MeanQuality: rs.MeanQuality,
				Hz:          rs.Hz(),
			}
		}
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) listBins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"divisions":  s.table.Len(),
		"bins":       s.table.Bins(),
		"last_moved": s.table.LastMoved(),
	})
}

// ParamsResponse is the body of GET /api/params.
type ParamsResponse struct {
	DivisionsPerDegree float64 `json:"divisions_per_degree"`
	TotalDivisions     int     `json:"total_divisions"`
	MovedFactor        float64 `json:"moved_factor"`
	ForgetWindowMS     int64   `json:"forget_window_ms"`
	TransientWindowMS  int64   `json:"transient_window_ms"`
	AngularNearDeg     float64 `json:"angular_near_deg"`
	RadialNearMM       float64 `json:"radial_near_mm"`
	MaxPOIDistMM       float64 `json:"max_poi_dist_mm"`
	Version            string  `json:"version"`
}

type paramsUpdate struct {
	MaxPOIDistMM *float64 `json:"max_poi_dist_mm"`
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost, http.MethodPut:
		var req paramsUpdate
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
			httputil.BadRequest(w, "invalid JSON: "+err.Error())
			return
		}
		if req.MaxPOIDistMM == nil {
			httputil.BadRequest(w, "max_poi_dist_mm is required")
			return
		}
		if err := s.table.SetMaxPOIDistance(*req.MaxPOIDistMM); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	default:
		httputil.MethodNotAllowed(w)
		return
	}

	p := s.table.Params()
	httputil.WriteJSONOK(w, ParamsResponse{
		DivisionsPerDegree: p.DivisionsPerDegree,
		TotalDivisions:     p.TotalDivisions(),
		MovedFactor:        p.MovedFactor,
		ForgetWindowMS:     p.ForgetWindow.Milliseconds(),
		TransientWindowMS:  p.TransientWindow.Milliseconds(),
		AngularNearDeg:     p.AngularNear,
		RadialNearMM:       p.RadialNear,
		MaxPOIDistMM:       p.MaxPOIDistance,
		Version:            version.String(),
	})
}

// listHistory serves recorded POI changes for the current session, or for
// every session with ?session=all.
func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.opts.History == nil {
		httputil.ServiceUnavailable(w, "history is not being recorded")
		return
	}
	limit, err := httputil.QueryInt(r, "limit", defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	session := s.opts.Session
	switch q := r.URL.Query().Get("session"); q {
	case "":
	case "all":
		session = ""
	default:
		session = q
	}
	events, err := s.opts.History.RecentPOIs(session, limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, events)
}

func (s *Server) sendCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.opts.Command == nil {
		httputil.ServiceUnavailable(w, "no serial sensor attached")
		return
	}
	command := r.FormValue("command")
	if command == "" {
		httputil.BadRequest(w, "command is required")
		return
	}
	if err := s.opts.Command(command); err != nil {
		httputil.InternalServerError(w, "failed to send command: "+err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "sent"})
}
