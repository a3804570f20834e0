package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/lidar.poi/internal/httputil"
	"github.com/banshee-data/lidar.poi/internal/poi"
)

func (s *Server) attachCharts(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("bins", "Bin distances around the sensor (XY)", http.HandlerFunc(s.handleBinsChart))
}

// polarToXY converts a bearing in degrees and a range in mm to metres.
func polarToXY(angle, distance float64) (x, y float64) {
	rad := angle * math.Pi / 180
	return distance / 1000 * math.Cos(rad), distance / 1000 * math.Sin(rad)
}

func scatterPoints(snaps []poi.Snapshot, maxAbs *float64) []opts.ScatterData {
	pts := make([]opts.ScatterData, 0, len(snaps))
	for _, sn := range snaps {
		if !sn.Valid() {
			continue
		}
		x, y := polarToXY(sn.Angle, sn.Distance)
		*maxAbs = max(*maxAbs, math.Abs(x), math.Abs(y))
		pts = append(pts, opts.ScatterData{Value: []interface{}{x, y, sn.Angle}})
	}
	return pts
}

// handleBinsChart renders every populated bin as a scatter, with the last
// moved point and the POI drawn on top.
func (s *Server) handleBinsChart(w http.ResponseWriter, r *http.Request) {
	bins := s.table.Bins()
	last := s.opts.Tracker.Last()
	moved := s.table.LastMoved()

	maxAbs := 0.0
	binPts := scatterPoints(bins, &maxAbs)
	movedPts := scatterPoints([]poi.Snapshot{moved}, &maxAbs)
	poiPts := scatterPoints([]poi.Snapshot{last.POI}, &maxAbs)

	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	subtitle := fmt.Sprintf("bins=%d/%d decision=%s", len(binPts), s.table.Len(), last.Decision)
	if last.POI.Valid() {
		subtitle += fmt.Sprintf(" poi=%.2f° %.0fmm", last.POI.Angle, last.POI.Distance)
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "LiDAR POI", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Bins and point of interest", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("bins", binPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#9e9e9e"}))
	scatter.AddSeries("last moved", movedPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ffb300"}))
	scatter.AddSeries("poi", poiPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 16}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render bins chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
