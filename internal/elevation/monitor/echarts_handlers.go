package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridis palette used for cell value coloring.
var viridisColors = []string{
	"#440154", "#482777", "#3e4989", "#31688e", "#26828e",
	"#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725",
}

// handleMapChart renders the observed cells of the current map as a colored
// scatter (HTML) using go-echarts. This is a debugging-only endpoint to
// visually inspect the map without an external viewer. The URL path picks
// the channel: /debug/map/elevation or /debug/map/variance.
// Query params:
//   - max_points (optional; default 8000) to reduce payload size
func (ws *WebServer) handleMapChart(w http.ResponseWriter, r *http.Request) {
	if ws.source == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "no map source configured")
		return
	}

	channel := "elevation"
	if strings.HasSuffix(r.URL.Path, "/variance") {
		channel = "variance"
	}

	maxPoints := 8000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	s := ws.source.Snapshot()
	values := s.Elevation
	if channel == "variance" {
		values = s.Variance
	}

	observed := 0
	for _, v := range values {
		if !math.IsNaN(v) {
			observed++
		}
	}
	if observed == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "map has no observed cells yet")
		return
	}

	// Downsample by stride to stay within maxPoints.
	stride := 1
	if observed > maxPoints {
		stride = int(math.Ceil(float64(observed) / float64(maxPoints)))
	}

	data := make([]opts.ScatterData, 0, observed/stride+1)
	minVal := math.Inf(1)
	maxVal := math.Inf(-1)
	kept := 0
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		kept++
		if kept%stride != 0 {
			continue
		}
		row := i / s.Cols
		col := i % s.Cols
		x := -s.LengthX/2 + (float64(row)+0.5)*s.Resolution
		y := -s.LengthY/2 + (float64(col)+0.5)*s.Resolution
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
		data = append(data, opts.ScatterData{Value: []interface{}{x, y, v}})
	}
	if maxVal <= minVal {
		maxVal = minVal + 1
	}

	padX := s.LengthX / 2 * 1.05
	padY := s.LengthY / 2 * 1.05

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Elevation Map", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Elevation Map Cells", Subtitle: fmt.Sprintf("channel=%s cells=%d stride=%d stamp=%s", channel, len(data), stride, s.Stamp.Format("15:04:05.000"))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -padX, Max: padX, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -padY, Max: padY, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minVal),
			Max:        float32(maxVal),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisColors},
		}),
	)

	scatter.AddSeries(channel, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
