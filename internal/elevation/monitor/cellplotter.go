package monitor

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/gstavrinos/elevation-mapping/internal/elevation"
)

// CellPlotter records the state of selected map cells over time for
// visualization. It samples the mapper's snapshot once per ingestion cycle,
// accumulating time series data that can be plotted after a run.
type CellPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string

	cells []elevation.CellIndex

	// samples holds per-cell time series. Key = "row_col" (e.g., "15_32")
	samples map[string][]CellSample

	startTime time.Time
	cycleIdx  int
}

// CellSample represents one snapshot of a cell's state.
type CellSample struct {
	CycleIdx  int
	Timestamp time.Time
	Elevation float64
	Variance  float64
	VarianceX float64
	VarianceY float64
	Observed  bool
}

// NewCellPlotter creates a plotter for the given cells.
func NewCellPlotter(cells []elevation.CellIndex) *CellPlotter {
	return &CellPlotter{
		cells:   cells,
		samples: make(map[string][]CellSample),
	}
}

// Start initializes the plotter for a new run.
// outputDir should be a timestamped directory (e.g., "plots/20260830_120500").
func (cp *CellPlotter) Start(outputDir string) error {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	cp.outputDir = outputDir
	cp.enabled = true
	cp.startTime = time.Time{}
	cp.cycleIdx = 0
	cp.samples = make(map[string][]CellSample)
	return nil
}

// Stop disables sampling. Call GeneratePlots() to produce output files.
func (cp *CellPlotter) Stop() {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.enabled = false
}

// IsEnabled returns true if the plotter is currently recording.
func (cp *CellPlotter) IsEnabled() bool {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.enabled
}

// Sample captures the current state of the tracked cells. The mapper calls
// this once per ingestion cycle.
func (cp *CellPlotter) Sample(s *elevation.MapSnapshot) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if !cp.enabled || s == nil {
		return
	}

	now := time.Now()
	if cp.startTime.IsZero() {
		cp.startTime = now
	}
	cp.cycleIdx++

	for _, cell := range cp.cells {
		if cell.Row < 0 || cell.Row >= s.Rows || cell.Col < 0 || cell.Col >= s.Cols {
			continue
		}
		i := cell.Row*s.Cols + cell.Col
		key := fmt.Sprintf("%d_%d", cell.Row, cell.Col)

		cp.samples[key] = append(cp.samples[key], CellSample{
			CycleIdx:  cp.cycleIdx,
			Timestamp: now,
			Elevation: s.Elevation[i],
			Variance:  s.Variance[i],
			VarianceX: s.VarianceX[i],
			VarianceY: s.VarianceY[i],
			Observed:  !math.IsNaN(s.Elevation[i]),
		})
	}
}

// SampleCount returns the number of samples recorded for a cell.
func (cp *CellPlotter) SampleCount(cell elevation.CellIndex) int {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return len(cp.samples[fmt.Sprintf("%d_%d", cell.Row, cell.Col)])
}

// GeneratePlots creates PNG files showing elevation and variance over time
// for all tracked cells. Returns the number of plots generated.
func (cp *CellPlotter) GeneratePlots() (int, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if cp.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}
	if len(cp.samples) == 0 {
		return 0, nil
	}

	pElev := plot.New()
	pElev.Title.Text = "Cell Elevation Estimate"
	pElev.X.Label.Text = "Cycle"
	pElev.Y.Label.Text = "Elevation (m)"

	pVar := plot.New()
	pVar.Title.Text = "Cell Elevation Variance"
	pVar.X.Label.Text = "Cycle"
	pVar.Y.Label.Text = "Variance (m²)"

	// Sort keys for a consistent legend.
	var keys []string
	for key := range cp.samples {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	colors := generateColors(len(keys))

	plotCount := 0
	for i, key := range keys {
		samples := cp.samples[key]
		if len(samples) == 0 {
			continue
		}

		sort.Slice(samples, func(a, b int) bool {
			return samples[a].CycleIdx < samples[b].CycleIdx
		})

		elevPts := make(plotter.XYs, 0, len(samples))
		varPts := make(plotter.XYs, 0, len(samples))
		for _, s := range samples {
			// Skip unobserved samples; NaN ruins the axis ranges.
			if !s.Observed {
				continue
			}
			elevPts = append(elevPts, plotter.XY{X: float64(s.CycleIdx), Y: s.Elevation})
			varPts = append(varPts, plotter.XY{X: float64(s.CycleIdx), Y: s.Variance})
		}

		if len(elevPts) > 0 {
			elevLine, err := plotter.NewLine(elevPts)
			if err != nil {
				return plotCount, err
			}
			elevLine.Color = colors[i]
			elevLine.Width = vg.Points(1)
			pElev.Add(elevLine)
			pElev.Legend.Add(key, elevLine)
		}

		if len(varPts) > 0 {
			varLine, err := plotter.NewLine(varPts)
			if err != nil {
				return plotCount, err
			}
			varLine.Color = colors[i]
			varLine.Width = vg.Points(1)
			pVar.Add(varLine)
			pVar.Legend.Add(key, varLine)
		}
	}

	pElev.Legend.Top = true
	pElev.Legend.Left = false
	pElev.Legend.XOffs = -10
	pElev.Legend.YOffs = -10

	pVar.Legend.Top = true
	pVar.Legend.Left = false
	pVar.Legend.XOffs = -10
	pVar.Legend.YOffs = -10

	elevFile := filepath.Join(cp.outputDir, "cell_elevation.png")
	if err := pElev.Save(14*vg.Inch, 6*vg.Inch, elevFile); err != nil {
		return plotCount, fmt.Errorf("save elevation plot: %w", err)
	}
	plotCount++

	varFile := filepath.Join(cp.outputDir, "cell_variance.png")
	if err := pVar.Save(14*vg.Inch, 6*vg.Inch, varFile); err != nil {
		return plotCount, fmt.Errorf("save variance plot: %w", err)
	}
	plotCount++

	return plotCount, nil
}

// generateColors creates a palette of distinct colors for cell lines.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range).
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	default:
		return p
	}
}
