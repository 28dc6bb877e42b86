package elevation

import (
	"context"
	"math"
	"time"

	"github.com/gstavrinos/elevation-mapping/internal/config"
	"github.com/gstavrinos/elevation-mapping/internal/elevation/tf"
	"github.com/gstavrinos/elevation-mapping/internal/monitoring"
	"github.com/gstavrinos/elevation-mapping/internal/timeutil"
)

// TransformSource provides frame transform lookup and broadcast. Lookup
// blocks up to timeout; both operations fail softly and callers branch on
// the error rather than escalating.
type TransformSource interface {
	Lookup(target, source string, stamp time.Time, timeout time.Duration) (tf.RigidTransform, error)
	Broadcast(tr tf.RigidTransform, stamp time.Time, parent, child string) error
}

// Publisher delivers map snapshots to downstream consumers. Publishing with
// zero subscribers is skipped by the mapper.
type Publisher interface {
	SubscriberCount() int
	Publish(s *MapSnapshot)
}

// SnapshotSink receives a snapshot after every completed ingestion cycle,
// e.g. for session recording. Errors are logged, never fatal.
type SnapshotSink interface {
	RecordSnapshot(s *MapSnapshot) error
}

// CycleSampler observes the grid once per ingestion cycle, e.g. the cell
// plotter. It runs on the dispatch goroutine.
type CycleSampler interface {
	Sample(s *MapSnapshot)
}

// MapperDeps are the collaborators wired into a Mapper. Transforms is
// required; the rest are optional.
type MapperDeps struct {
	Clock      timeutil.Clock
	Transforms TransformSource
	Publisher  Publisher
	Sink       SnapshotSink
	Sampler    CycleSampler
}

// Mapper orchestrates one ingestion cycle per point batch: process noise
// growth, per-point fusion, and publishing. A watchdog forces a transform
// re-broadcast when no sensor data arrives within the allowed gap. Batches
// and watchdog ticks are dispatched from a single goroutine, so the grid is
// never mutated concurrently.
type Mapper struct {
	grid     *Grid
	fusion   FusionEngine
	noise    ProcessNoiseModel
	watchdog *Watchdog
	clock    timeutil.Clock

	transforms TransformSource
	publisher  Publisher
	sink       SnapshotSink
	sampler    CycleSampler

	parentFrame string
	mapFrame    string
	cutoffDepth float64
	maxGap      time.Duration

	// anchor takes points in the map frame to the parent frame; fixed at
	// construction.
	anchor tf.RigidTransform

	batches chan PointBatch
}

// NewMapper builds a mapper from the mapping configuration: the grid is
// allocated and reset, and the anchor transform is the reference offset of
// +0.8 m along X in the parent frame.
func NewMapper(cfg *config.MappingConfig, deps MapperDeps) (*Mapper, error) {
	policy, err := ParseVariancePolicy(cfg.GetVariancePolicy())
	if err != nil {
		return nil, err
	}

	clock := deps.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	maxGap := cfg.GetMaxNoUpdateDuration()
	m := &Mapper{
		grid: NewGrid(cfg.GetLengthX(), cfg.GetLengthY(), cfg.GetResolution()),
		fusion: FusionEngine{
			MeasurementVariance: cfg.GetMeasurementVariance(),
			Policy:              policy,
		},
		noise: ProcessNoiseModel{
			Delta:       cfg.GetProcessNoiseDelta(),
			MinVariance: cfg.GetMinVariance(),
			MaxVariance: cfg.GetMaxVariance(),
		},
		watchdog:    NewWatchdog(clock, maxGap),
		clock:       clock,
		transforms:  deps.Transforms,
		publisher:   deps.Publisher,
		sink:        deps.Sink,
		sampler:     deps.Sampler,
		parentFrame: cfg.GetParentFrameID(),
		mapFrame:    cfg.GetMapFrameID(),
		cutoffDepth: cfg.GetSensorCutoffDepth(),
		maxGap:      maxGap,
		anchor:      tf.Translation(0.8, 0, 0),
		batches:     make(chan PointBatch, 1),
	}
	return m, nil
}

// Grid returns the live grid. Mutation outside the mapper's dispatch
// goroutine is not safe; use Snapshot for concurrent reads.
func (m *Mapper) Grid() *Grid {
	return m.grid
}

// Snapshot returns a copy of the current map state stamped with the last
// sensor-driven update time.
func (m *Mapper) Snapshot() *MapSnapshot {
	return m.grid.Snapshot(m.watchdog.LastUpdate(), m.mapFrame)
}

// Batches is the channel the point stream feeds. The mapper consumes it in
// Run.
func (m *Mapper) Batches() chan<- PointBatch {
	return m.batches
}

// BroadcastAnchor publishes the map-to-parent anchor transform at the given
// stamp. Best effort: failure is reported to the caller for logging only.
func (m *Mapper) BroadcastAnchor(stamp time.Time) error {
	return m.transforms.Broadcast(m.anchor, stamp, m.parentFrame, m.mapFrame)
}

// Run dispatches sensor batches and watchdog ticks until ctx is cancelled.
// Each handler runs to completion before the next event is dispatched.
func (m *Mapper) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.watchdog.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-m.batches:
			m.HandleBatch(batch)
		case now := <-ticker.C():
			m.handleTick(now)
		}
	}
}

// HandleBatch runs one full ingestion cycle for a point batch.
func (m *Mapper) HandleBatch(batch PointBatch) {
	monitoring.Debugf("elevation: received a point batch (%d points) for elevation mapping", len(batch.Points))

	// 1. Re-broadcast the anchor transform at the batch stamp; non-fatal.
	if err := m.BroadcastAnchor(batch.Stamp); err != nil {
		monitoring.Logf("elevation: broadcasting map transform to parent failed: %v", err)
	}

	// 2. Grow process noise. Failure abandons the whole batch.
	m.grid.mu.Lock()
	if err := m.noise.Grow(m.grid); err != nil {
		m.grid.mu.Unlock()
		monitoring.Logf("elevation: updating process noise failed: %v", err)
		return
	}
	m.grid.mu.Unlock()

	// 3. This batch counts as a sensor-driven update.
	m.watchdog.Observe(batch.Stamp)

	// 4. Depth pre-filter in the sensor frame.
	points := filterByDepth(batch.Points, m.cutoffDepth)
	monitoring.Debugf("elevation: depth filter reduced batch to %d points", len(points))

	// 5. Transform surviving points into the map frame; one bounded-wait
	// attempt per batch. On failure the map is left unchanged this cycle.
	transform, err := m.transforms.Lookup(m.mapFrame, batch.FrameID, batch.Stamp, m.maxGap)
	if err != nil {
		monitoring.Logf("elevation: point batch transform failed for time stamp %s: %v",
			batch.Stamp.Format(time.RFC3339Nano), err)
	} else {
		// 6. Fuse each point, skipping out-of-bounds ones.
		m.fuseBatch(transform, points)
	}

	// 7. Publish the snapshot when someone is listening; record it if a
	// sink is attached.
	m.finishCycle()
}

// handleTick evaluates the watchdog. On the transition into Stale it forces
// one transform re-broadcast so downstream consumers stay synchronized even
// without sensor data.
func (m *Mapper) handleTick(now time.Time) {
	if !m.watchdog.Tick(now) {
		return
	}

	monitoring.Debugf("elevation: map is refreshed without data from the sensor")
	if err := m.BroadcastAnchor(now); err != nil {
		monitoring.Logf("elevation: broadcasting map transform to parent failed: %v", err)
	}
}

// fuseBatch transforms points into the map frame and fuses them cell by
// cell. Out-of-bounds points are routine and skipped silently.
func (m *Mapper) fuseBatch(transform tf.RigidTransform, points []Point) {
	m.grid.mu.Lock()
	defer m.grid.mu.Unlock()

	fused := 0
	for _, p := range points {
		x, y, z := transform.Apply(p.X, p.Y, p.Z)
		idx, ok := m.grid.IndexForPosition(x, y)
		if !ok {
			continue
		}
		m.fusion.Fuse(m.grid, idx, Measurement{
			Elevation: z,
			Color:     PackColor(p.R, p.G, p.B),
		})
		fused++
	}
	monitoring.Debugf("elevation: fused %d of %d points into the map", fused, len(points))
}

// finishCycle publishes and records the post-cycle snapshot.
func (m *Mapper) finishCycle() {
	if m.publisher == nil && m.sink == nil && m.sampler == nil {
		return
	}

	snapshot := m.Snapshot()
	if m.sampler != nil {
		m.sampler.Sample(snapshot)
	}
	if m.sink != nil {
		if err := m.sink.RecordSnapshot(snapshot); err != nil {
			monitoring.Logf("elevation: recording map snapshot failed: %v", err)
		}
	}
	if m.publisher != nil && m.publisher.SubscriberCount() > 0 {
		m.publisher.Publish(snapshot)
		monitoring.Debugf("elevation: map has been published")
	}
}

// filterByDepth drops points whose depth (sensor-frame Z) is invalid,
// negative, or beyond the cutoff. The result carries no NaN coordinates.
func filterByDepth(points []Point, cutoff float64) []Point {
	kept := make([]Point, 0, len(points))
	for _, p := range points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z) {
			continue
		}
		if p.Z < 0 || p.Z > cutoff {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}
