package elevation

import (
	"sync"
	"time"

	"github.com/gstavrinos/elevation-mapping/internal/timeutil"
)

// WatchdogState is the freshness state of the map.
type WatchdogState string

const (
	// WatchdogIdle means a sensor-driven update happened within the
	// allowed gap.
	WatchdogIdle WatchdogState = "idle"
	// WatchdogStale means the allowed gap has been exceeded and a forced
	// refresh was issued.
	WatchdogStale WatchdogState = "stale"
)

// Watchdog enforces a maximum gap between map refreshes. It is a two-state
// machine driven by an injected clock; the mapper polls it from a ticker
// running at twice the minimum required update frequency so staleness is
// detected promptly.
type Watchdog struct {
	clock  timeutil.Clock
	maxGap time.Duration

	// mu guards state and lastUpdate: the dispatch goroutine writes them
	// while snapshot readers poll LastUpdate from other goroutines.
	mu         sync.Mutex
	state      WatchdogState
	lastUpdate time.Time
}

// NewWatchdog creates a watchdog that is Idle as of the clock's current time.
func NewWatchdog(clock timeutil.Clock, maxGap time.Duration) *Watchdog {
	return &Watchdog{
		clock:      clock,
		maxGap:     maxGap,
		state:      WatchdogIdle,
		lastUpdate: clock.Now(),
	}
}

// TickInterval returns the polling period: half the maximum allowed gap.
func (w *Watchdog) TickInterval() time.Duration {
	return w.maxGap / 2
}

// Observe records a sensor-driven update at the given stamp and returns the
// watchdog to Idle.
func (w *Watchdog) Observe(stamp time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastUpdate = stamp
	w.state = WatchdogIdle
}

// Tick evaluates freshness at time now. It returns true exactly once per
// staleness episode: on the Idle to Stale transition. Repeated ticks while
// already stale return false, so a forced refresh is issued once until the
// next sensor-driven update.
func (w *Watchdog) Tick(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if now.Sub(w.lastUpdate) < w.maxGap {
		w.state = WatchdogIdle
		return false
	}
	if w.state == WatchdogStale {
		return false
	}
	w.state = WatchdogStale
	return true
}

// State returns the current freshness state.
func (w *Watchdog) State() WatchdogState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// LastUpdate returns the stamp of the most recent sensor-driven update.
func (w *Watchdog) LastUpdate() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastUpdate
}
