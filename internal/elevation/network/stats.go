package network

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// BatchStats tracks datagram statistics with thread-safe operations.
type BatchStats struct {
	mu           sync.Mutex
	packetCount  int64
	byteCount    int64
	droppedCount int64
	pointCount   int64
	rejectCount  int64
	lastReset    time.Time
}

// NewBatchStats creates a new BatchStats instance.
func NewBatchStats() *BatchStats {
	return &BatchStats{
		lastReset: time.Now(),
	}
}

// AddPacket increments datagram count and byte count.
func (bs *BatchStats) AddPacket(bytes int) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.packetCount++
	bs.byteCount += int64(bytes)
}

// AddDropped increments the count of batches dropped because the mapper was
// busy.
func (bs *BatchStats) AddDropped() {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.droppedCount++
}

// AddPoints increments the decoded point count.
func (bs *BatchStats) AddPoints(count int) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.pointCount += int64(count)
}

// AddRejected increments the count of datagrams that failed to decode or
// arrived on the wrong topic.
func (bs *BatchStats) AddRejected() {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.rejectCount++
}

// GetAndReset returns current stats and resets counters.
func (bs *BatchStats) GetAndReset() (packets, bytes, dropped, points, rejected int64, duration time.Duration) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	now := time.Now()
	duration = now.Sub(bs.lastReset)
	packets = bs.packetCount
	bytes = bs.byteCount
	dropped = bs.droppedCount
	points = bs.pointCount
	rejected = bs.rejectCount

	bs.packetCount = 0
	bs.byteCount = 0
	bs.droppedCount = 0
	bs.pointCount = 0
	bs.rejectCount = 0
	bs.lastReset = now

	return
}

// LogStats logs per-second rates since the previous call.
func (bs *BatchStats) LogStats() {
	packets, bytes, dropped, points, rejected, duration := bs.GetAndReset()
	if packets == 0 && dropped == 0 {
		return
	}

	packetsPerSec := float64(packets) / duration.Seconds()
	mbPerSec := float64(bytes) / duration.Seconds() / (1024 * 1024)
	pointsPerSec := float64(points) / duration.Seconds()

	logMsg := fmt.Sprintf("Point stream stats (/sec): %.2f MB, %.1f batches, %.0f points",
		mbPerSec, packetsPerSec, pointsPerSec)
	if dropped > 0 {
		logMsg += fmt.Sprintf(", %d dropped while mapper busy", dropped)
	}
	if rejected > 0 {
		logMsg += fmt.Sprintf(", %d rejected", rejected)
	}
	log.Print(logMsg)
}
