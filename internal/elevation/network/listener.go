package network

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/gstavrinos/elevation-mapping/internal/elevation"
)

// StatsInterface provides datagram statistics management.
type StatsInterface interface {
	AddPacket(bytes int)
	AddDropped()
	AddPoints(count int)
	AddRejected()
	LogStats()
}

// UDPListener receives point batch datagrams and feeds decoded batches to
// the mapper. Batches published on a topic other than the configured one
// are rejected. When the mapper has not yet drained the previous batch, the
// new one is dropped rather than queued: the map wants the freshest data,
// not a backlog.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	topic       string
	conn        *net.UDPConn
	stats       StatsInterface
	batches     chan<- elevation.PointBatch
}

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Topic       string
	Stats       StatsInterface
	Batches     chan<- elevation.PointBatch
}

// NewUDPListener creates a new UDP listener with the provided configuration.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	// Provide a no-op stats implementation when none is supplied to avoid
	// nil pointer dereferences in the packet handling and logging paths.
	var stats StatsInterface
	if config.Stats != nil {
		stats = config.Stats
	} else {
		stats = &noopStats{}
	}

	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		topic:       config.Topic,
		stats:       stats,
		batches:     config.Batches,
	}
}

// noopStats is a StatsInterface implementation that does nothing.
type noopStats struct{}

func (n *noopStats) AddPacket(bytes int) {}
func (n *noopStats) AddDropped()         {}
func (n *noopStats) AddPoints(count int) {}
func (n *noopStats) AddRejected()        {}
func (n *noopStats) LogStats()           {}

// Start begins listening for UDP datagrams and processing them. It blocks
// until ctx is cancelled.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.conn = conn
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			log.Printf("Warning: Failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	log.Printf("Point stream listener started on %s for topic %q", conn.LocalAddr(), l.topic)

	go l.startStatsLogging(ctx)

	buffer := make([]byte, 65536)

	for {
		select {
		case <-ctx.Done():
			log.Print("Point stream listener stopping due to context cancellation")
			return ctx.Err()
		default:
			// Read deadline bounds the blocking read so context
			// cancellation is noticed.
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

			n, addr, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("UDP read error: %v", err)
				continue
			}

			if err := l.handleDatagram(buffer[:n]); err != nil {
				log.Printf("Error handling datagram from %v: %v", addr, err)
			}
		}
	}
}

// startStatsLogging periodically logs datagram statistics. An initial
// report fires shortly after startup to avoid a long first-run silence.
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		l.stats.LogStats()
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

// handleDatagram processes a single received datagram.
func (l *UDPListener) handleDatagram(payload []byte) error {
	l.stats.AddPacket(len(payload))

	topic, batch, err := ParseBatch(payload)
	if err != nil {
		l.stats.AddRejected()
		return nil // malformed datagrams are routine on a shared port
	}
	if l.topic != "" && topic != l.topic {
		l.stats.AddRejected()
		return nil
	}

	l.stats.AddPoints(len(batch.Points))

	if l.batches == nil {
		return nil
	}
	select {
	case l.batches <- batch:
	default:
		l.stats.AddDropped()
	}
	return nil
}

// Close closes the UDP listener and releases resources.
func (l *UDPListener) Close() error {
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
