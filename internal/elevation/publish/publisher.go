package publish

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gstavrinos/elevation-mapping/internal/elevation"
)

// Config holds configuration for the map WebSocket server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:8766")
	ListenAddr string

	// MaxClients is the maximum number of concurrent subscribers
	MaxClients int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr: "localhost:8766",
		MaxClients: 5,
	}
}

// Publisher serves map snapshots to WebSocket subscribers. Each published
// snapshot is encoded once and fanned out; a slow subscriber drops frames
// rather than stalling the mapper.
type Publisher struct {
	config   Config
	server   *http.Server
	listener net.Listener
	upgrader websocket.Upgrader

	frameChan chan *elevation.MapSnapshot
	clients   map[string]*clientStream
	clientsMu sync.RWMutex
	nextID    atomic.Uint64

	// Stats
	frameCount    atomic.Uint64
	clientCount   atomic.Int32
	droppedFrames atomic.Uint64

	// Lifecycle
	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// clientStream represents one connected subscriber.
type clientStream struct {
	id      string
	frameCh chan []byte
	doneCh  chan struct{}
}

// NewPublisher creates a new Publisher with the given configuration.
func NewPublisher(cfg Config) *Publisher {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = DefaultConfig().MaxClients
	}
	return &Publisher{
		config:    cfg,
		frameChan: make(chan *elevation.MapSnapshot, 16),
		clients:   make(map[string]*clientStream),
		stopCh:    make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Start binds the listen address and begins serving subscribers.
func (p *Publisher) Start() error {
	if p.running.Load() {
		return fmt.Errorf("publisher already running")
	}

	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	p.listener = lis

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", p.handleWS)
	p.server = &http.Server{Handler: mux}

	p.running.Store(true)

	p.wg.Add(1)
	go p.broadcastLoop()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Printf("Map publisher listening on ws://%s/ws", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() && err != http.ErrServerClosed {
			log.Printf("Map publisher server error: %v", err)
		}
	}()

	return nil
}

// Stop shuts the server down and disconnects all subscribers.
func (p *Publisher) Stop() {
	if !p.running.Load() {
		return
	}
	p.running.Store(false)
	close(p.stopCh)

	if p.server != nil {
		p.server.Close()
	}

	p.wg.Wait()
	log.Print("Map publisher stopped")
}

// Addr returns the bound listen address, or empty before Start.
func (p *Publisher) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// SubscriberCount returns the number of connected subscribers.
func (p *Publisher) SubscriberCount() int {
	return int(p.clientCount.Load())
}

// Publish queues a snapshot for delivery to all subscribers. It never
// blocks; when the queue is full the snapshot is dropped and counted.
func (p *Publisher) Publish(s *elevation.MapSnapshot) {
	if !p.running.Load() || s == nil {
		return
	}

	select {
	case p.frameChan <- s:
		p.frameCount.Add(1)
	default:
		dropped := p.droppedFrames.Add(1)
		log.Printf("Map publisher dropped a snapshot (total dropped: %d), queue full", dropped)
	}
}

// broadcastLoop encodes each snapshot once and distributes the payload to
// every subscriber.
func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case s := <-p.frameChan:
			payload, err := EncodeFrame(s)
			if err != nil {
				log.Printf("Map publisher failed to encode snapshot: %v", err)
				continue
			}

			p.clientsMu.RLock()
			for _, client := range p.clients {
				select {
				case client.frameCh <- payload:
				default:
					// Subscriber is slow; drop this frame for it.
					p.droppedFrames.Add(1)
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

// handleWS upgrades a subscriber connection and streams frames to it until
// it disconnects.
func (p *Publisher) handleWS(rw http.ResponseWriter, r *http.Request) {
	if int(p.clientCount.Load()) >= p.config.MaxClients {
		http.Error(rw, "too many subscribers", http.StatusServiceUnavailable)
		return
	}

	conn, err := p.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := p.addClient()
	defer p.removeClient(client.id)

	// Writer goroutine owns the connection for writes.
	writeErr := make(chan error, 1)
	go func() {
		for {
			select {
			case <-client.doneCh:
				writeErr <- nil
				return
			case <-p.stopCh:
				writeErr <- nil
				return
			case payload := <-client.frameCh:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					writeErr <- err
					return
				}
			}
		}
	}()

	// Reader loop exists only to notice disconnects; inbound payloads are
	// discarded.
	for {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(client.doneCh)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

	select {
	case <-writeErr:
	case <-time.After(500 * time.Millisecond):
	}
}

// addClient registers a new subscriber.
func (p *Publisher) addClient() *clientStream {
	client := &clientStream{
		id:      fmt.Sprintf("S%d", p.nextID.Add(1)),
		frameCh: make(chan []byte, 8),
		doneCh:  make(chan struct{}),
	}

	p.clientsMu.Lock()
	p.clients[client.id] = client
	p.clientsMu.Unlock()

	p.clientCount.Add(1)
	log.Printf("Map subscriber connected: %s (total: %d)", client.id, p.clientCount.Load())
	return client
}

// removeClient unregisters a subscriber.
func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	_, ok := p.clients[id]
	delete(p.clients, id)
	p.clientsMu.Unlock()

	if ok {
		p.clientCount.Add(-1)
		log.Printf("Map subscriber disconnected: %s (remaining: %d)", id, p.clientCount.Load())
	}
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		FrameCount:    p.frameCount.Load(),
		DroppedFrames: p.droppedFrames.Load(),
		ClientCount:   p.clientCount.Load(),
		Running:       p.running.Load(),
	}
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	FrameCount    uint64
	DroppedFrames uint64
	ClientCount   int32
	Running       bool
}
