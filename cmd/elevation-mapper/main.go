package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gstavrinos/elevation-mapping/internal/config"
	"github.com/gstavrinos/elevation-mapping/internal/db"
	"github.com/gstavrinos/elevation-mapping/internal/elevation"
	"github.com/gstavrinos/elevation-mapping/internal/elevation/monitor"
	"github.com/gstavrinos/elevation-mapping/internal/elevation/network"
	"github.com/gstavrinos/elevation-mapping/internal/elevation/publish"
	"github.com/gstavrinos/elevation-mapping/internal/elevation/storage/sqlite"
	"github.com/gstavrinos/elevation-mapping/internal/elevation/tf"
	"github.com/gstavrinos/elevation-mapping/internal/monitoring"
)

var (
	configPath    = flag.String("config", "", "Path to mapping config JSON (default: embedded defaults)")
	listen        = flag.String("listen", ":8081", "HTTP listen address for the monitoring server")
	udpPort       = flag.Int("udp-port", 8765, "UDP port to listen for point batches")
	udpAddress    = flag.String("udp-addr", "", "UDP bind address (default: listen on all interfaces)")
	wsListen      = flag.String("ws-listen", "localhost:8766", "WebSocket listen address for map subscribers")
	dbFile        = flag.String("db", "elevation_data.db", "Path to the SQLite database file (empty disables recording)")
	migrationsDir = flag.String("migrations", "internal/db/migrations", "Path to the schema migrations directory")
	pcapFile      = flag.String("pcap", "", "Replay point batches from a PCAP file instead of live UDP")
	rcvBuf        = flag.Int("rcvbuf", 4<<20, "UDP receive buffer size in bytes")
	logInterval   = flag.Int("log-interval", 60, "Statistics logging interval in seconds")
	debug         = flag.Bool("debug", false, "Enable debug logging")
	plotCells     = flag.String("plot-cells", "", "Cells to plot over time, e.g. \"4,4;10,2\"")
	plotDir       = flag.String("plot-dir", "plots", "Output directory for cell plots")
)

// parseCellList parses a semicolon-separated list of row,col pairs.
func parseCellList(s string) ([]elevation.CellIndex, error) {
	var cells []elevation.CellIndex
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.Split(pair, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid cell %q, want row,col", pair)
		}
		row, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid row in %q: %v", pair, err)
		}
		col, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid col in %q: %v", pair, err)
		}
		cells = append(cells, elevation.CellIndex{Row: row, Col: col})
	}
	return cells, nil
}

func main() {
	flag.Parse()

	monitoring.SetDebug(*debug)

	// Load and validate the mapping configuration.
	var cfg *config.MappingConfig
	if *configPath != "" {
		var err error
		cfg, err = config.LoadMappingConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", *configPath, err)
		}
	} else {
		cfg = config.MustLoadDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid mapping config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session recording is optional; -db "" runs without persistence.
	var store *sqlite.SnapshotStore
	if *dbFile != "" {
		database, err := db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()

		if err := database.MigrateUp(*migrationsDir); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}

		store = sqlite.NewSnapshotStore(database.DB)
		session, err := store.StartSession(cfg.GetMapFrameID(), cfg)
		if err != nil {
			log.Fatalf("Failed to start mapping session: %v", err)
		}
		log.Printf("Recording to session %s", session.SessionID)
	}

	// Cell plotting is optional.
	var plotter *monitor.CellPlotter
	if *plotCells != "" {
		cells, err := parseCellList(*plotCells)
		if err != nil {
			log.Fatalf("Failed to parse -plot-cells: %v", err)
		}
		plotter = monitor.NewCellPlotter(cells)
		outDir := fmt.Sprintf("%s/%s", *plotDir, time.Now().Format("20060102_150405"))
		if err := plotter.Start(outDir); err != nil {
			log.Fatalf("Failed to start cell plotter: %v", err)
		}
		log.Printf("Plotting %d cells to %s", len(cells), outDir)
	}

	publisher := publish.NewPublisher(publish.Config{ListenAddr: *wsListen, MaxClients: 5})
	if err := publisher.Start(); err != nil {
		log.Fatalf("Failed to start map publisher: %v", err)
	}
	defer publisher.Stop()
	log.Printf("Publishing map snapshots on ws://%s/ws", publisher.Addr())

	transforms := tf.NewBuffer()

	deps := elevation.MapperDeps{
		Transforms: transforms,
		Publisher:  publisher,
	}
	if store != nil {
		deps.Sink = store
	}
	if plotter != nil {
		deps.Sampler = plotter
	}

	mapper, err := elevation.NewMapper(cfg, deps)
	if err != nil {
		log.Fatalf("Failed to build mapper: %v", err)
	}

	// Seed the anchor transform so lookups can succeed before the first
	// batch arrives.
	if err := mapper.BroadcastAnchor(time.Now()); err != nil {
		log.Printf("Initial anchor broadcast failed: %v", err)
	}

	stats := network.NewBatchStats()

	var wg sync.WaitGroup

	// Mapper dispatch routine: consumes batches and watchdog ticks.
	wg.Add(1)
	go func() {
		defer wg.Done()
		mapper.Run(ctx)
		log.Print("Mapper routine terminated")
	}()

	// Point source routine: live UDP listener or PCAP replay.
	wg.Add(1)
	go func() {
		defer wg.Done()

		if *pcapFile != "" {
			log.Printf("Replaying point batches from %s", *pcapFile)
			if err := network.ReadPCAPFile(ctx, *pcapFile, *udpPort, cfg.GetPointSourceTopic(), mapper.Batches(), stats); err != nil {
				log.Printf("PCAP replay error: %v", err)
			}
			log.Print("PCAP replay finished")
			return
		}

		var udpListenAddr string
		if *udpAddress == "" {
			udpListenAddr = fmt.Sprintf(":%d", *udpPort)
		} else {
			udpListenAddr = fmt.Sprintf("%s:%d", *udpAddress, *udpPort)
		}

		listener := network.NewUDPListener(network.UDPListenerConfig{
			Address:     udpListenAddr,
			RcvBuf:      *rcvBuf,
			LogInterval: time.Duration(*logInterval) * time.Second,
			Topic:       cfg.GetPointSourceTopic(),
			Stats:       stats,
			Batches:     mapper.Batches(),
		})
		if err := listener.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("UDP listener error: %v", err)
		}
		log.Print("UDP listener routine terminated")
	}()

	// Monitoring HTTP server routine.
	wg.Add(1)
	go func() {
		defer wg.Done()
		webServer := monitor.NewWebServer(monitor.WebServerConfig{
			Address:   *listen,
			Source:    mapper,
			Publisher: publisher,
			Store:     store,
		})
		if err := webServer.Start(ctx); err != nil {
			log.Printf("Web server error: %v", err)
		}
		log.Print("Web server routine terminated")
	}()

	<-ctx.Done()
	log.Print("Shutting down...")
	wg.Wait()

	if plotter != nil {
		plotter.Stop()
		if n, err := plotter.GeneratePlots(); err != nil {
			log.Printf("Failed to generate cell plots: %v", err)
		} else if n > 0 {
			log.Printf("Wrote %d cell plots", n)
		}
	}

	log.Print("Shutdown complete")
}
