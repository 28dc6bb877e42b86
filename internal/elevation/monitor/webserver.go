// Package monitor provides the HTTP interface for inspecting the live
// elevation map: health and status endpoints, JSON map export, session
// listings, and debugging charts.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gstavrinos/elevation-mapping/internal/elevation"
	"github.com/gstavrinos/elevation-mapping/internal/elevation/publish"
	"github.com/gstavrinos/elevation-mapping/internal/elevation/storage/sqlite"
)

// SnapshotSource provides the current map snapshot. The mapper satisfies
// this.
type SnapshotSource interface {
	Snapshot() *elevation.MapSnapshot
}

// WebServer handles the HTTP interface for monitoring the elevation mapper.
type WebServer struct {
	address   string
	source    SnapshotSource
	publisher *publish.Publisher
	store     *sqlite.SnapshotStore
	server    *http.Server
	startedAt time.Time
}

// WebServerConfig contains configuration options for the web server.
// Source is required; Publisher and Store are optional.
type WebServerConfig struct {
	Address   string
	Source    SnapshotSource
	Publisher *publish.Publisher
	Store     *sqlite.SnapshotStore
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:   config.Address,
		source:    config.Source,
		publisher: config.Publisher,
		store:     config.Store,
		startedAt: time.Now(),
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

func (ws *WebServer) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/api/map", ws.handleMap)
	mux.HandleFunc("/api/sessions", ws.handleSessions)
	mux.HandleFunc("/debug/map/elevation", ws.handleMapChart)
	mux.HandleFunc("/debug/map/variance", ws.handleMapChart)

	return mux
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Start begins the HTTP server and blocks until ctx is cancelled, then
// shuts the server down.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			return fmt.Errorf("force close server: %w", err)
		}
	}
	return nil
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleStatus reports map geometry, freshness, and publisher statistics.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		ws.writeJSONError(w, http.StatusNotFound, "not found")
		return
	}

	status := map[string]interface{}{
		"uptime_secs": time.Since(ws.startedAt).Seconds(),
	}

	if ws.source != nil {
		s := ws.source.Snapshot()
		observed := 0
		for _, v := range s.Elevation {
			if v == v { // not NaN
				observed++
			}
		}
		status["map"] = map[string]interface{}{
			"frame_id":       s.FrameID,
			"rows":           s.Rows,
			"cols":           s.Cols,
			"resolution":     s.Resolution,
			"observed_cells": observed,
			"total_cells":    s.Rows * s.Cols,
			"stamp":          s.Stamp.Format(time.RFC3339Nano),
		}
	}

	if ws.publisher != nil {
		stats := ws.publisher.Stats()
		status["publisher"] = map[string]interface{}{
			"running":        stats.Running,
			"subscribers":    stats.ClientCount,
			"frames":         stats.FrameCount,
			"dropped_frames": stats.DroppedFrames,
		}
	}

	if ws.store != nil {
		status["session_id"] = ws.store.SessionID()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// handleMap returns the current snapshot in the publisher wire format.
func (ws *WebServer) handleMap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if ws.source == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "no map source configured")
		return
	}

	payload, err := publish.EncodeFrame(ws.source.Snapshot())
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("encode map: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

// handleSessions lists recorded mapping sessions.
func (ws *WebServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if ws.store == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "no session store configured")
		return
	}

	sessions, err := ws.store.ListSessions()
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list sessions: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"sessions": sessions})
}
