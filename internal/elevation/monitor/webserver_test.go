package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/gstavrinos/elevation-mapping/internal/elevation"
	"github.com/gstavrinos/elevation-mapping/internal/elevation/publish"
)

type stubSource struct {
	snapshot *elevation.MapSnapshot
}

func (s *stubSource) Snapshot() *elevation.MapSnapshot { return s.snapshot }

func observedSnapshot() *elevation.MapSnapshot {
	g := elevation.NewGrid(1.0, 1.0, 0.25)
	f := &elevation.FusionEngine{MeasurementVariance: 0.3}
	f.Fuse(g, elevation.CellIndex{Row: 1, Col: 2}, elevation.Measurement{
		Elevation: 0.75,
		Color:     elevation.PackColor(10, 20, 30),
	})
	f.Fuse(g, elevation.CellIndex{Row: 3, Col: 0}, elevation.Measurement{
		Elevation: -0.1,
	})
	return g.Snapshot(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC), "/elevation_map")
}

func emptySnapshot() *elevation.MapSnapshot {
	g := elevation.NewGrid(1.0, 1.0, 0.25)
	return g.Snapshot(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC), "/elevation_map")
}

func newTestServer(source SnapshotSource) *WebServer {
	return NewWebServer(WebServerConfig{
		Address: "localhost:0",
		Source:  source,
	})
}

func TestHandleHealth(t *testing.T) {
	ws := newTestServer(&stubSource{snapshot: observedSnapshot()})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status field = %q, want ok", body["status"])
	}
}

func TestHandleStatus(t *testing.T) {
	ws := newTestServer(&stubSource{snapshot: observedSnapshot()})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		UptimeSecs float64 `json:"uptime_secs"`
		Map        struct {
			FrameID       string `json:"frame_id"`
			Rows          int    `json:"rows"`
			Cols          int    `json:"cols"`
			ObservedCells int    `json:"observed_cells"`
			TotalCells    int    `json:"total_cells"`
		} `json:"map"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if body.Map.FrameID != "/elevation_map" {
		t.Fatalf("frame_id = %q, want /elevation_map", body.Map.FrameID)
	}
	if body.Map.Rows != 4 || body.Map.Cols != 4 {
		t.Fatalf("geometry = %dx%d, want 4x4", body.Map.Rows, body.Map.Cols)
	}
	if body.Map.ObservedCells != 2 {
		t.Fatalf("observed_cells = %d, want 2", body.Map.ObservedCells)
	}
	if body.Map.TotalCells != 16 {
		t.Fatalf("total_cells = %d, want 16", body.Map.TotalCells)
	}
}

func TestHandleStatus_UnknownPathIs404(t *testing.T) {
	ws := newTestServer(&stubSource{snapshot: observedSnapshot()})

	req := httptest.NewRequest(http.MethodGet, "/nonsense", nil)
	rec := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleMap_RoundTripsSnapshot(t *testing.T) {
	in := observedSnapshot()
	ws := newTestServer(&stubSource{snapshot: in})

	req := httptest.NewRequest(http.MethodGet, "/api/map", nil)
	rec := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	out, err := publish.DecodeFrame(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}

	if diff := cmp.Diff(in, out, cmpopts.EquateNaNs()); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleMap_RejectsPost(t *testing.T) {
	ws := newTestServer(&stubSource{snapshot: observedSnapshot()})

	req := httptest.NewRequest(http.MethodPost, "/api/map", nil)
	rec := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestHandleSessions_WithoutStore(t *testing.T) {
	ws := newTestServer(&stubSource{snapshot: observedSnapshot()})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHandleMapChart_EmptyMapIs404(t *testing.T) {
	ws := newTestServer(&stubSource{snapshot: emptySnapshot()})

	req := httptest.NewRequest(http.MethodGet, "/debug/map/elevation", nil)
	rec := httptest.NewRecorder()
	ws.setupRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleMapChart_RendersHTML(t *testing.T) {
	ws := newTestServer(&stubSource{snapshot: observedSnapshot()})

	for _, path := range []string{"/debug/map/elevation", "/debug/map/variance"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		ws.setupRoutes().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", path, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Fatalf("%s: content type = %q, want text/html", path, ct)
		}
		if !strings.Contains(rec.Body.String(), "echarts") {
			t.Fatalf("%s: response does not look like an echarts page", path)
		}
	}
}
