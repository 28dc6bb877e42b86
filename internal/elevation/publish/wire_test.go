package publish

import (
	"math"
	"testing"
	"time"

	"github.com/gstavrinos/elevation-mapping/internal/elevation"
)

func testSnapshot() *elevation.MapSnapshot {
	g := elevation.NewGrid(1.0, 1.0, 0.5)
	f := &elevation.FusionEngine{MeasurementVariance: 0.3}
	f.Fuse(g, elevation.CellIndex{Row: 1, Col: 1}, elevation.Measurement{
		Elevation: 0.42,
		Color:     elevation.PackColor(200, 100, 50),
	})
	return g.Snapshot(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC), "/elevation_map")
}

func TestEncodeDecodeFrame(t *testing.T) {
	in := testSnapshot()
	payload, err := EncodeFrame(in)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}

	out, err := DecodeFrame(payload)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}

	if out.Rows != in.Rows || out.Cols != in.Cols {
		t.Fatalf("geometry = %dx%d, want %dx%d", out.Rows, out.Cols, in.Rows, in.Cols)
	}
	if !out.Stamp.Equal(in.Stamp) {
		t.Fatalf("stamp = %v, want %v", out.Stamp, in.Stamp)
	}
	if out.FrameID != in.FrameID {
		t.Fatalf("frame id = %q, want %q", out.FrameID, in.FrameID)
	}

	// NaN cells must survive the round trip bit for bit.
	for i := range in.Elevation {
		if math.IsNaN(in.Elevation[i]) != math.IsNaN(out.Elevation[i]) {
			t.Fatalf("cell %d: NaN-ness changed in transit", i)
		}
		if !math.IsNaN(in.Elevation[i]) && in.Elevation[i] != out.Elevation[i] {
			t.Fatalf("cell %d: elevation %v != %v", i, out.Elevation[i], in.Elevation[i])
		}
	}
	i := in.Cols*1 + 1
	if out.Elevation[i] != 0.42 {
		t.Fatalf("observed elevation = %v, want 0.42", out.Elevation[i])
	}
	if out.Variance[i] != 0.3 {
		t.Fatalf("observed variance = %v, want 0.3", out.Variance[i])
	}
	if out.Color[i] != elevation.PackColor(200, 100, 50) {
		t.Fatalf("observed color = %#x", out.Color[i])
	}
}

func TestDecodeFrame_RejectsMalformed(t *testing.T) {
	if _, err := DecodeFrame([]byte("{")); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := DecodeFrame([]byte(`{"type":"NOPE"}`)); err == nil {
		t.Error("expected error for wrong frame type")
	}
	if _, err := DecodeFrame([]byte(`{"type":"MAP","encoding":"plain"}`)); err == nil {
		t.Error("expected error for unsupported encoding")
	}

	// Valid envelope whose declared geometry does not match the channel
	// payloads.
	frame := testSnapshot()
	frame.Rows++
	bigger, err := EncodeFrame(frame)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if _, err := DecodeFrame(bigger); err == nil {
		t.Error("expected error for channel/geometry mismatch")
	}
}
