package network

import (
	"math"
	"testing"
	"time"

	"github.com/gstavrinos/elevation-mapping/internal/elevation"
)

func testBatch() *elevation.PointBatch {
	return &elevation.PointBatch{
		FrameID: "/camera_depth_optical_frame",
		Stamp:   time.Date(2026, 3, 14, 12, 0, 0, 500, time.UTC),
		Points: []elevation.Point{
			{X: 0.5, Y: -0.25, Z: 1.5, R: 255, G: 128, B: 0},
			{X: -1.0, Y: 2.0, Z: 0.0, R: 1, G: 2, B: 3},
		},
	}
}

func TestMarshalParseBatch(t *testing.T) {
	in := testBatch()
	payload, err := MarshalBatch("/depth_registered/points_throttled", in)
	if err != nil {
		t.Fatalf("MarshalBatch: %v", err)
	}

	topic, out, err := ParseBatch(payload)
	if err != nil {
		t.Fatalf("ParseBatch: %v", err)
	}
	if topic != "/depth_registered/points_throttled" {
		t.Fatalf("topic = %q", topic)
	}
	if out.FrameID != in.FrameID {
		t.Fatalf("frame id = %q, want %q", out.FrameID, in.FrameID)
	}
	if !out.Stamp.Equal(in.Stamp) {
		t.Fatalf("stamp = %v, want %v", out.Stamp, in.Stamp)
	}
	if len(out.Points) != len(in.Points) {
		t.Fatalf("points = %d, want %d", len(out.Points), len(in.Points))
	}
	for i, p := range out.Points {
		want := in.Points[i]
		// Coordinates ride as float32.
		if math.Abs(p.X-want.X) > 1e-6 || math.Abs(p.Y-want.Y) > 1e-6 || math.Abs(p.Z-want.Z) > 1e-6 {
			t.Fatalf("point %d = %+v, want %+v", i, p, want)
		}
		if p.R != want.R || p.G != want.G || p.B != want.B {
			t.Fatalf("point %d color = (%d, %d, %d), want (%d, %d, %d)",
				i, p.R, p.G, p.B, want.R, want.G, want.B)
		}
	}
}

func TestParseBatch_RejectsMalformed(t *testing.T) {
	good, err := MarshalBatch("/topic", testBatch())
	if err != nil {
		t.Fatalf("MarshalBatch: %v", err)
	}

	cases := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"truncated header", func(b []byte) []byte { return b[:10] }},
		{"truncated points", func(b []byte) []byte { return b[:len(b)-1] }},
		{"trailing garbage", func(b []byte) []byte { return append(b, 0xFF) }},
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"bad version", func(b []byte) []byte { b[4] = 99; return b }},
		{"count overflow", func(b []byte) []byte { b[8], b[9], b[10], b[11] = 0xFF, 0xFF, 0xFF, 0xFF; return b }},
	}
	for _, tc := range cases {
		payload := tc.mutate(append([]byte(nil), good...))
		if _, _, err := ParseBatch(payload); err == nil {
			t.Errorf("%s: expected parse error", tc.name)
		}
	}
}

func TestMarshalBatch_RejectsOversizedFields(t *testing.T) {
	long := make([]byte, 40)
	for i := range long {
		long[i] = 'a'
	}

	if _, err := MarshalBatch(string(long), testBatch()); err == nil {
		t.Error("expected error for oversized topic")
	}

	b := testBatch()
	b.FrameID = string(long)
	if _, err := MarshalBatch("/topic", b); err == nil {
		t.Error("expected error for oversized frame id")
	}

	b = testBatch()
	b.Points = make([]elevation.Point, MaxPointsPerDatagram+1)
	if _, err := MarshalBatch("/topic", b); err == nil {
		t.Error("expected error for oversized batch")
	}
}

func TestMarshalBatch_EmptyBatch(t *testing.T) {
	payload, err := MarshalBatch("/topic", &elevation.PointBatch{
		FrameID: "/camera",
		Stamp:   time.Unix(1, 0).UTC(),
	})
	if err != nil {
		t.Fatalf("MarshalBatch: %v", err)
	}
	if len(payload) != headerSize {
		t.Fatalf("empty batch payload = %d bytes, want %d", len(payload), headerSize)
	}
	_, out, err := ParseBatch(payload)
	if err != nil {
		t.Fatalf("ParseBatch: %v", err)
	}
	if len(out.Points) != 0 {
		t.Fatalf("points = %d, want 0", len(out.Points))
	}
}
