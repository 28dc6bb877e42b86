package tf

import (
	"strings"
	"testing"
	"time"
)

func bufStamp() time.Time {
	return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
}

func TestLookup_SameFrameIsIdentity(t *testing.T) {
	b := NewBuffer()
	tr, err := b.Lookup("/map", "/map", bufStamp(), time.Millisecond)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if x, y, z := tr.Apply(1, 2, 3); x != 1 || y != 2 || z != 3 {
		t.Fatal("same-frame lookup is not the identity")
	}
}

func TestLookup_DirectEdge(t *testing.T) {
	b := NewBuffer()
	stamp := bufStamp()
	if err := b.Broadcast(Translation(0.8, 0, 0), stamp, "/map", "/elevation_map"); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	tr, err := b.Lookup("/map", "/elevation_map", stamp, time.Millisecond)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if x, _, _ := tr.Apply(0, 0, 0); x != 0.8 {
		t.Fatalf("direct lookup maps origin x to %v, want 0.8", x)
	}
}

func TestLookup_InverseEdge(t *testing.T) {
	b := NewBuffer()
	stamp := bufStamp()
	if err := b.Broadcast(Translation(0.8, 0, 0), stamp, "/map", "/elevation_map"); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	tr, err := b.Lookup("/elevation_map", "/map", stamp, time.Millisecond)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if x, _, _ := tr.Apply(0, 0, 0); !almostEqual(x, -0.8) {
		t.Fatalf("inverse lookup maps origin x to %v, want -0.8", x)
	}
}

func TestLookup_ComposesThroughSharedParent(t *testing.T) {
	b := NewBuffer()
	stamp := bufStamp()
	// Both the map frame and the sensor frame hang off /map.
	if err := b.Broadcast(Translation(0.8, 0, 0), stamp, "/map", "/elevation_map"); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if err := b.Broadcast(Translation(1.0, 0.5, 0), stamp, "/map", "/camera"); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	tr, err := b.Lookup("/elevation_map", "/camera", stamp, time.Millisecond)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	// Camera origin is at (1.0, 0.5) in /map, so (0.2, 0.5) in the map frame.
	x, y, _ := tr.Apply(0, 0, 0)
	if !almostEqual(x, 0.2) || !almostEqual(y, 0.5) {
		t.Fatalf("composed lookup maps origin to (%v, %v), want (0.2, 0.5)", x, y)
	}
}

func TestLookup_TimesOutWithBound(t *testing.T) {
	b := NewBuffer()
	start := time.Now()
	_, err := b.Lookup("/map", "/camera", bufStamp(), 20*time.Millisecond)
	elapsed := time.Since(start)
	if err == nil {
		t.Fatal("expected lookup to time out")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("error = %v, want a timeout", err)
	}
	if elapsed > time.Second {
		t.Fatalf("lookup blocked for %v, bound was 20ms", elapsed)
	}
}

func TestLookup_StaleEdgeDoesNotSatisfyNewerStamp(t *testing.T) {
	b := NewBuffer()
	old := bufStamp()
	if err := b.Broadcast(Identity(), old, "/map", "/camera"); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	_, err := b.Lookup("/map", "/camera", old.Add(time.Second), 20*time.Millisecond)
	if err == nil {
		t.Fatal("lookup accepted a transform older than the requested stamp")
	}
}

func TestLookup_WakesOnBroadcast(t *testing.T) {
	b := NewBuffer()
	stamp := bufStamp()

	type result struct {
		tr  RigidTransform
		err error
	}
	done := make(chan result, 1)
	go func() {
		tr, err := b.Lookup("/map", "/camera", stamp, 5*time.Second)
		done <- result{tr, err}
	}()

	// Give the lookup a moment to block, then satisfy it.
	time.Sleep(10 * time.Millisecond)
	if err := b.Broadcast(Translation(0.1, 0, 0), stamp, "/map", "/camera"); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Lookup: %v", r.err)
		}
		if x, _, _ := r.tr.Apply(0, 0, 0); x != 0.1 {
			t.Fatalf("woken lookup maps origin x to %v, want 0.1", x)
		}
	case <-time.After(time.Second):
		t.Fatal("lookup did not wake after broadcast")
	}
}

func TestBroadcast_RejectsEmptyFrames(t *testing.T) {
	b := NewBuffer()
	if err := b.Broadcast(Identity(), bufStamp(), "", "/camera"); err == nil {
		t.Fatal("expected error for empty parent frame")
	}
	if err := b.Broadcast(Identity(), bufStamp(), "/map", ""); err == nil {
		t.Fatal("expected error for empty child frame")
	}
}

func TestBroadcast_IgnoresOlderStamp(t *testing.T) {
	b := NewBuffer()
	newer := bufStamp()
	if err := b.Broadcast(Translation(1, 0, 0), newer, "/map", "/camera"); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if err := b.Broadcast(Translation(9, 0, 0), newer.Add(-time.Second), "/map", "/camera"); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	tr, stamp, ok := b.Latest("/map", "/camera")
	if !ok {
		t.Fatal("edge missing")
	}
	if !stamp.Equal(newer) {
		t.Fatalf("latest stamp = %v, want %v", stamp, newer)
	}
	if x, _, _ := tr.Apply(0, 0, 0); x != 1 {
		t.Fatalf("latest transform maps origin x to %v, want 1", x)
	}
}
