package main

import (
	"testing"

	"github.com/gstavrinos/elevation-mapping/internal/elevation"
)

func TestParseCellList(t *testing.T) {
	cells, err := parseCellList("4,4; 10,2 ;0,15")
	if err != nil {
		t.Fatalf("parseCellList: %v", err)
	}
	want := []elevation.CellIndex{{Row: 4, Col: 4}, {Row: 10, Col: 2}, {Row: 0, Col: 15}}
	if len(cells) != len(want) {
		t.Fatalf("got %d cells, want %d", len(cells), len(want))
	}
	for i := range want {
		if cells[i] != want[i] {
			t.Fatalf("cell %d = %+v, want %+v", i, cells[i], want[i])
		}
	}
}

func TestParseCellList_Empty(t *testing.T) {
	cells, err := parseCellList("")
	if err != nil {
		t.Fatalf("parseCellList: %v", err)
	}
	if len(cells) != 0 {
		t.Fatalf("got %d cells, want 0", len(cells))
	}
}

func TestParseCellList_Malformed(t *testing.T) {
	for _, s := range []string{"4", "4,x", "a,2", "1,2,3"} {
		if _, err := parseCellList(s); err == nil {
			t.Fatalf("parseCellList(%q) succeeded, want error", s)
		}
	}
}
