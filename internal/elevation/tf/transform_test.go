package tf

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestIdentity_LeavesPointsUnchanged(t *testing.T) {
	x, y, z := Identity().Apply(1.5, -2.0, 0.25)
	if x != 1.5 || y != -2.0 || z != 0.25 {
		t.Fatalf("identity moved point to (%v, %v, %v)", x, y, z)
	}
}

func TestTranslation_Apply(t *testing.T) {
	x, y, z := Translation(0.8, 0, -0.1).Apply(1, 2, 3)
	if x != 1.8 || y != 2 || z != 2.9 {
		t.Fatalf("got (%v, %v, %v), want (1.8, 2, 2.9)", x, y, z)
	}
}

func TestRotationZ_QuarterTurn(t *testing.T) {
	x, y, z := RotationZ(math.Pi/2).Apply(1, 0, 0.5)
	if !almostEqual(x, 0) || !almostEqual(y, 1) || !almostEqual(z, 0.5) {
		t.Fatalf("quarter turn of (1, 0, 0.5) = (%v, %v, %v), want (0, 1, 0.5)", x, y, z)
	}
}

func TestMul_ComposesInApplicationOrder(t *testing.T) {
	rot := RotationZ(math.Pi / 2)
	trans := Translation(1, 0, 0)

	// trans.Mul(rot) rotates first, then translates.
	x, y, _ := trans.Mul(rot).Apply(1, 0, 0)
	if !almostEqual(x, 1) || !almostEqual(y, 1) {
		t.Fatalf("translate(rotate(p)) = (%v, %v), want (1, 1)", x, y)
	}

	// rot.Mul(trans) translates first, then rotates.
	x, y, _ = rot.Mul(trans).Apply(1, 0, 0)
	if !almostEqual(x, 0) || !almostEqual(y, 2) {
		t.Fatalf("rotate(translate(p)) = (%v, %v), want (0, 2)", x, y)
	}
}

func TestInverse_RoundTrip(t *testing.T) {
	tr := Translation(0.8, -0.3, 0.1).Mul(RotationZ(0.7))
	inv := tr.Inverse()

	px, py, pz := 1.2, -0.4, 2.0
	x, y, z := tr.Apply(px, py, pz)
	x, y, z = inv.Apply(x, y, z)
	if !almostEqual(x, px) || !almostEqual(y, py) || !almostEqual(z, pz) {
		t.Fatalf("inverse round trip = (%v, %v, %v), want (%v, %v, %v)", x, y, z, px, py, pz)
	}
}
