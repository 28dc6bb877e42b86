// Package tf provides rigid frame transforms and an in-process buffer of
// stamped transforms with bounded-wait lookup.
package tf

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// RigidTransform is a 6-DoF rigid transform: rotation followed by
// translation. The zero value is not usable; construct via Identity,
// Translation, RotationZ, or composition.
type RigidTransform struct {
	R *mat.Dense    // 3x3 rotation
	T *mat.VecDense // translation
}

// Identity returns the identity transform.
func Identity() RigidTransform {
	return RigidTransform{
		R: mat.NewDense(3, 3, []float64{
			1, 0, 0,
			0, 1, 0,
			0, 0, 1,
		}),
		T: mat.NewVecDense(3, nil),
	}
}

// Translation returns a pure translation.
func Translation(x, y, z float64) RigidTransform {
	t := Identity()
	t.T.SetVec(0, x)
	t.T.SetVec(1, y)
	t.T.SetVec(2, z)
	return t
}

// RotationZ returns a rotation of theta radians about the Z axis.
func RotationZ(theta float64) RigidTransform {
	c, s := math.Cos(theta), math.Sin(theta)
	return RigidTransform{
		R: mat.NewDense(3, 3, []float64{
			c, -s, 0,
			s, c, 0,
			0, 0, 1,
		}),
		T: mat.NewVecDense(3, nil),
	}
}

// Apply transforms a point: R*p + T.
func (t RigidTransform) Apply(x, y, z float64) (float64, float64, float64) {
	p := mat.NewVecDense(3, []float64{x, y, z})
	var out mat.VecDense
	out.MulVec(t.R, p)
	out.AddVec(&out, t.T)
	return out.AtVec(0), out.AtVec(1), out.AtVec(2)
}

// Mul composes two transforms: (t.Mul(o)).Apply(p) == t.Apply(o.Apply(p)).
func (t RigidTransform) Mul(o RigidTransform) RigidTransform {
	var r mat.Dense
	r.Mul(t.R, o.R)

	var tr mat.VecDense
	tr.MulVec(t.R, o.T)
	tr.AddVec(&tr, t.T)

	return RigidTransform{R: &r, T: mat.NewVecDense(3, tr.RawVector().Data)}
}

// Inverse returns the inverse transform. Rotations invert by transpose.
func (t RigidTransform) Inverse() RigidTransform {
	var rInv mat.Dense
	rInv.CloneFrom(t.R.T())

	var tr mat.VecDense
	tr.MulVec(&rInv, t.T)
	tr.ScaleVec(-1, &tr)

	return RigidTransform{R: &rInv, T: mat.NewVecDense(3, tr.RawVector().Data)}
}
