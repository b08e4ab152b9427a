// Package geometry provides the pinhole projection model used by the
// reprojection factors: rigid poses, camera intrinsics, and projection with
// analytic Jacobians.
package geometry

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// PoseDim is the dimension of a pose tangent vector, rotation first then
// translation.
const PoseDim = 6

// Pose is a rigid transform with a 3x3 rotation and a translation, mapping
// camera-frame coordinates into the world frame.
type Pose struct {
	R *mat.Dense
	T r3.Vector
}

// NewPose creates a pose from a 3x3 rotation matrix and a translation.
func NewPose(r *mat.Dense, t r3.Vector) Pose {
	return Pose{R: r, T: t}
}

// NewIdentityPose returns the pose at the world origin with no rotation.
func NewIdentityPose() Pose {
	return Pose{R: identity3(), T: r3.Vector{}}
}

func identity3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}

// Skew returns the cross product matrix of p.
func Skew(p r3.Vector) *mat.Dense {
	cross := mat.NewDense(3, 3, nil)
	cross.Set(0, 1, -p.Z)
	cross.Set(0, 2, p.Y)
	cross.Set(1, 0, p.Z)
	cross.Set(1, 2, -p.X)
	cross.Set(2, 0, -p.Y)
	cross.Set(2, 1, p.X)
	return cross
}

// ExpRotation returns the rotation matrix for the rotation vector w via the
// Rodrigues formula.
func ExpRotation(w r3.Vector) *mat.Dense {
	rot := identity3()
	theta := w.Norm()
	if theta < 1e-12 {
		// First order is exact enough below the angle cutoff.
		rot.Add(rot, Skew(w))
		return rot
	}
	k := Skew(w.Mul(1 / theta))
	var k2, term mat.Dense
	k2.Mul(k, k)
	term.Scale(math.Sin(theta), k)
	rot.Add(rot, &term)
	term.Scale(1-math.Cos(theta), &k2)
	rot.Add(rot, &term)
	return rot
}

// Rotate applies the rotation r to v.
func Rotate(r *mat.Dense, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: r.At(0, 0)*v.X + r.At(0, 1)*v.Y + r.At(0, 2)*v.Z,
		Y: r.At(1, 0)*v.X + r.At(1, 1)*v.Y + r.At(1, 2)*v.Z,
		Z: r.At(2, 0)*v.X + r.At(2, 1)*v.Y + r.At(2, 2)*v.Z,
	}
}

// Unrotate applies the inverse of rotation r to v.
func Unrotate(r *mat.Dense, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: r.At(0, 0)*v.X + r.At(1, 0)*v.Y + r.At(2, 0)*v.Z,
		Y: r.At(0, 1)*v.X + r.At(1, 1)*v.Y + r.At(2, 1)*v.Z,
		Z: r.At(0, 2)*v.X + r.At(1, 2)*v.Y + r.At(2, 2)*v.Z,
	}
}

// Retract moves the pose along the tangent vector xi = (wx, wy, wz, vx, vy,
// vz): the rotation by a local exponential update, the translation in the
// pose's own frame.
func (p Pose) Retract(xi []float64) Pose {
	w := r3.Vector{X: xi[0], Y: xi[1], Z: xi[2]}
	v := r3.Vector{X: xi[3], Y: xi[4], Z: xi[5]}
	var rot mat.Dense
	rot.Mul(p.R, ExpRotation(w))
	return Pose{R: &rot, T: p.T.Add(Rotate(p.R, v))}
}

// TransformTo expresses the world point pt in the pose's local frame. If
// non-nil, hPose (3x6) and hPoint (3x3) receive the Jacobians with respect
// to the pose tangent and the point.
func (p Pose) TransformTo(pt r3.Vector, hPose, hPoint *mat.Dense) r3.Vector {
	q := Unrotate(p.R, pt.Sub(p.T))
	if hPose != nil {
		hPose.Zero()
		sk := Skew(q)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				hPose.Set(i, j, sk.At(i, j))
			}
			hPose.Set(i, 3+i, -1)
		}
	}
	if hPoint != nil {
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				hPoint.Set(i, j, p.R.At(j, i))
			}
		}
	}
	return q
}

// Equals reports whether two poses agree entrywise within tol.
func (p Pose) Equals(other Pose, tol float64) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(p.R.At(i, j)-other.R.At(i, j)) > tol {
				return false
			}
		}
	}
	d := p.T.Sub(other.T)
	return math.Abs(d.X) <= tol && math.Abs(d.Y) <= tol && math.Abs(d.Z) <= tol
}
