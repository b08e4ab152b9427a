package geometry

import (
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// CalDim is the dimension of the intrinsic calibration: fx, fy, skew, px, py.
const CalDim = 5

// Calibration holds the intrinsic parameters of a pinhole camera.
type Calibration struct {
	Fx   float64
	Fy   float64
	Skew float64
	Px   float64
	Py   float64
}

// K returns the 3x3 intrinsic matrix.
func (c Calibration) K() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		c.Fx, c.Skew, c.Px,
		0, c.Fy, c.Py,
		0, 0, 1,
	})
}

// Retract applies an additive tangent update in (fx, fy, skew, px, py) order.
func (c Calibration) Retract(xi []float64) Calibration {
	return Calibration{
		Fx:   c.Fx + xi[0],
		Fy:   c.Fy + xi[1],
		Skew: c.Skew + xi[2],
		Px:   c.Px + xi[3],
		Py:   c.Py + xi[4],
	}
}

// Uncalibrate maps a point in normalized image coordinates to pixel
// coordinates. If non-nil, jCal (2x5) receives the Jacobian with respect to
// the intrinsics and jPoint (2x2) the Jacobian with respect to p.
func (c Calibration) Uncalibrate(p r2.Point, jCal, jPoint *mat.Dense) r2.Point {
	if jCal != nil {
		jCal.SetRow(0, []float64{p.X, 0, p.Y, 1, 0})
		jCal.SetRow(1, []float64{0, p.Y, 0, 0, 1})
	}
	if jPoint != nil {
		jPoint.SetRow(0, []float64{c.Fx, c.Skew})
		jPoint.SetRow(1, []float64{0, c.Fy})
	}
	return r2.Point{
		X: c.Fx*p.X + c.Skew*p.Y + c.Px,
		Y: c.Fy*p.Y + c.Py,
	}
}

// Equals reports whether two calibrations agree within tol.
func (c Calibration) Equals(other Calibration, tol float64) bool {
	return math.Abs(c.Fx-other.Fx) <= tol &&
		math.Abs(c.Fy-other.Fy) <= tol &&
		math.Abs(c.Skew-other.Skew) <= tol &&
		math.Abs(c.Px-other.Px) <= tol &&
		math.Abs(c.Py-other.Py) <= tol
}
