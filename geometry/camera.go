package geometry

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// CameraDim is the dimension of a full camera tangent vector: pose first,
// then calibration.
const CameraDim = PoseDim + CalDim

// ErrBehindCamera is returned by projection when the point has non-positive
// depth in the camera frame.
var ErrBehindCamera = errors.New("point is behind the camera")

// Camera is a pinhole camera with an unknown pose and calibration.
type Camera struct {
	Pose Pose
	Cal  Calibration
}

// Retract moves the camera along an 11-dof tangent vector, the first six
// entries updating the pose and the last five the calibration.
func (c Camera) Retract(xi []float64) Camera {
	return Camera{
		Pose: c.Pose.Retract(xi[:PoseDim]),
		Cal:  c.Cal.Retract(xi[PoseDim:]),
	}
}

// ProjectSeparated projects the world point pt into the image, filling any
// non-nil Jacobians: jPose 2x6, jPoint 2x3, jCal 2x5. Returns ErrBehindCamera
// without touching the Jacobians when the point has non-positive depth.
func (c Camera) ProjectSeparated(pt r3.Vector, jPose, jPoint, jCal *mat.Dense) (r2.Point, error) {
	var hPose, hPoint *mat.Dense
	if jPose != nil {
		hPose = mat.NewDense(3, PoseDim, nil)
	}
	if jPoint != nil {
		hPoint = mat.NewDense(3, 3, nil)
	}
	q := c.Pose.TransformTo(pt, hPose, hPoint)
	if q.Z <= 0 {
		return r2.Point{}, ErrBehindCamera
	}

	pn := r2.Point{X: q.X / q.Z, Y: q.Y / q.Z}
	var dPixel *mat.Dense
	if jPose != nil || jPoint != nil {
		dPixel = mat.NewDense(2, 2, nil)
	}
	uv := c.Cal.Uncalibrate(pn, jCal, dPixel)

	if dPixel != nil {
		// Chain through the perspective division.
		dProject := mat.NewDense(2, 3, []float64{
			1 / q.Z, 0, -q.X / (q.Z * q.Z),
			0, 1 / q.Z, -q.Y / (q.Z * q.Z),
		})
		var dCam mat.Dense
		dCam.Mul(dPixel, dProject)
		if jPose != nil {
			jPose.Mul(&dCam, hPose)
		}
		if jPoint != nil {
			jPoint.Mul(&dCam, hPoint)
		}
	}
	return uv, nil
}

// Project projects the world point pt into the image, filling any non-nil
// Jacobians: jCamera 2x11 with respect to the full camera tangent, jPoint
// 2x3 with respect to the point.
func (c Camera) Project(pt r3.Vector, jCamera, jPoint *mat.Dense) (r2.Point, error) {
	if jCamera == nil {
		return c.ProjectSeparated(pt, nil, jPoint, nil)
	}
	jPose := mat.NewDense(2, PoseDim, nil)
	jCal := mat.NewDense(2, CalDim, nil)
	uv, err := c.ProjectSeparated(pt, jPose, jPoint, jCal)
	if err != nil {
		return uv, err
	}
	jCamera.Augment(jPose, jCal)
	return uv, nil
}
