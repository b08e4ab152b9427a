// Package sfm provides nonlinear reprojection factors for structure from
// motion: residual evaluation with analytic Jacobians, tolerant handling of
// degenerate geometry, and linearization into fixed-size linear factors.
package sfm

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/hovavalon/gtsam/geometry"
	"github.com/hovavalon/gtsam/linear"
)

// Values stores the current estimate for every variable, keyed by the same
// keys the factors carry.
type Values struct {
	cameras map[linear.Key]geometry.Camera
	points  map[linear.Key]r3.Vector
	poses   map[linear.Key]geometry.Pose
	cals    map[linear.Key]geometry.Calibration
}

// NewValues returns an empty estimate store.
func NewValues() *Values {
	return &Values{
		cameras: map[linear.Key]geometry.Camera{},
		points:  map[linear.Key]r3.Vector{},
		poses:   map[linear.Key]geometry.Pose{},
		cals:    map[linear.Key]geometry.Calibration{},
	}
}

// SetCamera stores a camera estimate.
func (v *Values) SetCamera(key linear.Key, c geometry.Camera) { v.cameras[key] = c }

// SetPoint stores a landmark estimate.
func (v *Values) SetPoint(key linear.Key, p r3.Vector) { v.points[key] = p }

// SetPose stores a pose estimate.
func (v *Values) SetPose(key linear.Key, p geometry.Pose) { v.poses[key] = p }

// SetCalibration stores a calibration estimate.
func (v *Values) SetCalibration(key linear.Key, c geometry.Calibration) { v.cals[key] = c }

// Camera returns the camera stored under key.
func (v *Values) Camera(key linear.Key) (geometry.Camera, error) {
	c, ok := v.cameras[key]
	if !ok {
		return geometry.Camera{}, errors.Errorf("no camera value for variable %d", key)
	}
	return c, nil
}

// Point returns the landmark stored under key.
func (v *Values) Point(key linear.Key) (r3.Vector, error) {
	p, ok := v.points[key]
	if !ok {
		return r3.Vector{}, errors.Errorf("no point value for variable %d", key)
	}
	return p, nil
}

// Pose returns the pose stored under key.
func (v *Values) Pose(key linear.Key) (geometry.Pose, error) {
	p, ok := v.poses[key]
	if !ok {
		return geometry.Pose{}, errors.Errorf("no pose value for variable %d", key)
	}
	return p, nil
}

// Calibration returns the calibration stored under key.
func (v *Values) Calibration(key linear.Key) (geometry.Calibration, error) {
	c, ok := v.cals[key]
	if !ok {
		return geometry.Calibration{}, errors.Errorf("no calibration value for variable %d", key)
	}
	return c, nil
}
