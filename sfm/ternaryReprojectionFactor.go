package sfm

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/hovavalon/gtsam/geometry"
	"github.com/hovavalon/gtsam/linear"
	"github.com/hovavalon/gtsam/noise"
)

// TernaryReprojectionFactor is the three-variable form of the reprojection
// residual, isolating the calibration from the pose so several cameras can
// share one calibration unknown.
type TernaryReprojectionFactor struct {
	measured r2.Point
	model    noise.Model
	poseKey  linear.Key
	pointKey linear.Key
	calKey   linear.Key
	logger   golog.Logger
}

// NewTernaryReprojectionFactor creates a factor over a pose, a landmark, and
// a calibration.
func NewTernaryReprojectionFactor(
	measured r2.Point,
	model noise.Model,
	poseKey, pointKey, calKey linear.Key,
	logger golog.Logger,
) *TernaryReprojectionFactor {
	return &TernaryReprojectionFactor{
		measured: measured,
		model:    model,
		poseKey:  poseKey,
		pointKey: pointKey,
		calKey:   calKey,
		logger:   logger,
	}
}

// Measured returns the image measurement.
func (f *TernaryReprojectionFactor) Measured() r2.Point { return f.measured }

// Keys returns the pose, landmark, and calibration keys.
func (f *TernaryReprojectionFactor) Keys() (linear.Key, linear.Key, linear.Key) {
	return f.poseKey, f.pointKey, f.calKey
}

// EvaluateError returns the reprojection residual and the Jacobians with
// respect to the pose (2x6), the landmark (2x3), and the calibration (2x5).
// Degenerate geometry yields zeros and a warning, as in the binary factor.
func (f *TernaryReprojectionFactor) EvaluateError(
	pose geometry.Pose, point r3.Vector, cal geometry.Calibration,
) (*mat.VecDense, *mat.Dense, *mat.Dense, *mat.Dense) {
	jPose := mat.NewDense(MeasurementDim, geometry.PoseDim, nil)
	jPoint := mat.NewDense(MeasurementDim, 3, nil)
	jCal := mat.NewDense(MeasurementDim, geometry.CalDim, nil)

	camera := geometry.Camera{Pose: pose, Cal: cal}
	uv, err := camera.ProjectSeparated(point, jPose, jPoint, jCal)
	if err != nil {
		f.logger.Warnw("dropping degenerate observation",
			"error", err, "landmark", f.pointKey, "pose", f.poseKey)
		return mat.NewVecDense(MeasurementDim, nil), jPose, jPoint, jCal
	}
	residual := mat.NewVecDense(MeasurementDim, []float64{
		uv.X - f.measured.X,
		uv.Y - f.measured.Y,
	})
	return residual, jPose, jPoint, jCal
}

// Equals reports whether the other factor has the same keys, the same
// measurement within tol, and the same kind of noise model.
func (f *TernaryReprojectionFactor) Equals(other *TernaryReprojectionFactor, tol float64) bool {
	if f.poseKey != other.poseKey || f.pointKey != other.pointKey || f.calKey != other.calKey {
		return false
	}
	if math.Abs(f.measured.X-other.measured.X) > tol ||
		math.Abs(f.measured.Y-other.measured.Y) > tol {
		return false
	}
	return sameModelKind(f.model, other.model)
}
