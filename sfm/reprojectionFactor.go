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

// MeasurementDim is the dimension of an image measurement.
const MeasurementDim = 2

// ReprojectionFactor ties one image observation of a landmark to the camera
// that produced it. Both the camera (pose plus calibration) and the landmark
// are unknowns. The factor is immutable after construction; each outer
// iteration linearizes it afresh at the current estimate.
type ReprojectionFactor struct {
	measured  r2.Point
	model     noise.Model
	cameraKey linear.Key
	pointKey  linear.Key
	logger    golog.Logger

	// Active, when set, lets the optimizer exclude the factor for an
	// iteration. A nil predicate means always active.
	Active func(values *Values) bool
}

// NewReprojectionFactor creates a factor for the given measurement. The
// model may be nil for an unweighted factor.
func NewReprojectionFactor(
	measured r2.Point,
	model noise.Model,
	cameraKey, pointKey linear.Key,
	logger golog.Logger,
) *ReprojectionFactor {
	return &ReprojectionFactor{
		measured:  measured,
		model:     model,
		cameraKey: cameraKey,
		pointKey:  pointKey,
		logger:    logger,
	}
}

// Measured returns the image measurement.
func (f *ReprojectionFactor) Measured() r2.Point { return f.measured }

// Keys returns the camera and landmark keys.
func (f *ReprojectionFactor) Keys() (linear.Key, linear.Key) {
	return f.cameraKey, f.pointKey
}

// EvaluateError returns the reprojection residual h(x) - z and the Jacobians
// with respect to the camera (2x11) and the landmark (2x3). A landmark
// behind the camera produces an exact zero residual and zero Jacobians with
// a warning, never a failure: one degenerate observation must not abort the
// surrounding optimization.
func (f *ReprojectionFactor) EvaluateError(
	camera geometry.Camera, point r3.Vector,
) (*mat.VecDense, *mat.Dense, *mat.Dense) {
	jCamera := mat.NewDense(MeasurementDim, geometry.CameraDim, nil)
	jPoint := mat.NewDense(MeasurementDim, 3, nil)
	uv, err := camera.Project(point, jCamera, jPoint)
	if err != nil {
		f.logger.Warnw("dropping degenerate observation",
			"error", err, "camera", f.cameraKey, "landmark", f.pointKey)
		return mat.NewVecDense(MeasurementDim, nil), jCamera, jPoint
	}
	residual := mat.NewVecDense(MeasurementDim, []float64{
		uv.X - f.measured.X,
		uv.Y - f.measured.Y,
	})
	return residual, jCamera, jPoint
}

// Linearize evaluates the factor at the current estimate and packages the
// result as a two-block linear factor with b = -residual. A non-unit noise
// model whitens the blocks and b exactly once; a hard constraint is carried
// on the produced factor in reduced unit form rather than being whitened in.
// An inactive factor contributes nothing and returns nil.
func (f *ReprojectionFactor) Linearize(values *Values) (*linear.BinaryJacobianFactor, error) {
	if f.Active != nil && !f.Active(values) {
		return nil, nil
	}
	camera, err := values.Camera(f.cameraKey)
	if err != nil {
		return nil, err
	}
	point, err := values.Point(f.pointKey)
	if err != nil {
		return nil, err
	}

	residual, a1, a2 := f.EvaluateError(camera, point)
	b := mat.NewVecDense(MeasurementDim, nil)
	b.ScaleVec(-1, residual)

	if f.model != nil && !f.model.IsUnit() {
		f.model.WhitenMat(a1)
		f.model.WhitenMat(a2)
		f.model.WhitenVec(b)
	}

	var lmodel noise.Model
	if f.model != nil && f.model.IsConstrained() {
		lmodel = f.model.Unit()
	}
	return linear.NewBinaryJacobianFactor(f.cameraKey, a1, f.pointKey, a2, b, lmodel)
}

// Equals reports whether the other factor has the same keys, the same
// measurement within tol, and the same kind of noise model.
func (f *ReprojectionFactor) Equals(other *ReprojectionFactor, tol float64) bool {
	if f.cameraKey != other.cameraKey || f.pointKey != other.pointKey {
		return false
	}
	if math.Abs(f.measured.X-other.measured.X) > tol ||
		math.Abs(f.measured.Y-other.measured.Y) > tol {
		return false
	}
	return sameModelKind(f.model, other.model)
}

func sameModelKind(a, b noise.Model) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return a.Dim() == b.Dim() &&
		a.IsUnit() == b.IsUnit() &&
		a.IsConstrained() == b.IsConstrained()
}
