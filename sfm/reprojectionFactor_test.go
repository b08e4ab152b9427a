package sfm

import (
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/hovavalon/gtsam/geometry"
	"github.com/hovavalon/gtsam/linear"
	"github.com/hovavalon/gtsam/noise"
)

const (
	camKey   = linear.Key(1)
	pointKey = linear.Key(2)
)

func testCamera() geometry.Camera {
	pose := geometry.NewIdentityPose().Retract([]float64{0.1, -0.05, 0.2, 0.5, -0.5, 1})
	return geometry.Camera{
		Pose: pose,
		Cal:  geometry.Calibration{Fx: 400, Fy: 400, Px: 320, Py: 240},
	}
}

func numericalJacobian(f func(xi []float64) []float64, dim int) *mat.Dense {
	const h = 1e-6
	out := f(make([]float64, dim))
	jac := mat.NewDense(len(out), dim, nil)
	for j := 0; j < dim; j++ {
		plus := make([]float64, dim)
		minus := make([]float64, dim)
		plus[j] = h
		minus[j] = -h
		fp := f(plus)
		fm := f(minus)
		for i := range out {
			jac.Set(i, j, (fp[i]-fm[i])/(2*h))
		}
	}
	return jac
}

func TestEvaluateError(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cam := testCamera()
	point := r3.Vector{X: 0.3, Y: -0.2, Z: 8}
	uv, err := cam.Project(point, nil, nil)
	test.That(t, err, test.ShouldBeNil)

	// Measuring the exact projection gives a zero residual.
	exact := NewReprojectionFactor(uv, nil, camKey, pointKey, logger)
	residual, jc, jp := exact.EvaluateError(cam, point)
	test.That(t, residual.AtVec(0), test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, residual.AtVec(1), test.ShouldAlmostEqual, 0, 1e-9)

	r, c := jc.Dims()
	test.That(t, r, test.ShouldEqual, 2)
	test.That(t, c, test.ShouldEqual, geometry.CameraDim)
	r, c = jp.Dims()
	test.That(t, r, test.ShouldEqual, 2)
	test.That(t, c, test.ShouldEqual, 3)

	// An offset measurement shifts the residual by exactly that offset.
	shifted := NewReprojectionFactor(r2.Point{X: uv.X - 3, Y: uv.Y + 2}, nil, camKey, pointKey, logger)
	residual, _, _ = shifted.EvaluateError(cam, point)
	test.That(t, residual.AtVec(0), test.ShouldAlmostEqual, 3, 1e-9)
	test.That(t, residual.AtVec(1), test.ShouldAlmostEqual, -2, 1e-9)
}

func TestEvaluateErrorJacobians(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cam := testCamera()
	point := r3.Vector{X: -0.4, Y: 0.6, Z: 6}
	f := NewReprojectionFactor(r2.Point{X: 315, Y: 243}, nil, camKey, pointKey, logger)

	_, jc, jp := f.EvaluateError(cam, point)

	numCam := numericalJacobian(func(xi []float64) []float64 {
		res, _, _ := f.EvaluateError(cam.Retract(xi), point)
		return []float64{res.AtVec(0), res.AtVec(1)}
	}, geometry.CameraDim)
	test.That(t, mat.EqualApprox(jc, numCam, 1e-5), test.ShouldBeTrue)

	numPoint := numericalJacobian(func(xi []float64) []float64 {
		res, _, _ := f.EvaluateError(cam, point.Add(r3.Vector{X: xi[0], Y: xi[1], Z: xi[2]}))
		return []float64{res.AtVec(0), res.AtVec(1)}
	}, 3)
	test.That(t, mat.EqualApprox(jp, numPoint, 1e-5), test.ShouldBeTrue)
}

func TestEvaluateErrorBehindCamera(t *testing.T) {
	logger, logs := golog.NewObservedTestLogger(t)
	cam := geometry.Camera{
		Pose: geometry.NewIdentityPose(),
		Cal:  geometry.Calibration{Fx: 400, Fy: 400, Px: 320, Py: 240},
	}
	f := NewReprojectionFactor(r2.Point{X: 100, Y: 100}, nil, camKey, pointKey, logger)

	residual, jc, jp := f.EvaluateError(cam, r3.Vector{X: 0, Y: 0, Z: -5})

	test.That(t, residual.AtVec(0), test.ShouldEqual, 0)
	test.That(t, residual.AtVec(1), test.ShouldEqual, 0)
	zeroCam := mat.NewDense(2, geometry.CameraDim, nil)
	zeroPoint := mat.NewDense(2, 3, nil)
	test.That(t, mat.EqualApprox(jc, zeroCam, 0), test.ShouldBeTrue)
	test.That(t, mat.EqualApprox(jp, zeroPoint, 0), test.ShouldBeTrue)

	// The dropped observation is reported, naming the variables involved.
	test.That(t, logs.FilterMessageSnippet("degenerate").Len(), test.ShouldBeGreaterThan, 0)
}

func TestLinearize(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cam := testCamera()
	point := r3.Vector{X: 0.2, Y: 0.1, Z: 5}
	values := NewValues()
	values.SetCamera(camKey, cam)
	values.SetPoint(pointKey, point)

	f := NewReprojectionFactor(r2.Point{X: 310, Y: 250}, nil, camKey, pointKey, logger)
	residual, jc, jp := f.EvaluateError(cam, point)

	lf, err := f.Linearize(values)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, lf, test.ShouldNotBeNil)

	// b is the negated residual, blocks are the Jacobians.
	test.That(t, lf.B().AtVec(0), test.ShouldAlmostEqual, -residual.AtVec(0), 1e-12)
	test.That(t, lf.B().AtVec(1), test.ShouldAlmostEqual, -residual.AtVec(1), 1e-12)
	test.That(t, mat.EqualApprox(lf.A1(), jc, 1e-12), test.ShouldBeTrue)
	test.That(t, mat.EqualApprox(lf.A2(), jp, 1e-12), test.ShouldBeTrue)
	test.That(t, lf.Model(), test.ShouldBeNil)
}

func TestLinearizeWhitens(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cam := testCamera()
	point := r3.Vector{X: 0.2, Y: 0.1, Z: 5}
	values := NewValues()
	values.SetCamera(camKey, cam)
	values.SetPoint(pointKey, point)

	model, err := noise.NewDiagonal([]float64{2, 0.5})
	test.That(t, err, test.ShouldBeNil)
	f := NewReprojectionFactor(r2.Point{X: 310, Y: 250}, model, camKey, pointKey, logger)
	plain := NewReprojectionFactor(r2.Point{X: 310, Y: 250}, nil, camKey, pointKey, logger)

	lf, err := f.Linearize(values)
	test.That(t, err, test.ShouldBeNil)
	plainLf, err := plain.Linearize(values)
	test.That(t, err, test.ShouldBeNil)

	// Whitening applied exactly once: rows scaled by 1/sigma.
	test.That(t, lf.B().AtVec(0), test.ShouldAlmostEqual, plainLf.B().AtVec(0)/2, 1e-12)
	test.That(t, lf.B().AtVec(1), test.ShouldAlmostEqual, plainLf.B().AtVec(1)*2, 1e-12)
	test.That(t, lf.A1().At(0, 0), test.ShouldAlmostEqual, plainLf.A1().At(0, 0)/2, 1e-12)
	test.That(t, lf.A1().At(1, 0), test.ShouldAlmostEqual, plainLf.A1().At(1, 0)*2, 1e-12)
	test.That(t, lf.Model(), test.ShouldBeNil)
}

func TestLinearizeConstrained(t *testing.T) {
	logger := golog.NewTestLogger(t)
	values := NewValues()
	values.SetCamera(camKey, testCamera())
	values.SetPoint(pointKey, r3.Vector{X: 0, Y: 0, Z: 5})

	model, err := noise.NewConstrained([]float64{0, 1})
	test.That(t, err, test.ShouldBeNil)
	f := NewReprojectionFactor(r2.Point{X: 320, Y: 240}, model, camKey, pointKey, logger)

	lf, err := f.Linearize(values)
	test.That(t, err, test.ShouldBeNil)
	// The produced factor carries the reduced unit form, not the constraint.
	test.That(t, lf.Model(), test.ShouldNotBeNil)
	test.That(t, lf.Model().IsUnit(), test.ShouldBeTrue)
	test.That(t, lf.Model().IsConstrained(), test.ShouldBeFalse)
}

func TestLinearizeInactive(t *testing.T) {
	logger := golog.NewTestLogger(t)
	values := NewValues()
	values.SetCamera(camKey, testCamera())
	values.SetPoint(pointKey, r3.Vector{X: 0, Y: 0, Z: 5})

	f := NewReprojectionFactor(r2.Point{X: 320, Y: 240}, nil, camKey, pointKey, logger)
	f.Active = func(*Values) bool { return false }

	lf, err := f.Linearize(values)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, lf, test.ShouldBeNil)
}

func TestLinearizeMissingValue(t *testing.T) {
	logger := golog.NewTestLogger(t)
	values := NewValues()
	values.SetCamera(camKey, testCamera())

	f := NewReprojectionFactor(r2.Point{X: 320, Y: 240}, nil, camKey, pointKey, logger)
	_, err := f.Linearize(values)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReprojectionFactorEquals(t *testing.T) {
	logger := golog.NewTestLogger(t)
	model, err := noise.NewIsotropic(2, 1.5)
	test.That(t, err, test.ShouldBeNil)

	f1 := NewReprojectionFactor(r2.Point{X: 1, Y: 1}, model, camKey, pointKey, logger)
	f2 := NewReprojectionFactor(r2.Point{X: 1, Y: 1 + 1e-12}, model, camKey, pointKey, logger)
	test.That(t, f1.Equals(f2, 1e-9), test.ShouldBeTrue)

	f3 := NewReprojectionFactor(r2.Point{X: 1, Y: 2}, model, camKey, pointKey, logger)
	test.That(t, f1.Equals(f3, 1e-9), test.ShouldBeFalse)

	f4 := NewReprojectionFactor(r2.Point{X: 1, Y: 1}, nil, camKey, pointKey, logger)
	test.That(t, f1.Equals(f4, 1e-9), test.ShouldBeFalse)

	f5 := NewReprojectionFactor(r2.Point{X: 1, Y: 1}, model, pointKey, camKey, logger)
	test.That(t, f1.Equals(f5, 1e-9), test.ShouldBeFalse)
}

func TestTernaryEvaluateError(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cam := testCamera()
	point := r3.Vector{X: 0.1, Y: -0.3, Z: 7}
	uv, err := cam.Project(point, nil, nil)
	test.That(t, err, test.ShouldBeNil)

	f := NewTernaryReprojectionFactor(uv, nil, 1, 2, 3, logger)
	residual, jPose, jPoint, jCal := f.EvaluateError(cam.Pose, point, cam.Cal)
	test.That(t, residual.AtVec(0), test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, residual.AtVec(1), test.ShouldAlmostEqual, 0, 1e-9)

	numPose := numericalJacobian(func(xi []float64) []float64 {
		res, _, _, _ := f.EvaluateError(cam.Pose.Retract(xi), point, cam.Cal)
		return []float64{res.AtVec(0), res.AtVec(1)}
	}, geometry.PoseDim)
	test.That(t, mat.EqualApprox(jPose, numPose, 1e-5), test.ShouldBeTrue)

	numPoint := numericalJacobian(func(xi []float64) []float64 {
		res, _, _, _ := f.EvaluateError(cam.Pose, point.Add(r3.Vector{X: xi[0], Y: xi[1], Z: xi[2]}), cam.Cal)
		return []float64{res.AtVec(0), res.AtVec(1)}
	}, 3)
	test.That(t, mat.EqualApprox(jPoint, numPoint, 1e-5), test.ShouldBeTrue)

	numCal := numericalJacobian(func(xi []float64) []float64 {
		res, _, _, _ := f.EvaluateError(cam.Pose, point, cam.Cal.Retract(xi))
		return []float64{res.AtVec(0), res.AtVec(1)}
	}, geometry.CalDim)
	test.That(t, mat.EqualApprox(jCal, numCal, 1e-5), test.ShouldBeTrue)
}

func TestTernaryBehindCamera(t *testing.T) {
	logger, logs := golog.NewObservedTestLogger(t)
	f := NewTernaryReprojectionFactor(r2.Point{X: 1, Y: 1}, nil, 1, 2, 3, logger)

	residual, jPose, jPoint, jCal := f.EvaluateError(
		geometry.NewIdentityPose(), r3.Vector{X: 0, Y: 0, Z: -1},
		geometry.Calibration{Fx: 1, Fy: 1})

	test.That(t, residual.AtVec(0), test.ShouldEqual, 0)
	test.That(t, residual.AtVec(1), test.ShouldEqual, 0)
	test.That(t, mat.EqualApprox(jPose, mat.NewDense(2, geometry.PoseDim, nil), 0), test.ShouldBeTrue)
	test.That(t, mat.EqualApprox(jPoint, mat.NewDense(2, 3, nil), 0), test.ShouldBeTrue)
	test.That(t, mat.EqualApprox(jCal, mat.NewDense(2, geometry.CalDim, nil), 0), test.ShouldBeTrue)
	test.That(t, logs.FilterMessageSnippet("degenerate").Len(), test.ShouldBeGreaterThan, 0)
}
