// Package main assembles the normal equations for a small synthetic
// structure-from-motion scene: a ring of cameras observing a cloud of
// landmarks, linearized in parallel and folded into one shared information
// matrix.
package main

import (
	"context"
	"flag"
	"math"
	"math/rand"
	"runtime"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"github.com/hovavalon/gtsam/geometry"
	"github.com/hovavalon/gtsam/linear"
	"github.com/hovavalon/gtsam/noise"
	"github.com/hovavalon/gtsam/sfm"
)

var logger = golog.NewDevelopmentLogger("bundleassembly")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var nCameras, nPoints int
	var pixelSigma float64
	cmd := flag.NewFlagSet("bundleassembly", flag.ContinueOnError)
	cmd.IntVar(&nCameras, "cameras", 4, "number of cameras on the ring")
	cmd.IntVar(&nPoints, "points", 20, "number of landmarks")
	cmd.Float64Var(&pixelSigma, "sigma", 1.0, "measurement noise in pixels")
	if err := cmd.Parse(args[1:]); err != nil {
		return err
	}

	rnd := rand.New(rand.NewSource(42))
	cal := geometry.Calibration{Fx: 500, Fy: 500, Px: 320, Py: 240}

	// Cameras on a ring around the origin, all looking roughly inward at
	// the landmark cloud centered ahead of them.
	values := sfm.NewValues()
	slots := linear.Slots{}
	var dims []int
	cameraKeys := make([]linear.Key, 0, nCameras)
	for i := 0; i < nCameras; i++ {
		angle := 0.2 * float64(i)
		pose := geometry.NewIdentityPose().Retract([]float64{
			0, angle, 0,
			5 * math.Sin(angle), 0, 5 * (1 - math.Cos(angle)),
		})
		key := linear.Key(i + 1)
		values.SetCamera(key, geometry.Camera{Pose: pose, Cal: cal})
		slots[key] = len(dims)
		dims = append(dims, geometry.CameraDim)
		cameraKeys = append(cameraKeys, key)
	}
	pointKeys := make([]linear.Key, 0, nPoints)
	for i := 0; i < nPoints; i++ {
		key := linear.Key(1000 + i)
		values.SetPoint(key, r3.Vector{
			X: rnd.NormFloat64() * 2,
			Y: rnd.NormFloat64() * 2,
			Z: 15 + rnd.NormFloat64()*3,
		})
		slots[key] = len(dims)
		dims = append(dims, 3)
		pointKeys = append(pointKeys, key)
	}
	dims = append(dims, 1) // augmented slot

	model, err := noise.NewIsotropic(sfm.MeasurementDim, pixelSigma)
	if err != nil {
		return err
	}

	// One factor per visible camera/landmark pair, measured with noise.
	var factors []*sfm.ReprojectionFactor
	skipped := 0
	for _, ck := range cameraKeys {
		camera, err := values.Camera(ck)
		if err != nil {
			return err
		}
		for _, pk := range pointKeys {
			point, err := values.Point(pk)
			if err != nil {
				return err
			}
			uv, err := camera.Project(point, nil, nil)
			if err != nil {
				skipped++
				continue
			}
			measured := r2.Point{
				X: uv.X + rnd.NormFloat64()*pixelSigma,
				Y: uv.Y + rnd.NormFloat64()*pixelSigma,
			}
			factors = append(factors, sfm.NewReprojectionFactor(measured, model, ck, pk, logger))
		}
	}
	logger.Infow("scene built",
		"cameras", nCameras, "landmarks", nPoints,
		"factors", len(factors), "not visible", skipped)

	linearized, err := sfm.LinearizeAll(factors, values, runtime.NumCPU())
	if err != nil {
		return err
	}
	info := linear.NewBlockMatrix(dims)
	if err := sfm.UpdateHessianAll(linearized, slots, info); err != nil {
		return err
	}

	for _, ck := range cameraKeys {
		slot := slots[ck]
		logger.Infow("camera information block",
			"camera", ck, "slot", slot,
			"norm", mat.Norm(info.Block(slot, slot), 2))
	}
	slotB := info.NBlocks() - 1
	logger.Infow("assembly complete",
		"blocks", info.NBlocks(),
		"residual sum", info.Block(slotB, slotB).At(0, 0))
	return nil
}
