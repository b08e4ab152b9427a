// Package noise provides measurement noise models used to whiten residuals
// and Jacobian blocks before they enter the normal equations.
package noise

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Model rescales residuals and Jacobian rows by the inverse square root of
// the measurement covariance. Whitening is in place.
type Model interface {
	// Dim is the residual dimension this model weights.
	Dim() int
	// IsUnit reports whether whitening is the identity.
	IsUnit() bool
	// IsConstrained reports whether any row is a hard constraint.
	IsConstrained() bool
	// WhitenVec whitens a residual vector in place.
	WhitenVec(v *mat.VecDense)
	// WhitenMat applies the same row scaling to every column of a.
	WhitenMat(a *mat.Dense)
	// Unit returns a weight-1 model of the same dimension, used to strip a
	// constraint before the factor enters an information form.
	Unit() Model
}

type unit struct {
	dim int
}

// NewUnit returns the identity noise model of the given dimension.
func NewUnit(dim int) Model {
	return unit{dim: dim}
}

func (u unit) Dim() int                { return u.dim }
func (u unit) IsUnit() bool            { return true }
func (u unit) IsConstrained() bool     { return false }
func (u unit) WhitenVec(*mat.VecDense) {}
func (u unit) WhitenMat(*mat.Dense)    {}
func (u unit) Unit() Model             { return u }

type diagonal struct {
	invSigmas   []float64
	constrained []bool
}

// NewDiagonal returns a model with an independent standard deviation per
// residual row. Sigmas must be strictly positive.
func NewDiagonal(sigmas []float64) (Model, error) {
	inv := make([]float64, len(sigmas))
	for i, s := range sigmas {
		if s <= 0 {
			return nil, errors.Errorf("sigma %d must be positive, got %f", i, s)
		}
		inv[i] = 1 / s
	}
	return &diagonal{invSigmas: inv}, nil
}

// NewIsotropic returns a diagonal model with the same standard deviation on
// every row.
func NewIsotropic(dim int, sigma float64) (Model, error) {
	sigmas := make([]float64, dim)
	for i := range sigmas {
		sigmas[i] = sigma
	}
	return NewDiagonal(sigmas)
}

// NewConstrained returns a diagonal model where a zero sigma marks a hard
// constraint on that row. Whitening scales the finite-sigma rows and leaves
// constrained rows untouched.
func NewConstrained(sigmas []float64) (Model, error) {
	inv := make([]float64, len(sigmas))
	constrained := make([]bool, len(sigmas))
	any := false
	for i, s := range sigmas {
		switch {
		case s < 0:
			return nil, errors.Errorf("sigma %d must be non-negative, got %f", i, s)
		case s == 0:
			inv[i] = 1
			constrained[i] = true
			any = true
		default:
			inv[i] = 1 / s
		}
	}
	if !any {
		return nil, errors.New("constrained model needs at least one zero sigma")
	}
	return &diagonal{invSigmas: inv, constrained: constrained}, nil
}

func (d *diagonal) Dim() int { return len(d.invSigmas) }

func (d *diagonal) IsUnit() bool { return false }

func (d *diagonal) IsConstrained() bool {
	for _, c := range d.constrained {
		if c {
			return true
		}
	}
	return false
}

func (d *diagonal) WhitenVec(v *mat.VecDense) {
	for i, s := range d.invSigmas {
		v.SetVec(i, v.AtVec(i)*s)
	}
}

func (d *diagonal) WhitenMat(a *mat.Dense) {
	_, cols := a.Dims()
	for i, s := range d.invSigmas {
		for j := 0; j < cols; j++ {
			a.Set(i, j, a.At(i, j)*s)
		}
	}
}

func (d *diagonal) Unit() Model { return NewUnit(len(d.invSigmas)) }
