package linear

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"github.com/hovavalon/gtsam/noise"
)

// ErrConstrainedHessianUpdate is returned when a factor carrying a hard
// constraint is asked to update an information matrix. Constraints cannot be
// folded into an unweighted information form; they belong to a separate
// elimination path.
var ErrConstrainedHessianUpdate = errors.New(
	"cannot update information matrix with a constrained noise model")

// BinaryJacobianFactor is a linear factor over exactly two variables with
// fixed-size blocks a1 and a2 and right-hand side b. It is produced fresh at
// each linearization and consumed by a single accumulation pass.
type BinaryJacobianFactor struct {
	key1, key2 Key
	a1, a2     *mat.Dense
	b          *mat.VecDense
	model      noise.Model
}

// NewBinaryJacobianFactor validates block shapes and wraps them in a factor.
// The model may be nil for an unweighted factor.
func NewBinaryJacobianFactor(
	key1 Key, a1 *mat.Dense,
	key2 Key, a2 *mat.Dense,
	b *mat.VecDense,
	model noise.Model,
) (*BinaryJacobianFactor, error) {
	r1, _ := a1.Dims()
	r2, _ := a2.Dims()
	var err error
	if r1 != b.Len() {
		err = multierr.Combine(err, errors.Errorf("a1 has %d rows, b has %d", r1, b.Len()))
	}
	if r2 != b.Len() {
		err = multierr.Combine(err, errors.Errorf("a2 has %d rows, b has %d", r2, b.Len()))
	}
	if model != nil && model.Dim() != b.Len() {
		err = multierr.Combine(err, errors.Errorf("noise model dim %d, b has %d", model.Dim(), b.Len()))
	}
	if err != nil {
		return nil, err
	}
	return &BinaryJacobianFactor{key1: key1, key2: key2, a1: a1, a2: a2, b: b, model: model}, nil
}

// Keys returns the two variable keys, in term order.
func (f *BinaryJacobianFactor) Keys() (Key, Key) { return f.key1, f.key2 }

// A1 returns the block for the first variable.
func (f *BinaryJacobianFactor) A1() *mat.Dense { return f.a1 }

// A2 returns the block for the second variable.
func (f *BinaryJacobianFactor) A2() *mat.Dense { return f.a2 }

// B returns the right-hand side.
func (f *BinaryJacobianFactor) B() *mat.VecDense { return f.b }

// Model returns the attached noise model, which may be nil.
func (f *BinaryJacobianFactor) Model() noise.Model { return f.model }

// Whiten returns a copy with the noise model applied once to both blocks and
// the right-hand side, and no model attached.
func (f *BinaryJacobianFactor) Whiten() *BinaryJacobianFactor {
	a1 := mat.DenseCopyOf(f.a1)
	a2 := mat.DenseCopyOf(f.a2)
	b := mat.VecDenseCopyOf(f.b)
	if f.model != nil {
		f.model.WhitenMat(a1)
		f.model.WhitenMat(a2)
		f.model.WhitenVec(b)
	}
	return &BinaryJacobianFactor{key1: f.key1, key2: f.key2, a1: a1, a2: a2, b: b}
}

// Error returns 0.5 * |A x - b|^2 with whitening applied, for the current
// per-key tangent values in x.
func (f *BinaryJacobianFactor) Error(x map[Key]*mat.VecDense) (float64, error) {
	x1, ok := x[f.key1]
	if !ok {
		return 0, errors.Errorf("no value for variable %d", f.key1)
	}
	x2, ok := x[f.key2]
	if !ok {
		return 0, errors.Errorf("no value for variable %d", f.key2)
	}
	e := mat.NewVecDense(f.b.Len(), nil)
	tmp := mat.NewVecDense(f.b.Len(), nil)
	e.MulVec(f.a1, x1)
	tmp.MulVec(f.a2, x2)
	e.AddVec(e, tmp)
	e.SubVec(e, f.b)
	if f.model != nil {
		f.model.WhitenVec(e)
	}
	return 0.5 * mat.Dot(e, e), nil
}

// UpdateHessian folds this factor's contribution into the shared information
// matrix: outer products of the (whitened) blocks land in the six
// upper-triangle blocks addressed by the keys' slots and the final augmented
// slot. Slot lookups happen before any write, so a missing key leaves the
// matrix untouched.
func (f *BinaryJacobianFactor) UpdateHessian(slots Slots, info SymmetricBlockMatrix) error {
	if f.model != nil && !f.model.IsUnit() {
		if f.model.IsConstrained() {
			return ErrConstrainedHessianUpdate
		}
		return f.Whiten().UpdateHessian(slots, info)
	}

	slot1, err := slots.Slot(f.key1)
	if err != nil {
		return err
	}
	slot2, err := slots.Slot(f.key2)
	if err != nil {
		return err
	}
	a1, a2 := f.a1, f.a2
	if slot1 > slot2 {
		// Normalize term order: only the upper triangle is written.
		slot1, slot2 = slot2, slot1
		a1, a2 = a2, a1
	}
	slotB := info.NBlocks() - 1

	var m11, m12, m1b, m22, m2b mat.Dense
	m11.Mul(a1.T(), a1)
	m12.Mul(a1.T(), a2)
	m1b.Mul(a1.T(), f.b)
	m22.Mul(a2.T(), a2)
	m2b.Mul(a2.T(), f.b)
	bb := mat.NewDense(1, 1, []float64{mat.Dot(f.b, f.b)})

	return multierr.Combine(
		info.AddBlock(slot1, slot1, &m11),
		info.AddBlock(slot1, slot2, &m12),
		info.AddBlock(slot1, slotB, &m1b),
		info.AddBlock(slot2, slot2, &m22),
		info.AddBlock(slot2, slotB, &m2b),
		info.AddBlock(slotB, slotB, bb),
	)
}

// Equals reports structural equality within tol: same keys in the same
// order, blocks and right-hand side entrywise within tol.
func (f *BinaryJacobianFactor) Equals(other *BinaryJacobianFactor, tol float64) bool {
	if f.key1 != other.key1 || f.key2 != other.key2 {
		return false
	}
	return mat.EqualApprox(f.a1, other.a1, tol) &&
		mat.EqualApprox(f.a2, other.a2, tol) &&
		mat.EqualApprox(f.b, other.b, tol)
}
