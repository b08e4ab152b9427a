package linear

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/hovavalon/gtsam/noise"
)

// ErrRawGradientUnsupported is returned by GradientAtZeroRaw. Callers must
// check for it and fall back to the container form; it is never silently
// wrong output.
var ErrRawGradientUnsupported = errors.New(
	"raw-array gradient at zero is not supported, use GradientAtZero")

// FixedBlockFactor is a linear factor over any number of variables whose
// blocks all share one column width. The uniform width is what allows the
// raw-array overloads to address a flat buffer by stride alone.
type FixedBlockFactor struct {
	keys   []Key
	blocks []*mat.Dense
	b      *mat.VecDense
	width  int
	model  noise.Model
}

// NewFixedBlockFactor validates that every block has the same column width
// and the same row count as b, then wraps them in a factor. A factor with no
// keys is legal; all of its operations are no-ops.
func NewFixedBlockFactor(keys []Key, blocks []*mat.Dense, b *mat.VecDense, model noise.Model) (*FixedBlockFactor, error) {
	if len(keys) != len(blocks) {
		return nil, errors.Errorf("%d keys but %d blocks", len(keys), len(blocks))
	}
	width := 0
	for i, block := range blocks {
		r, c := block.Dims()
		if r != b.Len() {
			return nil, errors.Errorf("block %d has %d rows, b has %d", i, r, b.Len())
		}
		if i == 0 {
			width = c
		} else if c != width {
			return nil, errors.Errorf("block %d has width %d, expected %d", i, c, width)
		}
	}
	if model != nil && model.Dim() != b.Len() {
		return nil, errors.Errorf("noise model dim %d, b has %d", model.Dim(), b.Len())
	}
	return &FixedBlockFactor{keys: keys, blocks: blocks, b: b, width: width, model: model}, nil
}

// Empty reports whether the factor has no variables.
func (f *FixedBlockFactor) Empty() bool { return len(f.keys) == 0 }

// Width returns the shared block column width.
func (f *FixedBlockFactor) Width() int { return f.width }

// Keys returns the factor's variable keys in term order.
func (f *FixedBlockFactor) Keys() []Key { return f.keys }

// HessianDiagonal returns, per variable, the column-wise squared norms of
// that variable's block: the diagonal of A'A restricted to the block.
func (f *FixedBlockFactor) HessianDiagonal() map[Key]*mat.VecDense {
	diag := make(map[Key]*mat.VecDense, len(f.keys))
	for pos, key := range f.keys {
		d := mat.NewVecDense(f.width, nil)
		for k := 0; k < f.width; k++ {
			col := f.blocks[pos].ColView(k)
			d.SetVec(k, mat.Dot(col, col))
		}
		diag[key] = d
	}
	return diag
}

// HessianDiagonalRaw accumulates the same diagonal additively into a flat
// buffer, each variable at offset width*slot. Existing contents are kept.
func (f *FixedBlockFactor) HessianDiagonalRaw(d []float64, slots Slots) error {
	if f.Empty() {
		return nil
	}
	for pos, key := range f.keys {
		slot, err := slots.Slot(key)
		if err != nil {
			return err
		}
		off := f.width * slot
		if off+f.width > len(d) {
			return errors.Errorf("diagonal buffer too short for variable %d: need %d, have %d",
				key, off+f.width, len(d))
		}
		for k := 0; k < f.width; k++ {
			col := f.blocks[pos].ColView(k)
			d[off+k] += mat.Dot(col, col)
		}
	}
	return nil
}

// weightedAx computes the forward product A x from per-key slices supplied by get,
// then applies whitening and the scalar alpha. Whitening is applied twice:
// the information matrix divides by the variance, while a single whitening
// only applies the inverse square root.
func (f *FixedBlockFactor) weightedAx(alpha float64, get func(pos int) (*mat.VecDense, error)) (*mat.VecDense, error) {
	ax := mat.NewVecDense(f.b.Len(), nil)
	tmp := mat.NewVecDense(f.b.Len(), nil)
	for pos := range f.keys {
		xk, err := get(pos)
		if err != nil {
			return nil, err
		}
		tmp.MulVec(f.blocks[pos], xk)
		ax.AddVec(ax, tmp)
	}
	if f.model != nil {
		f.model.WhitenVec(ax)
		f.model.WhitenVec(ax)
	}
	ax.ScaleVec(alpha, ax)
	return ax, nil
}

// MultiplyHessianAdd computes y += alpha * A'(A x) for this factor without
// forming A'A. Missing keys in y gain a fresh zero entry.
func (f *FixedBlockFactor) MultiplyHessianAdd(alpha float64, x, y map[Key]*mat.VecDense) error {
	if f.Empty() {
		return nil
	}
	ax, err := f.weightedAx(alpha, func(pos int) (*mat.VecDense, error) {
		xk, ok := x[f.keys[pos]]
		if !ok {
			return nil, errors.Errorf("no value for variable %d in x", f.keys[pos])
		}
		return xk, nil
	})
	if err != nil {
		return err
	}
	at := mat.NewVecDense(f.width, nil)
	for pos, key := range f.keys {
		at.MulVec(f.blocks[pos].T(), ax)
		yk, ok := y[key]
		if !ok {
			yk = mat.NewVecDense(f.width, nil)
			y[key] = yk
		}
		yk.AddVec(yk, at)
	}
	return nil
}

// MultiplyHessianAddRaw is the uniform-stride flat-array form of
// MultiplyHessianAdd: each variable's slice of x and y starts at width*slot.
func (f *FixedBlockFactor) MultiplyHessianAddRaw(alpha float64, x, y []float64, slots Slots) error {
	if f.Empty() {
		return nil
	}
	offs := make([]int, len(f.keys))
	for pos, key := range f.keys {
		slot, err := slots.Slot(key)
		if err != nil {
			return err
		}
		off := f.width * slot
		if off+f.width > len(x) || off+f.width > len(y) {
			return errors.Errorf("buffer too short for variable %d: need %d", key, off+f.width)
		}
		offs[pos] = off
	}
	return f.multiplyHessianAddAt(alpha, x, y, offs)
}

// MultiplyHessianAddOffsets is the irregular-layout flat-array form: the
// start of each slot's slice is offsets[slot], its end offsets[slot+1]. Every
// slice addressed by this factor must still be exactly width wide.
func (f *FixedBlockFactor) MultiplyHessianAddOffsets(alpha float64, x, y []float64, slots Slots, offsets []int) error {
	if f.Empty() {
		return nil
	}
	offs := make([]int, len(f.keys))
	for pos, key := range f.keys {
		slot, err := slots.Slot(key)
		if err != nil {
			return err
		}
		if slot+1 >= len(offsets) {
			return errors.Errorf("offset table too short for slot %d", slot)
		}
		start, end := offsets[slot], offsets[slot+1]
		if end-start != f.width {
			return errors.Errorf("slot %d spans %d entries, factor width is %d", slot, end-start, f.width)
		}
		if end > len(x) || end > len(y) {
			return errors.Errorf("buffer too short for slot %d: need %d", slot, end)
		}
		offs[pos] = start
	}
	return f.multiplyHessianAddAt(alpha, x, y, offs)
}

func (f *FixedBlockFactor) multiplyHessianAddAt(alpha float64, x, y []float64, offs []int) error {
	ax, err := f.weightedAx(alpha, func(pos int) (*mat.VecDense, error) {
		return mat.NewVecDense(f.width, x[offs[pos]:offs[pos]+f.width]), nil
	})
	if err != nil {
		return err
	}
	at := mat.NewVecDense(f.width, nil)
	for pos := range f.keys {
		at.MulVec(f.blocks[pos].T(), ax)
		for k := 0; k < f.width; k++ {
			y[offs[pos]+k] += at.AtVec(k)
		}
	}
	return nil
}

// GradientAtZero returns the gradient of the factor's quadratic error at
// x = 0, which is -A'b per variable.
func (f *FixedBlockFactor) GradientAtZero() map[Key]*mat.VecDense {
	grad := make(map[Key]*mat.VecDense, len(f.keys))
	for pos, key := range f.keys {
		g := mat.NewVecDense(f.width, nil)
		g.MulVec(f.blocks[pos].T(), f.b)
		g.ScaleVec(-1, g)
		grad[key] = g
	}
	return grad
}

// GradientAtZeroRaw always returns ErrRawGradientUnsupported.
func (f *FixedBlockFactor) GradientAtZeroRaw([]float64, Slots) error {
	return ErrRawGradientUnsupported
}
