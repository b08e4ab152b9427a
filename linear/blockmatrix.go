package linear

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// SymmetricBlockMatrix is the destination of scatter-add accumulation. It
// represents the upper triangle of a symmetric matrix: only blocks with
// i <= j are ever written. Implementations provide no locking; concurrent
// writers must be serialized by the caller.
type SymmetricBlockMatrix interface {
	// NBlocks is the number of block rows/columns, including the final
	// augmented block holding the right-hand side and residual sum.
	NBlocks() int
	// AddBlock adds delta into block (i, j) with i <= j.
	AddBlock(i, j int, delta mat.Matrix) error
}

// BlockMatrix is a dense upper-triangle implementation of
// SymmetricBlockMatrix. By convention its last block is the augmented slot.
type BlockMatrix struct {
	dims    []int
	offsets []int
	data    *mat.Dense
}

// NewBlockMatrix creates a zero block matrix with the given per-block
// dimensions.
func NewBlockMatrix(dims []int) *BlockMatrix {
	offsets := make([]int, len(dims)+1)
	for i, d := range dims {
		offsets[i+1] = offsets[i] + d
	}
	n := offsets[len(dims)]
	return &BlockMatrix{
		dims:    append([]int(nil), dims...),
		offsets: offsets,
		data:    mat.NewDense(n, n, nil),
	}
}

// NBlocks returns the number of block rows/columns.
func (m *BlockMatrix) NBlocks() int { return len(m.dims) }

// BlockDim returns the dimension of block i.
func (m *BlockMatrix) BlockDim(i int) int { return m.dims[i] }

// Block returns a mutable view of block (i, j).
func (m *BlockMatrix) Block(i, j int) *mat.Dense {
	return m.data.Slice(m.offsets[i], m.offsets[i+1], m.offsets[j], m.offsets[j+1]).(*mat.Dense)
}

// AddBlock adds delta into block (i, j). Writes below the diagonal are a
// contract violation and rejected before any data is touched.
func (m *BlockMatrix) AddBlock(i, j int, delta mat.Matrix) error {
	if i < 0 || j >= m.NBlocks() {
		return errors.Errorf("block (%d,%d) out of range for %d blocks", i, j, m.NBlocks())
	}
	if i > j {
		return errors.Errorf("refusing write below the diagonal: block (%d,%d)", i, j)
	}
	r, c := delta.Dims()
	if r != m.dims[i] || c != m.dims[j] {
		return errors.Errorf("block (%d,%d) is %dx%d, got %dx%d", i, j, m.dims[i], m.dims[j], r, c)
	}
	view := m.Block(i, j)
	view.Add(view, delta)
	return nil
}
