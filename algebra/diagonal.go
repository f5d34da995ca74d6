package algebra

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// BlockDiagonal stores the inverted diagonal blocks of a matrix, one dense
// BlockSize×BlockSize block per node, row-major.
type BlockDiagonal struct {
	BlockSize int
	inv       []float64
}

// DiagonalInverse inverts the diagonal blocks of the local rows
func (m *Matrix) DiagonalInverse() (*BlockDiagonal, error) {
	bs := m.blockSize
	if m.rows%bs != 0 {
		return nil, fmt.Errorf("%d rows with block size %d: %w", m.rows, bs, ErrDimension)
	}
	nb := m.rows / bs
	d := &BlockDiagonal{BlockSize: bs, inv: make([]float64, nb*bs*bs)}
	if bs == 1 {
		for i := 0; i < m.rows; i++ {
			a := m.Diagonal(i)
			if a == 0 {
				return nil, fmt.Errorf("row %d: %w", m.rowOffset+i, ErrSingular)
			}
			d.inv[i] = 1 / a
		}
		return d, nil
	}

	blk := mat.NewDense(bs, bs, nil)
	var inv mat.Dense
	for b := 0; b < nb; b++ {
		first := b * bs
		for r := 0; r < bs; r++ {
			for c := 0; c < bs; c++ {
				blk.Set(r, c, m.At(first+r, m.rowOffset+first+c))
			}
		}
		if err := inv.Inverse(blk); err != nil {
			return nil, fmt.Errorf("node %d: %v: %w", (m.rowOffset+first)/bs, err, ErrSingular)
		}
		off := b * bs * bs
		for r := 0; r < bs; r++ {
			for c := 0; c < bs; c++ {
				d.inv[off+r*bs+c] = inv.At(r, c)
			}
		}
	}
	return d, nil
}

// Apply computes dst = D⁻¹·src
func (d *BlockDiagonal) Apply(dst, src []float64) {
	bs := d.BlockSize
	if bs == 1 {
		for i, v := range src {
			dst[i] = d.inv[i] * v
		}
		return
	}
	for b := 0; b < len(src)/bs; b++ {
		blk := d.inv[b*bs*bs : (b+1)*bs*bs]
		x := src[b*bs : (b+1)*bs]
		for r := 0; r < bs; r++ {
			var s float64
			for c := 0; c < bs; c++ {
				s += blk[r*bs+c] * x[c]
			}
			dst[b*bs+r] = s
		}
	}
}

// Block returns the inverted block of local node b
func (d *BlockDiagonal) Block(b int) []float64 {
	bs := d.BlockSize
	return d.inv[b*bs*bs : (b+1)*bs*bs]
}
