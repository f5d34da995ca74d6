// Package algebra holds the distributed sparse matrix used by every level of a
// multigrid hierarchy. Rows are owned by one rank; column indices are global.
package algebra

import (
	"errors"
	"fmt"
	"sort"

	"github.com/james-bowman/sparse"

	"github.com/notargets/DGAMG/partitions"
)

var (
	ErrDimension   = errors.New("algebra: dimension mismatch")
	ErrSingular    = errors.New("algebra: singular diagonal block")
	ErrNotAttached = errors.New("algebra: matrix is not attached to a layout")
)

// Matrix is a row-distributed sparse matrix in CSR form. The locally owned rows
// are global rows [RowOffset, RowOffset+Rows). Entries of a row are sorted by
// global column. Values are scalar; BlockSize groups consecutive unknowns into
// nodes that coarsening treats as one.
type Matrix struct {
	rows, cols int
	blockSize  int
	rowOffset  int

	rowPtr []int
	colIdx []int
	vals   []float64

	// Set by Attach
	comm      partitions.Communicator
	rowLayout *partitions.Layout
	colLayout *partitions.Layout
	halo      *partitions.HaloConnector
	localCol  []int     // per entry: position in [owned | ghost] column space
	colBuf    []float64 // owned values followed by ghost values
	scratch   []float64
}

type entry struct {
	col int
	val float64
}

// canonical sorts each row, sums duplicates and drops zero off-diagonals
func canonical(rows, rowOffset int, bucket [][]entry) (rowPtr, colIdx []int, vals []float64) {
	rowPtr = make([]int, rows+1)
	for i := 0; i < rows; i++ {
		row := bucket[i]
		sort.Slice(row, func(a, b int) bool { return row[a].col < row[b].col })
		for k := 0; k < len(row); {
			c, v := row[k].col, 0.0
			for ; k < len(row) && row[k].col == c; k++ {
				v += row[k].val
			}
			if v == 0 && c != rowOffset+i {
				continue
			}
			colIdx = append(colIdx, c)
			vals = append(vals, v)
		}
		rowPtr[i+1] = len(colIdx)
	}
	return rowPtr, colIdx, vals
}

func newFromBuckets(rows, cols, rowOffset, blockSize int, bucket [][]entry) *Matrix {
	m := &Matrix{rows: rows, cols: cols, rowOffset: rowOffset, blockSize: max(blockSize, 1)}
	m.rowPtr, m.colIdx, m.vals = canonical(rows, rowOffset, bucket)
	return m
}

// NewCSR builds a matrix from local CSR arrays with global column indices
func NewCSR(rows, cols int, rowPtr, colIdx []int, vals []float64) (*Matrix, error) {
	if len(rowPtr) != rows+1 || len(colIdx) != len(vals) || rowPtr[rows] != len(colIdx) {
		return nil, fmt.Errorf("csr arrays for %d rows: %w", rows, ErrDimension)
	}
	bucket := make([][]entry, rows)
	for i := 0; i < rows; i++ {
		for k := rowPtr[i]; k < rowPtr[i+1]; k++ {
			if colIdx[k] < 0 || colIdx[k] >= cols {
				return nil, fmt.Errorf("column %d outside [0,%d): %w", colIdx[k], cols, ErrDimension)
			}
			bucket[i] = append(bucket[i], entry{colIdx[k], vals[k]})
		}
	}
	return newFromBuckets(rows, cols, 0, 1, bucket), nil
}

// FromSparse converts a james-bowman CSR matrix, whose rows start at global row rowOffset
func FromSparse(csr *sparse.CSR, rowOffset, blockSize int) *Matrix {
	r, c := csr.Dims()
	bucket := make([][]entry, r)
	csr.DoNonZero(func(i, j int, v float64) {
		bucket[i] = append(bucket[i], entry{j, v})
	})
	return newFromBuckets(r, c, rowOffset, blockSize, bucket)
}

// Builder accumulates entries into a dictionary of keys before conversion to CSR
type Builder struct {
	rows, cols int
	rowOffset  int
	blockSize  int
	dok        *sparse.DOK
}

// NewBuilder starts a matrix with rows local rows and cols global columns
func NewBuilder(rows, cols int) *Builder {
	b := &Builder{rows: rows, cols: cols, blockSize: 1}
	if rows > 0 && cols > 0 {
		b.dok = sparse.NewDOK(rows, cols)
	}
	return b
}

// WithRowOffset sets the global index of the first local row
func (b *Builder) WithRowOffset(offset int) *Builder {
	b.rowOffset = offset
	return b
}

func (b *Builder) WithBlockSize(bs int) *Builder {
	b.blockSize = bs
	return b
}

// Add accumulates v into local row i, global column j
func (b *Builder) Add(i, j int, v float64) {
	b.dok.Set(i, j, b.dok.At(i, j)+v)
}

// Build converts the accumulated entries
func (b *Builder) Build() *Matrix {
	if b.dok == nil {
		return newFromBuckets(b.rows, b.cols, b.rowOffset, b.blockSize, make([][]entry, b.rows))
	}
	return FromSparse(b.dok.ToCSR(), b.rowOffset, b.blockSize)
}

// Zero returns a matrix with no entries
func Zero(rows, cols, rowOffset, blockSize int) *Matrix {
	return newFromBuckets(rows, cols, rowOffset, blockSize, make([][]entry, rows))
}

func (m *Matrix) Rows() int      { return m.rows }
func (m *Matrix) Cols() int      { return m.cols }
func (m *Matrix) BlockSize() int { return m.blockSize }
func (m *Matrix) RowOffset() int { return m.rowOffset }
func (m *Matrix) NNZ() int       { return len(m.colIdx) }

// SetBlockSize declares that consecutive groups of bs unknowns form a node
func (m *Matrix) SetBlockSize(bs int) error {
	if bs < 1 || m.rows%bs != 0 || m.cols%bs != 0 || m.rowOffset%bs != 0 {
		return fmt.Errorf("block size %d for %dx%d at offset %d: %w", bs, m.rows, m.cols, m.rowOffset, ErrDimension)
	}
	m.blockSize = bs
	return nil
}

// MaxRowNNZ is the longest local row
func (m *Matrix) MaxRowNNZ() int {
	n := 0
	for i := 0; i < m.rows; i++ {
		n = max(n, m.rowPtr[i+1]-m.rowPtr[i])
	}
	return n
}

// Row returns the global columns and values of local row i. The slices alias
// the matrix storage and must not be modified.
func (m *Matrix) Row(i int) (cols []int, vals []float64) {
	lo, hi := m.rowPtr[i], m.rowPtr[i+1]
	return m.colIdx[lo:hi], m.vals[lo:hi]
}

// At returns entry (local row i, global column j)
func (m *Matrix) At(i, j int) float64 {
	cols, vals := m.Row(i)
	k := sort.SearchInts(cols, j)
	if k < len(cols) && cols[k] == j {
		return vals[k]
	}
	return 0
}

// Diagonal returns the diagonal entry of local row i
func (m *Matrix) Diagonal(i int) float64 { return m.At(i, m.rowOffset+i) }

// RowBlock exposes the local rows for transfer between ranks
func (m *Matrix) RowBlock() partitions.RowBlock {
	return partitions.RowBlock{RowPtr: m.rowPtr, Cols: m.colIdx, Vals: m.vals}
}

func (m *Matrix) Comm() partitions.Communicator   { return partitions.OrSerial(m.comm) }
func (m *Matrix) RowLayout() *partitions.Layout   { return m.rowLayout }
func (m *Matrix) ColLayout() *partitions.Layout   { return m.colLayout }
func (m *Matrix) Halo() *partitions.HaloConnector { return m.halo }
func (m *Matrix) IsAttached() bool                { return m.halo != nil }

// Attach connects the matrix to the ranks of comm. colLayout distributes the
// columns; nil means the row layout for square matrices, or a single owner in
// a serial world. Attach is collective.
func (m *Matrix) Attach(colLayout *partitions.Layout, comm partitions.Communicator) error {
	comm = partitions.OrSerial(comm)
	me := comm.Rank()
	rowLayout, err := partitions.GatherLayout(comm, m.rows)
	if err != nil {
		return err
	}
	if lo, _ := rowLayout.Range(me); lo != m.rowOffset {
		return fmt.Errorf("rank %d rows start at %d, layout says %d: %w", me, m.rowOffset, lo, ErrNotAttached)
	}
	if colLayout == nil {
		switch {
		case comm.Size() == 1:
			colLayout = partitions.NewLayout([]int{m.cols})
		case rowLayout.Global() == m.cols:
			colLayout = rowLayout
		default:
			return fmt.Errorf("rectangular matrix needs a column layout: %w", ErrNotAttached)
		}
	}
	if colLayout.Global() != m.cols {
		return fmt.Errorf("column layout of %d for %d columns: %w", colLayout.Global(), m.cols, ErrDimension)
	}

	lo, hi := colLayout.Range(me)
	ghostPos := make(map[int]int)
	var ghosts []int
	for _, c := range m.colIdx {
		if c >= lo && c < hi {
			continue
		}
		if _, ok := ghostPos[c]; !ok {
			ghostPos[c] = 0
			ghosts = append(ghosts, c)
		}
	}
	sort.Ints(ghosts)
	for p, g := range ghosts {
		ghostPos[g] = p
	}
	halo, err := partitions.NewHaloConnector(comm, colLayout, ghosts)
	if err != nil {
		return fmt.Errorf("halo: %w", err)
	}

	nOwned := hi - lo
	m.localCol = make([]int, len(m.colIdx))
	for k, c := range m.colIdx {
		if c >= lo && c < hi {
			m.localCol[k] = c - lo
		} else {
			m.localCol[k] = nOwned + ghostPos[c]
		}
	}
	m.comm, m.rowLayout, m.colLayout, m.halo = comm, rowLayout, colLayout, halo
	m.colBuf = make([]float64, nOwned+len(ghosts))
	m.scratch = make([]float64, m.rows)
	return nil
}

func (m *Matrix) ensureAttached() error {
	if m.halo != nil {
		return nil
	}
	// unattached matrices are serial
	return m.Attach(nil, nil)
}

// colSpace is the length of the local column space, owned plus ghost columns
func (m *Matrix) colSpace() int { return len(m.colBuf) }

// Apply computes dst = A·src, where src holds the owned part of the column
// layout. Ghost values are exchanged first, so every rank must call it.
func (m *Matrix) Apply(dst, src []float64) error {
	if err := m.ensureAttached(); err != nil {
		return err
	}
	nOwned := m.halo.NumOwned
	if len(src) != nOwned || len(dst) != m.rows {
		return fmt.Errorf("apply %dx%d to %d values into %d: %w", m.rows, nOwned, len(src), len(dst), ErrDimension)
	}
	copy(m.colBuf, src)
	if err := m.halo.Exchange(src, m.colBuf[nOwned:]); err != nil {
		return fmt.Errorf("halo exchange: %w", err)
	}
	for i := 0; i < m.rows; i++ {
		var s float64
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			s += m.vals[k] * m.colBuf[m.localCol[k]]
		}
		dst[i] = s
	}
	return nil
}

// Residual updates d -= A·c
func (m *Matrix) Residual(d, c []float64) error {
	if err := m.ensureAttached(); err != nil {
		return err
	}
	if err := m.Apply(m.scratch, c); err != nil {
		return err
	}
	if len(d) != m.rows {
		return fmt.Errorf("defect of %d for %d rows: %w", len(d), m.rows, ErrDimension)
	}
	for i, v := range m.scratch {
		d[i] -= v
	}
	return nil
}

// localCSR renumbers the columns into the local column space
func (m *Matrix) localCSR() *sparse.CSR {
	ia := append([]int(nil), m.rowPtr...)
	ja := make([]int, len(m.localCol))
	data := make([]float64, len(m.vals))
	for i := 0; i < m.rows; i++ {
		lo, hi := m.rowPtr[i], m.rowPtr[i+1]
		row := make([]entry, 0, hi-lo)
		for k := lo; k < hi; k++ {
			row = append(row, entry{m.localCol[k], m.vals[k]})
		}
		sort.Slice(row, func(a, b int) bool { return row[a].col < row[b].col })
		for k, e := range row {
			ja[lo+k], data[lo+k] = e.col, e.val
		}
	}
	return sparse.NewCSR(m.rows, m.colSpace(), ia, ja, data)
}

// extendRows fetches the rows of p matching every position of m's local
// column space: p's owned rows followed by the rows of m's ghost columns.
// Collective.
func (m *Matrix) extendRows(p *Matrix) (partitions.RowBlock, error) {
	if p.rows != m.halo.NumOwned {
		return partitions.RowBlock{}, fmt.Errorf("%d rows to extend, column layout owns %d: %w",
			p.rows, m.halo.NumOwned, ErrDimension)
	}
	ghost, err := m.halo.ExchangeRows(p.RowBlock())
	if err != nil {
		return partitions.RowBlock{}, fmt.Errorf("ghost rows: %w", err)
	}
	ext := partitions.RowBlock{
		RowPtr: append([]int(nil), p.rowPtr...),
		Cols:   append(append([]int(nil), p.colIdx...), ghost.Cols...),
		Vals:   append(append([]float64(nil), p.vals...), ghost.Vals...),
	}
	base := len(p.colIdx)
	for _, off := range ghost.RowPtr[1:] {
		ext.RowPtr = append(ext.RowPtr, base+off)
	}
	return ext, nil
}

// mulExtended returns m·E where E holds one row per local column position of m
func (m *Matrix) mulExtended(ext partitions.RowBlock, cols int) *Matrix {
	if m.rows == 0 || m.colSpace() == 0 || cols == 0 {
		return Zero(m.rows, cols, m.rowOffset, m.blockSize)
	}
	e := sparse.NewCSR(ext.NumRows(), cols, ext.RowPtr, ext.Cols, ext.Vals)
	var prod sparse.CSR
	prod.Mul(m.localCSR(), e)
	return FromSparse(&prod, m.rowOffset, m.blockSize)
}

// Multiply returns m·b. The rows of b must be distributed like the columns of
// m; ghost rows are fetched from their owners. Collective.
func (m *Matrix) Multiply(b *Matrix) (*Matrix, error) {
	if err := m.ensureAttached(); err != nil {
		return nil, err
	}
	ext, err := m.extendRows(b)
	if err != nil {
		return nil, err
	}
	prod := m.mulExtended(ext, b.cols)
	prod.blockSize = b.blockSize
	return prod, nil
}

// TripleProduct computes the Galerkin operator R·A·P. A and R must be attached;
// P is distributed like the rows of A. The result is attached with its own rows
// as column layout. Collective.
func TripleProduct(R, A, P *Matrix) (*Matrix, error) {
	ap, err := A.Multiply(P)
	if err != nil {
		return nil, fmt.Errorf("A·P: %w", err)
	}
	rap, err := R.Multiply(ap)
	if err != nil {
		return nil, fmt.Errorf("R·AP: %w", err)
	}
	rap.blockSize = A.blockSize
	if err := rap.Attach(nil, R.Comm()); err != nil {
		return nil, fmt.Errorf("attach coarse operator: %w", err)
	}
	return rap, nil
}

// Transpose returns mᵀ with rows distributed like the columns of m. The result
// is attached to m's row layout. Collective.
func (m *Matrix) Transpose() (*Matrix, error) {
	if err := m.ensureAttached(); err != nil {
		return nil, err
	}
	comm := m.Comm()
	me := comm.Rank()
	lo, hi := m.colLayout.Range(me)
	bucket := make([][]entry, hi-lo)
	outgoing := make([]partitions.Message, comm.Size())
	for i := 0; i < m.rows; i++ {
		gi := m.rowOffset + i
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			j := m.colIdx[k]
			if j >= lo && j < hi {
				bucket[j-lo] = append(bucket[j-lo], entry{gi, m.vals[k]})
				continue
			}
			q := m.colLayout.Owner(j)
			outgoing[q].Ints = append(outgoing[q].Ints, j, gi)
			outgoing[q].Floats = append(outgoing[q].Floats, m.vals[k])
		}
	}
	if comm.Size() > 1 {
		for q := 0; q < comm.Size(); q++ {
			if q == me {
				continue
			}
			if err := comm.Send(q, partitions.TagTranspose, outgoing[q]); err != nil {
				return nil, err
			}
		}
		for p := 0; p < comm.Size(); p++ {
			if p == me {
				continue
			}
			msg, err := comm.Receive(p, partitions.TagTranspose)
			if err != nil {
				return nil, err
			}
			for k, v := range msg.Floats {
				j, gi := msg.Ints[2*k], msg.Ints[2*k+1]
				bucket[j-lo] = append(bucket[j-lo], entry{gi, v})
			}
		}
	}
	t := newFromBuckets(hi-lo, m.rowLayout.Global(), lo, m.blockSize, bucket)
	if err := t.Attach(m.rowLayout, comm); err != nil {
		return nil, fmt.Errorf("attach transpose: %w", err)
	}
	return t, nil
}

// Redistribute moves the rows of m to the layout r.To. colLayout is the
// column layout of the result. Collective.
func (m *Matrix) Redistribute(r *partitions.Redistribution, colLayout *partitions.Layout) (*Matrix, error) {
	comm := m.Comm()
	rows, err := r.ForwardRows(m.RowBlock())
	if err != nil {
		return nil, fmt.Errorf("move rows: %w", err)
	}
	lo, hi := r.To.Range(comm.Rank())
	bucket := make([][]entry, hi-lo)
	for i := 0; i < rows.NumRows(); i++ {
		for k := rows.RowPtr[i]; k < rows.RowPtr[i+1]; k++ {
			bucket[i] = append(bucket[i], entry{rows.Cols[k], rows.Vals[k]})
		}
	}
	out := newFromBuckets(hi-lo, m.cols, lo, m.blockSize, bucket)
	if err := out.Attach(colLayout, comm); err != nil {
		return nil, err
	}
	return out, nil
}
