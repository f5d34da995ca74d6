// Package coarsening selects coarse nodes and builds the transfer operators
// between two levels of an algebraic multigrid hierarchy.
package coarsening

import (
	"errors"
	"fmt"

	"github.com/notargets/DGAMG/algebra"
	"github.com/notargets/DGAMG/partitions"
)

// ErrDegenerate is returned when a non-trivial level yields no usable coarse set
var ErrDegenerate = errors.New("coarsening: degenerate strength graph")

// NodeTag classifies a node of the fine level
type NodeTag uint8

const (
	Undecided NodeTag = iota
	Fine
	Coarse
)

func (t NodeTag) String() string {
	switch t {
	case Fine:
		return "F"
	case Coarse:
		return "C"
	}
	return "U"
}

// Result is the output of one coarsening step
type Result struct {
	Tags []NodeTag // one per local node

	// P maps coarse to fine unknowns: local fine rows, global coarse columns
	P *algebra.Matrix
	// R maps fine to coarse unknowns, attached to CoarseLayout rows. Nil means R = Pᵀ.
	R *algebra.Matrix

	CoarseLayout *partitions.Layout // distribution of the coarse unknowns
	NumCoarse    int                // global coarse unknowns
}

// RestrictionIsTranspose reports whether the hierarchy must build R = Pᵀ itself
func (r *Result) RestrictionIsTranspose() bool { return r.R == nil }

// Strategy is the pluggable coarsening and interpolation algorithm
type Strategy interface {
	// Coarsen is collective over the communicator of A, which must be attached
	Coarsen(A *algebra.Matrix) (*Result, error)
	Name() string
}

// coarseNumbering assigns global coarse node indices. Local coarse nodes are
// numbered in node order after the coarse nodes of lower ranks.
type coarseNumbering struct {
	index      []int // local node -> global coarse node, -1 for fine nodes
	localCount int
	layout     *partitions.Layout // in unknowns
	global     int                // in nodes
}

func numberCoarse(comm partitions.Communicator, tags []NodeTag, blockSize int) (*coarseNumbering, error) {
	cn := &coarseNumbering{index: make([]int, len(tags))}
	for _, t := range tags {
		if t == Coarse {
			cn.localCount++
		}
	}
	counts, err := comm.AllGather(cn.localCount)
	if err != nil {
		return nil, fmt.Errorf("gather coarse counts: %w", err)
	}
	offset := 0
	unknowns := make([]int, len(counts))
	for p, c := range counts {
		if p < comm.Rank() {
			offset += c
		}
		cn.global += c
		unknowns[p] = c * blockSize
	}
	cn.layout = partitions.NewLayout(unknowns)
	next := offset
	for i, t := range tags {
		cn.index[i] = -1
		if t == Coarse {
			cn.index[i] = next
			next++
		}
	}
	return cn, nil
}

// checkProgress fails the step when no coarse node exists or the level does not shrink
func checkProgress(comm partitions.Communicator, sg *StrengthGraph, cn *coarseNumbering) error {
	fine, err := partitions.AllReduceInts(comm, []int{sg.NumNodes()}, partitions.Sum)
	if err != nil {
		return err
	}
	if cn.global == 0 || cn.global >= fine[0] {
		comps, isolated := sg.Components()
		return fmt.Errorf("%w: %d coarse of %d nodes (rank %d: %d strength components, %d isolated nodes)",
			ErrDegenerate, cn.global, fine[0], comm.Rank(), comps, isolated)
	}
	return nil
}

// interpolation assembles P from per-node parent weights. A node with an empty
// parent list gets an empty row.
func interpolation(A *algebra.Matrix, cn *coarseNumbering, parents [][]int, weights [][]float64) *algebra.Matrix {
	bs := A.BlockSize()
	b := algebra.NewBuilder(A.Rows(), cn.global*bs).
		WithRowOffset(A.RowOffset()).
		WithBlockSize(bs)
	for node := range parents {
		for k, parent := range parents[node] {
			for r := 0; r < bs; r++ {
				b.Add(node*bs+r, cn.index[parent]*bs+r, weights[node][k])
			}
		}
	}
	return b.Build()
}
