package coarsening

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/notargets/DGAMG/algebra"
)

// DefaultTheta is the classical strength threshold
const DefaultTheta = 0.25

// StrengthGraph records which local nodes each node strongly depends on.
// Couplings to nodes of other ranks are never strong, so coarsening stays
// process-local.
type StrengthGraph struct {
	Theta float64

	strong     [][]int     // S_i: nodes that i strongly depends on
	coupling   [][]float64 // positive coupling strength, parallel to strong
	influences [][]int     // S_i transposed: nodes that strongly depend on i
}

// NewStrengthGraph evaluates -a_ij ≥ θ·max_k(-a_ik) for scalar matrices and
// ‖A_IJ‖_F ≥ θ·max_K ‖A_IK‖_F between the nodes of block matrices.
func NewStrengthGraph(A *algebra.Matrix, theta float64) (*StrengthGraph, error) {
	if theta <= 0 || theta > 1 {
		return nil, fmt.Errorf("strength threshold %g outside (0,1]", theta)
	}
	bs := A.BlockSize()
	if A.Rows()%bs != 0 {
		return nil, fmt.Errorf("%d rows with block size %d: %w", A.Rows(), bs, algebra.ErrDimension)
	}
	n := A.Rows() / bs
	sg := &StrengthGraph{
		Theta:      theta,
		strong:     make([][]int, n),
		coupling:   make([][]float64, n),
		influences: make([][]int, n),
	}
	firstNode := A.RowOffset() / bs

	for i := 0; i < n; i++ {
		// coupling of node i to every other node, local or not
		c := make(map[int]float64)
		for r := 0; r < bs; r++ {
			cols, vals := A.Row(i*bs + r)
			for k, col := range cols {
				j := col / bs
				if j == firstNode+i {
					continue
				}
				if bs == 1 {
					c[j] += -vals[k]
				} else {
					c[j] += vals[k] * vals[k]
				}
			}
		}
		maxC := 0.0
		for j, v := range c {
			if bs > 1 {
				v = math.Sqrt(v)
				c[j] = v
			}
			maxC = math.Max(maxC, v)
		}
		if maxC <= 0 {
			continue
		}
		local := make([]int, 0, len(c))
		for g := range c {
			if j := g - firstNode; j >= 0 && j < n {
				local = append(local, j)
			}
		}
		sort.Ints(local)
		for _, j := range local {
			v := c[firstNode+j]
			if v <= 0 || v < theta*maxC {
				continue
			}
			sg.strong[i] = append(sg.strong[i], j)
			sg.coupling[i] = append(sg.coupling[i], v)
			sg.influences[j] = append(sg.influences[j], i)
		}
	}
	return sg, nil
}

func (sg *StrengthGraph) NumNodes() int { return len(sg.strong) }

// Strong returns the local nodes i strongly depends on, in increasing order
func (sg *StrengthGraph) Strong(i int) []int { return sg.strong[i] }

// Coupling returns the coupling strengths matching Strong(i)
func (sg *StrengthGraph) Coupling(i int) []float64 { return sg.coupling[i] }

// Influences returns the local nodes strongly depending on i
func (sg *StrengthGraph) Influences(i int) []int { return sg.influences[i] }

// IsIsolated reports a node without strong couplings in either direction
func (sg *StrengthGraph) IsIsolated(i int) bool {
	return len(sg.strong[i]) == 0 && len(sg.influences[i]) == 0
}

// Components counts the connected components of the symmetrized strength
// graph and the isolated nodes among them
func (sg *StrengthGraph) Components() (components, isolated int) {
	g := simple.NewUndirectedGraph()
	for i := range sg.strong {
		g.AddNode(simple.Node(i))
	}
	for i, s := range sg.strong {
		for _, j := range s {
			g.SetEdge(g.NewEdge(simple.Node(i), simple.Node(j)))
		}
	}
	for _, cc := range topo.ConnectedComponents(g) {
		components++
		if len(cc) == 1 {
			isolated++
		}
	}
	return components, isolated
}
