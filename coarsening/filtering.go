package coarsening

import (
	"fmt"
	"math"
	"sort"

	"github.com/notargets/DGAMG/algebra"
)

// MaxParents bounds the interpolation stencil of a fine node
const MaxParents = 2

// TestVector returns the value of a test function at a global node index
type TestVector func(node int) float64

// Constant is the default test vector
func Constant(int) float64 { return 1 }

// Filtering is a FAMG-style coarsening. Interpolation reproduces a right test
// vector exactly using at most MaxParents coarse neighbours; restriction is
// built independently from the couplings of Aᵀ and a left test vector.
type Filtering struct {
	Theta float64
	Right TestVector // Constant when nil
	Left  TestVector // Constant when nil
}

func (f *Filtering) Name() string { return "filtering" }

func (f *Filtering) vectors() (TestVector, TestVector) {
	r, l := f.Right, f.Left
	if r == nil {
		r = Constant
	}
	if l == nil {
		l = Constant
	}
	return r, l
}

func (f *Filtering) Coarsen(A *algebra.Matrix) (*Result, error) {
	comm := A.Comm()
	theta := f.Theta
	if theta == 0 {
		theta = DefaultTheta
	}
	sg, err := NewStrengthGraph(A, theta)
	if err != nil {
		return nil, err
	}
	right, left := f.vectors()
	n := sg.NumNodes()
	bs := A.BlockSize()
	firstNode := A.RowOffset() / bs

	tags := independentSet(sg)
	parents := make([][]int, n)
	for i := 0; i < n; i++ {
		if tags[i] != Fine || len(sg.Strong(i)) == 0 {
			continue
		}
		parents[i] = strongestCoarse(sg, tags, i)
		if len(parents[i]) == 0 {
			tags[i] = Coarse
		}
	}

	cn, err := numberCoarse(comm, tags, bs)
	if err != nil {
		return nil, err
	}
	if err := checkProgress(comm, sg, cn); err != nil {
		return nil, err
	}

	// weights from the row couplings for P and from the column couplings for R
	pw := make([][]float64, n)
	rw := make([][]float64, n)
	for i := 0; i < n; i++ {
		if tags[i] == Coarse {
			parents[i] = []int{i}
			pw[i], rw[i] = []float64{1}, []float64{1}
			continue
		}
		if len(parents[i]) == 0 {
			continue
		}
		pw[i] = testWeights(parents[i], firstNode+i, firstNode, right, func(j int) float64 {
			return nodeCoupling(A, i, firstNode+j)
		})
		rw[i] = testWeights(parents[i], firstNode+i, firstNode, left, func(j int) float64 {
			return nodeCoupling(A, j, firstNode+i)
		})
		if pw[i] == nil || rw[i] == nil {
			return nil, fmt.Errorf("%w: node %d has no positive coupling to its parents",
				ErrDegenerate, firstNode+i)
		}
	}

	P := interpolation(A, cn, parents, pw)
	Q := interpolation(A, cn, parents, rw)
	if err := Q.Attach(cn.layout, comm); err != nil {
		return nil, fmt.Errorf("attach restriction weights: %w", err)
	}
	R, err := Q.Transpose()
	if err != nil {
		return nil, fmt.Errorf("restriction: %w", err)
	}
	return &Result{Tags: tags, P: P, R: R, CoarseLayout: cn.layout, NumCoarse: cn.global * bs}, nil
}

// nodeCoupling is -a_ij for scalar matrices and the Frobenius norm of block
// (i,j) otherwise. i is a local node, j a global node.
func nodeCoupling(A *algebra.Matrix, i, j int) float64 {
	bs := A.BlockSize()
	if bs == 1 {
		return -A.At(i, j)
	}
	s := 0.0
	for r := 0; r < bs; r++ {
		for c := 0; c < bs; c++ {
			v := A.At(i*bs+r, j*bs+c)
			s += v * v
		}
	}
	return math.Sqrt(s)
}

// testWeights returns w_ij = t_i·c_ij / Σ_k c_ik·t_k over the parents, which
// makes the interpolated test vector exact at node i. Nil when the
// denominator vanishes.
func testWeights(parents []int, gi, firstNode int, t TestVector, c func(j int) float64) []float64 {
	den := 0.0
	for _, j := range parents {
		den += c(j) * t(firstNode+j)
	}
	if den == 0 {
		return nil
	}
	w := make([]float64, len(parents))
	for k, j := range parents {
		w[k] = t(gi) * c(j) / den
	}
	return w
}

// independentSet visits nodes by decreasing strong degree and makes every
// node coarse whose strong neighbours are all still undecided
func independentSet(sg *StrengthGraph) []NodeTag {
	n := sg.NumNodes()
	tags := make([]NodeTag, n)
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if sg.IsIsolated(i) {
			tags[i] = Fine
			continue
		}
		order = append(order, i)
	}
	degree := func(i int) int { return len(sg.Strong(i)) + len(sg.Influences(i)) }
	sort.SliceStable(order, func(a, b int) bool { return degree(order[a]) > degree(order[b]) })
	for _, i := range order {
		if tags[i] != Undecided {
			continue
		}
		tags[i] = Coarse
		for _, j := range sg.Influences(i) {
			if tags[j] == Undecided {
				tags[j] = Fine
			}
		}
		for _, j := range sg.Strong(i) {
			if tags[j] == Undecided {
				tags[j] = Fine
			}
		}
	}
	return tags
}

// strongestCoarse picks up to MaxParents strong coarse neighbours of node i,
// strongest first, lowest index among equals
func strongestCoarse(sg *StrengthGraph, tags []NodeTag, i int) []int {
	type cand struct {
		node int
		c    float64
	}
	var cs []cand
	for k, j := range sg.Strong(i) {
		if tags[j] == Coarse {
			cs = append(cs, cand{j, sg.Coupling(i)[k]})
		}
	}
	sort.SliceStable(cs, func(a, b int) bool { return cs[a].c > cs[b].c })
	if len(cs) > MaxParents {
		cs = cs[:MaxParents]
	}
	parents := make([]int, len(cs))
	for k, c := range cs {
		parents[k] = c.node
	}
	sort.Ints(parents)
	return parents
}

var _ Strategy = (*Filtering)(nil)
