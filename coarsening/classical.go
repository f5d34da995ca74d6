package coarsening

import (
	"container/heap"
	"fmt"

	"github.com/notargets/DGAMG/algebra"
)

// Classical is Ruge-Stüben coarsening with direct interpolation. The first
// pass picks a maximal independent set by influence measure; the second pass
// promotes fine nodes that would have no strong coarse neighbour.
type Classical struct {
	Theta float64 // strength threshold, DefaultTheta when zero
}

func (c *Classical) Name() string { return "classical" }

func (c *Classical) theta() float64 {
	if c.Theta == 0 {
		return DefaultTheta
	}
	return c.Theta
}

func (c *Classical) Coarsen(A *algebra.Matrix) (*Result, error) {
	comm := A.Comm()
	sg, err := NewStrengthGraph(A, c.theta())
	if err != nil {
		return nil, err
	}
	tags := firstPass(sg)
	secondPass(sg, tags)

	cn, err := numberCoarse(comm, tags, A.BlockSize())
	if err != nil {
		return nil, err
	}
	if err := checkProgress(comm, sg, cn); err != nil {
		return nil, err
	}

	n := sg.NumNodes()
	parents := make([][]int, n)
	weights := make([][]float64, n)
	for i := 0; i < n; i++ {
		switch {
		case tags[i] == Coarse:
			parents[i], weights[i] = []int{i}, []float64{1}
		case len(sg.Strong(i)) > 0:
			parents[i], weights[i] = directWeights(sg, tags, i)
		}
	}
	P := interpolation(A, cn, parents, weights)
	return &Result{Tags: tags, P: P, CoarseLayout: cn.layout, NumCoarse: cn.global * A.BlockSize()}, nil
}

// directWeights normalizes the strong couplings to coarse nodes of node i
func directWeights(sg *StrengthGraph, tags []NodeTag, i int) ([]int, []float64) {
	var parents []int
	var w []float64
	sum := 0.0
	for k, j := range sg.Strong(i) {
		if tags[j] != Coarse {
			continue
		}
		parents = append(parents, j)
		w = append(w, sg.Coupling(i)[k])
		sum += sg.Coupling(i)[k]
	}
	for k := range w {
		w[k] /= sum
	}
	return parents, w
}

// firstPass selects coarse nodes in order of decreasing measure, the number
// of undecided nodes strongly depending on a node. Ties go to the lowest index.
func firstPass(sg *StrengthGraph) []NodeTag {
	n := sg.NumNodes()
	tags := make([]NodeTag, n)
	measure := make([]int, n)
	pq := &measureQueue{}
	for i := 0; i < n; i++ {
		if sg.IsIsolated(i) {
			tags[i] = Fine
			continue
		}
		measure[i] = len(sg.Influences(i))
		heap.Push(pq, measureItem{node: i, measure: measure[i]})
	}
	for pq.Len() > 0 {
		it := heap.Pop(pq).(measureItem)
		i := it.node
		if tags[i] != Undecided || it.measure != measure[i] {
			continue
		}
		tags[i] = Coarse
		for _, j := range sg.Influences(i) {
			if tags[j] != Undecided {
				continue
			}
			tags[j] = Fine
			for _, k := range sg.Strong(j) {
				if tags[k] == Undecided {
					measure[k]++
					heap.Push(pq, measureItem{node: k, measure: measure[k]})
				}
			}
		}
		for _, j := range sg.Strong(i) {
			if tags[j] == Undecided && measure[j] > 0 {
				measure[j]--
				heap.Push(pq, measureItem{node: j, measure: measure[j]})
			}
		}
	}
	return tags
}

// secondPass promotes fine nodes with strong couplings but no strong coarse neighbour
func secondPass(sg *StrengthGraph, tags []NodeTag) {
	for i := range tags {
		if tags[i] != Fine || len(sg.Strong(i)) == 0 {
			continue
		}
		hasCoarse := false
		for _, j := range sg.Strong(i) {
			if tags[j] == Coarse {
				hasCoarse = true
				break
			}
		}
		if !hasCoarse {
			tags[i] = Coarse
		}
	}
}

type measureItem struct {
	node, measure int
}

// measureQueue is a max-heap on measure, lowest node first among equals.
// Stale entries stay in the heap and are skipped when popped.
type measureQueue []measureItem

func (q measureQueue) Len() int { return len(q) }
func (q measureQueue) Less(a, b int) bool {
	if q[a].measure != q[b].measure {
		return q[a].measure > q[b].measure
	}
	return q[a].node < q[b].node
}
func (q measureQueue) Swap(a, b int) { q[a], q[b] = q[b], q[a] }
func (q *measureQueue) Push(x any)   { *q = append(*q, x.(measureItem)) }
func (q *measureQueue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}

// Tagging returns a compact F/C string of the tags, for logs and tests
func Tagging(tags []NodeTag) string {
	b := make([]byte, len(tags))
	for i, t := range tags {
		b[i] = t.String()[0]
	}
	return string(b)
}

var _ Strategy = (*Classical)(nil)

func (c *Classical) String() string { return fmt.Sprintf("classical(theta=%g)", c.theta()) }
