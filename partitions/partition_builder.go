package partitions

import (
	"fmt"
	"math"
)

// LayoutBuilder distributes the unknowns of a linear system over processes
type LayoutBuilder struct {
	NumUnknowns int
	NumProcs    int
	BlockSize   int // unknowns per node, a node is never split across ranks

	// Optional per-node work estimate (e.g. nonzeros per row), used by WeightedPartition
	Weights []int

	Strategy PartitionStrategy
}

// PartitionStrategy defines how nodes are grouped onto ranks
type PartitionStrategy int

const (
	BlockPartition    PartitionStrategy = iota // Equal node counts, consecutive
	WeightedPartition                          // Consecutive, balanced by Weights
)

// BuildLayout creates the ownership layout
func (lb *LayoutBuilder) BuildLayout() (*Layout, error) {
	bs := lb.BlockSize
	if bs < 1 {
		bs = 1
	}
	if lb.NumProcs < 1 {
		return nil, fmt.Errorf("invalid process count %d", lb.NumProcs)
	}
	if lb.NumUnknowns%bs != 0 {
		return nil, fmt.Errorf("%d unknowns is not a multiple of block size %d", lb.NumUnknowns, bs)
	}
	numNodes := lb.NumUnknowns / bs

	var nodeCounts []int
	switch lb.Strategy {
	case WeightedPartition:
		if len(lb.Weights) != numNodes {
			return nil, fmt.Errorf("weights length %d does not match %d nodes", len(lb.Weights), numNodes)
		}
		nodeCounts = lb.partitionWeighted(numNodes)
	default:
		nodeCounts = lb.partitionBlocks(numNodes)
	}

	counts := make([]int, lb.NumProcs)
	for p, c := range nodeCounts {
		counts[p] = c * bs
	}
	layout := NewLayout(counts)
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}
	return layout, nil
}

// BlockLayout partitions n unknowns in whole nodes of blockSize over nprocs ranks
func BlockLayout(n, nprocs, blockSize int) (*Layout, error) {
	lb := &LayoutBuilder{NumUnknowns: n, NumProcs: nprocs, BlockSize: blockSize}
	return lb.BuildLayout()
}

// partitionBlocks gives each rank ceil(n/P) nodes until nodes run out
func (lb *LayoutBuilder) partitionBlocks(numNodes int) []int {
	counts := make([]int, lb.NumProcs)
	nodesPerProc := int(math.Ceil(float64(numNodes) / float64(lb.NumProcs)))
	remaining := numNodes
	for p := range counts {
		c := nodesPerProc
		if c > remaining {
			c = remaining
		}
		counts[p] = c
		remaining -= c
	}
	return counts
}

// partitionWeighted cuts the node sequence where the running weight crosses
// multiples of total/P
func (lb *LayoutBuilder) partitionWeighted(numNodes int) []int {
	counts := make([]int, lb.NumProcs)
	total := 0
	for _, w := range lb.Weights {
		total += w
	}
	if total <= 0 {
		return lb.partitionBlocks(numNodes)
	}
	target := float64(total) / float64(lb.NumProcs)
	p, acc := 0, 0
	for i := 0; i < numNodes; i++ {
		if p < lb.NumProcs-1 && float64(acc) >= target*float64(p+1) {
			p++
		}
		counts[p]++
		acc += lb.Weights[i]
	}
	return counts
}

// LayoutStatistics computes load balance metrics
func (l *Layout) LayoutStatistics() LayoutStats {
	stats := LayoutStats{
		NumProcs: l.NumProcs(),
		MinOwned: math.MaxInt32,
		AvgOwned: float64(l.Global()) / float64(l.NumProcs()),
	}
	for p := 0; p < l.NumProcs(); p++ {
		n := l.LocalSize(p)
		if n < stats.MinOwned {
			stats.MinOwned = n
		}
		if n > stats.MaxOwned {
			stats.MaxOwned = n
		}
	}
	if stats.AvgOwned > 0 {
		stats.Imbalance = float64(stats.MaxOwned) / stats.AvgOwned
	}
	return stats
}

type LayoutStats struct {
	NumProcs  int
	MinOwned  int
	MaxOwned  int
	AvgOwned  float64
	Imbalance float64 // MaxOwned / AvgOwned
}
