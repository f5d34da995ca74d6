package algebra

import (
	"fmt"

	"github.com/notargets/DGAMG/partitions"
)

// MinMaxSum is one statistic reduced over all ranks
type MinMaxSum struct {
	Min, Max, Sum int
}

// Stats describes the distribution of a matrix over the ranks
type Stats struct {
	Rows      MinMaxSum
	NNZ       MinMaxSum
	MaxRowNNZ int
	Active    int // ranks owning at least one row
}

// Fill is the global ratio of nonzeros to the dense entry count
func (s Stats) Fill() float64 {
	if s.Rows.Sum == 0 {
		return 0
	}
	n := float64(s.Rows.Sum)
	return float64(s.NNZ.Sum) / (n * n)
}

// Statistics reduces row and nonzero counts over all ranks. Collective.
func (m *Matrix) Statistics() (Stats, error) {
	comm := m.Comm()
	active := 0
	if m.rows > 0 {
		active = 1
	}
	local := []int{m.rows, m.NNZ(), active}
	sum, err := partitions.AllReduceInts(comm, local, partitions.Sum)
	if err != nil {
		return Stats{}, fmt.Errorf("sum: %w", err)
	}
	mn, err := partitions.AllReduceInts(comm, local[:2], partitions.Min)
	if err != nil {
		return Stats{}, fmt.Errorf("min: %w", err)
	}
	mx, err := partitions.AllReduceInts(comm, []int{m.rows, m.NNZ(), m.MaxRowNNZ()}, partitions.Max)
	if err != nil {
		return Stats{}, fmt.Errorf("max: %w", err)
	}
	return Stats{
		Rows:      MinMaxSum{Min: mn[0], Max: mx[0], Sum: sum[0]},
		NNZ:       MinMaxSum{Min: mn[1], Max: mx[1], Sum: sum[1]},
		MaxRowNNZ: mx[2],
		Active:    sum[2],
	}, nil
}
