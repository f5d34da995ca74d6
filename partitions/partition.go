package partitions

import (
	"fmt"
	"sort"
)

// Layout describes which process owns which unknowns of a globally numbered
// index set. Ownership is contiguous and ordered by rank: rank p owns
// [Offsets[p], Offsets[p+1]).
type Layout struct {
	Offsets []int
}

// NewLayout builds a layout from the number of unknowns owned by each rank
func NewLayout(counts []int) *Layout {
	offsets := make([]int, len(counts)+1)
	for p, c := range counts {
		offsets[p+1] = offsets[p] + c
	}
	return &Layout{Offsets: offsets}
}

// GatherLayout builds the layout collectively from each rank's local count
func GatherLayout(comm Communicator, localCount int) (*Layout, error) {
	counts, err := OrSerial(comm).AllGather(localCount)
	if err != nil {
		return nil, fmt.Errorf("gather layout: %w", err)
	}
	return NewLayout(counts), nil
}

// NumProcs is the number of ranks described by the layout
func (l *Layout) NumProcs() int { return len(l.Offsets) - 1 }

// Global is the total number of unknowns
func (l *Layout) Global() int { return l.Offsets[len(l.Offsets)-1] }

// Range returns the half-open global index range owned by rank p
func (l *Layout) Range(p int) (lo, hi int) {
	return l.Offsets[p], l.Offsets[p+1]
}

// LocalSize returns the number of unknowns owned by rank p
func (l *Layout) LocalSize(p int) int {
	return l.Offsets[p+1] - l.Offsets[p]
}

// Owner returns the rank owning global index g, or -1 if out of range
func (l *Layout) Owner(g int) int {
	if g < 0 || g >= l.Global() {
		return -1
	}
	// first offset strictly greater than g, minus one
	p := sort.Search(len(l.Offsets), func(i int) bool { return l.Offsets[i] > g }) - 1
	return p
}

// Owns reports whether rank p owns global index g
func (l *Layout) Owns(p, g int) bool {
	return g >= l.Offsets[p] && g < l.Offsets[p+1]
}

// Active returns the ranks that own at least one unknown
func (l *Layout) Active() []int {
	var ranks []int
	for p := 0; p < l.NumProcs(); p++ {
		if l.LocalSize(p) > 0 {
			ranks = append(ranks, p)
		}
	}
	return ranks
}

// Agglomerate returns the layout after merging ranks onto masters. mapping
// sends each merged rank to its master; ranks absent from the mapping keep
// their own unknowns. Masters must be the lowest rank of a contiguous run of
// merged ranks, so the result stays contiguous.
func (l *Layout) Agglomerate(mapping map[int]int) (*Layout, error) {
	counts := make([]int, l.NumProcs())
	for p := 0; p < l.NumProcs(); p++ {
		target := p
		if m, ok := mapping[p]; ok {
			target = m
		}
		if target < 0 || target >= l.NumProcs() {
			return nil, fmt.Errorf("agglomerate rank %d onto %d: %w", p, target, ErrInvalidRank)
		}
		counts[target] += l.LocalSize(p)
	}
	nl := NewLayout(counts)
	// every unknown must keep its global number
	for p := 0; p < l.NumProcs(); p++ {
		lo, hi := l.Range(p)
		if lo == hi {
			continue
		}
		target := p
		if m, ok := mapping[p]; ok {
			target = m
		}
		if nl.Owner(lo) != target || nl.Owner(hi-1) != target {
			return nil, fmt.Errorf("agglomeration of rank %d onto %d is not contiguous", p, target)
		}
	}
	if err := nl.Validate(); err != nil {
		return nil, err
	}
	return nl, nil
}

// Validate checks layout consistency
func (l *Layout) Validate() error {
	if len(l.Offsets) < 2 {
		return fmt.Errorf("layout needs at least one rank, have %d offsets", len(l.Offsets))
	}
	if l.Offsets[0] != 0 {
		return fmt.Errorf("layout must start at 0, starts at %d", l.Offsets[0])
	}
	for p := 0; p < l.NumProcs(); p++ {
		if l.Offsets[p+1] < l.Offsets[p] {
			return fmt.Errorf("rank %d: offsets decrease (%d > %d)",
				p, l.Offsets[p], l.Offsets[p+1])
		}
	}
	return nil
}

// ProcessGroup is the set of ranks that hold unknowns on one level of a
// hierarchy. It is a plain value: merging returns a new group and leaves the
// communicator untouched, so ranks outside the group still take part in
// collectives with empty data.
type ProcessGroup struct {
	Members []int
}

// GroupOf returns the ranks of a layout that own unknowns
func GroupOf(l *Layout) ProcessGroup {
	return ProcessGroup{Members: l.Active()}
}

// Size is the number of member ranks
func (g ProcessGroup) Size() int { return len(g.Members) }

// Contains reports whether rank is a member
func (g ProcessGroup) Contains(rank int) bool {
	for _, m := range g.Members {
		if m == rank {
			return true
		}
	}
	return false
}

// Master returns the lowest member, the natural owner of collected data
func (g ProcessGroup) Master() int {
	if len(g.Members) == 0 {
		return 0
	}
	return g.Members[0]
}

// Merge splits the members into k contiguous chunks and merges each chunk onto
// its first member. It returns the group of masters and the member-to-master
// mapping.
func (g ProcessGroup) Merge(k int) (ProcessGroup, map[int]int) {
	n := len(g.Members)
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	mapping := make(map[int]int, n)
	masters := make([]int, 0, k)
	if n == 0 {
		return ProcessGroup{}, mapping
	}
	chunk := (n + k - 1) / k
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		master := g.Members[start]
		masters = append(masters, master)
		for _, m := range g.Members[start:end] {
			mapping[m] = master
		}
	}
	return ProcessGroup{Members: masters}, mapping
}
