package partitions

import (
	"fmt"
	"sort"
)

// HaloConnector manages pick and place indices for the ghost (halo) unknowns
// of a distributed vector. A rank picks owned values requested by its
// neighbours and places received values into its ghost buffer.
type HaloConnector struct {
	Rank     int
	NumProcs int
	NumOwned int
	Ghosts   []int // Global indices of ghost unknowns, sorted

	// Pick/Place indices per peer
	PickIndices  []PickBuffer  // [targetRank] local owned indices to send
	PlaceIndices []PlaceBuffer // [sourceRank] positions in the ghost buffer

	comm Communicator
}

// PickBuffer contains indices for gathering values to send
type PickBuffer struct {
	Indices    []int // Local owned indices
	TargetRank int
}

// PlaceBuffer contains indices for scattering received values
type PlaceBuffer struct {
	Indices    []int // Ghost buffer positions
	SourceRank int
}

// NewHaloConnector builds the exchange pattern collectively. Every rank of the
// world must call it, including ranks that need no ghosts.
func NewHaloConnector(comm Communicator, layout *Layout, ghosts []int) (*HaloConnector, error) {
	comm = OrSerial(comm)
	if layout.NumProcs() != comm.Size() {
		return nil, fmt.Errorf("layout has %d ranks, world has %d", layout.NumProcs(), comm.Size())
	}
	hc := &HaloConnector{
		Rank:     comm.Rank(),
		NumProcs: comm.Size(),
		NumOwned: layout.LocalSize(comm.Rank()),
		Ghosts:   append([]int(nil), ghosts...),
		comm:     comm,
	}
	sort.Ints(hc.Ghosts)
	hc.initializeBuffers()

	// Group requests by owner
	requests := make([][]int, hc.NumProcs)
	for pos, g := range hc.Ghosts {
		owner := layout.Owner(g)
		if owner < 0 {
			return nil, fmt.Errorf("ghost %d outside of layout (global size %d)", g, layout.Global())
		}
		if owner == hc.Rank {
			return nil, fmt.Errorf("ghost %d is owned by this rank %d", g, hc.Rank)
		}
		requests[owner] = append(requests[owner], g)
		hc.PlaceIndices[owner].Indices = append(hc.PlaceIndices[owner].Indices, pos)
	}

	if hc.NumProcs == 1 {
		return hc, nil
	}

	// Every rank tells every peer which of its unknowns it needs
	for q := 0; q < hc.NumProcs; q++ {
		if q == hc.Rank {
			continue
		}
		if err := comm.Send(q, TagHaloSetup, Message{Ints: requests[q]}); err != nil {
			return nil, fmt.Errorf("halo setup send to %d: %w", q, err)
		}
	}
	lo, _ := layout.Range(hc.Rank)
	for q := 0; q < hc.NumProcs; q++ {
		if q == hc.Rank {
			continue
		}
		msg, err := comm.Receive(q, TagHaloSetup)
		if err != nil {
			return nil, fmt.Errorf("halo setup receive from %d: %w", q, err)
		}
		for _, g := range msg.Ints {
			if !layout.Owns(hc.Rank, g) {
				return nil, fmt.Errorf("rank %d requested %d which rank %d does not own", q, g, hc.Rank)
			}
			hc.PickIndices[q].Indices = append(hc.PickIndices[q].Indices, g-lo)
		}
	}
	return hc, nil
}

// initializeBuffers creates empty pick and place buffer structures
func (hc *HaloConnector) initializeBuffers() {
	hc.PickIndices = make([]PickBuffer, hc.NumProcs)
	hc.PlaceIndices = make([]PlaceBuffer, hc.NumProcs)
	for q := 0; q < hc.NumProcs; q++ {
		hc.PickIndices[q] = PickBuffer{TargetRank: q}
		hc.PlaceIndices[q] = PlaceBuffer{SourceRank: q}
	}
}

// NumGhosts returns the ghost buffer length
func (hc *HaloConnector) NumGhosts() int { return len(hc.Ghosts) }

// InterfaceElements counts the unknowns on this rank's send and receive interfaces
func (hc *HaloConnector) InterfaceElements() int {
	n := 0
	for q := 0; q < hc.NumProcs; q++ {
		n += len(hc.PickIndices[q].Indices) + len(hc.PlaceIndices[q].Indices)
	}
	return n
}

// Neighbours returns the ranks this rank exchanges data with
func (hc *HaloConnector) Neighbours() []int {
	var n []int
	for q := 0; q < hc.NumProcs; q++ {
		if len(hc.PickIndices[q].Indices) > 0 || len(hc.PlaceIndices[q].Indices) > 0 {
			n = append(n, q)
		}
	}
	return n
}

// Exchange fills ghost from the owned values of the neighbouring ranks. It
// blocks until every expected message has arrived.
func (hc *HaloConnector) Exchange(owned, ghost []float64) error {
	if len(owned) != hc.NumOwned {
		return fmt.Errorf("owned vector length %d, expected %d", len(owned), hc.NumOwned)
	}
	if len(ghost) != len(hc.Ghosts) {
		return fmt.Errorf("ghost vector length %d, expected %d", len(ghost), len(hc.Ghosts))
	}
	// Phase 1: Pick and send
	for q := 0; q < hc.NumProcs; q++ {
		pick := hc.PickIndices[q].Indices
		if len(pick) == 0 {
			continue
		}
		buf := make([]float64, len(pick))
		for i, idx := range pick {
			buf[i] = owned[idx]
		}
		if err := hc.comm.Send(q, TagHalo, Message{Floats: buf}); err != nil {
			return err
		}
	}
	// Phase 2: Receive and place
	for q := 0; q < hc.NumProcs; q++ {
		place := hc.PlaceIndices[q].Indices
		if len(place) == 0 {
			continue
		}
		msg, err := hc.comm.Receive(q, TagHalo)
		if err != nil {
			return err
		}
		if len(msg.Floats) != len(place) {
			return fmt.Errorf("rank %d sent %d values, expected %d", q, len(msg.Floats), len(place))
		}
		for i, idx := range place {
			ghost[idx] = msg.Floats[i]
		}
	}
	return nil
}

// RowBlock is a set of sparse rows in CSR form with global column indices
type RowBlock struct {
	RowPtr []int
	Cols   []int
	Vals   []float64
}

// NumRows returns the row count of the block
func (rb RowBlock) NumRows() int {
	if len(rb.RowPtr) == 0 {
		return 0
	}
	return len(rb.RowPtr) - 1
}

func (rb RowBlock) pack(rows []int) Message {
	ints := make([]int, 0, 2*len(rows))
	var vals []float64
	for _, r := range rows {
		lo, hi := rb.RowPtr[r], rb.RowPtr[r+1]
		ints = append(ints, hi-lo)
		ints = append(ints, rb.Cols[lo:hi]...)
		vals = append(vals, rb.Vals[lo:hi]...)
	}
	return Message{Ints: ints, Floats: vals}
}

// unpack appends the rows of msg to rb
func (rb *RowBlock) unpack(msg Message, nrows int) error {
	if len(rb.RowPtr) == 0 {
		rb.RowPtr = []int{0}
	}
	pos, vpos := 0, 0
	for r := 0; r < nrows; r++ {
		if pos >= len(msg.Ints) {
			return fmt.Errorf("row message truncated at row %d", r)
		}
		n := msg.Ints[pos]
		pos++
		if pos+n > len(msg.Ints) || vpos+n > len(msg.Floats) {
			return fmt.Errorf("row message truncated in row %d", r)
		}
		rb.Cols = append(rb.Cols, msg.Ints[pos:pos+n]...)
		rb.Vals = append(rb.Vals, msg.Floats[vpos:vpos+n]...)
		pos += n
		vpos += n
		rb.RowPtr = append(rb.RowPtr, len(rb.Cols))
	}
	return nil
}

// ExchangeRows fetches the sparse rows belonging to the ghost unknowns. The
// returned block has one row per ghost, in ghost order.
func (hc *HaloConnector) ExchangeRows(owned RowBlock) (RowBlock, error) {
	if owned.NumRows() != hc.NumOwned {
		return RowBlock{}, fmt.Errorf("owned block has %d rows, expected %d", owned.NumRows(), hc.NumOwned)
	}
	for q := 0; q < hc.NumProcs; q++ {
		pick := hc.PickIndices[q].Indices
		if len(pick) == 0 {
			continue
		}
		if err := hc.comm.Send(q, TagHaloRows, owned.pack(pick)); err != nil {
			return RowBlock{}, err
		}
	}
	// Rows from each source arrive in place order; collect then reorder by ghost position
	perGhost := make([]RowBlock, len(hc.Ghosts))
	for q := 0; q < hc.NumProcs; q++ {
		place := hc.PlaceIndices[q].Indices
		if len(place) == 0 {
			continue
		}
		msg, err := hc.comm.Receive(q, TagHaloRows)
		if err != nil {
			return RowBlock{}, err
		}
		var recv RowBlock
		if err := recv.unpack(msg, len(place)); err != nil {
			return RowBlock{}, fmt.Errorf("rows from rank %d: %w", q, err)
		}
		for i, idx := range place {
			lo, hi := recv.RowPtr[i], recv.RowPtr[i+1]
			perGhost[idx] = RowBlock{
				RowPtr: []int{0, hi - lo},
				Cols:   recv.Cols[lo:hi],
				Vals:   recv.Vals[lo:hi],
			}
		}
	}
	out := RowBlock{RowPtr: []int{0}}
	for _, rb := range perGhost {
		out.Cols = append(out.Cols, rb.Cols...)
		out.Vals = append(out.Vals, rb.Vals...)
		out.RowPtr = append(out.RowPtr, len(out.Cols))
	}
	return out, nil
}

// Verify checks index validity of this rank's interfaces
func (hc *HaloConnector) Verify() error {
	// Verify 1: Local validity - all pick indices are within bounds
	for q := 0; q < hc.NumProcs; q++ {
		for _, idx := range hc.PickIndices[q].Indices {
			if idx < 0 || idx >= hc.NumOwned {
				return fmt.Errorf("invalid pick index %d for rank %d (max %d)",
					idx, hc.Rank, hc.NumOwned-1)
			}
		}
	}
	// Verify 2: Conservation - every ghost is placed exactly once
	seen := make([]bool, len(hc.Ghosts))
	for q := 0; q < hc.NumProcs; q++ {
		for _, idx := range hc.PlaceIndices[q].Indices {
			if idx < 0 || idx >= len(seen) || seen[idx] {
				return fmt.Errorf("place index %d from rank %d is invalid or duplicated", idx, q)
			}
			seen[idx] = true
		}
	}
	for i, ok := range seen {
		if !ok {
			return fmt.Errorf("ghost %d (global %d) has no source", i, hc.Ghosts[i])
		}
	}
	return nil
}

// VerifyDoubleEnded checks collectively that if rank p picks n values for
// rank q, then rank q expects exactly n values from p.
func (hc *HaloConnector) VerifyDoubleEnded() error {
	if hc.NumProcs == 1 {
		return nil
	}
	for q := 0; q < hc.NumProcs; q++ {
		if q == hc.Rank {
			continue
		}
		msg := Message{Ints: []int{len(hc.PickIndices[q].Indices), len(hc.PlaceIndices[q].Indices)}}
		if err := hc.comm.Send(q, TagVerify, msg); err != nil {
			return err
		}
	}
	var broken error
	for q := 0; q < hc.NumProcs; q++ {
		if q == hc.Rank {
			continue
		}
		msg, err := hc.comm.Receive(q, TagVerify)
		if err != nil {
			return err
		}
		theirPick, theirPlace := msg.Ints[0], msg.Ints[1]
		if theirPick != len(hc.PlaceIndices[q].Indices) && broken == nil {
			broken = fmt.Errorf("rank %d sends %d values to rank %d, which expects %d",
				q, theirPick, hc.Rank, len(hc.PlaceIndices[q].Indices))
		}
		if theirPlace != len(hc.PickIndices[q].Indices) && broken == nil {
			broken = fmt.Errorf("rank %d expects %d values from rank %d, which sends %d",
				q, theirPlace, hc.Rank, len(hc.PickIndices[q].Indices))
		}
	}
	return broken
}
