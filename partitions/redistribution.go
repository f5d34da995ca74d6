package partitions

import "fmt"

// Redistribution moves distributed data between two contiguous layouts of the
// same global index set. Forward goes from the source layout to the target
// layout (vertical collect when ranks are agglomerated), Backward is the exact
// inverse (scatter).
type Redistribution struct {
	From, To *Layout
	comm     Communicator
}

// NewRedistribution checks that both layouts number the same unknowns
func NewRedistribution(from, to *Layout, comm Communicator) (*Redistribution, error) {
	comm = OrSerial(comm)
	if from.Global() != to.Global() {
		return nil, fmt.Errorf("redistribution between %d and %d unknowns", from.Global(), to.Global())
	}
	if from.NumProcs() != comm.Size() || to.NumProcs() != comm.Size() {
		return nil, fmt.Errorf("layouts span %d/%d ranks, world has %d",
			from.NumProcs(), to.NumProcs(), comm.Size())
	}
	return &Redistribution{From: from, To: to, comm: comm}, nil
}

// IsIdentity reports whether both layouts agree, making every transfer a local copy
func (r *Redistribution) IsIdentity() bool {
	for p := range r.From.Offsets {
		if r.From.Offsets[p] != r.To.Offsets[p] {
			return false
		}
	}
	return true
}

func overlap(a *Layout, p int, b *Layout, q int) (lo, hi int) {
	alo, ahi := a.Range(p)
	blo, bhi := b.Range(q)
	lo, hi = max(alo, blo), min(ahi, bhi)
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// move ships src (owned in layout a) into dst (owned in layout b)
func (r *Redistribution) move(a, b *Layout, src, dst []float64) error {
	me := r.comm.Rank()
	if len(src) != a.LocalSize(me) || len(dst) != b.LocalSize(me) {
		return fmt.Errorf("redistribute %d -> %d values, layouts expect %d -> %d",
			len(src), len(dst), a.LocalSize(me), b.LocalSize(me))
	}
	alo, _ := a.Range(me)
	blo, _ := b.Range(me)
	for q := 0; q < r.comm.Size(); q++ {
		lo, hi := overlap(a, me, b, q)
		if lo == hi {
			continue
		}
		if q == me {
			copy(dst[lo-blo:hi-blo], src[lo-alo:hi-alo])
			continue
		}
		if err := r.comm.Send(q, TagRedistribute, Message{Floats: src[lo-alo : hi-alo]}); err != nil {
			return err
		}
	}
	for p := 0; p < r.comm.Size(); p++ {
		if p == me {
			continue
		}
		lo, hi := overlap(a, p, b, me)
		if lo == hi {
			continue
		}
		msg, err := r.comm.Receive(p, TagRedistribute)
		if err != nil {
			return err
		}
		if len(msg.Floats) != hi-lo {
			return fmt.Errorf("rank %d sent %d values, expected %d", p, len(msg.Floats), hi-lo)
		}
		copy(dst[lo-blo:hi-blo], msg.Floats)
	}
	return nil
}

// Forward moves src, owned according to From, into dst, owned according to To
func (r *Redistribution) Forward(src, dst []float64) error {
	return r.move(r.From, r.To, src, dst)
}

// Backward moves src, owned according to To, into dst, owned according to From
func (r *Redistribution) Backward(src, dst []float64) error {
	return r.move(r.To, r.From, src, dst)
}

// ForwardRows moves sparse rows, one per owned unknown of From, to their owners in To
func (r *Redistribution) ForwardRows(rows RowBlock) (RowBlock, error) {
	me := r.comm.Rank()
	if rows.NumRows() != r.From.LocalSize(me) {
		return RowBlock{}, fmt.Errorf("row block has %d rows, layout expects %d",
			rows.NumRows(), r.From.LocalSize(me))
	}
	flo, _ := r.From.Range(me)
	pieces := make([]Message, r.comm.Size())
	for q := 0; q < r.comm.Size(); q++ {
		lo, hi := overlap(r.From, me, r.To, q)
		if lo == hi {
			continue
		}
		idx := make([]int, hi-lo)
		for i := range idx {
			idx[i] = lo - flo + i
		}
		msg := rows.pack(idx)
		if q == me {
			pieces[q] = msg
			continue
		}
		if err := r.comm.Send(q, TagRedistributeRows, msg); err != nil {
			return RowBlock{}, err
		}
	}
	// Sources are visited in rank order, which is global row order for contiguous layouts
	out := RowBlock{RowPtr: []int{0}}
	for p := 0; p < r.comm.Size(); p++ {
		lo, hi := overlap(r.From, p, r.To, me)
		if lo == hi {
			continue
		}
		msg := pieces[p]
		if p != me {
			var err error
			if msg, err = r.comm.Receive(p, TagRedistributeRows); err != nil {
				return RowBlock{}, err
			}
		}
		if err := out.unpack(msg, hi-lo); err != nil {
			return RowBlock{}, fmt.Errorf("rows from rank %d: %w", p, err)
		}
	}
	return out, nil
}
