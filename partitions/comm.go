package partitions

import (
	"errors"
	"fmt"
)

// Tag separates independent message streams between the same pair of ranks.
// Messages with equal (source, destination, tag) are delivered in order.
type Tag int

const (
	TagHaloSetup Tag = iota + 1
	TagHalo
	TagHaloRows
	TagRedistribute
	TagRedistributeRows
	TagReduce
	TagReduceResult
	TagGather
	TagGatherResult
	TagVerify
	TagTranspose
)

// ReduceOp selects the combine function of a collective reduction
type ReduceOp uint8

const (
	Sum ReduceOp = iota
	Min
	Max
)

var (
	// ErrWorldClosed is returned by blocking calls once any rank of the world aborted
	ErrWorldClosed = errors.New("partitions: world closed")
	// ErrInvalidRank indicates a send or receive addressed to a rank outside the world
	ErrInvalidRank = errors.New("partitions: invalid rank")
)

// Message is the unit of transfer between ranks. Payload slices are copied on
// send, so the receiver never aliases the sender's memory.
type Message struct {
	Ints   []int
	Floats []float64
}

func (m Message) clone() Message {
	var c Message
	if m.Ints != nil {
		c.Ints = append(make([]int, 0, len(m.Ints)), m.Ints...)
	}
	if m.Floats != nil {
		c.Floats = append(make([]float64, 0, len(m.Floats)), m.Floats...)
	}
	return c
}

// Communicator is the narrow messaging surface the solver needs: point to point
// transfers keyed by rank and tag, plus scalar collectives.
type Communicator interface {
	Rank() int
	Size() int
	Send(dest int, tag Tag, msg Message) error
	Receive(src int, tag Tag) (Message, error)
	AllReduce(vals []float64, op ReduceOp) ([]float64, error)
	AllGather(v int) ([]int, error)
}

func combine(op ReduceOp, acc, v []float64) error {
	if len(acc) != len(v) {
		return fmt.Errorf("reduction length mismatch: %d != %d", len(acc), len(v))
	}
	for i := range acc {
		switch op {
		case Sum:
			acc[i] += v[i]
		case Min:
			if v[i] < acc[i] {
				acc[i] = v[i]
			}
		case Max:
			if v[i] > acc[i] {
				acc[i] = v[i]
			}
		default:
			return fmt.Errorf("unknown reduce op %d", op)
		}
	}
	return nil
}

// AllReduceInts is a convenience wrapper for integer statistics
func AllReduceInts(comm Communicator, vals []int, op ReduceOp) ([]int, error) {
	fv := make([]float64, len(vals))
	for i, v := range vals {
		fv[i] = float64(v)
	}
	red, err := comm.AllReduce(fv, op)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(red))
	for i, v := range red {
		out[i] = int(v)
	}
	return out, nil
}

// serialComm is a world of one process. Every collective is the identity.
type serialComm struct{}

// Serial returns the communicator used when no distributed world is supplied
func Serial() Communicator { return serialComm{} }

func (serialComm) Rank() int { return 0 }
func (serialComm) Size() int { return 1 }

func (serialComm) Send(dest int, tag Tag, msg Message) error {
	return fmt.Errorf("send to rank %d in a serial world: %w", dest, ErrInvalidRank)
}

func (serialComm) Receive(src int, tag Tag) (Message, error) {
	return Message{}, fmt.Errorf("receive from rank %d in a serial world: %w", src, ErrInvalidRank)
}

func (serialComm) AllReduce(vals []float64, op ReduceOp) ([]float64, error) {
	return append([]float64(nil), vals...), nil
}

func (serialComm) AllGather(v int) ([]int, error) { return []int{v}, nil }

// OrSerial substitutes the serial world for a nil communicator
func OrSerial(comm Communicator) Communicator {
	if comm == nil {
		return Serial()
	}
	return comm
}
