package partitions

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// mailbox holds the messages travelling from one rank to another, one FIFO per tag
type mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queues map[Tag][]Message
}

func newMailbox() *mailbox {
	mb := &mailbox{queues: make(map[Tag][]Message)}
	mb.cond = sync.NewCond(&mb.mu)
	return mb
}

// LocalWorld simulates a distributed memory machine inside one process. Each
// rank is meant to run on its own goroutine and only touches its own data;
// all sharing goes through messages.
type LocalWorld struct {
	size   int
	boxes  [][]*mailbox // boxes[dest][src]
	mu     sync.Mutex
	closed bool
}

// NewLocalWorld creates a world of n ranks
func NewLocalWorld(n int) *LocalWorld {
	if n < 1 {
		n = 1
	}
	w := &LocalWorld{size: n, boxes: make([][]*mailbox, n)}
	for d := 0; d < n; d++ {
		w.boxes[d] = make([]*mailbox, n)
		for s := 0; s < n; s++ {
			w.boxes[d][s] = newMailbox()
		}
	}
	return w
}

// Comm returns the communicator endpoint of a rank
func (w *LocalWorld) Comm(rank int) Communicator {
	return &localComm{world: w, rank: rank}
}

// Abort wakes every blocked receiver; subsequent receives fail with ErrWorldClosed
func (w *LocalWorld) Abort() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	for d := range w.boxes {
		for _, mb := range w.boxes[d] {
			mb.mu.Lock()
			mb.cond.Broadcast()
			mb.mu.Unlock()
		}
	}
}

func (w *LocalWorld) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// RunWorld executes fn once per rank, each on its own goroutine, and returns the
// first error. A failing rank aborts the world so that peers blocked in a
// receive return instead of deadlocking.
func RunWorld(n int, fn func(comm Communicator) error) error {
	w := NewLocalWorld(n)
	g, ctx := errgroup.WithContext(context.Background())
	for r := 0; r < n; r++ {
		comm := w.Comm(r)
		g.Go(func() error {
			if err := fn(comm); err != nil {
				w.Abort()
				return fmt.Errorf("rank %d: %w", comm.Rank(), err)
			}
			return nil
		})
	}
	go func() {
		<-ctx.Done()
		w.Abort()
	}()
	return g.Wait()
}

type localComm struct {
	world *LocalWorld
	rank  int
}

func (c *localComm) Rank() int { return c.rank }
func (c *localComm) Size() int { return c.world.size }

func (c *localComm) Send(dest int, tag Tag, msg Message) error {
	if dest < 0 || dest >= c.world.size {
		return fmt.Errorf("send to %d: %w", dest, ErrInvalidRank)
	}
	mb := c.world.boxes[dest][c.rank]
	mb.mu.Lock()
	mb.queues[tag] = append(mb.queues[tag], msg.clone())
	mb.cond.Broadcast()
	mb.mu.Unlock()
	return nil
}

func (c *localComm) Receive(src int, tag Tag) (Message, error) {
	if src < 0 || src >= c.world.size {
		return Message{}, fmt.Errorf("receive from %d: %w", src, ErrInvalidRank)
	}
	mb := c.world.boxes[c.rank][src]
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for len(mb.queues[tag]) == 0 {
		if c.world.isClosed() {
			return Message{}, ErrWorldClosed
		}
		mb.cond.Wait()
	}
	q := mb.queues[tag]
	msg := q[0]
	mb.queues[tag] = q[1:]
	return msg, nil
}

// AllReduce gathers onto rank 0, combines and broadcasts the result
func (c *localComm) AllReduce(vals []float64, op ReduceOp) ([]float64, error) {
	if c.rank != 0 {
		if err := c.Send(0, TagReduce, Message{Floats: vals}); err != nil {
			return nil, err
		}
		res, err := c.Receive(0, TagReduceResult)
		if err != nil {
			return nil, err
		}
		return res.Floats, nil
	}
	acc := append([]float64(nil), vals...)
	for src := 1; src < c.world.size; src++ {
		msg, err := c.Receive(src, TagReduce)
		if err != nil {
			return nil, err
		}
		if err := combine(op, acc, msg.Floats); err != nil {
			return nil, fmt.Errorf("rank %d: %w", src, err)
		}
	}
	for dest := 1; dest < c.world.size; dest++ {
		if err := c.Send(dest, TagReduceResult, Message{Floats: acc}); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func (c *localComm) AllGather(v int) ([]int, error) {
	if c.rank != 0 {
		if err := c.Send(0, TagGather, Message{Ints: []int{v}}); err != nil {
			return nil, err
		}
		res, err := c.Receive(0, TagGatherResult)
		if err != nil {
			return nil, err
		}
		return res.Ints, nil
	}
	all := make([]int, c.world.size)
	all[0] = v
	for src := 1; src < c.world.size; src++ {
		msg, err := c.Receive(src, TagGather)
		if err != nil {
			return nil, err
		}
		all[src] = msg.Ints[0]
	}
	for dest := 1; dest < c.world.size; dest++ {
		if err := c.Send(dest, TagGatherResult, Message{Ints: all}); err != nil {
			return nil, err
		}
	}
	return all, nil
}
