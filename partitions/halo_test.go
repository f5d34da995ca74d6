package partitions

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pathGhosts returns the neighbours of a 1D path that lie outside [lo,hi)
func pathGhosts(lo, hi, n int) []int {
	var g []int
	if lo > 0 && hi > lo {
		g = append(g, lo-1)
	}
	if hi < n && hi > lo {
		g = append(g, hi)
	}
	return g
}

func TestHaloConnector(t *testing.T) {
	const n = 10
	layout := NewLayout([]int{4, 3, 3})

	t.Run("Exchange", func(t *testing.T) {
		err := RunWorld(3, func(comm Communicator) error {
			me := comm.Rank()
			lo, hi := layout.Range(me)
			hc, err := NewHaloConnector(comm, layout, pathGhosts(lo, hi, n))
			if err != nil {
				return err
			}
			if err := hc.Verify(); err != nil {
				return err
			}
			if err := hc.VerifyDoubleEnded(); err != nil {
				return err
			}
			owned := make([]float64, hi-lo)
			for i := range owned {
				owned[i] = float64(10 * (lo + i))
			}
			ghost := make([]float64, hc.NumGhosts())
			if err := hc.Exchange(owned, ghost); err != nil {
				return err
			}
			for i, g := range hc.Ghosts {
				if ghost[i] != float64(10*g) {
					return errors.New("wrong ghost value")
				}
			}
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("ExchangeRows", func(t *testing.T) {
		err := RunWorld(3, func(comm Communicator) error {
			me := comm.Rank()
			lo, hi := layout.Range(me)
			hc, err := NewHaloConnector(comm, layout, pathGhosts(lo, hi, n))
			if err != nil {
				return err
			}
			// row g holds the single entry (g, g) = g
			rows := RowBlock{RowPtr: []int{0}}
			for g := lo; g < hi; g++ {
				rows.Cols = append(rows.Cols, g)
				rows.Vals = append(rows.Vals, float64(g))
				rows.RowPtr = append(rows.RowPtr, len(rows.Cols))
			}
			got, err := hc.ExchangeRows(rows)
			if err != nil {
				return err
			}
			if got.NumRows() != len(hc.Ghosts) {
				return errors.New("wrong ghost row count")
			}
			for i, g := range hc.Ghosts {
				if got.Cols[got.RowPtr[i]] != g || got.Vals[got.RowPtr[i]] != float64(g) {
					return errors.New("wrong ghost row")
				}
			}
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("InterfaceElements", func(t *testing.T) {
		counts := make([]int, 3)
		err := RunWorld(3, func(comm Communicator) error {
			lo, hi := layout.Range(comm.Rank())
			hc, err := NewHaloConnector(comm, layout, pathGhosts(lo, hi, n))
			if err != nil {
				return err
			}
			counts[comm.Rank()] = hc.InterfaceElements()
			return nil
		})
		require.NoError(t, err)
		// the middle rank sends and receives on both sides
		assert.Equal(t, []int{2, 4, 2}, counts)
	})

	t.Run("OwnGhostRejected", func(t *testing.T) {
		_, err := NewHaloConnector(nil, NewLayout([]int{5}), []int{2})
		assert.Error(t, err)
	})

	t.Run("SerialNoGhosts", func(t *testing.T) {
		hc, err := NewHaloConnector(nil, NewLayout([]int{5}), nil)
		require.NoError(t, err)
		assert.NoError(t, hc.Exchange(make([]float64, 5), nil))
		assert.NoError(t, hc.VerifyDoubleEnded())
	})
}

func TestRunWorldAbort(t *testing.T) {
	boom := errors.New("boom")
	err := RunWorld(2, func(comm Communicator) error {
		if comm.Rank() == 1 {
			return boom
		}
		// rank 0 would block forever without the abort
		_, err := comm.Receive(1, TagHalo)
		return err
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom) || errors.Is(err, ErrWorldClosed))
}

func TestCollectives(t *testing.T) {
	sums := make([][]float64, 3)
	gathers := make([][]int, 3)
	err := RunWorld(3, func(comm Communicator) error {
		r := float64(comm.Rank())
		s, err := comm.AllReduce([]float64{r, r * r}, Sum)
		if err != nil {
			return err
		}
		if _, err := comm.AllReduce([]float64{r}, Max); err != nil {
			return err
		}
		g, err := comm.AllGather(comm.Rank() + 1)
		if err != nil {
			return err
		}
		sums[comm.Rank()], gathers[comm.Rank()] = s, g
		return nil
	})
	require.NoError(t, err)
	for p := 0; p < 3; p++ {
		assert.Equal(t, []float64{3, 5}, sums[p])
		assert.Equal(t, []int{1, 2, 3}, gathers[p])
	}

	mn, err := AllReduceInts(Serial(), []int{4, 2}, Min)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2}, mn)
}

func TestRedistribution(t *testing.T) {
	from := NewLayout([]int{3, 3, 4})
	to := NewLayout([]int{6, 0, 4})

	collected := make([][]float64, 3)
	back := make([][]float64, 3)
	rowCounts := make([]int, 3)
	err := RunWorld(3, func(comm Communicator) error {
		me := comm.Rank()
		r, err := NewRedistribution(from, to, comm)
		if err != nil {
			return err
		}
		lo, hi := from.Range(me)
		src := make([]float64, hi-lo)
		rows := RowBlock{RowPtr: []int{0}}
		for i := range src {
			src[i] = float64(lo + i)
			rows.Cols = append(rows.Cols, lo+i)
			rows.Vals = append(rows.Vals, 1)
			rows.RowPtr = append(rows.RowPtr, len(rows.Cols))
		}
		dst := make([]float64, to.LocalSize(me))
		if err := r.Forward(src, dst); err != nil {
			return err
		}
		ret := make([]float64, len(src))
		if err := r.Backward(dst, ret); err != nil {
			return err
		}
		moved, err := r.ForwardRows(rows)
		if err != nil {
			return err
		}
		collected[me], back[me], rowCounts[me] = dst, ret, moved.NumRows()
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5}, collected[0])
	assert.Empty(t, collected[1])
	assert.Equal(t, []float64{6, 7, 8, 9}, collected[2])
	assert.Equal(t, []float64{3, 4, 5}, back[1])
	assert.Equal(t, []int{6, 0, 4}, rowCounts)

	t.Run("GlobalSizeMismatch", func(t *testing.T) {
		_, err := NewRedistribution(NewLayout([]int{3}), NewLayout([]int{4}), nil)
		assert.Error(t, err)
	})
}
