package scan_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plinkql/pgencore/scan"
)

func TestMaxThreads(t *testing.T) {
	require.Equal(t, 1, scan.MaxThreads(0))
	require.Equal(t, 1, scan.MaxThreads(100))
	require.Equal(t, 3, scan.MaxThreads(1000))
	require.Equal(t, 16, scan.MaxThreads(100000))
}

func TestCursorClaimExhaustsExactly(t *testing.T) {
	c := scan.NewCursor(0, 10)
	var total int
	for {
		_, n, ok := c.Claim(4)
		if !ok {
			break
		}
		total += n
	}
	require.Equal(t, 10, total)
}

func TestCursorClaimConcurrentNoOverlap(t *testing.T) {
	c := scan.NewCursor(0, 1000)
	seen := make([]int32, 1000)
	var wg sync.WaitGroup
	for t := 0; t < 8; t++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				start, n, ok := c.Claim(7)
				if !ok {
					return
				}
				for i := start; i < start+n; i++ {
					seen[i]++
				}
			}
		}()
	}
	wg.Wait()
	for i, v := range seen {
		require.Equal(t, int32(1), v, "index %d claimed %d times", i, v)
	}
}

func TestCancelFlag(t *testing.T) {
	var f scan.CancelFlag
	require.False(t, f.IsSet())
	f.Set()
	require.True(t, f.IsSet())
}

func TestBatchFullness(t *testing.T) {
	b := scan.NewBatch[int](3)
	require.False(t, b.Add(1))
	require.False(t, b.Add(2))
	require.True(t, b.Add(3))
	require.True(t, b.Full())
	require.Equal(t, []int{1, 2, 3}, b.Rows)
	b.Reset()
	require.False(t, b.Full())
	require.Empty(t, b.Rows)
}

func TestFanOutRunsAllThreads(t *testing.T) {
	var mu sync.Mutex
	seen := map[int]bool{}
	err := scan.FanOut(4, func(threadIdx int) error {
		mu.Lock()
		seen[threadIdx] = true
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 4)
}
