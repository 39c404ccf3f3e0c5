package coalesce

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCoalescer_FlushesOnMaxSize(t *testing.T) {
	var mu sync.Mutex
	var batches [][]int

	c := NewCoalescer(&Config{MaxSize: 2, FlushInterval: time.Hour}, func(ctx context.Context, items []int) error {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, append([]int(nil), items...))
		return nil
	})
	defer c.Close()

	ctx := context.Background()
	r1, err := c.Submit(ctx, 1)
	require.NoError(t, err)
	r2, err := c.Submit(ctx, 2)
	require.NoError(t, err)

	require.NoError(t, r1.Wait(ctx))
	require.NoError(t, r2.Wait(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, [][]int{{1, 2}}, batches)
}

func TestCoalescer_FlushesOnInterval(t *testing.T) {
	var mu sync.Mutex
	var batches [][]int

	c := NewCoalescer(&Config{MaxSize: 100, FlushInterval: 5 * time.Millisecond}, func(ctx context.Context, items []int) error {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, append([]int(nil), items...))
		return nil
	})
	defer c.Close()

	ctx := context.Background()
	r, err := c.Submit(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, r.Wait(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, [][]int{{7}}, batches)
}

func TestCoalescer_SubmitAfterShutdownFails(t *testing.T) {
	c := NewCoalescer(&Config{MaxSize: 1}, func(ctx context.Context, items []int) error { return nil })

	require.NoError(t, c.Shutdown(context.Background()))

	_, err := c.Submit(context.Background(), 1)
	require.Error(t, err)
}
