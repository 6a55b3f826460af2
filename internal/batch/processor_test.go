package batch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu      sync.Mutex
	batches [][]int
	delays  []time.Duration
}

func (c *collector) handle(batch []int, delay time.Duration, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if count != len(batch) {
		panic("count mismatch")
	}
	c.batches = append(c.batches, batch)
	c.delays = append(c.delays, delay)
}

func (c *collector) snapshot() [][]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]int(nil), c.batches...)
}

func TestWindowCoalesces(t *testing.T) {
	p := NewProcessor[int](Config{Window: 30 * time.Millisecond}, nil)
	c := &collector{}
	p.OnBatch(c.handle)
	p.Start()
	defer p.Stop()

	for i := 1; i <= 5; i++ {
		require.True(t, p.OnMessage(i))
	}

	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, [][]int{{1, 2, 3, 4, 5}}, c.snapshot())

	c.mu.Lock()
	assert.GreaterOrEqual(t, c.delays[0], 30*time.Millisecond)
	c.mu.Unlock()

	// A later item opens a fresh window.
	p.OnMessage(6)
	require.Eventually(t, func() bool { return len(c.snapshot()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []int{6}, c.snapshot()[1])
}

func TestMaxSizeFlushesEarly(t *testing.T) {
	p := NewProcessor[int](Config{Window: time.Hour, MaxSize: 3}, nil)
	c := &collector{}
	p.OnBatch(c.handle)
	p.Start()
	defer p.Stop()

	for i := 1; i <= 7; i++ {
		p.OnMessage(i)
	}

	require.Eventually(t, func() bool { return len(c.snapshot()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, [][]int{{1, 2, 3}, {4, 5, 6}}, c.snapshot())
}

func TestDeliveriesAreSerial(t *testing.T) {
	p := NewProcessor[int](Config{Window: time.Hour, MaxSize: 1}, nil)

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	var got []int
	p.OnBatch(func(batch []int, _ time.Duration, _ int) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		inFlight--
		got = append(got, batch...)
		mu.Unlock()
	})
	p.Start()
	defer p.Stop()

	for i := 0; i < 10; i++ {
		p.OnMessage(i)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 10
	}, 2*time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxInFlight)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestStopDropsPending(t *testing.T) {
	p := NewProcessor[int](Config{Window: 20 * time.Millisecond}, nil)
	c := &collector{}
	p.OnBatch(c.handle)
	p.Start()

	p.OnMessage(1)
	p.Stop()
	assert.False(t, p.Running())
	assert.False(t, p.OnMessage(2))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, c.snapshot())
}

func TestRestart(t *testing.T) {
	p := NewProcessor[int](Config{Window: 10 * time.Millisecond}, nil)
	c := &collector{}
	p.OnBatch(c.handle)

	p.Start()
	p.Start()
	p.Stop()
	p.Stop()
	p.Start()
	defer p.Stop()

	p.OnMessage(42)
	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, [][]int{{42}}, c.snapshot())
}

func TestStopFromCallback(t *testing.T) {
	p := NewProcessor[int](Config{Window: time.Hour, MaxSize: 1}, nil)
	done := make(chan struct{})
	p.OnBatch(func([]int, time.Duration, int) {
		p.Stop()
		close(done)
	})
	p.Start()
	p.OnMessage(1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback did not run")
	}
	assert.False(t, p.Running())
}
