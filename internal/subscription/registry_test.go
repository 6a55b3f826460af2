package subscription

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryNotifyOrder(t *testing.T) {
	r := NewRegistry[func(int)](nil)

	var got []string
	r.Add(func(v int) { got = append(got, "a") })
	r.Add(func(v int) { got = append(got, "b") })
	r.Add(func(v int) { got = append(got, "c") })

	r.Notify(func(l func(int)) { l(1) })
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, 3, r.Len())
}

func TestRegistryRemoveDuringNotify(t *testing.T) {
	r := NewRegistry[func()](nil)

	var calls []string
	var removeA func()
	removeA = r.Add(func() {
		calls = append(calls, "a")
		removeA()
	})
	r.Add(func() { calls = append(calls, "b") })

	r.Notify(func(l func()) { l() })
	assert.Equal(t, []string{"a", "b"}, calls)

	calls = nil
	r.Notify(func(l func()) { l() })
	assert.Equal(t, []string{"b"}, calls)
}

func TestRegistryRemoveIdempotent(t *testing.T) {
	r := NewRegistry[int](nil)
	remove := r.Add(1)
	r.Add(2)

	remove()
	remove()
	assert.Equal(t, []int{2}, r.Snapshot())
}

func TestRegistryPanicIsolated(t *testing.T) {
	r := NewRegistry[func()](nil)

	var reached bool
	r.Add(func() { panic("boom") })
	r.Add(func() { reached = true })

	require.NotPanics(t, func() { r.Notify(func(l func()) { l() }) })
	assert.True(t, reached)
}

func TestRegistryClear(t *testing.T) {
	r := NewRegistry[int](nil)
	r.Add(1)
	r.Add(2)
	r.Clear()
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Snapshot())
}

func TestRegistryConcurrent(t *testing.T) {
	r := NewRegistry[func()](nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			remove := r.Add(func() {})
			remove()
		}()
		go func() {
			defer wg.Done()
			r.Notify(func(l func()) { l() })
		}()
	}
	wg.Wait()
	assert.Zero(t, r.Len())
}
