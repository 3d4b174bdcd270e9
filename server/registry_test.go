package server

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCapacity(t *testing.T) {
	t.Parallel()

	r := NewRegistry(2)
	a, err := r.Acquire()
	require.NoError(t, err)
	b, err := r.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)

	_, err = r.Acquire()
	assert.ErrorIs(t, err, ErrFull)

	r.Release(a)
	c, err := r.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 3, c, "rejected admissions do not consume ids")
	assert.Equal(t, []int{2, 3}, r.Active())

	r.Release(99)
	assert.Equal(t, 2, r.Len())
}

func TestRegistryConcurrentAcquire(t *testing.T) {
	t.Parallel()

	r := NewRegistry(10)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		full int
		ids  = map[int]bool{}
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := r.Acquire()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				full++
				return
			}
			ok++
			ids[id] = true
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Equal(t, 40, full)
	assert.Len(t, ids, 10)
	assert.Equal(t, 10, r.Len())
}
