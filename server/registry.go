package server

import (
	"errors"
	"sort"
	"sync"
)

// ErrFull is returned by Acquire when every slot is taken.
var ErrFull = errors.New("server full")

// Registry tracks admitted sessions. Acquire and Release are the only
// ways a slot changes hands.
type Registry struct {
	mu       sync.Mutex
	capacity int
	lastID   int
	active   map[int]struct{}
}

func NewRegistry(capacity int) *Registry {
	return &Registry{
		capacity: capacity,
		active:   make(map[int]struct{}, capacity),
	}
}

// Acquire takes a slot and returns a fresh session id. Ids start at 1
// and are only consumed by admitted sessions.
func (r *Registry) Acquire() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.active) >= r.capacity {
		return 0, ErrFull
	}
	r.lastID++
	r.active[r.lastID] = struct{}{}
	return r.lastID, nil
}

// Release frees the slot held by id. Releasing an unknown id is a no-op.
func (r *Registry) Release(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, id)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

func (r *Registry) Capacity() int { return r.capacity }

// Active returns the admitted session ids in ascending order.
func (r *Registry) Active() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
