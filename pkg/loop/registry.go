package loop

import (
	"sort"
	"sync"
)

// Handle identifies a started loop within a Registry.
type Handle struct {
	ID   uint64
	Name string
}

// Registry tracks running loops for introspection.
type Registry struct {
	lock   sync.RWMutex
	nextID uint64
	active map[uint64]Handle
}

func NewRegistry() *Registry {
	return &Registry{
		active: make(map[uint64]Handle),
	}
}

func (r *Registry) add(name string) Handle {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.nextID++
	h := Handle{ID: r.nextID, Name: name}
	r.active[h.ID] = h
	return h
}

func (r *Registry) remove(id uint64) {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.active, id)
}

// Count returns the number of running loops.
func (r *Registry) Count() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.active)
}

// Active returns the running loops ordered by start order.
func (r *Registry) Active() []Handle {
	r.lock.RLock()
	defer r.lock.RUnlock()
	handles := make([]Handle, 0, len(r.active))
	for _, h := range r.active {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool {
		return handles[i].ID < handles[j].ID
	})
	return handles
}
