// Package bufreg implements the shared raw-buffer registry: an
// out-of-band pool that lets a foreign-language façade hand the core a
// chunk of memory by numeric id instead of copying it through a message
// send. The registry itself is domain-agnostic — it knows nothing about
// actors or mailboxes — so it has no dependency on the engine package.
package bufreg

import (
	"sync"
	"sync/atomic"
)

// Id is the opaque handle returned by Allocate and consumed by Take/Free.
type Id uint64

// Registry is a concurrency-safe id -> []byte pool. Allocate hands out a
// fresh id; Take removes and returns the buffer, transferring ownership
// to the caller (a second Take or a Free of the same id fails); Free
// releases a buffer that was never taken.
type Registry struct {
	next uint64
	mu   sync.Mutex
	bufs map[Id][]byte
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{bufs: make(map[Id][]byte)}
}

// Allocate stores buf under a fresh id and returns it.
func (r *Registry) Allocate(buf []byte) Id {
	id := Id(atomic.AddUint64(&r.next, 1))
	r.mu.Lock()
	r.bufs[id] = buf
	r.mu.Unlock()
	return id
}

// Take removes and returns the buffer stored under id. A second Take (or
// a Take after Free) of the same id returns ok=false.
func (r *Registry) Take(id Id) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf, ok := r.bufs[id]
	if !ok {
		return nil, false
	}
	delete(r.bufs, id)
	return buf, true
}

// Free releases the buffer stored under id without returning it. It
// reports whether id was still present.
func (r *Registry) Free(id Id) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bufs[id]; !ok {
		return false
	}
	delete(r.bufs, id)
	return true
}

// Len reports how many buffers are currently held (allocated but not yet
// taken or freed), mainly for tests and operator introspection.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bufs)
}
