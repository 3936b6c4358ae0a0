// Package cstat supplies the per-worker observable counters a benchmark
// harness reads out of the tree variants. Workers register explicitly
// and hold their own *Counters, rather than the trees doing a
// per-operation thread-local lookup.
package cstat

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ThreadID identifies a registered worker goroutine. Minted from
// github.com/google/uuid at registration time.
type ThreadID uuid.UUID

func (t ThreadID) String() string { return uuid.UUID(t).String() }

// Counters holds one worker goroutine's observable counts. A worker
// registers once, keeps the returned *Counters in a local variable, and
// mutates it directly for the lifetime of its run; a harness may read it
// concurrently at any time.
type Counters struct {
	Gets                   int64
	PutIfAbsents           int64
	Removes                int64
	NodesTraversed         int64
	StructuralMods         int64
	FailedLockAcquisitions int64
	PhysicalUnlinks        int64
	Found                  int64
	NotFound               int64
}

func (c *Counters) AddGet(found bool) {
	atomic.AddInt64(&c.Gets, 1)
	if found {
		atomic.AddInt64(&c.Found, 1)
	} else {
		atomic.AddInt64(&c.NotFound, 1)
	}
}

func (c *Counters) AddPutIfAbsent()          { atomic.AddInt64(&c.PutIfAbsents, 1) }
func (c *Counters) AddRemove()               { atomic.AddInt64(&c.Removes, 1) }
func (c *Counters) AddNodeTraversed()        { atomic.AddInt64(&c.NodesTraversed, 1) }
func (c *Counters) AddStructuralMod()        { atomic.AddInt64(&c.StructuralMods, 1) }
func (c *Counters) AddFailedLockAcquisition() { atomic.AddInt64(&c.FailedLockAcquisitions, 1) }
func (c *Counters) AddPhysicalUnlink()       { atomic.AddInt64(&c.PhysicalUnlinks, 1) }

// Snapshot returns a copy safe to read without racing further updates.
func (c *Counters) Snapshot() Counters {
	return Counters{
		Gets:                   atomic.LoadInt64(&c.Gets),
		PutIfAbsents:           atomic.LoadInt64(&c.PutIfAbsents),
		Removes:                atomic.LoadInt64(&c.Removes),
		NodesTraversed:         atomic.LoadInt64(&c.NodesTraversed),
		StructuralMods:         atomic.LoadInt64(&c.StructuralMods),
		FailedLockAcquisitions: atomic.LoadInt64(&c.FailedLockAcquisitions),
		PhysicalUnlinks:        atomic.LoadInt64(&c.PhysicalUnlinks),
		Found:                  atomic.LoadInt64(&c.Found),
		NotFound:               atomic.LoadInt64(&c.NotFound),
	}
}

// Registry tracks one *Counters per registered worker goroutine.
type Registry struct {
	mu   sync.Mutex
	byID map[ThreadID]*Counters
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[ThreadID]*Counters)}
}

// Register mints a fresh ThreadID and Counters for a worker goroutine.
// Call once per goroutine at startup, not once per operation.
func (r *Registry) Register() (ThreadID, *Counters) {
	id := ThreadID(uuid.New())
	c := &Counters{}
	r.mu.Lock()
	r.byID[id] = c
	r.mu.Unlock()
	return id, c
}

// Unregister drops a worker's counters from the registry (its last
// Snapshot value is lost; callers that need a final tally should
// Snapshot before calling Unregister).
func (r *Registry) Unregister(id ThreadID) {
	r.mu.Lock()
	delete(r.byID, id)
	r.mu.Unlock()
}

// All returns the currently-registered counters. Summing or otherwise
// aggregating them is the harness's job, not this module's.
func (r *Registry) All() map[ThreadID]*Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[ThreadID]*Counters, len(r.byID))
	for id, c := range r.byID {
		out[id] = c
	}
	return out
}
