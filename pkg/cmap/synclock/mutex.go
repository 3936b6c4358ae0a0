// Package synclock implements the per-node lock the avltree, splaytree
// and optimistic variants use (pkg/ordered uses plain sync.Mutex
// pairs): a shared/exclusive mutex whose state (reader count
// plus a writer-held flag) is packed into a single uint64 and whose
// waiters block on a sync.Cond. Only the two states the trees need are
// carried: shared, for the optimistic engine's wait-past-an-in-progress-
// shrink fallback, and exclusive, for structural mutations.
package synclock

import (
	"sync"
	"sync/atomic"
)

const (
	sOffset = 0
	sMask   = (1 << 32) - 1

	xOffset = 32
	xMask   = uint64(1) << 32 // single bit: at most one exclusive holder
)

func extractS(state uint64) uint64 { return (state & sMask) >> sOffset }
func setS(state, val uint64) uint64 {
	return (state &^ sMask) | (val << sOffset)
}

func extractX(state uint64) uint64 { return (state & xMask) >> xOffset }
func setX(state, val uint64) uint64 {
	return (state &^ xMask) | (val << xOffset)
}

func compatibleWithS(state uint64) bool { return extractX(state) == 0 }
func compatibleWithX(state uint64) bool { return state == 0 }

// Mutex is a shared/exclusive lock for a single tree node.
type Mutex struct {
	mtx   sync.Mutex
	c     *sync.Cond
	state uint64
}

// New returns a ready-to-use Mutex. The zero value is not usable because
// the condvar must be bound to mtx.
func New() *Mutex {
	m := &Mutex{}
	m.c = sync.NewCond(&m.mtx)
	return m
}

// Lock takes the node lock exclusively, blocking while any reader or
// writer holds it.
func (m *Mutex) Lock() {
	m.mtx.Lock()
	for !compatibleWithX(atomic.LoadUint64(&m.state)) {
		m.c.Wait()
	}
	atomic.StoreUint64(&m.state, setX(m.state, 1))
	m.mtx.Unlock()
}

// TryLock attempts to take the node lock exclusively without blocking.
// Used by the splay engine's bounded try-lock ancestor acquisition.
func (m *Mutex) TryLock() bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if !compatibleWithX(atomic.LoadUint64(&m.state)) {
		return false
	}
	atomic.StoreUint64(&m.state, setX(m.state, 1))
	return true
}

// Unlock releases an exclusively held node lock.
func (m *Mutex) Unlock() {
	m.mtx.Lock()
	atomic.StoreUint64(&m.state, setX(m.state, 0))
	m.mtx.Unlock()
	m.c.Broadcast()
}

// RLock takes the node lock for shared access, blocking only while a
// writer holds it exclusively.
func (m *Mutex) RLock() {
	m.mtx.Lock()
	for !compatibleWithS(atomic.LoadUint64(&m.state)) {
		m.c.Wait()
	}
	m.state = setS(m.state, extractS(m.state)+1)
	m.mtx.Unlock()
}

// RUnlock releases a shared hold on the node lock.
func (m *Mutex) RUnlock() {
	m.mtx.Lock()
	val := extractS(m.state) - 1
	m.state = setS(m.state, val)
	m.mtx.Unlock()
	if val == 0 {
		m.c.Broadcast()
	}
}
