package ordered

import (
	"runtime"
	"sync/atomic"

	"github.com/tpernat/cbst/pkg/cmap"
	"github.com/tpernat/cbst/pkg/cmap/cmaperr"
	"github.com/tpernat/cbst/pkg/cmap/cstat"
)

// Tree is the logical-ordering concurrent map. It implements cmap.Map.
type Tree struct {
	head *node
	tail *node
	size atomic.Int64

	// Counters, if set, receives the per-worker observable counts a
	// harness reads out. Nil (the default) disables accounting.
	Counters *cstat.Counters
}

func New() *Tree {
	head := newHead()
	tail := newTail()
	head.succ.Store(tail)
	tail.pred.Store(head)
	return &Tree{head: head, tail: tail}
}

func (t *Tree) Get(k cmap.Comparator) (any, bool, error) {
	if k == nil {
		return nil, false, &cmaperr.NilKeyError{}
	}
	n, err := t.locate(k)
	if err != nil {
		return nil, false, err
	}
	if n == nil || !n.valid.Load() {
		if t.Counters != nil {
			t.Counters.AddGet(false)
		}
		return nil, false, nil
	}
	val := n.value.Load()
	if val == nil || cmap.IsTombstone(*val) {
		if t.Counters != nil {
			t.Counters.AddGet(false)
		}
		return nil, false, nil
	}
	if t.Counters != nil {
		t.Counters.AddGet(true)
	}
	return *val, true, nil
}

func (t *Tree) PutIfAbsent(k cmap.Comparator, v any) (any, bool, error) {
	if k == nil {
		return nil, false, &cmaperr.NilKeyError{}
	}
	if t.Counters != nil {
		t.Counters.AddPutIfAbsent()
	}

	for {
		near, wentRight, found, err := t.descend(k)
		if err != nil {
			return nil, false, err
		}

		if found {
			prev, existed, retry, err := t.reviveOrRefuse(near)
			if err != nil {
				return nil, false, err
			}
			if retry {
				continue
			}
			return prev, existed, nil
		}

		// Walk back to the last valid node strictly below k. near itself
		// qualifies when the final tree step went right; either way the
		// walk also absorbs a near that went stale since the descent.
		pred := near
		if !wentRight {
			pred = near.pred.Load()
		}
		for !pred.isHolder {
			if pred.valid.Load() {
				c, cerr := cmap.SafeCompare(k, pred.key)
				if cerr != nil {
					return nil, false, cerr
				}
				if c > 0 {
					break
				}
			}
			pred = pred.pred.Load()
		}

		pred.succLock.Lock()
		succ := pred.succ.Load()

		if !pred.isHolder && !pred.valid.Load() {
			pred.succLock.Unlock()
			continue
		}

		var cmpSucc int
		if !succ.isHolder {
			cmpSucc, err = cmap.SafeCompare(k, succ.key)
			if err != nil {
				pred.succLock.Unlock()
				return nil, false, err
			}
		} else {
			cmpSucc = -1
		}

		var cmpPred int
		if !pred.isHolder {
			cmpPred, err = cmap.SafeCompare(k, pred.key)
			if err != nil {
				pred.succLock.Unlock()
				return nil, false, err
			}
		} else {
			cmpPred = 1
		}
		if cmpPred <= 0 || cmpSucc > 0 {
			// The chain moved since descend; restart.
			pred.succLock.Unlock()
			continue
		}

		if cmpSucc == 0 {
			succ.succLock.Lock()
			prev, existed, retry, err := t.reviveOrRefuseLocked(succ)
			succ.succLock.Unlock()
			pred.succLock.Unlock()
			if err != nil {
				return nil, false, err
			}
			if retry {
				continue
			}
			return prev, existed, nil
		}

		// Pick the tree attachment point. The tail sentinel is never a
		// tree member, and an occupied slot on both sides means a stale
		// routing node is still being cleaned out of the way; both cases
		// resolve by retrying once the remover's unlink completes.
		var parent *node
		var dir int
		if getChild(pred, +1) == nil {
			parent, dir = pred, +1
		} else if !succ.isHolder && getChild(succ, -1) == nil {
			parent, dir = succ, -1
		} else {
			pred.succLock.Unlock()
			runtime.Gosched()
			continue
		}

		parent.treeLock.Lock()
		if getChild(parent, dir) != nil {
			parent.treeLock.Unlock()
			pred.succLock.Unlock()
			continue
		}

		leaf := newLiveNode(k, v, pred, succ)
		pred.succ.Store(leaf)
		succ.pred.Store(leaf)

		setChild(parent, dir, leaf)
		leaf.parent.Store(parent)

		parent.treeLock.Unlock()
		pred.succLock.Unlock()

		t.size.Add(1)
		if t.Counters != nil {
			t.Counters.AddStructuralMod()
		}
		return nil, false, nil
	}
}

// reviveOrRefuse handles an exact tree hit for a node whose liveness
// state we have not yet locked. It takes the same lock pair Remove
// does (the node's predecessor, then the node itself, both succLocks)
// so the check can never interleave unsafely with a concurrent Remove
// of the same node.
func (t *Tree) reviveOrRefuse(n *node) (prev any, existed bool, retry bool, err error) {
	pred := n.pred.Load()
	pred.succLock.Lock()
	if pred.succ.Load() != n {
		pred.succLock.Unlock()
		return nil, false, true, nil
	}
	n.succLock.Lock()
	prev, existed, retry, err = t.reviveOrRefuseLocked(n)
	n.succLock.Unlock()
	pred.succLock.Unlock()
	return prev, existed, retry, err
}

// reviveOrRefuseLocked resolves put-if-absent against a node already
// protected by its succLock. A valid node refuses the put and reports
// the standing value. An invalid node was spliced out of the chain —
// in this variant logical removal and chain removal are one atomic
// step, so there is no tombstoned-in-chain state to revive; the caller
// must retry and insert a fresh node through the chain.
func (t *Tree) reviveOrRefuseLocked(n *node) (prev any, existed bool, retry bool, err error) {
	if !n.valid.Load() {
		return nil, false, true, nil
	}
	val := n.value.Load()
	if val != nil {
		return *val, true, false, nil
	}
	return nil, true, false, nil
}

func (t *Tree) Remove(k cmap.Comparator) (any, bool, error) {
	if k == nil {
		return nil, false, &cmaperr.NilKeyError{}
	}
	if t.Counters != nil {
		t.Counters.AddRemove()
	}

	for {
		n, err := t.locate(k)
		if err != nil {
			return nil, false, err
		}
		if n == nil {
			return nil, false, nil
		}

		pred := n.pred.Load()
		pred.succLock.Lock()
		n.succLock.Lock()

		if pred.succ.Load() != n || !n.valid.Load() {
			n.succLock.Unlock()
			pred.succLock.Unlock()
			continue
		}

		val := n.value.Load()
		previous := any(nil)
		if val != nil {
			previous = *val
		}

		succ := n.succ.Load()
		n.valid.Store(false)
		tomb := cmap.Tombstone
		n.value.Store(&tomb)
		pred.succ.Store(succ)
		succ.pred.Store(pred)

		n.succLock.Unlock()
		pred.succLock.Unlock()

		t.size.Add(-1)
		if t.Counters != nil {
			t.Counters.AddStructuralMod()
		}
		t.physicalUnlink(n)
		return previous, true, nil
	}
}

func (t *Tree) Size() int     { return int(t.size.Load()) }
func (t *Tree) IsEmpty() bool { return t.size.Load() == 0 }

// Clear drops every key. Callers must ensure quiescence; there is no
// coordination with in-flight mutators here.
func (t *Tree) Clear() {
	t.head.right.Store(nil)
	t.head.succ.Store(t.tail)
	t.tail.pred.Store(t.head)
	t.size.Store(0)
}

// physicalUnlink splices n out of the accelerator tree after it has
// already been removed from the chain, retrying individual try-lock
// failures until the splice lands. The retry is not optional politeness:
// a node left in the tree past its Remove keeps routing searches
// through frozen chain links that can bypass newer insertions, so the
// remover must see its own cleanup through before returning.
func (t *Tree) physicalUnlink(n *node) {
	for {
		if n.parent.Load() == nil {
			return
		}
		var done bool
		if l, r := getChild(n, -1), getChild(n, 1); l != nil && r != nil {
			done = t.tryUnlinkTwoChildren(n)
		} else {
			done = t.tryUnlinkDegreeAtMostOne(n)
		}
		if done {
			return
		}
		if t.Counters != nil {
			t.Counters.AddFailedLockAcquisition()
		}
		runtime.Gosched()
	}
}

func (t *Tree) tryUnlinkDegreeAtMostOne(n *node) bool {
	n.treeLock.Lock()
	defer n.treeLock.Unlock()

	l, r := getChild(n, -1), getChild(n, 1)
	if l != nil && r != nil {
		return false
	}
	parent := n.parent.Load()
	if parent == nil {
		return true
	}
	if !parent.treeLock.TryLock() {
		return false
	}
	defer parent.treeLock.Unlock()

	dir, ok := dirOf(parent, n)
	if !ok {
		return false
	}
	child := l
	if child == nil {
		child = r
	}
	setChild(parent, dir, child)
	if child != nil {
		child.parent.Store(parent)
	}
	n.parent.Store(nil)
	if t.Counters != nil {
		t.Counters.AddPhysicalUnlink()
	}
	return true
}

// tryUnlinkTwoChildren relocates n's in-order tree successor into n's
// position rather than copying its key/value, so that any list/cursor
// reference into the successor node remains valid. Locks are acquired
// in a fixed order: node, successor, successor's parent, successor's
// right child, with try-lock-and-give-up on conflict (the caller
// retries).
func (t *Tree) tryUnlinkTwoChildren(n *node) bool {
	n.treeLock.Lock()
	defer n.treeLock.Unlock()

	l, r := getChild(n, -1), getChild(n, 1)
	if l == nil || r == nil {
		return false
	}

	succ := r
	for {
		next := getChild(succ, -1)
		if next == nil {
			break
		}
		succ = next
	}
	if !succ.treeLock.TryLock() {
		return false
	}
	defer succ.treeLock.Unlock()

	// An insert may have slipped a new left child under succ between the
	// leftmost walk and the lock; succ is then no longer the successor.
	if getChild(succ, -1) != nil {
		return false
	}

	succParent := succ.parent.Load()
	if succParent == nil {
		return false
	}
	var succParentLocked bool
	if succParent != n {
		if !succParent.treeLock.TryLock() {
			return false
		}
		succParentLocked = true
		defer func() {
			if succParentLocked {
				succParent.treeLock.Unlock()
			}
		}()
	}

	succRight := getChild(succ, +1)
	if succRight != nil {
		if !succRight.treeLock.TryLock() {
			return false
		}
		defer succRight.treeLock.Unlock()
	}

	parent := n.parent.Load()
	if parent == nil {
		return true
	}
	var parentLocked bool
	if parent != succ && parent != succParent {
		if !parent.treeLock.TryLock() {
			return false
		}
		parentLocked = true
		defer func() {
			if parentLocked {
				parent.treeLock.Unlock()
			}
		}()
	}

	dir, ok := dirOf(parent, n)
	if !ok {
		return false
	}

	if succParent == n {
		setChild(succ, -1, l)
		if l != nil {
			l.parent.Store(succ)
		}
	} else {
		setChild(succParent, -1, succRight)
		if succRight != nil {
			succRight.parent.Store(succParent)
		}
		setChild(succ, -1, l)
		if l != nil {
			l.parent.Store(succ)
		}
		setChild(succ, +1, r)
		r.parent.Store(succ)
	}

	succ.parent.Store(parent)
	setChild(parent, dir, succ)
	n.parent.Store(nil)
	setChild(n, -1, nil)
	setChild(n, +1, nil)
	if t.Counters != nil {
		t.Counters.AddPhysicalUnlink()
	}
	return true
}
