package avltree

import (
	"sync/atomic"

	"github.com/tpernat/cbst/pkg/cmap"
	"github.com/tpernat/cbst/pkg/cmap/cmaperr"
	"github.com/tpernat/cbst/pkg/cmap/cstat"
)

// Tree is the contention-friendly AVL concurrent map. It implements
// cmap.Map.
type Tree struct {
	holder *node
	size   atomic.Int64

	// Counters, if set, receives the per-worker observable counts a
	// harness reads out. Nil (the default) disables accounting.
	Counters *cstat.Counters
}

// New returns an empty Tree.
func New() *Tree {
	return &Tree{holder: newHolder()}
}

func (t *Tree) Get(k cmap.Comparator) (any, bool, error) {
	if k == nil {
		return nil, false, &cmaperr.NilKeyError{}
	}
	res, err := t.searchPath(k)
	if err != nil {
		return nil, false, err
	}
	if res.current == nil {
		if t.Counters != nil {
			t.Counters.AddGet(false)
		}
		return nil, false, nil
	}
	v := res.current.value.Load()
	if v == nil || cmap.IsTombstone(*v) {
		if t.Counters != nil {
			t.Counters.AddGet(false)
		}
		return nil, false, nil
	}
	if t.Counters != nil {
		t.Counters.AddGet(true)
	}
	return *v, true, nil
}

func (t *Tree) PutIfAbsent(k cmap.Comparator, v any) (any, bool, error) {
	if k == nil {
		return nil, false, &cmaperr.NilKeyError{}
	}
	if t.Counters != nil {
		t.Counters.AddPutIfAbsent()
	}

	for {
		res, err := t.searchPath(k)
		if err != nil {
			return nil, false, err
		}

		if res.current != nil {
			n := res.current
			n.lock.Lock()
			if n.removed.Load() {
				n.lock.Unlock()
				continue
			}
			val := n.value.Load()
			if val != nil && !cmap.IsTombstone(*val) {
				existing := *val
				n.lock.Unlock()
				return existing, true, nil
			}
			n.value.Store(&v)
			n.lock.Unlock()
			t.size.Add(1)
			if t.Counters != nil {
				t.Counters.AddStructuralMod()
			}
			return nil, false, nil
		}

		parent := res.parent
		parent.lock.Lock()
		if parent.removed.Load() || getChild(parent, res.dir) != nil {
			parent.lock.Unlock()
			continue
		}
		leaf := newLeaf(k, v, parent)
		setChild(parent, res.dir, leaf)
		parent.lock.Unlock()

		t.size.Add(1)
		if t.Counters != nil {
			t.Counters.AddStructuralMod()
		}
		t.rebalanceFrom(parent)
		return nil, false, nil
	}
}

func (t *Tree) Remove(k cmap.Comparator) (any, bool, error) {
	if k == nil {
		return nil, false, &cmaperr.NilKeyError{}
	}
	if t.Counters != nil {
		t.Counters.AddRemove()
	}

	for {
		res, err := t.searchPath(k)
		if err != nil {
			return nil, false, err
		}
		if res.current == nil {
			return nil, false, nil
		}

		n := res.current
		n.lock.Lock()
		if n.removed.Load() {
			n.lock.Unlock()
			continue
		}
		val := n.value.Load()
		if val == nil || cmap.IsTombstone(*val) {
			n.lock.Unlock()
			return nil, false, nil
		}
		previous := *val
		tomb := cmap.Tombstone
		n.value.Store(&tomb)
		n.lock.Unlock()

		t.size.Add(-1)
		if t.Counters != nil {
			t.Counters.AddStructuralMod()
		}
		t.rebalanceFrom(n)
		return previous, true, nil
	}
}

func (t *Tree) Size() int    { return int(t.size.Load()) }
func (t *Tree) IsEmpty() bool { return t.size.Load() == 0 }

// Clear drops every key in O(1). Callers must not have any concurrent
// mutator in flight: there is no coordination here to quiesce one.
func (t *Tree) Clear() {
	t.holder.right.Store(nil)
	t.size.Store(0)
}

// rebalanceFrom walks upward from n, fixing stale heights, unlinking
// tombstoned degree <=1 nodes, and rotating unbalanced subtrees, until
// it reaches a node that needs none of the three.
func (t *Tree) rebalanceFrom(n *node) {
	for n != nil && !n.isHolder {
		if n.removed.Load() {
			// Another thread unlinked or rotated n away; its parent
			// pointer still names the pre-removal parent, so the walk
			// continues from there.
			n = n.parent.Load()
			continue
		}
		switch condition(n) {
		case condNothing:
			return

		case condHeightUpdate:
			parent := n.parent.Load()
			t.fixHeight(n)
			n = parent

		case condUnlink:
			parent := n.parent.Load()
			if parent == nil {
				return
			}
			if t.tryUnlink(parent, n) {
				n = parent
			}
			// else: conditions changed under lock; re-examine n.

		case condRebalance:
			parent := n.parent.Load()
			if parent == nil {
				return
			}
			if newRoot, ok := t.tryRebalance(parent, n); ok {
				n = newRoot
			}
			// else: conditions changed under lock; re-examine n.
		}
	}
}

const (
	condNothing = iota
	condHeightUpdate
	condUnlink
	condRebalance
)

// condition classifies what n needs done, reading its children's
// heights without any lock (heights only ever move toward a correct
// value and stale reads just cause a retry, never corruption).
func condition(n *node) int {
	val := n.value.Load()
	l, r := getChild(n, -1), getChild(n, 1)

	if val != nil && cmap.IsTombstone(*val) && (l == nil || r == nil) {
		return condUnlink
	}

	lh, rh := height(l), height(r)
	balance := int(rh) - int(lh)
	if balance > 1 || balance < -1 {
		return condRebalance
	}

	if n.height.Load() != 1+max32(lh, rh) {
		return condHeightUpdate
	}
	return condNothing
}

func (t *Tree) fixHeight(n *node) {
	n.lock.Lock()
	defer n.lock.Unlock()
	if n.removed.Load() {
		return
	}
	expected := 1 + max32(height(getChild(n, -1)), height(getChild(n, 1)))
	n.height.Store(expected)
}

// tryUnlink physically removes n from the tree once it carries a
// tombstone and has at most one child, splicing that child (or nil)
// into n's slot in parent. Returns false if re-validation under lock
// finds the preconditions no longer hold.
func (t *Tree) tryUnlink(parent, n *node) bool {
	parent.lock.Lock()
	defer parent.lock.Unlock()

	// Validate the edge before blocking on n's lock: holding parent with
	// parent.child == n pins n below parent, so the later acquisition can
	// never form a lock-order cycle with another thread that believes the
	// hierarchy runs the other way.
	dir, ok := dirOf(parent, n)
	if !ok || parent.removed.Load() {
		return false
	}

	n.lock.Lock()
	defer n.lock.Unlock()

	if n.removed.Load() {
		return false
	}
	val := n.value.Load()
	if val == nil || !cmap.IsTombstone(*val) {
		return false
	}
	l, r := getChild(n, -1), getChild(n, 1)
	if l != nil && r != nil {
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
	forward(n, child)
	if t.Counters != nil {
		t.Counters.AddPhysicalUnlink()
	}
	return true
}

// tryRebalance rotates n's subtree back into AVL balance. Returns the
// new subtree root and true on success, or false if re-validation under
// lock finds the imbalance already resolved or n already gone (the
// caller re-examines n from the top of the loop in that case).
func (t *Tree) tryRebalance(parent, n *node) (*node, bool) {
	parent.lock.Lock()

	// Same edge-validation-before-second-lock rule as tryUnlink.
	dir, ok := dirOf(parent, n)
	if !ok || parent.removed.Load() {
		parent.lock.Unlock()
		return nil, false
	}
	n.lock.Lock()

	lh, rh := height(getChild(n, -1)), height(getChild(n, 1))
	balance := int(rh) - int(lh)

	var heavySign int
	switch {
	case balance > 1:
		heavySign = 1
	case balance < -1:
		heavySign = -1
	default:
		n.lock.Unlock()
		parent.lock.Unlock()
		return nil, false
	}

	tall := getChild(n, heavySign)
	if tall == nil {
		n.lock.Unlock()
		parent.lock.Unlock()
		return nil, false
	}
	tall.lock.Lock()

	tallBalance := int(height(getChild(tall, 1))) - int(height(getChild(tall, -1)))
	rotSign := -heavySign

	// A balanced taller child takes the single rotation. The tie is
	// reachable only from delete-triggered shrink, and the double
	// rotation would leave the demoted node re-unbalanced by 2 with no
	// walk ever revisiting it; the single rotation restores the
	// invariant at both affected levels.
	var newRoot *node
	if heavySign*tallBalance >= 0 {
		newRoot = rotateOnce(n, rotSign)
		tall.lock.Unlock()
	} else {
		inner := getChild(tall, rotSign)
		if inner == nil {
			tall.lock.Unlock()
			n.lock.Unlock()
			parent.lock.Unlock()
			return nil, false
		}
		inner.lock.Lock()
		newRoot = rotateDouble(n, tall, rotSign)
		inner.lock.Unlock()
		tall.lock.Unlock()
	}

	setChild(parent, dir, newRoot)
	newRoot.parent.Store(parent)

	n.lock.Unlock()
	parent.lock.Unlock()
	return newRoot, true
}
