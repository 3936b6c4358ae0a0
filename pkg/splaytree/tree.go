package splaytree

import (
	"sync/atomic"

	"github.com/tpernat/cbst/pkg/cmap"
	"github.com/tpernat/cbst/pkg/cmap/cmaperr"
	"github.com/tpernat/cbst/pkg/cmap/cstat"
)

// Tree is the contention-friendly splay concurrent map. It implements
// cmap.Map.
type Tree struct {
	holder   *node
	size     atomic.Int64
	accesses atomic.Int64
	cfg      cmap.Config

	// Counters, if set, receives the per-worker observable counts a
	// harness reads out. Nil (the default) disables accounting.
	Counters *cstat.Counters
}

// New returns an empty Tree tuned by cfg. Pass cmap.DefaultConfig() for
// the reference tunables.
func New(cfg cmap.Config) *Tree {
	return &Tree{holder: newHolder(), cfg: cfg}
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
	value := *v
	if t.Counters != nil {
		t.Counters.AddGet(true)
	}
	t.maybeSplay(res.current, res.depth)
	return value, true, nil
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
				t.maybeSplay(n, res.depth)
				return existing, true, nil
			}
			n.value.Store(&v)
			n.lock.Unlock()
			t.size.Add(1)
			if t.Counters != nil {
				t.Counters.AddStructuralMod()
			}
			t.maybeSplay(n, res.depth)
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
		t.maybeSplay(leaf, res.depth+1)
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
		t.maybeSplay(n, res.depth)
		t.unlinkUpward(n)
		return previous, true, nil
	}
}

func (t *Tree) Size() int     { return int(t.size.Load()) }
func (t *Tree) IsEmpty() bool { return t.size.Load() == 0 }

// Clear drops every key. Callers must ensure quiescence; there is no
// coordination with in-flight mutators here.
func (t *Tree) Clear() {
	t.holder.right.Store(nil)
	t.size.Store(0)
}

// unlinkUpward physically removes n if it is an eligible tombstone,
// then keeps climbing: unlinking a node empties a child slot of its
// parent, which may turn the parent into an eligible tombstone in
// turn. The climb stops at the first node that is live, still has two
// children, or whose unlink validation fails.
func (t *Tree) unlinkUpward(n *node) {
	for n != nil && !n.isHolder {
		parent := n.parent.Load()
		if parent == nil {
			return
		}
		if !t.tryUnlink(parent, n) {
			return
		}
		n = parent
	}
}

// tryUnlink physically removes n from the tree once it carries a
// tombstone and has at most one child. Shared by the opportunistic
// unlink piggybacked on splay steps and on every remove.
func (t *Tree) tryUnlink(parent, n *node) bool {
	parent.lock.Lock()
	defer parent.lock.Unlock()

	// Validate the edge before blocking on n's lock: parent.child == n
	// under parent's lock pins n below parent, so the second acquisition
	// cannot form a lock-order cycle with a thread that observed the
	// hierarchy the other way around.
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
