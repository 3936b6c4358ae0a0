package optimistic

import (
	"runtime"

	"github.com/tpernat/cbst/pkg/cmap"
)

// waitUntilNotShrinking blocks until n's changeOVL no longer has its
// shrink bit set: spin up to SpinCount, then yield up to YieldCount,
// then take n's lock in shared mode, since acquiring it is guaranteed
// to wait past any in-progress shrink (the shrinking writer holds it
// exclusively) without serializing other waiting readers.
func (t *Tree) waitUntilNotShrinking(n *node) {
	for i := 0; i < t.cfg.SpinCount; i++ {
		if !isShrinking(n.changeOVL.Load()) {
			return
		}
	}
	for i := 0; i < t.cfg.YieldCount; i++ {
		runtime.Gosched()
		if !isShrinking(n.changeOVL.Load()) {
			return
		}
	}
	n.lock.RLock()
	n.lock.RUnlock()
}

// getUnderNode implements the hand-over-hand validation protocol:
// read this node's changeOVL before descending further, and
// re-validate it after the recursive call returns, since a shrink
// completing at this level could have rerouted the search. retry==true
// tells the caller to restart the whole Get from the holder.
func (t *Tree) getUnderNode(n *node, k cmap.Comparator) (value any, found bool, retry bool, err error) {
	ovl := n.changeOVL.Load()
	if isShrinking(ovl) || isUnlinked(ovl) {
		t.waitUntilNotShrinking(n)
		return nil, false, true, nil
	}
	if !n.isHolder && t.Counters != nil {
		t.Counters.AddNodeTraversed()
	}

	var child *node
	if n.isHolder {
		child = getChild(n, +1)
	} else {
		cmp, cerr := cmap.SafeCompare(k, n.key)
		if cerr != nil {
			return nil, false, false, cerr
		}
		if cmp == 0 {
			val := n.value.Load()
			if n.changeOVL.Load() != ovl {
				return nil, false, true, nil
			}
			if val == nil || cmap.IsTombstone(*val) {
				return nil, false, false, nil
			}
			return *val, true, false, nil
		}
		if cmp < 0 {
			child = getChild(n, -1)
		} else {
			child = getChild(n, +1)
		}
	}

	if child == nil {
		if n.changeOVL.Load() != ovl {
			return nil, false, true, nil
		}
		return nil, false, false, nil
	}

	value, found, retry, err = t.getUnderNode(child, k)
	if retry || err != nil {
		return value, found, retry, err
	}
	if !n.isHolder && n.changeOVL.Load() != ovl {
		return nil, false, true, nil
	}
	return value, found, false, nil
}

// searchResult is the outcome of a lock-free descent used by Put/Remove
// to locate the attachment point. parentOVL is parent's changeOVL as
// sampled before its child slot was read: an insert re-checks it under
// parent's lock, because a rotation can shrink the key range a null
// slot covers without unlinking the parent, and attaching there
// afterward would misplace the key. An exact match needs no such
// check — a node's key identity is position-independent.
type searchResult struct {
	current   *node
	parent    *node
	dir       int
	parentOVL uint64
}

func (t *Tree) searchPath(k cmap.Comparator) (*searchResult, error) {
	parent := t.holder
	parentOVL := parent.changeOVL.Load()
	dir := +1
	cur := getChild(parent, dir)

	for cur != nil {
		curOVL := cur.changeOVL.Load()
		if isUnlinked(curOVL) {
			cur = getChild(parent, dir)
			continue
		}
		if t.Counters != nil {
			t.Counters.AddNodeTraversed()
		}

		cmp, err := cmap.SafeCompare(k, cur.key)
		if err != nil {
			return nil, err
		}
		if cmp == 0 {
			return &searchResult{current: cur, parent: parent, dir: dir, parentOVL: parentOVL}, nil
		}

		parent = cur
		parentOVL = curOVL
		if cmp < 0 {
			dir = -1
		} else {
			dir = +1
		}
		cur = getChild(cur, dir)
	}

	return &searchResult{current: nil, parent: parent, dir: dir, parentOVL: parentOVL}, nil
}
