package ordered

import (
	"runtime"

	"github.com/tpernat/cbst/pkg/cmap"
)

// descend walks the accelerator tree from the head and returns either
// the exact live match (found == true) or the last node visited before
// a nil child (found == false, a near-miss). Invalid nodes passed on
// the way down still route correctly (their key constraints match
// their tree position), but an invalid node at a decision point — an
// exact key hit, or the near-miss itself — means a removal's tree
// cleanup is still in flight, and its frozen chain links cannot be
// trusted; the descent restarts until the remover finishes.
// wentRight reports whether the final step off the near-miss tried the
// right child (relevant to callers computing an insertion pred).
func (t *Tree) descend(k cmap.Comparator) (near *node, wentRight bool, found bool, err error) {
	for {
		cur := t.head
		dir := +1
		child := getChild(cur, dir)
		restart := false

		for child != nil {
			if t.Counters != nil {
				t.Counters.AddNodeTraversed()
			}
			cmp, cerr := cmap.SafeCompare(k, child.key)
			if cerr != nil {
				return nil, false, false, cerr
			}
			if cmp == 0 {
				if !child.valid.Load() {
					restart = true
					break
				}
				return child, false, true, nil
			}
			cur = child
			if cmp < 0 {
				dir = -1
			} else {
				dir = +1
			}
			child = getChild(cur, dir)
		}
		if !restart && !cur.isHolder && !cur.valid.Load() {
			restart = true
		}
		if !restart {
			return cur, dir == +1, false, nil
		}
		runtime.Gosched()
	}
}

// walkForward scans the succ chain starting at start looking for k,
// stopping as soon as the comparator sign flips (k would sort before
// the next node) or the tail sentinel is reached. Stepping onto an
// invalid node means the walk raced a removal and its frozen succ
// pointer may bypass a newer insertion, so the caller must restart
// from the tree.
func walkForward(start *node, k cmap.Comparator) (match *node, restart bool, err error) {
	n := start
	for {
		next := n.succ.Load()
		if next == nil || next.isHolder {
			return nil, false, nil
		}
		if !next.valid.Load() {
			return nil, true, nil
		}
		cmp, cerr := cmap.SafeCompare(k, next.key)
		if cerr != nil {
			return nil, false, cerr
		}
		if cmp == 0 {
			return next, false, nil
		}
		if cmp < 0 {
			return nil, false, nil
		}
		n = next
	}
}

// walkBackward is walkForward's mirror along the pred chain.
func walkBackward(start *node, k cmap.Comparator) (match *node, restart bool, err error) {
	n := start
	for {
		prev := n.pred.Load()
		if prev == nil || prev.isHolder {
			return nil, false, nil
		}
		if !prev.valid.Load() {
			return nil, true, nil
		}
		cmp, cerr := cmap.SafeCompare(k, prev.key)
		if cerr != nil {
			return nil, false, cerr
		}
		if cmp == 0 {
			return prev, false, nil
		}
		if cmp > 0 {
			return nil, false, nil
		}
		n = prev
	}
}

// locate finds the live node matching k (if any) using the tree as a
// shortcut and the chain as ground truth: descend the tree, possibly
// ending at a non-matching node, then walk pred or succ until the
// comparator reaches zero or changes sign. Every chain step is taken
// from a node observed valid, so a completed walk's answer is
// anchored to a moment when the traversed neighborhood was intact.
func (t *Tree) locate(k cmap.Comparator) (*node, error) {
	for {
		near, _, found, err := t.descend(k)
		if err != nil {
			return nil, err
		}
		if found {
			return near, nil
		}

		var match *node
		var restart bool
		if near.isHolder {
			match, restart, err = walkForward(near, k)
		} else {
			var cmp int
			cmp, err = cmap.SafeCompare(k, near.key)
			if err != nil {
				return nil, err
			}
			if cmp > 0 {
				match, restart, err = walkForward(near, k)
			} else {
				match, restart, err = walkBackward(near, k)
			}
		}
		if err != nil {
			return nil, err
		}
		if !restart {
			return match, nil
		}
		runtime.Gosched()
	}
}
