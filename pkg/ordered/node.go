// Package ordered implements the logical-ordering variant: the
// doubly-linked pred/succ chain over live nodes is the sole
// source of truth for key presence, and the binary tree is only a
// search accelerator a reader may use to jump near a key before
// finishing the walk along the chain. Unlike pkg/avltree and
// pkg/splaytree, the tree here is never rebalanced: an unbalanced or
// even stale accelerator only costs extra chain-walking steps, it
// never produces a wrong answer, because every reader ultimately
// confirms (or refutes) a candidate by comparator against the chain.
package ordered

import (
	"sync"
	"sync/atomic"

	"github.com/tpernat/cbst/pkg/cmap"
)

type node struct {
	key   cmap.Comparator
	value atomic.Pointer[any]
	valid atomic.Bool

	// Tree edges: an accelerator only, mutated under treeLock.
	left   atomic.Pointer[node]
	right  atomic.Pointer[node]
	parent atomic.Pointer[node]

	// List edges: the authoritative key order, mutated under succLock.
	pred atomic.Pointer[node]
	succ atomic.Pointer[node]

	// succLock guards this node's own succ pointer, and doubles as the
	// gate for "insert immediately after this node" and "remove this
	// node" (see tree.go's Remove for why both operations need it).
	succLock sync.Mutex

	// treeLock guards this node's own left/right/parent tree edges.
	treeLock sync.Mutex

	isHolder bool
}

// newHead returns the list/tree head sentinel: an implicit -infinity
// key, always valid, whose right tree child is the real accelerator
// root and whose succ chain link is the first live node.
func newHead() *node {
	n := &node{isHolder: true}
	n.valid.Store(true)
	return n
}

// newTail returns the list tail sentinel: an implicit +infinity key,
// never a tree member.
func newTail() *node {
	n := &node{isHolder: true}
	n.valid.Store(true)
	return n
}

func newLiveNode(k cmap.Comparator, v any, pred, succ *node) *node {
	n := &node{key: k}
	n.value.Store(&v)
	n.valid.Store(true)
	n.pred.Store(pred)
	n.succ.Store(succ)
	return n
}

func getChild(n *node, dir int) *node {
	if dir < 0 {
		return n.left.Load()
	}
	return n.right.Load()
}

func setChild(n *node, dir int, child *node) {
	if dir < 0 {
		n.left.Store(child)
	} else {
		n.right.Store(child)
	}
}

func dirOf(parent, child *node) (int, bool) {
	if getChild(parent, -1) == child {
		return -1, true
	}
	if getChild(parent, +1) == child {
		return +1, true
	}
	return 0, false
}
