// Package optimistic implements the optimistic-version engine: a
// hand-over-hand read protocol validated against a per-node changeOVL
// word instead of a read lock, in the style of the Bronson et al.
// concurrent AVL tree. The node that moves during a rotation stays the
// same object (no clone-on-write), so readers validate structural
// stability by comparing changeOVL snapshots rather than by following
// a removed/forwarding pointer the way pkg/avltree and pkg/splaytree
// do.
package optimistic

import (
	"sync/atomic"

	"github.com/tpernat/cbst/pkg/cmap"
	"github.com/tpernat/cbst/pkg/cmap/synclock"
)

type node struct {
	key       cmap.Comparator
	value     atomic.Pointer[any]
	left      atomic.Pointer[node]
	right     atomic.Pointer[node]
	parent    atomic.Pointer[node]
	height    atomic.Int32
	changeOVL atomic.Uint64

	// lock guards every writer-side structural or value change; only its
	// exclusive holder may flip the OVL lock bits. Readers never take it
	// exclusively — they validate changeOVL instead — but a reader that
	// has spun and yielded through an in-progress shrink falls back to a
	// shared acquisition, which waits out the writer without serializing
	// the waiting readers behind one another.
	lock *synclock.Mutex

	isHolder bool
}

func newHolder() *node {
	return &node{isHolder: true, lock: synclock.New()}
}

func newLeaf(k cmap.Comparator, v any, parent *node) *node {
	n := &node{key: k, lock: synclock.New()}
	n.value.Store(&v)
	n.height.Store(1)
	n.parent.Store(parent)
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

func height(n *node) int32 {
	if n == nil {
		return 0
	}
	return n.height.Load()
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

func unlockAll(nodes []*node) {
	for _, n := range nodes {
		n.lock.Unlock()
	}
}
