// Package avltree implements the contention-friendly AVL variant: a
// concurrent binary search tree with a per-node lock, optimistic
// (lock-free) descent for reads, and a rebalance machine that restores
// AVL balance by rotating a freshly-cloned node into the structure so
// that concurrent readers already past the old node see either the
// pre-rotation subtree or a forwarding pointer, never a torn state.
package avltree

import (
	"sync/atomic"

	"github.com/tpernat/cbst/pkg/cmap"
	"github.com/tpernat/cbst/pkg/cmap/synclock"
)

// node is a single AVL tree node. left/right/parent and value are atomic
// so that readers can traverse and read them without taking the node
// lock, while writers still serialize structural changes through lock.
type node struct {
	key     cmap.Comparator
	value   atomic.Pointer[any]
	left    atomic.Pointer[node]
	right   atomic.Pointer[node]
	parent  atomic.Pointer[node]
	height  atomic.Int32
	removed atomic.Bool
	lock    *synclock.Mutex

	// isHolder marks the root-holder sentinel: its right child is the
	// real tree root, and it compares as less than every real key, so
	// the holder is always the grandparent of a root rotation and no
	// rotate-at-root special case is needed.
	isHolder bool
}

func newHolder() *node {
	n := &node{lock: synclock.New(), isHolder: true}
	return n
}

func newLeaf(k cmap.Comparator, v any, parent *node) *node {
	n := &node{key: k, lock: synclock.New()}
	n.value.Store(&v)
	n.height.Store(1)
	n.parent.Store(parent)
	return n
}

// cloneNode copies a node's key/value/height into a fresh node with its
// own lock, for splicing into a rotated position. The clone does not
// copy left/right/parent/removed; the caller sets those explicitly as
// part of the rotation.
func cloneNode(n *node) *node {
	c := &node{key: n.key, lock: synclock.New()}
	c.value.Store(n.value.Load())
	c.height.Store(n.height.Load())
	return c
}

// forward marks old as physically unlinked and points both of its
// children at replacement, so a reader who already holds a reference to
// old (observed before the structural change completed) can detect
// old.removed and redirect its search through replacement rather than
// stalling.
func forward(old, replacement *node) {
	old.left.Store(replacement)
	old.right.Store(replacement)
	old.removed.Store(true)
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

// dirOf reports which side of parent holds child, or false if child is
// not (no longer) a direct child of parent.
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
