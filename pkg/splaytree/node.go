// Package splaytree implements the contention-friendly splay variant:
// same node/search substrate as pkg/avltree, but instead of a height
// field and a deterministic rebalance machine it carries a per-node
// access counter and probabilistically splays the accessed node toward
// the root, gated by global and per-node access counts.
package splaytree

import (
	"sync/atomic"

	"github.com/tpernat/cbst/pkg/cmap"
	"github.com/tpernat/cbst/pkg/cmap/synclock"
)

type node struct {
	key     cmap.Comparator
	value   atomic.Pointer[any]
	left    atomic.Pointer[node]
	right   atomic.Pointer[node]
	parent  atomic.Pointer[node]
	counter atomic.Int64
	removed atomic.Bool
	lock    *synclock.Mutex

	isHolder bool
}

func newHolder() *node {
	return &node{lock: synclock.New(), isHolder: true}
}

func newLeaf(k cmap.Comparator, v any, parent *node) *node {
	n := &node{key: k, lock: synclock.New()}
	n.value.Store(&v)
	n.parent.Store(parent)
	return n
}

// cloneNode copies key/value/counter into a fresh node with its own
// lock, for splicing into a rotated position.
func cloneNode(n *node) *node {
	c := &node{key: n.key, lock: synclock.New()}
	c.value.Store(n.value.Load())
	c.counter.Store(n.counter.Load())
	return c
}

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

func dirOf(parent, child *node) (int, bool) {
	if getChild(parent, -1) == child {
		return -1, true
	}
	if getChild(parent, +1) == child {
		return +1, true
	}
	return 0, false
}
