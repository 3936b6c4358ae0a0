package splaytree

import "github.com/tpernat/cbst/pkg/cmap"

type entry struct {
	key   cmap.Comparator
	value any
}

// iterator is a snapshot-at-creation ascending cursor, for the same
// reasons as pkg/avltree's: a tree that keeps splaying under a live
// cursor has no stable "next node" to hold a reference to.
type iterator struct {
	entries []entry
	idx     int
}

func (t *Tree) Iterator() cmap.Iterator {
	var entries []entry
	var walk func(n *node)
	walk = func(n *node) {
		if n == nil {
			return
		}
		walk(n.left.Load())
		if !n.removed.Load() {
			if v := n.value.Load(); v != nil && !cmap.IsTombstone(*v) {
				entries = append(entries, entry{key: n.key, value: *v})
			}
		}
		walk(n.right.Load())
	}
	walk(t.holder.right.Load())
	return &iterator{entries: entries, idx: -1}
}

func (it *iterator) Next() bool {
	it.idx++
	return it.idx < len(it.entries)
}

func (it *iterator) Key() cmap.Comparator { return it.entries[it.idx].key }
func (it *iterator) Value() any           { return it.entries[it.idx].value }
