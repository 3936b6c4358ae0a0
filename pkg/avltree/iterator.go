package avltree

import "github.com/tpernat/cbst/pkg/cmap"

type entry struct {
	key   cmap.Comparator
	value any
}

// iterator is a weakly-consistent ascending cursor: it walks the tree
// once at creation time and buffers the live entries it saw, rather
// than holding a live cursor into a structure that keeps rotating and
// unlinking under it. A key inserted or removed after Iterator() is
// called may or may not appear; a key present for the iterator's whole
// lifetime always does, satisfying the contract in cmap.Iterator.
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
