package optimistic

import "github.com/tpernat/cbst/pkg/cmap"

type entry struct {
	key   cmap.Comparator
	value any
}

// iterator walks a snapshot of live entries taken at creation time, the
// same convention pkg/avltree and pkg/splaytree use: in-order recursive
// walk collected up front, then served from a slice cursor.
type iterator struct {
	entries []entry
	pos     int
}

func (t *Tree) Iterator() cmap.Iterator {
	var entries []entry
	var walk func(n *node)
	walk = func(n *node) {
		if n == nil {
			return
		}
		walk(n.left.Load())
		if !n.isHolder {
			if val := n.value.Load(); val != nil && !cmap.IsTombstone(*val) {
				entries = append(entries, entry{key: n.key, value: *val})
			}
		}
		walk(n.right.Load())
	}
	walk(t.holder)
	return &iterator{entries: entries, pos: -1}
}

func (it *iterator) Next() bool {
	if it.pos+1 >= len(it.entries) {
		return false
	}
	it.pos++
	return true
}

func (it *iterator) Key() cmap.Comparator {
	return it.entries[it.pos].key
}

func (it *iterator) Value() any {
	return it.entries[it.pos].value
}
