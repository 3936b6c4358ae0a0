package ordered

import "github.com/tpernat/cbst/pkg/cmap"

type entry struct {
	key   cmap.Comparator
	value any
}

// iterator walks a snapshot of the chain taken at creation time by
// following succ pointers from the head. The chain is already the
// in-order sequence, so no tree recursion is needed.
type iterator struct {
	entries []entry
	pos     int
}

func (t *Tree) Iterator() cmap.Iterator {
	var entries []entry
	for n := t.head.succ.Load(); n != nil && !n.isHolder; n = n.succ.Load() {
		if !n.valid.Load() {
			continue
		}
		val := n.value.Load()
		if val == nil || cmap.IsTombstone(*val) {
			continue
		}
		entries = append(entries, entry{key: n.key, value: *val})
	}
	return &iterator{entries: entries, pos: -1}
}

func (it *iterator) Next() bool {
	if it.pos+1 >= len(it.entries) {
		return false
	}
	it.pos++
	return true
}

func (it *iterator) Key() cmap.Comparator { return it.entries[it.pos].key }
func (it *iterator) Value() any           { return it.entries[it.pos].value }
