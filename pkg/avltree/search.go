package avltree

import "github.com/tpernat/cbst/pkg/cmap"

// searchResult is the outcome of a lock-free descent: either current is
// the live (or tombstoned) node matching k, or current is nil and
// parent/dir name the empty child slot where k would be inserted.
type searchResult struct {
	current *node
	parent  *node
	dir     int
	depth   int
}

// searchPath descends from the root holder comparing keys without
// taking any lock. A node observed with removed set is a stale
// reference left behind by a rotation or unlink; both of its child
// slots were forwarded to the node that took over its key range before
// the removed flag became visible, so the descent follows either slot
// and continues from there rather than treating the key as absent.
func (t *Tree) searchPath(k cmap.Comparator) (*searchResult, error) {
	parent := t.holder
	dir := +1
	cur := getChild(parent, dir)
	depth := 0

	for cur != nil {
		if cur.removed.Load() {
			cur = cur.left.Load()
			continue
		}
		if t.Counters != nil {
			t.Counters.AddNodeTraversed()
		}

		cmp, err := cmap.SafeCompare(k, cur.key)
		if err != nil {
			return nil, err
		}
		depth++

		if cmp == 0 {
			return &searchResult{current: cur, parent: parent, dir: dir, depth: depth}, nil
		}

		parent = cur
		if cmp < 0 {
			dir = -1
		} else {
			dir = +1
		}
		cur = getChild(cur, dir)
	}

	return &searchResult{current: nil, parent: parent, dir: dir, depth: depth}, nil
}
