package splaytree

import "github.com/tpernat/cbst/pkg/cmap"

type searchResult struct {
	current *node
	parent  *node
	dir     int
	depth   int
}

// searchPath descends lock-free from the root holder, exactly like
// pkg/avltree's search path engine. Unlike that package, a node
// observed removed mid-descent causes a full restart from the root
// rather than following the removed node's forwarded child slot. A one-step
// recovery could spuriously miss a key when the unlinked node's former
// subtree has been rotated away in the meantime; restarting is always
// correct, at the cost of doing the descent again.
func (t *Tree) searchPath(k cmap.Comparator) (*searchResult, error) {
	for {
		parent := t.holder
		dir := +1
		cur := getChild(parent, dir)
		depth := 0
		restart := false

		for cur != nil {
			if cur.removed.Load() {
				restart = true
				break
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

		if restart {
			continue
		}
		return &searchResult{current: nil, parent: parent, dir: dir, depth: depth}, nil
	}
}
