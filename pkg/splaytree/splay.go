package splaytree

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/tpernat/cbst/pkg/cmap/cmaperr"
)

// maybeSplay runs the probabilistic splay gate after a successful
// get/putIfAbsent/remove on n, observed at descent depth depth. A
// splay is attempted with probability 1/(InvSplayProb*ThreadNum); past
// that draw, m = log(total-accesses / node-accesses) gates both
// whether splaying starts at all and how long it continues.
//
// The public Map interface carries no caller/thread identity (Go
// goroutines have no OS-thread-local storage for the core to key off),
// so total accesses is a single tree-wide monotonic counter rather
// than a true per-thread count.
func (t *Tree) maybeSplay(n *node, depth int) {
	total := t.accesses.Add(1)
	nodeAccesses := n.counter.Add(1)

	if rand.Float64() >= t.cfg.SplayProbability() {
		return
	}

	ratio := float64(total) / float64(nodeAccesses)
	if ratio < 1 {
		ratio = 1
	}
	m := math.Log(ratio)

	if !(float64(depth) > t.cfg.K1*m) {
		return
	}
	if !(depth > t.cfg.MaxDepth) {
		return
	}

	conflictBudget := t.cfg.Conflicts
	for float64(depth) > t.cfg.K2*m && depth > t.cfg.MaxDepth+1 && conflictBudget > 0 {
		t.opportunisticUnlink(n)

		advanced, ok := t.trySplayStep(n, &conflictBudget)
		if !ok {
			return
		}
		depth -= advanced
	}
}

// opportunisticUnlink attempts to physically remove n's parent or
// grandparent if either carries a tombstone with at most one child,
// piggybacking reclamation on a hot access path.
func (t *Tree) opportunisticUnlink(n *node) {
	parent := n.parent.Load()
	if parent == nil || parent.isHolder {
		return
	}
	grandparent := parent.parent.Load()
	if grandparent == nil || grandparent.isHolder {
		return
	}
	t.tryUnlink(grandparent, parent)
	if greatgrandparent := grandparent.parent.Load(); greatgrandparent != nil {
		t.tryUnlink(greatgrandparent, grandparent)
	}
}

// tryLockAll attempts, top-down, to take every node's lock with up to
// spinCount tries each, charging one unit of conflictBudget per failed
// attempt. On any node's attempts being exhausted (or the budget
// running out first), every lock already acquired is released and
// false is returned.
func (t *Tree) tryLockAll(conflictBudget *int, spinCount int, nodes ...*node) bool {
	locked := make([]*node, 0, len(nodes))
	for _, n := range nodes {
		ok := false
		for attempt := 0; attempt < spinCount && *conflictBudget > 0; attempt++ {
			if n.lock.TryLock() {
				ok = true
				break
			}
			*conflictBudget--
			if t.Counters != nil {
				t.Counters.AddFailedLockAcquisition()
			}
		}
		if !ok {
			for _, l := range locked {
				l.lock.Unlock()
			}
			return false
		}
		locked = append(locked, n)
	}
	return true
}

// trySplayStep promotes n one level (zig) or two levels (zig-zig /
// zig-zag) toward the root, if it can acquire every lock the rotation
// needs within conflictBudget. Returns how many levels n advanced and
// whether the step actually ran.
func (t *Tree) trySplayStep(n *node, conflictBudget *int) (int, bool) {
	parent := n.parent.Load()
	if parent == nil || parent.isHolder {
		return 0, false
	}
	grandparent := parent.parent.Load()
	if grandparent == nil {
		return 0, false
	}

	if grandparent.isHolder {
		return t.zig(n, parent, grandparent, conflictBudget)
	}

	greatgrandparent := grandparent.parent.Load()
	if greatgrandparent == nil {
		return 0, false
	}
	return t.zigzigOrZigzag(n, parent, grandparent, greatgrandparent, conflictBudget)
}

func (t *Tree) zig(n, parent, holder *node, conflictBudget *int) (int, bool) {
	if !t.tryLockAll(conflictBudget, t.cfg.SpinCount, holder, parent) {
		return 0, false
	}
	if !n.lock.TryLock() {
		parent.lock.Unlock()
		holder.lock.Unlock()
		*conflictBudget--
		if t.Counters != nil {
			t.Counters.AddFailedLockAcquisition()
		}
		return 0, false
	}
	defer n.lock.Unlock()
	defer parent.lock.Unlock()
	defer holder.lock.Unlock()

	if n.removed.Load() || n.parent.Load() != parent {
		return 0, false
	}
	// Under both locks, n.parent == parent guarantees parent agreement;
	// a miss here is a broken structural invariant, not staleness.
	dir, ok := dirOf(parent, n)
	if !ok {
		panic(fmt.Errorf("splaytree: %w", &cmaperr.InvariantViolationError{
			Detail: "locked node is not a child of its locked parent",
		}))
	}
	holderDir, hok := dirOf(holder, parent)
	if !hok {
		return 0, false
	}

	newRoot := rotateOnce(parent, -dir)
	setChild(holder, holderDir, newRoot)
	newRoot.parent.Store(holder)
	return 1, true
}

func (t *Tree) zigzigOrZigzag(n, parent, grandparent, greatgrandparent *node, conflictBudget *int) (int, bool) {
	if !t.tryLockAll(conflictBudget, t.cfg.SpinCount, greatgrandparent, grandparent, parent) {
		return 0, false
	}
	if !n.lock.TryLock() {
		parent.lock.Unlock()
		grandparent.lock.Unlock()
		greatgrandparent.lock.Unlock()
		*conflictBudget--
		if t.Counters != nil {
			t.Counters.AddFailedLockAcquisition()
		}
		return 0, false
	}
	defer n.lock.Unlock()
	defer parent.lock.Unlock()
	defer grandparent.lock.Unlock()
	defer greatgrandparent.lock.Unlock()

	if n.removed.Load() || n.parent.Load() != parent {
		return 0, false
	}
	pDir, ok1 := dirOf(grandparent, parent)
	ggDir, ok3 := dirOf(greatgrandparent, grandparent)
	if !ok1 || !ok3 {
		// grandparent/greatgrandparent were read before their locks were
		// taken; a stale edge there is ordinary contention.
		return 0, false
	}
	nDir, ok2 := dirOf(parent, n)
	if !ok2 {
		panic(fmt.Errorf("splaytree: %w", &cmaperr.InvariantViolationError{
			Detail: "locked node is not a child of its locked parent",
		}))
	}

	var newRoot *node
	if pDir == nDir {
		mid := rotateOnce(grandparent, -pDir)
		newRoot = rotateOnce(mid, -nDir)
	} else {
		mid := rotateOnce(parent, -nDir)
		setChild(grandparent, pDir, mid)
		mid.parent.Store(grandparent)
		newRoot = rotateOnce(grandparent, -pDir)
	}

	setChild(greatgrandparent, ggDir, newRoot)
	newRoot.parent.Store(greatgrandparent)
	return 2, true
}
