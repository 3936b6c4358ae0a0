package splaytree

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tpernat/cbst/pkg/cmap"
	"github.com/tpernat/cbst/pkg/cmap/cmaperr"
)

// waitOrFatal bounds a concurrent workload's wall-clock budget: a hang
// past the deadline fails the test as a suspected deadlock instead of
// stalling the whole test binary.
func waitOrFatal(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("workers did not finish within the deadline; suspected deadlock")
	}
}

func newTestTree() *Tree {
	return New(cmap.DefaultConfig())
}

func TestGetMissing(t *testing.T) {
	tr := newTestTree()
	_, found, err := tr.Get(cmap.IntKey(1))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPutIfAbsentThenGet(t *testing.T) {
	tr := newTestTree()

	prev, existed, err := tr.PutIfAbsent(cmap.IntKey(5), "five")
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Nil(t, prev)

	v, found, err := tr.Get(cmap.IntKey(5))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "five", v)

	prev, existed, err = tr.PutIfAbsent(cmap.IntKey(5), "other")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, "five", prev)
}

func TestRemoveAndRevive(t *testing.T) {
	tr := newTestTree()
	_, _, err := tr.PutIfAbsent(cmap.IntKey(1), "one")
	require.NoError(t, err)

	prev, existed, err := tr.Remove(cmap.IntKey(1))
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, "one", prev)

	_, found, err := tr.Get(cmap.IntKey(1))
	require.NoError(t, err)
	assert.False(t, found)

	prev, existed, err = tr.PutIfAbsent(cmap.IntKey(1), "revived")
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Nil(t, prev)
	assert.Equal(t, 1, tr.Size())
}

func TestNilKeyRejected(t *testing.T) {
	tr := newTestTree()
	_, _, err := tr.Get(nil)
	assert.ErrorAs(t, err, new(*cmaperr.NilKeyError))
}

// TestMonotoneInsertionShallowsOverTime: a
// strictly increasing insertion order is the classic splay-tree worst
// case for an unbalanced BST, and repeated gets on a hot key should
// pull it toward the root instead of leaving it at the bottom of a
// linear chain.
func TestMonotoneInsertionShallowsOverTime(t *testing.T) {
	// ThreadNum 1 / InvSplayProb 1 pins the splay probability at 1, so
	// every qualifying access splays and the test is deterministic.
	cfg := cmap.DefaultConfig()
	cfg.ThreadNum = 1
	cfg.InvSplayProb = 1
	tr := New(cfg)
	const n = 1000
	for i := 0; i < n; i++ {
		_, _, err := tr.PutIfAbsent(cmap.IntKey(i), i)
		require.NoError(t, err)
	}

	// Ascending insertion keeps pushing the newest key to the bottom;
	// repeated gets on the last one must leave it shallow, not at the
	// end of a thousand-node chain.
	for i := 0; i < n; i++ {
		_, found, err := tr.Get(cmap.IntKey(n - 1))
		require.NoError(t, err)
		assert.True(t, found)
	}

	res, err := tr.searchPath(cmap.IntKey(n - 1))
	require.NoError(t, err)
	assert.Less(t, res.depth, 100, "hot key was not splayed toward the root")

	it := tr.Iterator()
	var seen []int
	for it.Next() {
		seen = append(seen, int(it.Key().(cmap.IntKey)))
	}
	require.Len(t, seen, n)
	for i := 1; i < len(seen); i++ {
		assert.Less(t, seen[i-1], seen[i])
	}
}

func bitReverse(i, bits int) int {
	r := 0
	for b := 0; b < bits; b++ {
		r = (r << 1) | (i & 1)
		i >>= 1
	}
	return r
}

// TestRemoveAllPhysicallyUnlinks inserts an ascending run and deletes
// it in bit-reversal order. Splaying is suppressed (a near-zero splay
// probability) so that only the remove path's upward unlink climb is
// responsible for reclaiming routing tombstones; at the end the holder
// must have no child left.
func TestRemoveAllPhysicallyUnlinks(t *testing.T) {
	cfg := cmap.DefaultConfig()
	cfg.InvSplayProb = 1 << 30
	tr := New(cfg)
	const n = 256
	for i := 0; i < n; i++ {
		_, _, err := tr.PutIfAbsent(cmap.IntKey(i), i)
		require.NoError(t, err)
	}
	for i := 0; i < n; i++ {
		k := bitReverse(i, 8)
		prev, existed, err := tr.Remove(cmap.IntKey(k))
		require.NoError(t, err)
		require.True(t, existed, "key %d", k)
		require.Equal(t, k, prev)
	}
	assert.Equal(t, 0, tr.Size())
	assert.True(t, tr.IsEmpty())
	assert.Nil(t, tr.holder.right.Load(), "routing tombstones were not all reclaimed")
}

func TestClear(t *testing.T) {
	tr := newTestTree()
	for i := 0; i < 10; i++ {
		_, _, err := tr.PutIfAbsent(cmap.IntKey(i), i)
		require.NoError(t, err)
	}
	tr.Clear()
	assert.True(t, tr.IsEmpty())
	_, found, err := tr.Get(cmap.IntKey(0))
	require.NoError(t, err)
	assert.False(t, found)
}

// TestConcurrentMixedWorkload mirrors pkg/avltree's stress test:
// per-goroutine disjoint keyspaces so each worker's own operation
// sequence is easy to reason about, while splay rotations triggered
// from any goroutine contend on the same shared tree.
func TestConcurrentMixedWorkload(t *testing.T) {
	concurrencyLevels := []int{2, 8, 32}

	for _, concurrency := range concurrencyLevels {
		tr := newTestTree()
		const keysPerWorker = 80

		var wg sync.WaitGroup
		for g := 0; g < concurrency; g++ {
			wg.Add(1)
			base := g * keysPerWorker
			seed := int64(g + 1)
			go func(base int, seed int64) {
				defer wg.Done()
				rng := rand.New(rand.NewSource(seed))
				present := make([]bool, keysPerWorker)
				for i := 0; i < keysPerWorker*5; i++ {
					idx := rng.Intn(keysPerWorker)
					k := cmap.IntKey(base + idx)
					switch rng.Intn(3) {
					case 0:
						_, existed, err := tr.PutIfAbsent(k, base+idx)
						require.NoError(t, err)
						assert.Equal(t, present[idx], existed)
						present[idx] = true
					case 1:
						_, found, err := tr.Get(k)
						require.NoError(t, err)
						assert.Equal(t, present[idx], found)
					case 2:
						_, existed, err := tr.Remove(k)
						require.NoError(t, err)
						assert.Equal(t, present[idx], existed)
						present[idx] = false
					}
				}
				for idx := 0; idx < keysPerWorker; idx++ {
					_, found, err := tr.Get(cmap.IntKey(base + idx))
					require.NoError(t, err)
					assert.Equal(t, present[idx], found)
				}
			}(base, seed)
		}
		waitOrFatal(t, &wg, 30*time.Second)
	}
}
