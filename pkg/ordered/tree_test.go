package ordered

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

func TestGetMissing(t *testing.T) {
	tr := New()
	_, found, err := tr.Get(cmap.IntKey(1))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPutIfAbsentThenGet(t *testing.T) {
	tr := New()

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

func TestInsertionOrderIndependent(t *testing.T) {
	tr := New()
	keys := []int{5, 2, 8, 1, 3, 7, 9, 0, 4, 6}
	for _, k := range keys {
		_, existed, err := tr.PutIfAbsent(cmap.IntKey(k), k*10)
		require.NoError(t, err)
		assert.False(t, existed)
	}
	for _, k := range keys {
		v, found, err := tr.Get(cmap.IntKey(k))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, k*10, v)
	}
	assert.Equal(t, len(keys), tr.Size())
}

func TestRemoveAndRevive(t *testing.T) {
	tr := New()
	_, _, err := tr.PutIfAbsent(cmap.IntKey(1), "one")
	require.NoError(t, err)

	prev, existed, err := tr.Remove(cmap.IntKey(1))
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, "one", prev)

	_, found, err := tr.Get(cmap.IntKey(1))
	require.NoError(t, err)
	assert.False(t, found)

	_, existed, err = tr.Remove(cmap.IntKey(1))
	require.NoError(t, err)
	assert.False(t, existed)

	prev, existed, err = tr.PutIfAbsent(cmap.IntKey(1), "revived")
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Nil(t, prev)

	v, found, err := tr.Get(cmap.IntKey(1))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "revived", v)
}

// TestRemoveWithTwoTreeChildren forces the in-order-successor
// relocation path in tryUnlinkTwoChildren: insert in an order that
// gives the accelerator tree root both children, then remove the root
// key and confirm the chain (the only thing that must stay correct)
// still reports every remaining key.
func TestRemoveWithTwoTreeChildren(t *testing.T) {
	tr := New()
	for _, k := range []int{5, 2, 8, 1, 3, 7, 9} {
		_, _, err := tr.PutIfAbsent(cmap.IntKey(k), k)
		require.NoError(t, err)
	}
	_, existed, err := tr.Remove(cmap.IntKey(5))
	require.NoError(t, err)
	assert.True(t, existed)

	for _, k := range []int{2, 8, 1, 3, 7, 9} {
		v, found, err := tr.Get(cmap.IntKey(k))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, k, v)
	}
	_, found, err := tr.Get(cmap.IntKey(5))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNilKeyRejected(t *testing.T) {
	tr := New()

	_, _, err := tr.Get(nil)
	assert.ErrorAs(t, err, new(*cmaperr.NilKeyError))

	_, _, err = tr.PutIfAbsent(nil, "x")
	assert.ErrorAs(t, err, new(*cmaperr.NilKeyError))

	_, _, err = tr.Remove(nil)
	assert.ErrorAs(t, err, new(*cmaperr.NilKeyError))
}

type panicKey struct{}

func (panicKey) Compare(cmap.Comparator) int { panic("boom") }

func TestComparatorPanicSurfaces(t *testing.T) {
	tr := New()
	_, _, err := tr.PutIfAbsent(cmap.IntKey(1), "one")
	require.NoError(t, err)

	_, _, err = tr.Get(panicKey{})
	assert.ErrorAs(t, err, new(*cmaperr.ComparatorPanicError))
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
// it in bit-reversal order: every Remove sees its own tree cleanup
// through, so at the end the accelerator is empty and the chain holds
// only the sentinels.
func TestRemoveAllPhysicallyUnlinks(t *testing.T) {
	tr := New()
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
	assert.Nil(t, tr.head.right.Load(), "accelerator still holds unlinked nodes")
	assert.Same(t, tr.tail, tr.head.succ.Load())
}

func TestIteratorVisitsAllLiveKeysInOrder(t *testing.T) {
	tr := New()
	keys := []int{5, 2, 8, 1, 3, 7, 9, 0, 4, 6}
	for _, k := range keys {
		_, _, err := tr.PutIfAbsent(cmap.IntKey(k), k*10)
		require.NoError(t, err)
	}
	_, _, err := tr.Remove(cmap.IntKey(3))
	require.NoError(t, err)

	it := tr.Iterator()
	var seen []int
	for it.Next() {
		seen = append(seen, int(it.Key().(cmap.IntKey)))
		assert.Equal(t, int(it.Key().(cmap.IntKey))*10, it.Value())
	}
	assert.Equal(t, []int{0, 1, 2, 4, 5, 6, 7, 8, 9}, seen)
}

func TestClear(t *testing.T) {
	tr := New()
	for i := 0; i < 10; i++ {
		_, _, err := tr.PutIfAbsent(cmap.IntKey(i), i)
		require.NoError(t, err)
	}
	tr.Clear()
	assert.True(t, tr.IsEmpty())
	assert.Equal(t, 0, tr.Size())
	_, found, err := tr.Get(cmap.IntKey(0))
	require.NoError(t, err)
	assert.False(t, found)
}

// TestConcurrentMixedWorkload is the same per-worker disjoint-keyspace
// pattern used by pkg/avltree and pkg/splaytree, here exercising the
// chain-splice paths (PutIfAbsent/Remove) and the chain-walk read path
// concurrently.
func TestConcurrentMixedWorkload(t *testing.T) {
	workloads := []struct {
		name        string
		concurrency int
	}{
		{"low concurrency", 2},
		{"medium concurrency", 8},
		{"high concurrency", 32},
	}

	for _, w := range workloads {
		t.Run(w.name, func(t *testing.T) {
			tr := New()
			const keysPerWorker = 100

			var wg sync.WaitGroup
			for g := 0; g < w.concurrency; g++ {
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
		})
	}
}
