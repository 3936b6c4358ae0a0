package cmap

import "github.com/tpernat/cbst/pkg/cmap/cmaperr"

// SafeCompare calls a.Compare(b), recovering a panic into a
// ComparatorPanicError instead of letting it propagate into a tree
// variant's own locking/rotation code. A panicking comparator is an
// invalid-argument condition, not a crash.
func SafeCompare(a, b Comparator) (result int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &cmaperr.ComparatorPanicError{Recovered: r}
		}
	}()
	result = a.Compare(b)
	return
}
