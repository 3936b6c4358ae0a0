package cmap

// tombstone is the distinguished sentinel value a node's value slot holds
// once its key has been logically removed. It is a distinct type so that
// no user-supplied value (not even nil) can be mistaken for it.
type tombstone struct{}

// Tombstone is the sentinel marking a logically deleted node. Checking a
// stored value with IsTombstone is how every variant in this module
// tells "present with this value" apart from "logically absent, routing
// node only".
var Tombstone any = tombstone{}

// IsTombstone reports whether v is the deletion sentinel.
func IsTombstone(v any) bool {
	_, ok := v.(tombstone)
	return ok
}

// Map is the external interface every concurrent tree variant in this
// module implements: plain get/putIfAbsent/remove linearizable per key,
// plus weakly-consistent size/iteration. None of these calls block on
// anything but lock acquisition and bounded internal spin/yield loops;
// there is no cancellation at this layer.
type Map interface {
	// Get returns the value stored for k and true, or (nil, false) if k is
	// absent or logically deleted. Returns a ComparatorPanicError or
	// NilKeyError via the error return for invalid input.
	Get(k Comparator) (value any, found bool, err error)

	// PutIfAbsent stores v for k only if k is not currently present with a
	// non-tombstone value. Returns the previous value and true if k was
	// already present (v is discarded in that case), or (nil, false) if
	// the insert happened.
	PutIfAbsent(k Comparator, v any) (previous any, existed bool, err error)

	// Remove logically deletes k if present, returning its last value and
	// true. Physical unlink is scheduled but not guaranteed to have
	// completed when Remove returns.
	Remove(k Comparator) (previous any, existed bool, err error)

	// Size returns a weakly-consistent count of live (non-tombstone) keys.
	Size() int

	// IsEmpty reports whether Size() == 0, computed without necessarily
	// calling Size (some variants can answer in O(1)).
	IsEmpty() bool

	// Clear drops every key. The caller must ensure no concurrent
	// mutator is active; behavior with in-flight mutations is undefined.
	Clear()

	// Iterator returns a weakly-consistent ascending cursor: every key
	// live for the cursor's entire lifetime is visited exactly once, but
	// concurrent inserts/removes may or may not be observed.
	Iterator() Iterator
}

// Iterator is a weakly-consistent ascending cursor over a Map's entries.
type Iterator interface {
	// Next advances the cursor and reports whether an entry is available.
	// Must be called before the first Key/Value.
	Next() bool
	Key() Comparator
	Value() any
}
