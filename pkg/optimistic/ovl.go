package optimistic

// changeOVL bit layout, packed into a uint64: two single-bit
// in-progress locks, two 30-bit monotonic counters, and a dedicated
// top bit marking a node permanently unlinked. The two counter fields
// are sized at the maximum cmap.Config.OVLBitsBeforeOverflow (30 bits
// each) rather than driven by that config value directly;
// OVLBitsBeforeOverflow gates when the engine would proactively
// renormalize a counter nearing its bound, and no renormalization path
// is wired up here. The field exists on Config for a harness that runs
// long enough to care.
const (
	shrinkLockBit = uint64(1) << 0
	growLockBit   = uint64(1) << 1
	unlinkedBit   = uint64(1) << 63

	shrinkCountShift = 2
	growCountShift   = 32
	countMask        = (uint64(1) << 30) - 1
)

// unlinkedOVL is the terminal changeOVL value; no transition leaves it.
const unlinkedOVL = unlinkedBit

func isShrinking(ovl uint64) bool { return ovl&shrinkLockBit != 0 }
func isGrowing(ovl uint64) bool   { return ovl&growLockBit != 0 }
func isUnlinked(ovl uint64) bool  { return ovl&unlinkedBit != 0 }

func beginShrink(ovl uint64) uint64 { return ovl | shrinkLockBit }
func beginGrow(ovl uint64) uint64   { return ovl | growLockBit }

func endShrink(ovl uint64) uint64 {
	count := ((ovl >> shrinkCountShift) & countMask) + 1
	ovl &^= shrinkLockBit
	ovl &^= countMask << shrinkCountShift
	return ovl | (count&countMask)<<shrinkCountShift
}

func endGrow(ovl uint64) uint64 {
	count := ((ovl >> growCountShift) & countMask) + 1
	ovl &^= growLockBit
	ovl &^= countMask << growCountShift
	return ovl | (count&countMask)<<growCountShift
}
