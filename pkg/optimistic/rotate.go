package optimistic

// rotateOnceInPlace performs a single rotation promoting b = getChild(a,
// -sign) into a's position, mutating both nodes in place rather than
// cloning. The node moving down (a) is bracketed as a shrink; the node
// moving up (b) is bracketed as a grow.
func rotateOnceInPlace(a, b *node, sign int) *node {
	e := getChild(b, sign)

	a.changeOVL.Store(beginShrink(a.changeOVL.Load()))
	b.changeOVL.Store(beginGrow(b.changeOVL.Load()))

	setChild(a, -sign, e)
	if e != nil {
		e.parent.Store(a)
	}
	a.height.Store(1 + max32(height(getChild(a, -1)), height(getChild(a, 1))))

	setChild(b, sign, a)
	a.parent.Store(b)
	b.height.Store(1 + max32(height(getChild(b, -1)), height(getChild(b, 1))))

	a.changeOVL.Store(endShrink(a.changeOVL.Load()))
	b.changeOVL.Store(endGrow(b.changeOVL.Load()))
	return b
}

// rotateDoubleInPlace performs the zig-zag double rotation: e =
// getChild(b, sign) becomes the new subtree root. a and b both shrink
// (each loses part of its subtree to the other side of e); e grows,
// since it now covers both.
func rotateDoubleInPlace(a, b, e *node, sign int) *node {
	f := getChild(e, -sign)
	g := getChild(e, sign)
	c := getChild(a, sign)

	a.changeOVL.Store(beginShrink(a.changeOVL.Load()))
	b.changeOVL.Store(beginShrink(b.changeOVL.Load()))
	e.changeOVL.Store(beginGrow(e.changeOVL.Load()))

	setChild(a, -sign, g)
	if g != nil {
		g.parent.Store(a)
	}
	setChild(a, sign, c)
	if c != nil {
		c.parent.Store(a)
	}
	a.height.Store(1 + max32(height(getChild(a, -1)), height(getChild(a, 1))))

	setChild(b, sign, f)
	if f != nil {
		f.parent.Store(b)
	}
	b.height.Store(1 + max32(height(getChild(b, -1)), height(getChild(b, 1))))

	setChild(e, sign, a)
	setChild(e, -sign, b)
	a.parent.Store(e)
	b.parent.Store(e)
	e.height.Store(1 + max32(height(getChild(e, -1)), height(getChild(e, 1))))

	a.changeOVL.Store(endShrink(a.changeOVL.Load()))
	b.changeOVL.Store(endShrink(b.changeOVL.Load()))
	e.changeOVL.Store(endGrow(e.changeOVL.Load()))
	return e
}
