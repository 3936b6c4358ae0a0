package cmap

import "github.com/tpernat/cbst/pkg/cmap/cmaperr"

// Config enumerates the tunables the tree variants recognize. A harness
// (out of scope for this module) is expected to populate one of these
// from CLI flags or environment variables and hand it to a tree
// constructor; parsing that input is not this module's concern.
type Config struct {
	// ThreadNum scales splay probability: probability = 1 / (InvSplayProb * ThreadNum).
	ThreadNum int

	// InvSplayProb is the inverse splay probability multiplier.
	InvSplayProb int

	// K1 gates whether a splay begins at all: splay only if depth > K1*m.
	K1 float64

	// K2 gates whether an in-progress splay keeps rotating: continue
	// while depth > K2*m.
	K2 float64

	// MaxDepth: splay is suppressed entirely below this depth.
	MaxDepth int

	// Conflicts bounds total try-lock conflicts across one splay invocation.
	Conflicts int

	// SpinCount bounds try-lock attempts per ancestor during a splay.
	SpinCount int

	// YieldCount bounds the optimistic engine's spin-then-yield wait for
	// an in-progress shrink before it falls back to taking the node lock.
	YieldCount int

	// OVLBitsBeforeOverflow is validated to lie in (0, 30]. The optimistic
	// engine does not read it: its changeOVL grow/shrink counter fields
	// are fixed at 30 bits each whatever this value is.
	OVLBitsBeforeOverflow int
}

// DefaultConfig returns tunables matched to the reference constants used
// throughout this module's own tests: a moderate splay probability, and
// conservative spin/yield budgets.
func DefaultConfig() Config {
	return Config{
		ThreadNum:             8,
		InvSplayProb:          2,
		K1:                    2.0,
		K2:                    3.0,
		MaxDepth:              4,
		Conflicts:             16,
		SpinCount:             64,
		YieldCount:            8,
		OVLBitsBeforeOverflow: 24,
	}
}

// Validate reports an error for any field outside its documented range.
func (c Config) Validate() error {
	switch {
	case c.ThreadNum < 1:
		return &cmaperr.InvalidConfigError{Field: "ThreadNum", Reason: "must be >= 1"}
	case c.InvSplayProb < 1:
		return &cmaperr.InvalidConfigError{Field: "InvSplayProb", Reason: "must be >= 1"}
	case c.K1 <= 0:
		return &cmaperr.InvalidConfigError{Field: "K1", Reason: "must be > 0"}
	case c.K2 <= 0:
		return &cmaperr.InvalidConfigError{Field: "K2", Reason: "must be > 0"}
	case c.MaxDepth < 0:
		return &cmaperr.InvalidConfigError{Field: "MaxDepth", Reason: "must be >= 0"}
	case c.OVLBitsBeforeOverflow <= 0 || c.OVLBitsBeforeOverflow > 30:
		return &cmaperr.InvalidConfigError{Field: "OVLBitsBeforeOverflow", Reason: "must be in (0, 30]"}
	}
	return nil
}

// SplayProbability returns 1 / (InvSplayProb * ThreadNum), the probability
// a given access triggers a splay attempt.
func (c Config) SplayProbability() float64 {
	return 1.0 / float64(c.InvSplayProb*c.ThreadNum)
}
