package ir

import "math"

// Word is the numeric domain of the language: a 64-bit signed integer.
// All slots, literals, and expression results are Words.
//
// Add and Sub over Words are checked: leaving the representable range
// is an error, never silent wraparound. Silent wraparound would make
// forward and backward results agree only by coincidence of width,
// masking real reversibility bugs.
type Word int64

// AddWord returns a+b and reports whether the sum stayed in range.
func AddWord(a, b Word) (Word, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

// SubWord returns a-b and reports whether the difference stayed in range.
func SubWord(a, b Word) (Word, bool) {
	if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
		return 0, false
	}
	return a - b, true
}

// Truthy reports whether a Word counts as true in guard position.
// Relational and logical operators always produce 0 or 1, but any
// nonzero Word is accepted as true.
func Truthy(w Word) bool {
	return w != 0
}

// Bool converts a Go bool to the Word the logical operators produce.
func Bool(b bool) Word {
	if b {
		return 1
	}
	return 0
}
