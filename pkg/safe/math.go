package safe

import (
	"math"
)

// SatAdd performs uint64 addition, saturating at MaxUint64.
func SatAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

// SatSub performs uint64 subtraction, saturating at 0.
func SatSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// SatMul performs uint64 multiplication, saturating at MaxUint64.
func SatMul(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxUint64/b {
		return math.MaxUint64
	}
	return a * b
}

// CheckedAdd performs uint64 addition and reports whether it succeeded.
// The ledger path uses this instead of SatAdd: silent saturation there would
// break value conservation.
func CheckedAdd(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}
	return a + b, true
}
