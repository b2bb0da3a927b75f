package mathx

// CeilDiv returns ceil(a/b) for positive integers.
// b==0 yields 0 rather than panicking; register maths never wants a trap.
func CeilDiv[T ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64](a, b T) T {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// RoundDiv returns floor((a + b/2)/b), classic rounding for positives.
func RoundDiv[T ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64](a, b T) T {
	if b == 0 {
		return 0
	}
	return (a + b/2) / b
}

// ScaleFloor returns floor(a*b/c) in 64-bit arithmetic.
// Callers keep a*b inside uint64 range; clock rate times nanosecond
// period stays well below 2^64 for every supported configuration.
func ScaleFloor(a, b, c uint64) uint64 {
	if c == 0 {
		return 0
	}
	return a * b / c
}

// ScaleCeil returns ceil(a*b/c) in 64-bit arithmetic.
func ScaleCeil(a, b, c uint64) uint64 {
	if c == 0 {
		return 0
	}
	return (a*b + c - 1) / c
}
