// Package safe provides overflow-checked int64 arithmetic for fixed-point
// money values. An overflow on the hotpath means corrupted book or position
// state, so every helper panics rather than wrapping around.
package safe

import (
	"math"
	"math/bits"
)

// Add returns a+b, panicking on overflow.
func Add(a, b int64) int64 {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		panic("safe: int64 add overflow")
	}
	return a + b
}

// Sub returns a-b, panicking on overflow.
func Sub(a, b int64) int64 {
	if (b > 0 && a < math.MinInt64+b) || (b < 0 && a > math.MaxInt64+b) {
		panic("safe: int64 sub overflow")
	}
	return a - b
}

// Mul returns a*b, panicking on overflow.
func Mul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	r := a * b
	if r/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		panic("safe: int64 mul overflow")
	}
	return r
}

// Div returns a/b, panicking on division by zero or MinInt64/-1.
func Div(a, b int64) int64 {
	if b == 0 {
		panic("safe: int64 div by zero")
	}
	if a == math.MinInt64 && b == -1 {
		panic("safe: int64 div overflow")
	}
	return a / b
}

// MulDiv returns a*b/div using a 128-bit intermediate, so price*qty notional
// math cannot overflow before rescaling. All operands must be non-negative.
func MulDiv(a, b, div int64) int64 {
	if a < 0 || b < 0 || div <= 0 {
		panic("safe: MulDiv operands must be non-negative with positive divisor")
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi >= uint64(div) {
		panic("safe: MulDiv quotient overflow")
	}
	q, _ := bits.Div64(hi, lo, uint64(div))
	if q > math.MaxInt64 {
		panic("safe: MulDiv quotient overflow")
	}
	return int64(q)
}
