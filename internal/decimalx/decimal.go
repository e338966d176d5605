// Package decimalx provides arbitrary-precision decimal helpers for
// amounts that must never be represented as binary floats, per the Data
// Model: floor-toward-zero truncation to 8 fractional digits with
// trailing-zero stripping, used everywhere a fromAmount is signed and
// sent to the exchange.
package decimalx

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Scale8 is the fractional-digit floor applied to every Convert amount.
const Scale8 = 8

// FloorString8 truncates d toward zero to 8 fractional digits and
// returns its canonical string with trailing zeros (and a trailing
// decimal point) stripped. Ported from the original floor_str_8 helper.
func FloorString8(d decimal.Decimal) string {
	floored := Floor8(d)
	s := floored.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	if s == "" || s == "-" {
		s = "0"
	}
	return s
}

// Floor8 truncates d toward zero to 8 fractional digits.
func Floor8(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(Scale8)
}

// Clamp returns v bounded to [min, max].
func Clamp(v, min, max decimal.Decimal) decimal.Decimal {
	if v.LessThan(min) {
		return min
	}
	if v.GreaterThan(max) {
		return max
	}
	return v
}

// IsPositive reports whether d is strictly greater than zero.
func IsPositive(d decimal.Decimal) bool {
	return d.GreaterThan(decimal.Zero)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}
