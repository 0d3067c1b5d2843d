// Package softfloat is the host-side model of the soft encoding that the
// conformant division helpers compute on the device.
//
// An encoded value is an int32: the upper 24 bits hold a two's-complement
// mantissa, the low 8 bits a biased exponent in [0, 255]. The value it stands
// for is Fraction(e) * 2^(Exponent(e) - 127).
package softfloat

import "math"

// Zero is the encoding of 0 and the result of every underflow and every
// division by zero.
const Zero int32 = 0

// ExponentBias is subtracted from the stored exponent when converting back.
const ExponentBias = 127

// DivideBias re-biases the quotient exponent after the 32-bit pre-shift.
const DivideBias = 95

// Pack combines a fraction and an exponent. Negative exponents underflow to
// Zero; exponents above 255 saturate.
func Pack(fraction, exponent int32) int32 {
	if exponent < 0 {
		return Zero
	}
	exponent = min(exponent, 255)
	return fraction<<8 | exponent&0xFF
}

// Fraction extracts the signed mantissa (arithmetic shift).
func Fraction(e int32) int32 { return e >> 8 }

// Exponent extracts the biased exponent.
func Exponent(e int32) int32 { return e & 0xFF }

// FromFloat encodes an IEEE-754 single. Both zeros encode to Zero.
func FromFloat(v float32) int32 {
	if v == 0 {
		return Zero
	}
	t := int32(math.Float32bits(v))
	f := t&0x7FFFFF + 0x800000
	x := (t & 0x7FFFFFFF) >> 23
	if t < 0 {
		f = -f
	}
	return Pack(f>>1, x-22)
}

// MSB64 is the index of the highest set bit of x, or 0 when x is 0.
// It scans downward bit by bit, the same way the device helper does.
func MSB64(x int64) int32 {
	for i := int32(63); i >= 0; i-- {
		if x&(int64(1)<<i) != 0 {
			return i
		}
	}
	return 0
}

// Normalize64 brings a 64-bit intermediate back to a 24-bit mantissa.
func Normalize64(raw int64, exponent int32) int32 {
	if raw == 0 {
		return Zero
	}
	abs := raw
	if abs < 0 {
		abs = -abs
	}
	i := MSB64(abs)
	if i <= 22 {
		shift := 22 - i
		return Pack(int32(raw<<shift), exponent-shift)
	}
	shift := i - 22
	return Pack(int32(raw>>shift), exponent+shift)
}

// Div divides two encoded values. A zero divisor fraction yields Zero.
func Div(l, r int32) int32 {
	rf := Fraction(r)
	if rf == 0 {
		return Zero
	}
	q := (int64(Fraction(l)) << 32) / int64(rf)
	e := Exponent(l) - Exponent(r) + DivideBias
	return Normalize64(q, e)
}

// ToFloat decodes e the way the device helper does: the fraction converted
// to float and scaled by pow(2, exponent - 127), rounded once to float32.
func ToFloat(e int32) float32 {
	return float32(Fraction(e)) * float32(math.Pow(2, float64(Exponent(e)-ExponentBias)))
}

// ConformantDiv is the full replacement for a native float division.
func ConformantDiv(a, b float32) float32 {
	return ToFloat(Div(FromFloat(a), FromFloat(b)))
}
