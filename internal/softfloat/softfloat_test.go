package softfloat

import (
	"math"
	"math/rand"
	"testing"
)

func TestFromFloat_One(t *testing.T) {
	e := FromFloat(1.0)
	if uint32(e) != 0x40000069 {
		t.Fatalf("FromFloat(1) = %#x, want 0x40000069", uint32(e))
	}
	if Fraction(e) != 0x400000 || Exponent(e) != 105 {
		t.Fatalf("fraction %#x exponent %d", Fraction(e), Exponent(e))
	}
	if ToFloat(e) != 1.0 {
		t.Fatalf("ToFloat round trip = %v", ToFloat(e))
	}
}

func TestPack_UnderflowAndSaturation(t *testing.T) {
	if Pack(0x1234, -1) != Zero {
		t.Fatal("negative exponent did not underflow to zero")
	}
	if got := Exponent(Pack(1, 4000)); got != 255 {
		t.Fatalf("exponent not clamped: %d", got)
	}
	if got := Fraction(Pack(-5, 10)); got != -5 {
		t.Fatalf("negative fraction lost: %d", got)
	}
}

func TestMSB64(t *testing.T) {
	cases := map[int64]int32{0: 0, 1: 0, 2: 1, 3: 1, 1 << 40: 40, math.MaxInt64: 62, math.MinInt64: 63}
	for x, want := range cases {
		if got := MSB64(x); got != want {
			t.Errorf("MSB64(%#x) = %d, want %d", x, got, want)
		}
	}
}

func TestDiv_ByZeroIsZero(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		x := int32(rng.Uint32())
		if got := Div(x, Zero); got != Zero {
			t.Fatalf("Div(%#x, 0) = %#x", uint32(x), uint32(got))
		}
	}
	if got := ConformantDiv(5, 0); got != 0 {
		t.Fatalf("5/0 = %v, want 0", got)
	}
}

func TestConformantDiv_OneThird(t *testing.T) {
	// The 24-bit two's-complement mantissa carries only 23 magnitude bits,
	// so 1/3 lands one ulp below the IEEE result.
	got := math.Float32bits(ConformantDiv(1, 3))
	if got != 0x3EAAAAAA {
		t.Fatalf("1/3 = %#x, want 0x3eaaaaaa", got)
	}
}

func TestConformantDiv_SmallExamples(t *testing.T) {
	cases := []struct{ a, b float32 }{
		{1, 2}, {6, 3}, {-7.5, 2.5}, {3, 0.75}, {1, 4}, {10, -4}, {0, 3},
	}
	for _, tc := range cases {
		want := tc.a / tc.b
		if got := ConformantDiv(tc.a, tc.b); math.Float32bits(got) != math.Float32bits(want) {
			t.Errorf("%v/%v = %v, want %v", tc.a, tc.b, got, want)
		}
	}
}

// Частные, точно представимые в 23 битах мантиссы, должны совпадать с IEEE бит в бит.
func TestConformantDiv_BitExactForRepresentableQuotients(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	sign := func() float64 {
		if rng.Intn(2) == 0 {
			return -1
		}
		return 1
	}
	for i := 0; i < 20000; i++ {
		q := float64(1+rng.Intn(2047)) * sign() * math.Ldexp(1, rng.Intn(41)-20)
		b := float64(1+rng.Intn(2047)) * sign() * math.Ldexp(1, rng.Intn(41)-20)
		fa, fb := float32(q*b), float32(b)
		want := fa / fb
		got := ConformantDiv(fa, fb)
		if math.Float32bits(got) != math.Float32bits(want) {
			t.Fatalf("%v/%v = %#x, want %#x", fa, fb, math.Float32bits(got), math.Float32bits(want))
		}
	}
}
