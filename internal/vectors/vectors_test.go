package vectors

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"rorsk/internal/kernel"
)

func TestWhiteNoiseKnownValues(t *testing.T) {
	// hash bits with the exponent lowered by 31 (division by 2^31 is exact here)
	cases := map[int]uint32{
		0: 0x63c721e5 - 31<<23,
		3: 0x3bcc5000 - 31<<23,
	}
	for x, want := range cases {
		if got := math.Float32bits(WhiteNoise(x)); got != want {
			t.Fatalf("WhiteNoise(%d) = %#08x, want %#08x", x, got, want)
		}
	}
	if WhiteNoise(1) >= 0 || WhiteNoise(2) >= 0 {
		t.Fatalf("WhiteNoise(1), WhiteNoise(2) should be negative: %v %v", WhiteNoise(1), WhiteNoise(2))
	}
}

func TestFloat32Deterministic(t *testing.T) {
	a := Float32Bytes(Float32(4096))
	b := Float32Bytes(Float32(4096))
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("two generations differ")
	}
	if len(Fingerprint(a)) != 64 {
		t.Fatalf("fingerprint %q is not hex SHA-256", Fingerprint(a))
	}
}

func TestInt32NoZerosBothSigns(t *testing.T) {
	vals, err := Int32(1 << 14)
	if err != nil {
		t.Fatal(err)
	}
	var pos, neg int
	for i, v := range vals {
		if v == 0 {
			t.Fatalf("element %d is zero", i)
		}
		if v > 0 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		t.Fatalf("%d positive, %d negative", pos, neg)
	}
}

func TestSaturate(t *testing.T) {
	cases := []struct {
		in   float32
		want int32
	}{
		{float32(math.NaN()), 0},
		{float32(math.Inf(1)), math.MaxInt32},
		{float32(math.Inf(-1)), math.MinInt32},
		{3e9, math.MaxInt32},
		{-3e9, math.MinInt32},
		{-1.75, -1},
		{123456.5, 123456},
	}
	for _, tc := range cases {
		if got := saturate(tc.in); got != tc.want {
			t.Fatalf("saturate(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestGenerate(t *testing.T) {
	v, err := Generate(kernel.Int32, 64*4*3)
	if err != nil {
		t.Fatal(err)
	}
	if v.Count != 64*3*2 || len(v.Data) != 4*v.Count {
		t.Fatalf("count %d, %d bytes", v.Count, len(v.Data))
	}
	if v.Half() != 64*3 || v.Groups() != 3 {
		t.Fatalf("half %d, groups %d", v.Half(), v.Groups())
	}
	vals, _ := Int32(v.Count)
	if got := int32(binary.LittleEndian.Uint32(v.Data[4*7:])); got != vals[7] {
		t.Fatalf("element 7 = %d, want %d", got, vals[7])
	}
	if v.SHA256 != Fingerprint(v.Data) {
		t.Fatalf("fingerprint mismatch")
	}

	for _, size := range []int{0, 100, 64*4*2 + 4} {
		if _, err := Generate(kernel.Float32, size); err == nil {
			t.Fatalf("size %d accepted", size)
		}
	}
}

func TestErrOneSided(t *testing.T) {
	// один элемент не может покрыть оба знака
	if _, err := Int32(1); !errors.Is(err, ErrOneSided) {
		t.Fatalf("err = %v, want ErrOneSided", err)
	}
}
