package conform_test

import (
	"context"
	"encoding/binary"
	"math"
	"math/rand/v2"
	"testing"

	"rorsk/internal/conform"
	"rorsk/internal/kernel"
	"rorsk/internal/refvm"
	"rorsk/internal/softfloat"
)

// patchedDivide assembles the f32 division kernel and patches it.
func patchedDivide(t *testing.T, offset uint32) (*conform.Result, *refvm.Module) {
	t.Helper()
	mod, err := kernel.Assembler{}.Compile(context.Background(), kernel.Template{
		Elem: kernel.Float32, Expression: "r = a / b;", Offset: offset,
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	res, err := conform.Transform(context.Background(), mod)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if len(res.Sites) != 1 {
		t.Fatalf("kernel has %d division sites", len(res.Sites))
	}
	m, err := refvm.Load(res.Output)
	if err != nil {
		t.Fatalf("load patched module: %v", err)
	}
	return res, m
}

func randomFloat(r *rand.Rand) float32 {
	// нормализованные конечные числа с умеренной экспонентой
	exp := uint32(r.IntN(80) + 88)
	bits := uint32(r.IntN(2))<<31 | exp<<23 | uint32(r.IntN(1<<23))
	return math.Float32frombits(bits)
}

func sameFloat(a, b float32) bool {
	if a != a && b != b {
		return true
	}
	return math.Float32bits(a) == math.Float32bits(b)
}

func TestPatchedKernelOneThird(t *testing.T) {
	const half = 64
	_, m := patchedDivide(t, half)
	data := make([]byte, 8*half)
	for i := range half {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(1))
		binary.LittleEndian.PutUint32(data[4*(half+i):], math.Float32bits(3))
	}
	err := m.RunCompute(context.Background(), kernel.EntryPoint, [3]uint32{1, 1, 1},
		[]refvm.Binding{{Set: 0, Binding: 0, Data: data}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := math.Float32bits(softfloat.ConformantDiv(1, 3))
	if want != 0x3EAAAAAA {
		t.Fatalf("host model: 1/3 = %#08x", want)
	}
	for i := range half {
		if got := binary.LittleEndian.Uint32(data[4*i:]); got != want {
			t.Fatalf("element %d: %#08x, want %#08x", i, got, want)
		}
	}
}

func TestPatchedKernelMatchesHostModel(t *testing.T) {
	const half = 256
	_, m := patchedDivide(t, half)
	r := rand.New(rand.NewPCG(31337, 1))
	a := make([]float32, half)
	b := make([]float32, half)
	for i := range half {
		a[i], b[i] = randomFloat(r), randomFloat(r)
	}
	b[0] = 0
	a[1] = 0
	data := make([]byte, 8*half)
	for i := range half {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(a[i]))
		binary.LittleEndian.PutUint32(data[4*(half+i):], math.Float32bits(b[i]))
	}
	groups := [3]uint32{half / kernel.LocalSize, 1, 1}
	if err := m.RunCompute(context.Background(), kernel.EntryPoint, groups, []refvm.Binding{{Data: data}}); err != nil {
		t.Fatalf("run: %v", err)
	}
	for i := range half {
		got := math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
		if want := softfloat.ConformantDiv(a[i], b[i]); !sameFloat(got, want) {
			t.Fatalf("%v / %v: device %v (%#08x), host %v (%#08x)",
				a[i], b[i], got, math.Float32bits(got), want, math.Float32bits(want))
		}
	}
}

// Each helper, called on its own, agrees with the host model.
func TestHelpersMatchHostModel(t *testing.T) {
	res, m := patchedDivide(t, 64)
	ctx := context.Background()
	call := func(t *testing.T, name string, args ...refvm.Value) refvm.Value {
		t.Helper()
		fn, ok := res.Funcs[name]
		if !ok {
			t.Fatalf("helper %s not built", name)
		}
		refs := make([]refvm.Value, len(args))
		for i, a := range args {
			refs[i] = refvm.Ref(a)
		}
		v, err := m.Call(ctx, fn, refs)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		return v
	}
	r := rand.New(rand.NewPCG(1619, 60493))
	encoded := func() int32 { return softfloat.FromFloat(randomFloat(r)) }

	t.Run(conform.HelperPack, func(t *testing.T) {
		for _, tc := range [][2]int32{{0x400000, 127}, {-5, 0}, {7, -1}, {0x123456, 300}, {-0x400000, 255}} {
			got := call(t, conform.HelperPack, refvm.Int(tc[0]), refvm.Int(tc[1])).Int32()
			if want := softfloat.Pack(tc[0], tc[1]); got != want {
				t.Fatalf("pack(%d, %d) = %#x, want %#x", tc[0], tc[1], got, want)
			}
		}
	})
	t.Run(conform.HelperDecodeFromFloat, func(t *testing.T) {
		vals := []float32{1, -1, 0, float32(math.Copysign(0, -1)), 0.1, 3}
		for range 32 {
			vals = append(vals, randomFloat(r))
		}
		for _, v := range vals {
			got := call(t, conform.HelperDecodeFromFloat, refvm.Float(v)).Int32()
			if want := softfloat.FromFloat(v); got != want {
				t.Fatalf("decode(%v) = %#x, want %#x", v, got, want)
			}
		}
	})
	t.Run(conform.HelperMSB64, func(t *testing.T) {
		for _, x := range []int64{0, 1, 2, 3, 1 << 22, 1<<23 - 1, 1 << 40, math.MaxInt64, -1} {
			got := call(t, conform.HelperMSB64, refvm.Int64(x)).Int32()
			if want := softfloat.MSB64(x); got != want {
				t.Fatalf("msb64(%d) = %d, want %d", x, got, want)
			}
		}
	})
	t.Run(conform.HelperNormalize64, func(t *testing.T) {
		for _, tc := range []struct {
			raw int64
			exp int32
		}{{0, 100}, {1, 150}, {1 << 22, 127}, {-(1 << 30), 127}, {1 << 50, 60}, {12345, 5}} {
			got := call(t, conform.HelperNormalize64, refvm.Int64(tc.raw), refvm.Int(tc.exp)).Int32()
			if want := softfloat.Normalize64(tc.raw, tc.exp); got != want {
				t.Fatalf("normalize64(%d, %d) = %#x, want %#x", tc.raw, tc.exp, got, want)
			}
		}
	})
	t.Run(conform.HelperDivide, func(t *testing.T) {
		for range 64 {
			l, d := encoded(), encoded()
			got := call(t, conform.HelperDivide, refvm.Int(l), refvm.Int(d)).Int32()
			if want := softfloat.Div(l, d); got != want {
				t.Fatalf("divide(%#x, %#x) = %#x, want %#x", l, d, got, want)
			}
		}
		if got := call(t, conform.HelperDivide, refvm.Int(encoded()), refvm.Int(0)).Int32(); got != softfloat.Zero {
			t.Fatalf("divide by zero = %#x", got)
		}
	})
	t.Run(conform.HelperEncodeToFloat, func(t *testing.T) {
		for range 64 {
			e := encoded()
			got := call(t, conform.HelperEncodeToFloat, refvm.Int(e)).Float32()
			if want := softfloat.ToFloat(e); !sameFloat(got, want) {
				t.Fatalf("encode(%#x) = %v, want %v", e, got, want)
			}
		}
	})
	t.Run(conform.HelperConformantDivide, func(t *testing.T) {
		for range 64 {
			a, b := randomFloat(r), randomFloat(r)
			got := call(t, conform.HelperConformantDivide, refvm.Float(a), refvm.Float(b)).Float32()
			if want := softfloat.ConformantDiv(a, b); !sameFloat(got, want) {
				t.Fatalf("%v / %v = %v, want %v", a, b, got, want)
			}
		}
	})
}
