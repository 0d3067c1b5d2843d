package engine

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"rorsk/internal/conform"
	"rorsk/internal/kernel"
)

func addKernel(t *testing.T, half uint32) []byte {
	t.Helper()
	mod, err := kernel.Assembler{}.Compile(context.Background(), kernel.Template{
		Elem: kernel.Float32, Expression: "r = a + b;", Offset: half,
	})
	if err != nil {
		t.Fatal(err)
	}
	return mod
}

func TestReferenceDispatch(t *testing.T) {
	const half = 128
	input := make([]byte, 8*half)
	for i := range half {
		binary.LittleEndian.PutUint32(input[4*i:], math.Float32bits(float32(i)))
		binary.LittleEndian.PutUint32(input[4*(half+i):], math.Float32bits(0.5))
	}
	keep := append([]byte(nil), input...)

	out, err := (&Reference{Workers: 2}).Dispatch(context.Background(), addKernel(t, half), input, half/kernel.LocalSize)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Data) != 4*half {
		t.Fatalf("output has %d bytes, want the first half (%d)", len(out.Data), 4*half)
	}
	for i := range half {
		got := math.Float32frombits(binary.LittleEndian.Uint32(out.Data[4*i:]))
		if got != float32(i)+0.5 {
			t.Fatalf("element %d = %v", i, got)
		}
	}
	if string(input) != string(keep) {
		t.Fatalf("input was modified")
	}
	if out.DeviceName != ReferenceName || out.VendorID != 0 || out.DeviceID != 0 {
		t.Fatalf("device = %q %d/%d", out.DeviceName, out.VendorID, out.DeviceID)
	}
}

func TestReferenceDispatchErrors(t *testing.T) {
	ref := &Reference{}
	if _, err := ref.Dispatch(context.Background(), []byte{1, 2, 3, 4}, make([]byte, 512), 1); conform.KindOf(err) != conform.KindResource {
		t.Fatalf("bad module: err = %v", err)
	}
	if _, err := ref.Dispatch(context.Background(), addKernel(t, 64), make([]byte, 512), -1); conform.KindOf(err) != conform.KindResource {
		t.Fatalf("negative groups: err = %v", err)
	}
}

func TestDeviceNames(t *testing.T) {
	cases := []struct {
		vendor, device uint32
		want           string
	}{
		{0, 0, "Reference CPU"},
		{4098, 29695, "AMD Radeon RX 6600 XT"},
		{4318, 9988, "NVIDIA GeForce RTX 4080"},
		{32902, 22176, "Intel Arc A770 Graphics"},
		{4318, 1, "NVIDIA 0x0001"},
		{0x1234, 0xabcd, "0x1234 0xabcd"},
	}
	for _, tc := range cases {
		if got := DeviceName(tc.vendor, tc.device); got != tc.want {
			t.Fatalf("DeviceName(%d, %d) = %q, want %q", tc.vendor, tc.device, got, tc.want)
		}
	}
}

func TestNew(t *testing.T) {
	if e, err := New("", ""); err != nil || e.Name() != KindReference {
		t.Fatalf("default engine: %v %v", e, err)
	}
	if _, err := New(KindRunner, ""); err == nil {
		t.Fatalf("runner without executable accepted")
	}
	if e, err := New(KindRunner, "gpu-runner"); err != nil || e.Name() != KindRunner {
		t.Fatalf("runner engine: %v %v", e, err)
	}
	if _, err := New("vulkan", ""); err == nil {
		t.Fatalf("unknown engine accepted")
	}
}

// fakeRunner writes a shell script that copies its input to its output and
// reports an NVIDIA device.
func fakeRunner(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("runner script needs /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "runner.sh")
	script := "#!/bin/sh\nset -e\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o700); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunnerDispatch(t *testing.T) {
	// $2 module, $4 input, $6 output, $8 groups
	path := fakeRunner(t, `cp "$4" "$6"
echo '{"name":"","vendor_id":4318,"device_id":9988}'`)
	input := make([]byte, 64)
	for i := range input {
		input[i] = byte(i)
	}
	out, err := (&Runner{Path: path}).Dispatch(context.Background(), addKernel(t, 8), input, 1)
	if err != nil {
		t.Fatal(err)
	}
	if out.VendorID != VendorNVIDIA || out.DeviceID != 9988 {
		t.Fatalf("ids = %d/%d", out.VendorID, out.DeviceID)
	}
	if out.DeviceName != "NVIDIA GeForce RTX 4080" {
		t.Fatalf("name = %q", out.DeviceName)
	}
	if len(out.Data) != 32 || out.Data[31] != 31 {
		t.Fatalf("data = %v", out.Data)
	}
}

func TestRunnerFailures(t *testing.T) {
	cases := map[string]string{
		"exit status":  `echo "no device" >&2; exit 3`,
		"bad json":     `cp "$4" "$6"; echo 'device?'`,
		"short output": `head -c 8 "$4" > "$6"; echo '{"vendor_id":1}'`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			r := &Runner{Path: fakeRunner(t, body)}
			_, err := r.Dispatch(context.Background(), addKernel(t, 8), make([]byte, 64), 1)
			if conform.KindOf(err) != conform.KindResource {
				t.Fatalf("err = %v, want resource error", err)
			}
		})
	}
	r := &Runner{Path: filepath.Join(t.TempDir(), "missing")}
	if _, err := r.Dispatch(context.Background(), nil, nil, 1); conform.KindOf(err) != conform.KindResource {
		t.Fatalf("missing runner: err = %v", err)
	}
}
