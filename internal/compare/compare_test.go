package compare

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rorsk/internal/conform"
	"rorsk/internal/engine"
)

func TestParseName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
		want File
	}{
		{"f32-div_4318_9988.binc", true, File{Problem: "f32-div", VendorID: 4318, DeviceID: 9988, Variant: Conformant}},
		{"i32-add_0_0.bin", true, File{Problem: "i32-add", Variant: Native}},
		{"results.txt", false, File{}},
		{"f32-div_4318.bin", false, File{}},
		{"f32-div_x_1.bin", false, File{}},
		{"f32-div_1_2.spv", false, File{}},
		{"_1_2.bin", false, File{}},
		{"f32_div_1_2.bin", false, File{}},
		{"f32-div_1_99999999999.bin", false, File{}},
	}
	for _, tt := range tests {
		got, ok := ParseName(tt.name)
		if ok != tt.ok {
			t.Fatalf("ParseName(%q) ok = %v, want %v", tt.name, ok, tt.ok)
		}
		if !ok {
			continue
		}
		tt.want.Path = tt.name
		if got != tt.want {
			t.Fatalf("ParseName(%q) = %+v, want %+v", tt.name, got, tt.want)
		}
		if FileName(got.Problem, got.VendorID, got.DeviceID, got.Variant) != tt.name {
			t.Fatalf("FileName does not invert ParseName for %q", tt.name)
		}
	}
}

func writeWords(t *testing.T, dir, name string, words ...uint32) {
	t.Helper()
	data := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(data[4*i:], w)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func f(v float32) uint32 { return math.Float32bits(v) }

func TestScanGroups(t *testing.T) {
	dir := t.TempDir()
	writeWords(t, dir, "f32-div_4318_9988.bin", 1)
	writeWords(t, dir, "f32-div_4098_29695.bin", 1)
	writeWords(t, dir, "f32-div_4098_29695.binc", 1)
	writeWords(t, dir, "i32-add_0_0.bin", 1)
	writeWords(t, dir, ResultsName, 1)
	writeWords(t, dir, "notes.md", 1)
	if err := os.Mkdir(filepath.Join(dir, "sub_1_1.bin"), 0o755); err != nil {
		t.Fatal(err)
	}

	groups, err := Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 3 {
		t.Fatalf("%d groups: %+v", len(groups), groups)
	}
	if groups[0].Problem != "f32-div" || groups[0].Variant != Conformant || groups[1].Variant != Native {
		t.Fatalf("group order = %+v", groups)
	}
	// устройства упорядочены по имени файла
	if files := groups[1].Files; len(files) != 2 || files[0].VendorID != engine.VendorAMD {
		t.Fatalf("native f32-div files = %+v", files)
	}
	if groups[2].Problem != "i32-add" {
		t.Fatalf("last group = %+v", groups[2])
	}
}

func TestDiffer(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	tests := []struct {
		elem string
		a, b uint32
		want bool
	}{
		{"f32", f(1), f(1), false},
		{"f32", f(1), f(1) + 1, true},
		{"f32", f(0), f(float32(math.Copysign(0, -1))), true},
		{"f32", f(nan), f(nan) | 1, false},
		{"f32", f(nan), f(1), true},
		{"f32", f(inf), f(-inf), false},
		{"f32", f(inf), f(1), true},
		{"f32", f(1), f(nan), true},
		{"i32", 5, 5, false},
		{"i32", 5, 0xFFFFFFFF, true},
	}
	for _, tt := range tests {
		if got, _ := differ(tt.elem, tt.a, tt.b); got != tt.want {
			t.Errorf("differ(%s, %#x, %#x) = %v, want %v", tt.elem, tt.a, tt.b, got, tt.want)
		}
	}
	// -1 против 5: разница 6
	if _, mag := differ("i32", 5, 0xFFFFFFFF); mag != 6 {
		t.Fatalf("i32 magnitude = %v, want 6", mag)
	}
}

func TestRunWritesResults(t *testing.T) {
	dir := t.TempDir()
	writeWords(t, dir, "f32-div_4098_29695.binc", f(0.5), f(0.25), f(2))
	writeWords(t, dir, "f32-div_4318_9988.binc", f(0.5), f(0.25), f(2))
	writeWords(t, dir, "f32-div_4098_29695.bin", f(0.5), f(0.25), f(2))
	writeWords(t, dir, "f32-div_4318_9988.bin", f(0.5), f(0.5), f(3))
	writeWords(t, dir, "i32-sub_0_0.bin", 1, 2, 3)
	writeWords(t, dir, "i32-sub_4318_9988.bin", 1, 2)

	sum, err := Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sum.Reports) != 3 {
		t.Fatalf("%d reports", len(sum.Reports))
	}
	if sum.Differences(Conformant) != 0 || sum.Differences(Native) != 2 {
		t.Fatalf("differences: conformant=%d native=%d", sum.Differences(Conformant), sum.Differences(Native))
	}

	native := sum.Reports[1]
	if native.Total != 1.25 || native.Mean != 0.625 || native.Bits != 96 {
		t.Fatalf("native report = %+v", native)
	}
	ints := sum.Reports[2]
	if ints.Differences != 0 || len(ints.Mismatched) != 1 {
		t.Fatalf("i32 report = %+v", ints)
	}

	data, err := os.ReadFile(filepath.Join(dir, ResultsName))
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		"Problem `f32-div` on conformant was tested with devices:",
		"Problem `f32-div` on unconformant was tested with devices:",
		"  - AMD Radeon RX 6600 XT",
		"  - NVIDIA GeForce RTX 4080",
		"  - Data count: 96 bits",
		"  - Number of differences: 2",
		"  - Length mismatch: NVIDIA GeForce RTX 4080: 8 bytes, expected 12",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("results.txt lacks %q:\n%s", want, text)
		}
	}

	// секции идут в порядке Scan, а не в порядке завершения задач
	confAt := strings.Index(text, "`f32-div` on conformant")
	nativeAt := strings.Index(text, "`f32-div` on unconformant")
	subAt := strings.Index(text, "`i32-sub`")
	if !(confAt < nativeAt && nativeAt < subAt) {
		t.Fatalf("section order %d %d %d:\n%s", confAt, nativeAt, subAt, text)
	}

	// повторный запуск не читает собственный отчёт
	if again, err := Run(context.Background(), dir); err != nil || len(again.Reports) != 3 {
		t.Fatalf("second run: %d reports, %v", len(again.Reports), err)
	}
}

func TestRunUnknownElement(t *testing.T) {
	dir := t.TempDir()
	writeWords(t, dir, "f16-div_0_0.bin", 1)
	_, err := Run(context.Background(), dir)
	if conform.KindOf(err) != conform.KindUnsupported {
		t.Fatalf("err = %v, want unsupported", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ResultsName)); !os.IsNotExist(err) {
		t.Fatalf("results written after a failure")
	}
}

func TestFormatGroupsDigits(t *testing.T) {
	dir := t.TempDir()
	words := make([]uint32, 1000)
	writeWords(t, dir, "i32-mul_0_0.bin", words...)
	sum, err := Run(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sum.Log, "Data count: 32,000 bits") {
		t.Fatalf("log = %q", sum.Log)
	}
}
