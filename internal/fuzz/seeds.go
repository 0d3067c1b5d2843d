package fuzztests

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"rorsk/internal/kernel"
)

const (
	maxSeedBytes = 64 << 10 // 64 KiB, ограничение для тестового корпуса
)

var seedExpressions = []string{"r = a / b;", "r = a * b;", "r = a + b;", "r = a - b;"}

func addCorpusSeeds(f *testing.F) {
	addKernelSeeds(f)
	addTestdataSeeds(f)
}

// addKernelSeeds adds every module the builtin assembler can produce, plus
// a few truncations of the division kernel.
func addKernelSeeds(f *testing.F) {
	for _, elem := range []kernel.ElemType{kernel.Float32, kernel.Int32} {
		for _, expr := range seedExpressions {
			module, err := kernel.Assembler{}.Compile(context.Background(), kernel.Template{
				Elem: elem, Expression: expr, Offset: kernel.LocalSize,
			})
			if err != nil {
				continue
			}
			f.Add(clampSeed(module))
			if elem == kernel.Float32 && expr == seedExpressions[0] {
				// обрезанные модули: заголовок, половина, без последнего слова
				f.Add(clampSeed(module[:20]))
				f.Add(clampSeed(module[:len(module)/2]))
				f.Add(clampSeed(module[:len(module)-4]))
			}
		}
	}
	f.Add([]byte{})
	f.Add([]byte{0x03, 0x02, 0x23, 0x07})
}

func addTestdataSeeds(f *testing.F) {
	root := filepath.Join("testdata", "spv")
	if _, err := os.Stat(root); err != nil {
		return
	}
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() || filepath.Ext(path) != ".spv" {
			return nil
		}
		// #nosec G304 -- path comes from repository testdata walk
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		f.Add(clampSeed(data))
		return nil
	})
}

func clampSeed(src []byte) []byte {
	if len(src) <= maxSeedBytes {
		return append([]byte(nil), src...)
	}
	return append([]byte(nil), src[:maxSeedBytes]...)
}
