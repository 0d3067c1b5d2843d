package kernel

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"rorsk/internal/conform"
)

// DefaultGlslang is the compiler executable looked up on PATH.
const DefaultGlslang = "glslangValidator"

// Glslang compiles the rendered GLSL with glslangValidator, feeding the
// source on stdin.
type Glslang struct {
	Path string
}

func (g Glslang) Name() string { return "glslang" }

func (g Glslang) path() string {
	if g.Path != "" {
		return g.Path
	}
	return DefaultGlslang
}

// Compile runs glslangValidator -V --stdin -S comp -o <tmp>.
func (g Glslang) Compile(ctx context.Context, t Template) ([]byte, error) {
	exe, err := exec.LookPath(g.path())
	if err != nil {
		return nil, conform.Resource(err, "%s not found; install the Vulkan SDK or set [compiler] glslang", g.path())
	}
	dir, err := os.MkdirTemp("", "rorsk-glslang-*")
	if err != nil {
		return nil, conform.Resource(err, "temporary directory")
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "kernel.spv")

	cmd := exec.CommandContext(ctx, exe, "-V", "--stdin", "-S", "comp", "-o", out)
	cmd.Stdin = strings.NewReader(t.GLSL())
	var stderr strings.Builder
	cmd.Stdout = &stderr
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, conform.Resource(err, "%s", exe)
		}
		return nil, conform.Resource(fmt.Errorf("%w: %s", err, msg), "%s", exe)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, conform.Resource(err, "read compiled kernel")
	}
	return data, nil
}

// New returns the compiler named kind: "builtin" or "glslang".
func New(kind, glslangPath string) (Compiler, error) {
	switch kind {
	case "", "builtin":
		return Assembler{}, nil
	case "glslang":
		return Glslang{Path: glslangPath}, nil
	}
	return nil, fmt.Errorf("unknown compiler %q (want builtin or glslang)", kind)
}
