package project

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Defaults used when the manifest is absent or leaves a key out.
const (
	DefaultOutputDir = "output"
	DefaultDataSize  = 16 * 1000 * 1000
	DefaultEngine    = "reference"
	DefaultCompiler  = "builtin"
	DefaultGlslang   = "glslangValidator"
)

// Manifest is a decoded rorsk.toml.
type Manifest struct {
	Path   string
	Root   string
	Config Config
}

// Config mirrors the sections of rorsk.toml.
type Config struct {
	Output   OutputConfig    `toml:"output"`
	Data     DataConfig      `toml:"data"`
	Engine   EngineConfig    `toml:"engine"`
	Compiler CompilerConfig  `toml:"compiler"`
	Cache    CacheConfig     `toml:"cache"`
	Problems []ProblemConfig `toml:"problem"`
}

type OutputConfig struct {
	Dir string `toml:"dir"`
}

type DataConfig struct {
	SizeBytes int `toml:"size_bytes"`
}

type EngineConfig struct {
	Kind   string `toml:"kind"`
	Runner string `toml:"runner"`
}

type CompilerConfig struct {
	Kind    string `toml:"kind"`
	Glslang string `toml:"glslang"`
}

type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// ProblemConfig is one [[problem]] entry.
type ProblemConfig struct {
	Name       string `toml:"name"`
	Type       string `toml:"type"`
	Expression string `toml:"expression"`
}

// DefaultConfig is the configuration used without a manifest.
func DefaultConfig() Config {
	return Config{
		Output:   OutputConfig{Dir: DefaultOutputDir},
		Data:     DataConfig{SizeBytes: DefaultDataSize},
		Engine:   EngineConfig{Kind: DefaultEngine},
		Compiler: CompilerConfig{Kind: DefaultCompiler, Glslang: DefaultGlslang},
		Cache:    CacheConfig{Enabled: true},
	}
}

// LoadManifest finds rorsk.toml above startDir and decodes it. ok is false
// when there is no manifest; callers then use DefaultConfig.
func LoadManifest(startDir string) (*Manifest, bool, error) {
	manifestPath, ok, err := FindManifest(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	cfg, err := LoadConfig(manifestPath)
	if err != nil {
		return nil, true, err
	}
	return &Manifest{
		Path:   manifestPath,
		Root:   filepath.Dir(manifestPath),
		Config: cfg,
	}, true, nil
}

// LoadConfig decodes path over DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("output", "dir") && strings.TrimSpace(cfg.Output.Dir) == "" {
		return Config{}, fmt.Errorf("%s: [output].dir is empty", path)
	}
	if cfg.Data.SizeBytes <= 0 {
		return Config{}, fmt.Errorf("%s: [data].size_bytes must be positive", path)
	}
	for i := range cfg.Problems {
		p := &cfg.Problems[i]
		p.Name = strings.TrimSpace(p.Name)
		p.Expression = strings.TrimSpace(p.Expression)
		if p.Expression == "" {
			return Config{}, fmt.Errorf("%s: problem %q has no expression", path, p.Name)
		}
	}
	if _, err := cfg.Catalog(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Resolve makes relative directories absolute against the manifest root.
func (m *Manifest) Resolve(dir string) string {
	if dir == "" || filepath.IsAbs(dir) || m == nil {
		return dir
	}
	return filepath.Join(m.Root, dir)
}
