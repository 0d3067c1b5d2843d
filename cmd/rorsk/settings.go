package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"rorsk/internal/engine"
	"rorsk/internal/kernel"
	"rorsk/internal/pipeline"
	"rorsk/internal/project"
)

const cacheAppName = "rorsk"

// settings is rorsk.toml (or the defaults) with command-line overrides
// applied.
type settings struct {
	manifest *project.Manifest
	cfg      project.Config
	outDir   string
	jobs     int
}

// loadSettings reads the manifest above the working directory. Running
// without one is fine; the defaults apply.
func loadSettings(cmd *cobra.Command) (*settings, error) {
	manifest, found, err := project.LoadManifest(".")
	if err != nil {
		return nil, err
	}
	s := &settings{cfg: project.DefaultConfig()}
	if found {
		s.manifest = manifest
		s.cfg = manifest.Config
	}

	flags := cmd.Flags()
	if f := flags.Lookup("out"); f != nil && f.Changed {
		s.cfg.Output.Dir = f.Value.String()
	}
	if f := flags.Lookup("size"); f != nil && f.Changed {
		if s.cfg.Data.SizeBytes, err = flags.GetInt("size"); err != nil {
			return nil, err
		}
	}
	if f := flags.Lookup("engine"); f != nil && f.Changed {
		s.cfg.Engine.Kind = f.Value.String()
	}
	if f := flags.Lookup("runner"); f != nil && f.Changed {
		s.cfg.Engine.Runner = f.Value.String()
		if s.cfg.Engine.Kind == project.DefaultEngine && !flags.Changed("engine") {
			s.cfg.Engine.Kind = engine.KindRunner
		}
	}
	if f := flags.Lookup("compiler"); f != nil && f.Changed {
		s.cfg.Compiler.Kind = f.Value.String()
	}
	if f := flags.Lookup("glslang"); f != nil && f.Changed {
		s.cfg.Compiler.Glslang = f.Value.String()
	}
	if f := flags.Lookup("no-cache"); f != nil && f.Changed {
		noCache, err := flags.GetBool("no-cache")
		if err != nil {
			return nil, err
		}
		s.cfg.Cache.Enabled = !noCache
	}
	if f := flags.Lookup("jobs"); f != nil {
		if s.jobs, err = flags.GetInt("jobs"); err != nil {
			return nil, err
		}
	}

	if s.cfg.Data.SizeBytes <= 0 {
		return nil, fmt.Errorf("--size must be positive, got %d", s.cfg.Data.SizeBytes)
	}
	s.outDir = s.resolve(s.cfg.Output.Dir)
	return s, nil
}

// resolve makes manifest paths relative to the manifest, flag paths relative
// to the working directory.
func (s *settings) resolve(dir string) string {
	if s.manifest != nil {
		return s.manifest.Resolve(dir)
	}
	return dir
}

func (s *settings) newEngine() (engine.Engine, error) {
	runner := s.cfg.Engine.Runner
	if runner != "" && s.manifest != nil && !filepath.IsAbs(runner) && filepath.Base(runner) != runner {
		runner = s.manifest.Resolve(runner)
	}
	e, err := engine.New(s.cfg.Engine.Kind, runner)
	if err != nil {
		return nil, err
	}
	if ref, ok := e.(*engine.Reference); ok {
		ref.Workers = s.jobs
	}
	return e, nil
}

func (s *settings) newCompiler() (kernel.Compiler, error) {
	return kernel.New(s.cfg.Compiler.Kind, s.cfg.Compiler.Glslang)
}

// openCache opens the patch cache, or returns nil when caching is disabled.
// A cache that cannot be opened disables caching with a warning.
func (s *settings) openCache(cmd *cobra.Command) *pipeline.PatchCache {
	if !s.cfg.Cache.Enabled {
		return nil
	}
	dir := s.resolve(s.cfg.Cache.Dir)
	if dir == "" {
		var err error
		if dir, err = pipeline.DefaultCacheDir(cacheAppName); err != nil {
			warnf(cmd, "cache disabled: %v", err)
			return nil
		}
	}
	cache, err := pipeline.OpenPatchCache(dir)
	if err != nil {
		warnf(cmd, "cache disabled: %v", err)
		return nil
	}
	return cache
}

func (s *settings) problems(names []string) ([]project.Problem, error) {
	catalog, err := s.cfg.Catalog()
	if err != nil {
		return nil, err
	}
	return project.Select(catalog, names)
}

func warnf(cmd *cobra.Command, format string, args ...any) {
	if quiet(cmd) {
		return
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", warnColor.Sprint("warning:"), fmt.Sprintf(format, args...))
}
