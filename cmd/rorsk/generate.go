package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"rorsk/internal/observ"
	"rorsk/internal/pipeline"
	"rorsk/internal/project"
)

var generateCmd = &cobra.Command{
	Use:   "generate [flags]",
	Short: "Run conformance problems and write device outputs",
	Long: `Generate input vectors, compile every problem kernel, dispatch it natively
and after patching, and write <problem>_<vendor>_<device>.bin and .binc files.`,
	Args: cobra.NoArgs,
	RunE: generateExecution,
}

func init() {
	generateCmd.Flags().StringArray("problem", nil, "run only this problem (repeatable)")
	generateCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
	generateCmd.Flags().String("out", project.DefaultOutputDir, "output directory")
	generateCmd.Flags().Int("size", project.DefaultDataSize, "vector size in bytes per operand")
	generateCmd.Flags().String("engine", project.DefaultEngine, "execution engine (reference|runner)")
	generateCmd.Flags().String("runner", "", "device runner executable (implies --engine=runner)")
	generateCmd.Flags().String("compiler", project.DefaultCompiler, "kernel compiler (builtin|glslang)")
	generateCmd.Flags().String("glslang", project.DefaultGlslang, "glslangValidator executable")
	generateCmd.Flags().Int("jobs", 0, "problems run in parallel (0 = GOMAXPROCS)")
	generateCmd.Flags().Bool("no-cache", false, "do not read or write the patch cache")
}

func generateExecution(cmd *cobra.Command, args []string) error {
	names, err := cmd.Flags().GetStringArray("problem")
	if err != nil {
		return err
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}
	view, err := pickProgress(uiValue, quiet(cmd), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}

	timer := observ.NewTimer("timings")
	var req pipeline.Request
	err = timer.Time("setup", func() error {
		s, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		problems, err := s.problems(names)
		if err != nil {
			return err
		}
		eng, err := s.newEngine()
		if err != nil {
			return err
		}
		compiler, err := s.newCompiler()
		if err != nil {
			return err
		}
		req = pipeline.Request{
			Problems:  problems,
			OutputDir: s.outDir,
			SizeBytes: s.cfg.Data.SizeBytes,
			Compiler:  compiler,
			Engine:    eng,
			Cache:     s.openCache(cmd),
			Jobs:      s.jobs,
		}
		return nil
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var res pipeline.Result
	stop := timer.Start("generate")
	if view == viewTUI {
		res, err = runGenerateWithUI(cmd.Context(), "rorsk generate", req)
	} else {
		if view == viewText {
			req.Progress = &textSink{out: cmd.ErrOrStderr()}
		}
		res, err = pipeline.Run(cmd.Context(), req)
	}
	stop(fmt.Sprintf("%d problems", len(req.Problems)))
	if err != nil {
		return err
	}

	printGenerateResult(out, res, quiet(cmd))
	if showTimings {
		printStageTimings(out, timer, res)
	}
	return nil
}

func printGenerateResult(out io.Writer, res pipeline.Result, quiet bool) {
	if !quiet {
		for _, v := range res.Vectors {
			mustFprintf(out, "%s %s %d elements, sha256 %s\n",
				dimColor.Sprint("input"), v.Elem, v.Count, v.SHA256)
		}
	}
	for _, p := range res.Problems {
		cached := ""
		if p.CacheHit {
			cached = dimColor.Sprint(" (cached patch)")
		}
		mustFprintf(out, "%s %s on %s: %d division sites%s\n",
			okColor.Sprint("done"), nameColor.Sprint(p.Problem.Name), p.Device, p.Sites, cached)
		if quiet {
			continue
		}
		for _, f := range []pipeline.FileResult{p.Native, p.Conformant} {
			mustFprintf(out, "  %s sha256 %s\n", filepath.ToSlash(f.Path), f.SHA256)
		}
	}
}
