package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"rorsk/internal/conform"
	"rorsk/internal/pipeline"
)

var patchCmd = &cobra.Command{
	Use:   "patch [flags] IN.spv",
	Short: "Replace float division in a SPIR-V module with conformant_divide",
	Args:  cobra.ExactArgs(1),
	RunE:  patchExecution,
}

func init() {
	patchCmd.Flags().StringP("output", "o", "", "output file (default IN.conformant.spv)")
	patchCmd.Flags().Bool("no-cache", false, "do not read or write the patch cache")
}

func patchExecution(cmd *cobra.Command, args []string) error {
	in := args[0]
	outPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	if outPath == "" {
		outPath = strings.TrimSuffix(in, ".spv") + ".conformant.spv"
	}
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	module, err := os.ReadFile(in)
	if err != nil {
		return conform.Resource(err, "read %s", in)
	}
	res, hit, err := pipeline.Patch(cmd.Context(), s.openCache(cmd), module)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}
	if err := os.WriteFile(outPath, res.Output, 0o644); err != nil {
		return conform.Resource(err, "write %s", outPath)
	}

	out := cmd.OutOrStdout()
	if !quiet(cmd) {
		for _, site := range res.Sites {
			mustFprintf(out, "  site word %-6d function %%%d block %%%d result %%%d\n",
				site.Offset, site.Function, site.Block, site.Result)
		}
		for _, h := range res.Helpers {
			mustFprintf(out, "  helper %s %%%d\n", nameColor.Sprint(h), res.Funcs[h])
		}
	}
	cached := ""
	if hit {
		cached = dimColor.Sprint(" (cached)")
	}
	mustFprintf(out, "%s %s: %d division sites, %d helpers, bound %d%s\n",
		okColor.Sprint("patched"), outPath, len(res.Sites), len(res.Helpers), res.Bound, cached)
	return nil
}
