package main

import (
	"github.com/spf13/cobra"

	"rorsk/internal/compare"
	"rorsk/internal/project"
)

var compareCmd = &cobra.Command{
	Use:   "compare [flags] [dir]",
	Short: "Compare device outputs written by generate",
	Long: `Compare the .bin and .binc files of every problem across devices and
write results.txt next to them. The first device in file name order is the
reference for the others.`,
	Args: cobra.MaximumNArgs(1),
	RunE: compareExecution,
}

func init() {
	compareCmd.Flags().String("out", project.DefaultOutputDir, "directory holding the device outputs")
	compareCmd.Flags().Bool("strict", false, "fail when conformant outputs differ")
}

func compareExecution(cmd *cobra.Command, args []string) error {
	strict, err := cmd.Flags().GetBool("strict")
	if err != nil {
		return err
	}
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	dir := s.outDir
	if len(args) == 1 {
		dir = args[0]
	}

	summary, err := compare.Run(cmd.Context(), dir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !quiet(cmd) {
		mustFprintf(out, "%s", summary.Log)
	}

	conformant := summary.Differences(compare.Conformant)
	native := summary.Differences(compare.Native)
	status := okColor.Sprint("agree")
	if conformant > 0 {
		status = failColor.Sprint("differ")
	}
	mustFprintf(out, "\nconformant outputs %s (%d differences, %d unpatched)\n", status, conformant, native)
	mustFprintf(out, "%s saved to %s\n", okColor.Sprint("Done!"), summary.Path)
	if strict && conformant > 0 {
		return errConformantDiffers
	}
	return nil
}
