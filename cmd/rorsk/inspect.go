package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"rorsk/internal/conform"
	"rorsk/internal/spirv"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags] IN.spv",
	Short: "List the instructions of a SPIR-V module and check its bound",
	Args:  cobra.ExactArgs(1),
	RunE:  inspectExecution,
}

func init() {
	inspectCmd.Flags().Bool("summary", false, "print only the header and the bound check")
}

func inspectExecution(cmd *cobra.Command, args []string) error {
	summaryOnly, err := cmd.Flags().GetBool("summary")
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return conform.Resource(err, "read %s", args[0])
	}
	words, err := spirv.Decode(data)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	out := cmd.OutOrStdout()
	bound := words[spirv.HeaderBound]
	mustFprintf(out, "%s version 0x%08x, generator 0x%08x, bound %d, %d words\n",
		args[0], words[1], words[2], bound, len(words))

	var (
		maxID uint32
		count int
	)
	err = spirv.Walk(words, func(in spirv.Inst) bool {
		count++
		id, hasID := spirv.ResultID(in)
		if hasID && id > maxID {
			maxID = id
		}
		if !summaryOnly {
			mustFprintf(out, "%s\n", formatInst(in, id, hasID))
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	if maxID >= bound {
		mustFprintf(out, "%s %d instructions, max id %d, bound %d\n", failColor.Sprint("bad bound:"), count, maxID, bound)
		return conform.Malformedf(spirv.HeaderBound, "bound %d does not exceed the largest id %d", bound, maxID)
	}
	mustFprintf(out, "%s %d instructions, max id %d, bound %d\n", okColor.Sprint("ok:"), count, maxID, bound)
	return nil
}

func formatInst(in spirv.Inst, id uint32, hasID bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%6d  ", in.Offset)
	if hasID {
		fmt.Fprintf(&sb, "%8s = ", fmt.Sprintf("%%%d", id))
	} else {
		sb.WriteString(strings.Repeat(" ", 11))
	}
	sb.WriteString(nameColor.Sprint(in.Op.String()))
	skip := hasID
	for _, w := range in.Operands {
		// the result id is already printed on the left
		if skip && w == id {
			skip = false
			continue
		}
		fmt.Fprintf(&sb, " %d", w)
	}
	return sb.String()
}
