package main

import (
	"io"
	"time"

	"rorsk/internal/observ"
	"rorsk/internal/pipeline"
)

// printStageTimings prints the command phases followed by per-stage totals
// over all problems. Stage totals overlap when problems run in parallel.
func printStageTimings(out io.Writer, timer *observ.Timer, res pipeline.Result) {
	if out == nil {
		return
	}
	stages := observ.NewStageTimer("stages, summed over problems")
	for _, stage := range pipeline.Stages {
		var total time.Duration
		for _, p := range res.Problems {
			total += p.Timings.Duration(stage)
		}
		stages.Add(string(stage), total, "")
	}
	for _, t := range []*observ.Timer{timer, stages} {
		if _, err := t.WriteTo(out); err != nil {
			panic(err)
		}
	}
}
