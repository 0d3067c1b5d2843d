package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"rorsk/internal/pipeline"
	"rorsk/internal/ui"
)

type generateOutcome struct {
	result pipeline.Result
	err    error
}

// runGenerateWithUI runs the pipeline behind the progress view. Quitting
// the view early (ctrl+c) cancels the run.
func runGenerateWithUI(ctx context.Context, title string, req pipeline.Request) (pipeline.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := make(chan pipeline.Event, 256)
	outcomeCh := make(chan generateOutcome, 1)

	go func() {
		req.Progress = pipeline.ChannelSink{Ch: events}
		res, err := pipeline.Run(ctx, req)
		outcomeCh <- generateOutcome{result: res, err: err}
		close(events)
	}()

	names := make([]string, len(req.Problems))
	for i, p := range req.Problems {
		names[i] = p.Name
	}
	model := ui.NewProgressModel(title, names, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	cancel()
	// the view may have stopped reading before the run finished
	for range events {
	}
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
