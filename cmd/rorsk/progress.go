package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"rorsk/internal/pipeline"
)

// progressView is how generate reports progress while it runs.
type progressView uint8

const (
	viewNone progressView = iota
	viewText              // one line per finished stage, on stderr
	viewTUI               // bubbletea progress model
)

// pickProgress resolves the --ui flag. auto uses the TUI only when out is a
// terminal; --quiet silences progress whatever the flag says.
func pickProgress(flag string, quietMode bool, out io.Writer) (progressView, error) {
	mode := strings.ToLower(strings.TrimSpace(flag))
	switch mode {
	case "", "auto", "on", "off":
	default:
		return viewNone, fmt.Errorf("invalid --ui value %q (expected auto|on|off)", flag)
	}
	switch {
	case quietMode:
		return viewNone, nil
	case mode == "on":
		return viewTUI, nil
	case mode == "off":
		return viewText, nil
	}
	if f, ok := out.(*os.File); ok && isTerminal(f) {
		return viewTUI, nil
	}
	return viewText, nil
}

// textSink prints problem completion lines when the TUI is off.
type textSink struct {
	mu  sync.Mutex
	out io.Writer
}

func (s *textSink) OnEvent(evt pipeline.Event) {
	var line string
	switch {
	case evt.Status == pipeline.StatusError:
		line = fmt.Sprintf("%s %s [%s]: %v", failColor.Sprint("error"), evt.Problem, evt.Stage, evt.Err)
	case evt.Status == pipeline.StatusDone && evt.Problem == "":
		line = fmt.Sprintf("%s %s", dimColor.Sprint(evt.Stage), evt.Detail)
	case evt.Status == pipeline.StatusDone && evt.Stage == pipeline.StagePatch:
		line = fmt.Sprintf("%s %s: %s", dimColor.Sprint(evt.Stage), evt.Problem, evt.Detail)
	default:
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == nil {
		s.out = os.Stderr
	}
	fmt.Fprintln(s.out, line)
}
