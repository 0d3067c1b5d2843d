// Package observ records where a rorsk command spends its time and renders
// the --timings table: command phases (setup, generate) and pipeline stages
// summed over problems.
package observ

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Phase is one row of a timing table.
type Phase struct {
	Name string
	Dur  time.Duration
	Note string
}

// Timer collects phases in the order they were recorded. Not safe for
// concurrent use; a nil *Timer records nothing.
type Timer struct {
	title   string
	overlap bool
	phases  []Phase
	now     func() time.Time
}

// NewTimer returns a timer for sequential command phases.
func NewTimer(title string) *Timer {
	return &Timer{title: title, now: time.Now}
}

// NewStageTimer returns a timer whose rows may overlap in wall time, such as
// stage durations summed over problems that ran in parallel. Its table shows
// no share column.
func NewStageTimer(title string) *Timer {
	t := NewTimer(title)
	t.overlap = true
	return t
}

// Start opens a phase and returns the function that closes it.
func (t *Timer) Start(name string) func(note string) {
	if t == nil {
		return func(string) {}
	}
	began := t.now()
	return func(note string) {
		t.phases = append(t.phases, Phase{Name: name, Dur: t.now().Sub(began), Note: note})
	}
}

// Time runs fn as a phase noted with fn's error, if any.
func (t *Timer) Time(name string, fn func() error) error {
	stop := t.Start(name)
	err := fn()
	note := ""
	if err != nil {
		note = err.Error()
	}
	stop(note)
	return err
}

// Add records a phase measured elsewhere.
func (t *Timer) Add(name string, dur time.Duration, note string) {
	if t == nil {
		return
	}
	t.phases = append(t.phases, Phase{Name: name, Dur: dur, Note: note})
}

// Total sums every phase.
func (t *Timer) Total() time.Duration {
	if t == nil {
		return 0
	}
	var total time.Duration
	for _, p := range t.phases {
		total += p.Dur
	}
	return total
}

// Slowest returns the longest phase; ties go to the earlier one.
func (t *Timer) Slowest() (Phase, bool) {
	if t == nil || len(t.phases) == 0 {
		return Phase{}, false
	}
	slow := t.phases[0]
	for _, p := range t.phases[1:] {
		if p.Dur > slow.Dur {
			slow = p
		}
	}
	return slow, true
}

// PhaseReport is a phase in milliseconds. Share is the fraction of the
// total and stays zero for stage timers.
type PhaseReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Share      float64 `json:"share,omitempty"`
	Note       string  `json:"note,omitempty"`
}

// Report is the serializable form of a Timer.
type Report struct {
	Title   string        `json:"title"`
	TotalMS float64       `json:"total_ms"`
	Phases  []PhaseReport `json:"phases"`
}

func (t *Timer) Report() Report {
	if t == nil {
		return Report{}
	}
	total := t.Total()
	r := Report{Title: t.title, TotalMS: Millis(total), Phases: make([]PhaseReport, len(t.phases))}
	for i, p := range t.phases {
		r.Phases[i] = PhaseReport{Name: p.Name, DurationMS: Millis(p.Dur), Note: p.Note}
		if !t.overlap && total > 0 {
			r.Phases[i].Share = float64(p.Dur) / float64(total)
		}
	}
	return r
}

// WriteTo renders the timing table. Stage timers end with the slowest stage
// instead of a total, since their rows overlap.
func (t *Timer) WriteTo(w io.Writer) (int64, error) {
	r := t.Report()
	var sb strings.Builder
	sb.WriteString(r.Title + ":\n")
	for _, p := range r.Phases {
		fmt.Fprintf(&sb, "  %-12s %9.2f ms", p.Name, p.DurationMS)
		if !t.overlap {
			fmt.Fprintf(&sb, " %5.1f%%", 100*p.Share)
		}
		if p.Note != "" {
			sb.WriteString("  (" + p.Note + ")")
		}
		sb.WriteString("\n")
	}
	if t != nil && t.overlap {
		if slow, ok := t.Slowest(); ok && slow.Dur > 0 {
			fmt.Fprintf(&sb, "  slowest stage: %s\n", slow.Name)
		}
	} else {
		fmt.Fprintf(&sb, "  %-12s %9.2f ms\n", "total", r.TotalMS)
	}
	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

// Millis converts d to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
