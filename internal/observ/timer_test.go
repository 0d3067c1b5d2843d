package observ

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeClock advances by step on every reading.
func fakeClock(step time.Duration) func() time.Time {
	now := time.Unix(0, 0)
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

func TestTimerPhases(t *testing.T) {
	timer := NewTimer("timings")
	timer.now = fakeClock(time.Millisecond)

	stop := timer.Start("setup")
	stop("rorsk.toml")
	err := timer.Time("generate", func() error { return errors.New("glslang missing") })
	if err == nil || err.Error() != "glslang missing" {
		t.Fatalf("Time returned %v", err)
	}
	timer.Add("compare", 2*time.Millisecond, "")

	r := timer.Report()
	if len(r.Phases) != 3 || r.TotalMS != 4 {
		t.Fatalf("report = %+v", r)
	}
	if r.Phases[0].Note != "rorsk.toml" || r.Phases[1].Note != "glslang missing" {
		t.Fatalf("notes = %+v", r.Phases)
	}
	if r.Phases[2].Share != 0.5 {
		t.Fatalf("compare share = %v, want 0.5", r.Phases[2].Share)
	}
	if slow, ok := timer.Slowest(); !ok || slow.Name != "compare" {
		t.Fatalf("slowest = %+v", slow)
	}

	var sb strings.Builder
	if _, err := timer.WriteTo(&sb); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"timings:", "(rorsk.toml)", " 50.0%", "total"} {
		if !strings.Contains(sb.String(), want) {
			t.Errorf("table lacks %q:\n%s", want, sb.String())
		}
	}
}

func TestStageTimer(t *testing.T) {
	stages := NewStageTimer("stages")
	stages.Add("compile", 3*time.Millisecond, "")
	stages.Add("patch", time.Millisecond, "")

	if r := stages.Report(); r.Phases[0].Share != 0 {
		t.Fatalf("stage share = %v", r.Phases[0].Share)
	}
	var sb strings.Builder
	stages.WriteTo(&sb)
	// строки стадий перекрываются, итог не печатается
	if strings.Contains(sb.String(), "total") || !strings.Contains(sb.String(), "slowest stage: compile") {
		t.Fatalf("stage table:\n%s", sb.String())
	}
}

func TestNilTimer(t *testing.T) {
	var timer *Timer
	timer.Start("x")("")
	timer.Add("x", time.Second, "")
	if err := timer.Time("x", func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	if r := timer.Report(); len(r.Phases) != 0 || timer.Total() != 0 {
		t.Fatalf("nil timer report = %+v", r)
	}
	if _, ok := timer.Slowest(); ok {
		t.Fatalf("nil timer has a slowest phase")
	}
}
