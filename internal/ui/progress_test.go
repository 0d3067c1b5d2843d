package ui

import (
	"errors"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"

	"rorsk/internal/pipeline"
)

func TestApply(t *testing.T) {
	m := NewProgressModel("generate", []string{"f32-div", "i32-add"}, nil).(*progressModel)

	m.apply(pipeline.Event{Stage: pipeline.StageVectors, Status: pipeline.StatusWorking, Detail: "f32"})
	if m.header != "generating f32" {
		t.Fatalf("header = %q", m.header)
	}
	m.apply(pipeline.Event{Problem: "f32-div", Stage: pipeline.StagePatch, Status: pipeline.StatusWorking})
	if r := m.rows[0]; !r.active || r.reached != 2 {
		t.Fatalf("row = %+v", r)
	}
	m.apply(pipeline.Event{Problem: "f32-div", Stage: pipeline.StagePatch, Status: pipeline.StatusDone, Detail: "1 sites"})
	if r := m.rows[0]; r.active || r.reached != 3 || r.detail != "1 sites" || r.finished() {
		t.Fatalf("row after patch = %+v", r)
	}
	m.apply(pipeline.Event{Problem: "f32-div", Stage: pipeline.StageWrite, Status: pipeline.StatusDone})
	m.apply(pipeline.Event{Problem: "i32-add", Stage: pipeline.StageNative, Status: pipeline.StatusError, Err: errors.New("boom")})
	if !m.rows[0].finished() || !m.rows[1].failed {
		t.Fatalf("rows = %+v", m.rows)
	}
	if got := m.percent(); got != 1 {
		t.Fatalf("percent = %v, want 1", got)
	}
	// чужие задачи игнорируются
	m.apply(pipeline.Event{Problem: "unknown", Stage: pipeline.StageWrite, Status: pipeline.StatusDone})

	view := m.View()
	if !strings.Contains(view, "f32-div") || !strings.Contains(view, "boom") || !strings.Contains(view, "✗") {
		t.Fatalf("view:\n%s", view)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"f32-div", 20, "f32-div"},
		{"f32-division-by-three", 10, "f32-div..."},
		{"f32-div", 2, "f3"},
		{"f32-div", 0, ""},
		{"деление", 5, "де..."},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.width)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
		// обрезанная строка занимает ровно width колонок
		if got != tt.in && runewidth.StringWidth(got) != tt.width {
			t.Errorf("truncate(%q, %d) is %d columns wide", tt.in, tt.width, runewidth.StringWidth(got))
		}
	}
}
