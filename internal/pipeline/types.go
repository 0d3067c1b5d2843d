package pipeline

import "time"

// Stage describes a step of one problem.
type Stage string

const (
	// StageVectors is input generation, shared by problems of one element type.
	StageVectors Stage = "vectors"
	// StageCompile is the front-end compile of the kernel template.
	StageCompile Stage = "compile"
	// StageNative is the dispatch of the unpatched module.
	StageNative Stage = "native"
	// StagePatch is the conformance transform.
	StagePatch Stage = "patch"
	// StageConformant is the dispatch of the patched module.
	StageConformant Stage = "conformant"
	// StageWrite is writing the .bin and .binc files.
	StageWrite Stage = "write"
)

// Stages lists the per-problem stages in execution order.
var Stages = []Stage{StageCompile, StageNative, StagePatch, StageConformant, StageWrite}

// Status captures progress state within a stage.
type Status string

const (
	// StatusQueued indicates the task is waiting to start.
	StatusQueued Status = "queued"
	// StatusWorking indicates the task is currently working.
	StatusWorking Status = "working"
	// StatusDone indicates the task is done.
	StatusDone Status = "done"
	// StatusError indicates the task encountered an error.
	StatusError Status = "error"
)

// Event reports progress for a problem (or for the whole run when Problem
// is empty).
type Event struct {
	Problem string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
	Detail  string
}

// ProgressSink consumes progress events. Problems run concurrently, so
// OnEvent must be safe for concurrent use.
type ProgressSink interface {
	OnEvent(Event)
}

// Timings holds stage durations.
type Timings struct {
	stages map[Stage]time.Duration
}

func (t *Timings) ensure() {
	if t.stages == nil {
		t.stages = make(map[Stage]time.Duration)
	}
}

// Set stores a duration for the given stage.
func (t *Timings) Set(stage Stage, dur time.Duration) {
	if t == nil {
		return
	}
	t.ensure()
	t.stages[stage] = dur
}

// Has reports whether a duration for stage is recorded.
func (t Timings) Has(stage Stage) bool {
	if t.stages == nil {
		return false
	}
	_, ok := t.stages[stage]
	return ok
}

// Duration returns the recorded duration for stage.
func (t Timings) Duration(stage Stage) time.Duration {
	if t.stages == nil {
		return 0
	}
	return t.stages[stage]
}

// Sum returns the sum of durations across the provided stages.
func (t Timings) Sum(stages ...Stage) time.Duration {
	if t.stages == nil {
		return 0
	}
	var total time.Duration
	for _, stage := range stages {
		total += t.stages[stage]
	}
	return total
}
