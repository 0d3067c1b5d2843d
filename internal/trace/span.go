package trace

import (
	"sync/atomic"
	"time"
)

var (
	seq   atomic.Uint64
	spans atomic.Uint64
)

func newEvent(kind Kind, scope Scope, id, parent uint64, name string) *Event {
	return &Event{
		Time:     time.Now(),
		Seq:      seq.Add(1),
		Kind:     kind,
		Scope:    scope,
		SpanID:   id,
		ParentID: parent,
		Name:     name,
	}
}

func admitted(t Tracer, scope Scope) bool {
	return t != nil && t.Enabled() && t.Level().ShouldEmit(scope)
}

// Span is an open begin/end pair. A span from a disabled tracer is inert.
type Span struct {
	tracer  Tracer
	id      uint64
	parent  uint64
	scope   Scope
	name    string
	started time.Time
	extra   map[string]string
}

// Begin emits a begin event and returns the span. parent is 0 for a root.
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	if !admitted(t, scope) {
		return &Span{}
	}
	s := &Span{tracer: t, id: spans.Add(1), parent: parent, scope: scope, name: name}
	ev := newEvent(KindSpanBegin, scope, s.id, parent, name)
	s.started = ev.Time
	t.Emit(ev)
	return s
}

// WithExtra attaches a key/value pair to the end event.
func (s *Span) WithExtra(key, value string) *Span {
	if s == nil || s.tracer == nil {
		return s
	}
	if s.extra == nil {
		s.extra = make(map[string]string)
	}
	s.extra[key] = value
	return s
}

// End emits the end event and returns the span duration.
func (s *Span) End(detail string) time.Duration {
	if s == nil || s.tracer == nil {
		return 0
	}
	ev := newEvent(KindSpanEnd, s.scope, s.id, s.parent, s.name)
	ev.Elapsed = ev.Time.Sub(s.started)
	ev.Detail = detail
	ev.Extra = s.extra
	s.tracer.Emit(ev)
	return ev.Elapsed
}

// ID is zero for an inert span.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

// Point emits an instant event under parent.
func Point(t Tracer, scope Scope, name string, parent uint64, detail string, extra map[string]string) {
	if !admitted(t, scope) {
		return
	}
	ev := newEvent(KindPoint, scope, spans.Add(1), parent, name)
	ev.Detail = detail
	ev.Extra = extra
	t.Emit(ev)
}
