package trace

import "time"

// Kind is the type of a trace event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindHeartbeat
)

var kindNames = [...]string{KindSpanBegin: "begin", KindSpanEnd: "end", KindPoint: "point", KindHeartbeat: "heartbeat"}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "unknown"
}

// MarshalText makes kinds readable in NDJSON output.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Scope is the granularity of an event. Coarser scopes have lower values.
type Scope uint8

const (
	// ScopeRun covers a whole command: generate, compare.
	ScopeRun Scope = iota + 1
	// ScopeProblem covers one problem of a run.
	ScopeProblem
	// ScopeModule covers work on one module: dispatch, transform, write.
	ScopeModule
	// ScopeSite covers single instructions or elements.
	ScopeSite
)

var scopeNames = [...]string{ScopeRun: "run", ScopeProblem: "problem", ScopeModule: "module", ScopeSite: "site"}

func (s Scope) String() string {
	if int(s) < len(scopeNames) && scopeNames[s] != "" {
		return scopeNames[s]
	}
	return "unknown"
}

func (s Scope) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Event is a single trace record.
type Event struct {
	Time     time.Time         `json:"time"`
	Seq      uint64            `json:"seq"`
	Kind     Kind              `json:"kind"`
	Scope    Scope             `json:"scope"`
	SpanID   uint64            `json:"span_id"`
	ParentID uint64            `json:"parent_id,omitempty"`
	Name     string            `json:"name"`
	Detail   string            `json:"detail,omitempty"`
	Elapsed  time.Duration     `json:"elapsed_ns,omitempty"` // span end only
	Extra    map[string]string `json:"extra,omitempty"`
}
