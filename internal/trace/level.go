package trace

import (
	"fmt"
	"strings"
)

// Level controls tracing verbosity.
type Level uint8

const (
	LevelOff    Level = iota
	LevelError        // nothing streamed; the ring is dumped on failure
	LevelPhase        // run and problem boundaries
	LevelDetail       // dispatches, transforms, writes
	LevelDebug        // patched sites and differing elements
)

var levelNames = [...]string{"off", "error", "phase", "detail", "debug"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel accepts a level name in any case.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range levelNames {
		if n == name {
			return Level(i), nil
		}
	}
	return LevelOff, fmt.Errorf("invalid trace level: %q (expected: %s)", s, strings.Join(levelNames[:], "|"))
}

// finest is the finest scope recorded at l; zero records nothing.
func (l Level) finest() Scope {
	switch l {
	case LevelPhase:
		return ScopeProblem
	case LevelDetail:
		return ScopeModule
	case LevelDebug:
		return ScopeSite
	}
	return 0
}

// ShouldEmit reports whether events of scope are recorded at l. Under
// LevelError everything is kept by the ring so a failure can be explained.
func (l Level) ShouldEmit(scope Scope) bool {
	if l == LevelError {
		return true
	}
	return scope != 0 && scope <= l.finest()
}
