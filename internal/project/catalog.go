package project

import (
	"fmt"
	"strings"

	"rorsk/internal/kernel"
)

// Problem is one kernel of a conformance run.
type Problem struct {
	Name       string
	Elem       kernel.ElemType
	Expression string
}

// Template returns the kernel template of p for a vector with the given
// operand offset.
func (p Problem) Template(offset uint32) kernel.Template {
	return kernel.Template{Elem: p.Elem, Expression: p.Expression, Offset: offset}
}

// DefaultCatalog is the built-in problem set: add, sub, mul and div over
// f32 and i32.
func DefaultCatalog() []Problem {
	ops := []struct{ name, sym string }{
		{"add", "+"}, {"sub", "-"}, {"mul", "*"}, {"div", "/"},
	}
	out := make([]Problem, 0, 2*len(ops))
	for _, elem := range []kernel.ElemType{kernel.Float32, kernel.Int32} {
		for _, op := range ops {
			out = append(out, Problem{
				Name:       elem.Prefix() + "-" + op.name,
				Elem:       elem,
				Expression: "r = a " + op.sym + " b;",
			})
		}
	}
	return out
}

// Catalog returns the configured problems, or the built-in catalog when the
// manifest declares none.
func (c Config) Catalog() ([]Problem, error) {
	if len(c.Problems) == 0 {
		return DefaultCatalog(), nil
	}
	out := make([]Problem, 0, len(c.Problems))
	seen := make(map[string]struct{}, len(c.Problems))
	for _, pc := range c.Problems {
		p, err := pc.problem()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("duplicate problem %q", p.Name)
		}
		seen[p.Name] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

func (pc ProblemConfig) problem() (Problem, error) {
	name := strings.TrimSpace(pc.Name)
	if err := ValidateProblemName(name); err != nil {
		return Problem{}, err
	}
	elem, err := kernel.ParseElemType(pc.Type)
	if err != nil {
		return Problem{}, fmt.Errorf("problem %q: %w", name, err)
	}
	// the comparator recovers the element type from the name
	if !strings.HasPrefix(name, elem.Prefix()+"-") {
		return Problem{}, fmt.Errorf("problem %q: name must start with %q for type %s", name, elem.Prefix()+"-", pc.Type)
	}
	return Problem{Name: name, Elem: elem, Expression: strings.TrimSpace(pc.Expression)}, nil
}

// ValidateProblemName rejects names that would break output file naming.
func ValidateProblemName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("problem name is empty")
	case strings.Contains(name, "_"):
		return fmt.Errorf("problem name %q contains '_', which separates name and device ids in output files", name)
	case strings.ContainsAny(name, `/\.`):
		return fmt.Errorf("problem name %q contains a path or extension separator", name)
	}
	return nil
}

// Select keeps the problems named in names, in catalog order. An empty
// selection keeps everything.
func Select(problems []Problem, names []string) ([]Problem, error) {
	if len(names) == 0 {
		return problems, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = false
	}
	var out []Problem
	for _, p := range problems {
		if _, ok := want[p.Name]; ok {
			want[p.Name] = true
			out = append(out, p)
		}
	}
	for _, n := range names {
		if !want[n] {
			return nil, fmt.Errorf("unknown problem %q", n)
		}
	}
	return out, nil
}
