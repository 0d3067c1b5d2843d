// Package compare checks that devices agree on the outputs of a generate
// run. For every problem and variant the first device, in file name order,
// is the reference the others are compared against.
package compare

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"rorsk/internal/conform"
	"rorsk/internal/engine"
	"rorsk/internal/trace"
)

// Group is the set of device outputs for one problem and variant.
type Group struct {
	Problem string
	Variant Variant
	Files   []File
}

// Report is the outcome of comparing one group.
type Report struct {
	Problem     string
	Variant     Variant
	Elem        string
	Devices     []string
	Bits        int
	Differences int
	// Total and Mean cover differences where both values are finite.
	Total      float64
	Mean       float64
	Mismatched []string // devices whose file length differs from the first
}

// Summary is the outcome of Run.
type Summary struct {
	Reports []Report
	Path    string // results.txt
	Log     string
}

// Differences sums the difference counts of all reports of variant v.
func (s Summary) Differences(v Variant) int {
	n := 0
	for _, r := range s.Reports {
		if r.Variant == v {
			n += r.Differences
		}
	}
	return n
}

// Scan lists the output files in dir grouped by problem and variant.
// results.txt and files outside the naming convention are ignored.
func Scan(dir string) ([]Group, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, conform.Resource(err, "scan %s", dir)
	}
	type key struct {
		problem string
		variant Variant
	}
	byKey := make(map[key]*Group)
	var keys []key
	for _, e := range entries {
		if e.IsDir() || e.Name() == ResultsName {
			continue
		}
		f, ok := ParseName(filepath.Join(dir, e.Name()))
		if !ok {
			continue
		}
		k := key{f.Problem, f.Variant}
		g, ok := byKey[k]
		if !ok {
			g = &Group{Problem: f.Problem, Variant: f.Variant}
			byKey[k] = g
			keys = append(keys, k)
		}
		g.Files = append(g.Files, f)
	}
	// conformant before native, as in the report
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].problem != keys[j].problem {
			return keys[i].problem < keys[j].problem
		}
		return keys[i].variant > keys[j].variant
	})
	out := make([]Group, 0, len(keys))
	for _, k := range keys {
		g := byKey[k]
		sort.Slice(g.Files, func(i, j int) bool {
			return filepath.Base(g.Files[i].Path) < filepath.Base(g.Files[j].Path)
		})
		out = append(out, *g)
	}
	return out, nil
}

// ElemOf returns the element type named by the problem prefix.
func ElemOf(problem string) (string, error) {
	elem, _, _ := strings.Cut(problem, "-")
	switch elem {
	case "f32", "i32":
		return elem, nil
	}
	return "", conform.Unsupportedf(-1, 0, "problem %q: unknown element type %q", problem, elem)
}

// Run compares every group in dir concurrently and writes results.txt.
func Run(ctx context.Context, dir string) (Summary, error) {
	groups, err := Scan(dir)
	if err != nil {
		return Summary{}, err
	}
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeRun, "compare", trace.CurrentSpan(ctx).SpanID).
		WithExtra("groups", strconv.Itoa(len(groups)))
	ctx = trace.WithSpanContext(ctx, trace.SpanContext{SpanID: span.ID()})

	reports := make([]Report, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	for i, grp := range groups {
		g.Go(func() error {
			r, err := Compare(gctx, grp)
			if err != nil {
				return err
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.End(err.Error())
		return Summary{}, err
	}

	// report order follows Scan, not completion order
	p := message.NewPrinter(language.English)
	var log strings.Builder
	for _, r := range reports {
		log.WriteString(r.Format(p))
	}
	path := filepath.Join(dir, ResultsName)
	if err := os.WriteFile(path, []byte(log.String()), 0o644); err != nil {
		span.End(err.Error())
		return Summary{}, conform.Resource(err, "write %s", path)
	}
	span.End("")
	return Summary{Reports: reports, Path: path, Log: log.String()}, nil
}

// Compare checks every file of g against the first one.
func Compare(ctx context.Context, g Group) (Report, error) {
	r := Report{Problem: g.Problem, Variant: g.Variant}
	elem, err := ElemOf(g.Problem)
	if err != nil {
		return r, err
	}
	r.Elem = elem
	for _, f := range g.Files {
		r.Devices = append(r.Devices, engine.DeviceName(f.VendorID, f.DeviceID))
	}
	if len(g.Files) == 0 {
		return r, nil
	}
	target, err := os.ReadFile(g.Files[0].Path)
	if err != nil {
		return r, conform.Resource(err, "read %s", g.Files[0].Path)
	}
	r.Bits = len(target) * 8

	tracer := trace.FromContext(ctx)
	parent := trace.CurrentSpan(ctx).SpanID
	var finite int
	for i, f := range g.Files[1:] {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return r, conform.Resource(err, "read %s", f.Path)
		}
		if len(data) != len(target) {
			r.Mismatched = append(r.Mismatched, fmt.Sprintf("%s: %d bytes, expected %d", r.Devices[i+1], len(data), len(target)))
		}
		n := min(len(data), len(target)) / 4
		for j := range n {
			a := binary.LittleEndian.Uint32(target[4*j:])
			b := binary.LittleEndian.Uint32(data[4*j:])
			differs, mag := differ(elem, a, b)
			if !differs {
				continue
			}
			r.Differences++
			if !math.IsNaN(mag) && !math.IsInf(mag, 0) {
				r.Total += mag
				finite++
			}
			if g.Variant == Conformant && tracer.Enabled() {
				trace.Point(tracer, trace.ScopeSite, "difference", parent,
					fmt.Sprintf("%s %032b %032b %g", elem, a, b, mag),
					map[string]string{"problem": g.Problem, "index": strconv.Itoa(j), "device": r.Devices[i+1]})
			}
		}
	}
	if finite > 0 {
		r.Mean = r.Total / float64(finite)
	}
	return r, nil
}

// differ compares two elements. For f32 a finite reference must match bit
// for bit, a NaN reference only needs a NaN and an infinite one any infinity.
func differ(elem string, a, b uint32) (bool, float64) {
	if elem == "i32" {
		x, y := int64(int32(a)), int64(int32(b))
		if x == y {
			return false, 0
		}
		return true, math.Abs(float64(x - y))
	}
	x, y := math.Float32frombits(a), math.Float32frombits(b)
	fx := float64(x)
	switch {
	case math.IsNaN(fx):
		return !math.IsNaN(float64(y)), math.NaN()
	case math.IsInf(fx, 0):
		return !math.IsInf(float64(y), 0), math.Inf(1)
	}
	if a == b {
		return false, 0
	}
	return true, math.Abs(fx - float64(y))
}

// Format renders r as a results.txt section.
func (r Report) Format(p *message.Printer) string {
	variant := "unconformant"
	if r.Variant == Conformant {
		variant = "conformant"
	}
	var sb strings.Builder
	p.Fprintf(&sb, "\nProblem `%s` on %s was tested with devices:", r.Problem, variant)
	for _, d := range r.Devices {
		p.Fprintf(&sb, "\n  - %s", d)
	}
	sb.WriteString("\nResults:")
	p.Fprintf(&sb, "\n  - Data count: %d bits", r.Bits)
	p.Fprintf(&sb, "\n  - Number of differences: %d", r.Differences)
	if r.Differences > 0 {
		p.Fprintf(&sb, "\n  - Total difference: %g", r.Total)
		p.Fprintf(&sb, "\n  - Average difference: %g", r.Mean)
	}
	for _, m := range r.Mismatched {
		p.Fprintf(&sb, "\n  - Length mismatch: %s", m)
	}
	sb.WriteString("\n")
	return sb.String()
}
