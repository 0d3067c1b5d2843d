// Package pipeline runs conformance problems end to end: generate input
// vectors, compile each kernel, dispatch it as is and after the conformance
// transform, and write both outputs for the comparator.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"rorsk/internal/compare"
	"rorsk/internal/conform"
	"rorsk/internal/engine"
	"rorsk/internal/kernel"
	"rorsk/internal/project"
	"rorsk/internal/trace"
	"rorsk/internal/vectors"
)

// Request describes one generate run.
type Request struct {
	Problems  []project.Problem
	OutputDir string
	SizeBytes int
	Compiler  kernel.Compiler
	Engine    engine.Engine
	Cache     *PatchCache // nil disables caching
	Jobs      int         // 0 means GOMAXPROCS
	Progress  ProgressSink
}

// FileResult is one written output file.
type FileResult struct {
	Path   string
	SHA256 string
	Size   int
}

// VectorInfo summarizes an input vector.
type VectorInfo struct {
	Elem   kernel.ElemType
	Count  int
	SHA256 string
}

// ProblemResult is the outcome of one problem.
type ProblemResult struct {
	Problem    project.Problem
	Device     string
	VendorID   uint32
	DeviceID   uint32
	Native     FileResult
	Conformant FileResult
	Sites      int
	Helpers    []string
	CacheHit   bool
	Timings    Timings
}

// Result is the outcome of Run. Problems keeps request order.
type Result struct {
	Vectors  []VectorInfo
	Problems []ProblemResult
	Elapsed  time.Duration
}

// Run executes every problem of req. Problems run concurrently, bounded by
// req.Jobs; the first failure cancels the rest.
func Run(ctx context.Context, req Request) (Result, error) {
	if len(req.Problems) == 0 {
		return Result{}, errors.New("no problems to run")
	}
	if req.Compiler == nil || req.Engine == nil {
		return Result{}, errors.New("pipeline: compiler and engine are required")
	}
	start := time.Now()
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeRun, "generate", trace.CurrentSpan(ctx).SpanID).
		WithExtra("problems", strconv.Itoa(len(req.Problems))).
		WithExtra("engine", req.Engine.Name()).
		WithExtra("compiler", req.Compiler.Name())
	ctx = trace.WithSpanContext(ctx, trace.SpanContext{SpanID: span.ID()})

	for _, p := range req.Problems {
		emit(req.Progress, Event{Problem: p.Name, Stage: StageCompile, Status: StatusQueued})
	}

	res, err := run(ctx, req)
	res.Elapsed = time.Since(start)
	if err != nil {
		span.End(err.Error())
		return res, err
	}
	span.End("")
	return res, nil
}

func run(ctx context.Context, req Request) (Result, error) {
	var res Result
	vecs, err := generateVectors(ctx, req)
	if err != nil {
		return res, err
	}
	for _, elem := range []kernel.ElemType{kernel.Float32, kernel.Int32} {
		if v, ok := vecs[elem]; ok {
			res.Vectors = append(res.Vectors, VectorInfo{Elem: elem, Count: v.Count, SHA256: v.SHA256})
		}
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return res, conform.Resource(err, "output directory %s", req.OutputDir)
	}

	jobs := req.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	results := make([]ProblemResult, len(req.Problems))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, p := range req.Problems {
		g.Go(func() error {
			r, err := runProblem(gctx, req, p, vecs[p.Elem])
			results[i] = r
			if err != nil {
				return fmt.Errorf("%s: %w", p.Name, err)
			}
			return nil
		})
	}
	err = g.Wait()
	res.Problems = results
	return res, err
}

// generateVectors builds one vector per element type in use. The int
// vector is the same for every int problem, so it is produced once.
func generateVectors(ctx context.Context, req Request) (map[kernel.ElemType]vectors.Vector, error) {
	tracer := trace.FromContext(ctx)
	parent := trace.CurrentSpan(ctx).SpanID
	out := make(map[kernel.ElemType]vectors.Vector, 2)
	for _, p := range req.Problems {
		if _, ok := out[p.Elem]; ok {
			continue
		}
		begin := time.Now()
		emit(req.Progress, Event{Stage: StageVectors, Status: StatusWorking, Detail: p.Elem.String()})
		v, err := vectors.Generate(p.Elem, req.SizeBytes)
		if err != nil {
			emit(req.Progress, Event{Stage: StageVectors, Status: StatusError, Err: err, Detail: p.Elem.String()})
			return nil, err
		}
		trace.Point(tracer, trace.ScopeProblem, "vectors", parent, v.SHA256, map[string]string{
			"elem":  p.Elem.String(),
			"count": strconv.Itoa(v.Count),
		})
		emit(req.Progress, Event{
			Stage:   StageVectors,
			Status:  StatusDone,
			Elapsed: time.Since(begin),
			Detail:  p.Elem.String() + " sha256 " + v.SHA256,
		})
		out[p.Elem] = v
	}
	return out, nil
}

var errDeviceChanged = errors.New("device changed between dispatches")

type problemRun struct {
	ctx     context.Context
	req     Request
	problem project.Problem
	res     *ProblemResult
	stage   Stage
	begin   time.Time
}

func (r *problemRun) enter(stage Stage) {
	r.stage = stage
	r.begin = time.Now()
	emit(r.req.Progress, Event{Problem: r.problem.Name, Stage: stage, Status: StatusWorking})
}

func (r *problemRun) done(detail string) {
	elapsed := time.Since(r.begin)
	r.res.Timings.Set(r.stage, elapsed)
	emit(r.req.Progress, Event{Problem: r.problem.Name, Stage: r.stage, Status: StatusDone, Elapsed: elapsed, Detail: detail})
}

func (r *problemRun) fail(err error) error {
	emit(r.req.Progress, Event{Problem: r.problem.Name, Stage: r.stage, Status: StatusError, Err: err, Elapsed: time.Since(r.begin)})
	return err
}

func runProblem(ctx context.Context, req Request, p project.Problem, vec vectors.Vector) (ProblemResult, error) {
	res := ProblemResult{Problem: p}
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeProblem, p.Name, trace.CurrentSpan(ctx).SpanID).
		WithExtra("elem", p.Elem.String())
	ctx = trace.WithSpanContext(ctx, trace.SpanContext{SpanID: span.ID()})

	r := &problemRun{ctx: ctx, req: req, problem: p, res: &res}
	if err := r.execute(vec); err != nil {
		span.End(err.Error())
		return res, err
	}
	span.WithExtra("sites", strconv.Itoa(res.Sites)).End("")
	return res, nil
}

func (r *problemRun) execute(vec vectors.Vector) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	r.enter(StageCompile)
	module, err := r.req.Compiler.Compile(r.ctx, r.problem.Template(vec.Half()))
	if err != nil {
		return r.fail(err)
	}
	r.done(fmt.Sprintf("%d bytes", len(module)))

	r.enter(StageNative)
	native, err := r.req.Engine.Dispatch(r.ctx, module, vec.Data, vec.Groups())
	if err != nil {
		return r.fail(err)
	}
	r.res.Device = native.DeviceName
	r.res.VendorID = native.VendorID
	r.res.DeviceID = native.DeviceID
	r.done(native.DeviceName)

	r.enter(StagePatch)
	patched, hit, err := Patch(r.ctx, r.req.Cache, module)
	if err != nil {
		return r.fail(err)
	}
	r.res.Sites = len(patched.Sites)
	r.res.Helpers = patched.Helpers
	r.res.CacheHit = hit
	detail := fmt.Sprintf("%d sites", len(patched.Sites))
	if hit {
		detail += " (cached)"
	}
	r.done(detail)

	r.enter(StageConformant)
	conformant, err := r.req.Engine.Dispatch(r.ctx, patched.Output, vec.Data, vec.Groups())
	if err != nil {
		return r.fail(err)
	}
	if conformant.VendorID != native.VendorID || conformant.DeviceID != native.DeviceID {
		return r.fail(conform.Resource(errDeviceChanged, "%s, then %s",
			native.DeviceName, conformant.DeviceName))
	}
	r.done("")

	r.enter(StageWrite)
	if r.res.Native, err = r.write(native, compare.Native); err != nil {
		return r.fail(err)
	}
	if r.res.Conformant, err = r.write(conformant, compare.Conformant); err != nil {
		return r.fail(err)
	}
	r.done(r.res.Native.SHA256 + " " + r.res.Conformant.SHA256)
	return nil
}

func (r *problemRun) write(out engine.Output, v compare.Variant) (FileResult, error) {
	name := compare.FileName(r.problem.Name, out.VendorID, out.DeviceID, v)
	path := filepath.Join(r.req.OutputDir, name)
	if err := os.WriteFile(path, out.Data, 0o644); err != nil {
		return FileResult{}, conform.Resource(err, "write %s", path)
	}
	sum := vectors.Fingerprint(out.Data)
	trace.Point(trace.FromContext(r.ctx), trace.ScopeModule, "write", trace.CurrentSpan(r.ctx).SpanID, sum, map[string]string{
		"file": name,
	})
	return FileResult{Path: path, SHA256: sum, Size: len(out.Data)}, nil
}

// Patch runs conform.Transform through the cache; hit reports a cache hit.
// Cache failures never fail the run, the module is transformed again instead.
func Patch(ctx context.Context, cache *PatchCache, module []byte) (*conform.Result, bool, error) {
	key := project.DigestOf(module)
	tracer := trace.FromContext(ctx)
	parent := trace.CurrentSpan(ctx).SpanID
	if cache != nil {
		var payload PatchPayload
		ok, err := cache.Get(key, &payload)
		if err != nil {
			trace.Point(tracer, trace.ScopeModule, "cache_error", parent, err.Error(), nil)
		}
		if ok {
			return payload.result(), true, nil
		}
	}
	res, err := conform.Transform(ctx, module)
	if err != nil {
		return nil, false, err
	}
	if cache != nil {
		if err := cache.Put(key, payloadOf(res)); err != nil {
			trace.Point(tracer, trace.ScopeModule, "cache_error", parent, err.Error(), nil)
		}
	}
	return res, false, nil
}
