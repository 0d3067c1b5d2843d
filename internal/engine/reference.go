package engine

import (
	"bytes"
	"context"
	"strconv"

	"fortio.org/safecast"

	"rorsk/internal/conform"
	"rorsk/internal/kernel"
	"rorsk/internal/refvm"
	"rorsk/internal/trace"
)

// ReferenceName is the device name reported by the reference engine.
const ReferenceName = "Reference CPU"

// Reference runs kernels on the refvm interpreter. Vendor and device ids
// are both 0.
type Reference struct {
	Workers   int // 0 means GOMAXPROCS
	StepLimit int // 0 means refvm.DefaultStepLimit
}

func (r *Reference) Name() string { return KindReference }

func (r *Reference) options() []refvm.Option {
	var opts []refvm.Option
	if r.Workers > 0 {
		opts = append(opts, refvm.WithWorkers(r.Workers))
	}
	if r.StepLimit > 0 {
		opts = append(opts, refvm.WithStepLimit(r.StepLimit))
	}
	return opts
}

func (r *Reference) Dispatch(ctx context.Context, module, input []byte, groups int) (Output, error) {
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeModule, "dispatch", trace.CurrentSpan(ctx).SpanID).
		WithExtra("engine", KindReference).
		WithExtra("groups", strconv.Itoa(groups))

	out, err := r.dispatch(ctx, module, input, groups)
	if err != nil {
		span.End(err.Error())
		return Output{}, err
	}
	span.End("")
	return out, nil
}

func (r *Reference) dispatch(ctx context.Context, module, input []byte, groups int) (Output, error) {
	n, err := safecast.Conv[uint32](groups)
	if err != nil {
		return Output{}, conform.Resource(err, "reference engine: group count %d", groups)
	}
	m, err := refvm.Load(module)
	if err != nil {
		return Output{}, conform.Resource(err, "reference engine: load module")
	}
	buf := bytes.Clone(input)
	bindings := []refvm.Binding{{Set: 0, Binding: 0, Data: buf}}
	if err := m.RunCompute(ctx, kernel.EntryPoint, [3]uint32{n, 1, 1}, bindings, r.options()...); err != nil {
		return Output{}, conform.Resource(err, "reference engine")
	}
	return Output{
		Data:       firstHalf(buf),
		DeviceName: ReferenceName,
	}, nil
}
