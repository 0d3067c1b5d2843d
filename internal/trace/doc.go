// Package trace records what a conformance run is doing: which problem is
// compiling, which module is being patched, which division site was
// rewritten, where two devices disagree.
//
//	rorsk generate --trace=- --trace-level=detail
//
// Events carry a scope, from the whole run down to a single instruction.
// The level decides the finest scope that is recorded:
//
//	phase   run, problem
//	detail  + module (dispatches, transforms, writes)
//	debug   + site (patched divisions, differing elements)
//
// Storage is a stream (written as events arrive), a ring kept in memory and
// dumped only when the command fails, or both. The tracer travels in the
// context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopeProblem, "f32-div", trace.CurrentSpan(ctx).SpanID)
//	defer span.End("")
package trace
