package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"rorsk/internal/conform"
	"rorsk/internal/trace"
)

// Runner delegates dispatch to an external executable:
//
//	runner --module M --input I --output O --groups N
//
// The runner writes the whole buffer after execution to O and prints one
// JSON object describing the device on stdout.
type Runner struct {
	Path string
}

type runnerDevice struct {
	Name     string `json:"name"`
	VendorID uint32 `json:"vendor_id"`
	DeviceID uint32 `json:"device_id"`
}

func (r *Runner) Name() string { return KindRunner }

func (r *Runner) Dispatch(ctx context.Context, module, input []byte, groups int) (Output, error) {
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeModule, "dispatch", trace.CurrentSpan(ctx).SpanID).
		WithExtra("engine", KindRunner).
		WithExtra("groups", strconv.Itoa(groups))

	out, err := r.dispatch(ctx, module, input, groups)
	if err != nil {
		span.End(err.Error())
		return Output{}, err
	}
	span.WithExtra("device", out.DeviceName).End("")
	return out, nil
}

func (r *Runner) dispatch(ctx context.Context, module, input []byte, groups int) (Output, error) {
	exe, err := exec.LookPath(r.Path)
	if err != nil {
		return Output{}, conform.Resource(err, "runner %s not found", r.Path)
	}
	dir, err := os.MkdirTemp("", "rorsk-runner-*")
	if err != nil {
		return Output{}, conform.Resource(err, "temporary directory")
	}
	defer os.RemoveAll(dir)

	modPath := filepath.Join(dir, "kernel.spv")
	inPath := filepath.Join(dir, "input.bin")
	outPath := filepath.Join(dir, "output.bin")
	if err := os.WriteFile(modPath, module, 0o600); err != nil {
		return Output{}, conform.Resource(err, "write module")
	}
	if err := os.WriteFile(inPath, input, 0o600); err != nil {
		return Output{}, conform.Resource(err, "write input")
	}

	// #nosec G204 -- the runner path comes from the user's manifest or flags
	cmd := exec.CommandContext(ctx, exe,
		"--module", modPath,
		"--input", inPath,
		"--output", outPath,
		"--groups", strconv.Itoa(groups))
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Output{}, ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return Output{}, conform.Resource(err, "%s", exe)
	}

	var dev runnerDevice
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout.String())), &dev); err != nil {
		return Output{}, conform.Resource(err, "%s: device description on stdout", exe)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		return Output{}, conform.Resource(err, "%s: read output", exe)
	}
	if len(data) != len(input) {
		return Output{}, conform.Resource(
			fmt.Errorf("output has %d bytes, input %d", len(data), len(input)), "%s", exe)
	}
	name := dev.Name
	if name == "" {
		name = DeviceName(dev.VendorID, dev.DeviceID)
	}
	return Output{
		Data:       firstHalf(data),
		DeviceName: name,
		VendorID:   dev.VendorID,
		DeviceID:   dev.DeviceID,
	}, nil
}
