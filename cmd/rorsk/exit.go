package main

import (
	"context"
	"errors"

	"rorsk/internal/conform"
)

// Exit statuses by error kind.
const (
	exitFailure     = 1
	exitMalformed   = 2
	exitUnsupported = 3
	exitResource    = 4
	exitInterrupted = 130
)

func exitCode(err error) int {
	if errors.Is(err, context.Canceled) {
		return exitInterrupted
	}
	switch conform.KindOf(err) {
	case conform.KindMalformed:
		return exitMalformed
	case conform.KindUnsupported:
		return exitUnsupported
	case conform.KindResource:
		return exitResource
	}
	return exitFailure
}

var (
	errConformantDiffers = errors.New("conformant outputs differ between devices")
	errPatchedMismatch   = errors.New("patched kernel disagrees with the reference model")
)
