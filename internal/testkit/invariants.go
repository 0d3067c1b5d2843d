// Package testkit holds structural checks shared by tests and fuzz
// harnesses.
package testkit

import (
	"fmt"

	"rorsk/internal/spirv"
)

// CheckModule runs the structural invariants every module rorsk emits must
// keep:
// 1) every result id is defined once
// 2) the header bound exceeds every result id
// 3) function-local OpVariables sit at the top of the entry block
func CheckModule(words []uint32) error {
	if len(words) < spirv.HeaderWords {
		return fmt.Errorf("module has %d words, header needs %d", len(words), spirv.HeaderWords)
	}
	bound := words[spirv.HeaderBound]

	seen := make(map[uint32]int)
	var (
		labels      int
		bodyStarted bool
		firstErr    error
	)
	fail := func(format string, args ...any) bool {
		firstErr = fmt.Errorf(format, args...)
		return false
	}
	err := spirv.Walk(words, func(inst spirv.Inst) bool {
		if id, ok := spirv.ResultID(inst); ok {
			if prev, dup := seen[id]; dup {
				return fail("result id %%%d defined at words %d and %d", id, prev, inst.Offset)
			}
			seen[id] = inst.Offset
			if id >= bound {
				return fail("result id %%%d at word %d is not below the bound %d", id, inst.Offset, bound)
			}
		}
		switch inst.Op {
		case spirv.OpFunction:
			labels, bodyStarted = 0, false
		case spirv.OpLabel:
			labels++
			bodyStarted = labels > 1
		case spirv.OpVariable:
			if labels == 0 {
				break // global
			}
			if bodyStarted {
				return fail("OpVariable at word %d is not at the top of the entry block", inst.Offset)
			}
		default:
			if labels > 0 {
				bodyStarted = true
			}
		}
		return true
	})
	if err != nil {
		return err
	}
	return firstErr
}

// CheckTightBound reports whether the bound is exactly one past the largest
// result id, as the conformance transform leaves it.
func CheckTightBound(words []uint32) error {
	maxID, err := spirv.MaxResultID(words)
	if err != nil {
		return err
	}
	if bound := words[spirv.HeaderBound]; bound != maxID+1 {
		return fmt.Errorf("bound %d, max result id %d", bound, maxID)
	}
	return nil
}
