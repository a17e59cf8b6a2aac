// SPDX-License-Identifier: MIT

package flow

import (
	"fmt"
	"time"

	"github.com/flowforge/mediaflow/internal/errs"
)

// SlotMap declares a flow's input/output topology and per-slot policies.
// Index values are slot indices; InputMaxCacheNum, if non-nil, must have one
// entry per InputIndices entry (a nil slice means the
// Options.InputMaxCacheNum scalar default applies to every input slot).
type SlotMap struct {
	InputIndices  []int
	OutputIndices []int

	// InputMaxCacheNum optionally overrides Options.InputMaxCacheNum per
	// input slot, in the same order as InputIndices. 0 is unbounded and is
	// only legal when Options.ThreadModel is AsyncCommon.
	InputMaxCacheNum []int

	Options Options

	// Period overrides the interval derived from Options.IntervalUs; only
	// meaningful when Options.ThreadModel is AsyncAtomic. Zero means "use
	// Options.IntervalUs".
	Period time.Duration
}

func uniqueNonNegative(indices []int) error {
	seen := make(map[int]struct{}, len(indices))
	for _, idx := range indices {
		if idx < 0 {
			return fmt.Errorf("slot index %d must be >= 0", idx)
		}
		if _, dup := seen[idx]; dup {
			return fmt.Errorf("duplicate slot index %d", idx)
		}
		seen[idx] = struct{}{}
	}
	return nil
}

func maxIndex(indices []int) int {
	max := -1
	for _, idx := range indices {
		if idx > max {
			max = idx
		}
	}
	return max
}

// validate enforces unique, non-negative indices, and a per-slot
// cache-size vector sized to the number of inputs (or absent,
// meaning the scalar default applies to all).
func (s SlotMap) validate() error {
	if err := uniqueNonNegative(s.InputIndices); err != nil {
		return errs.NewInvalidParam("flow.SlotMap.validate(inputs)", err)
	}
	if err := uniqueNonNegative(s.OutputIndices); err != nil {
		return errs.NewInvalidParam("flow.SlotMap.validate(outputs)", err)
	}
	if s.InputMaxCacheNum != nil && len(s.InputMaxCacheNum) != len(s.InputIndices) {
		return errs.NewInvalidParam("flow.SlotMap.validate",
			fmt.Errorf("input_maxcachenum has %d entries, want %d", len(s.InputMaxCacheNum), len(s.InputIndices)))
	}
	for i, n := range s.InputMaxCacheNum {
		if n == 0 && s.Options.ThreadModel != AsyncCommon {
			return errs.NewInvalidParam("flow.SlotMap.validate",
				fmt.Errorf("input slot %d: unbounded cache (0) is only legal in async_common", s.InputIndices[i]))
		}
	}
	return nil
}

// cacheNumFor returns the effective max-cache-num for the i-th entry of
// InputIndices.
func (s SlotMap) cacheNumFor(i int) int {
	if s.InputMaxCacheNum != nil {
		return s.InputMaxCacheNum[i]
	}
	return s.Options.InputMaxCacheNum
}
