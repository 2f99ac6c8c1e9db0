package matte

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"slices"
)

// Finalize turns the accumulated counts into matte weights. For every pixel
// and layer the weights are scaled so they sum to the pixel coverage,
// background observations are dropped and the slots are sorted by
// descending weight. A nil coverage means full coverage everywhere.
//
// Finalize may be called on a partially accumulated buffer, but only once
// per generation.
func (s *Session) Finalize(coverage CoverageFunc) error {
	switch s.state {
	case StateAllocated, StateAccumulating:
	case StateFinalized, StateExtracted:
		return s.misuse("Finalize", ErrAlreadyFinalized)
	default:
		return s.misuse("Finalize", s.stateErr())
	}
	if coverage == nil {
		coverage = UniformCoverage(1)
	}

	nl := len(s.layers)
	degenerate := make([][]int, s.numBands())
	err := s.forEachBand(func(band, y0, y1 int) error {
		counts := make([]int, nl)
		for p := y0 * s.width; p < y1*s.width; p++ {
			c := coverage(p)
			for li := range s.layers {
				if !finalizeSlots(s.pixelLayer(p, li), c) {
					counts[li]++
				}
			}
		}
		degenerate[band] = counts
		return nil
	})
	if err != nil {
		return err
	}

	for _, counts := range degenerate {
		for li, n := range counts {
			s.stats[li].Degenerate += n
		}
	}
	s.state = StateFinalized

	if log := Logger(); log.Enabled(context.Background(), slog.LevelDebug) {
		for _, st := range s.stats {
			log.Debug("matte: finalized",
				"layer", st.Layer.String(), "samples", st.Samples,
				"overflow", st.Overflow, "degenerate", st.Degenerate)
		}
	}
	return nil
}

// finalizeSlots normalizes one pixel-layer against coverage c. It reports
// false when no finite normalization factor exists; the slots are cleared
// in that case.
func finalizeSlots(slots []Slot, c float32) bool {
	var total float32
	for _, slot := range slots {
		total += slot.Weight
	}
	if total == 0 {
		clear(slots)
		return false
	}
	inv := max(0, min(c, 1)) / total
	if math.IsNaN(float64(inv)) || math.IsInf(float64(inv), 0) {
		clear(slots)
		return false
	}

	for i := range slots {
		if slots[i].Hash == 0 {
			slots[i].Weight = 0
			continue
		}
		slots[i].Weight *= inv
	}
	slices.SortStableFunc(slots, bySlotWeight)
	return true
}

// bySlotWeight orders slots by descending weight.
func bySlotWeight(a, b Slot) int {
	return cmp.Compare(b.Weight, a.Weight)
}
