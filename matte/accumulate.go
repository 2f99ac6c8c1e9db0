package matte

import "fmt"

// Integrate merges one render sample into the buffer. frame holds one hash
// per pixel and active layer, indexed pixel*len(Layers())+layerIndex; 0
// means the ray hit no surface.
//
// In fast mode a layer stops integrating once it has seen Levels frames;
// later frames are skipped for that layer and counted in Stats.
func (s *Session) Integrate(frame []float32) error {
	switch s.state {
	case StateAllocated, StateAccumulating:
	case StateFinalized, StateExtracted:
		return s.misuse("Integrate", ErrAlreadyFinalized)
	default:
		return s.misuse("Integrate", s.stateErr())
	}
	if len(frame) != s.FrameSize() {
		return s.misuse("Integrate", fmt.Errorf("%w: got %d values, want %d", ErrFrameSize, len(frame), s.FrameSize()))
	}
	s.state = StateAccumulating

	nl := len(s.layers)
	include := make([]bool, nl)
	active := false
	for li := range s.layers {
		if !s.cfg.Accurate && s.stats[li].Samples >= s.levels[li] {
			s.stats[li].Skipped++
			continue
		}
		include[li] = true
		active = true
	}
	if !active {
		return nil
	}

	overflow := make([][]uint64, s.numBands())
	err := s.forEachBand(func(band, y0, y1 int) error {
		counts := make([]uint64, nl)
		for p := y0 * s.width; p < y1*s.width; p++ {
			for li, ok := range include {
				if ok && !integrateSlot(s.pixelLayer(p, li), frame[p*nl+li]) {
					counts[li]++
				}
			}
		}
		overflow[band] = counts
		return nil
	})
	if err != nil {
		return err
	}

	for li, ok := range include {
		if ok {
			s.stats[li].Samples++
		}
	}
	for _, counts := range overflow {
		for li, n := range counts {
			s.stats[li].Overflow += n
		}
	}
	return nil
}

// integrateSlot adds one observation of hash to slots. It reports false
// when every slot holds a different hash and the observation was dropped.
func integrateSlot(slots []Slot, hash float32) bool {
	for i := range slots {
		slot := &slots[i]
		if slot.Weight > 0 {
			if slot.Hash == hash {
				slot.Weight++
				return true
			}
			continue
		}
		slot.Hash = hash
		slot.Weight = 1
		return true
	}
	return false
}
