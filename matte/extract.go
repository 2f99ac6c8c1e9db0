package matte

import (
	"fmt"
)

// Pass is one RGBA matte image. R/G hold the hash and weight of slot 2k,
// B/A those of slot 2k+1.
type Pass struct {
	Name          string
	Width, Height int
	// Pixels holds interleaved RGBA values, 4 per pixel, row-major.
	Pixels []float32
}

// Extract packs the finalized slots of a layer into ceil(levels/2) RGBA
// passes. Each layer can be extracted once per generation.
func (s *Session) Extract(l Layer) ([]Pass, error) {
	switch s.state {
	case StateFinalized, StateExtracted:
	case StateAllocated, StateAccumulating:
		return nil, s.misuse("Extract", ErrNotFinalized)
	default:
		return nil, s.misuse("Extract", s.stateErr())
	}
	li, ok := s.layerIndex(l)
	if !ok {
		return nil, s.misuse("Extract", fmt.Errorf("%w: %s", ErrInactiveLayer, l))
	}
	if s.extracted[li] {
		return nil, s.misuse("Extract", fmt.Errorf("%w: %s", ErrAlreadyExtracted, l))
	}

	names := s.PassNames(l)
	passes := make([]Pass, len(names))
	for k := range passes {
		passes[k] = Pass{
			Name:   names[k],
			Width:  s.width,
			Height: s.height,
			Pixels: make([]float32, s.width*s.height*4),
		}
	}

	err := s.forEachBand(func(_, y0, y1 int) error {
		for p := y0 * s.width; p < y1*s.width; p++ {
			slots := s.pixelLayer(p, li)
			for i, slot := range slots {
				px := passes[i/2].Pixels[4*p : 4*p+4]
				px[2*(i%2)] = slot.Hash
				px[2*(i%2)+1] = slot.Weight
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.extracted[li] = true
	s.state = StateExtracted
	return passes, nil
}

// Unpack reconstructs the levels slots of one pixel from packed passes.
func Unpack(passes []Pass, levels, pixel int) ([]Slot, error) {
	if levels < 1 || len(passes) < numPasses(levels) {
		return nil, fmt.Errorf("%w: %d passes cannot hold %d levels", ErrInvalidPasses, len(passes), levels)
	}
	slots := make([]Slot, levels)
	for i := range slots {
		pass := passes[i/2]
		idx := 4*pixel + 2*(i%2)
		if pixel < 0 || idx+1 >= len(pass.Pixels) {
			return nil, fmt.Errorf("%w: pixel %d out of range for pass %q", ErrInvalidPasses, pixel, pass.Name)
		}
		slots[i] = Slot{Hash: pass.Pixels[idx], Weight: pass.Pixels[idx+1]}
	}
	return slots, nil
}
