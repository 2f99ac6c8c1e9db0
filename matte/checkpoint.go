package matte

import (
	"fmt"
	"maps"
)

// Checkpoint is a copy of an in-flight accumulation. It lets an interrupted
// render resume integrating where it stopped.
type Checkpoint struct {
	Config        Config
	Width, Height int
	Stats         []LayerStats
	Slots         []Slot
}

// Checkpoint copies the accumulation state. It is only available before
// Finalize, since finalized weights can no longer be integrated into.
func (s *Session) Checkpoint() (*Checkpoint, error) {
	switch s.state {
	case StateAllocated, StateAccumulating:
	case StateFinalized, StateExtracted:
		return nil, s.misuse("Checkpoint", ErrAlreadyFinalized)
	default:
		return nil, s.misuse("Checkpoint", s.stateErr())
	}
	cfg := s.cfg
	cfg.LayerLevels = maps.Clone(s.cfg.LayerLevels)
	return &Checkpoint{
		Config: cfg,
		Width:  s.width,
		Height: s.height,
		Stats:  append([]LayerStats(nil), s.stats...),
		Slots:  append([]Slot(nil), s.slots...),
	}, nil
}

// Restore rebuilds a Session in StateAccumulating from a checkpoint.
func Restore(cp *Checkpoint, opts ...Option) (*Session, error) {
	s, err := NewSession(cp.Config, opts...)
	if err != nil {
		return nil, err
	}
	n, err := s.slotCount(cp.Width, cp.Height)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCheckpoint, err)
	}
	if len(cp.Slots) != n {
		return nil, fmt.Errorf("%w: %d slots, want %d", ErrInvalidCheckpoint, len(cp.Slots), n)
	}
	if err := s.Allocate(cp.Width, cp.Height); err != nil {
		return nil, err
	}
	if len(cp.Stats) != len(s.stats) {
		return nil, fmt.Errorf("%w: %d layer stats, want %d", ErrInvalidCheckpoint, len(cp.Stats), len(s.stats))
	}
	for li, st := range cp.Stats {
		if st.Layer != s.layers[li] || st.Levels != s.levels[li] {
			return nil, fmt.Errorf("%w: stats %d describe %s/%d, want %s/%d",
				ErrInvalidCheckpoint, li, st.Layer, st.Levels, s.layers[li], s.levels[li])
		}
	}
	copy(s.slots, cp.Slots)
	copy(s.stats, cp.Stats)
	s.state = StateAccumulating
	return s, nil
}
