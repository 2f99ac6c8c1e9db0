package matte

import (
	"errors"
	"math"
	"testing"
)

func TestCheckpointResume(t *testing.T) {
	samples := []float32{3, 1, 3, 2, 3, 1, 7}

	full := newPixelSession(t, 2)
	integrateAll(t, full, samples...)

	part := newPixelSession(t, 2)
	integrateAll(t, part, samples[:3]...)
	cp, err := part.Checkpoint()
	if err != nil {
		t.Fatal(err)
	}
	// Mutating the source must not affect the checkpoint.
	integrateAll(t, part, 99)

	resumed, err := Restore(cp)
	if err != nil {
		t.Fatal(err)
	}
	if resumed.State() != StateAccumulating {
		t.Errorf("state = %s, want ACCUMULATING", resumed.State())
	}
	integrateAll(t, resumed, samples[3:]...)

	if got, want := pixelSlots(t, resumed, LayerObject, 0), pixelSlots(t, full, LayerObject, 0); got[0] != want[0] || got[1] != want[1] {
		t.Errorf("resumed slots = %v, want %v", got, want)
	}
	if got, want := resumed.Stats()[0], full.Stats()[0]; got != want {
		t.Errorf("resumed stats = %+v, want %+v", got, want)
	}
}

func TestCheckpointState(t *testing.T) {
	s, _ := NewSession(DefaultConfig())
	if _, err := s.Checkpoint(); !errors.Is(err, ErrNotAllocated) {
		t.Errorf("Checkpoint() before Allocate error = %v", err)
	}
	s.Allocate(1, 1)
	s.Finalize(nil)
	if _, err := s.Checkpoint(); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("Checkpoint() after Finalize error = %v", err)
	}
}

func TestRestoreInvalid(t *testing.T) {
	s := newPixelSession(t, 2)
	cp, err := s.Checkpoint()
	if err != nil {
		t.Fatal(err)
	}

	short := *cp
	short.Slots = short.Slots[:1]
	if _, err := Restore(&short); !errors.Is(err, ErrInvalidCheckpoint) {
		t.Errorf("Restore(short slots) error = %v", err)
	}

	wrong := *cp
	wrong.Stats = []LayerStats{{Layer: LayerAsset, Levels: 2}}
	if _, err := Restore(&wrong); !errors.Is(err, ErrInvalidCheckpoint) {
		t.Errorf("Restore(wrong stats) error = %v", err)
	}

	// Sizes are checked against the slots before anything is allocated.
	for _, size := range [][2]int{{math.MaxInt, math.MaxInt}, {1 << 30, 1 << 30}, {2, 1}} {
		huge := *cp
		huge.Width, huge.Height = size[0], size[1]
		if _, err := Restore(&huge); !errors.Is(err, ErrInvalidCheckpoint) {
			t.Errorf("Restore(%dx%d) error = %v, want ErrInvalidCheckpoint", size[0], size[1], err)
		}
	}

	bad := *cp
	bad.Config.Levels = 0
	if _, err := Restore(&bad); !errors.Is(err, ErrInvalidLevels) {
		t.Errorf("Restore(bad config) error = %v", err)
	}
}
