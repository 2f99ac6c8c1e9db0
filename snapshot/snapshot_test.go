package snapshot

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/mrjoshuak/go-cryptomatte/matte"
)

func testCheckpoint(t *testing.T) (*matte.Session, *matte.Checkpoint) {
	t.Helper()
	s, err := matte.NewSession(matte.Config{
		Levels:      4,
		Accurate:    false,
		Layers:      matte.NewLayerSet(matte.LayerObject, matte.LayerAsset),
		LayerLevels: map[matte.Layer]int{matte.LayerAsset: 2},
		Prefix:      "Left.",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Allocate(16, 8); err != nil {
		t.Fatal(err)
	}
	frame := make([]float32, s.FrameSize())
	for sample := range 3 {
		for i := range frame {
			frame[i] = float32((i + sample) % 5)
		}
		if err := s.Integrate(frame); err != nil {
			t.Fatal(err)
		}
	}
	cp, err := s.Checkpoint()
	if err != nil {
		t.Fatal(err)
	}
	return s, cp
}

func equalCheckpoints(t *testing.T, got, want *matte.Checkpoint) {
	t.Helper()
	if got.Width != want.Width || got.Height != want.Height {
		t.Errorf("size = %dx%d, want %dx%d", got.Width, got.Height, want.Width, want.Height)
	}
	gc, wc := got.Config, want.Config
	if gc.Levels != wc.Levels || gc.Accurate != wc.Accurate || gc.Layers != wc.Layers || gc.Prefix != wc.Prefix || gc.Workers != wc.Workers {
		t.Errorf("config = %+v, want %+v", gc, wc)
	}
	if len(gc.LayerLevels) != len(wc.LayerLevels) || gc.LayerLevels[matte.LayerAsset] != wc.LayerLevels[matte.LayerAsset] {
		t.Errorf("LayerLevels = %v, want %v", gc.LayerLevels, wc.LayerLevels)
	}
	if !slices.Equal(got.Stats, want.Stats) {
		t.Errorf("stats = %+v, want %+v", got.Stats, want.Stats)
	}
	if !slices.Equal(got.Slots, want.Slots) {
		t.Error("slots differ")
	}
}

func TestRoundTrip(t *testing.T) {
	_, cp := testCheckpoint(t)

	var buf bytes.Buffer
	if err := Save(&buf, cp); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	equalCheckpoints(t, got, cp)
}

func TestFileRoundTripAndResume(t *testing.T) {
	s, cp := testCheckpoint(t)
	path := filepath.Join(t.TempDir(), "view.ckpt")
	if err := SaveFile(path, cp); err != nil {
		t.Fatalf("SaveFile() error = %v", err)
	}
	got, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	equalCheckpoints(t, got, cp)

	resumed, err := matte.Restore(got)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	frame := make([]float32, s.FrameSize())
	for i := range frame {
		frame[i] = 1
	}
	for _, sess := range []*matte.Session{s, resumed} {
		if err := sess.Integrate(frame); err != nil {
			t.Fatal(err)
		}
		if err := sess.Finalize(nil); err != nil {
			t.Fatal(err)
		}
	}
	for p := range 16 * 8 {
		a, _ := s.Slots(matte.LayerObject, p)
		b, _ := resumed.Slots(matte.LayerObject, p)
		if !slices.Equal(a, b) {
			t.Fatalf("pixel %d: original %v, resumed %v", p, a, b)
		}
	}
	if !slices.Equal(s.Stats(), resumed.Stats()) {
		t.Errorf("stats: original %+v, resumed %+v", s.Stats(), resumed.Stats())
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("SaveFile left %d files, want 1", len(entries))
	}
}

func TestCorruption(t *testing.T) {
	_, cp := testCheckpoint(t)
	data, err := Encode(cp)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{"truncated header", func(b []byte) []byte { return b[:10] }, ErrTruncatedFile},
		{"truncated payload", func(b []byte) []byte { return b[:len(b)-1] }, ErrTruncatedFile},
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }, ErrInvalidMagic},
		{"bad version", func(b []byte) []byte { b[4] = 9; return b }, ErrInvalidVersion},
		{"flipped payload bit", func(b []byte) []byte { b[len(b)-1] ^= 1; return b }, ErrChecksumFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.mutate(slices.Clone(data))); !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	_, cp := testCheckpoint(t)
	raw := marshal(cp)

	if _, err := unmarshal(raw[:len(raw)-3]); !errors.Is(err, ErrCorruptSnapshot) {
		t.Errorf("unmarshal(short) error = %v", err)
	}
	if _, err := unmarshal(append(slices.Clone(raw), 0)); !errors.Is(err, ErrCorruptSnapshot) {
		t.Errorf("unmarshal(trailing) error = %v", err)
	}
}

func TestOpenMissingAndShort(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(filepath.Join(dir, "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open(missing) error = %v", err)
	}
	short := filepath.Join(dir, "short")
	os.WriteFile(short, []byte("CMSN"), 0o644)
	if _, err := Open(short); !errors.Is(err, ErrTruncatedFile) {
		t.Errorf("Open(short) error = %v", err)
	}
}
