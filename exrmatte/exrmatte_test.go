package exrmatte

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/mrjoshuak/go-cryptomatte/exr"
	"github.com/mrjoshuak/go-cryptomatte/matte"
	"github.com/mrjoshuak/go-cryptomatte/matteid"
)

// bakeTestLayers renders a 4x2 image. The left half is "Hero" (material
// "Skin"), the right half alternates "Prop" and background per sample.
func bakeTestLayers(t *testing.T) ([]Layer, map[matte.Layer]*matteid.Manifest) {
	t.Helper()
	s, err := matte.NewSession(matte.Config{
		Levels:   4,
		Accurate: true,
		Layers:   matte.NewLayerSet(matte.LayerObject, matte.LayerMaterial),
		Prefix:   "ViewLayer.",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Allocate(4, 2); err != nil {
		t.Fatal(err)
	}

	objects, materials := matteid.NewManifest(), matteid.NewManifest()
	hero := matteid.ObjectHash(&matteid.Object{Name: "Hero"})
	objects.Add("Hero")
	objects.Add("Prop")
	materials.Add("Skin")
	prop := matteid.CryptomatteHashFloat("Prop")
	skin := matteid.MaterialHash("Skin")

	for sample := range 4 {
		frame := make([]float32, s.FrameSize())
		for y := range 2 {
			for x := range 4 {
				p := y*4 + x
				switch {
				case x < 2:
					frame[2*p], frame[2*p+1] = hero, skin
				case sample%2 == 0:
					frame[2*p] = prop
				}
			}
		}
		if err := s.Integrate(frame); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Finalize(nil); err != nil {
		t.Fatal(err)
	}

	manifests := map[matte.Layer]*matteid.Manifest{
		matte.LayerObject:   objects,
		matte.LayerMaterial: materials,
	}
	layers, err := FromSession(s, manifests)
	if err != nil {
		t.Fatal(err)
	}
	return layers, manifests
}

func TestWriteReadRoundTrip(t *testing.T) {
	layers, _ := bakeTestLayers(t)

	for _, c := range []exr.Compression{exr.CompressionNone, exr.CompressionZIPS, exr.CompressionZIP} {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer
			if err := Write(&buf, layers, WithCompression(c), WithAttribute("owner", "test")); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			f, err := Decode(buf.Bytes())
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if f.Width != 4 || f.Height != 2 {
				t.Errorf("size = %dx%d, want 4x2", f.Width, f.Height)
			}
			if owner, _ := f.Header.GetString("owner"); owner != "test" {
				t.Errorf("owner = %q, want test", owner)
			}
			if len(f.Layers) != 2 {
				t.Fatalf("len(Layers) = %d, want 2", len(f.Layers))
			}

			// Layers come back sorted by name: Material before Object.
			for i, want := range []Layer{layers[1], layers[0]} {
				got := f.Layers[i]
				if got.Metadata.Name != want.Metadata.Name {
					t.Errorf("layer %d = %q, want %q", i, got.Metadata.Name, want.Metadata.Name)
				}
				if got.Metadata.Manifest.String() != want.Metadata.Manifest.String() {
					t.Errorf("manifest = %s, want %s", got.Metadata.Manifest, want.Metadata.Manifest)
				}
				if len(got.Passes) != len(want.Passes) {
					t.Fatalf("%d passes, want %d", len(got.Passes), len(want.Passes))
				}
				for k := range got.Passes {
					if got.Passes[k].Name != want.Passes[k].Name || !slices.Equal(got.Passes[k].Pixels, want.Passes[k].Pixels) {
						t.Errorf("pass %q differs after round trip", want.Passes[k].Name)
					}
				}
			}

			if r := f.Validate(); !r.Valid || len(r.Warnings) != 0 {
				t.Errorf("Validate() = %+v", r)
			}
		})
	}
}

func TestKeyer(t *testing.T) {
	layers, _ := bakeTestLayers(t)
	path := filepath.Join(t.TempDir(), "matte.exr")
	if err := WriteFile(path, layers); err != nil {
		t.Fatal(err)
	}
	f, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	k, err := f.Keyer("CryptoObject")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		names []string
		want  []float32
	}{
		{[]string{"Hero"}, []float32{1, 1, 0, 0, 1, 1, 0, 0}},
		{[]string{"Prop"}, []float32{0, 0, 0.5, 0.5, 0, 0, 0.5, 0.5}},
		{[]string{"Hero", "Prop"}, []float32{1, 1, 0.5, 0.5, 1, 1, 0.5, 0.5}},
		{[]string{"Nobody"}, make([]float32, 8)},
	}
	for _, tt := range tests {
		if got := k.Matte(tt.names...); !slices.Equal(got, tt.want) {
			t.Errorf("Matte(%v) = %v, want %v", tt.names, got, tt.want)
		}
	}

	if name, w, ok := k.Pick(0, 1); !ok || name != "Hero" || w != 1 {
		t.Errorf("Pick(0, 1) = %q, %v, %v", name, w, ok)
	}
	if name, w, ok := k.Pick(3, 0); !ok || name != "Prop" || w != 0.5 {
		t.Errorf("Pick(3, 0) = %q, %v, %v", name, w, ok)
	}
	if _, _, ok := k.Pick(9, 0); ok {
		t.Error("Pick outside the image succeeded")
	}

	mk, err := f.Keyer("ViewLayer.CryptoMaterial")
	if err != nil {
		t.Fatal(err)
	}
	if got := mk.Matte("Skin"); got[0] != 1 || got[2] != 0 {
		t.Errorf("Matte(Skin) = %v", got)
	}
}

func TestLayerLookup(t *testing.T) {
	f := &File{Layers: []Layer{
		{Metadata: matteid.NewMetadata("A.CryptoObject", nil)},
		{Metadata: matteid.NewMetadata("B.CryptoObject", nil)},
		{Metadata: matteid.NewMetadata("A.CryptoAsset", nil)},
	}}
	if l, err := f.Layer("CryptoAsset"); err != nil || l.Metadata.Name != "A.CryptoAsset" {
		t.Errorf("Layer(CryptoAsset) = %v, %v", l, err)
	}
	if _, err := f.Layer("CryptoObject"); !errors.Is(err, ErrLayerNotFound) {
		t.Errorf("Layer(ambiguous) error = %v", err)
	}
	if _, err := f.Layer("CryptoMaterial"); !errors.Is(err, ErrLayerNotFound) {
		t.Errorf("Layer(missing) error = %v", err)
	}
}

func TestWriteErrors(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil); !errors.Is(err, ErrNoLayers) {
		t.Errorf("Write(nil) error = %v, want ErrNoLayers", err)
	}

	mismatched := []Layer{{
		Metadata: matteid.NewMetadata("CryptoObject", nil),
		Passes: []matte.Pass{
			{Name: "CryptoObject00", Width: 2, Height: 2, Pixels: make([]float32, 16)},
			{Name: "CryptoObject01", Width: 2, Height: 1, Pixels: make([]float32, 8)},
		},
	}}
	if err := Write(&buf, mismatched); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("Write(mismatched) error = %v, want ErrSizeMismatch", err)
	}

	empty := []Layer{{Metadata: matteid.NewMetadata("CryptoObject", nil)}}
	if err := Write(&buf, empty); !errors.Is(err, ErrMissingPasses) {
		t.Errorf("Write(no passes) error = %v, want ErrMissingPasses", err)
	}

	layers, _ := bakeTestLayers(t)
	if err := Write(&buf, append(layers, layers[0])); !errors.Is(err, ErrDuplicateLayer) {
		t.Errorf("Write(duplicate) error = %v, want ErrDuplicateLayer", err)
	}
}

func TestDecodePlainEXR(t *testing.T) {
	var buf bytes.Buffer
	fb := exr.NewFrameBuffer(1, 1)
	fb.Set("R", []float32{1})
	if err := exr.Write(&buf, exr.NewScanlineHeader(1, 1), fb); err != nil {
		t.Fatal(err)
	}
	_, err := Decode(buf.Bytes())
	if !IsNotCryptomatte(err) {
		t.Errorf("Decode() error = %v, want no metadata", err)
	}
}

func TestValidateDetectsProblems(t *testing.T) {
	manifest := matteid.NewManifest()
	manifest.Add("Known")
	nan := float32(math.NaN())
	f := &File{
		Width: 2, Height: 1,
		Layers: []Layer{{
			Metadata: matteid.Metadata{Name: "CryptoObject", Hash: "md5", Conversion: matteid.Conversion, Manifest: manifest},
			Passes: []matte.Pass{{
				Name: "CryptoObject00", Width: 2, Height: 1,
				Pixels: []float32{
					matteid.CryptomatteHashFloat("Unknown"), 0.9, matteid.CryptomatteHashFloat("Known"), 0.9,
					nan, 0.5, 0, 0,
				},
			}},
		}},
	}
	r := f.Validate()
	if r.Valid {
		t.Fatal("Validate() reported a broken file as valid")
	}
	if len(r.Errors) != 3 {
		t.Errorf("Errors = %q, want hash, weight and id errors", r.Errors)
	}
	if len(r.Warnings) != 1 {
		t.Errorf("Warnings = %q, want one manifest warning", r.Warnings)
	}
}

func TestValidateNaNWeight(t *testing.T) {
	manifest := matteid.NewManifest()
	manifest.Add("Known")
	f := &File{
		Width: 1, Height: 1,
		Layers: []Layer{{
			Metadata: matteid.Metadata{Name: "CryptoObject", Hash: matteid.HashMethod, Conversion: matteid.Conversion, Manifest: manifest},
			Passes: []matte.Pass{{
				Name: "CryptoObject00", Width: 1, Height: 1,
				Pixels: []float32{matteid.CryptomatteHashFloat("Known"), float32(math.NaN()), 0, 0},
			}},
		}},
	}
	r := f.Validate()
	if r.Valid {
		t.Fatal("Validate() reported a NaN weight as valid")
	}
	if len(r.Errors) != 1 || !strings.Contains(r.Errors[0], "weights out of range") {
		t.Errorf("Errors = %q, want one weight error", r.Errors)
	}
}

func TestCopyMetadata(t *testing.T) {
	src := exr.NewScanlineHeader(8, 8)
	src.SetString("owner", "studio")
	src.SetCompression(exr.CompressionNone)
	dst := exr.NewScanlineHeader(2, 2)
	CopyMetadata(src, dst)
	if v, _ := dst.GetString("owner"); v != "studio" {
		t.Errorf("owner = %q", v)
	}
	if dst.Width() != 2 || dst.Compression() != exr.CompressionZIP {
		t.Error("structural attributes were copied")
	}
	CopyMetadata(nil, dst)
}
