// Package scene is a small procedural scene of overlapping discs used to
// drive matte sessions without a renderer.
package scene

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/mrjoshuak/go-cryptomatte/matte"
	"github.com/mrjoshuak/go-cryptomatte/matteid"
)

// Disc is a flat circular object. Smaller Depth is closer to the camera.
type Disc struct {
	Object   *matteid.Object
	Material string
	X, Y     float64 // center, in pixels
	Radius   float64
	Depth    float64
}

// Scene holds discs over an empty background and an optional uniform fog.
type Scene struct {
	Width, Height int
	Discs         []Disc
	// Fog is the fraction of light absorbed by the volume, in [0, 1].
	// Each sample's transmittance is jittered around 1-Fog.
	Fog float64
}

// Demo returns a scene with a parented hierarchy (a car made of a body and
// two wheels), a separate prop, and overlapping edges.
func Demo(width, height int) *Scene {
	w, h := float64(width), float64(height)
	r := min(w, h)

	car := &matteid.Object{Name: "Car"}
	body := &matteid.Object{Name: "Car.Body", Parent: car}
	wheelL := &matteid.Object{Name: "Car.Wheel.L", Parent: body}
	wheelR := &matteid.Object{Name: "Car.Wheel.R", Parent: body}
	prop := &matteid.Object{Name: "Prop"}

	return &Scene{
		Width:  width,
		Height: height,
		Discs: []Disc{
			{Object: body, Material: "Paint", X: 0.45 * w, Y: 0.45 * h, Radius: 0.30 * r, Depth: 2},
			{Object: wheelL, Material: "Rubber", X: 0.30 * w, Y: 0.70 * h, Radius: 0.12 * r, Depth: 1},
			{Object: wheelR, Material: "Rubber", X: 0.60 * w, Y: 0.70 * h, Radius: 0.12 * r, Depth: 1},
			{Object: prop, X: 0.80 * w, Y: 0.25 * h, Radius: 0.15 * r, Depth: 3},
		},
	}
}

// Shift returns a copy of s with every disc moved by dx pixels, e.g. to
// render the second eye of a stereo pair.
func (s *Scene) Shift(dx float64) *Scene {
	out := *s
	out.Discs = make([]Disc, len(s.Discs))
	for i, d := range s.Discs {
		d.X += dx
		out.Discs[i] = d
	}
	return &out
}

// hit returns the front-most disc covering (x, y), or nil.
func (s *Scene) hit(x, y float64) *Disc {
	var best *Disc
	for i := range s.Discs {
		d := &s.Discs[i]
		if math.Hypot(x-d.X, y-d.Y) > d.Radius {
			continue
		}
		if best == nil || d.Depth < best.Depth {
			best = d
		}
	}
	return best
}

// ID returns the hash of a disc for one layer. A nil disc is background.
func ID(d *Disc, l matte.Layer) float32 {
	if d == nil {
		return 0
	}
	switch l {
	case matte.LayerObject:
		return matteid.ObjectHash(d.Object)
	case matte.LayerMaterial:
		return matteid.MaterialHash(d.Material)
	case matte.LayerAsset:
		return matteid.AssetHash(d.Object)
	default:
		panic(fmt.Sprintf("scene: unknown layer %d", l))
	}
}

// Sampler renders jittered samples of a scene. Samples are deterministic
// for a given seed and sample index.
type Sampler struct {
	scene *Scene
	seed  uint64
}

// NewSampler returns a sampler for s.
func NewSampler(s *Scene, seed uint64) *Sampler {
	return &Sampler{scene: s, seed: seed}
}

// HashFrame fills frame with one hash per pixel and layer for sample index
// sample. frame must hold Width*Height*len(layers) values.
func (sm *Sampler) HashFrame(sample int, layers []matte.Layer, frame []float32) error {
	s := sm.scene
	if len(frame) != s.Width*s.Height*len(layers) {
		return fmt.Errorf("scene: frame has %d values, want %d", len(frame), s.Width*s.Height*len(layers))
	}
	rng := rand.New(rand.NewPCG(sm.seed, uint64(sample)))
	for y := range s.Height {
		for x := range s.Width {
			d := s.hit(float64(x)+rng.Float64(), float64(y)+rng.Float64())
			p := y*s.Width + x
			for li, l := range layers {
				frame[p*len(layers)+li] = ID(d, l)
			}
		}
	}
	return nil
}

// Transmittance fills rgb with one jittered RGB transmittance triple per
// pixel for sample index sample.
func (sm *Sampler) Transmittance(sample int, rgb []float32) error {
	s := sm.scene
	if len(rgb) != 3*s.Width*s.Height {
		return fmt.Errorf("scene: transmittance has %d values, want %d", len(rgb), 3*s.Width*s.Height)
	}
	rng := rand.New(rand.NewPCG(^sm.seed, uint64(sample)))
	for i := range rgb {
		t := 1 - s.Fog*(0.5+rng.Float64())
		rgb[i] = float32(max(0, min(t, 1)))
	}
	return nil
}

// Manifests returns the name manifest of every layer.
func (s *Scene) Manifests() map[matte.Layer]*matteid.Manifest {
	m := map[matte.Layer]*matteid.Manifest{
		matte.LayerObject:   matteid.NewManifest(),
		matte.LayerMaterial: matteid.NewManifest(),
		matte.LayerAsset:    matteid.NewManifest(),
	}
	for _, d := range s.Discs {
		m[matte.LayerObject].Add(d.Object.Name)
		m[matte.LayerAsset].Add(d.Object.Root().Name)
		if d.Material != "" {
			m[matte.LayerMaterial].Add(d.Material)
		}
	}
	return m
}
