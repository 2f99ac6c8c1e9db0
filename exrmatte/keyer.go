package exrmatte

import (
	"fmt"

	"github.com/mrjoshuak/go-cryptomatte/matteid"
)

// Keyer rebuilds mattes from one layer.
type Keyer struct {
	layer         *Layer
	width, height int
}

// Keyer returns a Keyer for the named layer (see File.Layer for matching).
func (f *File) Keyer(layer string) (*Keyer, error) {
	l, err := f.Layer(layer)
	if err != nil {
		return nil, err
	}
	return NewKeyer(l)
}

// NewKeyer returns a Keyer over the passes of l.
func NewKeyer(l *Layer) (*Keyer, error) {
	width, height, err := layerSize([]Layer{*l})
	if err != nil {
		return nil, err
	}
	return &Keyer{layer: l, width: width, height: height}, nil
}

// ID returns the ID used for name: the manifest entry when the layer has
// one, otherwise the hash of the name.
func (k *Keyer) ID(name string) uint32 {
	if m := k.layer.Metadata.Manifest; m != nil {
		if id, ok := m.ID(name); ok {
			return id
		}
	}
	return matteid.CryptomatteHash(name)
}

// Matte returns the per-pixel alpha of the union of the named entities:
// the sum of the weights of every slot whose ID belongs to one of them.
func (k *Keyer) Matte(names ...string) []float32 {
	ids := make([]uint32, len(names))
	for i, name := range names {
		ids[i] = k.ID(name)
	}
	return k.MatteIDs(ids...)
}

// MatteIDs is Matte for raw IDs.
func (k *Keyer) MatteIDs(ids ...uint32) []float32 {
	want := make(map[uint32]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	alpha := make([]float32, k.width*k.height)
	for _, pass := range k.layer.Passes {
		px := pass.Pixels
		for p := range alpha {
			if w := px[4*p+1]; w != 0 && want[matteid.FloatToHash(px[4*p])] {
				alpha[p] += w
			}
			if w := px[4*p+3]; w != 0 && want[matteid.FloatToHash(px[4*p+2])] {
				alpha[p] += w
			}
		}
	}
	return alpha
}

// Pick returns the entity with the highest weight at (x, y). The name is
// the manifest entry, or the hex ID when the manifest lacks it. ok is false
// for background pixels.
func (k *Keyer) Pick(x, y int) (name string, weight float32, ok bool) {
	if x < 0 || y < 0 || x >= k.width || y >= k.height {
		return "", 0, false
	}
	px := k.layer.Passes[0].Pixels[4*(y*k.width+x):]
	if px[1] == 0 {
		return "", 0, false
	}
	id := matteid.FloatToHash(px[0])
	if m := k.layer.Metadata.Manifest; m != nil {
		if n, found := m.Lookup(id); found {
			return n, px[1], true
		}
	}
	return fmt.Sprintf("<%s>", matteid.Hex(id)), px[1], true
}
