package matte

import (
	"fmt"
	"strings"
)

// Layer is one independently accumulated ID category.
type Layer uint8

const (
	// LayerObject holds per-object IDs.
	LayerObject Layer = iota
	// LayerMaterial holds per-material IDs.
	LayerMaterial
	// LayerAsset holds the ID of each object's top-most parent.
	LayerAsset

	numLayers
)

// AllLayers lists every layer in canonical order.
var AllLayers = []Layer{LayerObject, LayerMaterial, LayerAsset}

// String returns the layer name as used in pass names.
func (l Layer) String() string {
	switch l {
	case LayerObject:
		return "Object"
	case LayerMaterial:
		return "Material"
	case LayerAsset:
		return "Asset"
	default:
		return fmt.Sprintf("Layer(%d)", uint8(l))
	}
}

func (l Layer) valid() bool {
	return l < numLayers
}

// ParseLayer parses a layer name, ignoring case.
func ParseLayer(s string) (Layer, error) {
	s = strings.TrimSpace(s)
	for _, l := range AllLayers {
		if strings.EqualFold(s, l.String()) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLayer, s)
}

// LayerSet is a set of active layers.
type LayerSet uint8

// NewLayerSet returns a set holding the given layers.
func NewLayerSet(layers ...Layer) LayerSet {
	var s LayerSet
	for _, l := range layers {
		s = s.With(l)
	}
	return s
}

// With returns s with l added.
func (s LayerSet) With(l Layer) LayerSet {
	if !l.valid() {
		return s
	}
	return s | 1<<l
}

// Has reports whether l is in the set.
func (s LayerSet) Has(l Layer) bool {
	return l.valid() && s&(1<<l) != 0
}

// Len returns the number of layers in the set.
func (s LayerSet) Len() int {
	n := 0
	for _, l := range AllLayers {
		if s.Has(l) {
			n++
		}
	}
	return n
}

// Layers returns the layers of the set in canonical order. The position of
// a layer in this slice is its index in hash frames.
func (s LayerSet) Layers() []Layer {
	out := make([]Layer, 0, numLayers)
	for _, l := range AllLayers {
		if s.Has(l) {
			out = append(out, l)
		}
	}
	return out
}

// String returns the set as a comma separated list, e.g. "object,asset".
func (s LayerSet) String() string {
	names := make([]string, 0, numLayers)
	for _, l := range s.Layers() {
		names = append(names, strings.ToLower(l.String()))
	}
	return strings.Join(names, ",")
}

// MarshalText implements encoding.TextMarshaler.
func (s LayerSet) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts a comma
// separated list of layer names; an empty string is the empty set.
func (s *LayerSet) UnmarshalText(text []byte) error {
	var set LayerSet
	for _, name := range strings.Split(string(text), ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		l, err := ParseLayer(name)
		if err != nil {
			return err
		}
		set = set.With(l)
	}
	*s = set
	return nil
}
