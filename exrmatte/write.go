// Package exrmatte stores Cryptomatte layers in OpenEXR files and reads
// them back for keying.
//
// Each layer is written as its RGBA passes, one channel per component
// ("ViewLayer.CryptoObject00.R" ...), together with the layer's
// cryptomatte/<key>/ metadata attributes. Reading reverses the process and
// a Keyer rebuilds mattes for sets of names.
//
// Example usage:
//
//	layers, _ := exrmatte.FromSession(session, manifests)
//	err := exrmatte.WriteFile("matte.exr", layers, exrmatte.WithCompression(exr.CompressionZIP))
//
//	f, _ := exrmatte.ReadFile("matte.exr")
//	k, _ := f.Keyer("ViewLayer.CryptoObject")
//	alpha := k.Matte("Hero", "Hero.Cape")
package exrmatte

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mrjoshuak/go-cryptomatte/exr"
	"github.com/mrjoshuak/go-cryptomatte/matte"
	"github.com/mrjoshuak/go-cryptomatte/matteid"
)

// Errors
var (
	ErrNoLayers       = errors.New("exrmatte: no layers")
	ErrSizeMismatch   = errors.New("exrmatte: passes differ in size")
	ErrLayerNotFound  = errors.New("exrmatte: layer not found")
	ErrMissingPasses  = errors.New("exrmatte: layer has no passes")
	ErrDuplicateLayer = errors.New("exrmatte: duplicate layer")
)

// components are the channel suffixes of a pass, in pixel order.
var components = [4]string{"R", "G", "B", "A"}

// Layer is one Cryptomatte layer: its metadata and its packed passes.
type Layer struct {
	Metadata matteid.Metadata
	Passes   []matte.Pass
}

// Levels returns the number of slots the passes can hold.
func (l *Layer) Levels() int {
	return 2 * len(l.Passes)
}

// FromSession extracts every active layer of a finalized session. manifests
// may be nil or miss layers; those layers are written without a manifest.
func FromSession(s *matte.Session, manifests map[matte.Layer]*matteid.Manifest) ([]Layer, error) {
	layers := make([]Layer, 0, len(s.Layers()))
	for _, l := range s.Layers() {
		passes, err := s.Extract(l)
		if err != nil {
			return nil, err
		}
		md, err := s.Metadata(l)
		if err != nil {
			return nil, err
		}
		md.Manifest = manifests[l]
		layers = append(layers, Layer{Metadata: md, Passes: passes})
	}
	return layers, nil
}

// ===========================================
// Writing
// ===========================================

// Option configures Write.
type Option func(*writeOptions)

type writeOptions struct {
	compression exr.Compression
	lineOrder   exr.LineOrder
	attrs       map[string]string
	source      *exr.Header
}

// WithCompression selects the chunk compression. The default is ZIP.
func WithCompression(c exr.Compression) Option {
	return func(o *writeOptions) {
		o.compression = c
	}
}

// WithLineOrder selects the order chunks are written in.
func WithLineOrder(lo exr.LineOrder) Option {
	return func(o *writeOptions) {
		o.lineOrder = lo
	}
}

// WithAttribute adds a string attribute to the header.
func WithAttribute(name, value string) Option {
	return func(o *writeOptions) {
		o.attrs[name] = value
	}
}

// WithMetadataFrom copies the non-structural attributes of h into the
// written header, e.g. to carry over render metadata from a beauty file.
func WithMetadataFrom(h *exr.Header) Option {
	return func(o *writeOptions) {
		o.source = h
	}
}

// Write encodes layers as a single-part scanline OpenEXR image.
func Write(w io.Writer, layers []Layer, opts ...Option) error {
	o := writeOptions{
		compression: exr.CompressionZIP,
		lineOrder:   exr.LineOrderIncreasing,
		attrs:       make(map[string]string),
	}
	for _, opt := range opts {
		opt(&o)
	}

	width, height, err := layerSize(layers)
	if err != nil {
		return err
	}

	h := exr.NewScanlineHeader(width, height)
	if o.source != nil {
		CopyMetadata(o.source, h)
	}
	h.SetCompression(o.compression)
	h.Set(&exr.Attribute{Name: exr.AttrLineOrder, Type: exr.AttrTypeLineOrder, Value: o.lineOrder})
	for name, value := range o.attrs {
		h.SetString(name, value)
	}

	fb := exr.NewFrameBuffer(width, height)
	seen := make(map[string]bool)
	for _, l := range layers {
		if seen[l.Metadata.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateLayer, l.Metadata.Name)
		}
		seen[l.Metadata.Name] = true
		if err := matteid.SetMetadata(h, l.Metadata); err != nil {
			return err
		}
		for _, p := range l.Passes {
			for c, plane := range deinterleave(p.Pixels, width*height) {
				if err := fb.Set(p.Name+"."+components[c], plane); err != nil {
					return err
				}
			}
		}
	}
	return exr.Write(w, h, fb)
}

// WriteFile writes layers to path, replacing any existing file.
func WriteFile(path string, layers []Layer, opts ...Option) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, layers, opts...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// layerSize returns the common size of all passes.
func layerSize(layers []Layer) (width, height int, err error) {
	if len(layers) == 0 {
		return 0, 0, ErrNoLayers
	}
	width, height = -1, -1
	for _, l := range layers {
		if len(l.Passes) == 0 {
			return 0, 0, fmt.Errorf("%w: %q", ErrMissingPasses, l.Metadata.Name)
		}
		for _, p := range l.Passes {
			if width < 0 {
				width, height = p.Width, p.Height
			}
			if p.Width != width || p.Height != height || len(p.Pixels) != 4*width*height {
				return 0, 0, fmt.Errorf("%w: pass %q is %dx%d with %d values, want %dx%d",
					ErrSizeMismatch, p.Name, p.Width, p.Height, len(p.Pixels), width, height)
			}
		}
	}
	return width, height, nil
}

// deinterleave splits RGBA pixels into four planes.
func deinterleave(rgba []float32, pixels int) [4][]float32 {
	var planes [4][]float32
	for c := range planes {
		planes[c] = make([]float32, pixels)
	}
	for p := range pixels {
		for c := range planes {
			planes[c][p] = rgba[4*p+c]
		}
	}
	return planes
}

// CopyMetadata copies all attributes from src to dst except the structural
// ones that describe the image layout.
func CopyMetadata(src, dst *exr.Header) {
	if src == nil || dst == nil {
		return
	}
	structural := map[string]bool{
		exr.AttrChannels:           true,
		exr.AttrCompression:        true,
		exr.AttrDataWindow:         true,
		exr.AttrDisplayWindow:      true,
		exr.AttrLineOrder:          true,
		exr.AttrPixelAspectRatio:   true,
		exr.AttrScreenWindowCenter: true,
		exr.AttrScreenWindowWidth:  true,
		"tiles":                    true,
		"type":                     true,
		"name":                     true,
		"version":                  true,
		"chunkCount":               true,
	}
	for _, attr := range src.Attributes() {
		if !structural[attr.Name] {
			dst.Set(attr)
		}
	}
}
