package exrmatte

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/mrjoshuak/go-cryptomatte/exr"
	"github.com/mrjoshuak/go-cryptomatte/matte"
	"github.com/mrjoshuak/go-cryptomatte/matteid"
)

// File is a decoded Cryptomatte image.
type File struct {
	Header        *exr.Header
	Width, Height int
	// Layers are sorted by name.
	Layers []Layer
}

// Decode parses an OpenEXR file held in memory and collects the passes of
// every layer described by its Cryptomatte metadata. Passes are found by the
// standard "<layer><NN>.<component>" channel names.
func Decode(data []byte) (*File, error) {
	h, fb, err := exr.Decode(data)
	if err != nil {
		return nil, err
	}
	mds, err := matteid.ReadMetadata(h)
	if err != nil {
		return nil, err
	}

	f := &File{Header: h, Width: h.Width(), Height: h.Height()}
	for _, md := range mds {
		passes := collectPasses(fb, md.Name)
		if len(passes) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrMissingPasses, md.Name)
		}
		f.Layers = append(f.Layers, Layer{Metadata: md, Passes: passes})
	}
	return f, nil
}

// ReadFile reads and decodes the file at path.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// collectPasses gathers consecutive passes name00, name01, ... Missing
// G/B/A channels read as zero.
func collectPasses(fb *exr.FrameBuffer, name string) []matte.Pass {
	pixels := fb.Width() * fb.Height()
	var passes []matte.Pass
	for k := 0; ; k++ {
		passName := matte.DefaultPassName(name, k)
		if fb.Get(passName+"."+components[0]) == nil {
			return passes
		}
		rgba := make([]float32, 4*pixels)
		for c, comp := range components {
			plane := fb.Get(passName + "." + comp)
			if plane == nil {
				continue
			}
			for p, v := range plane {
				rgba[4*p+c] = v
			}
		}
		passes = append(passes, matte.Pass{Name: passName, Width: fb.Width(), Height: fb.Height(), Pixels: rgba})
	}
}

// Layer returns the layer with the given name. A name without a prefix,
// such as "CryptoObject", matches a single layer ending in ".CryptoObject".
func (f *File) Layer(name string) (*Layer, error) {
	var match *Layer
	for i := range f.Layers {
		l := &f.Layers[i]
		if l.Metadata.Name == name {
			return l, nil
		}
		if strings.HasSuffix(l.Metadata.Name, "."+name) {
			if match != nil {
				return nil, fmt.Errorf("%w: %q is ambiguous", ErrLayerNotFound, name)
			}
			match = l
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %q", ErrLayerNotFound, name)
	}
	return match, nil
}

// ===========================================
// File Information
// ===========================================

// LayerInfo summarizes one layer.
type LayerInfo struct {
	Name         string
	Key          string
	Hash         string
	Conversion   string
	Passes       []string
	Levels       int
	ManifestSize int
}

// Info summarizes a Cryptomatte file.
type Info struct {
	Width       int
	Height      int
	Compression exr.Compression
	Channels    []string
	Layers      []LayerInfo
}

// Info returns summary information about the file.
func (f *File) Info() Info {
	info := Info{
		Width:       f.Width,
		Height:      f.Height,
		Compression: f.Header.Compression(),
	}
	if cl := f.Header.Channels(); cl != nil {
		for _, ch := range cl.Channels() {
			info.Channels = append(info.Channels, ch.Name)
		}
	}
	for _, l := range f.Layers {
		li := LayerInfo{
			Name:       l.Metadata.Name,
			Key:        l.Metadata.Key(),
			Hash:       l.Metadata.Hash,
			Conversion: l.Metadata.Conversion,
			Levels:     l.Levels(),
		}
		for _, p := range l.Passes {
			li.Passes = append(li.Passes, p.Name)
		}
		if l.Metadata.Manifest != nil {
			li.ManifestSize = l.Metadata.Manifest.Len()
		}
		info.Layers = append(info.Layers, li)
	}
	return info
}

// ===========================================
// Validation
// ===========================================

// ValidationResult contains the results of file validation.
type ValidationResult struct {
	Valid    bool
	Warnings []string
	Errors   []string
}

func (r *ValidationResult) errorf(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// weightTolerance absorbs float rounding in per-pixel weight sums.
const weightTolerance = 1e-4

// Validate checks that every layer follows the Cryptomatte conventions:
// known hash and conversion identifiers, weights within [0, 1] summing to at
// most 1 per pixel, IDs that are never NaN or infinite, and IDs present in
// the manifest when there is one.
func (f *File) Validate() *ValidationResult {
	result := &ValidationResult{Valid: true}
	if len(f.Layers) == 0 {
		result.errorf("no cryptomatte layers")
	}

	for _, l := range f.Layers {
		name := l.Metadata.Name
		if l.Metadata.Hash != matteid.HashMethod {
			result.errorf("%s: unsupported hash %q", name, l.Metadata.Hash)
		}
		if l.Metadata.Conversion != matteid.Conversion {
			result.errorf("%s: unsupported conversion %q", name, l.Metadata.Conversion)
		}
		if l.Metadata.Manifest == nil {
			result.warnf("%s: no manifest", name)
		}

		unknown := make(map[uint32]bool)
		var badWeights, badIDs int
		for p := range f.Width * f.Height {
			slots, err := matte.Unpack(l.Passes, l.Levels(), p)
			if err != nil {
				result.errorf("%s: %v", name, err)
				break
			}
			var sum float32
			for _, s := range slots {
				sum += s.Weight
				if math.IsNaN(float64(s.Weight)) || s.Weight < 0 || s.Weight > 1+weightTolerance {
					badWeights++
				}
				if s.Weight == 0 {
					continue
				}
				bits := matteid.FloatToHash(s.Hash)
				if bits != matteid.FloatSafe(bits) {
					badIDs++
				}
				if l.Metadata.Manifest != nil {
					if _, ok := l.Metadata.Manifest.Lookup(bits); !ok {
						unknown[bits] = true
					}
				}
			}
			if sum > 1+weightTolerance {
				badWeights++
			}
		}
		if badWeights > 0 {
			result.errorf("%s: %d weights out of range", name, badWeights)
		}
		if badIDs > 0 {
			result.errorf("%s: %d ids are not float safe", name, badIDs)
		}
		if len(unknown) > 0 {
			ids := make([]string, 0, len(unknown))
			for id := range unknown {
				ids = append(ids, matteid.Hex(id))
			}
			sort.Strings(ids)
			result.warnf("%s: %d ids missing from manifest: %s", name, len(ids), strings.Join(ids, ","))
		}
	}
	return result
}

// IsNotCryptomatte reports whether err means the file carries no
// Cryptomatte layers at all.
func IsNotCryptomatte(err error) bool {
	return errors.Is(err, matteid.ErrNoMetadata)
}
