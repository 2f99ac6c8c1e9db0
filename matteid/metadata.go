package matteid

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mrjoshuak/go-cryptomatte/exr"
)

// ===========================================
// Layer metadata
// ===========================================

// AttrCryptomatte is the prefix for Cryptomatte metadata attributes.
const AttrCryptomatte = "cryptomatte"

// Metadata keys stored under cryptomatte/<key>/.
const (
	KeyName       = "name"
	KeyHash       = "hash"
	KeyConversion = "conversion"
	KeyManifest   = "manifest"
)

// HashMethod identifies how IDs are generated from names.
const HashMethod = "MurmurHash3_32"

// Conversion identifies how IDs are stored in float channels.
const Conversion = "uint32_to_float32"

// ErrNoMetadata is returned when a header carries no Cryptomatte layers.
var ErrNoMetadata = errors.New("matteid: no cryptomatte metadata found")

// Metadata describes one Cryptomatte layer so that downstream tools can
// find its channels and map IDs back to names.
type Metadata struct {
	// Name is the channel prefix of the layer, e.g. "ViewLayer.CryptoObject".
	Name string
	// Hash is the hashing method identifier.
	Hash string
	// Conversion is the id storage identifier.
	Conversion string
	// Manifest is the id-to-name mapping; may be nil when the mapping is
	// kept in a sidecar or is unknown.
	Manifest *Manifest
}

// NewMetadata creates metadata for a layer using the standard hash and
// conversion identifiers.
func NewMetadata(name string, manifest *Manifest) Metadata {
	return Metadata{
		Name:       name,
		Hash:       HashMethod,
		Conversion: Conversion,
		Manifest:   manifest,
	}
}

// LayerKey returns the 7 hex digit key that groups a layer's attributes:
// the leading digits of the MurmurHash3 of the layer name.
func LayerKey(name string) string {
	return Hex(HashName(name))[:7]
}

// Key returns the layer key of m.
func (m Metadata) Key() string {
	return LayerKey(m.Name)
}

// AttributeName returns the full attribute name for one metadata key.
func (m Metadata) AttributeName(key string) string {
	return AttrCryptomatte + "/" + m.Key() + "/" + key
}

// Attributes returns the metadata as attribute name/value pairs.
func (m Metadata) Attributes() map[string]string {
	attrs := map[string]string{
		m.AttributeName(KeyName):       m.Name,
		m.AttributeName(KeyHash):       m.Hash,
		m.AttributeName(KeyConversion): m.Conversion,
	}
	if m.Manifest != nil {
		attrs[m.AttributeName(KeyManifest)] = m.Manifest.String()
	}
	return attrs
}

// ===========================================
// Header I/O
// ===========================================

// SetMetadata stores a layer's metadata in an EXR header.
func SetMetadata(h *exr.Header, m Metadata) error {
	if m.Name == "" {
		return fmt.Errorf("matteid: layer name is empty")
	}
	for name, value := range m.Attributes() {
		h.SetString(name, value)
	}
	return nil
}

// HasMetadata reports whether a header carries any Cryptomatte layer.
func HasMetadata(h *exr.Header) bool {
	for _, attr := range h.Attributes() {
		if strings.HasPrefix(attr.Name, AttrCryptomatte+"/") {
			return true
		}
	}
	return false
}

// ReadMetadata extracts every Cryptomatte layer from a header, sorted by
// layer name. Layers without a name attribute are skipped.
func ReadMetadata(h *exr.Header) ([]Metadata, error) {
	byKey := make(map[string]*Metadata)
	manifests := make(map[string]string)

	for _, attr := range h.Attributes() {
		if !strings.HasPrefix(attr.Name, AttrCryptomatte+"/") {
			continue
		}
		// Attribute name: cryptomatte/<key>/<field>
		parts := strings.Split(attr.Name, "/")
		if len(parts) != 3 {
			continue
		}
		value, ok := attr.Value.(string)
		if !ok {
			continue
		}
		key, field := parts[1], parts[2]
		md := byKey[key]
		if md == nil {
			md = &Metadata{}
			byKey[key] = md
		}
		switch field {
		case KeyName:
			md.Name = value
		case KeyHash:
			md.Hash = value
		case KeyConversion:
			md.Conversion = value
		case KeyManifest:
			manifests[key] = value
		}
	}

	var out []Metadata
	for key, md := range byKey {
		if md.Name == "" {
			continue
		}
		if data, ok := manifests[key]; ok {
			manifest, err := ParseManifest(data)
			if err != nil {
				return nil, fmt.Errorf("layer %q: %w", md.Name, err)
			}
			md.Manifest = manifest
		}
		out = append(out, *md)
	}
	if len(out) == 0 {
		return nil, ErrNoMetadata
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FindMetadata returns the layer with the given name.
func FindMetadata(h *exr.Header, name string) (Metadata, error) {
	layers, err := ReadMetadata(h)
	if err != nil {
		return Metadata{}, err
	}
	for _, md := range layers {
		if md.Name == name {
			return md, nil
		}
	}
	return Metadata{}, fmt.Errorf("%w: layer %q", ErrNoMetadata, name)
}
