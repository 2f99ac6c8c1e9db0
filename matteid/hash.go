// Package matteid provides Cryptomatte identifiers: name hashing, the
// id-to-name manifest and the per-layer metadata stored alongside matte
// passes.
//
// IDs are 32-bit MurmurHash3 values of entity names, stored in image
// channels by reinterpreting the bits as a float32. The exponent is clamped
// away from 0 and 255 first so an ID never becomes a denormal, NaN or
// infinity.
//
// Example usage:
//
//	id := matteid.CryptomatteHashFloat("Hero")
//	manifest := matteid.NewManifest()
//	manifest.Add("Hero")
//	md := matteid.NewMetadata("ViewLayer.CryptoObject", manifest)
//	matteid.SetMetadata(header, md)
package matteid

import (
	"fmt"
	"math"
	"strconv"

	"github.com/spaolacci/murmur3"
)

// ===========================================
// Hashing
// ===========================================

const (
	exponentMask  = 0xFF << 23
	exponentShift = 23
)

// HashName returns the raw MurmurHash3_32 (seed 0) of a name.
func HashName(name string) uint32 {
	return murmur3.Sum32([]byte(name))
}

// FloatSafe clamps the exponent field of a hash to [1, 254] so that the
// bits, read as a float32, are a normal finite number. Sign and mantissa
// are kept.
func FloatSafe(hash uint32) uint32 {
	exp := (hash & exponentMask) >> exponentShift
	exp = min(max(exp, 1), 254)
	return hash&^exponentMask | exp<<exponentShift
}

// CryptomatteHash computes the float-safe MurmurHash3 ID for a name.
func CryptomatteHash(name string) uint32 {
	return FloatSafe(HashName(name))
}

// CryptomatteHashFloat computes the Cryptomatte ID for a name and returns
// its bits reinterpreted (not converted) as a float32.
func CryptomatteHashFloat(name string) float32 {
	return math.Float32frombits(CryptomatteHash(name))
}

// HashToFloat reinterprets a raw hash as a Cryptomatte float ID.
func HashToFloat(hash uint32) float32 {
	return math.Float32frombits(FloatSafe(hash))
}

// FloatToHash recovers the ID bits from a float read out of a matte pass.
func FloatToHash(f float32) uint32 {
	return math.Float32bits(f)
}

// Hex formats an ID the way manifests store it: eight lowercase hex digits.
func Hex(id uint32) string {
	return fmt.Sprintf("%08x", id)
}

// ParseHex parses an eight digit manifest ID.
func ParseHex(s string) (uint32, error) {
	if len(s) != 8 {
		return 0, fmt.Errorf("matteid: invalid id %q", s)
	}
	id, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("matteid: invalid id %q: %w", s, err)
	}
	return uint32(id), nil
}

// ===========================================
// Scene entities
// ===========================================

// Object is the minimal view of a scene object needed to derive IDs:
// its name and its parent in the transform hierarchy.
type Object struct {
	Name   string
	Parent *Object
}

// Root returns the top-most ancestor of o (o itself when it has no parent).
func (o *Object) Root() *Object {
	for o.Parent != nil {
		o = o.Parent
	}
	return o
}

// ObjectHash returns the Object layer ID of o. A nil object is background
// and hashes to 0.
func ObjectHash(o *Object) float32 {
	if o == nil {
		return 0
	}
	return CryptomatteHashFloat(o.Name)
}

// AssetHash returns the Asset layer ID of o: the ID of its top-most parent.
func AssetHash(o *Object) float32 {
	if o == nil {
		return 0
	}
	return CryptomatteHashFloat(o.Root().Name)
}

// MaterialHash returns the Material layer ID for a material name. Surfaces
// without a material ("") hash to 0.
func MaterialHash(material string) float32 {
	if material == "" {
		return 0
	}
	return CryptomatteHashFloat(material)
}
