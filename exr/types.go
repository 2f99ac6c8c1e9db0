// Package exr reads and writes single-part scanline OpenEXR files holding
// 32-bit float channels.
//
// The package covers the subset of OpenEXR that Cryptomatte output needs:
// lossless FLOAT channels, NONE/ZIPS/ZIP compression and arbitrary string
// metadata attributes. Files it writes open in any OpenEXR 2.x/3.x reader.
//
//	h := exr.NewScanlineHeader(1920, 1080)
//	h.SetCompression(exr.CompressionZIP)
//	fb := exr.NewFrameBuffer(1920, 1080)
//	fb.Set("CryptoObject00.R", hashes)
//	err := exr.WriteFile("matte.exr", h, fb)
package exr

import (
	"github.com/mrjoshuak/go-cryptomatte/internal/xdr"
)

// V2i represents a 2D integer vector.
type V2i struct {
	X, Y int32
}

// V2f represents a 2D float vector.
type V2f struct {
	X, Y float32
}

// Box2i represents an axis-aligned 2D integer bounding box.
// Both corners are inclusive.
type Box2i struct {
	Min, Max V2i
}

// Width returns the width of the box. It is computed in 64 bits, so
// extreme corners cannot wrap around.
func (b Box2i) Width() int64 {
	return int64(b.Max.X) - int64(b.Min.X) + 1
}

// Height returns the height of the box.
func (b Box2i) Height() int64 {
	return int64(b.Max.Y) - int64(b.Min.Y) + 1
}

// IsEmpty returns true if the box has no area.
func (b Box2i) IsEmpty() bool {
	return b.Max.X < b.Min.X || b.Max.Y < b.Min.Y
}

// PixelType identifies the storage type of a channel.
type PixelType uint32

const (
	// PixelTypeUint is a 32-bit unsigned integer.
	PixelTypeUint PixelType = 0
	// PixelTypeHalf is a 16-bit float.
	PixelTypeHalf PixelType = 1
	// PixelTypeFloat is a 32-bit float.
	PixelTypeFloat PixelType = 2
)

// Size returns the number of bytes per pixel for the type.
func (p PixelType) Size() int {
	switch p {
	case PixelTypeHalf:
		return 2
	case PixelTypeUint, PixelTypeFloat:
		return 4
	default:
		return 0
	}
}

// String returns a string representation of the pixel type.
func (p PixelType) String() string {
	switch p {
	case PixelTypeUint:
		return "uint"
	case PixelTypeHalf:
		return "half"
	case PixelTypeFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Compression defines the compression method for pixel data.
type Compression uint8

const (
	// CompressionNone stores uncompressed data.
	CompressionNone Compression = 0
	// CompressionRLE uses run-length encoding. Not supported for writing.
	CompressionRLE Compression = 1
	// CompressionZIPS uses zlib compression on single scanlines.
	CompressionZIPS Compression = 2
	// CompressionZIP uses zlib compression on 16 scanlines.
	CompressionZIP Compression = 3
	// CompressionPIZ uses wavelet compression. Not supported.
	CompressionPIZ Compression = 4
)

// String returns a string representation of the compression type.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionRLE:
		return "rle"
	case CompressionZIPS:
		return "zips"
	case CompressionZIP:
		return "zip"
	case CompressionPIZ:
		return "piz"
	default:
		return "unknown"
	}
}

// ParseCompression maps a name as returned by String to a Compression.
func ParseCompression(s string) (Compression, bool) {
	switch s {
	case "none":
		return CompressionNone, true
	case "zips":
		return CompressionZIPS, true
	case "zip":
		return CompressionZIP, true
	default:
		return 0, false
	}
}

// Supported reports whether this package can encode and decode c.
func (c Compression) Supported() bool {
	return c == CompressionNone || c == CompressionZIPS || c == CompressionZIP
}

// ScanlinesPerChunk returns the number of scanlines grouped together
// for this compression type.
func (c Compression) ScanlinesPerChunk() int {
	if c == CompressionZIP {
		return 16
	}
	return 1
}

// LineOrder defines the order of scanlines in the file.
type LineOrder uint8

const (
	// LineOrderIncreasing stores scanlines from top to bottom (y=0 first).
	LineOrderIncreasing LineOrder = 0
	// LineOrderDecreasing stores scanlines from bottom to top.
	LineOrderDecreasing LineOrder = 1
)

func readBox2i(r *xdr.Reader) (Box2i, error) {
	var v [4]int32
	for i := range v {
		n, err := r.ReadInt32()
		if err != nil {
			return Box2i{}, err
		}
		v[i] = n
	}
	return Box2i{Min: V2i{v[0], v[1]}, Max: V2i{v[2], v[3]}}, nil
}

func writeBox2i(w *xdr.BufferWriter, b Box2i) {
	w.WriteInt32(b.Min.X)
	w.WriteInt32(b.Min.Y)
	w.WriteInt32(b.Max.X)
	w.WriteInt32(b.Max.Y)
}

func readV2f(r *xdr.Reader) (V2f, error) {
	x, err := r.ReadFloat32()
	if err != nil {
		return V2f{}, err
	}
	y, err := r.ReadFloat32()
	if err != nil {
		return V2f{}, err
	}
	return V2f{x, y}, nil
}

func writeV2f(w *xdr.BufferWriter, v V2f) {
	w.WriteFloat32(v.X)
	w.WriteFloat32(v.Y)
}
