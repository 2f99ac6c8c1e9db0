package exr

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/mrjoshuak/go-cryptomatte/internal/xdr"
)

// Reader errors
var (
	ErrInvalidMagic   = errors.New("exr: invalid magic number")
	ErrInvalidVersion = errors.New("exr: unsupported file version")
	ErrCorruptChunk   = errors.New("exr: corrupt chunk")
)

// Decode parses a complete single-part scanline file held in memory.
func Decode(data []byte) (*Header, *FrameBuffer, error) {
	r := xdr.NewReader(data)

	magic, err := r.ReadUint32()
	if err != nil {
		return nil, nil, err
	}
	if magic != MagicNumber {
		return nil, nil, ErrInvalidMagic
	}
	flags, err := r.ReadUint32()
	if err != nil {
		return nil, nil, err
	}
	if flags&0xFF != formatVersion {
		return nil, nil, fmt.Errorf("%w: %d", ErrInvalidVersion, flags&0xFF)
	}
	if flags&(flagTiled|flagDeep|flagMultiPart) != 0 {
		return nil, nil, fmt.Errorf("%w: tiled, deep and multi-part files are not supported", ErrUnsupportedFormat)
	}

	h := NewHeader()
	for {
		attr, err := ReadAttribute(r)
		if err != nil {
			return nil, nil, err
		}
		if attr == nil {
			break
		}
		h.Set(attr)
	}
	if err := h.Validate(); err != nil {
		return nil, nil, err
	}

	width, height := h.Width(), h.Height()
	lines := h.Compression().ScanlinesPerChunk()
	numChunks := (height + lines - 1) / lines

	// Every chunk needs an offset and a chunk header; check that much is
	// present before sizing anything from the header.
	if numChunks > r.Len()/(8+8) {
		return nil, nil, fmt.Errorf("%w: %d chunks do not fit in %d bytes", ErrCorruptChunk, numChunks, r.Len())
	}
	offsets := make([]uint64, numChunks)
	for i := range offsets {
		if offsets[i], err = r.ReadUint64(); err != nil {
			return nil, nil, err
		}
	}

	channels := h.Channels().Channels()
	fb := NewFrameBuffer(width, height)
	for _, ch := range channels {
		fb.planes[ch.Name] = make([]float32, width*height)
	}

	dw := h.DataWindow()
	for i, off := range offsets {
		if off > uint64(len(data)) {
			return nil, nil, fmt.Errorf("%w: offset %d out of range", ErrCorruptChunk, i)
		}
		if err := r.SetPos(int(off)); err != nil {
			return nil, nil, err
		}
		y, err := r.ReadInt32()
		if err != nil {
			return nil, nil, err
		}
		size, err := r.ReadInt32()
		if err != nil {
			return nil, nil, err
		}
		y0 := int(int64(y) - int64(dw.Min.Y))
		if y0 != i*lines {
			return nil, nil, fmt.Errorf("%w: chunk %d starts at line %d", ErrCorruptChunk, i, y0)
		}
		y1 := min(y0+lines, height)
		payload, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: chunk %d: %v", ErrCorruptChunk, i, err)
		}

		rawSize := (y1 - y0) * width * len(channels) * 4
		raw := payload
		if len(payload) != rawSize {
			if h.Compression() == CompressionNone {
				return nil, nil, fmt.Errorf("%w: chunk %d has %d bytes, want %d", ErrCorruptChunk, i, len(payload), rawSize)
			}
			if raw, err = zipDecompress(payload, rawSize); err != nil {
				return nil, nil, fmt.Errorf("chunk %d: %w", i, err)
			}
		}

		cr := xdr.NewReader(raw)
		for line := y0; line < y1; line++ {
			for _, ch := range channels {
				row := fb.planes[ch.Name][line*width : (line+1)*width]
				for x := range row {
					bits, err := cr.ReadUint32()
					if err != nil {
						return nil, nil, fmt.Errorf("%w: chunk %d: %v", ErrCorruptChunk, i, err)
					}
					row[x] = math.Float32frombits(bits)
				}
			}
		}
	}

	return h, fb, nil
}

// ReadFile reads and decodes the file at path.
func ReadFile(path string) (*Header, *FrameBuffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return Decode(data)
}
