package exr

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/mrjoshuak/go-cryptomatte/internal/xdr"
)

// File layout constants.
const (
	// MagicNumber starts every OpenEXR file.
	MagicNumber uint32 = 20000630
	// formatVersion is the only file format version in use.
	formatVersion uint32 = 2

	flagTiled     uint32 = 0x200
	flagLongNames uint32 = 0x400
	flagDeep      uint32 = 0x800
	flagMultiPart uint32 = 0x1000
)

// Write encodes a single-part scanline image. The header's channel list is
// replaced by the frame buffer's planes, all stored as FLOAT.
func Write(w io.Writer, h *Header, fb *FrameBuffer) error {
	if fb.Width() != h.Width() || fb.Height() != h.Height() {
		return fmt.Errorf("%w: frame buffer is %dx%d, header is %dx%d",
			ErrInvalidSlice, fb.Width(), fb.Height(), h.Width(), h.Height())
	}

	cl := NewChannelList()
	for _, name := range fb.Names() {
		cl.Add(Channel{Name: name, Type: PixelTypeFloat})
	}
	h.Set(&Attribute{Name: AttrChannels, Type: AttrTypeChlist, Value: cl})
	if err := h.Validate(); err != nil {
		return err
	}

	chunks, err := encodeChunks(h, fb)
	if err != nil {
		return err
	}

	out := xdr.NewBufferWriter(4096)
	out.WriteUint32(MagicNumber)
	flags := formatVersion
	if h.needsLongNames() {
		flags |= flagLongNames
	}
	out.WriteUint32(flags)
	for _, a := range h.Attributes() {
		if err := WriteAttribute(out, a); err != nil {
			return err
		}
	}
	out.WriteByte(0)

	tableStart := out.Len()
	for range chunks {
		out.WriteUint64(0)
	}

	dw := h.DataWindow()
	lines := h.Compression().ScanlinesPerChunk()
	bw := bufio.NewWriter(w)
	pos := uint64(out.Len())

	order := make([]int, len(chunks))
	for i := range order {
		order[i] = i
		if h.LineOrder() == LineOrderDecreasing {
			order[i] = len(chunks) - 1 - i
		}
	}
	for _, i := range order {
		if err := out.PutUint64At(tableStart+8*i, pos); err != nil {
			return err
		}
		pos += 8 + uint64(len(chunks[i]))
	}
	if _, err := bw.Write(out.Bytes()); err != nil {
		return err
	}

	for _, i := range order {
		hdr := xdr.NewBufferWriter(8)
		hdr.WriteInt32(dw.Min.Y + int32(i*lines))
		hdr.WriteInt32(int32(len(chunks[i])))
		if _, err := bw.Write(hdr.Bytes()); err != nil {
			return err
		}
		if _, err := bw.Write(chunks[i]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes an image to path, replacing any existing file.
func WriteFile(path string, h *Header, fb *FrameBuffer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, h, fb); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// encodeChunks packs and compresses every chunk. Chunks are independent, so
// compression runs on all cores.
func encodeChunks(h *Header, fb *FrameBuffer) ([][]byte, error) {
	width, height := h.Width(), h.Height()
	lines := h.Compression().ScanlinesPerChunk()
	names := fb.Names()
	numChunks := (height + lines - 1) / lines
	chunks := make([][]byte, numChunks)

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range chunks {
		g.Go(func() error {
			y0 := i * lines
			y1 := min(y0+lines, height)
			raw := make([]byte, 0, (y1-y0)*width*len(names)*4)
			for y := y0; y < y1; y++ {
				for _, name := range names {
					for _, v := range fb.Get(name)[y*width : (y+1)*width] {
						raw = xdr.ByteOrder.AppendUint32(raw, math.Float32bits(v))
					}
				}
			}
			if h.Compression() == CompressionNone {
				chunks[i] = raw
				return nil
			}
			packed, err := zipCompress(raw)
			if err != nil {
				return fmt.Errorf("exr: compress chunk %d: %w", i, err)
			}
			// Incompressible chunks are stored raw; readers detect this
			// from the size.
			if len(packed) >= len(raw) {
				packed = raw
			}
			chunks[i] = packed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}
