package exr

import (
	"errors"
	"fmt"
	"sort"
)

// Header errors
var (
	ErrMissingAttribute     = errors.New("exr: missing required attribute")
	ErrInvalidDataWindow    = errors.New("exr: invalid data window")
	ErrUnsupportedFormat    = errors.New("exr: unsupported image format")
	ErrUnsupportedPixelType = errors.New("exr: unsupported pixel type")
)

// Required attribute names.
const (
	AttrChannels           = "channels"
	AttrCompression        = "compression"
	AttrDataWindow         = "dataWindow"
	AttrDisplayWindow      = "displayWindow"
	AttrLineOrder          = "lineOrder"
	AttrPixelAspectRatio   = "pixelAspectRatio"
	AttrScreenWindowCenter = "screenWindowCenter"
	AttrScreenWindowWidth  = "screenWindowWidth"
)

// maxShortName is the longest name allowed without the long-names flag.
const maxShortName = 31

// maxPixels bounds allocations driven by untrusted headers (256 megapixels).
const maxPixels = 1 << 28

// Header holds the attributes of a single-part scanline image.
type Header struct {
	attrs map[string]*Attribute
}

// NewHeader creates an empty header. Most callers want NewScanlineHeader.
func NewHeader() *Header {
	return &Header{attrs: make(map[string]*Attribute)}
}

// NewScanlineHeader creates a header with every required attribute set for
// a width x height image at the origin, ZIP compressed, with no channels.
func NewScanlineHeader(width, height int) *Header {
	h := NewHeader()
	window := Box2i{Max: V2i{X: int32(width - 1), Y: int32(height - 1)}}
	h.Set(&Attribute{Name: AttrChannels, Type: AttrTypeChlist, Value: NewChannelList()})
	h.Set(&Attribute{Name: AttrCompression, Type: AttrTypeCompression, Value: CompressionZIP})
	h.Set(&Attribute{Name: AttrDataWindow, Type: AttrTypeBox2i, Value: window})
	h.Set(&Attribute{Name: AttrDisplayWindow, Type: AttrTypeBox2i, Value: window})
	h.Set(&Attribute{Name: AttrLineOrder, Type: AttrTypeLineOrder, Value: LineOrderIncreasing})
	h.Set(&Attribute{Name: AttrPixelAspectRatio, Type: AttrTypeFloat, Value: float32(1)})
	h.Set(&Attribute{Name: AttrScreenWindowCenter, Type: AttrTypeV2f, Value: V2f{}})
	h.Set(&Attribute{Name: AttrScreenWindowWidth, Type: AttrTypeFloat, Value: float32(1)})
	return h
}

// Get returns the named attribute or nil.
func (h *Header) Get(name string) *Attribute {
	return h.attrs[name]
}

// Set adds or replaces an attribute.
func (h *Header) Set(attr *Attribute) {
	h.attrs[attr.Name] = attr
}

// Remove deletes the named attribute if present.
func (h *Header) Remove(name string) {
	delete(h.attrs, name)
}

// Attributes returns all attributes sorted by name.
func (h *Header) Attributes() []*Attribute {
	out := make([]*Attribute, 0, len(h.attrs))
	for _, a := range h.attrs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetString sets a string attribute.
func (h *Header) SetString(name, value string) {
	h.Set(&Attribute{Name: name, Type: AttrTypeString, Value: value})
}

// GetString returns the value of a string attribute.
func (h *Header) GetString(name string) (string, bool) {
	a := h.attrs[name]
	if a == nil || a.Type != AttrTypeString {
		return "", false
	}
	s, ok := a.Value.(string)
	return s, ok
}

// DataWindow returns the data window, or an empty box if unset.
func (h *Header) DataWindow() Box2i {
	if a := h.attrs[AttrDataWindow]; a != nil {
		if b, ok := a.Value.(Box2i); ok {
			return b
		}
	}
	return Box2i{Min: V2i{0, 0}, Max: V2i{-1, -1}}
}

// Width returns the data window width.
func (h *Header) Width() int {
	return int(h.DataWindow().Width())
}

// Height returns the data window height.
func (h *Header) Height() int {
	return int(h.DataWindow().Height())
}

// Compression returns the compression method.
func (h *Header) Compression() Compression {
	if a := h.attrs[AttrCompression]; a != nil {
		if c, ok := a.Value.(Compression); ok {
			return c
		}
	}
	return CompressionNone
}

// SetCompression sets the compression method.
func (h *Header) SetCompression(c Compression) {
	h.Set(&Attribute{Name: AttrCompression, Type: AttrTypeCompression, Value: c})
}

// LineOrder returns the line order.
func (h *Header) LineOrder() LineOrder {
	if a := h.attrs[AttrLineOrder]; a != nil {
		if lo, ok := a.Value.(LineOrder); ok {
			return lo
		}
	}
	return LineOrderIncreasing
}

// Channels returns the channel list, or nil if unset.
func (h *Header) Channels() *ChannelList {
	if a := h.attrs[AttrChannels]; a != nil {
		if cl, ok := a.Value.(*ChannelList); ok {
			return cl
		}
	}
	return nil
}

// Validate checks that the header describes an image this package can
// encode or decode.
func (h *Header) Validate() error {
	for _, name := range []string{
		AttrChannels, AttrCompression, AttrDataWindow, AttrDisplayWindow,
		AttrLineOrder, AttrPixelAspectRatio, AttrScreenWindowCenter, AttrScreenWindowWidth,
	} {
		if h.attrs[name] == nil {
			return fmt.Errorf("%w: %s", ErrMissingAttribute, name)
		}
	}
	dw := h.DataWindow()
	if dw.IsEmpty() {
		return ErrInvalidDataWindow
	}
	width, height := dw.Width(), dw.Height()
	if width > maxPixels || height > maxPixels || width*height > maxPixels {
		return fmt.Errorf("%w: %dx%d exceeds pixel limit", ErrInvalidDataWindow, width, height)
	}
	if c := h.Compression(); !c.Supported() {
		return fmt.Errorf("%w: %s compression", ErrUnsupportedFormat, c)
	}
	if lo := h.LineOrder(); lo != LineOrderIncreasing && lo != LineOrderDecreasing {
		return fmt.Errorf("%w: line order %d", ErrUnsupportedFormat, lo)
	}
	cl := h.Channels()
	if cl == nil {
		return fmt.Errorf("%w: %s", ErrMissingAttribute, AttrChannels)
	}
	for _, ch := range cl.Channels() {
		if ch.Type != PixelTypeFloat {
			return fmt.Errorf("%w: channel %q is %s", ErrUnsupportedPixelType, ch.Name, ch.Type)
		}
		if ch.XSampling != 1 || ch.YSampling != 1 {
			return fmt.Errorf("%w: channel %q is subsampled", ErrUnsupportedFormat, ch.Name)
		}
	}
	return nil
}

// needsLongNames reports whether any name exceeds the 31-byte limit of the
// original file format.
func (h *Header) needsLongNames() bool {
	for _, a := range h.attrs {
		if len(a.Name) > maxShortName || len(a.Type) > maxShortName {
			return true
		}
	}
	if cl := h.Channels(); cl != nil {
		for _, ch := range cl.Channels() {
			if len(ch.Name) > maxShortName {
				return true
			}
		}
	}
	return false
}
