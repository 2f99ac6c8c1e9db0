package exr

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mrjoshuak/go-cryptomatte/internal/xdr"
)

// Attribute errors
var (
	ErrUnknownAttributeType = errors.New("exr: unknown attribute type")
	ErrAttributeNotFound    = errors.New("exr: attribute not found")
	ErrInvalidAttribute     = errors.New("exr: invalid attribute value")
)

// AttributeType identifies the type of an attribute.
type AttributeType string

// Attribute types understood by this package. Any other type is carried
// through as raw bytes.
const (
	AttrTypeBox2i       AttributeType = "box2i"
	AttrTypeChlist      AttributeType = "chlist"
	AttrTypeCompression AttributeType = "compression"
	AttrTypeFloat       AttributeType = "float"
	AttrTypeInt         AttributeType = "int"
	AttrTypeLineOrder   AttributeType = "lineOrder"
	AttrTypeString      AttributeType = "string"
	AttrTypeV2f         AttributeType = "v2f"
)

// Attribute represents a single header attribute.
type Attribute struct {
	Name  string
	Type  AttributeType
	Value any
}

// Channel describes one image channel.
type Channel struct {
	Name      string
	Type      PixelType
	PLinear   bool
	XSampling int32
	YSampling int32
}

// ChannelList is the set of channels in a part, kept sorted by name as the
// file format requires.
type ChannelList struct {
	channels []Channel
}

// NewChannelList creates an empty channel list.
func NewChannelList() *ChannelList {
	return &ChannelList{}
}

// Add inserts a channel, keeping the list sorted. Adding an existing name
// replaces it.
func (cl *ChannelList) Add(ch Channel) {
	if ch.XSampling == 0 {
		ch.XSampling = 1
	}
	if ch.YSampling == 0 {
		ch.YSampling = 1
	}
	i := sort.Search(len(cl.channels), func(i int) bool { return cl.channels[i].Name >= ch.Name })
	if i < len(cl.channels) && cl.channels[i].Name == ch.Name {
		cl.channels[i] = ch
		return
	}
	cl.channels = append(cl.channels, Channel{})
	copy(cl.channels[i+1:], cl.channels[i:])
	cl.channels[i] = ch
}

// Get returns the named channel or nil.
func (cl *ChannelList) Get(name string) *Channel {
	i := sort.Search(len(cl.channels), func(i int) bool { return cl.channels[i].Name >= name })
	if i < len(cl.channels) && cl.channels[i].Name == name {
		return &cl.channels[i]
	}
	return nil
}

// Len returns the number of channels.
func (cl *ChannelList) Len() int {
	return len(cl.channels)
}

// Channels returns the channels in file order.
func (cl *ChannelList) Channels() []Channel {
	return cl.channels
}

// ReadAttribute reads a single attribute from the reader.
// Returns nil when the header terminator (empty name) is reached.
func ReadAttribute(r *xdr.Reader) (*Attribute, error) {
	name, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, nil
	}

	typeName, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	size, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	raw, err := r.ReadBytes(int(size))
	if err != nil {
		return nil, fmt.Errorf("exr: attribute %q: %w", name, err)
	}

	attr := &Attribute{Name: name, Type: AttributeType(typeName)}
	vr := xdr.NewReader(raw)

	switch attr.Type {
	case AttrTypeBox2i:
		attr.Value, err = readBox2i(vr)
	case AttrTypeChlist:
		attr.Value, err = readChannelList(vr)
	case AttrTypeCompression:
		b, e := vr.ReadByte()
		attr.Value, err = Compression(b), e
	case AttrTypeFloat:
		attr.Value, err = vr.ReadFloat32()
	case AttrTypeInt:
		attr.Value, err = vr.ReadInt32()
	case AttrTypeLineOrder:
		b, e := vr.ReadByte()
		attr.Value, err = LineOrder(b), e
	case AttrTypeString:
		// No terminator: the size field bounds the value.
		attr.Value = string(raw)
	case AttrTypeV2f:
		attr.Value, err = readV2f(vr)
	default:
		attr.Value = append([]byte(nil), raw...)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAttribute, name, err)
	}
	return attr, nil
}

// WriteAttribute writes an attribute to the writer.
func WriteAttribute(w *xdr.BufferWriter, attr *Attribute) error {
	value := xdr.NewBufferWriter(64)
	if err := writeAttributeValue(value, attr); err != nil {
		return err
	}
	w.WriteString(attr.Name)
	w.WriteString(string(attr.Type))
	w.WriteInt32(int32(value.Len()))
	w.WriteBytes(value.Bytes())
	return nil
}

func writeAttributeValue(w *xdr.BufferWriter, attr *Attribute) (err error) {
	defer func() {
		// Value does not match Type.
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %q has type %s but value %T", ErrInvalidAttribute, attr.Name, attr.Type, attr.Value)
		}
	}()

	switch attr.Type {
	case AttrTypeBox2i:
		writeBox2i(w, attr.Value.(Box2i))
	case AttrTypeChlist:
		writeChannelList(w, attr.Value.(*ChannelList))
	case AttrTypeCompression:
		w.WriteByte(byte(attr.Value.(Compression)))
	case AttrTypeFloat:
		w.WriteFloat32(attr.Value.(float32))
	case AttrTypeInt:
		w.WriteInt32(attr.Value.(int32))
	case AttrTypeLineOrder:
		w.WriteByte(byte(attr.Value.(LineOrder)))
	case AttrTypeString:
		w.WriteBytes([]byte(attr.Value.(string)))
	case AttrTypeV2f:
		writeV2f(w, attr.Value.(V2f))
	default:
		b, ok := attr.Value.([]byte)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownAttributeType, attr.Type)
		}
		w.WriteBytes(b)
	}
	return nil
}

func readChannelList(r *xdr.Reader) (*ChannelList, error) {
	cl := NewChannelList()
	for {
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		if name == "" {
			return cl, nil
		}
		pt, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		flags, err := r.ReadBytes(4) // pLinear + 3 reserved
		if err != nil {
			return nil, err
		}
		xs, err := r.ReadInt32()
		if err != nil {
			return nil, err
		}
		ys, err := r.ReadInt32()
		if err != nil {
			return nil, err
		}
		cl.Add(Channel{
			Name:      name,
			Type:      PixelType(pt),
			PLinear:   flags[0] != 0,
			XSampling: xs,
			YSampling: ys,
		})
	}
}

func writeChannelList(w *xdr.BufferWriter, cl *ChannelList) {
	for _, ch := range cl.channels {
		w.WriteString(ch.Name)
		w.WriteUint32(uint32(ch.Type))
		var plinear byte
		if ch.PLinear {
			plinear = 1
		}
		w.WriteBytes([]byte{plinear, 0, 0, 0})
		w.WriteInt32(ch.XSampling)
		w.WriteInt32(ch.YSampling)
	}
	w.WriteByte(0)
}
