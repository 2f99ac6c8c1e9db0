package snapshot

import (
	"fmt"
	"slices"

	"github.com/mrjoshuak/go-cryptomatte/internal/xdr"
	"github.com/mrjoshuak/go-cryptomatte/matte"
)

// slotSize is the encoded size of one matte.Slot.
const slotSize = 8

func marshal(cp *matte.Checkpoint) []byte {
	w := xdr.NewBufferWriter(64 + len(cp.Slots)*slotSize)

	cfg := cp.Config
	w.WriteInt32(int32(cfg.Levels))
	w.WriteByte(boolByte(cfg.Accurate))
	w.WriteByte(byte(cfg.Layers))
	w.WriteInt32(int32(cfg.Workers))
	w.WriteString(cfg.Prefix)
	layers := make([]matte.Layer, 0, len(cfg.LayerLevels))
	for l := range cfg.LayerLevels {
		layers = append(layers, l)
	}
	slices.Sort(layers)
	w.WriteUint32(uint32(len(layers)))
	for _, l := range layers {
		w.WriteByte(byte(l))
		w.WriteInt32(int32(cfg.LayerLevels[l]))
	}

	w.WriteInt32(int32(cp.Width))
	w.WriteInt32(int32(cp.Height))

	w.WriteUint32(uint32(len(cp.Stats)))
	for _, st := range cp.Stats {
		w.WriteByte(byte(st.Layer))
		w.WriteInt32(int32(st.Levels))
		w.WriteUint64(uint64(st.Samples))
		w.WriteUint64(uint64(st.Skipped))
		w.WriteUint64(st.Overflow)
		w.WriteUint64(uint64(st.Degenerate))
	}

	w.WriteUint64(uint64(len(cp.Slots)))
	for _, s := range cp.Slots {
		w.WriteFloat32(s.Hash)
		w.WriteFloat32(s.Weight)
	}
	return w.Bytes()
}

// decoder reads fields in sequence and keeps the first error.
type decoder struct {
	r   *xdr.Reader
	err error
}

func (d *decoder) u8() byte {
	if d.err != nil {
		return 0
	}
	var b byte
	b, d.err = d.r.ReadByte()
	return b
}

func (d *decoder) i32() int {
	if d.err != nil {
		return 0
	}
	var v int32
	v, d.err = d.r.ReadInt32()
	return int(v)
}

func (d *decoder) u32() uint32 {
	if d.err != nil {
		return 0
	}
	var v uint32
	v, d.err = d.r.ReadUint32()
	return v
}

func (d *decoder) u64() uint64 {
	if d.err != nil {
		return 0
	}
	var v uint64
	v, d.err = d.r.ReadUint64()
	return v
}

func (d *decoder) f32() float32 {
	if d.err != nil {
		return 0
	}
	var v float32
	v, d.err = d.r.ReadFloat32()
	return v
}

func (d *decoder) str() string {
	if d.err != nil {
		return ""
	}
	var s string
	s, d.err = d.r.ReadString()
	return s
}

// count reads a length prefix and checks that n items of size bytes fit in
// the remaining input.
func (d *decoder) count(n uint64, size int) int {
	if d.err == nil && n > uint64(d.r.Len()/size) {
		d.err = fmt.Errorf("%w: %d items do not fit in %d bytes", ErrCorruptSnapshot, n, d.r.Len())
	}
	if d.err != nil {
		return 0
	}
	return int(n)
}

func unmarshal(raw []byte) (*matte.Checkpoint, error) {
	d := &decoder{r: xdr.NewReader(raw)}
	cp := &matte.Checkpoint{}

	cp.Config.Levels = d.i32()
	cp.Config.Accurate = d.u8() != 0
	cp.Config.Layers = matte.LayerSet(d.u8())
	cp.Config.Workers = d.i32()
	cp.Config.Prefix = d.str()
	if n := d.count(uint64(d.u32()), 5); n > 0 {
		cp.Config.LayerLevels = make(map[matte.Layer]int, n)
		for range n {
			l := matte.Layer(d.u8())
			cp.Config.LayerLevels[l] = d.i32()
		}
	}

	cp.Width = d.i32()
	cp.Height = d.i32()

	n := d.count(uint64(d.u32()), 37)
	cp.Stats = make([]matte.LayerStats, n)
	for i := range cp.Stats {
		cp.Stats[i] = matte.LayerStats{
			Layer:      matte.Layer(d.u8()),
			Levels:     d.i32(),
			Samples:    int(d.u64()),
			Skipped:    int(d.u64()),
			Overflow:   d.u64(),
			Degenerate: int(d.u64()),
		}
	}

	n = d.count(d.u64(), slotSize)
	cp.Slots = make([]matte.Slot, n)
	for i := range cp.Slots {
		cp.Slots[i] = matte.Slot{Hash: d.f32(), Weight: d.f32()}
	}

	if d.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, d.err)
	}
	if d.r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptSnapshot, d.r.Len())
	}
	return cp, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
