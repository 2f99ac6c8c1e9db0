package xdr

import (
	"errors"
	"math"
	"testing"
)

func TestReaderIntegers(t *testing.T) {
	data := []byte{
		0x78, 0x56, 0x34, 0x12, // uint32: 0x12345678
		0xEF, 0xCD, 0xAB, 0x89, 0x67, 0x45, 0x23, 0x01, // uint64: 0x0123456789ABCDEF
		0xFD, 0xFF, 0xFF, 0xFF, // int32: -3
	}
	r := NewReader(data)

	u32, err := r.ReadUint32()
	if err != nil {
		t.Fatalf("ReadUint32() error = %v", err)
	}
	if u32 != 0x12345678 {
		t.Errorf("ReadUint32() = 0x%08X, want 0x12345678", u32)
	}

	u64, err := r.ReadUint64()
	if err != nil {
		t.Fatalf("ReadUint64() error = %v", err)
	}
	if u64 != 0x0123456789ABCDEF {
		t.Errorf("ReadUint64() = 0x%016X, want 0x0123456789ABCDEF", u64)
	}

	i32, err := r.ReadInt32()
	if err != nil {
		t.Fatalf("ReadInt32() error = %v", err)
	}
	if i32 != -3 {
		t.Errorf("ReadInt32() = %d, want -3", i32)
	}

	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestReaderShortBuffer(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})

	if _, err := r.ReadUint32(); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("ReadUint32() error = %v, want ErrShortBuffer", err)
	}
	if _, err := r.ReadUint64(); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("ReadUint64() error = %v, want ErrShortBuffer", err)
	}
	if _, err := r.ReadBytes(4); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("ReadBytes(4) error = %v, want ErrShortBuffer", err)
	}
	if _, err := r.ReadBytes(-1); !errors.Is(err, ErrNegativeSize) {
		t.Errorf("ReadBytes(-1) error = %v, want ErrNegativeSize", err)
	}
	if r.Pos() != 0 {
		t.Errorf("Pos() after failed reads = %d, want 0", r.Pos())
	}
}

func TestReadString(t *testing.T) {
	r := NewReader([]byte("channels\x00chlist\x00tail"))

	s, err := r.ReadString()
	if err != nil || s != "channels" {
		t.Fatalf("ReadString() = %q, %v; want \"channels\"", s, err)
	}
	s, err = r.ReadString()
	if err != nil || s != "chlist" {
		t.Fatalf("ReadString() = %q, %v; want \"chlist\"", s, err)
	}

	pos := r.Pos()
	if _, err := r.ReadString(); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("ReadString() on unterminated data error = %v, want ErrShortBuffer", err)
	}
	if r.Pos() != pos {
		t.Errorf("Pos() moved on failed ReadString: %d -> %d", pos, r.Pos())
	}
}

func TestBufferWriterRoundTrip(t *testing.T) {
	w := NewBufferWriter(16)
	w.WriteByte(7)
	w.WriteUint32(0xDEADBEEF)
	w.WriteInt32(-42)
	w.WriteUint64(1 << 40)
	w.WriteFloat32(float32(math.Pi))
	w.WriteString("dataWindow")
	w.WriteBytes([]byte{9, 9})

	r := NewReader(w.Bytes())
	if b, _ := r.ReadByte(); b != 7 {
		t.Errorf("ReadByte() = %d, want 7", b)
	}
	if v, _ := r.ReadUint32(); v != 0xDEADBEEF {
		t.Errorf("ReadUint32() = 0x%X, want 0xDEADBEEF", v)
	}
	if v, _ := r.ReadInt32(); v != -42 {
		t.Errorf("ReadInt32() = %d, want -42", v)
	}
	if v, _ := r.ReadUint64(); v != 1<<40 {
		t.Errorf("ReadUint64() = %d, want %d", v, uint64(1)<<40)
	}
	if v, _ := r.ReadFloat32(); v != float32(math.Pi) {
		t.Errorf("ReadFloat32() = %v, want %v", v, float32(math.Pi))
	}
	if s, _ := r.ReadString(); s != "dataWindow" {
		t.Errorf("ReadString() = %q, want \"dataWindow\"", s)
	}
	if b, _ := r.ReadBytes(2); len(b) != 2 || b[0] != 9 || b[1] != 9 {
		t.Errorf("ReadBytes(2) = %v, want [9 9]", b)
	}
}

func TestPutUint64At(t *testing.T) {
	w := NewBufferWriter(0)
	w.WriteUint64(0)
	w.WriteUint64(0)

	if err := w.PutUint64At(8, 12345); err != nil {
		t.Fatalf("PutUint64At() error = %v", err)
	}
	r := NewReader(w.Bytes())
	r.SetPos(8)
	if v, _ := r.ReadUint64(); v != 12345 {
		t.Errorf("patched value = %d, want 12345", v)
	}

	if err := w.PutUint64At(9, 1); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("PutUint64At(9) error = %v, want ErrShortBuffer", err)
	}
}
