package exr

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/mrjoshuak/go-cryptomatte/internal/xdr"
)

func testFrameBuffer(t testing.TB, width, height int) *FrameBuffer {
	t.Helper()
	fb := NewFrameBuffer(width, height)
	for c, name := range []string{"B", "A", "CryptoObject00.R"} {
		plane := make([]float32, width*height)
		for i := range plane {
			plane[i] = float32(i*(c+1)) * 0.25
		}
		if err := fb.Set(name, plane); err != nil {
			t.Fatalf("Set(%q) error = %v", name, err)
		}
	}
	return fb
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		comp      Compression
		lineOrder LineOrder
		width     int
		height    int
	}{
		{"none", CompressionNone, LineOrderIncreasing, 7, 5},
		{"zips", CompressionZIPS, LineOrderIncreasing, 16, 9},
		{"zip", CompressionZIP, LineOrderIncreasing, 33, 40},
		{"zip decreasing", CompressionZIP, LineOrderDecreasing, 8, 17},
		{"single pixel", CompressionZIP, LineOrderIncreasing, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewScanlineHeader(tt.width, tt.height)
			h.SetCompression(tt.comp)
			h.Set(&Attribute{Name: AttrLineOrder, Type: AttrTypeLineOrder, Value: tt.lineOrder})
			h.SetString("owner", "go-cryptomatte")
			fb := testFrameBuffer(t, tt.width, tt.height)

			var buf bytes.Buffer
			if err := Write(&buf, h, fb); err != nil {
				t.Fatalf("Write() error = %v", err)
			}

			got, gotFB, err := Decode(buf.Bytes())
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got.Compression() != tt.comp {
				t.Errorf("Compression() = %v, want %v", got.Compression(), tt.comp)
			}
			if got.Width() != tt.width || got.Height() != tt.height {
				t.Errorf("size = %dx%d, want %dx%d", got.Width(), got.Height(), tt.width, tt.height)
			}
			if s, ok := got.GetString("owner"); !ok || s != "go-cryptomatte" {
				t.Errorf("owner = %q, %v", s, ok)
			}
			for _, name := range fb.Names() {
				want, have := fb.Get(name), gotFB.Get(name)
				if len(have) != len(want) {
					t.Fatalf("channel %q has %d values, want %d", name, len(have), len(want))
				}
				for i := range want {
					if math.Float32bits(have[i]) != math.Float32bits(want[i]) {
						t.Fatalf("channel %q[%d] = %v, want %v", name, i, have[i], want[i])
					}
				}
			}
		})
	}
}

func TestChannelsSorted(t *testing.T) {
	cl := NewChannelList()
	for _, n := range []string{"G", "R", "A", "B", "G"} {
		cl.Add(Channel{Name: n, Type: PixelTypeFloat})
	}
	var names []string
	for _, ch := range cl.Channels() {
		names = append(names, ch.Name)
	}
	want := []string{"A", "B", "G", "R"}
	if len(names) != len(want) {
		t.Fatalf("channels = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("channels = %v, want %v", names, want)
			break
		}
	}
	if ch := cl.Get("R"); ch == nil || ch.XSampling != 1 {
		t.Errorf("Get(R) = %+v, want sampling 1", ch)
	}
}

func TestLongNamesFlag(t *testing.T) {
	h := NewScanlineHeader(2, 2)
	h.SetCompression(CompressionNone)
	fb := NewFrameBuffer(2, 2)
	fb.Set("ViewLayer.CryptoMaterial00.alpha.long", make([]float32, 4))

	var buf bytes.Buffer
	if err := Write(&buf, h, fb); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	flags := xdr.ByteOrder.Uint32(buf.Bytes()[4:])
	if flags&flagLongNames == 0 {
		t.Errorf("version flags = 0x%x, want long-names bit", flags)
	}
	if _, _, err := Decode(buf.Bytes()); err != nil {
		t.Errorf("Decode() error = %v", err)
	}
}

func TestZIPReorderPredictInverse(t *testing.T) {
	for _, n := range []int{1, 2, 3, 8, 255, 1024} {
		src := make([]byte, n)
		for i := range src {
			src[i] = byte(i*37 + 11)
		}
		tmp := make([]byte, n)
		reorder(tmp, src)
		predict(tmp)
		unpredict(tmp)
		out := make([]byte, n)
		unreorder(out, tmp)
		if !bytes.Equal(out, src) {
			t.Errorf("n=%d: inverse mismatch", n)
		}
	}
}

func TestZIPKnownLayout(t *testing.T) {
	// Even bytes first, then odd, then biased deltas.
	tmp := make([]byte, 4)
	reorder(tmp, []byte{10, 20, 11, 21})
	if !bytes.Equal(tmp, []byte{10, 11, 20, 21}) {
		t.Errorf("reorder = %v, want [10 11 20 21]", tmp)
	}
	predict(tmp)
	if !bytes.Equal(tmp, []byte{10, 129, 137, 129}) {
		t.Errorf("predict = %v, want [10 129 137 129]", tmp)
	}
}

func TestDecodeErrors(t *testing.T) {
	h := NewScanlineHeader(4, 4)
	var buf bytes.Buffer
	if err := Write(&buf, h, testFrameBuffer(t, 4, 4)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	good := buf.Bytes()

	bad := append([]byte(nil), good...)
	bad[0] ^= 0xFF
	if _, _, err := Decode(bad); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("bad magic error = %v, want ErrInvalidMagic", err)
	}

	bad = append([]byte(nil), good...)
	bad[5] |= byte(flagTiled >> 8)
	if _, _, err := Decode(bad); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("tiled error = %v, want ErrUnsupportedFormat", err)
	}

	for _, n := range []int{3, 20, len(good) / 2, len(good) - 1} {
		if _, _, err := Decode(good[:n]); err == nil {
			t.Errorf("Decode(truncated to %d) succeeded", n)
		}
	}
}

func TestWriteValidation(t *testing.T) {
	h := NewScanlineHeader(4, 4)
	if err := Write(&bytes.Buffer{}, h, NewFrameBuffer(3, 4)); !errors.Is(err, ErrInvalidSlice) {
		t.Errorf("size mismatch error = %v, want ErrInvalidSlice", err)
	}

	h.SetCompression(CompressionPIZ)
	if err := Write(&bytes.Buffer{}, h, NewFrameBuffer(4, 4)); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("PIZ error = %v, want ErrUnsupportedFormat", err)
	}

	h = NewScanlineHeader(4, 4)
	h.Set(&Attribute{Name: "bogus", Type: AttrTypeInt, Value: "not an int"})
	if err := Write(&bytes.Buffer{}, h, NewFrameBuffer(4, 4)); !errors.Is(err, ErrInvalidAttribute) {
		t.Errorf("mistyped attribute error = %v, want ErrInvalidAttribute", err)
	}

	fb := NewFrameBuffer(2, 2)
	if err := fb.Set("R", make([]float32, 3)); !errors.Is(err, ErrInvalidSlice) {
		t.Errorf("short plane error = %v, want ErrInvalidSlice", err)
	}
}

func TestUnknownAttributePreserved(t *testing.T) {
	h := NewScanlineHeader(1, 1)
	h.Set(&Attribute{Name: "custom", Type: "opaque", Value: []byte{1, 2, 3}})
	path := filepath.Join(t.TempDir(), "opaque.exr")
	if err := WriteFile(path, h, NewFrameBuffer(1, 1)); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, _, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	a := got.Get("custom")
	if a == nil || a.Type != "opaque" || !bytes.Equal(a.Value.([]byte), []byte{1, 2, 3}) {
		t.Errorf("custom attribute = %+v", a)
	}
}

// encodeHeaderOnly serializes a header without validating it and without
// any chunk data, the way a hostile or truncated file would start.
func encodeHeaderOnly(t testing.TB, h *Header) []byte {
	t.Helper()
	w := xdr.NewBufferWriter(512)
	w.WriteUint32(MagicNumber)
	w.WriteUint32(formatVersion)
	for _, a := range h.Attributes() {
		if err := WriteAttribute(w, a); err != nil {
			t.Fatalf("WriteAttribute(%q) error = %v", a.Name, err)
		}
	}
	w.WriteByte(0)
	return w.Bytes()
}

func TestDecodeMalformedDataWindow(t *testing.T) {
	tests := []struct {
		name   string
		window Box2i
	}{
		{"wrapping width", Box2i{Min: V2i{math.MinInt32, 0}, Max: V2i{0, 0}}},
		{"wrapping height", Box2i{Min: V2i{0, math.MinInt32}, Max: V2i{0, 0}}},
		{"full int32 range", Box2i{Min: V2i{math.MinInt32, math.MinInt32}, Max: V2i{math.MaxInt32, math.MaxInt32}}},
		{"inverted", Box2i{Min: V2i{5, 0}, Max: V2i{0, 0}}},
		{"too many pixels", Box2i{Max: V2i{1 << 15, 1 << 15}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewScanlineHeader(1, 1)
			h.Set(&Attribute{Name: AttrDataWindow, Type: AttrTypeBox2i, Value: tt.window})
			_, _, err := Decode(encodeHeaderOnly(t, h))
			if !errors.Is(err, ErrInvalidDataWindow) {
				t.Errorf("Decode() error = %v, want ErrInvalidDataWindow", err)
			}
		})
	}
}

func TestBoxSizeDoesNotWrap(t *testing.T) {
	b := Box2i{Min: V2i{math.MinInt32, 0}, Max: V2i{math.MaxInt32, 0}}
	if got := b.Width(); got != 1<<32 {
		t.Errorf("Width() = %d, want %d", got, int64(1)<<32)
	}
	if got := b.Height(); got != 1 {
		t.Errorf("Height() = %d, want 1", got)
	}
}
