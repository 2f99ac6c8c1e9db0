package exr

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
)

// ZIP compression errors
var (
	ErrZIPCorrupted = errors.New("exr: corrupted ZIP data")
	ErrZIPOverflow  = errors.New("exr: ZIP decompressed size overflow")
)

// Pool for zlib writers to reduce allocations.
// Each pooled item contains both the writer and its destination buffer.
type zlibWriterPoolItem struct {
	writer *zlib.Writer
	buf    *bytes.Buffer
}

var zlibWriterPool = sync.Pool{
	New: func() any {
		buf := new(bytes.Buffer)
		w, _ := zlib.NewWriterLevel(buf, zlib.DefaultCompression)
		return &zlibWriterPoolItem{writer: w, buf: buf}
	},
}

// zipCompress applies the OpenEXR ZIP encoding to one chunk:
//  1. split bytes into even and odd halves
//  2. replace each byte by its difference to the previous one, biased by 128
//  3. deflate with a zlib wrapper
//
// raw is left untouched.
func zipCompress(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	tmp := make([]byte, len(raw))
	reorder(tmp, raw)
	predict(tmp)

	item := zlibWriterPool.Get().(*zlibWriterPoolItem)
	defer zlibWriterPool.Put(item)
	item.buf.Reset()
	item.writer.Reset(item.buf)

	if _, err := item.writer.Write(tmp); err != nil {
		item.writer.Close()
		return nil, err
	}
	if err := item.writer.Close(); err != nil {
		return nil, err
	}

	out := make([]byte, item.buf.Len())
	copy(out, item.buf.Bytes())
	return out, nil
}

// zipDecompress reverses zipCompress into a buffer of exactly expectedSize
// bytes.
func zipDecompress(src []byte, expectedSize int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, ErrZIPCorrupted
	}
	defer r.Close()

	tmp := make([]byte, expectedSize)
	if _, err := io.ReadFull(r, tmp); err != nil {
		return nil, ErrZIPCorrupted
	}
	// Trailing data means the chunk does not match the header.
	var probe [1]byte
	if n, _ := r.Read(probe[:]); n != 0 {
		return nil, ErrZIPOverflow
	}

	unpredict(tmp)
	out := make([]byte, expectedSize)
	unreorder(out, tmp)
	return out, nil
}

func reorder(dst, src []byte) {
	half := (len(src) + 1) / 2
	for i, b := range src {
		if i&1 == 0 {
			dst[i/2] = b
		} else {
			dst[half+i/2] = b
		}
	}
}

func unreorder(dst, src []byte) {
	half := (len(src) + 1) / 2
	for i := range dst {
		if i&1 == 0 {
			dst[i] = src[i/2]
		} else {
			dst[i] = src[half+i/2]
		}
	}
}

// predict works backwards so each difference uses the original neighbour.
func predict(data []byte) {
	for i := len(data) - 1; i >= 1; i-- {
		data[i] = data[i] - data[i-1] + 128
	}
}

func unpredict(data []byte) {
	for i := 1; i < len(data); i++ {
		data[i] = data[i-1] + data[i] - 128
	}
}
