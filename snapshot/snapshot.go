// Package snapshot persists matte checkpoints so an interrupted render can
// resume accumulating.
//
// File layout (little-endian):
//
//	magic       [4]byte  "CMSN"
//	version     uint32
//	rawSize     uint64   size of the decompressed payload
//	payloadSize uint64   size of the stored payload
//	checksum    uint64   xxHash64 of the stored payload
//	payload     zstd-compressed checkpoint
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/edsrzf/mmap-go"
	"github.com/klauspost/compress/zstd"

	"github.com/mrjoshuak/go-cryptomatte/internal/xdr"
	"github.com/mrjoshuak/go-cryptomatte/matte"
)

// Errors
var (
	ErrInvalidMagic    = errors.New("snapshot: invalid magic number")
	ErrInvalidVersion  = errors.New("snapshot: unsupported version")
	ErrTruncatedFile   = errors.New("snapshot: file is truncated")
	ErrChecksumFailed  = errors.New("snapshot: checksum verification failed")
	ErrCorruptSnapshot = errors.New("snapshot: payload is corrupted")
)

const (
	magic      = "CMSN"
	version    = 1
	headerSize = 4 + 4 + 8 + 8 + 8

	// maxRawSize bounds the decompressed payload (4 GiB).
	maxRawSize = 1 << 32
)

var (
	encoderOnce = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	decoderOnce = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(maxRawSize))
	})
)

// Encode serializes a checkpoint.
func Encode(cp *matte.Checkpoint) ([]byte, error) {
	enc, err := encoderOnce()
	if err != nil {
		return nil, fmt.Errorf("snapshot: zstd encoder: %w", err)
	}
	raw := marshal(cp)
	payload := enc.EncodeAll(raw, make([]byte, 0, len(raw)/4))

	w := xdr.NewBufferWriter(headerSize + len(payload))
	w.WriteBytes([]byte(magic))
	w.WriteUint32(version)
	w.WriteUint64(uint64(len(raw)))
	w.WriteUint64(uint64(len(payload)))
	w.WriteUint64(xxhash.Sum64(payload))
	w.WriteBytes(payload)
	return w.Bytes(), nil
}

// Decode parses a serialized checkpoint. data is not retained.
func Decode(data []byte) (*matte.Checkpoint, error) {
	if len(data) < headerSize {
		return nil, ErrTruncatedFile
	}
	r := xdr.NewReader(data)
	m, _ := r.ReadBytes(4)
	if string(m) != magic {
		return nil, ErrInvalidMagic
	}
	v, _ := r.ReadUint32()
	if v != version {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, v)
	}
	rawSize, _ := r.ReadUint64()
	payloadSize, _ := r.ReadUint64()
	checksum, _ := r.ReadUint64()
	if payloadSize != uint64(r.Len()) {
		return nil, fmt.Errorf("%w: payload is %d bytes, header says %d", ErrTruncatedFile, r.Len(), payloadSize)
	}
	if rawSize > maxRawSize {
		return nil, fmt.Errorf("%w: payload size %d", ErrCorruptSnapshot, rawSize)
	}
	payload, _ := r.ReadBytes(int(payloadSize))
	if xxhash.Sum64(payload) != checksum {
		return nil, ErrChecksumFailed
	}

	dec, err := decoderOnce()
	if err != nil {
		return nil, fmt.Errorf("snapshot: zstd decoder: %w", err)
	}
	raw, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if uint64(len(raw)) != rawSize {
		return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrCorruptSnapshot, len(raw), rawSize)
	}
	return unmarshal(raw)
}

// Save writes a checkpoint to w.
func Save(w io.Writer, cp *matte.Checkpoint) error {
	data, err := Encode(cp)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Load reads a checkpoint from r.
func Load(r io.Reader) (*matte.Checkpoint, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// SaveFile writes a checkpoint to path. The file is written under a
// temporary name and renamed, so a crash never leaves a partial snapshot.
func SaveFile(path string, cp *matte.Checkpoint) error {
	data, err := Encode(cp)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return errors.Join(err, tmp.Close(), os.Remove(tmp.Name()))
	}
	if err := tmp.Sync(); err != nil {
		return errors.Join(err, tmp.Close(), os.Remove(tmp.Name()))
	}
	if err := tmp.Close(); err != nil {
		return errors.Join(err, os.Remove(tmp.Name()))
	}
	return os.Rename(tmp.Name(), path)
}

// Open reads the checkpoint at path through a read-only memory map.
func Open(path string) (*matte.Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat snapshot file: %w", err)
	}
	if stat.Size() < headerSize {
		return nil, ErrTruncatedFile
	}

	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap snapshot file: %w", err)
	}
	cp, err := Decode([]byte(mm))
	if unmapErr := mm.Unmap(); err == nil && unmapErr != nil {
		return nil, fmt.Errorf("unmap snapshot file: %w", unmapErr)
	}
	return cp, err
}
