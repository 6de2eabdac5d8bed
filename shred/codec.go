package shred

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the stream codec wrapped around each column file.
// A column reopened after eviction starts a new frame.
type Compression string

const (
	None Compression = "none"
	S2   Compression = "s2"
	Zstd Compression = "zstd"
	LZ4  Compression = "lz4"
)

func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(s)); c {
	case "":
		return None, nil
	case None, S2, Zstd, LZ4:
		return c, nil
	}
	return None, fmt.Errorf("unknown compression %q", s)
}

// Suffix is appended to column file names.
func (c Compression) Suffix() string {
	switch c {
	case S2:
		return ".s2"
	case Zstd:
		return ".zst"
	case LZ4:
		return ".lz4"
	}
	return ""
}

func (c Compression) NewWriter(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case S2:
		return s2.NewWriter(w), nil
	case Zstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		return enc, nil
	case LZ4:
		return lz4.NewWriter(w), nil
	}
	return nopWriteCloser{w}, nil
}

func (c Compression) NewReader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case S2:
		return io.NopCloser(s2.NewReader(r)), nil
	case Zstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	}
	return io.NopCloser(r), nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}
