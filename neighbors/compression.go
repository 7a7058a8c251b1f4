package neighbors

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the stream codec of an artifact.
type Compression uint8

const (
	// CompressionNone stores the raw .npy bytes.
	CompressionNone Compression = iota
	// CompressionLZ4 wraps the .npy bytes in an LZ4 frame (fast, moderate ratio).
	CompressionLZ4
	// CompressionZSTD wraps the .npy bytes in a zstd stream (better ratio).
	CompressionZSTD
)

const (
	lz4Suffix  = ".lz4"
	zstdSuffix = ".zst"
)

// String returns the configuration name of c.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// Suffix returns the file suffix appended for c.
func (c Compression) Suffix() string {
	switch c {
	case CompressionLZ4:
		return lz4Suffix
	case CompressionZSTD:
		return zstdSuffix
	default:
		return ""
	}
}

// ParseCompression parses "none", "lz4" or "zstd" (case-insensitive).
// The empty string means none.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd", "zst":
		return CompressionZSTD, nil
	default:
		return CompressionNone, fmt.Errorf("neighbors: unknown compression %q", s)
	}
}

// CompressionFromName infers the codec from an artifact name's suffix.
func CompressionFromName(name string) Compression {
	switch {
	case strings.HasSuffix(name, lz4Suffix):
		return CompressionLZ4
	case strings.HasSuffix(name, zstdSuffix):
		return CompressionZSTD
	default:
		return CompressionNone
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// compressWriter wraps w. Closing the result flushes the codec but leaves w open.
func compressWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionLZ4:
		zw := lz4.NewWriter(w)
		if err := zw.Apply(lz4.CompressionLevelOption(lz4.Fast)); err != nil {
			return nil, err
		}
		return zw, nil
	case CompressionZSTD:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	default:
		return nil, fmt.Errorf("neighbors: unsupported compression %s", c)
	}
}

type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// decompressReader wraps r. Closing the result releases codec state only.
func decompressReader(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case CompressionZSTD:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{d}, nil
	default:
		return nil, fmt.Errorf("neighbors: unsupported compression %s", c)
	}
}
