// Package npy reads and writes the NumPy .npy array format (versions 1.0
// and 2.0, little-endian, C order).
package npy

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var magic = []byte("\x93NUMPY")

// ErrFormat is returned for malformed or unsupported .npy input.
var ErrFormat = errors.New("npy: invalid format")

// DType is a supported element type.
type DType string

const (
	Int64   DType = "<i8"
	Int32   DType = "<i4"
	Float16 DType = "<f2"
	Float32 DType = "<f4"
	Float64 DType = "<f8"
)

func (d DType) size() int {
	switch d {
	case Int64, Float64:
		return 8
	case Int32, Float32:
		return 4
	case Float16:
		return 2
	default:
		return 0
	}
}

// Header describes an array.
type Header struct {
	DType DType
	Shape []int
}

// Len returns the number of elements described by the shape.
func (h Header) Len() int {
	n := 1
	for _, d := range h.Shape {
		n *= d
	}
	return n
}

// WriteHeader writes a version 1.0 header padded to a 64 byte boundary.
func WriteHeader(w io.Writer, h Header) error {
	dims := make([]string, len(h.Shape))
	for i, d := range h.Shape {
		dims[i] = strconv.Itoa(d)
	}
	shape := strings.Join(dims, ", ")
	if len(h.Shape) == 1 {
		shape += ","
	}
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", h.DType, shape)

	// magic(6) + version(2) + len(2) + dict + padding + '\n'
	total := 10 + len(dict) + 1
	pad := (64 - total%64) % 64
	dict += strings.Repeat(" ", pad) + "\n"
	if len(dict) > math.MaxUint16 {
		return fmt.Errorf("%w: header too large", ErrFormat)
	}

	var buf bytes.Buffer
	buf.Write(magic)
	buf.Write([]byte{1, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(dict)))
	buf.WriteString(dict)
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadHeader parses a .npy header.
func ReadHeader(r io.Reader) (Header, error) {
	pre := make([]byte, 8)
	if _, err := io.ReadFull(r, pre); err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	if !bytes.Equal(pre[:6], magic) {
		return Header{}, fmt.Errorf("%w: bad magic", ErrFormat)
	}

	var hlen int
	switch pre[6] {
	case 1:
		var l uint16
		if err := binary.Read(r, binary.LittleEndian, &l); err != nil {
			return Header{}, fmt.Errorf("%w: %w", ErrFormat, err)
		}
		hlen = int(l)
	case 2, 3:
		var l uint32
		if err := binary.Read(r, binary.LittleEndian, &l); err != nil {
			return Header{}, fmt.Errorf("%w: %w", ErrFormat, err)
		}
		hlen = int(l)
	default:
		return Header{}, fmt.Errorf("%w: unsupported version %d.%d", ErrFormat, pre[6], pre[7])
	}

	dict := make([]byte, hlen)
	if _, err := io.ReadFull(r, dict); err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return parseDict(string(dict))
}

func parseDict(s string) (Header, error) {
	var h Header

	descr, ok := field(s, "descr")
	if !ok {
		return h, fmt.Errorf("%w: missing descr", ErrFormat)
	}
	h.DType = DType(strings.Trim(descr, "'\" "))
	if h.DType.size() == 0 {
		return h, fmt.Errorf("%w: unsupported dtype %q", ErrFormat, h.DType)
	}

	if fo, ok := field(s, "fortran_order"); ok && strings.TrimSpace(fo) == "True" {
		return h, fmt.Errorf("%w: fortran order not supported", ErrFormat)
	}

	i := strings.Index(s, "'shape'")
	if i < 0 {
		return h, fmt.Errorf("%w: missing shape", ErrFormat)
	}
	open := strings.Index(s[i:], "(")
	end := strings.Index(s[i:], ")")
	if open < 0 || end < open {
		return h, fmt.Errorf("%w: malformed shape", ErrFormat)
	}
	for _, part := range strings.Split(s[i+open+1:i+end], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil || d < 0 {
			return h, fmt.Errorf("%w: bad dimension %q", ErrFormat, part)
		}
		h.Shape = append(h.Shape, d)
	}
	return h, nil
}

// field extracts the raw value following 'key': up to the next comma.
func field(s, key string) (string, bool) {
	i := strings.Index(s, "'"+key+"'")
	if i < 0 {
		return "", false
	}
	rest := s[i+len(key)+2:]
	colon := strings.Index(rest, ":")
	if colon < 0 {
		return "", false
	}
	rest = rest[colon+1:]
	end := strings.Index(rest, ",")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// WriteInt64 writes a C-order int64 array with the given shape.
func WriteInt64(w io.Writer, shape []int, data []int64) error {
	h := Header{DType: Int64, Shape: shape}
	if h.Len() != len(data) {
		return fmt.Errorf("%w: shape %v does not match %d elements", ErrFormat, shape, len(data))
	}
	bw := bufio.NewWriter(w)
	if err := WriteHeader(bw, h); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, data); err != nil {
		return err
	}
	return bw.Flush()
}

// WriteFloat32 writes a C-order float32 array with the given shape.
func WriteFloat32(w io.Writer, shape []int, data []float32) error {
	h := Header{DType: Float32, Shape: shape}
	if h.Len() != len(data) {
		return fmt.Errorf("%w: shape %v does not match %d elements", ErrFormat, shape, len(data))
	}
	bw := bufio.NewWriter(w)
	if err := WriteHeader(bw, h); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, data); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadInt64 reads an integer array (int32 or int64 on disk).
func ReadInt64(r io.Reader) (Header, []int64, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return h, nil, err
	}
	n := h.Len()
	br := bufio.NewReader(r)
	switch h.DType {
	case Int64:
		out := make([]int64, n)
		if err := binary.Read(br, binary.LittleEndian, out); err != nil {
			return h, nil, fmt.Errorf("%w: %w", ErrFormat, err)
		}
		return h, out, nil
	case Int32:
		tmp := make([]int32, n)
		if err := binary.Read(br, binary.LittleEndian, tmp); err != nil {
			return h, nil, fmt.Errorf("%w: %w", ErrFormat, err)
		}
		out := make([]int64, n)
		for i, v := range tmp {
			out[i] = int64(v)
		}
		return h, out, nil
	default:
		return h, nil, fmt.Errorf("%w: expected integer dtype, got %s", ErrFormat, h.DType)
	}
}

// ReadFloat32 reads a floating point array (float16, float32 or float64 on
// disk).
func ReadFloat32(r io.Reader) (Header, []float32, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return h, nil, err
	}
	n := h.Len()
	br := bufio.NewReader(r)
	switch h.DType {
	case Float32:
		out := make([]float32, n)
		if err := binary.Read(br, binary.LittleEndian, out); err != nil {
			return h, nil, fmt.Errorf("%w: %w", ErrFormat, err)
		}
		return h, out, nil
	case Float64:
		tmp := make([]float64, n)
		if err := binary.Read(br, binary.LittleEndian, tmp); err != nil {
			return h, nil, fmt.Errorf("%w: %w", ErrFormat, err)
		}
		out := make([]float32, n)
		for i, v := range tmp {
			out[i] = float32(v)
		}
		return h, out, nil
	case Float16:
		tmp := make([]uint16, n)
		if err := binary.Read(br, binary.LittleEndian, tmp); err != nil {
			return h, nil, fmt.Errorf("%w: %w", ErrFormat, err)
		}
		out := make([]float32, n)
		for i, v := range tmp {
			out[i] = halfToFloat32(v)
		}
		return h, out, nil
	default:
		return h, nil, fmt.Errorf("%w: expected float dtype, got %s", ErrFormat, h.DType)
	}
}
