package neighbors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/hupe1980/membank/blobstore"
	"github.com/hupe1980/membank/internal/npy"
	"github.com/hupe1980/membank/resource"
)

// ErrFormat is returned when an artifact is not a valid neighbor matrix.
var ErrFormat = npy.ErrFormat

// CurrentName is the pointer blob Publish maintains next to an artifact.
const CurrentName = "CURRENT"

type saveOptions struct {
	compression *Compression
	resources   *resource.Controller
}

// SaveOption configures Save and Publish.
type SaveOption func(*saveOptions)

// WithCompression forces a codec instead of inferring it from the name.
func WithCompression(c Compression) SaveOption {
	return func(o *saveOptions) {
		o.compression = &c
	}
}

// WithResources throttles artifact writes through rc's IO limiter.
func WithResources(rc *resource.Controller) SaveOption {
	return func(o *saveOptions) {
		o.resources = rc
	}
}

type loadOptions struct {
	selfIncluded bool
}

// LoadOption configures Load and LoadCurrent.
type LoadOption func(*loadOptions)

// WithSelfColumn marks the loaded matrix as SelfIncluded. The .npy layout
// has no room for the flag, so readers of self-included artifacts say so.
func WithSelfColumn() LoadOption {
	return func(o *loadOptions) {
		o.selfIncluded = true
	}
}

// Encode writes the indices of m as an N×K int64 .npy array.
func Encode(w io.Writer, m *Matrix) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return npy.WriteInt64(w, m.Shape(), m.Indices)
}

// EncodeScores writes the scores of m as an N×K float32 .npy array.
func EncodeScores(w io.Writer, m *Matrix) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Scores == nil {
		return errors.New("neighbors: matrix has no scores")
	}
	return npy.WriteFloat32(w, m.Shape(), m.Scores)
}

// Decode reads an N×K integer .npy array into a Matrix.
func Decode(r io.Reader) (*Matrix, error) {
	h, data, err := npy.ReadInt64(r)
	if err != nil {
		return nil, err
	}
	if len(h.Shape) != 2 {
		return nil, fmt.Errorf("%w: expected 2-D array, got shape %v", ErrFormat, h.Shape)
	}
	return &Matrix{Rows: h.Shape[0], K: h.Shape[1], Indices: data}, nil
}

// ScoresName returns the sibling blob name Save uses for scores.
//
//	ScoresName("topk-train-neighbors.npy.zst") == "topk-train-neighbors-scores.npy.zst"
func ScoresName(name string) string {
	c := CompressionFromName(name)
	base := strings.TrimSuffix(name, c.Suffix())
	base = strings.TrimSuffix(base, ".npy")
	return base + "-scores.npy" + c.Suffix()
}

// Save writes m to store under name. The codec is taken from the name's
// suffix unless WithCompression is given. When m carries scores they are
// written to ScoresName(name) as well.
func Save(ctx context.Context, store blobstore.Store, name string, m *Matrix, opts ...SaveOption) error {
	o := saveOptions{}
	for _, fn := range opts {
		fn(&o)
	}
	c := CompressionFromName(name)
	if o.compression != nil {
		c = *o.compression
	}

	if err := writeArtifact(ctx, store, name, c, o.resources, func(w io.Writer) error {
		return Encode(w, m)
	}); err != nil {
		return err
	}
	if m.Scores == nil {
		return nil
	}
	return writeArtifact(ctx, store, ScoresName(name), c, o.resources, func(w io.Writer) error {
		return EncodeScores(w, m)
	})
}

func writeArtifact(ctx context.Context, store blobstore.Store, name string, c Compression, rc *resource.Controller, encode func(io.Writer) error) error {
	blob, err := store.Create(ctx, name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}

	var sink io.Writer = blob
	if rc != nil {
		sink = resource.NewRateLimitedWriter(ctx, blob, rc)
	}

	fail := func(err error) error {
		_ = blobstore.Abort(blob)
		return err
	}

	cw, err := compressWriter(sink, c)
	if err != nil {
		return fail(err)
	}
	if err := encode(cw); err != nil {
		_ = cw.Close()
		return fail(fmt.Errorf("encode %s: %w", name, err))
	}
	if err := cw.Close(); err != nil {
		return fail(fmt.Errorf("compress %s: %w", name, err))
	}
	if err := blob.Sync(); err != nil {
		return fail(fmt.Errorf("sync %s: %w", name, err))
	}
	if err := blob.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	return nil
}

// Load reads the matrix stored under name. Scores are attached when the
// ScoresName sibling exists.
func Load(ctx context.Context, store blobstore.Store, name string, opts ...LoadOption) (*Matrix, error) {
	o := loadOptions{}
	for _, fn := range opts {
		fn(&o)
	}
	c := CompressionFromName(name)

	var m *Matrix
	if err := readArtifact(ctx, store, name, c, func(r io.Reader) error {
		var err error
		m, err = Decode(r)
		return err
	}); err != nil {
		return nil, err
	}
	if o.selfIncluded {
		if m.K == 0 {
			return nil, fmt.Errorf("%w: %s has no self column", ErrShape, name)
		}
		m.SelfIncluded = true
	}

	err := readArtifact(ctx, store, ScoresName(name), c, func(r io.Reader) error {
		h, scores, err := npy.ReadFloat32(r)
		if err != nil {
			return err
		}
		if h.Len() != len(m.Indices) {
			return fmt.Errorf("%w: %d scores for %d indices", ErrShape, h.Len(), len(m.Indices))
		}
		m.Scores = scores
		return nil
	})
	if err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		return nil, err
	}
	return m, nil
}

func readArtifact(ctx context.Context, store blobstore.Store, name string, c Compression, decode func(io.Reader) error) error {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer func() { _ = blob.Close() }()

	rc, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	defer func() { _ = rc.Close() }()

	dr, err := decompressReader(rc, c)
	if err != nil {
		return err
	}
	defer func() { _ = dr.Close() }()

	if err := decode(dr); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// CurrentPath returns the pointer name for artifacts stored in dir.
func CurrentPath(dir string) string {
	if dir == "" || dir == "." {
		return CurrentName
	}
	return path.Join(dir, CurrentName)
}

// Publish saves m and then moves the CURRENT pointer of name's directory
// to it. A reader never observes a pointer to an incomplete artifact.
func Publish(ctx context.Context, store blobstore.Store, name string, m *Matrix, opts ...SaveOption) error {
	if err := Save(ctx, store, name, m, opts...); err != nil {
		return err
	}
	if err := store.Put(ctx, CurrentPath(path.Dir(name)), []byte(name)); err != nil {
		return fmt.Errorf("publish %s: %w", name, err)
	}
	return nil
}

// Current returns the artifact name the CURRENT pointer in dir refers to.
func Current(ctx context.Context, store blobstore.Store, dir string) (string, error) {
	b, err := blobstore.ReadAll(ctx, store, CurrentPath(dir))
	if err != nil {
		return "", err
	}
	name := string(bytes.TrimSpace(b))
	if name == "" {
		return "", fmt.Errorf("%w: empty %s pointer", ErrFormat, CurrentName)
	}
	return name, nil
}

// LoadCurrent loads the artifact published last in dir.
func LoadCurrent(ctx context.Context, store blobstore.Store, dir string, opts ...LoadOption) (*Matrix, error) {
	name, err := Current(ctx, store, dir)
	if err != nil {
		return nil, err
	}
	return Load(ctx, store, name, opts...)
}
