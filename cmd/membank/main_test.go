package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/membank/blobstore"
	"github.com/hupe1980/membank/config"
	"github.com/hupe1980/membank/internal/npy"
	"github.com/hupe1980/membank/neighbors"
	"github.com/hupe1980/membank/pretrained"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeDataset stores two well separated 2-D clusters of three points.
func writeDataset(t *testing.T, dir string) {
	t.Helper()

	features := []float32{
		1, 0, 1, 0.1, 1, -0.1,
		0, 1, 0.1, 1, -0.1, 1,
	}
	labels := []int64{0, 0, 0, 1, 1, 1}

	f, err := os.Create(filepath.Join(dir, "features.npy"))
	require.NoError(t, err)
	require.NoError(t, npy.WriteFloat32(f, []int{6, 2}, features))
	require.NoError(t, f.Close())

	f, err = os.Create(filepath.Join(dir, "labels.npy"))
	require.NoError(t, err)
	require.NoError(t, npy.WriteInt64(f, []int{6}, labels))
	require.NoError(t, f.Close())
}

func writeConfig(t *testing.T, dir, compression string) string {
	t.Helper()

	src := fmt.Sprintf(`
feature_dim: 2
num_classes: 2
topk_train: 2
topk_val: 1
compression: %s
paths:
  train_features: %[2]s/features.npy
  train_labels: %[2]s/labels.npy
  val_features: %[2]s/features.npy
  val_labels: %[2]s/labels.npy
  topk_neighbors_train: out/train.npy
  topk_neighbors_val: out/val.npy
compute:
  batch_size: 4
  fill_workers: 2
store:
  kind: local
  root: %[2]s
log:
  level: error
`, compression, dir)
	path := filepath.Join(dir, "run.yml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func createNPZ(t *testing.T, path string, state map[string][]byte) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for k, raw := range state {
		w, err := zw.Create(k + ".npy")
		require.NoError(t, err)
		_, err = w.Write(raw)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMine(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir)
	cfgPath := writeConfig(t, dir, "none")

	out, err := run(t, "mine", "--config", cfgPath, "--publish")
	require.NoError(t, err)
	assert.Contains(t, out, "Accuracy of top-2 nearest neighbors on train set is 100.00")
	assert.Contains(t, out, "Accuracy of top-1 nearest neighbors on val set is 100.00")

	store := blobstore.NewLocalStore(dir)
	m, err := neighbors.Load(context.Background(), store, "out/train.npy", neighbors.WithSelfColumn())
	require.NoError(t, err)
	assert.Equal(t, 6, m.Rows)
	assert.Equal(t, 3, m.K, "self is stored as column 0")
	for i := range m.Rows {
		assert.Equal(t, int64(i), m.Row(i)[0])
		require.Len(t, m.Neighbors(i), 2)
		for _, j := range m.Neighbors(i) {
			assert.Equal(t, i/3, int(j)/3, "row %d neighbor %d crosses clusters", i, j)
		}
	}

	cur, err := neighbors.Current(context.Background(), store, "out")
	require.NoError(t, err)
	assert.Equal(t, "out/val.npy", cur)
}

func TestMine_Compressed(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir)
	cfgPath := writeConfig(t, dir, "zstd")

	_, err := run(t, "mine", "--config", cfgPath, "--split", "train", "--shuffle", "--seed", "7")
	require.NoError(t, err)

	m, err := neighbors.Load(context.Background(), blobstore.NewLocalStore(dir), "out/train.npy.zst")
	require.NoError(t, err)
	assert.Equal(t, 6, m.Rows)

	_, err = os.Stat(filepath.Join(dir, "out", "val.npy"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMine_UnknownSplit(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir)
	cfgPath := writeConfig(t, dir, "none")

	_, err := run(t, "mine", "--config", cfgPath, "--split", "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown split")
}

func TestEval(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir)
	cfgPath := writeConfig(t, dir, "lz4")

	_, err := run(t, "eval", "--config", cfgPath, "--split", "train")
	require.ErrorIs(t, err, blobstore.ErrNotFound, "nothing mined yet")

	_, err = run(t, "mine", "--config", cfgPath)
	require.NoError(t, err)

	out, err := run(t, "eval", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Accuracy of stored top-2 nearest neighbors on train set is 100.00")
	assert.Contains(t, out, "Accuracy of stored top-1 nearest neighbors on val set is 100.00")
}

func TestTranslate(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "moco.npz")
	dst := filepath.Join(dir, "pretext.npz")

	var tensor bytes.Buffer
	require.NoError(t, npy.WriteFloat32(&tensor, []int{2}, []float32{0.5, -0.5}))
	createNPZ(t, src, map[string][]byte{
		"module.encoder_q.conv1.weight":  tensor.Bytes(),
		"module.encoder_q.layer1.0.bias": tensor.Bytes(),
		"module.encoder_q.fc.0.weight":   tensor.Bytes(),
	})

	out, err := run(t, "translate", src, dst)
	require.NoError(t, err)
	assert.Contains(t, out, "Translated 3 tensors")

	got, err := readNPZ(dst)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, tensor.Bytes(), got["module.backbone.conv1.weight"])
	assert.Contains(t, got, "module.backbone.layer1.0.bias")
	assert.Contains(t, got, "module.contrastive_head.0.weight")
}

func TestTranslate_UnexpectedKey(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "moco.npz")
	dst := filepath.Join(dir, "pretext.npz")

	var tensor bytes.Buffer
	require.NoError(t, npy.WriteFloat32(&tensor, []int{1}, []float32{1}))
	createNPZ(t, src, map[string][]byte{"module.queue": tensor.Bytes()})

	_, err := run(t, "translate", src, dst)
	require.ErrorIs(t, err, pretrained.ErrUnexpectedKey)

	_, err = os.Stat(dst)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPredict(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir)
	cfgPath := writeConfig(t, dir, "lz4")

	out, err := run(t, "predict", "--config", cfgPath, "--k", "3", "--output", "out/pred.npy")
	require.NoError(t, err)
	assert.Contains(t, out, "kNN top-1 accuracy (k=3) is 100.00")
	assert.NotContains(t, out, "top-5", "top-5 is skipped with two classes")

	m, err := neighbors.Load(context.Background(), blobstore.NewLocalStore(dir), "out/pred.npy.lz4")
	require.NoError(t, err)
	assert.Equal(t, 6, m.Rows)
	assert.Equal(t, 3, m.K)
	require.NotNil(t, m.Scores)
}

func TestPredict_KTooLarge(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir)
	cfgPath := writeConfig(t, dir, "none")

	_, err := run(t, "predict", "--config", cfgPath, "--k", "7")
	require.Error(t, err)
}

func TestReadFeatures_DimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir)

	_, err := readFeatures(filepath.Join(dir, "features.npy"), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feature dimension 2")

	_, err = readLabels(filepath.Join(dir, "labels.npy"), 5)
	require.Error(t, err)

	labels, err := readLabels("", 6)
	require.NoError(t, err)
	assert.Nil(t, labels)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	s, err := openStore(ctx, config.Store{Kind: config.StoreMemory})
	require.NoError(t, err)
	assert.IsType(t, &blobstore.MemoryStore{}, s)

	s, err = openStore(ctx, config.Store{Kind: config.StoreLocal, Root: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &blobstore.LocalStore{}, s)

	_, err = openStore(ctx, config.Store{Kind: "ftp"})
	require.Error(t, err)
}

func TestComputeContext(t *testing.T) {
	cc := computeContext(config.Compute{Workers: 3, ChunkSize: 16})
	assert.Equal(t, 3, cc.Workers)
	assert.Equal(t, 16, cc.ChunkSize)
	assert.Nil(t, cc.Resources)

	cc = computeContext(config.Compute{MemoryLimitBytes: 1 << 20})
	require.NotNil(t, cc.Resources)
	assert.Equal(t, int64(1<<20), cc.Resources.Config().MemoryLimitBytes)
	assert.Positive(t, cc.Resources.Config().MaxWorkers)
}

func TestArtifactName(t *testing.T) {
	assert.Equal(t, "a.npy", artifactName("a.npy", neighbors.CompressionNone))
	assert.Equal(t, "a.npy.zst", artifactName("a.npy", neighbors.CompressionZSTD))
	assert.Equal(t, "a.npy.lz4", artifactName("a.npy.lz4", neighbors.CompressionLZ4))
}

func TestLoadEnv(t *testing.T) {
	require.NoError(t, loadEnv(filepath.Join(t.TempDir(), "missing.env")))
	require.NoError(t, loadEnv(""))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("MEMBANK_TEST_ONLY_VAR=42\n"), 0o600))
	t.Setenv("MEMBANK_TEST_ONLY_VAR", "")
	require.NoError(t, os.Unsetenv("MEMBANK_TEST_ONLY_VAR"))
	require.NoError(t, loadEnv(path))
	assert.Equal(t, "42", os.Getenv("MEMBANK_TEST_ONLY_VAR"))
}
