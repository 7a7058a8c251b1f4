package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/hupe1980/membank/internal/npy"
	"github.com/hupe1980/membank/pretrained"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/cobra"
)

func newTranslateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translate <moco.npz> <pretext.npz>",
		Short: "Rename the query encoder tensors of a MoCo checkpoint for the pretext model",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := translateCheckpoint(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Translated %d tensors into %s\n", n, args[1])
			return nil
		},
	}
	return cmd
}

// translateCheckpoint reads every tensor of the npz archive at src,
// translates the keys and writes the renamed archive to dst. Tensor bytes
// are copied as stored.
func translateCheckpoint(ctx context.Context, src, dst string) (int, error) {
	state, err := readNPZ(src)
	if err != nil {
		return 0, err
	}

	var written int
	sink := pretrained.LoaderFunc[[]byte](func(_ context.Context, translated map[string][]byte) error {
		written = len(translated)
		return writeNPZ(dst, translated)
	})
	if err := pretrained.Transfer(ctx, state, sink); err != nil {
		return 0, err
	}
	return written, nil
}

func readNPZ(path string) (map[string][]byte, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = zr.Close() }()

	state := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		key, ok := strings.CutSuffix(f.Name, ".npy")
		if !ok {
			return nil, fmt.Errorf("%s: %w: entry %q is not an array", path, npy.ErrFormat, f.Name)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", path, f.Name, err)
		}
		raw, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", path, f.Name, err)
		}
		if _, err := npy.ReadHeader(bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("%s: %s: %w", path, f.Name, err)
		}
		state[key] = raw
	}
	return state, nil
}

func writeNPZ(path string, state map[string][]byte) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	zw := zip.NewWriter(f)
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		w, err := zw.Create(k + ".npy")
		if err != nil {
			return err
		}
		if _, err := w.Write(state[k]); err != nil {
			return err
		}
	}
	return zw.Close()
}
