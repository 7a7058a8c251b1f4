package main

import (
	"context"
	"fmt"
	"io"

	"github.com/hupe1980/membank/blobstore"
	"github.com/hupe1980/membank/neighbors"
	"github.com/spf13/cobra"
)

func newEvalCmd(root *rootFlags) *cobra.Command {
	var which string

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Score stored neighbor artifacts against the split labels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, stop, err := setup(ctx, root)
			if err != nil {
				return err
			}
			defer stop()

			store, err := openStore(ctx, a.cfg.Store)
			if err != nil {
				return err
			}
			splits, err := a.splits(which)
			if err != nil {
				return err
			}
			for _, s := range splits {
				if err := a.evalSplit(ctx, cmd.OutOrStdout(), store, s); err != nil {
					return fmt.Errorf("%s: %w", s.name, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&which, "split", "all", "split to score: train, val or all")
	return cmd
}

// evalSplit loads the artifact mine wrote for s and reports the fraction of
// neighbors sharing each row's label.
func (a *app) evalSplit(ctx context.Context, out io.Writer, store blobstore.Store, s split) error {
	if s.labels == "" {
		return fmt.Errorf("no label file configured for %s", s.name)
	}

	var opts []neighbors.LoadOption
	if a.cfg.IncludeSelf {
		opts = append(opts, neighbors.WithSelfColumn())
	}
	name := artifactName(s.output, a.cfg.CompressionCodec())
	m, err := neighbors.Load(ctx, store, name, opts...)
	if err != nil {
		return err
	}

	labels, err := readLabels(s.labels, m.Rows)
	if err != nil {
		return err
	}
	acc, err := m.Accuracy(labels)
	if err != nil {
		return err
	}

	k := m.K
	if m.SelfIncluded {
		k--
	}
	fmt.Fprintf(out, "Accuracy of stored top-%d nearest neighbors on %s set is %.2f\n", k, s.name, 100*acc)
	return nil
}
