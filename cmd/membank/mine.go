package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/hupe1980/membank"
	"github.com/hupe1980/membank/blobstore"
	"github.com/hupe1980/membank/neighbors"
	"github.com/spf13/cobra"
)

type mineFlags struct {
	split   string
	publish bool
	seed    uint64
	shuffle bool
}

// split is one dataset half mined by the mine command.
type split struct {
	name     string
	features string
	labels   string
	output   string
	k        int
}

func newMineCmd(root *rootFlags) *cobra.Command {
	var flags mineFlags

	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Fill a memory bank from features and mine the top-k neighbors",
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

			splits, err := a.splits(flags.split)
			if err != nil {
				return err
			}
			for _, s := range splits {
				acc, err := a.mineSplit(ctx, store, s, flags)
				if err != nil {
					return fmt.Errorf("%s: %w", s.name, err)
				}
				if !math.IsNaN(acc) {
					fmt.Fprintf(cmd.OutOrStdout(), "Accuracy of top-%d nearest neighbors on %s set is %.2f\n", s.k, s.name, 100*acc)
				}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.split, "split", "all", "split to mine: train, val or all")
	f.BoolVar(&flags.publish, "publish", false, "move the CURRENT pointer to each written artifact")
	f.BoolVar(&flags.shuffle, "shuffle", false, "visit samples in a shuffled order while filling")
	f.Uint64Var(&flags.seed, "seed", 1, "shuffle seed")
	return cmd
}

func (a *app) splits(which string) ([]split, error) {
	p := a.cfg.Paths
	train := split{"train", p.TrainFeatures, p.TrainLabels, p.TopKNeighborsTrain, a.cfg.TopKTrain}
	val := split{"val", p.ValFeatures, p.ValLabels, p.TopKNeighborsVal, a.cfg.TopKVal}

	var out []split
	switch which {
	case "train":
		out = []split{train}
	case "val":
		out = []split{val}
	case "all":
		out = []split{train, val}
	default:
		return nil, fmt.Errorf("unknown split %q", which)
	}

	var valid []split
	for _, s := range out {
		if s.features == "" {
			if which != "all" {
				return nil, fmt.Errorf("no feature file configured for %s", s.name)
			}
			continue
		}
		valid = append(valid, s)
	}
	if len(valid) == 0 {
		return nil, errors.New("no feature files configured")
	}
	return valid, nil
}

func (a *app) mineSplit(ctx context.Context, store blobstore.Store, s split, flags mineFlags) (float64, error) {
	features, err := readFeatures(s.features, a.cfg.FeatureDim)
	if err != nil {
		return math.NaN(), err
	}
	labels, err := readLabels(s.labels, len(features))
	if err != nil {
		return math.NaN(), err
	}

	bank, err := membank.New(len(features), a.cfg.FeatureDim, a.cfg.NumClasses, a.cfg.Temperature, a.bankOptions()...)
	if err != nil {
		return math.NaN(), err
	}

	src := membank.NewSliceSource(features, labels, a.cfg.Compute.BatchSize)
	if flags.shuffle {
		src.Shuffle(flags.seed)
	}
	if err := membank.Fill(ctx, src, membank.IdentityEncoder(), bank,
		membank.WithFillWorkers(a.cfg.Compute.FillWorkers),
	); err != nil {
		return math.NaN(), err
	}

	var opts []membank.MineOption
	if a.cfg.IncludeSelf {
		opts = append(opts, membank.WithSelfIncluded())
	}
	m, acc, err := bank.MineNearestNeighbors(ctx, s.k, labels != nil, opts...)
	if err != nil {
		return math.NaN(), err
	}

	name := artifactName(s.output, a.cfg.CompressionCodec())
	saveOpts := []neighbors.SaveOption{neighbors.WithResources(a.compute.Resources)}
	if flags.publish {
		err = neighbors.Publish(ctx, store, name, m, saveOpts...)
	} else {
		err = neighbors.Save(ctx, store, name, m, saveOpts...)
	}
	a.logger.LogSave(ctx, name, m.Rows, m.K, err)
	return acc, err
}

// artifactName appends the codec suffix unless name already carries it.
// Save infers the codec from the resulting name.
func artifactName(name string, c neighbors.Compression) string {
	if sfx := c.Suffix(); sfx != "" && !strings.HasSuffix(name, sfx) {
		return name + sfx
	}
	return name
}
