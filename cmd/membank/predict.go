package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/membank"
	"github.com/hupe1980/membank/neighbors"
	"github.com/spf13/cobra"
)

type predictFlags struct {
	k      int
	output string
}

func newPredictCmd(root *rootFlags) *cobra.Command {
	var flags predictFlags

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Fill a bank with the train split and classify the val split by weighted kNN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, stop, err := setup(ctx, root)
			if err != nil {
				return err
			}
			defer stop()
			return a.predict(ctx, cmd.OutOrStdout(), flags)
		},
	}

	f := cmd.Flags()
	f.IntVar(&flags.k, "k", 20, "neighbors consulted per query")
	f.StringVarP(&flags.output, "output", "o", "", "also save the query neighbors to this artifact")
	return cmd
}

func (a *app) predict(ctx context.Context, out io.Writer, flags predictFlags) error {
	p := a.cfg.Paths
	if p.TrainFeatures == "" || p.TrainLabels == "" || p.ValFeatures == "" {
		return errors.New("predict needs train features, train labels and val features")
	}

	features, err := readFeatures(p.TrainFeatures, a.cfg.FeatureDim)
	if err != nil {
		return err
	}
	labels, err := readLabels(p.TrainLabels, len(features))
	if err != nil {
		return err
	}
	queries, err := readFeatures(p.ValFeatures, a.cfg.FeatureDim)
	if err != nil {
		return err
	}
	targets, err := readLabels(p.ValLabels, len(queries))
	if err != nil {
		return err
	}

	bank, err := membank.New(len(features), a.cfg.FeatureDim, a.cfg.NumClasses, a.cfg.Temperature, a.bankOptions()...)
	if err != nil {
		return err
	}
	src := membank.NewSliceSource(features, labels, a.cfg.Compute.BatchSize)
	if err := membank.Fill(ctx, src, membank.IdentityEncoder(), bank,
		membank.WithFillWorkers(a.cfg.Compute.FillWorkers),
	); err != nil {
		return err
	}

	pred, err := bank.KNNPredict(ctx, queries, flags.k, membank.WithClassVotes())
	if err != nil {
		return err
	}

	if targets != nil {
		for _, top := range []int{1, 5} {
			if top > a.cfg.NumClasses {
				continue
			}
			acc, err := pred.ClassAccuracy(targets, top)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "kNN top-%d accuracy (k=%d) is %.2f\n", top, flags.k, 100*acc)
		}
	}

	if flags.output == "" {
		return nil
	}
	store, err := openStore(ctx, a.cfg.Store)
	if err != nil {
		return err
	}
	name := artifactName(flags.output, a.cfg.CompressionCodec())
	err = neighbors.Save(ctx, store, name, pred.Neighbors, neighbors.WithResources(a.compute.Resources))
	a.logger.LogSave(ctx, name, pred.Neighbors.Rows, pred.Neighbors.K, err)
	return err
}
