// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Embedscope Contributors

package main

import (
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	esErr "github.com/embedscope/embedscope/pkg/errors"
	"github.com/embedscope/embedscope/pkg/types"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend status",
		Long:  "Check the annotation backend's health endpoint and display which dataset parts are loaded.",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := newAPIClient(cfg)
	out := cmd.OutOrStdout()

	h, err := client.Health(cmd.Context())
	if err != nil {
		if esErr.IsNotRunning(err) {
			_, _ = fmt.Fprintf(out, "Backend at %s is not running (connection refused)\n", client.BaseURL())
			return nil
		}
		_, _ = fmt.Fprintf(out, "Backend at %s: %s\n", client.BaseURL(), err)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Backend at %s: %s\n", client.BaseURL(), h.Status)
	_, _ = fmt.Fprintf(out, "  %-20s %t\n", "embeddings loaded:", h.EmbeddingsLoaded)
	_, _ = fmt.Fprintf(out, "  %-20s %t\n", "annotations loaded:", h.AnnotationsLoaded)
	_, err = fmt.Fprintf(out, "  %-20s %t\n", "mapping loaded:", h.MappingLoaded)
	return err
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dataset statistics",
		Long:  "Print point counts per class and annotation counts per category.",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := newAPIClient(cfg)

	var (
		emb *types.EmbeddingStats
		ann *types.AnnotationStats
	)
	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() (err error) {
		emb, err = client.EmbeddingStats(ctx)
		return err
	})
	g.Go(func() (err error) {
		ann, err = client.AnnotationStats(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Embeddings: %d points\n", emb.TotalPoints)
	if err := writeCounts(cmd, "CLASS", emb.ClassCounts); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "\nAnnotations: %d in %d categories across %d images\n",
		ann.TotalAnnotations, ann.TotalCategories, ann.TotalImages)
	return writeCounts(cmd, "CATEGORY", ann.CategoryCounts)
}

// writeCounts prints counts sorted by name.
func writeCounts(cmd *cobra.Command, header string, counts map[string]int) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "%s\tCOUNT\n", header)
	for _, name := range slices.Sorted(maps.Keys(counts)) {
		_, _ = fmt.Fprintf(tw, "%s\t%d\n", name, counts[name])
	}
	return tw.Flush()
}
