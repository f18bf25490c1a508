// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Embedscope Contributors

package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	esErr "github.com/embedscope/embedscope/pkg/errors"
	"github.com/embedscope/embedscope/pkg/types"
	"github.com/spf13/cobra"
)

func newSelectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Select the annotations inside a region",
		Long:  "Resolve a rectangle in embedding space to annotation ids and print them with their crop URLs.",
		Args:  cobra.NoArgs,
		RunE:  runSelect,
	}

	addRegionFlags(cmd)
	for _, name := range regionFlags {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func runSelect(cmd *cobra.Command, _ []string) error {
	rect, err := rectFromFlags(cmd)
	if err != nil {
		return err
	}

	s, _, err := newSession()
	if err != nil {
		return err
	}
	if err := s.UpdateSelection(cmd.Context(), rect); err != nil {
		return err
	}

	items := s.GalleryItems()
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tIMAGE")
	for _, it := range items {
		_, _ = fmt.Fprintf(tw, "%d\t%s\n", it.AnnotationID, it.ImageURL)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d annotations selected\n", len(items))
	return err
}

var regionFlags = []string{"x-min", "x-max", "y-min", "y-max"}

func addRegionFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("x-min", 0, "left edge (inclusive)")
	cmd.Flags().Float64("x-max", 0, "right edge (inclusive)")
	cmd.Flags().Float64("y-min", 0, "bottom edge (inclusive)")
	cmd.Flags().Float64("y-max", 0, "top edge (inclusive)")
}

// regionFlagsSet reports whether any region flag was given.
func regionFlagsSet(cmd *cobra.Command) bool {
	for _, name := range regionFlags {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

func rectFromFlags(cmd *cobra.Command) (types.Rect, error) {
	var r types.Rect
	for _, name := range regionFlags {
		if !cmd.Flags().Changed(name) {
			return r, esErr.Errorf(esErr.CodeCLIInputInvalid, "--%s is required when a region is given", name)
		}
	}
	r.XMin, _ = cmd.Flags().GetFloat64("x-min")
	r.XMax, _ = cmd.Flags().GetFloat64("x-max")
	r.YMin, _ = cmd.Flags().GetFloat64("y-min")
	r.YMax, _ = cmd.Flags().GetFloat64("y-max")
	if r.XMin > r.XMax || r.YMin > r.YMax {
		return r, esErr.New(esErr.CodeCLIInputInvalid, "region is empty: min must not exceed max",
			esErr.FieldValue("rect", r))
	}
	return r, nil
}

// parseIDs converts command arguments to annotation ids, dropping repeats.
func parseIDs(args []string) ([]types.AnnotationID, error) {
	ids := make([]types.AnnotationID, 0, len(args))
	seen := make(map[types.AnnotationID]bool, len(args))
	for _, a := range args {
		n, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, esErr.Errorf(esErr.CodeCLIInputInvalid, "invalid annotation id %q: %w", a, err)
		}
		id := types.AnnotationID(n)
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}
