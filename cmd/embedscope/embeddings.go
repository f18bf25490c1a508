// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Embedscope Contributors

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/embedscope/embedscope/pkg/types"
	"github.com/spf13/cobra"
)

func newClassesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classes",
		Short: "List annotation classes",
		Long:  "Fetch the class names known to the backend. The first entry is always \"all\".",
		Args:  cobra.NoArgs,
		RunE:  runClasses,
	}
}

func runClasses(cmd *cobra.Command, _ []string) error {
	s, _, err := newSession()
	if err != nil {
		return err
	}
	if err := s.LoadClasses(cmd.Context()); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, c := range s.Classes() {
		if _, err := fmt.Fprintln(out, c); err != nil {
			return err
		}
	}
	return nil
}

func newEmbeddingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embeddings",
		Short: "List embedding points",
		Long:  "Fetch the 2-D embedding points, optionally restricted to one class.",
		Args:  cobra.NoArgs,
		RunE:  runEmbeddings,
	}

	cmd.Flags().String("class", types.AllClasses, "only list points of this class")

	return cmd
}

func runEmbeddings(cmd *cobra.Command, _ []string) error {
	class, _ := cmd.Flags().GetString("class")

	s, _, err := newSession()
	if err != nil {
		return err
	}
	if class == types.AllClasses || class == "" {
		err = s.LoadEmbeddings(cmd.Context())
	} else {
		err = s.LoadClassEmbeddings(cmd.Context(), class)
	}
	if err != nil {
		return err
	}

	points := s.FilteredEmbeddings()
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tCLASS\tX\tY")
	for _, p := range points {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%.4f\t%.4f\n", p.AnnotationID, p.ClassName, p.X, p.Y)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d points\n", len(points))
	return err
}
