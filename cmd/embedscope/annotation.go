// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Embedscope Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAnnotationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "annotation ID",
		Short: "Show one annotation",
		Long:  "Print an annotation record together with the source of its crop image.",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnnotation,
	}
}

func runAnnotation(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	id := ids[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := newAPIClient(cfg)

	a, err := client.Annotation(cmd.Context(), id)
	if err != nil {
		return err
	}
	info, err := client.CropInfo(cmd.Context(), id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "%-14s %d\n", "Annotation:", a.ID)
	_, _ = fmt.Fprintf(out, "%-14s %d\n", "Image:", a.ImageID)
	_, _ = fmt.Fprintf(out, "%-14s %d\n", "Category:", a.CategoryID)
	_, _ = fmt.Fprintf(out, "%-14s %v\n", "BBox:", a.BBox)
	_, _ = fmt.Fprintf(out, "%-14s %t\n", "Crowd:", a.IsCrowd != 0)
	source := info.ImagePath
	if !info.ImageExists {
		source = "missing (placeholder served)"
	}
	_, _ = fmt.Fprintf(out, "%-14s %s\n", "Source:", source)
	_, err = fmt.Fprintf(out, "%-14s %s\n", "Crop URL:", client.CropURL(id))
	return err
}

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the backend dataset",
		Long:  "Ask the backend to re-read its dataset file from disk.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			res, err := newAPIClient(cfg).Reload(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (%d annotations, %d mapped)\n",
				res.Message, res.AnnotationsCount, res.MappingCount)
			return err
		},
	}
}
