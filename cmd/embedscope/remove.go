// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Embedscope Contributors

package main

import (
	"fmt"

	"github.com/embedscope/embedscope/pkg/types"
	"github.com/spf13/cobra"
)

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID...",
		Short: "Remove annotations from the dataset",
		Long: "Check the given annotation ids and remove them on the backend, which writes a filtered copy " +
			"of the dataset.",
		Args: cobra.MinimumNArgs(1),
		RunE: runRemove,
	}
}

func runRemove(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	s, _, err := newSession()
	if err != nil {
		return err
	}
	s.LoadGalleryItems(ids)
	for _, id := range ids {
		s.ToggleItemCheck(id)
	}

	res, err := s.RemoveSelectedItems(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if res == nil {
		_, err = fmt.Fprintln(out, "Nothing to remove")
		return err
	}
	switch {
	case *res == (types.RemoveResult{}):
		_, err = fmt.Fprintf(out, "Backend accepted removal of %d annotations\n", len(ids))
	case res.RequestedCount > 0:
		_, err = fmt.Fprintf(out, "Removed %d of %d annotations\n", res.RemovedCount, res.RequestedCount)
	default:
		_, err = fmt.Fprintf(out, "Removed %d annotations\n", res.RemovedCount)
	}
	if err != nil {
		return err
	}
	if res.OutputFile != "" {
		_, err = fmt.Fprintf(out, "Filtered dataset written to %s\n", res.OutputFile)
	}
	return err
}
