// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Embedscope Contributors

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/embedscope/embedscope/internal/dataset"
	"github.com/embedscope/embedscope/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local annotation backend",
		Long: "Serve the annotation REST API from a COCO-style dataset file with an \"embeddings\" map. " +
			"Removals write filtered copies to the output directory; the source file is never modified.",
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	cmd.Flags().String("dataset", "", "override dataset file (.json, .yaml)")
	cmd.Flags().String("images-dir", "", "override source image directory")
	cmd.Flags().String("output-dir", "", "override filtered dataset directory")
	_ = viper.BindPFlag("server.listen", cmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("server.dataset", cmd.Flags().Lookup("dataset"))
	_ = viper.BindPFlag("server.images_dir", cmd.Flags().Lookup("images-dir"))
	_ = viper.BindPFlag("server.output_dir", cmd.Flags().Lookup("output-dir"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	data := dataset.New(cfg.Server.Dataset, cfg.Server.OutputDir,
		dataset.WithImagesDir(cfg.Server.ImagesDir),
		dataset.WithLogger(logger))
	if err := data.Load(); err != nil {
		// Data routes retry the load lazily; health reports what is missing.
		logger.Warn("dataset not loaded at startup", "path", cfg.Server.Dataset, "error", err)
	}

	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Server.Listen,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger,
	}, data)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on %s (api base http://%s/api)\n",
		cfg.Server.Dataset, cfg.Server.Listen, cfg.Server.Listen)
	if err != nil {
		return err
	}
	return srv.Start(ctx)
}
