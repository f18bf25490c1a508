// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Embedscope Contributors

package main

import (
	"errors"
	"io"
	"log/slog"

	"github.com/embedscope/embedscope/internal/config"
	esErr "github.com/embedscope/embedscope/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCmd creates the root embedscope command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "embedscope",
		Short:         "Embedscope: review annotations through their embeddings",
		Long:          "Embedscope browses a 2-D embedding of dataset annotations, selects regions, and removes bad annotations from the backend.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd)
		},
	}

	// Global flags. These map to viper keys via initViper.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("api-url", "", "annotation backend base URL, including the /api prefix")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newClassesCmd(),
		newEmbeddingsCmd(),
		newSelectCmd(),
		newRemoveCmd(),
		newReviewCmd(),
		newStatusCmd(),
		newStatsCmd(),
		newAnnotationCmd(),
		newReloadCmd(),
		newServeCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up the global Viper with defaults, env bindings, flag
// bindings, and optional config file so the standard precedence
// (flag > env > file > defaults) is handled uniformly.
func initViper(cmd *cobra.Command) error {
	v := viper.GetViper()

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return esErr.Errorf(esErr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is omitted on purpose: with it set, Viper also tries
		// the bare name, which is the ./embedscope binary.
		v.SetConfigName("embedscope")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/embedscope")
		v.AddConfigPath("/etc/embedscope")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return esErr.Errorf(esErr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if err := bootstrapConfig(v); err != nil {
				return err
			}
		}
	}

	if err := v.BindPFlag("api.base_url", cmd.Root().PersistentFlags().Lookup("api-url")); err != nil {
		return esErr.Errorf(esErr.CodeCLISetupFailure, "binding api-url flag: %w", err)
	}
	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return esErr.Errorf(esErr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	logger, err := newLogger(v, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	return nil
}

// bootstrapConfig writes the default config to ~/.config/embedscope/ when no
// config exists anywhere, then reads it. Failing to write is not an error.
func bootstrapConfig(v *viper.Viper) error {
	path, err := config.DefaultConfigPath()
	if err != nil {
		slog.Debug("skipping config bootstrap", "error", err)
		return nil
	}
	if written := config.BootstrapConfig(path); written != "" {
		v.SetConfigFile(written)
		if err := v.ReadInConfig(); err != nil {
			return esErr.Errorf(esErr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
		}
	}
	return nil
}

// newLogger builds the slog handler selected by log.level and log.format.
// --verbose forces debug.
func newLogger(v *viper.Viper, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(v.GetString("log.level"))
	if err != nil {
		return nil, err
	}
	if v.GetBool("verbose") {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	switch format := v.GetString("log.format"); format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, esErr.Errorf(esErr.CodeConfigValidateInvalidValue,
			"config: log.format must be one of [text, json], got %q", format)
	}
}
