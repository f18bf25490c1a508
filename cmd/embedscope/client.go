// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Embedscope Contributors

package main

import (
	"log/slog"
	"net/http"

	"github.com/embedscope/embedscope/internal/api"
	"github.com/embedscope/embedscope/internal/config"
	"github.com/embedscope/embedscope/internal/store"
	"github.com/spf13/viper"
)

// defaultHTTPClient, when set, replaces the timeout-configured client built
// from api.timeout. Overridden in tests.
var defaultHTTPClient *http.Client

// loadConfig decodes and validates the configuration resolved by initViper.
func loadConfig() (*config.Config, error) {
	return config.FromViper(viper.GetViper())
}

// newAPIClient creates a client for the configured annotation backend.
func newAPIClient(cfg *config.Config) *api.Client {
	return api.New(api.Config{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    cfg.API.Timeout,
		HTTPClient: defaultHTTPClient,
		Logger:     slog.Default(),
	})
}

// newSession loads the config and returns a fresh store over the backend.
func newSession() (*store.Store, *api.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	client := newAPIClient(cfg)
	return store.New(client, store.WithLogger(slog.Default())), client, nil
}
