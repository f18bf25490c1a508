// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Embedscope Contributors

package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/embedscope/embedscope/internal/dataset"
	"github.com/embedscope/embedscope/internal/server"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

const fixtureJSON = `{
  "images": [{"id": 1, "file_name": "a.png"}],
  "categories": [{"id": 1, "name": "cat"}, {"id": 2, "name": "dog"}],
  "annotations": [
    {"id": 1, "image_id": 1, "category_id": 1, "bbox": [10, 10, 100, 80], "iscrowd": 0},
    {"id": 2, "image_id": 1, "category_id": 2, "bbox": [60, 60, 20, 20], "iscrowd": 0},
    {"id": 3, "image_id": 1, "category_id": 1, "bbox": [0, 0, 5, 5], "iscrowd": 0}
  ],
  "embeddings": {"1": [0, 0], "2": [1, 1], "3": [5, 5]}
}`

// backend is a fixture annotation server over a temp dataset.
type backend struct {
	ts          *httptest.Server
	datasetPath string
	outDir      string
}

func (b *backend) apiURL() string {
	return b.ts.URL + "/api"
}

func writeDataset(t *testing.T) (path, outDir string) {
	t.Helper()
	dir := t.TempDir()
	path = filepath.Join(dir, "annotations.json")
	require.NoError(t, os.WriteFile(path, []byte(fixtureJSON), 0o644))
	return path, filepath.Join(dir, "filtered")
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	path, outDir := writeDataset(t)

	data, err := dataset.Open(path, outDir, dataset.WithImagesDir(t.TempDir()))
	require.NoError(t, err)
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"}, data)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &backend{ts: ts, datasetPath: path, outDir: outDir}
}

// runCLI executes the root command with a clean global viper and an isolated
// HOME, returning stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCLIContext(t, context.Background(), args...)
}

func runCLIContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	viper.Reset()
	t.Cleanup(viper.Reset)

	root := NewRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetIn(new(bytes.Buffer))
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	return out.String(), err
}
