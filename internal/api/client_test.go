// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Embedscope Contributors

package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/embedscope/embedscope/internal/api"
	esErr "github.com/embedscope/embedscope/pkg/errors"
	"github.com/embedscope/embedscope/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient starts a mock backend mounted under /api and returns a client
// pointed at it.
func newTestClient(t *testing.T, handler http.HandlerFunc) *api.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", handler))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return api.New(api.Config{BaseURL: srv.URL + "/api/", HTTPClient: srv.Client()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_Embeddings(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		writeJSON(w, []map[string]any{
			{"annotation_id": 1, "x": 0.5, "y": -1.25, "class_name": "cat"},
			{"annotation_id": 2, "x": 3, "y": 4, "class_name": "dog"},
		})
	})

	points, err := c.Embeddings(context.Background())
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, types.EmbeddingPoint{AnnotationID: 1, X: 0.5, Y: -1.25, ClassName: "cat"}, points[0])
	assert.Equal(t, "dog", points[1].ClassName)
}

func TestClient_EmbeddingsByClass_EscapesPathSegment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings/traffic%20light", r.URL.EscapedPath())
		writeJSON(w, []types.EmbeddingPoint{{AnnotationID: 7, ClassName: "traffic light"}})
	})

	points, err := c.EmbeddingsByClass(context.Background(), "traffic light")
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, types.AnnotationID(7), points[0].AnnotationID)
}

func TestClient_EmbeddingsByClass_EmptyName(t *testing.T) {
	c := api.New(api.Config{BaseURL: "http://127.0.0.1:1/api"})
	_, err := c.EmbeddingsByClass(context.Background(), "")
	require.Error(t, err)
	assert.True(t, esErr.HasCode(err, esErr.CodeAPIRequestInvalid))
}

func TestClient_Classes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/classes", r.URL.Path)
		writeJSON(w, []string{"cat", "dog"})
	})

	classes, err := c.Classes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog"}, classes)
}

func TestClient_Selection_ForwardsPayloadVerbatim(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/selection", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"polygon":[[0,0],[1,0],[1,1]],"mode":"lasso"}`, string(body))

		writeJSON(w, map[string]any{"annotation_ids": []int{1, 2, 3}})
	})

	coords := map[string]any{
		"polygon": [][]int{{0, 0}, {1, 0}, {1, 1}},
		"mode":    "lasso",
	}
	ids, err := c.Selection(context.Background(), coords)
	require.NoError(t, err)
	assert.Equal(t, []types.AnnotationID{1, 2, 3}, ids)
}

func TestClient_CropURL(t *testing.T) {
	c := api.New(api.Config{BaseURL: "http://localhost:8000/api/"})
	assert.Equal(t, "http://localhost:8000/api", c.BaseURL())
	assert.Equal(t, "http://localhost:8000/api/crop/42", c.CropURL(42))
}

func TestClient_Remove(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/remove", r.URL.Path)
		var req types.RemoveRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []types.AnnotationID{4, 9}, req.AnnotationIDs)
		writeJSON(w, map[string]any{
			"success":       true,
			"removed_count": 2,
			"output_file":   "data/filtered_annotations/filtered_annotations_20260101_000000.json",
			"extra":         "ignored",
		})
	})

	res, err := c.Remove(context.Background(), []types.AnnotationID{4, 9})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.RemovedCount)
	assert.Contains(t, res.OutputFile, "filtered_annotations_")
}

func TestClient_Remove_OpaqueAcknowledgement(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   types.RemoveResult
	}{
		{name: "no content", status: http.StatusNoContent},
		{name: "empty 200", status: http.StatusOK},
		{name: "string", status: http.StatusOK, body: `"ok"`},
		{name: "array", status: http.StatusOK, body: `[4, 9]`},
		{name: "mistyped object", status: http.StatusOK, body: `{"removed_count": "two"}`},
		{name: "object", status: http.StatusOK, body: `{"success": true, "removed_count": 2}`,
			want: types.RemoveResult{Success: true, RemovedCount: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			res, err := c.Remove(context.Background(), []types.AnnotationID{4, 9})
			require.NoError(t, err)
			require.NotNil(t, res)
			assert.Equal(t, tt.want, *res)
		})
	}
}

func TestClient_SupplementaryEndpoints(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			writeJSON(w, types.Health{Status: "healthy", EmbeddingsLoaded: true})
		case "/embeddings/stats":
			writeJSON(w, types.EmbeddingStats{TotalPoints: 3, ClassCounts: map[string]int{"cat": 3}})
		case "/annotations/stats":
			writeJSON(w, types.AnnotationStats{TotalAnnotations: 3, TotalImages: 1})
		case "/annotations/5":
			writeJSON(w, types.Annotation{ID: 5, ImageID: 1, BBox: []float64{1, 2, 3, 4}})
		case "/crop/5/info":
			writeJSON(w, types.CropInfo{AnnotationID: 5, ImageID: 1})
		case "/reload":
			assert.Equal(t, http.MethodPost, r.Method)
			writeJSON(w, types.ReloadResult{Success: true, AnnotationsCount: 3})
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)

	es, err := c.EmbeddingStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, es.ClassCounts["cat"])

	as, err := c.AnnotationStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, as.TotalImages)

	a, err := c.Annotation(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, a.BBox)

	info, err := c.CropInfo(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, types.AnnotationID(5), info.AnnotationID)

	rr, err := c.Reload(ctx)
	require.NoError(t, err)
	assert.True(t, rr.Success)
}

func TestClient_NonSuccessStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"detail":"Error loading classes"}`, http.StatusInternalServerError)
	})

	_, err := c.Classes(context.Background())
	require.Error(t, err)
	assert.True(t, esErr.HasCode(err, esErr.CodeAPIUpstreamFailure))
	assert.True(t, esErr.IsUpstreamFailure(err))
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "Error loading classes")
	assert.Equal(t, 500, esErr.FieldsOf(err)["status"])
	assert.Equal(t, "/classes", esErr.FieldsOf(err)["path"])
}

func TestClient_InvalidJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	_, err := c.Embeddings(context.Background())
	require.Error(t, err)
	assert.True(t, esErr.HasCode(err, esErr.CodeAPIResponseInvalid))
}

func TestClient_ConnectionRefused(t *testing.T) {
	// Reserve a port, then close the listener so nothing accepts on it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := api.New(api.Config{BaseURL: "http://" + addr + "/api"})
	_, err = c.Classes(context.Background())
	require.Error(t, err)
	assert.True(t, esErr.HasCode(err, esErr.CodeAPIBackendNotRunning), "got code %q", esErr.CodeOf(err))
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		writeJSON(w, []string{})
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c := api.New(api.Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.Classes(context.Background())
	require.Error(t, err)
	assert.True(t, esErr.HasCode(err, esErr.CodeAPIRequestFailure))
}

func TestClient_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, []string{"cat"})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Classes(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
