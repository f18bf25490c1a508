// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Embedscope Contributors

// Package api is the HTTP client for the annotation backend REST surface.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	esErr "github.com/embedscope/embedscope/pkg/errors"
	"github.com/embedscope/embedscope/pkg/types"
	"github.com/google/uuid"
)

// DefaultTimeout is the fixed per-request limit. Requests are never retried.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of a failed response body is attached to errors.
const maxErrorBody = 4096

// Config configures a Client.
type Config struct {
	// BaseURL includes the API prefix, e.g. http://localhost:8000/api.
	BaseURL string
	// Timeout defaults to DefaultTimeout. Ignored when HTTPClient is set.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client provides HTTP access to the annotation backend.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a client targeting cfg.BaseURL.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Embeddings fetches every embedding point.
func (c *Client) Embeddings(ctx context.Context) ([]types.EmbeddingPoint, error) {
	var points []types.EmbeddingPoint
	if err := c.getJSON(ctx, "/embeddings", &points); err != nil {
		return nil, err
	}
	return points, nil
}

// EmbeddingsByClass fetches the embedding points of one class.
func (c *Client) EmbeddingsByClass(ctx context.Context, className string) ([]types.EmbeddingPoint, error) {
	if className == "" {
		return nil, esErr.New(esErr.CodeAPIRequestInvalid, "class name must not be empty")
	}
	var points []types.EmbeddingPoint
	if err := c.getJSON(ctx, "/embeddings/"+url.PathEscape(className), &points); err != nil {
		return nil, err
	}
	return points, nil
}

// Classes fetches the class names known to the backend.
func (c *Client) Classes(ctx context.Context) ([]string, error) {
	var classes []string
	if err := c.getJSON(ctx, "/classes", &classes); err != nil {
		return nil, err
	}
	return classes, nil
}

// Selection posts coords unchanged and returns the annotation ids the backend
// hit-tested inside them.
func (c *Client) Selection(ctx context.Context, coords any) ([]types.AnnotationID, error) {
	var result types.SelectionResult
	if err := c.postJSON(ctx, "/selection", coords, &result); err != nil {
		return nil, err
	}
	return result.AnnotationIDs, nil
}

// CropURL builds the crop-image URL of an annotation. No request is made.
func (c *Client) CropURL(id types.AnnotationID) string {
	return c.baseURL + "/crop/" + strconv.FormatInt(int64(id), 10)
}

// Remove deletes a batch of annotations on the backend. Any 2xx response is
// success. The acknowledgement is decoded only when it is a JSON object;
// an empty or differently shaped body yields a zero RemoveResult.
func (c *Client) Remove(ctx context.Context, ids []types.AnnotationID) (*types.RemoveResult, error) {
	var raw json.RawMessage
	if err := c.postJSON(ctx, "/remove", types.RemoveRequest{AnnotationIDs: ids}, &raw); err != nil {
		return nil, err
	}

	var result types.RemoveResult
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &result); err != nil {
			c.logger.Debug("ignoring undecodable remove acknowledgement", "error", err)
			result = types.RemoveResult{}
		}
	}
	return &result, nil
}

// Health reports whether the backend has its dataset loaded.
func (c *Client) Health(ctx context.Context) (*types.Health, error) {
	var h types.Health
	if err := c.getJSON(ctx, "/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// EmbeddingStats fetches per-class point counts.
func (c *Client) EmbeddingStats(ctx context.Context) (*types.EmbeddingStats, error) {
	var s types.EmbeddingStats
	if err := c.getJSON(ctx, "/embeddings/stats", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// AnnotationStats fetches per-category annotation counts.
func (c *Client) AnnotationStats(ctx context.Context) (*types.AnnotationStats, error) {
	var s types.AnnotationStats
	if err := c.getJSON(ctx, "/annotations/stats", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Annotation fetches one raw annotation record.
func (c *Client) Annotation(ctx context.Context, id types.AnnotationID) (*types.Annotation, error) {
	var a types.Annotation
	if err := c.getJSON(ctx, "/annotations/"+strconv.FormatInt(int64(id), 10), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// CropInfo fetches the source details of a crop.
func (c *Client) CropInfo(ctx context.Context, id types.AnnotationID) (*types.CropInfo, error) {
	var info types.CropInfo
	if err := c.getJSON(ctx, "/crop/"+strconv.FormatInt(int64(id), 10)+"/info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Reload asks the backend to re-read its dataset files.
func (c *Client) Reload(ctx context.Context) (*types.ReloadResult, error) {
	var r types.ReloadResult
	if err := c.postJSON(ctx, "/reload", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	return c.do(ctx, http.MethodGet, path, nil, dest)
}

func (c *Client) postJSON(ctx context.Context, path string, body, dest any) error {
	if body == nil {
		return c.do(ctx, http.MethodPost, path, nil, dest)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return esErr.Wrap(err, esErr.CodeAPIRequestInvalid, "encoding request body", esErr.FieldPath(path))
	}
	return c.do(ctx, http.MethodPost, path, payload, dest)
}

// do performs one request and decodes a 2xx JSON response into dest. A
// *json.RawMessage dest receives the trimmed body undecoded.
func (c *Client) do(ctx context.Context, method, path string, payload []byte, dest any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return esErr.Wrap(err, esErr.CodeAPIRequestInvalid, "building request", esErr.FieldPath(path))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("api request failed",
			"method", method, "path", path, "request_id", requestID, "error", err)
		if isDialError(err) {
			return esErr.Wrap(err, esErr.CodeAPIBackendNotRunning, "backend is not running (connection refused)",
				esErr.FieldPath(path))
		}
		return esErr.Wrap(err, esErr.CodeAPIRequestFailure, "request failed", esErr.FieldPath(path))
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("api request",
		"method", method, "path", path, "status", resp.StatusCode,
		"request_id", requestID, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return esErr.New(esErr.CodeAPIUpstreamFailure,
			"backend returned status "+strconv.Itoa(resp.StatusCode)+": "+string(bytes.TrimSpace(b)),
			esErr.FieldPath(path), esErr.FieldStatus(resp.StatusCode))
	}

	if dest == nil {
		return nil
	}
	if raw, ok := dest.(*json.RawMessage); ok {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return esErr.Wrap(err, esErr.CodeAPIResponseInvalid, "reading response", esErr.FieldPath(path))
		}
		*raw = bytes.TrimSpace(b)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return esErr.Wrap(err, esErr.CodeAPIResponseInvalid, "invalid response", esErr.FieldPath(path))
	}
	return nil
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
