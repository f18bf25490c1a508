// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Embedscope Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/embedscope/embedscope/internal/crop"
	esErr "github.com/embedscope/embedscope/pkg/errors"
	"github.com/embedscope/embedscope/pkg/types"
)

func (s *Server) registerRoutes() {
	// Health endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, s.handleHealth)

	huma.Register(s.api, huma.Operation{
		OperationID: "api-health",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Dataset health check",
		Tags:        []string{"system"},
	}, s.handleHealth)

	// Embedding endpoints. The static stats route wins over {class}.
	huma.Register(s.api, huma.Operation{
		OperationID: "list-embeddings",
		Method:      http.MethodGet,
		Path:        "/api/embeddings",
		Summary:     "List embedding points",
		Tags:        []string{"embeddings"},
	}, s.handleListEmbeddings)

	huma.Register(s.api, huma.Operation{
		OperationID: "embedding-stats",
		Method:      http.MethodGet,
		Path:        "/api/embeddings/stats",
		Summary:     "Embedding point counts per class",
		Tags:        []string{"embeddings"},
	}, s.handleEmbeddingStats)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-class-embeddings",
		Method:      http.MethodGet,
		Path:        "/api/embeddings/{class}",
		Summary:     "List embedding points of one class",
		Tags:        []string{"embeddings"},
	}, s.handleListClassEmbeddings)

	huma.Register(s.api, huma.Operation{
		OperationID: "select-region",
		Method:      http.MethodPost,
		Path:        "/api/selection",
		Summary:     "Annotation ids inside a rectangle",
		Tags:        []string{"embeddings"},
	}, s.handleSelection)

	// Annotation endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "list-classes",
		Method:      http.MethodGet,
		Path:        "/api/classes",
		Summary:     "List class names",
		Tags:        []string{"annotations"},
	}, s.handleListClasses)

	huma.Register(s.api, huma.Operation{
		OperationID: "remove-annotations",
		Method:      http.MethodPost,
		Path:        "/api/remove",
		Summary:     "Remove annotations and write a filtered dataset",
		Tags:        []string{"annotations"},
	}, s.handleRemove)

	huma.Register(s.api, huma.Operation{
		OperationID: "annotation-stats",
		Method:      http.MethodGet,
		Path:        "/api/annotations/stats",
		Summary:     "Annotation counts per category",
		Tags:        []string{"annotations"},
	}, s.handleAnnotationStats)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-annotation",
		Method:      http.MethodGet,
		Path:        "/api/annotations/{id}",
		Summary:     "Get one annotation",
		Tags:        []string{"annotations"},
	}, s.handleGetAnnotation)

	huma.Register(s.api, huma.Operation{
		OperationID: "reload-dataset",
		Method:      http.MethodPost,
		Path:        "/api/reload",
		Summary:     "Re-read the dataset file",
		Tags:        []string{"annotations"},
	}, s.handleReload)

	// Image endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "get-crop",
		Method:      http.MethodGet,
		Path:        "/api/crop/{id}",
		Summary:     "JPEG crop of an annotation",
		Tags:        []string{"images"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "JPEG image",
				Content:     map[string]*huma.MediaType{"image/jpeg": {}},
			},
		},
	}, s.handleCrop)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-crop-info",
		Method:      http.MethodGet,
		Path:        "/api/crop/{id}/info",
		Summary:     "Source details of a crop",
		Tags:        []string{"images"},
	}, s.handleCropInfo)
}

// --- Request/Response types for huma ---

type healthOutput struct {
	Body types.Health
}

type listEmbeddingsInput struct {
	ClassName string `query:"class_name" doc:"Optional class filter"`
}

type classInput struct {
	Class string `path:"class"`
}

type embeddingsOutput struct {
	Body []types.EmbeddingPoint
}

type embeddingStatsOutput struct {
	Body types.EmbeddingStats
}

type selectionInput struct {
	Body types.Rect
}
type selectionOutput struct {
	Body types.SelectionResult
}

type classesOutput struct {
	Body []string
}

type removeInput struct {
	Body types.RemoveRequest
}
type removeOutput struct {
	Body types.RemoveResult
}

type annotationStatsOutput struct {
	Body types.AnnotationStats
}

type annotationIDInput struct {
	ID int64 `path:"id"`
}
type annotationOutput struct {
	Body types.Annotation
}

type reloadOutput struct {
	Body types.ReloadResult
}

type cropOutput struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

type cropInfoOutput struct {
	Body types.CropInfo
}

// --- Handlers ---

func (s *Server) handleHealth(_ context.Context, _ *struct{}) (*healthOutput, error) {
	if err := s.data.EnsureLoaded(); err != nil {
		s.logger.Debug("health: dataset not loaded", "error", err)
	}
	return &healthOutput{Body: s.data.Health()}, nil
}

func (s *Server) handleListEmbeddings(_ context.Context, input *listEmbeddingsInput) (*embeddingsOutput, error) {
	return s.points(input.ClassName)
}

func (s *Server) handleListClassEmbeddings(_ context.Context, input *classInput) (*embeddingsOutput, error) {
	return s.points(input.Class)
}

func (s *Server) points(class string) (*embeddingsOutput, error) {
	if err := s.data.EnsureLoaded(); err != nil {
		return nil, s.httpError("Error loading embeddings", err)
	}
	points, err := s.data.Points(class)
	if err != nil {
		return nil, s.httpError("Error loading embeddings", err)
	}
	return &embeddingsOutput{Body: points}, nil
}

func (s *Server) handleEmbeddingStats(_ context.Context, _ *struct{}) (*embeddingStatsOutput, error) {
	if err := s.data.EnsureLoaded(); err != nil {
		return nil, s.httpError("Error getting embedding stats", err)
	}
	stats, err := s.data.EmbeddingStats()
	if err != nil {
		return nil, s.httpError("Error getting embedding stats", err)
	}
	return &embeddingStatsOutput{Body: *stats}, nil
}

func (s *Server) handleSelection(_ context.Context, input *selectionInput) (*selectionOutput, error) {
	if err := s.data.EnsureLoaded(); err != nil {
		return nil, s.httpError("Error resolving selection", err)
	}
	ids, err := s.data.InRect(input.Body)
	if err != nil {
		return nil, s.httpError("Error resolving selection", err)
	}
	return &selectionOutput{Body: types.SelectionResult{AnnotationIDs: ids}}, nil
}

func (s *Server) handleListClasses(_ context.Context, _ *struct{}) (*classesOutput, error) {
	if err := s.data.EnsureLoaded(); err != nil {
		return nil, s.httpError("Error loading classes", err)
	}
	names, err := s.data.ClassNames()
	if err != nil {
		return nil, s.httpError("Error loading classes", err)
	}
	if names == nil {
		names = []string{}
	}
	return &classesOutput{Body: names}, nil
}

func (s *Server) handleRemove(_ context.Context, input *removeInput) (*removeOutput, error) {
	if len(input.Body.AnnotationIDs) == 0 {
		return nil, huma.Error400BadRequest("No annotation IDs provided")
	}
	if err := s.data.EnsureLoaded(); err != nil {
		return nil, s.httpError("Error removing annotations", err)
	}
	res, err := s.data.Remove(input.Body.AnnotationIDs)
	if err != nil {
		return nil, s.httpError("Error removing annotations", err)
	}
	return &removeOutput{Body: *res}, nil
}

func (s *Server) handleAnnotationStats(_ context.Context, _ *struct{}) (*annotationStatsOutput, error) {
	if err := s.data.EnsureLoaded(); err != nil {
		return nil, s.httpError("Error getting annotation stats", err)
	}
	stats, err := s.data.AnnotationStats()
	if err != nil {
		return nil, s.httpError("Error getting annotation stats", err)
	}
	return &annotationStatsOutput{Body: *stats}, nil
}

func (s *Server) handleGetAnnotation(_ context.Context, input *annotationIDInput) (*annotationOutput, error) {
	if err := s.data.EnsureLoaded(); err != nil {
		return nil, s.httpError("Error getting annotation", err)
	}
	a, err := s.data.Annotation(types.AnnotationID(input.ID))
	if err != nil {
		return nil, s.httpError("Error getting annotation", err)
	}
	return &annotationOutput{Body: *a}, nil
}

func (s *Server) handleReload(_ context.Context, _ *struct{}) (*reloadOutput, error) {
	res, err := s.data.Reload()
	if err != nil {
		return nil, s.httpError("Error reloading data", err)
	}
	return &reloadOutput{Body: *res}, nil
}

func (s *Server) handleCrop(_ context.Context, input *annotationIDInput) (*cropOutput, error) {
	if err := s.data.EnsureLoaded(); err != nil {
		return nil, s.httpError("Error getting cropped image", err)
	}
	id := types.AnnotationID(input.ID)
	info, err := s.data.CropInfo(id)
	if err != nil {
		return nil, s.httpError("Error getting cropped image", err)
	}

	var img []byte
	if info.ImageExists {
		img, err = crop.FromFile(info.ImagePath, info.BBox)
		if err != nil {
			s.logger.Warn("crop failed, serving placeholder",
				"annotation_id", input.ID, "path", info.ImagePath, "error", err)
		}
	}
	if img == nil {
		class, _ := s.data.ClassOf(id)
		if img, err = crop.Placeholder(class); err != nil {
			return nil, s.httpError("Error getting cropped image", err)
		}
	}

	return &cropOutput{
		ContentType:  "image/jpeg",
		CacheControl: "max-age=3600",
		Body:         img,
	}, nil
}

func (s *Server) handleCropInfo(_ context.Context, input *annotationIDInput) (*cropInfoOutput, error) {
	if err := s.data.EnsureLoaded(); err != nil {
		return nil, s.httpError("Error getting crop info", err)
	}
	info, err := s.data.CropInfo(types.AnnotationID(input.ID))
	if err != nil {
		return nil, s.httpError("Error getting crop info", err)
	}
	return &cropInfoOutput{Body: *info}, nil
}

// httpError maps a coded error to the matching huma status error. Not-found
// errors keep their own message; everything else is prefixed with msg.
func (s *Server) httpError(msg string, err error) error {
	status := esErr.HTTPStatus(err)
	switch status {
	case http.StatusNotFound, http.StatusBadRequest:
		return huma.NewError(status, err.Error())
	}
	s.logger.Error(msg, "error", err, "code", string(esErr.CodeOf(err)))
	return huma.NewError(status, msg+": "+err.Error())
}
