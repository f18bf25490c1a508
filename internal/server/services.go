// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Embedscope Contributors

package server

import (
	"github.com/embedscope/embedscope/pkg/types"
)

// Dataset is the data source behind the routes. *dataset.Dataset implements
// it; tests substitute their own.
//
// Lookups of unknown annotations must return an error whose code ends in
// not_found so handlers answer 404. Invalid input codes map to 400.
type Dataset interface {
	EnsureLoaded() error
	Health() types.Health
	Reload() (*types.ReloadResult, error)

	Points(class string) ([]types.EmbeddingPoint, error)
	ClassNames() ([]string, error)
	InRect(r types.Rect) ([]types.AnnotationID, error)
	EmbeddingStats() (*types.EmbeddingStats, error)

	Annotation(id types.AnnotationID) (*types.Annotation, error)
	ClassOf(id types.AnnotationID) (string, error)
	CropInfo(id types.AnnotationID) (*types.CropInfo, error)
	AnnotationStats() (*types.AnnotationStats, error)
	Remove(ids []types.AnnotationID) (*types.RemoveResult, error)
}
