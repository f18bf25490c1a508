// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Embedscope Contributors

// Package types holds the wire types shared by the API client, the store and
// the fixture backend.
package types

// AllClasses is the class sentinel meaning "no filter".
const AllClasses = "all"

// AnnotationID identifies one annotation in the underlying dataset.
type AnnotationID int64

// EmbeddingPoint is the 2D projection of one annotation.
type EmbeddingPoint struct {
	AnnotationID AnnotationID `json:"annotation_id" yaml:"annotation_id"`
	X            float64      `json:"x" yaml:"x"`
	Y            float64      `json:"y" yaml:"y"`
	ClassName    string       `json:"class_name" yaml:"class_name"`
}

// Rect is the rectangular selection region understood by the backend.
// Bounds are inclusive.
type Rect struct {
	XMin float64 `json:"x_min"`
	XMax float64 `json:"x_max"`
	YMin float64 `json:"y_min"`
	YMax float64 `json:"y_max"`
}

// Contains reports whether (x, y) lies inside r, edges included.
func (r Rect) Contains(x, y float64) bool {
	return r.XMin <= x && x <= r.XMax && r.YMin <= y && y <= r.YMax
}

// SelectionResult is the response body of POST /selection.
type SelectionResult struct {
	AnnotationIDs []AnnotationID `json:"annotation_ids"`
}

// RemoveRequest is the request body of POST /remove.
type RemoveRequest struct {
	AnnotationIDs []AnnotationID `json:"annotation_ids"`
}

// RemoveResult is the backend acknowledgement of a removal. The client treats
// it as opaque; fields the backend does not send stay zero.
type RemoveResult struct {
	Success        bool   `json:"success"`
	RemovedCount   int    `json:"removed_count"`
	RequestedCount int    `json:"requested_count,omitempty"`
	ValidCount     int    `json:"valid_count,omitempty"`
	OutputFile     string `json:"output_file,omitempty"`
}

// GalleryItem wraps one selected annotation for review.
type GalleryItem struct {
	AnnotationID AnnotationID `json:"annotation_id"`
	ImageURL     string       `json:"image_url"`
	Checked      bool         `json:"checked"`
}

// Health reports which dataset parts the backend has loaded.
type Health struct {
	Status            string `json:"status"`
	EmbeddingsLoaded  bool   `json:"embeddings_loaded"`
	AnnotationsLoaded bool   `json:"annotations_loaded"`
	MappingLoaded     bool   `json:"mapping_loaded"`
}

// EmbeddingStats summarizes the embedding set.
type EmbeddingStats struct {
	TotalPoints int            `json:"total_points"`
	ClassCounts map[string]int `json:"class_counts"`
}

// AnnotationStats summarizes the annotation set.
type AnnotationStats struct {
	TotalAnnotations int            `json:"total_annotations"`
	CategoryCounts   map[string]int `json:"category_counts"`
	TotalCategories  int            `json:"total_categories"`
	TotalImages      int            `json:"total_images"`
}

// Annotation is a COCO annotation record.
type Annotation struct {
	ID         AnnotationID `json:"id" yaml:"id"`
	ImageID    int64        `json:"image_id" yaml:"image_id"`
	CategoryID int64        `json:"category_id" yaml:"category_id"`
	BBox       []float64    `json:"bbox" yaml:"bbox"`
	Area       float64      `json:"area,omitempty" yaml:"area,omitempty"`
	IsCrowd    int          `json:"iscrowd" yaml:"iscrowd"`
}

// CropInfo describes the source of a crop image.
type CropInfo struct {
	AnnotationID AnnotationID `json:"annotation_id"`
	ImageID      int64        `json:"image_id"`
	BBox         []float64    `json:"bbox"`
	ImagePath    string       `json:"image_path,omitempty"`
	ImageExists  bool         `json:"image_exists"`
	CategoryID   int64        `json:"category_id"`
}

// ReloadResult is the response body of POST /reload.
type ReloadResult struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	AnnotationsCount int    `json:"annotations_count"`
	MappingCount     int    `json:"mapping_count"`
}
