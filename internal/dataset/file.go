// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Embedscope Contributors

package dataset

import (
	"encoding/json"
	"path/filepath"
	"strings"

	esErr "github.com/embedscope/embedscope/pkg/errors"
	"github.com/embedscope/embedscope/pkg/types"
	"gopkg.in/yaml.v3"
)

// File is a COCO-style annotation document extended with a 2D embedding per
// annotation. Unknown top-level sections are not preserved.
type File struct {
	Info        map[string]any     `json:"info,omitempty" yaml:"info,omitempty"`
	Images      []Image            `json:"images" yaml:"images"`
	Categories  []Category         `json:"categories" yaml:"categories"`
	Annotations []types.Annotation `json:"annotations" yaml:"annotations"`
	// Embeddings maps an annotation id to its [x, y] projection.
	Embeddings map[types.AnnotationID][]float64 `json:"embeddings" yaml:"embeddings"`
}

// Image is a COCO image record.
type Image struct {
	ID       int64  `json:"id" yaml:"id"`
	FileName string `json:"file_name" yaml:"file_name"`
	Width    int    `json:"width,omitempty" yaml:"width,omitempty"`
	Height   int    `json:"height,omitempty" yaml:"height,omitempty"`
}

// Category is a COCO category record.
type Category struct {
	ID            int64  `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	Supercategory string `json:"supercategory,omitempty" yaml:"supercategory,omitempty"`
}

// Format is the encoding of a dataset file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf picks the format from the file extension. Anything that is not
// .yaml or .yml is read as JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Parse decodes and validates a dataset document.
func Parse(data []byte, format Format) (*File, error) {
	var f File
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, esErr.Wrapf(err, esErr.CodeDatasetParseInvalid, "decoding %s dataset", format)
	}

	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	seen := make(map[types.AnnotationID]struct{}, len(f.Annotations))
	for _, a := range f.Annotations {
		if _, dup := seen[a.ID]; dup {
			return esErr.New(esErr.CodeDatasetParseInvalid, "duplicate annotation id",
				esErr.FieldAnnotationID(int64(a.ID)))
		}
		seen[a.ID] = struct{}{}
	}
	for id, xy := range f.Embeddings {
		if len(xy) != 2 {
			return esErr.New(esErr.CodeDatasetParseInvalid, "embedding must have exactly 2 coordinates",
				esErr.FieldAnnotationID(int64(id)), esErr.Field("len", len(xy)))
		}
	}
	return nil
}
