// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Embedscope Contributors

// Package dataset serves an annotation file with 2D embeddings to the fixture
// backend: class listing, rectangle hit-testing, stats and batch removal.
package dataset

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	esErr "github.com/embedscope/embedscope/pkg/errors"
	"github.com/embedscope/embedscope/pkg/types"
)

// filteredTimeLayout names the files written by Remove.
const filteredTimeLayout = "20060102_150405"

// imageExts are tried in order when an image file is missing under its own name.
var imageExts = []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff"}

// Option configures a Dataset.
type Option func(*Dataset)

// WithImagesDir sets the directory crop images are resolved in.
func WithImagesDir(dir string) Option {
	return func(d *Dataset) { d.imagesDir = dir }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dataset) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock overrides the time source used to name removal output files.
func WithClock(now func() time.Time) Option {
	return func(d *Dataset) { d.now = now }
}

// Dataset is an in-memory view of one dataset file. It is safe for
// concurrent use.
type Dataset struct {
	path      string
	outputDir string
	imagesDir string
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.RWMutex
	file     *File
	catNames map[int64]string
}

// New returns a dataset bound to path. Nothing is read until Load.
func New(path, outputDir string, opts ...Option) *Dataset {
	d := &Dataset{
		path:      path,
		outputDir: outputDir,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open creates a dataset and loads it.
func Open(path, outputDir string, opts ...Option) (*Dataset, error) {
	d := New(path, outputDir, opts...)
	if err := d.Load(); err != nil {
		return nil, err
	}
	return d, nil
}

// Load reads the dataset file, replacing any previously loaded state. On
// failure the previous state is kept.
func (d *Dataset) Load() error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return esErr.Wrap(err, esErr.CodeDatasetLoadFailure, "reading dataset", esErr.FieldPath(d.path))
	}
	f, err := Parse(data, FormatOf(d.path))
	if err != nil {
		return esErr.With(err, esErr.FieldPath(d.path))
	}

	d.mu.Lock()
	d.file = f
	d.catNames = categoryNames(f.Categories)
	d.mu.Unlock()

	d.logger.Info("dataset loaded",
		"path", d.path,
		"annotations", len(f.Annotations),
		"embeddings", len(f.Embeddings),
		"categories", len(f.Categories))
	return nil
}

// EnsureLoaded loads the dataset unless it is already loaded.
func (d *Dataset) EnsureLoaded() error {
	d.mu.RLock()
	loaded := d.file != nil
	d.mu.RUnlock()
	if loaded {
		return nil
	}
	return d.Load()
}

// Reload re-reads the dataset file and reports what was loaded.
func (d *Dataset) Reload() (*types.ReloadResult, error) {
	if err := d.Load(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return &types.ReloadResult{
		Success:          true,
		Message:          "Data reloaded successfully",
		AnnotationsCount: len(d.file.Annotations),
		MappingCount:     len(d.file.Embeddings),
	}, nil
}

// Health reports which parts of the dataset are loaded. It never fails.
func (d *Dataset) Health() types.Health {
	d.mu.RLock()
	defer d.mu.RUnlock()
	loaded := d.file != nil
	return types.Health{
		Status:            "healthy",
		EmbeddingsLoaded:  loaded && len(d.file.Embeddings) > 0,
		AnnotationsLoaded: loaded,
		MappingLoaded:     loaded && len(d.file.Embeddings) > 0,
	}
}

// Points returns the embedding points in annotation order. A non-empty class
// keeps only that class. Annotations without an embedding are skipped.
func (d *Dataset) Points(class string) ([]types.EmbeddingPoint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.file == nil {
		return nil, errNotLoaded()
	}
	return d.pointsLocked(class), nil
}

// ClassNames lists the category names in file order. Without categories it
// derives class_<id> names from the annotations, sorted by id.
func (d *Dataset) ClassNames() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.file == nil {
		return nil, errNotLoaded()
	}

	if len(d.file.Categories) > 0 {
		names := make([]string, len(d.file.Categories))
		for i, c := range d.file.Categories {
			names[i] = c.Name
		}
		return names, nil
	}

	var ids []int64
	for _, a := range d.file.Annotations {
		if !slices.Contains(ids, a.CategoryID) {
			ids = append(ids, a.CategoryID)
		}
	}
	slices.Sort(ids)
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = "class_" + strconv.FormatInt(id, 10)
	}
	return names, nil
}

// InRect returns the ids of the points inside r, bounds inclusive, in
// annotation order.
func (d *Dataset) InRect(r types.Rect) ([]types.AnnotationID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.file == nil {
		return nil, errNotLoaded()
	}

	ids := []types.AnnotationID{}
	for _, p := range d.pointsLocked("") {
		if r.Contains(p.X, p.Y) {
			ids = append(ids, p.AnnotationID)
		}
	}
	return ids, nil
}

// Annotation returns a copy of the annotation with id.
func (d *Dataset) Annotation(id types.AnnotationID) (*types.Annotation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.file == nil {
		return nil, errNotLoaded()
	}
	a, ok := d.annotationLocked(id)
	if !ok {
		return nil, errAnnotationMissing(id)
	}
	a.BBox = slices.Clone(a.BBox)
	return &a, nil
}

// ClassOf returns the class name of the annotation with id.
func (d *Dataset) ClassOf(id types.AnnotationID) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.file == nil {
		return "", errNotLoaded()
	}
	a, ok := d.annotationLocked(id)
	if !ok {
		return "", errAnnotationMissing(id)
	}
	return d.classNameLocked(a.CategoryID), nil
}

// CropInfo describes where the crop of an annotation comes from.
func (d *Dataset) CropInfo(id types.AnnotationID) (*types.CropInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.file == nil {
		return nil, errNotLoaded()
	}
	a, ok := d.annotationLocked(id)
	if !ok {
		return nil, errAnnotationMissing(id)
	}

	info := &types.CropInfo{
		AnnotationID: a.ID,
		ImageID:      a.ImageID,
		BBox:         slices.Clone(a.BBox),
		CategoryID:   a.CategoryID,
	}
	if path, exists := d.imagePathLocked(a.ImageID); path != "" {
		info.ImagePath = path
		info.ImageExists = exists
	}
	return info, nil
}

// Remove drops the given annotations and writes the remaining document to a
// new timestamped file in the output directory. Unknown ids are ignored but
// counted in RequestedCount.
func (d *Dataset) Remove(ids []types.AnnotationID) (*types.RemoveResult, error) {
	if len(ids) == 0 {
		return nil, esErr.New(esErr.CodeDatasetRemoveInvalid, "No annotation IDs provided")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil, errNotLoaded()
	}

	existing := make(map[types.AnnotationID]struct{}, len(d.file.Annotations))
	for _, a := range d.file.Annotations {
		existing[a.ID] = struct{}{}
	}
	valid := make(map[types.AnnotationID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := existing[id]; ok {
			valid[id] = struct{}{}
		}
	}

	next := *d.file
	next.Annotations = slices.DeleteFunc(slices.Clone(d.file.Annotations), func(a types.Annotation) bool {
		_, drop := valid[a.ID]
		return drop
	})
	next.Embeddings = make(map[types.AnnotationID][]float64, len(d.file.Embeddings))
	for id, xy := range d.file.Embeddings {
		if _, drop := valid[id]; !drop {
			next.Embeddings[id] = xy
		}
	}

	out, err := d.writeFiltered(&next)
	if err != nil {
		return nil, err
	}
	removed := len(d.file.Annotations) - len(next.Annotations)
	d.file = &next

	d.logger.Info("annotations removed",
		"requested", len(ids), "removed", removed, "output_file", out)
	return &types.RemoveResult{
		Success:        true,
		RemovedCount:   removed,
		RequestedCount: len(ids),
		ValidCount:     len(valid),
		OutputFile:     out,
	}, nil
}

// EmbeddingStats counts the points per class.
func (d *Dataset) EmbeddingStats() (*types.EmbeddingStats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.file == nil {
		return nil, errNotLoaded()
	}

	points := d.pointsLocked("")
	stats := &types.EmbeddingStats{
		TotalPoints: len(points),
		ClassCounts: make(map[string]int),
	}
	for _, p := range points {
		stats.ClassCounts[p.ClassName]++
	}
	return stats, nil
}

// AnnotationStats counts the annotations per category. Categories missing
// from the category table are reported as category_<id>.
func (d *Dataset) AnnotationStats() (*types.AnnotationStats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.file == nil {
		return nil, errNotLoaded()
	}

	byID := make(map[int64]int)
	for _, a := range d.file.Annotations {
		byID[a.CategoryID]++
	}
	named := make(map[string]int, len(byID))
	for id, n := range byID {
		name, ok := d.catNames[id]
		if !ok {
			name = "category_" + strconv.FormatInt(id, 10)
		}
		named[name] += n
	}
	return &types.AnnotationStats{
		TotalAnnotations: len(d.file.Annotations),
		CategoryCounts:   named,
		TotalCategories:  len(byID),
		TotalImages:      len(d.file.Images),
	}, nil
}

func (d *Dataset) pointsLocked(class string) []types.EmbeddingPoint {
	points := make([]types.EmbeddingPoint, 0, len(d.file.Annotations))
	for _, a := range d.file.Annotations {
		name := d.classNameLocked(a.CategoryID)
		if class != "" && class != name {
			continue
		}
		xy, ok := d.file.Embeddings[a.ID]
		if !ok {
			continue
		}
		points = append(points, types.EmbeddingPoint{
			AnnotationID: a.ID,
			X:            xy[0],
			Y:            xy[1],
			ClassName:    name,
		})
	}
	return points
}

func (d *Dataset) classNameLocked(categoryID int64) string {
	if name, ok := d.catNames[categoryID]; ok {
		return name
	}
	return "class_" + strconv.FormatInt(categoryID, 10)
}

func (d *Dataset) annotationLocked(id types.AnnotationID) (types.Annotation, bool) {
	for _, a := range d.file.Annotations {
		if a.ID == id {
			return a, true
		}
	}
	return types.Annotation{}, false
}

// imagePathLocked resolves the file of imageID under the images directory,
// trying other common extensions when the recorded name does not exist.
func (d *Dataset) imagePathLocked(imageID int64) (string, bool) {
	if d.imagesDir == "" {
		return "", false
	}
	idx := slices.IndexFunc(d.file.Images, func(img Image) bool { return img.ID == imageID })
	if idx < 0 || d.file.Images[idx].FileName == "" {
		return "", false
	}

	path := filepath.Join(d.imagesDir, d.file.Images[idx].FileName)
	if fileExists(path) {
		return path, true
	}
	stem := path[:len(path)-len(filepath.Ext(path))]
	for _, ext := range imageExts {
		if alt := stem + ext; fileExists(alt) {
			return alt, true
		}
	}
	return path, false
}

func (d *Dataset) writeFiltered(f *File) (string, error) {
	if err := os.MkdirAll(d.outputDir, 0o755); err != nil {
		return "", esErr.Wrap(err, esErr.CodeDatasetWriteFailure, "creating output directory",
			esErr.FieldPath(d.outputDir))
	}

	name := fmt.Sprintf("filtered_annotations_%s.json", d.now().Format(filteredTimeLayout))
	path := filepath.Join(d.outputDir, name)

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return "", esErr.Wrap(err, esErr.CodeDatasetWriteFailure, "encoding filtered dataset")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", esErr.Wrap(err, esErr.CodeDatasetWriteFailure, "writing filtered dataset", esErr.FieldPath(path))
	}
	return path, nil
}

func categoryNames(cats []Category) map[int64]string {
	names := make(map[int64]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return names
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func errNotLoaded() error {
	return esErr.New(esErr.CodeDatasetNotLoaded, "dataset not loaded")
}

func errAnnotationMissing(id types.AnnotationID) error {
	return esErr.New(esErr.CodeDatasetAnnotationMissing, "Annotation not found",
		esErr.FieldAnnotationID(int64(id)))
}
