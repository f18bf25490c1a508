// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Embedscope Contributors

// Package store holds the UI state of an annotation review session: the
// embedding points, the class list, the current selection and its gallery.
//
// Every action fetches through a Backend, then applies the result to the
// state. Actions leave the state untouched when the backend call fails; the
// error is logged and returned. Network calls run outside the store lock, so
// concurrently issued actions apply their results in completion order.
package store

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	esErr "github.com/embedscope/embedscope/pkg/errors"
	"github.com/embedscope/embedscope/pkg/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Backend is the subset of the API client the store depends on.
type Backend interface {
	Embeddings(ctx context.Context) ([]types.EmbeddingPoint, error)
	EmbeddingsByClass(ctx context.Context, className string) ([]types.EmbeddingPoint, error)
	Classes(ctx context.Context) ([]string, error)
	Selection(ctx context.Context, coords any) ([]types.AnnotationID, error)
	CropURL(id types.AnnotationID) string
	Remove(ctx context.Context, ids []types.AnnotationID) (*types.RemoveResult, error)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for failed actions.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store is the state of one review session. It is safe for concurrent use.
type Store struct {
	backend   Backend
	logger    *slog.Logger
	sessionID string

	mu             sync.Mutex
	embeddings     []types.EmbeddingPoint
	classes        []string
	selectedClass  string
	selectedPoints []types.AnnotationID
	galleryItems   []types.GalleryItem
	checkedItems   []types.AnnotationID
	loading        bool

	observers observers
}

// New creates an empty store reading through backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:       backend,
		logger:        slog.Default(),
		sessionID:     uuid.NewString(),
		selectedClass: types.AllClasses,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "store", "session_id", s.sessionID)
	return s
}

// SessionID identifies this store instance in logs.
func (s *Store) SessionID() string {
	return s.sessionID
}

// --- Actions ---

// LoadEmbeddings replaces the embeddings with every point from the backend.
func (s *Store) LoadEmbeddings(ctx context.Context) error {
	s.setLoading(true)
	defer s.setLoading(false)

	points, err := s.backend.Embeddings(ctx)
	if err != nil {
		return s.fail("load_embeddings", err)
	}

	s.mutate(func() {
		s.embeddings = points
	}, FieldEmbeddings)
	return nil
}

// LoadClassEmbeddings replaces the embeddings with the points of className
// and makes it the selected class.
func (s *Store) LoadClassEmbeddings(ctx context.Context, className string) error {
	s.setLoading(true)
	defer s.setLoading(false)

	points, err := s.backend.EmbeddingsByClass(ctx, className)
	if err != nil {
		return s.fail("load_class_embeddings", err, esErr.Field("class", className))
	}

	s.mutate(func() {
		s.embeddings = points
		s.selectedClass = className
	}, FieldEmbeddings, FieldSelectedClass)
	return nil
}

// SelectClass changes the class filter without refetching. An empty name
// selects every class.
func (s *Store) SelectClass(className string) {
	if className == "" {
		className = types.AllClasses
	}
	s.mutate(func() {
		s.selectedClass = className
	}, FieldSelectedClass)
}

// LoadClasses replaces the class list with the backend's, prefixed by the
// "all" sentinel. It does not touch the loading flag.
func (s *Store) LoadClasses(ctx context.Context) error {
	fetched, err := s.backend.Classes(ctx)
	if err != nil {
		return s.fail("load_classes", err)
	}

	classes := make([]string, 0, len(fetched)+1)
	classes = append(classes, types.AllClasses)
	classes = append(classes, fetched...)

	s.mutate(func() {
		s.classes = classes
	}, FieldClasses)
	return nil
}

// UpdateSelection resolves coords to annotation ids on the backend, stores
// them as the selected points and rebuilds the gallery from them. The two
// updates are observed separately.
func (s *Store) UpdateSelection(ctx context.Context, coords any) error {
	s.setLoading(true)
	defer s.setLoading(false)

	ids, err := s.backend.Selection(ctx, coords)
	if err != nil {
		return s.fail("update_selection", err)
	}

	s.mutate(func() {
		s.selectedPoints = ids
	}, FieldSelectedPoints)
	s.deriveGallery(ids)
	return nil
}

// LoadGalleryItems rebuilds the gallery from ids, all unchecked.
func (s *Store) LoadGalleryItems(ids []types.AnnotationID) {
	s.setLoading(true)
	defer s.setLoading(false)

	s.deriveGallery(ids)
}

// ToggleItemCheck flips the checked flag of the gallery item with id.
// Unknown ids are ignored.
func (s *Store) ToggleItemCheck(id types.AnnotationID) {
	changed := false
	s.mutate(func() {
		idx := slices.IndexFunc(s.galleryItems, func(it types.GalleryItem) bool {
			return it.AnnotationID == id
		})
		if idx < 0 {
			return
		}
		changed = true

		item := &s.galleryItems[idx]
		item.Checked = !item.Checked
		if item.Checked {
			s.checkedItems = append(s.checkedItems, id)
			return
		}
		s.checkedItems = slices.DeleteFunc(s.checkedItems, func(c types.AnnotationID) bool {
			return c == id
		})
	})
	if changed {
		s.observers.notify(FieldGalleryItems, FieldCheckedItems)
	}
}

// RemoveSelectedItems deletes every checked annotation on the backend and,
// once the backend accepts, drops them from the embeddings, the gallery and
// the selected points. Without checked items it returns (nil, nil) and makes
// no request.
func (s *Store) RemoveSelectedItems(ctx context.Context) (*types.RemoveResult, error) {
	s.mu.Lock()
	ids := slices.Clone(s.checkedItems)
	s.mu.Unlock()
	if len(ids) == 0 {
		return nil, nil
	}

	s.setLoading(true)
	defer s.setLoading(false)

	res, err := s.backend.Remove(ctx, ids)
	if err != nil {
		return nil, s.fail("remove_selected_items", err, esErr.Field("count", len(ids)))
	}

	removed := make(map[types.AnnotationID]struct{}, len(ids))
	for _, id := range ids {
		removed[id] = struct{}{}
	}
	isRemoved := func(id types.AnnotationID) bool {
		_, ok := removed[id]
		return ok
	}

	s.mutate(func() {
		s.embeddings = filtered(s.embeddings, func(p types.EmbeddingPoint) bool { return !isRemoved(p.AnnotationID) })
		s.galleryItems = filtered(s.galleryItems, func(it types.GalleryItem) bool { return !isRemoved(it.AnnotationID) })
		s.selectedPoints = filtered(s.selectedPoints, func(id types.AnnotationID) bool { return !isRemoved(id) })
		// Checks made while the request was in flight survive.
		s.checkedItems = filtered(s.checkedItems, func(id types.AnnotationID) bool { return !isRemoved(id) })
	}, FieldEmbeddings, FieldGalleryItems, FieldSelectedPoints, FieldCheckedItems)
	return res, nil
}

// ClearSelection empties the selected points, the gallery and the checks.
func (s *Store) ClearSelection() {
	s.mutate(func() {
		s.selectedPoints = nil
		s.galleryItems = nil
		s.checkedItems = nil
	}, FieldSelectedPoints, FieldGalleryItems, FieldCheckedItems)
}

// Refresh loads the classes and all embeddings concurrently. Both loads run
// to completion; their errors are joined.
func (s *Store) Refresh(ctx context.Context) error {
	var (
		g    errgroup.Group
		errs [2]error
	)
	g.Go(func() error {
		errs[0] = s.LoadClasses(ctx)
		return nil
	})
	g.Go(func() error {
		errs[1] = s.LoadEmbeddings(ctx)
		return nil
	})
	_ = g.Wait()
	return esErr.Join(errs[0], errs[1])
}

// --- State readers ---

// Embeddings returns the loaded points.
func (s *Store) Embeddings() []types.EmbeddingPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.embeddings)
}

// FilteredEmbeddings returns the loaded points of the selected class, in load
// order. With the "all" class it returns every point.
func (s *Store) FilteredEmbeddings() []types.EmbeddingPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterByClass(s.embeddings, s.selectedClass)
}

// Classes returns the class list, "all" first once loaded.
func (s *Store) Classes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.classes)
}

// SelectedClass returns the active class filter.
func (s *Store) SelectedClass() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedClass
}

// SelectedPoints returns the ids of the current selection.
func (s *Store) SelectedPoints() []types.AnnotationID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.selectedPoints)
}

// GalleryItems returns the gallery, one item per selected point.
func (s *Store) GalleryItems() []types.GalleryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.galleryItems)
}

// CheckedItems returns the checked ids in the order they were checked.
func (s *Store) CheckedItems() []types.AnnotationID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.checkedItems)
}

// Loading reports whether an action is in progress.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Snapshot is a consistent copy of the whole state.
type Snapshot struct {
	Embeddings         []types.EmbeddingPoint
	FilteredEmbeddings []types.EmbeddingPoint
	Classes            []string
	SelectedClass      string
	SelectedPoints     []types.AnnotationID
	GalleryItems       []types.GalleryItem
	CheckedItems       []types.AnnotationID
	Loading            bool
}

// Snapshot copies every field under one lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Embeddings:         slices.Clone(s.embeddings),
		FilteredEmbeddings: filterByClass(s.embeddings, s.selectedClass),
		Classes:            slices.Clone(s.classes),
		SelectedClass:      s.selectedClass,
		SelectedPoints:     slices.Clone(s.selectedPoints),
		GalleryItems:       slices.Clone(s.galleryItems),
		CheckedItems:       slices.Clone(s.checkedItems),
		Loading:            s.loading,
	}
}

// --- internals ---

func (s *Store) deriveGallery(ids []types.AnnotationID) {
	items := make([]types.GalleryItem, len(ids))
	for i, id := range ids {
		items[i] = types.GalleryItem{
			AnnotationID: id,
			ImageURL:     s.backend.CropURL(id),
		}
	}

	s.mutate(func() {
		s.galleryItems = items
		s.checkedItems = nil
	}, FieldGalleryItems, FieldCheckedItems)
}

func (s *Store) setLoading(v bool) {
	s.mutate(func() {
		s.loading = v
	}, FieldLoading)
}

// mutate runs fn under the lock, then notifies observers of fields.
func (s *Store) mutate(fn func(), fields ...Field) {
	s.mu.Lock()
	fn()
	s.mu.Unlock()
	s.observers.notify(fields...)
}

func (s *Store) fail(action string, err error, fields ...esErr.Attr) error {
	attrs := []any{"action", action, "error", err}
	if code := esErr.CodeOf(err); code != "" {
		attrs = append(attrs, "code", string(code))
	}
	s.logger.Error("store action failed", attrs...)
	return esErr.With(err, append(fields, esErr.FieldAction(action))...)
}

func filterByClass(points []types.EmbeddingPoint, className string) []types.EmbeddingPoint {
	if className == types.AllClasses {
		return slices.Clone(points)
	}
	return filtered(points, func(p types.EmbeddingPoint) bool { return p.ClassName == className })
}

// filtered returns the elements of in that satisfy keep, preserving order.
func filtered[T any](in []T, keep func(T) bool) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}
