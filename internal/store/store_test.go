// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Embedscope Contributors

package store_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/embedscope/embedscope/internal/api"
	"github.com/embedscope/embedscope/internal/store"
	esErr "github.com/embedscope/embedscope/pkg/errors"
	"github.com/embedscope/embedscope/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBackend is an in-memory Backend. Each *Err field makes the matching
// call fail; calls are counted per method.
type mockBackend struct {
	mu sync.Mutex

	embeddings []types.EmbeddingPoint
	classes    []string
	selection  []types.AnnotationID

	embeddingsErr error
	classesErr    error
	selectionErr  error
	removeErr     error

	calls      map[string]int
	removed    [][]types.AnnotationID
	lastCoords any
	// onEmbeddings runs inside Embeddings before it returns.
	onEmbeddings func()
	// onRemove runs inside Remove before it returns.
	onRemove func()
}

func newMockBackend() *mockBackend {
	return &mockBackend{calls: make(map[string]int)}
}

func (m *mockBackend) record(name string) {
	m.mu.Lock()
	m.calls[name]++
	m.mu.Unlock()
}

func (m *mockBackend) callCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *mockBackend) Embeddings(_ context.Context) ([]types.EmbeddingPoint, error) {
	m.record("embeddings")
	if m.onEmbeddings != nil {
		m.onEmbeddings()
	}
	if m.embeddingsErr != nil {
		return nil, m.embeddingsErr
	}
	return append([]types.EmbeddingPoint(nil), m.embeddings...), nil
}

func (m *mockBackend) EmbeddingsByClass(_ context.Context, className string) ([]types.EmbeddingPoint, error) {
	m.record("embeddings_by_class")
	if m.embeddingsErr != nil {
		return nil, m.embeddingsErr
	}
	var out []types.EmbeddingPoint
	for _, p := range m.embeddings {
		if p.ClassName == className {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockBackend) Classes(_ context.Context) ([]string, error) {
	m.record("classes")
	if m.classesErr != nil {
		return nil, m.classesErr
	}
	return append([]string(nil), m.classes...), nil
}

func (m *mockBackend) Selection(_ context.Context, coords any) ([]types.AnnotationID, error) {
	m.record("selection")
	m.mu.Lock()
	m.lastCoords = coords
	m.mu.Unlock()
	if m.selectionErr != nil {
		return nil, m.selectionErr
	}
	return append([]types.AnnotationID(nil), m.selection...), nil
}

func (m *mockBackend) CropURL(id types.AnnotationID) string {
	return fmt.Sprintf("http://backend/api/crop/%d", id)
}

func (m *mockBackend) Remove(_ context.Context, ids []types.AnnotationID) (*types.RemoveResult, error) {
	m.record("remove")
	if m.onRemove != nil {
		m.onRemove()
	}
	if m.removeErr != nil {
		return nil, m.removeErr
	}
	m.mu.Lock()
	m.removed = append(m.removed, append([]types.AnnotationID(nil), ids...))
	m.mu.Unlock()
	return &types.RemoveResult{Success: true, RemovedCount: len(ids)}, nil
}

var errBackendDown = esErr.New(esErr.CodeAPIBackendNotRunning, "backend is not running (connection refused)")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func samplePoints() []types.EmbeddingPoint {
	return []types.EmbeddingPoint{
		{AnnotationID: 1, X: 0, Y: 0, ClassName: "cat"},
		{AnnotationID: 2, X: 1, Y: 1, ClassName: "dog"},
		{AnnotationID: 3, X: 2, Y: 2, ClassName: "cat"},
		{AnnotationID: 4, X: 3, Y: 3, ClassName: "bird"},
		{AnnotationID: 5, X: 4, Y: 4, ClassName: "cat"},
	}
}

func newTestStore(t *testing.T, b *mockBackend) *store.Store {
	t.Helper()
	return store.New(b, store.WithLogger(quietLogger()))
}

// selectIDs makes ids the current selection through the store.
func selectIDs(t *testing.T, s *store.Store, b *mockBackend, ids ...types.AnnotationID) {
	t.Helper()
	b.selection = ids
	require.NoError(t, s.UpdateSelection(context.Background(), types.Rect{XMax: 10, YMax: 10}))
}

func TestNew_InitialState(t *testing.T) {
	s := newTestStore(t, newMockBackend())

	snap := s.Snapshot()
	assert.Empty(t, snap.Embeddings)
	assert.Empty(t, snap.Classes)
	assert.Equal(t, types.AllClasses, snap.SelectedClass)
	assert.Empty(t, snap.SelectedPoints)
	assert.Empty(t, snap.GalleryItems)
	assert.Empty(t, snap.CheckedItems)
	assert.False(t, snap.Loading)
	assert.NotEmpty(t, s.SessionID())
}

// --- loadEmbeddings / loadClassEmbeddings ---

func TestLoadEmbeddings(t *testing.T) {
	b := newMockBackend()
	b.embeddings = samplePoints()
	s := newTestStore(t, b)

	var loadingDuringCall bool
	b.onEmbeddings = func() { loadingDuringCall = s.Loading() }

	require.NoError(t, s.LoadEmbeddings(context.Background()))
	assert.Equal(t, samplePoints(), s.Embeddings())
	assert.True(t, loadingDuringCall, "loading must be set while the request is pending")
	assert.False(t, s.Loading())
}

func TestLoadEmbeddings_FailureLeavesStateAndResetsLoading(t *testing.T) {
	b := newMockBackend()
	b.embeddings = samplePoints()
	s := newTestStore(t, b)
	require.NoError(t, s.LoadEmbeddings(context.Background()))

	b.embeddingsErr = errBackendDown
	err := s.LoadEmbeddings(context.Background())
	require.Error(t, err)
	assert.True(t, esErr.HasCode(err, esErr.CodeAPIBackendNotRunning), "backend code must survive, got %s", esErr.CodeOf(err))
	assert.Equal(t, "load_embeddings", esErr.FieldsOf(err)["action"])

	assert.Equal(t, samplePoints(), s.Embeddings())
	assert.False(t, s.Loading())
}

func TestLoadClassEmbeddings(t *testing.T) {
	b := newMockBackend()
	b.embeddings = samplePoints()
	s := newTestStore(t, b)

	require.NoError(t, s.LoadClassEmbeddings(context.Background(), "cat"))
	assert.Equal(t, "cat", s.SelectedClass())
	assert.Len(t, s.Embeddings(), 3)
	assert.Equal(t, 1, b.callCount("embeddings_by_class"))
	assert.False(t, s.Loading())
}

func TestLoadClassEmbeddings_FailureKeepsSelectedClass(t *testing.T) {
	b := newMockBackend()
	b.embeddingsErr = errors.New("boom")
	s := newTestStore(t, b)

	require.Error(t, s.LoadClassEmbeddings(context.Background(), "cat"))
	assert.Equal(t, types.AllClasses, s.SelectedClass())
	assert.False(t, s.Loading())
}

// --- filteredEmbeddings ---

func TestFilteredEmbeddings_AllIsIdentity(t *testing.T) {
	b := newMockBackend()
	b.embeddings = samplePoints()
	s := newTestStore(t, b)
	require.NoError(t, s.LoadEmbeddings(context.Background()))

	assert.Equal(t, s.Embeddings(), s.FilteredEmbeddings())
}

func TestFilteredEmbeddings_ByClassPreservesOrder(t *testing.T) {
	b := newMockBackend()
	b.embeddings = samplePoints()
	s := newTestStore(t, b)
	require.NoError(t, s.LoadEmbeddings(context.Background()))

	tests := []struct {
		class string
		want  []types.AnnotationID
	}{
		{"cat", []types.AnnotationID{1, 3, 5}},
		{"dog", []types.AnnotationID{2}},
		{"fish", nil},
		{"", []types.AnnotationID{1, 2, 3, 4, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			s.SelectClass(tt.class)
			var got []types.AnnotationID
			for _, p := range s.FilteredEmbeddings() {
				got = append(got, p.AnnotationID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilteredEmbeddings_RecomputedOnRead(t *testing.T) {
	b := newMockBackend()
	b.embeddings = samplePoints()
	s := newTestStore(t, b)
	require.NoError(t, s.LoadEmbeddings(context.Background()))
	s.SelectClass("cat")
	require.Len(t, s.FilteredEmbeddings(), 3)

	b.embeddings = append(samplePoints(), types.EmbeddingPoint{AnnotationID: 6, ClassName: "cat"})
	require.NoError(t, s.LoadEmbeddings(context.Background()))
	assert.Len(t, s.FilteredEmbeddings(), 4)
}

// --- loadClasses ---

func TestLoadClasses_PrependsAll(t *testing.T) {
	b := newMockBackend()
	b.classes = []string{"cat", "dog"}
	s := newTestStore(t, b)

	var sawLoading bool
	unsubscribe := s.Subscribe(func(c store.Change) {
		if c.Field == store.FieldLoading {
			sawLoading = true
		}
	})
	defer unsubscribe()

	require.NoError(t, s.LoadClasses(context.Background()))
	assert.Equal(t, []string{"all", "cat", "dog"}, s.Classes())
	assert.False(t, sawLoading, "loadClasses must not toggle loading")
}

func TestLoadClasses_Failure(t *testing.T) {
	b := newMockBackend()
	b.classes = []string{"cat"}
	s := newTestStore(t, b)
	require.NoError(t, s.LoadClasses(context.Background()))

	b.classesErr = errors.New("500")
	require.Error(t, s.LoadClasses(context.Background()))
	assert.Equal(t, []string{"all", "cat"}, s.Classes())
}

// --- updateSelection / loadGalleryItems ---

func TestUpdateSelection(t *testing.T) {
	b := newMockBackend()
	s := newTestStore(t, b)

	coords := map[string]any{"x_min": 0, "x_max": 1}
	b.selection = []types.AnnotationID{1, 2, 3}
	require.NoError(t, s.UpdateSelection(context.Background(), coords))

	assert.Equal(t, coords, b.lastCoords, "coords must be forwarded untouched")
	assert.Equal(t, []types.AnnotationID{1, 2, 3}, s.SelectedPoints())
	assert.Equal(t, []types.GalleryItem{
		{AnnotationID: 1, ImageURL: "http://backend/api/crop/1"},
		{AnnotationID: 2, ImageURL: "http://backend/api/crop/2"},
		{AnnotationID: 3, ImageURL: "http://backend/api/crop/3"},
	}, s.GalleryItems())
	assert.Empty(t, s.CheckedItems())
	assert.False(t, s.Loading())
}

func TestUpdateSelection_ResetsChecks(t *testing.T) {
	b := newMockBackend()
	s := newTestStore(t, b)
	selectIDs(t, s, b, 1, 2)
	s.ToggleItemCheck(1)
	require.Len(t, s.CheckedItems(), 1)

	selectIDs(t, s, b, 1, 2, 3)
	assert.Empty(t, s.CheckedItems())
	for _, it := range s.GalleryItems() {
		assert.False(t, it.Checked)
	}
}

func TestUpdateSelection_FailureKeepsPriorSelection(t *testing.T) {
	b := newMockBackend()
	s := newTestStore(t, b)
	selectIDs(t, s, b, 7, 8)
	s.ToggleItemCheck(8)

	b.selectionErr = errors.New("timeout")
	require.Error(t, s.UpdateSelection(context.Background(), types.Rect{}))

	assert.Equal(t, []types.AnnotationID{7, 8}, s.SelectedPoints())
	assert.Len(t, s.GalleryItems(), 2)
	assert.Equal(t, []types.AnnotationID{8}, s.CheckedItems())
	assert.False(t, s.Loading())
}

func TestUpdateSelection_SelectedPointsObservedBeforeGallery(t *testing.T) {
	b := newMockBackend()
	s := newTestStore(t, b)

	var order []store.Field
	unsubscribe := s.Subscribe(func(c store.Change) {
		if c.Field != store.FieldLoading {
			order = append(order, c.Field)
		}
	})
	defer unsubscribe()

	selectIDs(t, s, b, 1)
	assert.Equal(t, []store.Field{store.FieldSelectedPoints, store.FieldGalleryItems, store.FieldCheckedItems}, order)
}

func TestLoadGalleryItems(t *testing.T) {
	b := newMockBackend()
	s := newTestStore(t, b)

	s.LoadGalleryItems([]types.AnnotationID{10, 11})
	items := s.GalleryItems()
	require.Len(t, items, 2)
	assert.Equal(t, "http://backend/api/crop/10", items[0].ImageURL)
	assert.Empty(t, s.CheckedItems())
	assert.Empty(t, s.SelectedPoints(), "loadGalleryItems does not touch selected points")
	assert.Zero(t, b.callCount("selection"))
	assert.False(t, s.Loading())
}

// --- toggleItemCheck ---

func TestToggleItemCheck_TracksCheckOrder(t *testing.T) {
	b := newMockBackend()
	s := newTestStore(t, b)
	selectIDs(t, s, b, 1, 2, 3, 4)

	s.ToggleItemCheck(3)
	s.ToggleItemCheck(1)
	s.ToggleItemCheck(4)
	assert.Equal(t, []types.AnnotationID{3, 1, 4}, s.CheckedItems())

	s.ToggleItemCheck(1)
	assert.Equal(t, []types.AnnotationID{3, 4}, s.CheckedItems())

	s.ToggleItemCheck(1)
	assert.Equal(t, []types.AnnotationID{3, 4, 1}, s.CheckedItems())
}

func TestToggleItemCheck_UnknownIDIsNoop(t *testing.T) {
	b := newMockBackend()
	s := newTestStore(t, b)
	selectIDs(t, s, b, 1, 2)

	notified := false
	unsubscribe := s.Subscribe(func(store.Change) { notified = true })
	defer unsubscribe()

	s.ToggleItemCheck(99)
	assert.Empty(t, s.CheckedItems())
	assert.False(t, notified)
}

func TestToggleItemCheck_CheckedItemsMatchGallery(t *testing.T) {
	b := newMockBackend()
	s := newTestStore(t, b)
	selectIDs(t, s, b, 1, 2, 3, 4, 5)

	sequence := []types.AnnotationID{2, 5, 2, 9, 1, 5, 3, 3, 4, 1, 2}
	for i, id := range sequence {
		s.ToggleItemCheck(id)

		want := map[types.AnnotationID]bool{}
		for _, it := range s.GalleryItems() {
			if it.Checked {
				want[it.AnnotationID] = true
			}
		}
		got := map[types.AnnotationID]bool{}
		for _, c := range s.CheckedItems() {
			assert.False(t, got[c], "step %d: duplicate id %d in checked items", i, c)
			got[c] = true
		}
		assert.Equal(t, want, got, "step %d", i)
	}
}

// --- removeSelectedItems ---

func TestRemoveSelectedItems_NoopWithoutChecks(t *testing.T) {
	b := newMockBackend()
	s := newTestStore(t, b)
	selectIDs(t, s, b, 1, 2)

	res, err := s.RemoveSelectedItems(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Zero(t, b.callCount("remove"))
}

func TestRemoveSelectedItems(t *testing.T) {
	b := newMockBackend()
	b.embeddings = samplePoints()
	s := newTestStore(t, b)
	require.NoError(t, s.LoadEmbeddings(context.Background()))
	selectIDs(t, s, b, 1, 2, 3, 4)

	s.ToggleItemCheck(3)
	s.ToggleItemCheck(1)

	res, err := s.RemoveSelectedItems(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 2, res.RemovedCount)
	require.Len(t, b.removed, 1)
	assert.Equal(t, []types.AnnotationID{3, 1}, b.removed[0], "the full checked list is sent in one request")

	var embeddingIDs []types.AnnotationID
	for _, p := range s.Embeddings() {
		embeddingIDs = append(embeddingIDs, p.AnnotationID)
	}
	assert.Equal(t, []types.AnnotationID{2, 4, 5}, embeddingIDs)

	var galleryIDs []types.AnnotationID
	for _, it := range s.GalleryItems() {
		galleryIDs = append(galleryIDs, it.AnnotationID)
	}
	assert.Equal(t, []types.AnnotationID{2, 4}, galleryIDs)
	assert.Equal(t, []types.AnnotationID{2, 4}, s.SelectedPoints())
	assert.Empty(t, s.CheckedItems())
	assert.False(t, s.Loading())
}

func TestRemoveSelectedItems_FailureMutatesNothing(t *testing.T) {
	b := newMockBackend()
	b.embeddings = samplePoints()
	s := newTestStore(t, b)
	require.NoError(t, s.LoadEmbeddings(context.Background()))
	selectIDs(t, s, b, 1, 2)
	s.ToggleItemCheck(2)
	before := s.Snapshot()

	b.removeErr = esErr.New(esErr.CodeAPIUpstreamFailure, "backend returned status 500")
	res, err := s.RemoveSelectedItems(context.Background())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, esErr.IsUpstreamFailure(err))

	assert.Equal(t, before, s.Snapshot())
}

func TestRemoveSelectedItems_KeepsChecksMadeInFlight(t *testing.T) {
	b := newMockBackend()
	s := newTestStore(t, b)
	selectIDs(t, s, b, 1, 2)
	s.ToggleItemCheck(1)

	entered := make(chan struct{})
	release := make(chan struct{})
	b.onRemove = func() {
		close(entered)
		<-release
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.RemoveSelectedItems(context.Background())
		done <- err
	}()
	<-entered
	s.ToggleItemCheck(2)
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, []types.AnnotationID{1}, b.removed[0])
	assert.Equal(t, []types.AnnotationID{2}, s.CheckedItems())
	require.Len(t, s.GalleryItems(), 1)
	assert.True(t, s.GalleryItems()[0].Checked)
}

func TestRemoveSelectedItems_OpaqueAcknowledgement(t *testing.T) {
	for name, ack := range map[string]func(http.ResponseWriter){
		"no content": func(w http.ResponseWriter) { w.WriteHeader(http.StatusNoContent) },
		"string":     func(w http.ResponseWriter) { _, _ = w.Write([]byte(`"ok"`)) },
	} {
		t.Run(name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /api/selection", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"annotation_ids": [1, 2]}`))
			})
			mux.HandleFunc("POST /api/remove", func(w http.ResponseWriter, _ *http.Request) { ack(w) })
			srv := httptest.NewServer(mux)
			t.Cleanup(srv.Close)

			s := store.New(api.New(api.Config{BaseURL: srv.URL + "/api", HTTPClient: srv.Client()}),
				store.WithLogger(quietLogger()))
			require.NoError(t, s.UpdateSelection(context.Background(), types.Rect{XMax: 1, YMax: 1}))
			s.ToggleItemCheck(1)

			res, err := s.RemoveSelectedItems(context.Background())
			require.NoError(t, err)
			require.NotNil(t, res)
			assert.Equal(t, []types.AnnotationID{2}, s.SelectedPoints())
			require.Len(t, s.GalleryItems(), 1)
			assert.Equal(t, types.AnnotationID(2), s.GalleryItems()[0].AnnotationID)
			assert.Empty(t, s.CheckedItems())
		})
	}
}

// --- clearSelection ---

func TestClearSelection(t *testing.T) {
	b := newMockBackend()
	b.embeddings = samplePoints()
	s := newTestStore(t, b)
	require.NoError(t, s.LoadEmbeddings(context.Background()))
	selectIDs(t, s, b, 1, 2, 3)
	s.ToggleItemCheck(2)

	s.ClearSelection()
	assert.Empty(t, s.SelectedPoints())
	assert.Empty(t, s.GalleryItems())
	assert.Empty(t, s.CheckedItems())
	assert.Len(t, s.Embeddings(), 5, "clearSelection keeps embeddings")
	assert.Zero(t, b.callCount("remove"))
}

func TestClearSelection_WhileLoading(t *testing.T) {
	b := newMockBackend()
	s := newTestStore(t, b)
	selectIDs(t, s, b, 1, 2)

	entered := make(chan struct{})
	release := make(chan struct{})
	b.onEmbeddings = func() {
		close(entered)
		<-release
	}

	done := make(chan error, 1)
	go func() { done <- s.LoadEmbeddings(context.Background()) }()
	<-entered
	require.True(t, s.Loading())

	s.ClearSelection()
	assert.Empty(t, s.SelectedPoints())
	assert.Empty(t, s.GalleryItems())
	assert.Empty(t, s.CheckedItems())

	close(release)
	require.NoError(t, <-done)
	assert.False(t, s.Loading())
}

// --- refresh / observers ---

func TestRefresh(t *testing.T) {
	b := newMockBackend()
	b.embeddings = samplePoints()
	b.classes = []string{"bird", "cat", "dog"}
	s := newTestStore(t, b)

	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, []string{"all", "bird", "cat", "dog"}, s.Classes())
	assert.Len(t, s.Embeddings(), 5)
}

func TestRefresh_JoinsErrors(t *testing.T) {
	b := newMockBackend()
	b.embeddings = samplePoints()
	b.classesErr = errors.New("classes down")
	s := newTestStore(t, b)

	err := s.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classes down")
	assert.Len(t, s.Embeddings(), 5, "the embeddings load still completes")
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	s := newTestStore(t, newMockBackend())

	var got []store.Field
	unsubscribe := s.Subscribe(func(c store.Change) { got = append(got, c.Field) })

	s.SelectClass("cat")
	unsubscribe()
	unsubscribe()
	s.SelectClass("dog")

	assert.Equal(t, []store.Field{store.FieldSelectedClass}, got)
}

func TestSubscribe_ObserverMayReadStore(t *testing.T) {
	s := newTestStore(t, newMockBackend())

	var seen string
	unsubscribe := s.Subscribe(func(c store.Change) {
		if c.Field == store.FieldSelectedClass {
			seen = s.SelectedClass()
		}
	})
	defer unsubscribe()

	s.SelectClass("dog")
	assert.Equal(t, "dog", seen)
}

func TestStore_ConcurrentActions(t *testing.T) {
	b := newMockBackend()
	b.embeddings = samplePoints()
	b.classes = []string{"cat"}
	b.selection = []types.AnnotationID{1, 2, 3}
	s := newTestStore(t, b)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := context.Background()
			_ = s.LoadEmbeddings(ctx)
			_ = s.LoadClasses(ctx)
			_ = s.UpdateSelection(ctx, types.Rect{})
			s.ToggleItemCheck(types.AnnotationID(i%3 + 1))
			_ = s.FilteredEmbeddings()
		}(i)
	}
	wg.Wait()

	assert.False(t, s.Loading())
	assert.Equal(t, []string{"all", "cat"}, s.Classes())

	gallery := map[types.AnnotationID]bool{}
	for _, it := range s.GalleryItems() {
		gallery[it.AnnotationID] = it.Checked
	}
	for _, id := range s.CheckedItems() {
		assert.True(t, gallery[id], "checked id %d must be a checked gallery item", id)
	}
}
