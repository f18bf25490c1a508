// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Embedscope Contributors

package store

import (
	"slices"
	"sync"
)

// Field names one piece of store state.
type Field string

const (
	FieldEmbeddings     Field = "embeddings"
	FieldClasses        Field = "classes"
	FieldSelectedClass  Field = "selected_class"
	FieldSelectedPoints Field = "selected_points"
	FieldGalleryItems   Field = "gallery_items"
	FieldCheckedItems   Field = "checked_items"
	FieldLoading        Field = "loading"
)

// Change is delivered to observers after a field was written.
type Change struct {
	Field Field
}

// Subscribe registers fn to be called after every state write. fn runs on
// the goroutine that performed the write, outside the store lock, so it may
// read the store. The returned func removes the subscription.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	return s.observers.add(fn)
}

type observers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Change)
}

func (o *observers) add(fn func(Change)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fns == nil {
		o.fns = make(map[int]func(Change))
	}
	id := o.next
	o.next++
	o.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.fns, id)
			o.mu.Unlock()
		})
	}
}

func (o *observers) notify(fields ...Field) {
	if len(fields) == 0 {
		return
	}
	o.mu.Lock()
	ids := make([]int, 0, len(o.fns))
	for id := range o.fns {
		ids = append(ids, id)
	}
	fns := make([]func(Change), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, o.fns[id])
	}
	o.mu.Unlock()

	for _, f := range fields {
		for _, fn := range fns {
			fn(Change{Field: f})
		}
	}
}
