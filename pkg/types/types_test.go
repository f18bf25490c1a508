// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Embedscope Contributors

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRect_Contains(t *testing.T) {
	r := Rect{XMin: 0, XMax: 10, YMin: -5, YMax: 5}

	tests := []struct {
		name string
		x, y float64
		want bool
	}{
		{"inside", 3, 1, true},
		{"left edge", 0, 0, true},
		{"top right corner", 10, 5, true},
		{"left of", -0.1, 0, false},
		{"above", 5, 5.5, false},
		{"below", 5, -6, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Contains(tt.x, tt.y))
		})
	}
}
