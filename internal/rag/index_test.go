package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosine(tt.a, tt.b), 1e-9)
		})
	}
}

func TestMemoryIndex_SearchOrdersBySimilarity(t *testing.T) {
	idx := newMemoryIndex()
	idx.Put("a", []Chunk{{ItemID: "a", Text: "east", Vector: []float32{1, 0}}})
	idx.Put("b", []Chunk{
		{ItemID: "b", Index: 0, Text: "north", Vector: []float32{0, 1}},
		{ItemID: "b", Index: 1, Text: "north east", Vector: []float32{1, 1}},
	})

	got := idx.Search([]float32{1, 0.1}, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "east", got[0].Text)
	assert.Equal(t, "north east", got[1].Text)

	assert.Len(t, idx.Search([]float32{1, 0}, 10), 3)
	assert.Nil(t, idx.Search([]float32{1, 0}, 0))
}

func TestMemoryIndex_PutReplacesAndRemoveDrops(t *testing.T) {
	idx := newMemoryIndex()
	idx.Put("a", []Chunk{{ItemID: "a", Vector: []float32{1}}, {ItemID: "a", Index: 1, Vector: []float32{1}}})
	assert.Equal(t, 2, idx.Len())

	idx.Put("a", []Chunk{{ItemID: "a", Vector: []float32{1}}})
	assert.Equal(t, 1, idx.Len())

	idx.Remove("a")
	assert.Equal(t, 0, idx.Len())
	assert.Empty(t, idx.Search([]float32{1}, 3))
}
