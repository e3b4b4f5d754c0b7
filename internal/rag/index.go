package rag

import (
	"math"
	"sort"
	"sync"
)

// Chunk is one embedded piece of a knowledge item
type Chunk struct {
	ItemID   string
	Category string
	Index    int
	Text     string
	Vector   []float32
}

// memoryIndex is a brute-force cosine similarity index over chunk vectors
type memoryIndex struct {
	mu     sync.RWMutex
	chunks map[string][]Chunk // by item id
}

func newMemoryIndex() *memoryIndex {
	return &memoryIndex{chunks: make(map[string][]Chunk)}
}

// Put replaces every chunk of an item
func (m *memoryIndex) Put(itemID string, chunks []Chunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[itemID] = chunks
}

// Remove drops every chunk of an item
func (m *memoryIndex) Remove(itemID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, itemID)
}

// Len returns the number of indexed chunks
func (m *memoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, chunks := range m.chunks {
		n += len(chunks)
	}
	return n
}

type scoredChunk struct {
	chunk Chunk
	score float64
}

// Search returns the k chunks most similar to query, best first
func (m *memoryIndex) Search(query []float32, k int) []Chunk {
	if k <= 0 {
		return nil
	}

	m.mu.RLock()
	scored := make([]scoredChunk, 0)
	for _, chunks := range m.chunks {
		for _, c := range chunks {
			scored = append(scored, scoredChunk{chunk: c, score: cosine(query, c.Vector)})
		}
	}
	m.mu.RUnlock()

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		if scored[i].chunk.ItemID != scored[j].chunk.ItemID {
			return scored[i].chunk.ItemID < scored[j].chunk.ItemID
		}
		return scored[i].chunk.Index < scored[j].chunk.Index
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	out := make([]Chunk, len(scored))
	for i, s := range scored {
		out[i] = s.chunk
	}
	return out
}

// cosine returns the cosine similarity of a and b, 0 when either is empty
// or their lengths differ
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
