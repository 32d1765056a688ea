package testutils

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
)

// ErrMockEmbedding is returned by MockEmbedder for FailOn.
var ErrMockEmbedding = errors.New("mock embedding failure")

// DefaultMockEmbedding is what MockEmbedder returns for texts not in
// Embeddings.
var DefaultMockEmbedding = []float32{0.1, 0.2, 0.3}

// MockEmbedder returns canned embeddings and counts calls so tests can
// assert that a cache or a blank-text guard kept the embedder idle.
type MockEmbedder struct {
	// Embeddings maps exact input text to its vector.
	Embeddings map[string][]float32

	// FailOn makes Embed fail for this exact text.
	FailOn string

	calls atomic.Int32
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{Embeddings: map[string][]float32{}}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.calls.Add(1)

	if m.FailOn != "" && m.FailOn == text {
		return nil, ErrMockEmbedding
	}
	if vec, ok := m.Embeddings[text]; ok {
		return slices.Clone(vec), nil
	}
	return slices.Clone(DefaultMockEmbedding), nil
}

// Calls reports how many times Embed ran.
func (m *MockEmbedder) Calls() int {
	return int(m.calls.Load())
}

func (m *MockEmbedder) Close() error { return nil }
