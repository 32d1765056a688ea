package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/mnemo/pkg/vector"
)

// MockVectorDriver is a test vector driver. Query returns Results when set,
// otherwise every stored document with a score of 1.
type MockVectorDriver struct {
	mu        sync.Mutex
	documents map[string]vector.Document

	// Results overrides what Query returns.
	Results []vector.QueryResult

	// QueriedTopK records the topK of the last Query call.
	QueriedTopK int

	// FailQuery causes Query to return an error.
	FailQuery error
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{
		documents: make(map[string]vector.Document),
	}
}

func (m *MockVectorDriver) Add(_ context.Context, docs []vector.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		m.documents[d.ID] = d
	}
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, _ []float32, topK int) ([]vector.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.QueriedTopK = topK
	if m.FailQuery != nil {
		return nil, m.FailQuery
	}

	results := m.Results
	if results == nil {
		for _, d := range m.documents {
			results = append(results, vector.QueryResult{Document: d, Score: 1})
		}
	}
	if len(results) < topK {
		return results, nil
	}
	return results[:topK], nil
}

func (m *MockVectorDriver) Get(_ context.Context, ids []string) ([]vector.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var docs []vector.Document
	for _, id := range ids {
		if d, ok := m.documents[id]; ok {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

func (m *MockVectorDriver) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.documents, id)
	}
	return nil
}

// Len returns the number of stored documents.
func (m *MockVectorDriver) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.documents)
}

func (m *MockVectorDriver) Close() error {
	return nil
}
