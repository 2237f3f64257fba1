package ingestion

import (
	"context"
	"fmt"

	"github.com/zorbit-ai/askhr-go/internal/rag"
	"github.com/zorbit-ai/askhr-go/internal/store"
)

// newTestStore opens an in-memory relational store for one test.
func newTestStore(t interface {
	Helper()
	Fatalf(string, ...any)
	Cleanup(func())
}) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// fakeEmbedder returns zero vectors, or fails when err is set.
type fakeEmbedder struct {
	dim int
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

// fakeVectors records vector store calls and injects failures per method.
type fakeVectors struct {
	points map[string]*rag.PointRecord

	upsertErr   error
	fetchErr    error
	deleteErr   error
	restoreErr  error
	updateErr   error
	scrollErr   error
	scrollIDs   []string
	deleteFiles []string

	upserted  []rag.Node
	deleted   []string
	restored  []*rag.PointRecord
	updated   []string
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{points: make(map[string]*rag.PointRecord)}
}

func (f *fakeVectors) Upsert(_ context.Context, nodes []rag.Node, _ [][]float32) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, nodes...)
	return nil
}

func (f *fakeVectors) Search(context.Context, []float32, string, int) ([]rag.Node, error) {
	return nil, nil
}

func (f *fakeVectors) FetchPoint(_ context.Context, docID, tenant string) (*rag.PointRecord, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	rec, ok := f.points[docID]
	if !ok {
		return nil, fmt.Errorf("fake: point %s for %s: %w", docID, tenant, rag.ErrNotFound)
	}
	return rec, nil
}

func (f *fakeVectors) Restore(_ context.Context, rec *rag.PointRecord) error {
	if f.restoreErr != nil {
		return f.restoreErr
	}
	f.restored = append(f.restored, rec)
	return nil
}

func (f *fakeVectors) UpdatePoint(_ context.Context, rec *rag.PointRecord, text string, _ []float32) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = append(f.updated, rec.ID+":"+text)
	return nil
}

func (f *fakeVectors) DeleteByDoc(_ context.Context, docID, _ string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, docID)
	return nil
}

func (f *fakeVectors) ScrollDocIDs(context.Context, string, string) ([]string, error) {
	if f.scrollErr != nil {
		return nil, f.scrollErr
	}
	return f.scrollIDs, nil
}

func (f *fakeVectors) DeleteByFile(_ context.Context, _, filename string) error {
	f.deleteFiles = append(f.deleteFiles, filename)
	return nil
}

func (f *fakeVectors) Close() error { return nil }

// fakeRelStore injects relational failures for mutation tests.
type fakeRelStore struct {
	deleteQAErr    error
	updateQAErr    error
	missingDocs    map[string]bool
	missingEntries map[string]bool

	deletedQA []int64
	updatedQA []int64
}

func (f *fakeRelStore) DeleteQA(_ context.Context, id int64, _ string) error {
	if f.deleteQAErr != nil {
		return f.deleteQAErr
	}
	f.deletedQA = append(f.deletedQA, id)
	return nil
}

func (f *fakeRelStore) UpdateQA(_ context.Context, id int64, _, _, _ string) error {
	if f.updateQAErr != nil {
		return f.updateQAErr
	}
	f.updatedQA = append(f.updatedQA, id)
	return nil
}

func (f *fakeRelStore) DeleteDocument(_ context.Context, docID string) error {
	if f.missingDocs[docID] {
		return fmt.Errorf("fake: document %s: %w", docID, rag.ErrNotFound)
	}
	return nil
}

func (f *fakeRelStore) DeleteIndexEntry(_ context.Context, docID string) error {
	if f.missingEntries[docID] {
		return fmt.Errorf("fake: index entry %s: %w", docID, rag.ErrNotFound)
	}
	return nil
}
