package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/zorbit-ai/askhr-go/internal/rag"
)

func Test_Pipeline_IngestQA(t *testing.T) {
	t.Parallel()
	db := newTestStore(t)
	vectors := newFakeVectors()
	p, err := NewPipeline(db, vectors, &fakeEmbedder{dim: 4}, &Config{Collection: "askhr"})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	result, err := p.IngestQA(context.Background(), "eor", []map[string]string{
		{"question": "vacation days?", "answer": "30"},
		{"question": "remote work?", "answer": "yes"},
	})
	if err != nil {
		t.Fatalf("IngestQA: %v", err)
	}
	if len(result.IDs) != 2 {
		t.Fatalf("want 2 ids, got %v", result.IDs)
	}
	if len(vectors.upserted) != 2 {
		t.Fatalf("want 2 vector points, got %d", len(vectors.upserted))
	}
	if vectors.upserted[0].ID != "1" {
		t.Errorf("vector point id must match row id, got %q", vectors.upserted[0].ID)
	}
}

func Test_Pipeline_IngestQA_EmbedFailureCompensates(t *testing.T) {
	t.Parallel()
	db := newTestStore(t)
	vectors := newFakeVectors()
	p, _ := NewPipeline(db, vectors, &fakeEmbedder{err: errors.New("backend down")}, nil)

	_, err := p.IngestQA(context.Background(), "eor", []map[string]string{
		{"question": "q?", "answer": "a"},
	})
	if err == nil {
		t.Fatal("want embed error")
	}

	// The committed row is compensated away and its id reclaimed.
	if _, err := db.GetQA(context.Background(), 1, "eor"); !errors.Is(err, rag.ErrNotFound) {
		t.Errorf("orphaned relational row survived: %v", err)
	}

	p2, _ := NewPipeline(db, vectors, &fakeEmbedder{dim: 4}, nil)
	result, err := p2.IngestQA(context.Background(), "eor", []map[string]string{
		{"question": "retry?", "answer": "a"},
	})
	if err != nil {
		t.Fatalf("retry IngestQA: %v", err)
	}
	if result.IDs[0] != 1 {
		t.Errorf("want id 1 reused after compensation, got %d", result.IDs[0])
	}
}

func Test_Pipeline_IngestQA_UpsertFailureCompensates(t *testing.T) {
	t.Parallel()
	db := newTestStore(t)
	vectors := newFakeVectors()
	vectors.upsertErr = rag.ErrStorageUnavailable
	p, _ := NewPipeline(db, vectors, &fakeEmbedder{dim: 4}, nil)

	_, err := p.IngestQA(context.Background(), "eor", []map[string]string{
		{"question": "q?", "answer": "a"},
	})
	if !errors.Is(err, rag.ErrStorageUnavailable) {
		t.Fatalf("want storage error, got %v", err)
	}
	if _, err := db.GetQA(context.Background(), 1, "eor"); !errors.Is(err, rag.ErrNotFound) {
		t.Errorf("orphaned relational row survived: %v", err)
	}
}

func Test_Pipeline_IngestQA_OnlySkippedRecords(t *testing.T) {
	t.Parallel()
	db := newTestStore(t)
	vectors := newFakeVectors()
	p, _ := NewPipeline(db, vectors, &fakeEmbedder{dim: 4}, nil)

	result, err := p.IngestQA(context.Background(), "eor", []map[string]string{
		{"answer": "no question"},
	})
	if err != nil {
		t.Fatalf("IngestQA: %v", err)
	}
	if len(result.Unprocessed) != 1 || result.Unprocessed[0] != "0" || len(result.IDs) != 0 {
		t.Errorf("want all records unprocessed, got %+v", result)
	}
	if len(vectors.upserted) != 0 {
		t.Errorf("no vectors expected for an all-skipped batch")
	}
}

func Test_Pipeline_IngestFile(t *testing.T) {
	t.Parallel()
	db := newTestStore(t)
	vectors := newFakeVectors()
	p, _ := NewPipeline(db, vectors, &fakeEmbedder{dim: 4}, &Config{Collection: "askhr"})

	result, err := p.IngestFile(context.Background(), "eor", "handbook.txt",
		"Employees get 30 vacation days. Remote work is allowed.")
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if len(result.DocIDs) == 0 {
		t.Fatal("want at least one chunk")
	}
	if len(vectors.upserted) != len(result.DocIDs) {
		t.Errorf("vector/relational chunk counts differ: %d vs %d",
			len(vectors.upserted), len(result.DocIDs))
	}
	if vectors.upserted[0].Metadata[rag.MetaFilename] != "handbook.txt" {
		t.Errorf("filename missing from payload: %v", vectors.upserted[0].Metadata)
	}

	// Registered chunks can be deleted again, proving both tables were written.
	for _, docID := range result.DocIDs {
		if err := db.DeleteDocument(context.Background(), docID); err != nil {
			t.Errorf("document %s not registered: %v", docID, err)
		}
		if err := db.DeleteIndexEntry(context.Background(), docID); err != nil {
			t.Errorf("index entry %s not registered: %v", docID, err)
		}
	}
}

func Test_Pipeline_IngestFile_RequiresTenant(t *testing.T) {
	t.Parallel()
	p, _ := NewPipeline(newTestStore(t), newFakeVectors(), &fakeEmbedder{dim: 4}, nil)

	_, err := p.IngestFile(context.Background(), "", "f.txt", "text.")
	if !errors.Is(err, rag.ErrNoTenant) {
		t.Fatalf("want ErrNoTenant, got %v", err)
	}
}

func Test_Pipeline_IngestFile_EmptyText(t *testing.T) {
	t.Parallel()
	vectors := newFakeVectors()
	p, _ := NewPipeline(newTestStore(t), vectors, &fakeEmbedder{dim: 4}, nil)

	result, err := p.IngestFile(context.Background(), "eor", "empty.txt", "   ")
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if len(result.DocIDs) != 0 || len(vectors.upserted) != 0 {
		t.Errorf("blank file must be a no-op")
	}
}

func Test_ChunkID_Deterministic(t *testing.T) {
	t.Parallel()
	a := chunkID("eor", "handbook.txt", 0)
	b := chunkID("eor", "handbook.txt", 0)
	c := chunkID("eor", "handbook.txt", 1)
	d := chunkID("contractor", "handbook.txt", 0)

	if a != b {
		t.Errorf("same inputs must give same id: %s vs %s", a, b)
	}
	if a == c || a == d {
		t.Errorf("different inputs must give different ids")
	}
	if len(a) != 36 {
		t.Errorf("want uuid-shaped id, got %q", a)
	}
}
