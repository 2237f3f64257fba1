package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/zorbit-ai/askhr-go/internal/rag"
)

func Test_Formatter_PartialBatch(t *testing.T) {
	t.Parallel()
	db := newTestStore(t)
	f := NewFormatter(db)

	records := []map[string]string{
		{"question": "How many vacation days?", "answer": "30"},
		{"question": "   ", "answer": "whitespace question"},
		{"answer": "no question field"},
		{"question": "no answer field"},
		{"question": "Is remote work allowed?", "answer": "Yes"},
	}

	result, err := f.Format(context.Background(), "eor", records)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if len(result.IDs) != 2 {
		t.Fatalf("want 2 inserted, got %v", result.IDs)
	}
	if len(result.Unprocessed) != 3 {
		t.Errorf("want 3 unprocessed, got %v", result.Unprocessed)
	}
	// Records without an id field are reported by batch position.
	for i, want := range []string{"1", "2", "3"} {
		if result.Unprocessed[i] != want {
			t.Errorf("unprocessed[%d]: want %q, got %q", i, want, result.Unprocessed[i])
		}
	}
	// Ids stay dense because skipped records never reach the database.
	if result.IDs[0] != 1 || result.IDs[1] != 2 {
		t.Errorf("want ids [1 2], got %v", result.IDs)
	}

	got, err := db.GetQA(context.Background(), 2, "eor")
	if err != nil {
		t.Fatalf("GetQA: %v", err)
	}
	if got.Question != "Is remote work allowed?" {
		t.Errorf("wrong row committed: %q", got.Question)
	}
}

func Test_Formatter_NodeShape(t *testing.T) {
	t.Parallel()
	db := newTestStore(t)
	f := NewFormatter(db)

	records := []map[string]string{
		{"question": "q?", "answer": "a", "client_id": "c-1", "eor_id": "e-1"},
	}
	result, err := f.Format(context.Background(), "eor", records)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	node := result.Nodes[0]
	if node.Text != "Question: q?" {
		t.Errorf("want embedded text with question prefix, got %q", node.Text)
	}
	if node.ID != "1" || node.Metadata[rag.MetaDocID] != "1" {
		t.Errorf("node id must equal the row id, got %q / %q", node.ID, node.Metadata[rag.MetaDocID])
	}
	if node.Metadata[rag.MetaUserType] != "eor" {
		t.Errorf("tenant missing from node metadata")
	}
	if node.Metadata[rag.MetaClientID] != "c-1" || node.Metadata[rag.MetaEORID] != "e-1" {
		t.Errorf("affiliation ids missing from metadata: %v", node.Metadata)
	}
	if _, ok := node.Metadata[rag.MetaAnswer]; ok {
		t.Errorf("answers must stay in the relational store, not the payload")
	}
}

func Test_Formatter_RequiresTenant(t *testing.T) {
	t.Parallel()
	f := NewFormatter(newTestStore(t))

	_, err := f.Format(context.Background(), "", []map[string]string{{"question": "q", "answer": "a"}})
	if !errors.Is(err, rag.ErrNoTenant) {
		t.Fatalf("want ErrNoTenant, got %v", err)
	}
}

func Test_Formatter_AllRecordsInvalid(t *testing.T) {
	t.Parallel()
	f := NewFormatter(newTestStore(t))

	result, err := f.Format(context.Background(), "eor", []map[string]string{
		{"answer": "orphan"},
		{"question": ""},
	})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if len(result.IDs) != 0 || len(result.Unprocessed) != 2 {
		t.Errorf("want empty result with 2 unprocessed, got %+v", result)
	}
}

func Test_Formatter_UnprocessedReportsRecordIDs(t *testing.T) {
	t.Parallel()
	f := NewFormatter(newTestStore(t))

	records := []map[string]string{
		{"id": "q-1", "question": "First?", "answer": "a"},
		{"id": "q-2", "question": "", "answer": "empty question"},
		{"id": "q-3", "question": "Third?", "answer": "c"},
	}
	result, err := f.Format(context.Background(), "eor", records)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if len(result.IDs) != 2 {
		t.Fatalf("want 2 inserted, got %v", result.IDs)
	}
	if len(result.Unprocessed) != 1 || result.Unprocessed[0] != "q-2" {
		t.Errorf("want the rejected record identified as q-2, got %v", result.Unprocessed)
	}
}
