package store

import (
	"context"
	"errors"
	"testing"

	"github.com/zorbit-ai/askhr-go/internal/rag"
)

// newTestStore opens an in-memory database for one test.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func pair(question, answer string) QAPair {
	return QAPair{Question: question, Answer: answer, UserType: "eor"}
}

func Test_QABatch_SequentialIDs(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	batch, err := s.BeginQABatch(ctx)
	if err != nil {
		t.Fatalf("BeginQABatch: %v", err)
	}
	for i, q := range []string{"first?", "second?", "third?"} {
		id, err := batch.Insert(ctx, pair(q, "a"))
		if err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
		if id != int64(i+1) {
			t.Errorf("want id %d, got %d", i+1, id)
		}
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := s.GetQA(ctx, 2, "eor")
	if err != nil {
		t.Fatalf("GetQA: %v", err)
	}
	if got.Question != "second?" {
		t.Errorf("want second row, got %q", got.Question)
	}
}

func Test_QABatch_FailedInsertDoesNotPoisonBatch(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	batch, err := s.BeginQABatch(ctx)
	if err != nil {
		t.Fatalf("BeginQABatch: %v", err)
	}

	if _, err := batch.Insert(ctx, pair("first?", "a")); err != nil {
		t.Fatalf("Insert first: %v", err)
	}
	// Empty question violates the schema check and must only roll back this row.
	if _, err := batch.Insert(ctx, pair("", "a")); err == nil {
		t.Fatal("want error for empty question")
	}
	id, err := batch.Insert(ctx, pair("third?", "a"))
	if err != nil {
		t.Fatalf("Insert after failure: %v", err)
	}
	// The id burned by the failed insert is reused.
	if id != 2 {
		t.Errorf("want reused id 2 after sequence rewind, got %d", id)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if got := batch.IDs(); len(got) != 2 {
		t.Errorf("want 2 committed ids, got %v", got)
	}
	if _, err := s.GetQA(ctx, 1, "eor"); err != nil {
		t.Errorf("row before the failure lost: %v", err)
	}
}

func Test_QABatch_RollbackDiscardsAll(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	batch, err := s.BeginQABatch(ctx)
	if err != nil {
		t.Fatalf("BeginQABatch: %v", err)
	}
	if _, err := batch.Insert(ctx, pair("q?", "a")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := batch.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if _, err := s.GetQA(ctx, 1, "eor"); !errors.Is(err, rag.ErrNotFound) {
		t.Errorf("rolled back row still visible: %v", err)
	}
}

func Test_DeleteQAPairs_RewindsSequence(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	batch, _ := s.BeginQABatch(ctx)
	for _, q := range []string{"a?", "b?", "c?"} {
		if _, err := batch.Insert(ctx, pair(q, "")); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := s.DeleteQAPairs(ctx, []int64{1, 2, 3}); err != nil {
		t.Fatalf("DeleteQAPairs: %v", err)
	}

	batch2, _ := s.BeginQABatch(ctx)
	id, err := batch2.Insert(ctx, pair("fresh?", ""))
	if err != nil {
		t.Fatalf("Insert after compensation: %v", err)
	}
	if id != 1 {
		t.Errorf("want sequence rewound to 1, got %d", id)
	}
	if err := batch2.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func Test_GetQA_TenantScoped(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	batch, _ := s.BeginQABatch(ctx)
	if _, err := batch.Insert(ctx, pair("q?", "a")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := s.GetQA(ctx, 1, "contractor"); !errors.Is(err, rag.ErrNotFound) {
		t.Errorf("foreign tenant must not see the row, got %v", err)
	}
	if _, err := s.GetQA(ctx, 1, "eor"); err != nil {
		t.Errorf("owning tenant: %v", err)
	}
}

func Test_DeleteQA_NotFoundOnRepeat(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	batch, _ := s.BeginQABatch(ctx)
	if _, err := batch.Insert(ctx, pair("q?", "a")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := s.DeleteQA(ctx, 1, "eor"); err != nil {
		t.Fatalf("DeleteQA: %v", err)
	}
	if err := s.DeleteQA(ctx, 1, "eor"); !errors.Is(err, rag.ErrNotFound) {
		t.Errorf("second delete must report not found, got %v", err)
	}
}

func Test_UpdateQA(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	batch, _ := s.BeginQABatch(ctx)
	if _, err := batch.Insert(ctx, pair("old?", "old")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := s.UpdateQA(ctx, 1, "eor", "new?", "new"); err != nil {
		t.Fatalf("UpdateQA: %v", err)
	}
	got, err := s.GetQA(ctx, 1, "eor")
	if err != nil {
		t.Fatalf("GetQA: %v", err)
	}
	if got.Question != "new?" || got.Answer != "new" {
		t.Errorf("update not applied: %+v", got)
	}

	if err := s.UpdateQA(ctx, 99, "eor", "x", "y"); !errors.Is(err, rag.ErrNotFound) {
		t.Errorf("missing row must report not found, got %v", err)
	}
}

func Test_DocumentAndIndexEntries(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.PutDocument(ctx, "doc-1", "eor", "handbook.json", "chunk text"); err != nil {
		t.Fatalf("PutDocument: %v", err)
	}
	if err := s.PutIndexEntry(ctx, "doc-1", "askhr"); err != nil {
		t.Fatalf("PutIndexEntry: %v", err)
	}

	if err := s.DeleteDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if err := s.DeleteDocument(ctx, "doc-1"); !errors.Is(err, rag.ErrNotFound) {
		t.Errorf("missing document must report not found, got %v", err)
	}

	if err := s.DeleteIndexEntry(ctx, "doc-1"); err != nil {
		t.Fatalf("DeleteIndexEntry: %v", err)
	}
	if err := s.DeleteIndexEntry(ctx, "doc-1"); !errors.Is(err, rag.ErrNotFound) {
		t.Errorf("missing index entry must report not found, got %v", err)
	}
}

func Test_History_AppendAndRecent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	for _, content := range []string{"one", "two", "three"} {
		if err := s.AppendMessage(ctx, "session-a", RoleUser, content); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}
	if err := s.AppendMessage(ctx, "session-b", RoleUser, "other session"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	msgs, err := s.RecentMessages(ctx, "session-a", 2)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("want 2 messages, got %d", len(msgs))
	}
	// Tail of the conversation, oldest-first.
	if msgs[0].Content != "two" || msgs[1].Content != "three" {
		t.Errorf("wrong window: %q %q", msgs[0].Content, msgs[1].Content)
	}
}
