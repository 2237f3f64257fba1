package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/zorbit-ai/askhr-go/internal/logging"
	"github.com/zorbit-ai/askhr-go/internal/rag"
)

// relStore is the relational surface the mutation protocol needs. It is
// satisfied by *store.Store and narrowed here so tests can inject failures.
type relStore interface {
	DeleteQA(ctx context.Context, id int64, tenant string) error
	UpdateQA(ctx context.Context, id int64, tenant, question, answer string) error
	DeleteDocument(ctx context.Context, docID string) error
	DeleteIndexEntry(ctx context.Context, docID string) error
}

// Mutator coordinates destructive updates across the vector store and the
// relational store. The protocol is backup, vector write, relational write;
// a failed relational write restores the vector side from the backup so the
// two stores never disagree about whether a record exists.
type Mutator struct {
	vectors  rag.VectorStore
	db       relStore
	embedder rag.Embedder
}

// NewMutator creates a Mutator over the given stores and embedder.
func NewMutator(vectors rag.VectorStore, db relStore, embedder rag.Embedder) *Mutator {
	return &Mutator{vectors: vectors, db: db, embedder: embedder}
}

// DeleteQA removes a QA pair from both stores. The vector point is backed
// up first and restored if the relational delete fails.
func (m *Mutator) DeleteQA(ctx context.Context, id int64, tenant string) error {
	docID := strconv.FormatInt(id, 10)

	backup, err := m.vectors.FetchPoint(ctx, docID, tenant)
	if err != nil {
		return fmt.Errorf("ingestion: delete qa %d: %w", id, err)
	}

	if err := m.vectors.DeleteByDoc(ctx, docID, tenant); err != nil {
		return fmt.Errorf("ingestion: delete qa %d from vector store: %w", id, err)
	}

	if err := m.db.DeleteQA(ctx, id, tenant); err != nil {
		if restoreErr := m.vectors.Restore(ctx, backup); restoreErr != nil {
			return fmt.Errorf("ingestion: relational delete of qa %d failed and vector restore also failed (%v): %w",
				id, restoreErr, err)
		}
		return fmt.Errorf("ingestion: relational delete of qa %d failed, vector point restored: %w", id, err)
	}

	return nil
}

// UpdateQA rewrites a QA pair in both stores. The question is re-embedded
// and the vector point is re-upserted with its payload carried over; if the
// relational update then fails, the original point is restored.
func (m *Mutator) UpdateQA(ctx context.Context, id int64, tenant, question, answer string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return fmt.Errorf("ingestion: update qa %d: empty question", id)
	}
	docID := strconv.FormatInt(id, 10)

	backup, err := m.vectors.FetchPoint(ctx, docID, tenant)
	if err != nil {
		return fmt.Errorf("ingestion: update qa %d: %w", id, err)
	}

	embeddings, err := m.embedder.Embed(ctx, []string{qaText(question)})
	if err != nil {
		return fmt.Errorf("ingestion: embed updated question for qa %d: %w", id, err)
	}
	if len(embeddings) == 0 {
		return fmt.Errorf("ingestion: embedder returned no vector for qa %d", id)
	}

	if err := m.vectors.UpdatePoint(ctx, backup, qaText(question), embeddings[0]); err != nil {
		return fmt.Errorf("ingestion: update qa %d in vector store: %w", id, err)
	}

	if err := m.db.UpdateQA(ctx, id, tenant, question, strings.TrimSpace(answer)); err != nil {
		if restoreErr := m.vectors.Restore(ctx, backup); restoreErr != nil {
			return fmt.Errorf("ingestion: relational update of qa %d failed and vector restore also failed (%v): %w",
				id, restoreErr, err)
		}
		return fmt.Errorf("ingestion: relational update of qa %d failed, vector point restored: %w", id, err)
	}

	return nil
}

// FileDeletion reports what a DeleteFile call removed and which chunks were
// already missing from the relational registries.
type FileDeletion struct {
	// DocIDs are the chunk ids found in the vector store for the file.
	DocIDs []string

	// MissingDocuments lists chunk ids absent from the document store.
	MissingDocuments []string

	// MissingIndexEntries lists chunk ids absent from the index registry.
	MissingIndexEntries []string
}

// DeleteFile removes every chunk of a file from the vector store, the
// document store, and the index registry. Returns an error wrapping
// rag.ErrNotFound when the file has no chunks at all. Chunks missing from a
// relational registry are collected rather than aborting the cleanup.
func (m *Mutator) DeleteFile(ctx context.Context, tenant, filename string) (*FileDeletion, error) {
	docIDs, err := m.vectors.ScrollDocIDs(ctx, tenant, filename)
	if err != nil {
		return nil, fmt.Errorf("ingestion: scan file %s: %w", filename, err)
	}
	if len(docIDs) == 0 {
		return nil, fmt.Errorf("ingestion: file %s for tenant %s: %w", filename, tenant, rag.ErrNotFound)
	}

	if err := m.vectors.DeleteByFile(ctx, tenant, filename); err != nil {
		return nil, fmt.Errorf("ingestion: delete file %s from vector store: %w", filename, err)
	}

	logger := logging.FromContext(ctx)
	result := &FileDeletion{DocIDs: docIDs}

	for _, docID := range docIDs {
		if err := m.db.DeleteDocument(ctx, docID); err != nil {
			if !errors.Is(err, rag.ErrNotFound) {
				logger.Error("document cleanup failed", "doc_id", docID, "error", err)
			}
			result.MissingDocuments = append(result.MissingDocuments, docID)
		}
		if err := m.db.DeleteIndexEntry(ctx, docID); err != nil {
			if !errors.Is(err, rag.ErrNotFound) {
				logger.Error("index entry cleanup failed", "doc_id", docID, "error", err)
			}
			result.MissingIndexEntries = append(result.MissingIndexEntries, docID)
		}
	}

	if len(result.MissingDocuments) > 0 || len(result.MissingIndexEntries) > 0 {
		logger.Warn("file deletion found unregistered chunks",
			"filename", filename,
			"missing_documents", len(result.MissingDocuments),
			"missing_index_entries", len(result.MissingIndexEntries))
	}

	return result, nil
}
