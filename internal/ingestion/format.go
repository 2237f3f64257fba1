// Package ingestion implements the knowledge-base ingestion pipelines and
// the coordinated mutation operations. QA records are written to the
// relational store first so the auto-increment row id can serve as the
// vector point id; document files are chunked, embedded, and registered in
// the document and index tables alongside the vector collection.
package ingestion

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/zorbit-ai/askhr-go/internal/logging"
	"github.com/zorbit-ai/askhr-go/internal/rag"
	"github.com/zorbit-ai/askhr-go/internal/store"
)

// Record field names required of every QA record.
const (
	fieldQuestion = "question"
	fieldAnswer   = "answer"
)

// qaText renders the text body embedded for a QA question.
func qaText(question string) string {
	return "Question: " + question
}

// FormatResult reports the outcome of formatting one batch of QA records.
type FormatResult struct {
	// Nodes are the question nodes ready for embedding, parallel to IDs.
	Nodes []rag.Node

	// IDs are the relational row ids assigned to the committed records.
	IDs []int64

	// Unprocessed identifies records dropped for validation or insert
	// failures, by their own id field or their batch position, so the
	// caller can retry exactly those records.
	Unprocessed []string
}

// Formatter validates raw QA records and writes them to the relational
// store, producing embedding-ready question nodes. Each record is isolated:
// a bad record is skipped without losing its neighbours, and the batch is
// committed once at the end.
type Formatter struct {
	db *store.Store
}

// NewFormatter creates a Formatter over the given store.
func NewFormatter(db *store.Store) *Formatter {
	return &Formatter{db: db}
}

// Format inserts the given records for the tenant and returns the resulting
// nodes. Records missing a required field, or with an empty question after
// trimming, are skipped. Insert failures roll back only the failing record
// and rewind the id sequence. If the final commit fails, every row inserted
// by this call is compensated away and the error is returned.
func (f *Formatter) Format(ctx context.Context, userType string, records []map[string]string) (*FormatResult, error) {
	if userType == "" {
		return nil, fmt.Errorf("ingestion: format without tenant: %w", rag.ErrNoTenant)
	}

	logger := logging.FromContext(ctx)
	result := &FormatResult{}

	batch, err := f.db.BeginQABatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingestion: begin qa batch: %w", err)
	}

	for i, rec := range records {
		question, answer, err := validateRecord(rec)
		if err != nil {
			logger.Warn("skipping qa record", "record", recordRef(rec, i), "reason", err)
			result.Unprocessed = append(result.Unprocessed, recordRef(rec, i))
			continue
		}

		pair := store.QAPair{
			Question:     question,
			Answer:       answer,
			UserType:     userType,
			ClientID:     rec["client_id"],
			EORID:        rec["eor_id"],
			ContractorID: rec["contractor_id"],
		}
		id, err := batch.Insert(ctx, pair)
		if err != nil {
			logger.Error("skipping qa record, insert failed", "record", recordRef(rec, i), "error", err)
			result.Unprocessed = append(result.Unprocessed, recordRef(rec, i))
			continue
		}

		node := rag.Node{
			ID:   strconv.FormatInt(id, 10),
			Text: qaText(question),
			Metadata: map[string]string{
				rag.MetaDocID:    strconv.FormatInt(id, 10),
				rag.MetaUserType: userType,
			},
		}
		for _, key := range []string{rag.MetaClientID, rag.MetaEORID, rag.MetaContractorID} {
			if v := rec[key]; v != "" {
				node.Metadata[key] = v
			}
		}

		result.Nodes = append(result.Nodes, node)
		result.IDs = append(result.IDs, id)
	}

	if err := batch.Commit(); err != nil {
		// The rows never became durable, but the id sequence may have
		// advanced; compensate and rewind before surfacing the error.
		_ = batch.Rollback()
		if compErr := f.db.DeleteQAPairs(ctx, result.IDs); compErr != nil {
			logger.Error("compensation after failed commit also failed", "error", compErr)
		}
		return nil, fmt.Errorf("ingestion: commit qa batch: %w", err)
	}

	return result, nil
}

// recordRef identifies a record for the unprocessed list: its own id or
// doc_id field when present, its batch position otherwise.
func recordRef(rec map[string]string, index int) string {
	if id := rec["id"]; id != "" {
		return id
	}
	if id := rec[rag.MetaDocID]; id != "" {
		return id
	}
	return strconv.Itoa(index)
}

// validateRecord checks the required fields and returns the trimmed
// question and answer.
func validateRecord(rec map[string]string) (question, answer string, err error) {
	q, ok := rec[fieldQuestion]
	if !ok {
		return "", "", fmt.Errorf("missing required field %q", fieldQuestion)
	}
	a, ok := rec[fieldAnswer]
	if !ok {
		return "", "", fmt.Errorf("missing required field %q", fieldAnswer)
	}
	q = strings.TrimSpace(q)
	if q == "" {
		return "", "", fmt.Errorf("empty question")
	}
	return q, strings.TrimSpace(a), nil
}
