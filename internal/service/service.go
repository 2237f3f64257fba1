// Package service is the facade the HTTP server and CLI program against. It
// wires retrieval, generation, ingestion, and the mutation utilities into one
// tenant-scoped API and owns strategy selection for query answering.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"

	"github.com/zorbit-ai/askhr-go/internal/ingestion"
	"github.com/zorbit-ai/askhr-go/internal/logging"
	"github.com/zorbit-ai/askhr-go/internal/rag"
	"github.com/zorbit-ai/askhr-go/internal/store"
)

// Generation strategies selectable per query request.
const (
	StrategyQuestionAnswer       = "question_answer"
	StrategyInformationCollector = "information_collector"
	StrategyStructuredOutput     = "structured_output"
)

// ErrUnknownStrategy is returned when a query names a strategy that is not
// registered.
var ErrUnknownStrategy = errors.New("unknown generation strategy")

// QueryAnswer pairs the original question with its generated answer.
type QueryAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Failure records why one item of a batch operation was not applied.
type Failure struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

// DeleteResult reports the outcome of a batch QA deletion.
type DeleteResult struct {
	Deleted    []int64   `json:"deleted"`
	NotDeleted []Failure `json:"not_deleted"`
}

// QAUpdate is one requested QA-pair update. An empty Answer keeps the stored
// answer and re-embeds only the question.
type QAUpdate struct {
	ID       int64  `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
}

// UpdateResult reports the outcome of a batch QA update.
type UpdateResult struct {
	Updated    []int64   `json:"updated"`
	NotUpdated []Failure `json:"not_updated"`
}

// FileDeleteResult reports the outcome of deleting files from both stores,
// with per-store lists of chunks that were already missing.
type FileDeleteResult struct {
	DeletedDocIDs       []string `json:"deleted_doc_ids"`
	MissingInDocstore   []string `json:"missing_in_docstore"`
	MissingInIndexstore []string `json:"missing_in_indexstore"`
}

// Config holds the dependencies required to construct a Service.
type Config struct {
	// ChatModel backs the LLM generation strategies.
	ChatModel model.ChatModel //nolint:staticcheck // SA1019: model.ChatModel deprecated upstream

	// Vectors is the vector store shared by retrieval, ingestion, and
	// mutations.
	Vectors rag.VectorStore

	// Embedder converts questions and chunks to vectors.
	Embedder rag.Embedder

	// DB is the relational store for QA pairs, documents, and index entries.
	DB *store.Store

	// TopK is the retrieval depth. Defaults to rag.DefaultTopK if zero.
	TopK int

	// MaxContextTokens bounds the question-answer generation context.
	MaxContextTokens int

	// Ingestion configures chunking and the collection name recorded in
	// index entries.
	Ingestion ingestion.Config
}

// Service implements the produced interface over the wired components.
type Service struct {
	db        *store.Store
	vectors   rag.VectorStore
	pipelines map[string]*rag.Pipeline
	ingest    *ingestion.Pipeline
	mutator   *ingestion.Mutator
}

// answerLookup adapts the relational store to the enrichment post-processor.
type answerLookup struct {
	db *store.Store
}

func (l *answerLookup) Answer(ctx context.Context, docID, tenant string) (string, error) {
	id, err := parseDocID(docID)
	if err != nil {
		return "", err
	}
	pair, err := l.db.GetQA(ctx, id, tenant)
	if err != nil {
		return "", err
	}
	return pair.Answer, nil
}

func parseDocID(docID string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(docID, "%d", &id); err != nil {
		return 0, fmt.Errorf("service: malformed doc id %q: %w", docID, err)
	}
	return id, nil
}

// New constructs a Service with one retrieval pipeline per strategy.
func New(cfg *Config) (*Service, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("service: ChatModel must not be nil")
	}
	if cfg.Vectors == nil || cfg.Embedder == nil || cfg.DB == nil {
		return nil, fmt.Errorf("service: Vectors, Embedder, and DB must not be nil")
	}

	retriever := rag.NewVectorRetriever(cfg.Vectors, cfg.Embedder, cfg.TopK)
	tenantFilter := rag.NewTenantFilter()
	enrichment := rag.NewQAEnrichment(&answerLookup{db: cfg.DB})

	pipelines := map[string]*rag.Pipeline{
		StrategyQuestionAnswer: rag.NewPipeline(
			retriever,
			rag.NewQuestionAnswerGenerator(cfg.ChatModel, cfg.MaxContextTokens),
			tenantFilter, enrichment,
		),
		StrategyInformationCollector: rag.NewPipeline(
			retriever,
			rag.NewInformationCollector(),
			tenantFilter,
		),
		StrategyStructuredOutput: rag.NewPipeline(
			retriever,
			rag.NewStructuredOutputGenerator(cfg.ChatModel),
			tenantFilter, enrichment,
		),
	}

	ingest, err := ingestion.NewPipeline(cfg.DB, cfg.Vectors, cfg.Embedder, &cfg.Ingestion)
	if err != nil {
		return nil, err
	}

	return &Service{
		db:        cfg.DB,
		vectors:   cfg.Vectors,
		pipelines: pipelines,
		ingest:    ingest,
		mutator:   ingestion.NewMutator(cfg.Vectors, cfg.DB, cfg.Embedder),
	}, nil
}

// Pipeline returns the retrieval pipeline for the given strategy, defaulting
// to question-answer when strategy is empty.
func (s *Service) Pipeline(strategy string) (*rag.Pipeline, error) {
	if strategy == "" {
		strategy = StrategyQuestionAnswer
	}
	p, ok := s.pipelines[strategy]
	if !ok {
		return nil, fmt.Errorf("service: %q: %w", strategy, ErrUnknownStrategy)
	}
	return p, nil
}

// Query answers a batch of questions for one tenant using the named strategy.
// Questions are keyed by a caller-chosen id; the result maps each id to its
// question and generated answer. Per-question failures abort the batch.
func (s *Service) Query(ctx context.Context, tenant string, queries map[string]string, strategy string) (map[string]QueryAnswer, error) {
	if tenant == "" {
		return nil, rag.ErrNoTenant
	}
	pipeline, err := s.Pipeline(strategy)
	if err != nil {
		return nil, err
	}

	answers := make(map[string]QueryAnswer, len(queries))
	for id, question := range queries {
		result, err := pipeline.Query(ctx, question, tenant)
		if err != nil {
			return nil, fmt.Errorf("service: query %s: %w", id, err)
		}
		answers[id] = QueryAnswer{Question: question, Answer: result.Answer}
	}
	return answers, nil
}

// IngestQA formats, embeds, and stores a batch of Q&A records for the tenant.
func (s *Service) IngestQA(ctx context.Context, tenant string, records []map[string]string) (*ingestion.QAResult, error) {
	return s.ingest.IngestQA(ctx, tenant, records)
}

// IngestFile chunks, embeds, and stores one document file for the tenant.
func (s *Service) IngestFile(ctx context.Context, tenant, filename, text string) (*ingestion.FileResult, error) {
	return s.ingest.IngestFile(ctx, tenant, filename, text)
}

// DeleteQA deletes QA pairs by id for the tenant. Per-id failures are
// reported in NotDeleted with the failure reason; the batch never aborts.
func (s *Service) DeleteQA(ctx context.Context, tenant string, ids []int64) (*DeleteResult, error) {
	if tenant == "" {
		return nil, rag.ErrNoTenant
	}
	log := logging.FromContext(ctx)

	result := &DeleteResult{}
	for _, id := range ids {
		if err := s.mutator.DeleteQA(ctx, id, tenant); err != nil {
			log.Warn("service: delete qa pair failed",
				slog.Int64("id", id), slog.Any("error", err))
			result.NotDeleted = append(result.NotDeleted, Failure{ID: id, Reason: err.Error()})
			continue
		}
		result.Deleted = append(result.Deleted, id)
	}
	return result, nil
}

// UpdateQA updates QA pairs for the tenant, re-embedding each changed
// question. Per-id failures are reported in NotUpdated; the batch never
// aborts.
func (s *Service) UpdateQA(ctx context.Context, tenant string, updates []QAUpdate) (*UpdateResult, error) {
	if tenant == "" {
		return nil, rag.ErrNoTenant
	}
	log := logging.FromContext(ctx)

	result := &UpdateResult{}
	for _, u := range updates {
		answer := u.Answer
		if answer == "" {
			pair, err := s.db.GetQA(ctx, u.ID, tenant)
			if err != nil {
				log.Warn("service: update qa pair failed",
					slog.Int64("id", u.ID), slog.Any("error", err))
				result.NotUpdated = append(result.NotUpdated, Failure{ID: u.ID, Reason: err.Error()})
				continue
			}
			answer = pair.Answer
		}
		if err := s.mutator.UpdateQA(ctx, u.ID, tenant, u.Question, answer); err != nil {
			log.Warn("service: update qa pair failed",
				slog.Int64("id", u.ID), slog.Any("error", err))
			result.NotUpdated = append(result.NotUpdated, Failure{ID: u.ID, Reason: err.Error()})
			continue
		}
		result.Updated = append(result.Updated, u.ID)
	}
	return result, nil
}

// DeleteByFile removes every chunk of the named files from both stores for
// the tenant. If no file matches any chunk at all, the error wraps
// rag.ErrNotFound.
func (s *Service) DeleteByFile(ctx context.Context, tenant string, filenames []string) (*FileDeleteResult, error) {
	if tenant == "" {
		return nil, rag.ErrNoTenant
	}

	result := &FileDeleteResult{}
	matched := false
	for _, filename := range filenames {
		deletion, err := s.mutator.DeleteFile(ctx, tenant, filename)
		if err != nil {
			if errors.Is(err, rag.ErrNotFound) {
				continue
			}
			return nil, err
		}
		matched = true
		result.DeletedDocIDs = append(result.DeletedDocIDs, deletion.DocIDs...)
		result.MissingInDocstore = append(result.MissingInDocstore, deletion.MissingDocuments...)
		result.MissingInIndexstore = append(result.MissingInIndexstore, deletion.MissingIndexEntries...)
	}
	if !matched {
		return nil, fmt.Errorf("service: no chunks found for any of the given files: %w", rag.ErrNotFound)
	}

	result.DeletedDocIDs = dedupe(result.DeletedDocIDs)
	result.MissingInDocstore = dedupe(result.MissingInDocstore)
	result.MissingInIndexstore = dedupe(result.MissingInIndexstore)
	return result, nil
}

// dedupe removes duplicates while preserving first-seen order.
func dedupe(in []string) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
