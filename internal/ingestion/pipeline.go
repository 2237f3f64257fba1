package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strconv"

	"github.com/zorbit-ai/askhr-go/internal/logging"
	"github.com/zorbit-ai/askhr-go/internal/rag"
	"github.com/zorbit-ai/askhr-go/internal/store"
)

// Config holds ingestion pipeline settings.
type Config struct {
	// ChunkSize is the target chunk size in estimated tokens.
	// Defaults to DefaultChunkSize if zero.
	ChunkSize int

	// ChunkOverlap is the estimated token overlap between chunks.
	// Defaults to DefaultChunkOverlap if zero.
	ChunkOverlap int

	// Collection is the vector collection name recorded in index entries.
	Collection string
}

// Pipeline orchestrates QA and document ingestion: relational write, chunk,
// embed, vector upsert, with compensation so a half-finished ingest never
// leaves the two stores disagreeing.
type Pipeline struct {
	formatter *Formatter
	splitter  *Splitter
	embedder  rag.Embedder
	vectors   rag.VectorStore
	db        *store.Store
	cfg       *Config
}

// NewPipeline constructs an ingestion pipeline from its dependencies.
func NewPipeline(db *store.Store, vectors rag.VectorStore, embedder rag.Embedder, cfg *Config) (*Pipeline, error) {
	if db == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if vectors == nil {
		return nil, fmt.Errorf("ingestion: vector store must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}

	return &Pipeline{
		formatter: NewFormatter(db),
		splitter:  NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder:  embedder,
		vectors:   vectors,
		db:        db,
		cfg:       cfg,
	}, nil
}

// QAResult reports the outcome of one QA ingest.
type QAResult struct {
	// IDs are the relational row ids of the ingested pairs.
	IDs []int64 `json:"processed"`

	// Unprocessed identifies the records dropped during formatting, by
	// their own id field or their batch position.
	Unprocessed []string `json:"unprocessed"`
}

// IngestQA validates and stores a batch of QA records for the tenant:
// relational rows first, then embedded question vectors. If embedding or
// the vector upsert fails, the relational rows from this call are deleted
// again so neither store holds orphans.
func (p *Pipeline) IngestQA(ctx context.Context, userType string, records []map[string]string) (*QAResult, error) {
	result, err := p.formatter.Format(ctx, userType, records)
	if err != nil {
		return nil, err
	}
	if len(result.Nodes) == 0 {
		return &QAResult{Unprocessed: result.Unprocessed}, nil
	}

	texts := make([]string, len(result.Nodes))
	for i, node := range result.Nodes {
		texts[i] = node.Text
	}

	embeddings, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		p.compensateQA(ctx, result.IDs)
		return nil, fmt.Errorf("ingestion: embed qa batch: %w", err)
	}

	if err := p.vectors.Upsert(ctx, result.Nodes, embeddings); err != nil {
		p.compensateQA(ctx, result.IDs)
		return nil, fmt.Errorf("ingestion: upsert qa batch: %w", err)
	}

	logging.FromContext(ctx).Info("qa batch ingested",
		"tenant", userType,
		"inserted", len(result.IDs),
		"skipped", len(result.Unprocessed))

	return &QAResult{IDs: result.IDs, Unprocessed: result.Unprocessed}, nil
}

// compensateQA deletes relational rows whose vector write never happened.
func (p *Pipeline) compensateQA(ctx context.Context, ids []int64) {
	if err := p.db.DeleteQAPairs(ctx, ids); err != nil {
		logging.FromContext(ctx).Error("qa compensation failed, relational rows are orphaned",
			"ids", ids,
			"error", err)
	}
}

// FileResult reports the outcome of one document ingest. Document chunks
// are all-or-nothing, so a successful call has no unprocessed ids.
type FileResult struct {
	// DocIDs are the chunk ids written to both stores.
	DocIDs []string `json:"processed"`
}

// IngestFile chunks a document, embeds the chunks, and writes them to the
// vector store, the document store, and the index registry. The vector
// write happens first; if the relational registration fails part-way, the
// file's vectors are deleted again.
func (p *Pipeline) IngestFile(ctx context.Context, userType, filename, text string) (*FileResult, error) {
	if userType == "" {
		return nil, fmt.Errorf("ingestion: ingest file without tenant: %w", rag.ErrNoTenant)
	}

	chunks := p.splitter.Split(text)
	if len(chunks) == 0 {
		return &FileResult{}, nil
	}

	nodes := make([]rag.Node, 0, len(chunks))
	for i, chunk := range chunks {
		nodes = append(nodes, rag.Node{
			ID:   chunkID(userType, filename, i),
			Text: chunk,
			Metadata: map[string]string{
				rag.MetaDocID:    chunkID(userType, filename, i),
				rag.MetaUserType: userType,
				rag.MetaFilename: filename,
				"chunk_index":    strconv.Itoa(i),
			},
		})
	}

	embeddings, err := p.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("ingestion: embed file %s: %w", filename, err)
	}

	if err := p.vectors.Upsert(ctx, nodes, embeddings); err != nil {
		return nil, fmt.Errorf("ingestion: upsert file %s: %w", filename, err)
	}

	docIDs := make([]string, 0, len(nodes))
	for _, node := range nodes {
		if err := p.db.PutDocument(ctx, node.ID, userType, filename, node.Text); err != nil {
			p.compensateFile(ctx, userType, filename)
			return nil, fmt.Errorf("ingestion: register document %s: %w", node.ID, err)
		}
		if err := p.db.PutIndexEntry(ctx, node.ID, p.cfg.Collection); err != nil {
			p.compensateFile(ctx, userType, filename)
			return nil, fmt.Errorf("ingestion: register index entry %s: %w", node.ID, err)
		}
		docIDs = append(docIDs, node.ID)
	}

	logging.FromContext(ctx).Info("file ingested",
		"tenant", userType,
		"filename", filename,
		"chunks", len(docIDs))

	return &FileResult{DocIDs: docIDs}, nil
}

// compensateFile removes a file's vectors after its relational
// registration failed.
func (p *Pipeline) compensateFile(ctx context.Context, userType, filename string) {
	if err := p.vectors.DeleteByFile(ctx, userType, filename); err != nil {
		logging.FromContext(ctx).Error("file compensation failed, vectors are orphaned",
			"tenant", userType,
			"filename", filename,
			"error", err)
	}
}

// chunkID derives a deterministic UUID-shaped id for a document chunk from
// its tenant, file name, and position.
func chunkID(userType, filename string, index int) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%s#%s#%d", userType, filename, index))
	return fmt.Sprintf("%x-%x-%x-%x-%x", h[0:4], h[4:6], h[6:8], h[8:10], h[10:16])
}
