// Package rag implements the tenant-scoped retrieval-and-generation engine:
// vector storage, tenant-filtered retrieval, node post-processing, and the
// three response generators. Concrete backends (Qdrant, SQLite, LLM
// providers) satisfy the interfaces here so the service layer never depends
// on a specific vendor.
package rag

import (
	"context"
)

// Metadata keys shared between the vector store payload and node metadata.
// Every node persisted to the vector store MUST carry MetaUserType; it is
// the sole enforcement point for tenant isolation at read time.
const (
	// MetaUserType is the tenant discriminator.
	MetaUserType = "user_type"

	// MetaDocID is the canonical document/QA-row identifier. For Q&A nodes it
	// equals the relational row's primary key.
	MetaDocID = "doc_id"

	// MetaClientID, MetaEORID, and MetaContractorID are optional affiliation
	// identifiers carried alongside the tenant discriminator.
	MetaClientID     = "client_id"
	MetaEORID        = "eor_id"
	MetaContractorID = "contractor_id"

	// MetaFilename is the source file name for file-based nodes.
	MetaFilename = "filename"

	// MetaAnswer holds the canonical answer copied in by the enrichment
	// post-processor.
	MetaAnswer = "answer"
)

// Node is a unit of retrievable text plus metadata, the atomic object
// flowing through retrieval, post-processing, and generation.
type Node struct {
	// ID is the stable identifier for this node. For Q&A nodes it equals the
	// relational row id; for document chunks it is a deterministic chunk id.
	ID string

	// Text is the body used for embedding and display.
	Text string

	// Metadata holds the tenant discriminator, source ids, and enrichment
	// fields. See the Meta* constants for well-known keys.
	Metadata map[string]string

	// Score is the similarity score assigned during retrieval (0.0 to 1.0).
	// Zero value means the score was not computed.
	Score float32
}

// Tenant returns the node's tenant discriminator, or "" if absent.
func (n Node) Tenant() string {
	return n.Metadata[MetaUserType]
}

// PointRecord is a full backup of a vector point (id, vector, payload) taken
// before a destructive operation so the point can be restored if the paired
// relational write fails.
type PointRecord struct {
	// ID is the point id as stored in the vector database.
	ID string

	// Vector is the point's embedding.
	Vector []float32

	// Payload is the point's full payload, keyed by metadata name. The text
	// body is stored under the "content" key.
	Payload map[string]string
}

// VectorStore is the interface for persisting and searching embeddings.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or updates a batch of nodes with their pre-computed
	// embeddings. embeddings[i] is the vector for nodes[i].
	Upsert(ctx context.Context, nodes []Node, embeddings [][]float32) error

	// Search performs a similarity search restricted to the given tenant via
	// a server-side exact-match filter, returning the top-k nodes ordered by
	// descending score.
	Search(ctx context.Context, queryEmbedding []float32, tenant string, topK int) ([]Node, error)

	// FetchPoint returns a full backup of the single point matching
	// (docID, tenant), or an error wrapping ErrNotFound if no point matches.
	FetchPoint(ctx context.Context, docID, tenant string) (*PointRecord, error)

	// Restore re-inserts a previously backed-up point unchanged.
	Restore(ctx context.Context, rec *PointRecord) error

	// UpdatePoint re-upserts rec with a new text body and embedding, merging
	// the new content into the existing payload (all other fields preserved).
	UpdatePoint(ctx context.Context, rec *PointRecord, text string, embedding []float32) error

	// DeleteByDoc removes all points matching (docID, tenant). Returns an
	// error if the deletion is not acknowledged by the store.
	DeleteByDoc(ctx context.Context, docID, tenant string) error

	// ScrollDocIDs pages through all points matching (tenant, filename) and
	// returns the doc_id payload value of each point found.
	ScrollDocIDs(ctx context.Context, tenant, filename string) ([]string, error)

	// DeleteByFile bulk-deletes all points matching (tenant, filename) in one
	// filtered call.
	DeleteByFile(ctx context.Context, tenant, filename string) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever fetches the nodes relevant to a query for one tenant.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the top-k most relevant nodes for the query, ordered
	// by descending similarity score and restricted to the given tenant.
	Retrieve(ctx context.Context, query, tenant string) ([]Node, error)
}

// PostProcessor is a pure transformation applied to retrieved nodes before
// generation. Implementations never mutate the input slice; they return a
// new slice (possibly with unchanged nodes).
type PostProcessor interface {
	// Process transforms the node list for the given tenant.
	Process(ctx context.Context, nodes []Node, tenant string) ([]Node, error)
}

// Generator synthesizes the final response from a query and its retrieved,
// post-processed nodes. The three implementations (question-answer,
// information-collector, structured-output) are bound to a strategy at
// configuration time, not dispatched at runtime.
type Generator interface {
	// Generate produces the response text for the query given the nodes.
	Generate(ctx context.Context, query string, nodes []Node) (string, error)
}
