package rag

import (
	"context"
	"fmt"

	"github.com/zorbit-ai/askhr-go/internal/logging"
)

// DefaultTopK is the number of nodes retrieved per query when the caller
// does not override it.
const DefaultTopK = 5

// VectorRetriever retrieves nodes by embedding the query text and running a
// tenant-scoped similarity search against the vector store.
type VectorRetriever struct {
	store    VectorStore
	embedder Embedder
	topK     int
}

// NewVectorRetriever creates a retriever over the given store and embedder.
// topK values below 1 fall back to DefaultTopK.
func NewVectorRetriever(store VectorStore, embedder Embedder, topK int) *VectorRetriever {
	if topK < 1 {
		topK = DefaultTopK
	}
	return &VectorRetriever{store: store, embedder: embedder, topK: topK}
}

// Retrieve embeds the query and returns the top-k most similar nodes
// belonging to the given tenant.
func (r *VectorRetriever) Retrieve(ctx context.Context, query, tenant string) ([]Node, error) {
	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("retriever: failed to embed query: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("retriever: embedder returned no vectors")
	}

	nodes, err := r.store.Search(ctx, embeddings[0], tenant, r.topK)
	if err != nil {
		return nil, fmt.Errorf("retriever: search failed: %w", err)
	}

	logging.FromContext(ctx).Debug("retrieved nodes",
		"tenant", tenant,
		"count", len(nodes),
		"top_k", r.topK)

	return nodes, nil
}
