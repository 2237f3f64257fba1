package rag

import (
	"context"
	"fmt"

	"github.com/zorbit-ai/askhr-go/internal/logging"
)

// QueryResult is the outcome of one pipeline run.
type QueryResult struct {
	// Answer is the generated response text.
	Answer string

	// Nodes are the post-processed nodes the answer was generated from.
	Nodes []Node
}

// Pipeline wires a retriever, an ordered post-processor chain, and a
// generator into a single query path. The chain always runs in declaration
// order; tenant isolation relies on the tenant filter running before any
// enrichment step.
type Pipeline struct {
	retriever  Retriever
	processors []PostProcessor
	generator  Generator
}

// NewPipeline assembles a query pipeline. processors may be empty.
func NewPipeline(retriever Retriever, generator Generator, processors ...PostProcessor) *Pipeline {
	return &Pipeline{
		retriever:  retriever,
		processors: processors,
		generator:  generator,
	}
}

// Query runs retrieval, the post-processor chain, and generation for one
// tenant-scoped question.
func (p *Pipeline) Query(ctx context.Context, query, tenant string) (*QueryResult, error) {
	if tenant == "" {
		return nil, fmt.Errorf("pipeline: query without tenant: %w", ErrNoTenant)
	}

	logger := logging.FromContext(ctx)

	nodes, err := p.retriever.Retrieve(ctx, query, tenant)
	if err != nil {
		return nil, fmt.Errorf("pipeline: retrieval failed: %w", err)
	}
	logger.Debug("retrieval complete",
		"tenant", tenant,
		"nodes", len(nodes))

	for i, proc := range p.processors {
		in := len(nodes)
		nodes, err = proc.Process(ctx, nodes, tenant)
		if err != nil {
			return nil, fmt.Errorf("pipeline: post-processing failed: %w", err)
		}
		logger.Debug("post-processor applied",
			"tenant", tenant,
			"stage", fmt.Sprintf("%T", proc),
			"position", i,
			"in", in,
			"out", len(nodes))
	}

	answer, err := p.generator.Generate(ctx, query, nodes)
	if err != nil {
		return nil, fmt.Errorf("pipeline: generation failed: %w", err)
	}

	return &QueryResult{Answer: answer, Nodes: nodes}, nil
}
