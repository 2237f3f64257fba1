package rag

import (
	"context"
	"errors"

	"github.com/zorbit-ai/askhr-go/internal/logging"
)

// Fallback answers attached by the QA enrichment step when the relational
// lookup cannot produce a real one.
const (
	// AnswerNotAvailable is used when the QA pair cannot be found or the
	// lookup fails.
	AnswerNotAvailable = "Answer not available."

	// AnswerNotGiven is used when the QA pair exists but has no answer.
	AnswerNotGiven = "Answer not given."
)

// TenantFilter drops every node that does not belong to the requesting
// tenant. It is a second line of defense behind the store-level search
// filter: a retriever misconfiguration must never leak another tenant's
// content into a response.
type TenantFilter struct{}

// NewTenantFilter creates a tenant isolation post-processor.
func NewTenantFilter() *TenantFilter {
	return &TenantFilter{}
}

// Process returns only the nodes whose user_type matches tenant. An unset
// tenant is logged and yields no nodes at all rather than every node.
func (f *TenantFilter) Process(ctx context.Context, nodes []Node, tenant string) ([]Node, error) {
	if tenant == "" {
		logging.FromContext(ctx).Warn("tenant filter invoked without a tenant, dropping all nodes",
			"count", len(nodes))
		return nil, nil
	}

	kept := make([]Node, 0, len(nodes))
	for _, node := range nodes {
		if node.Tenant() == tenant {
			kept = append(kept, node)
		}
	}
	return kept, nil
}

// AnswerLookup resolves the curated answer for a QA document. Implementations
// return an error wrapping ErrNotFound when no row matches.
type AnswerLookup interface {
	// Answer returns the stored answer text for the QA pair identified by
	// (docID, tenant).
	Answer(ctx context.Context, docID, tenant string) (string, error)
}

// QAEnrichment replaces each retrieved question node's answer metadata with
// the curated answer from the relational store. Lookup failures degrade to a
// fallback answer per node instead of failing the whole query.
type QAEnrichment struct {
	lookup AnswerLookup
}

// NewQAEnrichment creates a QA answer enrichment post-processor.
func NewQAEnrichment(lookup AnswerLookup) *QAEnrichment {
	return &QAEnrichment{lookup: lookup}
}

// Process enriches every node in place with its curated answer. The node
// list is never shortened here: a node with a failed lookup still flows to
// the generator, carrying a fallback answer.
func (e *QAEnrichment) Process(ctx context.Context, nodes []Node, tenant string) ([]Node, error) {
	logger := logging.FromContext(ctx)

	for i := range nodes {
		if nodes[i].Metadata == nil {
			nodes[i].Metadata = make(map[string]string)
		}

		answer, err := e.lookup.Answer(ctx, nodes[i].ID, tenant)
		switch {
		case errors.Is(err, ErrNotFound):
			nodes[i].Metadata[MetaAnswer] = AnswerNotAvailable
		case err != nil:
			logger.Error("answer lookup failed",
				"doc_id", nodes[i].ID,
				"tenant", tenant,
				"error", err)
			nodes[i].Metadata[MetaAnswer] = AnswerNotAvailable
		case answer == "":
			nodes[i].Metadata[MetaAnswer] = AnswerNotGiven
		default:
			nodes[i].Metadata[MetaAnswer] = answer
		}
	}

	return nodes, nil
}
