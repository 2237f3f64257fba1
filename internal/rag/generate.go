package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zorbit-ai/askhr-go/internal/budget"
)

// NoInformationFound is returned by the information collector when no nodes
// survive post-processing.
const NoInformationFound = "No relevant information found."

// sectionSeparator joins per-node context sections in synthesis prompts.
const sectionSeparator = "\n\n---\n\n"

const qaSystemPrompt = `You are an HR assistant. Answer the employee's question using only the ` +
	`question/answer pairs provided as context. Be concise and factual. If the context does ` +
	`not contain the answer, say you do not have that information.`

const structuredSystemPrompt = `You are an HR assistant. Answer using only the provided context. ` +
	`Respond with a single JSON object of the form ` +
	`{"answer": "<answer text>", "sources": ["<source file>", ...]} and nothing else.`

const refinePrompt = `The original question is: %s
We have an existing answer: %s
Here is additional context:
%s
Refine the existing answer with the new context if it adds anything. Otherwise repeat the existing answer.`

// QuestionAnswerGenerator synthesizes a direct answer from retrieved QA
// nodes in a single model call. Context sections are stuffed into the prompt
// in retrieval order and clamped to the configured budget so the prompt is
// deterministic for a given retrieval result.
type QuestionAnswerGenerator struct {
	model     model.ChatModel
	maxTokens int
}

// NewQuestionAnswerGenerator creates a compact single-shot synthesis
// generator. maxContextTokens values below 1 fall back to
// budget.DefaultMaxContextTokens.
func NewQuestionAnswerGenerator(m model.ChatModel, maxContextTokens int) *QuestionAnswerGenerator {
	if maxContextTokens < 1 {
		maxContextTokens = budget.DefaultMaxContextTokens
	}
	return &QuestionAnswerGenerator{model: m, maxTokens: maxContextTokens}
}

// Generate answers query from the given nodes with one model call.
func (g *QuestionAnswerGenerator) Generate(ctx context.Context, query string, nodes []Node) (string, error) {
	sections := make([]string, 0, len(nodes))
	for _, node := range nodes {
		if answer, ok := node.Metadata[MetaAnswer]; ok {
			sections = append(sections, fmt.Sprintf("Question: %s\nAnswer: %s", node.Text, answer))
			continue
		}
		sections = append(sections, node.Text)
	}

	reserved := budget.Estimate(qaSystemPrompt) + budget.Estimate(query) + 16
	sections = budget.ClampSections(sections, reserved, g.maxTokens)

	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", strings.Join(sections, sectionSeparator), query)

	resp, err := g.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(qaSystemPrompt),
		schema.UserMessage(prompt),
	})
	if err != nil {
		return "", fmt.Errorf("generate: model call failed: %w", err)
	}

	return strings.TrimSpace(resp.Content), nil
}

// InformationCollector formats retrieved nodes verbatim without any model
// call. Each node becomes a source-attributed section; the sections are
// joined with a separator line.
type InformationCollector struct{}

// NewInformationCollector creates a passthrough generator that never calls
// an LLM.
func NewInformationCollector() *InformationCollector {
	return &InformationCollector{}
}

// Generate renders the nodes as attributed text blocks. The query is unused.
// An empty node list yields the NoInformationFound sentinel.
func (c *InformationCollector) Generate(_ context.Context, _ string, nodes []Node) (string, error) {
	if len(nodes) == 0 {
		return NoInformationFound, nil
	}

	sections := make([]string, 0, len(nodes))
	for _, node := range nodes {
		sections = append(sections, fmt.Sprintf("Source: %s\n\n%s", node.Metadata[MetaFilename], node.Text))
	}

	return strings.Join(sections, sectionSeparator), nil
}

// StructuredAnswer is the typed result produced by StructuredOutputGenerator.
type StructuredAnswer struct {
	// Answer is the synthesized answer text.
	Answer string `json:"answer"`

	// Sources lists the file names the answer was drawn from.
	Sources []string `json:"sources"`
}

// StructuredOutputGenerator synthesizes an answer in refine mode, one model
// call per node, then asks the model for a JSON object and parses it into a
// StructuredAnswer. Output that cannot be parsed fails with
// ErrMalformedOutput rather than leaking free text to the caller.
type StructuredOutputGenerator struct {
	model model.ChatModel
}

// NewStructuredOutputGenerator creates a refine-mode generator with typed
// JSON output.
func NewStructuredOutputGenerator(m model.ChatModel) *StructuredOutputGenerator {
	return &StructuredOutputGenerator{model: m}
}

// Generate refines an answer across all nodes and returns it as the
// canonical JSON encoding of a StructuredAnswer.
func (g *StructuredOutputGenerator) Generate(ctx context.Context, query string, nodes []Node) (string, error) {
	if len(nodes) == 0 {
		return "", fmt.Errorf("generate: no context nodes: %w", ErrNotFound)
	}

	answer := ""
	for i, node := range nodes {
		var prompt string
		if i == 0 {
			prompt = fmt.Sprintf("Context:\n%s\n\nQuestion: %s", node.Text, query)
		} else {
			prompt = fmt.Sprintf(refinePrompt, query, answer, node.Text)
		}

		resp, err := g.model.Generate(ctx, []*schema.Message{
			schema.SystemMessage(structuredSystemPrompt),
			schema.UserMessage(prompt),
		})
		if err != nil {
			return "", fmt.Errorf("generate: refine step %d failed: %w", i, err)
		}
		answer = resp.Content
	}

	parsed, err := parseStructuredAnswer(answer)
	if err != nil {
		return "", err
	}

	// Fill sources from node metadata when the model omitted them.
	if len(parsed.Sources) == 0 {
		seen := make(map[string]bool)
		for _, node := range nodes {
			if f := node.Metadata[MetaFilename]; f != "" && !seen[f] {
				seen[f] = true
				parsed.Sources = append(parsed.Sources, f)
			}
		}
	}

	out, err := json.Marshal(parsed)
	if err != nil {
		return "", fmt.Errorf("generate: encode structured answer: %w", err)
	}
	return string(out), nil
}

// parseStructuredAnswer extracts a StructuredAnswer from raw model output,
// tolerating markdown code fences around the JSON object.
func parseStructuredAnswer(raw string) (*StructuredAnswer, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	var parsed StructuredAnswer
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("generate: unparseable model output: %w: %w", err, ErrMalformedOutput)
	}
	if parsed.Answer == "" {
		return nil, fmt.Errorf("generate: model output missing answer field: %w", ErrMalformedOutput)
	}
	return &parsed, nil
}
