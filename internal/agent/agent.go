// Package agent implements the conversational router that sits in front of
// the retrieval pipeline. Each user turn flows through an explicit Eino graph:
// an LLM classifier decides whether the question is HR or platform related,
// navigation and support requests short-circuit to a redirect, HR questions
// run retrieval, and anything the knowledge base cannot answer falls back to
// a web search.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zorbit-ai/askhr-go/internal/budget"
	"github.com/zorbit-ai/askhr-go/internal/logging"
	"github.com/zorbit-ai/askhr-go/internal/rag"
	"github.com/zorbit-ai/askhr-go/internal/store"
)

// DefaultSupportURL is where navigation and support requests are sent when
// no override is configured.
const DefaultSupportURL = "https://dev.zorbit.ai/support"

// Node keys in the router graph.
const (
	nodeCheckCategory   = "check-category"
	nodeCheckNavigation = "check-navigation"
	nodeRunRAG          = "run-rag"
	nodeFetchRelevance  = "fetch-relevance"
	nodeWebSearch       = "web-search"
	nodeRedirect        = "redirect"
)

// Answer sources reported to the caller.
const (
	SourceKnowledgeBase = "knowledge_base"
	SourceWebSearch     = "web_search"
	SourceRedirect      = "redirect"
)

const categoryPrompt = `You are a query classifier for an HR assistant used by
employees, contractors, and employers on an employment platform.

Decide whether the user's question is about HR, payroll, benefits, leave,
employment contracts, compliance, onboarding, or the platform itself.

Answer with exactly one word: "yes" if it is, "no" otherwise.`

const navigationPrompt = `You are a query classifier for an HR assistant.

Decide whether the user is asking how to navigate the platform, where to find
a page or setting, or how to reach customer support, rather than asking an HR
question that needs an answer.

Answer with exactly one word: "yes" if it is a navigation or support request,
"no" otherwise.`

const relevancePrompt = `You judge whether a retrieved answer actually addresses
the user's question.

Answer with exactly one word: "yes" if the answer is relevant and responsive,
"no" if it is off-topic, empty, or states that no information was found.`

const redirectPrompt = `The user needs help navigating the platform or reaching
support. Write a single short sentence telling them where to go, then respond
with ONLY a JSON object in this exact shape, no markdown fencing:

{"description": "<one sentence>", "link": "%s"}`

// QueryRunner is the retrieval pipeline surface the router drives.
// Implemented by rag.Pipeline.
type QueryRunner interface {
	Query(ctx context.Context, query, tenant string) (*rag.QueryResult, error)
}

// History persists and replays conversation turns per session.
// Implemented by store.Store.
type History interface {
	AppendMessage(ctx context.Context, session string, role store.Role, content string) error
	RecentMessages(ctx context.Context, session string, n int) ([]store.Message, error)
}

// Config holds the dependencies required to construct a Router.
type Config struct {
	// ChatModel is the LLM backend used for classification and redirects.
	ChatModel model.ChatModel //nolint:staticcheck // SA1019: model.ChatModel deprecated upstream

	// Pipeline answers HR questions from the knowledge base.
	Pipeline QueryRunner

	// Searcher is the web search fallback. May be nil, in which case the
	// fallback returns a fixed not-found message.
	Searcher WebSearcher

	// History is the optional conversation store. If nil, each turn is
	// stateless.
	History History

	// HistoryDepth is the number of prior messages to replay per turn.
	// Defaults to 10 if zero.
	HistoryDepth int

	// MaxContextTokens bounds the replayed history. Defaults to
	// budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int

	// SupportURL is the link handed out for navigation and support
	// requests. Defaults to DefaultSupportURL if empty.
	SupportURL string
}

// Reply is the outcome of one routed turn.
type Reply struct {
	// Answer is the text shown to the user.
	Answer string `json:"answer"`
	// Link is set when the turn resolved to a redirect.
	Link string `json:"link,omitempty"`
	// Source names which branch produced the answer.
	Source string `json:"source"`
}

// turn is the state threaded through the graph for one user query.
type turn struct {
	session string
	tenant  string
	query   string
	history []*schema.Message

	hrQuery  bool
	navQuery bool
	relevant bool

	reply Reply
}

// Router runs user turns through the compiled routing graph.
type Router struct {
	//nolint:staticcheck // SA1019: model.ChatModel deprecated upstream
	chatModel        model.ChatModel
	pipeline         QueryRunner
	searcher         WebSearcher
	history          History
	historyDepth     int
	maxContextTokens int
	supportURL       string

	runner compose.Runnable[*turn, *turn]
}

// New constructs a Router and compiles its graph.
func New(ctx context.Context, cfg *Config) (*Router, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("agent: ChatModel must not be nil")
	}
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("agent: Pipeline must not be nil")
	}

	depth := cfg.HistoryDepth
	if depth <= 0 {
		depth = 10
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	supportURL := cfg.SupportURL
	if supportURL == "" {
		supportURL = DefaultSupportURL
	}

	r := &Router{
		chatModel:        cfg.ChatModel,
		pipeline:         cfg.Pipeline,
		searcher:         cfg.Searcher,
		history:          cfg.History,
		historyDepth:     depth,
		maxContextTokens: maxCtx,
		supportURL:       supportURL,
	}

	runner, err := r.buildGraph(ctx)
	if err != nil {
		return nil, err
	}
	r.runner = runner
	return r, nil
}

// buildGraph wires the routing nodes and branch guards into a compiled graph.
func (r *Router) buildGraph(ctx context.Context) (compose.Runnable[*turn, *turn], error) {
	g := compose.NewGraph[*turn, *turn]()

	nodes := map[string]func(context.Context, *turn) (*turn, error){
		nodeCheckCategory:   r.checkCategory,
		nodeCheckNavigation: r.checkNavigation,
		nodeRunRAG:          r.runRAG,
		nodeFetchRelevance:  r.fetchRelevance,
		nodeWebSearch:       r.webSearch,
		nodeRedirect:        r.redirect,
	}
	for key, fn := range nodes {
		if err := g.AddLambdaNode(key, compose.InvokableLambda(fn)); err != nil {
			return nil, fmt.Errorf("agent: add node %s: %w", key, err)
		}
	}

	if err := g.AddEdge(compose.START, nodeCheckCategory); err != nil {
		return nil, fmt.Errorf("agent: wire graph: %w", err)
	}

	if err := g.AddBranch(nodeCheckCategory, compose.NewGraphBranch(
		func(ctx context.Context, t *turn) (string, error) {
			if t.hrQuery {
				return nodeCheckNavigation, nil
			}
			return nodeWebSearch, nil
		},
		map[string]bool{nodeCheckNavigation: true, nodeWebSearch: true},
	)); err != nil {
		return nil, fmt.Errorf("agent: wire graph: %w", err)
	}

	if err := g.AddBranch(nodeCheckNavigation, compose.NewGraphBranch(
		func(ctx context.Context, t *turn) (string, error) {
			if t.navQuery {
				return nodeRedirect, nil
			}
			return nodeRunRAG, nil
		},
		map[string]bool{nodeRedirect: true, nodeRunRAG: true},
	)); err != nil {
		return nil, fmt.Errorf("agent: wire graph: %w", err)
	}

	if err := g.AddEdge(nodeRunRAG, nodeFetchRelevance); err != nil {
		return nil, fmt.Errorf("agent: wire graph: %w", err)
	}

	if err := g.AddBranch(nodeFetchRelevance, compose.NewGraphBranch(
		func(ctx context.Context, t *turn) (string, error) {
			if t.relevant {
				return compose.END, nil
			}
			return nodeWebSearch, nil
		},
		map[string]bool{compose.END: true, nodeWebSearch: true},
	)); err != nil {
		return nil, fmt.Errorf("agent: wire graph: %w", err)
	}

	if err := g.AddEdge(nodeWebSearch, compose.END); err != nil {
		return nil, fmt.Errorf("agent: wire graph: %w", err)
	}
	if err := g.AddEdge(nodeRedirect, compose.END); err != nil {
		return nil, fmt.Errorf("agent: wire graph: %w", err)
	}

	runner, err := g.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("agent: compile graph: %w", err)
	}
	return runner, nil
}

// Chat routes one user turn and returns the reply. The session identifies the
// conversation for history replay; the tenant scopes retrieval.
func (r *Router) Chat(ctx context.Context, session, tenant, query string) (*Reply, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("agent: query must not be empty")
	}
	if tenant == "" {
		return nil, rag.ErrNoTenant
	}

	t := &turn{session: session, tenant: tenant, query: query}
	t.history = r.loadHistory(ctx, session)

	out, err := r.runner.Invoke(ctx, t)
	if err != nil {
		return nil, err
	}

	r.persistTurn(ctx, session, query, out.reply.Answer)
	reply := out.reply
	return &reply, nil
}

// loadHistory replays recent turns for the session, trimmed oldest-first to
// the context budget. Failures degrade to a stateless turn.
func (r *Router) loadHistory(ctx context.Context, session string) []*schema.Message {
	if r.history == nil || session == "" {
		return nil
	}
	prior, err := r.history.RecentMessages(ctx, session, r.historyDepth*2)
	if err != nil {
		logging.FromContext(ctx).Warn("agent: failed to load history", slog.Any("error", err))
		return nil
	}
	msgs := make([]*schema.Message, 0, len(prior))
	for _, m := range prior {
		switch m.Role {
		case store.RoleUser:
			msgs = append(msgs, schema.UserMessage(m.Content))
		case store.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
		}
	}
	return budget.TrimHistory(nil, msgs, r.maxContextTokens)
}

// persistTurn appends the user message and assistant reply to the session
// history. Persistence failure never fails the turn.
func (r *Router) persistTurn(ctx context.Context, session, query, answer string) {
	if r.history == nil || session == "" {
		return
	}
	if err := r.history.AppendMessage(ctx, session, store.RoleUser, query); err != nil {
		logging.FromContext(ctx).Warn("agent: failed to persist user message", slog.Any("error", err))
	}
	if err := r.history.AppendMessage(ctx, session, store.RoleAssistant, answer); err != nil {
		logging.FromContext(ctx).Warn("agent: failed to persist assistant message", slog.Any("error", err))
	}
}

// classify asks the model a yes/no question about text and returns the verdict.
func (r *Router) classify(ctx context.Context, system string, history []*schema.Message, user string) (bool, error) {
	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, schema.SystemMessage(system))
	messages = append(messages, history...)
	messages = append(messages, schema.UserMessage(user))

	resp, err := r.chatModel.Generate(ctx, messages)
	if err != nil {
		return false, fmt.Errorf("agent: classification failed: %w", err)
	}
	verdict := strings.ToLower(strings.TrimSpace(resp.Content))
	return strings.HasPrefix(verdict, "yes"), nil
}

func (r *Router) checkCategory(ctx context.Context, t *turn) (*turn, error) {
	hr, err := r.classify(ctx, categoryPrompt, t.history, t.query)
	if err != nil {
		return nil, err
	}
	t.hrQuery = hr
	return t, nil
}

func (r *Router) checkNavigation(ctx context.Context, t *turn) (*turn, error) {
	nav, err := r.classify(ctx, navigationPrompt, t.history, t.query)
	if err != nil {
		return nil, err
	}
	t.navQuery = nav
	return t, nil
}

func (r *Router) runRAG(ctx context.Context, t *turn) (*turn, error) {
	result, err := r.pipeline.Query(ctx, t.query, t.tenant)
	if err != nil {
		return nil, fmt.Errorf("agent: retrieval failed: %w", err)
	}
	t.reply = Reply{Answer: result.Answer, Source: SourceKnowledgeBase}
	return t, nil
}

func (r *Router) fetchRelevance(ctx context.Context, t *turn) (*turn, error) {
	user := fmt.Sprintf("Question: %s\n\nAnswer: %s", t.query, t.reply.Answer)
	relevant, err := r.classify(ctx, relevancePrompt, nil, user)
	if err != nil {
		return nil, err
	}
	t.relevant = relevant
	return t, nil
}

func (r *Router) webSearch(ctx context.Context, t *turn) (*turn, error) {
	if r.searcher == nil {
		t.reply = Reply{Answer: "No relevant information found on the web.", Source: SourceWebSearch}
		return t, nil
	}
	results, err := r.searcher.Search(ctx, t.query, defaultMaxResults)
	if err != nil {
		return nil, fmt.Errorf("agent: web search failed: %w", err)
	}
	t.reply = Reply{Answer: formatSearchResults(results), Source: SourceWebSearch}
	return t, nil
}

// redirectPayload is the structured shape the redirect node asks the model for.
type redirectPayload struct {
	Description string `json:"description"`
	Link        string `json:"link"`
}

func (r *Router) redirect(ctx context.Context, t *turn) (*turn, error) {
	system := fmt.Sprintf(redirectPrompt, r.supportURL)
	resp, err := r.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(t.query),
	})

	payload := redirectPayload{
		Description: "You can reach our support team here.",
		Link:        r.supportURL,
	}
	if err != nil {
		logging.FromContext(ctx).Warn("agent: redirect generation failed, using default", slog.Any("error", err))
	} else if parseErr := json.Unmarshal([]byte(stripFences(resp.Content)), &payload); parseErr != nil {
		logging.FromContext(ctx).Warn("agent: malformed redirect payload, using default", slog.Any("error", parseErr))
		payload.Description = "You can reach our support team here."
		payload.Link = r.supportURL
	}
	if payload.Link == "" {
		payload.Link = r.supportURL
	}

	t.reply = Reply{Answer: payload.Description, Link: payload.Link, Source: SourceRedirect}
	return t, nil
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
