package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/zorbit-ai/askhr-go/internal/agent"
	"github.com/zorbit-ai/askhr-go/internal/ingestion"
	"github.com/zorbit-ai/askhr-go/internal/service"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
}

// backend is the service surface the handlers call. *service.Service
// satisfies it; tests inject a fake.
type backend interface {
	Query(ctx context.Context, tenant string, queries map[string]string, strategy string) (map[string]service.QueryAnswer, error)
	IngestQA(ctx context.Context, tenant string, records []map[string]string) (*ingestion.QAResult, error)
	IngestFile(ctx context.Context, tenant, filename, text string) (*ingestion.FileResult, error)
	DeleteQA(ctx context.Context, tenant string, ids []int64) (*service.DeleteResult, error)
	UpdateQA(ctx context.Context, tenant string, updates []service.QAUpdate) (*service.UpdateResult, error)
	DeleteByFile(ctx context.Context, tenant string, filenames []string) (*service.FileDeleteResult, error)
}

// chatter is the conversational surface behind POST /api/agent.
// *agent.Router satisfies it; tests inject a fake. May be nil, in which case
// the endpoint returns 503.
type chatter interface {
	Chat(ctx context.Context, session, tenant, query string) (*agent.Reply, error)
}

// Server is the HTTP server that exposes the assistant API.
type Server struct {
	// svc is the facade the handlers delegate to.
	svc backend
	// router is the conversational agent behind /api/agent. May be nil.
	router chatter
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments registered for this instance.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/rag.
type queryRequest struct {
	// UserType is the tenant discriminator scoping retrieval.
	UserType string `json:"user_type"`
	// Queries maps a caller-chosen id to the question text.
	Queries map[string]string `json:"queries"`
	// Strategy selects the generation strategy. Empty means question_answer.
	Strategy string `json:"strategy,omitempty"`
}

// ingestRequest is the JSON body for POST /api/ingest. Exactly one of
// Records (Q&A mode) or Filename+Text (document mode) must be set.
type ingestRequest struct {
	// UserType is the tenant discriminator stamped on every node.
	UserType string `json:"user_type"`
	// Records is the Q&A batch. Each record needs "question" and "answer".
	Records []map[string]string `json:"records,omitempty"`
	// Filename names the source document in document mode.
	Filename string `json:"filename,omitempty"`
	// Text is the raw document body in document mode.
	Text string `json:"text,omitempty"`
}

// deleteQARequest is the JSON body for DELETE /api/qa.
type deleteQARequest struct {
	UserType string  `json:"user_type"`
	IDs      []int64 `json:"ids"`
}

// updateQARequest is the JSON body for PUT /api/qa.
type updateQARequest struct {
	UserType string             `json:"user_type"`
	Updates  []service.QAUpdate `json:"updates"`
}

// deleteFilesRequest is the JSON body for DELETE /api/files.
type deleteFilesRequest struct {
	UserType  string   `json:"user_type"`
	Filenames []string `json:"filenames"`
}

// agentRequest is the JSON body for POST /api/agent.
type agentRequest struct {
	// Session identifies the conversation for history replay.
	Session string `json:"session"`
	// UserType is the tenant discriminator scoping retrieval.
	UserType string `json:"user_type"`
	// Message is the user's turn.
	Message string `json:"message"`
}

// errorResponse is the JSON body sent on every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}
