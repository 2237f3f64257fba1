package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/zorbit-ai/askhr-go/internal/agent"
	"github.com/zorbit-ai/askhr-go/internal/logging"
	"github.com/zorbit-ai/askhr-go/internal/provider"
	"github.com/zorbit-ai/askhr-go/internal/server"
	"github.com/zorbit-ai/askhr-go/internal/tracing"
)

// NewServeCmd constructs the `askhr serve` command, which starts the HTTP
// server exposing the assistant API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the AskHR HTTP server",
		Long: `Start the AskHR HTTP server.

The server exposes the retrieval endpoint (/api/rag), ingestion
(/api/ingest), Q&A mutations (/api/qa, /api/files), the conversational
agent (/api/agent), and operational endpoints (/api/health, /api/ready,
/metrics).

Examples:
  askhr serve
  askhr serve --port 9090
  MODEL_PROVIDER=azure askhr serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Langfuse tracing is opt-in and a no-op when keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}

			comps, err := buildComponents(ctx, log, chatModel)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer comps.close()

			// The agent reuses the question-answer retrieval pipeline.
			ragPipeline, err := comps.svc.Pipeline("")
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			var searcher agent.WebSearcher
			if key := os.Getenv("TAVILY_API_KEY"); key != "" {
				searcher = agent.NewTavilyClient(key)
				log.Info("web search enabled")
			} else {
				log.Info("web search disabled", slog.String("reason", "TAVILY_API_KEY not set"))
			}

			router, err := agent.New(ctx, &agent.Config{
				ChatModel:        chatModel,
				Pipeline:         ragPipeline,
				Searcher:         searcher,
				History:          comps.db,
				MaxContextTokens: getEnvInt("ASKHR_MAX_CONTEXT_TOKENS", 0),
				SupportURL:       os.Getenv("ASKHR_SUPPORT_URL"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise agent: %w", err)
			}

			srv, err := server.New(comps.svc, router, &server.Config{
				Host:   host,
				Port:   port,
				Logger: log,
				Pingers: []server.Pinger{
					server.NewPinger("qdrant", comps.vectors),
					server.NewPinger("sqlite", comps.db),
				},
				RateLimit: float64(getEnvInt("ASKHR_RATE_LIMIT_RPS", 0)),
				APIKey:    os.Getenv("ASKHR_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
