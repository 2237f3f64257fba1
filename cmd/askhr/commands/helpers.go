package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"

	"github.com/zorbit-ai/askhr-go/internal/embedder"
	"github.com/zorbit-ai/askhr-go/internal/ingestion"
	"github.com/zorbit-ai/askhr-go/internal/rag"
	"github.com/zorbit-ai/askhr-go/internal/service"
	"github.com/zorbit-ai/askhr-go/internal/store"
)

// components bundles everything a command needs to serve requests, plus a
// close function releasing the underlying connections.
type components struct {
	//nolint:staticcheck // SA1019: model.ChatModel deprecated upstream
	chatModel model.ChatModel
	vectors   *rag.QdrantStore
	db        *store.Store
	svc       *service.Service
	close     func()
}

// buildComponents wires the embedder, vector store, relational store, chat
// model, and service facade from the environment. Config values loaded from
// YAML have already been applied to the environment by the root command.
func buildComponents(ctx context.Context, log *slog.Logger, chatModel model.ChatModel) (*components, error) { //nolint:staticcheck // SA1019: model.ChatModel deprecated upstream
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "openai"))
	qdrantHost := getEnvOrDefault("QDRANT_HOST", "localhost")
	qdrantPort := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnvOrDefault("QDRANT_COLLECTION", "askhr-kb")

	vectors, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       qdrantHost,
		Port:       qdrantPort,
		Collection: collection,
		VectorSize: uint64(embedder.DefaultDimensions(embBackend)), //nolint:gosec // dimensions are bounded
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", qdrantHost, qdrantPort, err)
	}

	dbPath := os.Getenv("ASKHR_DB_PATH")
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			_ = vectors.Close()
			return nil, fmt.Errorf("failed to resolve database path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		_ = vectors.Close()
		return nil, fmt.Errorf("failed to open database at %s: %w", dbPath, err)
	}
	log.Info("stores opened",
		slog.String("qdrant", fmt.Sprintf("%s:%d", qdrantHost, qdrantPort)),
		slog.String("collection", collection),
		slog.String("db", dbPath),
	)

	svc, err := service.New(&service.Config{
		ChatModel:        chatModel,
		Vectors:          vectors,
		Embedder:         emb,
		DB:               db,
		TopK:             getEnvInt("ASKHR_TOP_K", rag.DefaultTopK),
		MaxContextTokens: getEnvInt("ASKHR_MAX_CONTEXT_TOKENS", 0),
		Ingestion: ingestion.Config{
			ChunkSize:    getEnvInt("ASKHR_CHUNK_SIZE", 0),
			ChunkOverlap: getEnvInt("ASKHR_CHUNK_OVERLAP", 0),
			Collection:   collection,
		},
	})
	if err != nil {
		_ = db.Close()
		_ = vectors.Close()
		return nil, err
	}

	return &components{
		chatModel: chatModel,
		vectors:   vectors,
		db:        db,
		svc:       svc,
		close: func() {
			_ = db.Close()
			_ = vectors.Close()
		},
	}, nil
}

// getEnvOrDefault returns the environment variable value or a fallback.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the environment variable parsed as int or a fallback.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
