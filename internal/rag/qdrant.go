package rag

import (
	"context"
	"fmt"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
)

// payloadContent is the payload key holding the node's text body.
const payloadContent = "content"

// scrollPageSize is the page size used when paging through points by filter.
const scrollPageSize = 100

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant collection.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// exists (creating it if necessary), and returns a ready-to-use VectorStore.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w: %w", err, ErrStorageUnavailable)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	return nil
}

// docFilter builds an exact-match filter on (doc_id, user_type).
func docFilter(docID, tenant string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(MetaDocID, docID),
			qdrant.NewMatch(MetaUserType, tenant),
		},
	}
}

// fileFilter builds an exact-match filter on (user_type, filename).
func fileFilter(tenant, filename string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(MetaUserType, tenant),
			qdrant.NewMatch(MetaFilename, filename),
		},
	}
}

// Upsert stores or updates a batch of nodes with their embeddings.
// embeddings must be parallel to nodes.
func (s *QdrantStore) Upsert(ctx context.Context, nodes []Node, embeddings [][]float32) error {
	if len(nodes) != len(embeddings) {
		return fmt.Errorf("qdrant: nodes/embeddings length mismatch: %d vs %d", len(nodes), len(embeddings))
	}

	points := make([]*qdrant.PointStruct, 0, len(nodes))
	for i, node := range nodes {
		payload := map[string]any{payloadContent: node.Text}
		for k, v := range node.Metadata {
			payload[k] = v
		}

		points = append(points, &qdrant.PointStruct{
			Id:      pointID(node.ID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w: %w", err, ErrStorageUnavailable)
	}

	return nil
}

// Search performs a cosine similarity search restricted to the given tenant.
// The exact-match filter on user_type is part of the search call itself, so
// other tenants' vectors are excluded at the index layer rather than
// post-filtered.
func (s *QdrantStore) Search(ctx context.Context, queryEmbedding []float32, tenant string, topK int) ([]Node, error) {
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(MetaUserType, tenant),
			},
		},
		Limit:       qdrant.PtrOf(uint64(topK)), //nolint:gosec // topK is a small positive config value
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w: %w", err, ErrStorageUnavailable)
	}

	nodes := make([]Node, 0, len(results))
	for _, r := range results {
		node := Node{
			ID:       pointIDString(r.Id),
			Score:    r.Score,
			Metadata: make(map[string]string),
		}
		for k, v := range r.Payload {
			if k == payloadContent {
				node.Text = v.GetStringValue()
				continue
			}
			node.Metadata[k] = v.GetStringValue()
		}
		nodes = append(nodes, node)
	}

	return nodes, nil
}

// FetchPoint returns a full backup (id, vector, payload) of the single point
// matching (docID, tenant). Returns an error wrapping ErrNotFound when no
// point matches.
func (s *QdrantStore) FetchPoint(ctx context.Context, docID, tenant string) (*PointRecord, error) {
	resp, err := s.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.cfg.Collection,
		Filter:         docFilter(docID, tenant),
		Limit:          qdrant.PtrOf(uint32(1)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: scroll failed: %w: %w", err, ErrStorageUnavailable)
	}

	points := resp.GetResult()
	if len(points) == 0 {
		return nil, fmt.Errorf("qdrant: point for doc_id=%s tenant=%s: %w", docID, tenant, ErrNotFound)
	}

	p := points[0]
	rec := &PointRecord{
		ID:      pointIDString(p.Id),
		Vector:  p.GetVectors().GetVector().GetData(),
		Payload: make(map[string]string, len(p.Payload)),
	}
	for k, v := range p.Payload {
		rec.Payload[k] = v.GetStringValue()
	}

	return rec, nil
}

// Restore re-inserts a previously backed-up point unchanged. Used to undo a
// vector delete/update after the paired relational write fails.
func (s *QdrantStore) Restore(ctx context.Context, rec *PointRecord) error {
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         []*qdrant.PointStruct{pointFromRecord(rec, rec.Vector, rec.Payload[payloadContent])},
	})
	if err != nil {
		return fmt.Errorf("qdrant: restore of point %s failed: %w", rec.ID, err)
	}
	return nil
}

// UpdatePoint re-upserts rec with the new text body and embedding. All other
// payload fields are carried over from the backup unchanged.
func (s *QdrantStore) UpdatePoint(ctx context.Context, rec *PointRecord, text string, embedding []float32) error {
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         []*qdrant.PointStruct{pointFromRecord(rec, embedding, text)},
	})
	if err != nil {
		return fmt.Errorf("qdrant: update of point %s failed: %w", rec.ID, err)
	}
	return nil
}

// DeleteByDoc removes all points matching (docID, tenant) and verifies the
// deletion was acknowledged by the store.
func (s *QdrantStore) DeleteByDoc(ctx context.Context, docID, tenant string) error {
	result, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelectorFilter(docFilter(docID, tenant)),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w: %w", err, ErrStorageUnavailable)
	}
	if st := result.GetStatus(); st != qdrant.UpdateStatus_Acknowledged && st != qdrant.UpdateStatus_Completed {
		return fmt.Errorf("qdrant: delete not acknowledged: status=%s", st)
	}
	return nil
}

// ScrollDocIDs pages through all points matching (tenant, filename) and
// collects each point's doc_id payload value. Pagination follows the store's
// next_page_offset cursor with a fixed page size.
func (s *QdrantStore) ScrollDocIDs(ctx context.Context, tenant, filename string) ([]string, error) {
	var docIDs []string
	var offset *qdrant.PointId

	for {
		resp, err := s.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.cfg.Collection,
			Filter:         fileFilter(tenant, filename),
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: scroll failed: %w: %w", err, ErrStorageUnavailable)
		}

		points := resp.GetResult()
		if len(points) == 0 {
			break
		}
		for _, p := range points {
			if v, ok := p.Payload[MetaDocID]; ok && v.GetStringValue() != "" {
				docIDs = append(docIDs, v.GetStringValue())
			}
		}

		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}

	return docIDs, nil
}

// DeleteByFile bulk-deletes all points matching (tenant, filename).
func (s *QdrantStore) DeleteByFile(ctx context.Context, tenant, filename string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelectorFilter(fileFilter(tenant, filename)),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete by file failed: %w: %w", err, ErrStorageUnavailable)
	}
	return nil
}

// Ping calls the Qdrant HealthCheck RPC.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// pointFromRecord rebuilds a PointStruct from a backup, substituting the
// given vector and text body while preserving every other payload field.
func pointFromRecord(rec *PointRecord, vector []float32, text string) *qdrant.PointStruct {
	payload := make(map[string]any, len(rec.Payload)+1)
	for k, v := range rec.Payload {
		payload[k] = v
	}
	payload[payloadContent] = text

	return &qdrant.PointStruct{
		Id:      pointID(rec.ID),
		Vectors: qdrant.NewVectors(vector...),
		Payload: qdrant.NewValueMap(payload),
	}
}

// pointID converts a node/record id to a Qdrant point id. Numeric ids (QA
// rows) map to integer point ids; everything else is treated as a UUID.
func pointID(id string) *qdrant.PointId {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return qdrant.NewIDNum(n)
	}
	return qdrant.NewIDUUID(id)
}

// pointIDString converts a Qdrant point id back to its string form.
func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return strconv.FormatUint(id.GetNum(), 10)
}
