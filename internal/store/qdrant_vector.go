package store

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadOriginalIDField stores a chunk's real UUID in the Qdrant point
// payload. Qdrant point IDs must be UUIDs or positive integers, which a
// chunk's own ID already satisfies, but the field is kept for the rare
// case a caller passes a non-UUID chunk identifier (e.g. in tests).
const payloadOriginalIDField = "_original_id"

// QdrantIndex is a VectorIndex backed by a Qdrant collection, used in
// place of a Store's own pgvector search when config selects
// store.backend=qdrant. The Go client talks Qdrant's gRPC API, port 6334
// by default; an API key can be passed as a DSN query parameter
// ("http://localhost:6334?api_key=...").
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantIndex connects to Qdrant and ensures the target collection
// exists with the given vector width, creating it (cosine distance,
// matching pgvector's `<=>` operator default) if absent.
func NewQdrantIndex(ctx context.Context, dsn, collection string, dimension int) (*QdrantIndex, error) {
	if collection == "" {
		return nil, fmt.Errorf("qdrant: collection name is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("qdrant: dimension must be > 0")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("qdrant: parse dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if p := parsed.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("qdrant: invalid port in dsn: %w", err)
		}
	}
	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}

	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("qdrant: create client: %w", err)
	}
	idx := &QdrantIndex{client: client, collection: collection, dimension: dimension}
	if err := idx.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return idx, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("qdrant: check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection: %w", err)
	}
	return nil
}

func (q *QdrantIndex) pointID(chunkID string) (string, bool) {
	if _, err := uuid.Parse(chunkID); err == nil {
		return chunkID, false
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String(), true
}

func (q *QdrantIndex) Upsert(ctx context.Context, chunkID string, vector []float32, metadata map[string]string) error {
	uuidStr, remapped := q.pointID(chunkID)
	payload := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = v
	}
	if remapped {
		payload[payloadOriginalIDField] = chunkID
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(uuidStr),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	return err
}

func (q *QdrantIndex) Delete(ctx context.Context, chunkID string) error {
	uuidStr, _ := q.pointID(chunkID)
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(uuidStr)),
	})
	return err
}

func (q *QdrantIndex) Search(ctx context.Context, vector []float32, k int, filter map[string]string) ([]VectorMatch, error) {
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	var qFilter *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for field, val := range filter {
			must = append(must, qdrant.NewMatch(field, val))
		}
		qFilter = &qdrant.Filter{Must: must}
	}

	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         qFilter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: query: %w", err)
	}

	out := make([]VectorMatch, 0, len(hits))
	for _, hit := range hits {
		id := hit.Id.GetUuid()
		if id == "" {
			id = hit.Id.String()
		}
		if hit.Payload != nil {
			if v, ok := hit.Payload[payloadOriginalIDField]; ok {
				if s := v.GetStringValue(); s != "" {
					id = s
				}
			}
		}
		out = append(out, VectorMatch{ChunkID: id, Score: float64(hit.Score)})
	}
	return out, nil
}

func (q *QdrantIndex) Dimension() int { return q.dimension }

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

var _ VectorIndex = (*QdrantIndex)(nil)
