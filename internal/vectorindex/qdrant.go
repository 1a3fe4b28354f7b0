package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"

	taskerrors "github.com/Aman-CERP/tasksearch/internal/errors"
)

const (
	// DefaultQdrantAddr is the default Qdrant gRPC endpoint.
	DefaultQdrantAddr = "localhost:6334"

	// payloadIDKey holds the caller's id, which may not be a valid point id.
	payloadIDKey = "_id"

	scrollPageSize = 256
)

// QdrantConfig configures a Qdrant-backed index.
type QdrantConfig struct {
	Addr       string
	Collection string
	Dimensions int
}

// QdrantIndex implements Index against a Qdrant server over gRPC.
type QdrantIndex struct {
	conn        *grpc.ClientConn
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	collection  string
	dims        int
}

var (
	_ Index         = (*QdrantIndex)(nil)
	_ StatsProvider = (*QdrantIndex)(nil)
)

// NewQdrantIndex connects to Qdrant and ensures the collection exists.
func NewQdrantIndex(ctx context.Context, cfg QdrantConfig) (*QdrantIndex, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultQdrantAddr
	}

	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, taskerrors.New(taskerrors.ErrCodeNetworkUnavailable,
			"could not connect to Qdrant", err).WithDetail("addr", cfg.Addr)
	}

	idx, err := newQdrantIndex(ctx, qdrant.NewPointsClient(conn), qdrant.NewCollectionsClient(conn), cfg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	idx.conn = conn
	return idx, nil
}

func newQdrantIndex(ctx context.Context, points qdrant.PointsClient, collections qdrant.CollectionsClient, cfg QdrantConfig) (*QdrantIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, taskerrors.IndexError("qdrant index needs a positive dimension", nil)
	}
	idx := &QdrantIndex{
		points:      points,
		collections: collections,
		collection:  cfg.Collection,
		dims:        cfg.Dimensions,
	}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// ensureCollection creates the collection with Euclidean distance if absent.
func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	if _, err := q.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: q.collection}); err == nil {
		return nil
	}

	_, err := q.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dims),
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil {
		// Another client may have created it between Get and Create.
		if _, getErr := q.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: q.collection}); getErr == nil {
			return nil
		}
		return taskerrors.IndexError("failed to create qdrant collection", err).
			WithDetail("collection", q.collection)
	}

	slog.Info("qdrant_collection_created",
		slog.String("collection", q.collection),
		slog.Int("dimensions", q.dims))
	return nil
}

// pointID maps a record id to a Qdrant point id. Unsigned integers are used
// as-is; anything else becomes a name-based UUID.
func pointID(id string) *qdrant.PointId {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Num{Num: n}}
	}
	u := uuid.NewSHA1(uuid.NameSpaceOID, []byte(id))
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: u.String()}}
}

// recordID recovers the caller's id from a point.
func recordID(id *qdrant.PointId, payload map[string]*qdrant.Value) string {
	if v, ok := payload[payloadIDKey]; ok && v.GetStringValue() != "" {
		return v.GetStringValue()
	}
	switch opt := id.GetPointIdOptions().(type) {
	case *qdrant.PointId_Num:
		return strconv.FormatUint(opt.Num, 10)
	case *qdrant.PointId_Uuid:
		return opt.Uuid
	}
	return ""
}

func toPayload(id string, metadata map[string]string) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
	}
	payload[payloadIDKey] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: id}}
	return payload
}

func fromPayload(payload map[string]*qdrant.Value) map[string]string {
	var out map[string]string
	for k, v := range payload {
		if k == payloadIDKey {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(payload))
		}
		out[k] = v.GetStringValue()
	}
	return out
}

func withPayload() *qdrant.WithPayloadSelector {
	return &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}}
}

// Upsert writes points and waits for the server to apply them.
func (q *QdrantIndex) Upsert(ctx context.Context, ids []string, vectors [][]float32, metadata []map[string]string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := validateBatch(ids, vectors, metadata, q.dims); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(ids))
	for i, id := range ids {
		points[i] = &qdrant.PointStruct{
			Id:      pointID(id),
			Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: normalized(vectors[i])}}},
			Payload: toPayload(id, metadataAt(metadata, i)),
		}
	}

	if _, err := q.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
		Wait:           proto.Bool(true),
	}); err != nil {
		return taskerrors.IndexError("failed to upsert points to Qdrant", err).
			WithDetail("collection", q.collection)
	}
	return nil
}

// Query searches the collection. Qdrant reports the Euclidean distance as the
// score; it is squared to match the index distance space.
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	if err := checkDims(vector, q.dims); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []Hit{}, nil
	}

	resp, err := q.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: q.collection,
		Vector:         normalized(vector),
		Limit:          uint64(topK),
		WithPayload:    withPayload(),
	})
	if err != nil {
		return nil, taskerrors.IndexError("failed to search points in Qdrant", err).
			WithDetail("collection", q.collection)
	}

	hits := make([]Hit, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		d := p.GetScore()
		hits = append(hits, Hit{ID: recordID(p.GetId(), p.GetPayload()), Distance: d * d})
	}
	return hits, nil
}

// Delete removes points by id.
func (q *QdrantIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pids := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pids[i] = pointID(id)
	}

	if _, err := q.points.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           proto.Bool(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{Points: &qdrant.PointsIdsList{Ids: pids}},
		},
	}); err != nil {
		return taskerrors.IndexError("failed to delete points from Qdrant", err).
			WithDetail("collection", q.collection)
	}
	return nil
}

// Get fetches one point with its vector and payload.
func (q *QdrantIndex) Get(ctx context.Context, id string) (*Record, error) {
	resp, err := q.points.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            []*qdrant.PointId{pointID(id)},
		WithPayload:    withPayload(),
		WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, taskerrors.IndexError("failed to get point from Qdrant", err).
			WithDetail("id", id)
	}
	if len(resp.GetResult()) == 0 {
		return nil, nil
	}

	p := resp.GetResult()[0]
	return &Record{
		ID:       recordID(p.GetId(), p.GetPayload()),
		Vector:   p.GetVectors().GetVector().GetData(),
		Metadata: fromPayload(p.GetPayload()),
	}, nil
}

// IDs scrolls the whole collection.
func (q *QdrantIndex) IDs(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		offset *qdrant.PointId
	)
	for {
		resp, err := q.points.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: q.collection,
			Limit:          proto.Uint32(scrollPageSize),
			Offset:         offset,
			WithPayload:    withPayload(),
		})
		if err != nil {
			return nil, taskerrors.IndexError("failed to scroll Qdrant collection", err).
				WithDetail("collection", q.collection)
		}
		for _, p := range resp.GetResult() {
			ids = append(ids, recordID(p.GetId(), p.GetPayload()))
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			return ids, nil
		}
	}
}

// Count returns the exact point count.
func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	resp, err := q.points.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Exact:          proto.Bool(true),
	})
	if err != nil {
		return 0, taskerrors.IndexError("failed to count Qdrant points", err).
			WithDetail("collection", q.collection)
	}
	return int(resp.GetResult().GetCount()), nil
}

// Stats reports the backend and dimension; counts need a round trip and are
// left to Count.
func (q *QdrantIndex) Stats() Stats {
	return Stats{Backend: BackendQdrant, Dimensions: q.dims}
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.conn == nil {
		return nil
	}
	if err := q.conn.Close(); err != nil {
		return fmt.Errorf("close qdrant connection: %w", err)
	}
	return nil
}
