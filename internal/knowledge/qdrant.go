package knowledge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nidhogg/nuka-cs/internal/embedding"
)

// QdrantConfig holds connection settings for a Qdrant instance.
type QdrantConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Collection string `json:"collection"`
}

// QdrantSource searches a Qdrant collection over gRPC.
type QdrantSource struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
	collection  string
	embedder    embedding.Provider
	logger      *zap.Logger
}

// NewQdrantSource dials Qdrant. The connection is lazy; the first call
// surfaces network errors.
func NewQdrantSource(cfg QdrantConfig, embedder embedding.Provider, logger *zap.Logger) (*QdrantSource, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &QdrantSource{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		collection:  cfg.Collection,
		embedder:    embedder,
		logger:      logger,
	}, nil
}

// EnsureCollection creates the collection sized to the embedder if missing.
func (s *QdrantSource) EnsureCollection(ctx context.Context) error {
	if _, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: s.collection}); err == nil {
		return nil
	}
	_, err := s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(s.embedder.Dimension()),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", s.collection, err)
	}
	s.logger.Info("qdrant collection created", zap.String("collection", s.collection))
	return nil
}

// Upsert embeds and writes documents.
func (s *QdrantSource) Upsert(ctx context.Context, docs ...Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("embed documents: got %d vectors for %d texts", len(vecs), len(docs))
	}

	points := make([]*pb.PointStruct, len(docs))
	for i, d := range docs {
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(d.ID)}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vecs[i]}}},
			Payload: documentPayload(d),
		}
	}
	if _, err := s.points.Upsert(ctx, &pb.UpsertPoints{CollectionName: s.collection, Points: points}); err != nil {
		return fmt.Errorf("upsert %s: %w", s.collection, err)
	}
	return nil
}

// Search implements Source.
func (s *QdrantSource) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	vec, err := embedding.One(ctx, s.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vec,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", s.collection, err)
	}
	out := make([]Candidate, 0, len(resp.Result))
	for _, p := range resp.Result {
		out = append(out, s.candidate(p))
	}
	return out, nil
}

// Close tears down the gRPC connection.
func (s *QdrantSource) Close() error {
	return s.conn.Close()
}

// pointID maps arbitrary document IDs onto the UUIDs Qdrant requires.
func pointID(docID string) string {
	if _, err := uuid.Parse(docID); err == nil {
		return docID
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(docID)).String()
}

func documentPayload(d Document) map[string]*pb.Value {
	str := func(v string) *pb.Value { return &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}} }
	typ := d.Type
	if typ == "" {
		typ = Classify(d.Text)
	}
	payload := map[string]*pb.Value{
		metaText:  str(d.Text),
		metaType:  str(string(typ)),
		metaDocID: str(d.ID),
	}
	for k, v := range d.Metadata {
		if _, reserved := payload[k]; !reserved {
			payload[k] = str(v)
		}
	}
	return payload
}

func (s *QdrantSource) candidate(p *pb.ScoredPoint) Candidate {
	meta := make(map[string]string)
	for k, v := range p.GetPayload() {
		if sv, ok := v.GetKind().(*pb.Value_StringValue); ok {
			meta[k] = sv.StringValue
		}
	}
	c := Candidate{
		ID:        p.GetId().GetUuid(),
		Text:      meta[metaText],
		SourceID:  "qdrant:" + s.collection,
		Type:      Type(meta[metaType]),
		BaseScore: float64(p.GetScore()),
	}
	if id := meta[metaDocID]; id != "" {
		c.ID = id
	}
	delete(meta, metaText)
	delete(meta, metaType)
	delete(meta, metaDocID)
	if len(meta) > 0 {
		c.Metadata = meta
	}
	return c
}
