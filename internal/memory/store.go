// Package memory gives the narrator recall of earlier scenes: assistant
// narration is embedded and stored in qdrant, and related snippets are fed
// back into NPC and turn prompts. The whole layer is optional; gameplay
// never blocks on it.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"

	"Uncanny-Terrors/server/internal/config"
)

// Embedder turns text into a vector. Satisfied by the openai embedder and
// by test fakes.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the qdrant-backed scene memory.
type Store struct {
	client     *qdrant.Client
	embed      Embedder
	collection string
	vectorSize int
	log        zerolog.Logger
}

// scoreThreshold drops weakly related scenes from recall results.
const scoreThreshold = float32(0.3)

// New connects to qdrant and ensures the collection exists.
func New(ctx context.Context, cfg config.MemoryConfig, embed Embedder, log zerolog.Logger) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "scenes"
	}

	s := &Store{
		client:     client,
		embed:      embed,
		collection: collection,
		vectorSize: cfg.VectorSize,
		log:        log.With().Str("component", "memory").Logger(),
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// Close releases the qdrant connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Remember embeds and stores one scene. Failures are logged and dropped.
func (s *Store) Remember(ctx context.Context, profileID, content string) {
	if content == "" {
		return
	}

	vector, err := s.embed.Embed(ctx, content)
	if err != nil {
		s.log.Warn().Err(err).Msg("scene embedding failed")
		return
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(uuid.NewString()),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"profile":   profileID,
				"content":   content,
				"timestamp": time.Now().Unix(),
			}),
		}},
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("scene upsert failed")
	}
}

// Recall returns up to limit scene snippets related to the query, scoped to
// the profile. Failures are logged and yield no recall.
func (s *Store) Recall(ctx context.Context, profileID, query string, limit int) []string {
	if limit <= 0 {
		return nil
	}

	vector, err := s.embed.Embed(ctx, query)
	if err != nil {
		s.log.Warn().Err(err).Msg("query embedding failed")
		return nil
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("profile", profileID),
			},
		},
		Limit:          qdrant.PtrOf(uint64(limit)),
		ScoreThreshold: qdrant.PtrOf(scoreThreshold),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("scene recall failed")
		return nil
	}

	snippets := make([]string, 0, len(points))
	for _, point := range points {
		if value, ok := point.Payload["content"]; ok {
			if text := value.GetStringValue(); text != "" {
				snippets = append(snippets, text)
			}
		}
	}
	return snippets
}
