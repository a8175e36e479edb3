package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/solace-ai/solace/pkg/config"
	"github.com/solace-ai/solace/pkg/db"
	"github.com/solace-ai/solace/pkg/utils"
	"github.com/solace-ai/solace/pkg/vectors"
)

// MemoryService indexes extracted memories with embeddings and retrieves the
// most relevant ones for a query. Memories live inside their conversation in
// the state document; this service only adds vectors and ranking on top.
type MemoryService struct {
	store    *ConversationService
	embedder Embedder
	logger   *slog.Logger
}

func NewMemoryService(store *ConversationService, embedder Embedder) *MemoryService {
	return &MemoryService{
		store:    store,
		embedder: embedder,
		logger:   utils.GetLogger(),
	}
}

// Index embeds the text and stores it as a memory on the given conversation.
func (s *MemoryService) Index(ctx context.Context, convID, text string) error {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed memory: %w", err)
	}
	return s.store.AddMemory(convID, db.MemoryEntry{
		Text:      text,
		Embedding: vec,
		AddedAt:   time.Now(),
	})
}

// Retrieve returns up to topK memory texts from the active conversation,
// most similar first. Entries stored without an embedding rank after every
// embedded entry but still surface while slots remain, so a degraded index
// loses recall quality rather than content. An empty memory set returns
// empty without touching the embedder.
func (s *MemoryService) Retrieve(ctx context.Context, query string, topK int) ([]string, error) {
	entries := s.store.Memories()
	if len(entries) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = config.DefaultMemoryTopK
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	type scored struct {
		text     string
		score    float64
		embedded bool
	}
	ranked := make([]scored, 0, len(entries))
	for _, entry := range entries {
		sc := scored{text: entry.Text}
		if len(entry.Embedding) > 0 {
			sc.score = vectors.Cosine(queryVec, entry.Embedding)
			sc.embedded = true
		}
		ranked = append(ranked, sc)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].embedded != ranked[j].embedded {
			return ranked[i].embedded
		}
		return ranked[i].score > ranked[j].score
	})

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	out := make([]string, len(ranked))
	for i, sc := range ranked {
		out[i] = sc.text
	}
	return out, nil
}
