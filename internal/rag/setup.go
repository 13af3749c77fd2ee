package rag

import (
	"context"
	"fmt"
	"path/filepath"

	"docchat/internal/chromemdb"
	"docchat/internal/config"
	"docchat/internal/db"
	"docchat/internal/embedding"
	"docchat/internal/helper"
	"docchat/internal/llmservice"
	"docchat/internal/models"
	"docchat/internal/session"
	"docchat/internal/vectorstore"

	"github.com/rs/zerolog/log"
)

// NewVectorStore opens the backend named by rag.vector_store.
func NewVectorStore(ctx context.Context, cfg *config.Config) (vectorstore.Store, error) {
	switch cfg.RAG.VectorStore {
	case "memory", "":
		return vectorstore.NewMemoryStore(cfg.RAG.MinSimilarity), nil
	case "chromem":
		if !cfg.RAG.InMemory {
			if err := helper.CreateFolder(cfg.RAG.DBPath); err != nil {
				return nil, err
			}
		}
		store, err := chromemdb.NewStore(cfg.RAG.DBPath, cfg.RAG.CollectionName, cfg.RAG.InMemory, cfg.RAG.EncryptionKey, cfg.RAG.MinSimilarity)
		if err != nil {
			return nil, err
		}
		store.SetDimension(cfg.RAG.EmbeddingDim)
		return store, nil
	case "pgvector":
		return db.Open(ctx, cfg.Database, cfg.RAG.EmbeddingDim, cfg.RAG.MinSimilarity)
	default:
		return nil, models.NewValidationError("vector store", fmt.Sprintf("unknown vector store %q", cfg.RAG.VectorStore))
	}
}

func NewHistoryStore(cfg *config.Config) (session.HistoryStore, error) {
	switch cfg.Session.Store {
	case "memory", "":
		return session.NewMemoryStore(cfg.Chat.HistorySize), nil
	case "bolt":
		return session.NewBoltStore(filepath.Clean(cfg.Session.Path), cfg.Chat.HistorySize)
	default:
		return nil, models.NewValidationError("session store", fmt.Sprintf("unknown session store %q", cfg.Session.Store))
	}
}

// Build wires a Service from configuration. The returned close func
// releases the stores.
func Build(ctx context.Context, cfg *config.Config) (*Service, func(), error) {
	store, err := NewVectorStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("vector store: %w", err)
	}
	history, err := NewHistoryStore(cfg)
	if err != nil {
		closeStore(store)
		return nil, nil, fmt.Errorf("session store: %w", err)
	}
	closeAll := func() {
		if err := history.Close(); err != nil {
			log.Warn().Err(err).Msg("closing session store")
		}
		closeStore(store)
	}

	embedder, err := embedding.NewEmbedder(cfg.EmbedLLM)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("embedder: %w", err)
	}
	client := embedding.NewClient(embedder, cfg.EmbedLLM.BatchSize)
	client.SetDimension(cfg.RAG.EmbeddingDim)

	llm, err := llmservice.NewChatModel(cfg.LLM)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("chat model: %w", err)
	}

	svc, err := New(cfg, store, client, llm, history)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return svc, closeAll, nil
}

func closeStore(store vectorstore.Store) {
	if c, ok := store.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("closing vector store")
		}
	}
}

// Exporter is implemented by stores that can write and restore an
// encrypted snapshot.
type Exporter interface {
	Export(ctx context.Context, filePath string) error
	Import(ctx context.Context, filePath string) error
}

// Export snapshots the vector store when its backend supports it.
func (s *Service) Export(ctx context.Context, filePath string) error {
	exp, ok := s.store.(Exporter)
	if !ok {
		return models.NewValidationError("export", "vector store does not support export")
	}
	return exp.Export(ctx, filePath)
}

// Import replaces the store contents with a snapshot written by Export.
func (s *Service) Import(ctx context.Context, filePath string) error {
	exp, ok := s.store.(Exporter)
	if !ok {
		return models.NewValidationError("import", "vector store does not support import")
	}
	if err := exp.Import(ctx, filePath); err != nil {
		return err
	}
	s.cache.Clear()
	return nil
}
