package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"docchat/internal/models"

	"github.com/rs/zerolog/log"
)

// MemoryStore is a brute-force cosine store backed by two parallel slices.
type MemoryStore struct {
	mu            sync.RWMutex
	minSimilarity float64
	dimension     int
	chunks        []models.DocumentChunk
	embeddings    [][]float32
}

func NewMemoryStore(minSimilarity float64) *MemoryStore {
	return &MemoryStore{minSimilarity: minSimilarity}
}

func (s *MemoryStore) Add(_ context.Context, chunks []string, embeddings [][]float32, filename string) error {
	if err := CheckAligned("memory add", chunks, embeddings); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	for _, e := range embeddings {
		if dim == 0 {
			dim = len(e)
		}
		if len(e) != dim {
			return models.NewValidationError("memory add", fmt.Sprintf("embedding dimension %d, want %d", len(e), dim))
		}
	}
	s.dimension = dim

	for i, text := range chunks {
		s.chunks = append(s.chunks, models.NewDocumentChunk(text, filename, i))
	}
	s.embeddings = append(s.embeddings, embeddings...)

	log.Debug().Str("filename", filename).Int("chunks", len(chunks)).Int("total", len(s.chunks)).Msg("stored chunks")
	return nil
}

func (s *MemoryStore) Search(_ context.Context, query []float32, k int) ([]models.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.chunks) == 0 || k <= 0 {
		return []models.SearchResult{}, nil
	}

	results := make([]models.SearchResult, len(s.chunks))
	for i := range s.chunks {
		results[i] = models.SearchResult{
			Chunk:      s.chunks[i],
			Similarity: CosineSimilarity(query, s.embeddings[i]),
		}
	}
	return TopK(results, k, s.minSimilarity), nil
}

func (s *MemoryStore) DeleteByFilename(_ context.Context, filename string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var idx []int
	for i, c := range s.chunks {
		if c.Filename == filename {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return false, nil
	}

	// highest index first so earlier positions stay valid
	for j := len(idx) - 1; j >= 0; j-- {
		i := idx[j]
		s.chunks = append(s.chunks[:i], s.chunks[i+1:]...)
		s.embeddings = append(s.embeddings[:i], s.embeddings[i+1:]...)
	}

	log.Info().Str("filename", filename).Int("removed", len(idx)).Msg("deleted document")
	return true, nil
}

func (s *MemoryStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.embeddings = nil
	s.dimension = 0
	return nil
}

func (s *MemoryStore) Documents(_ context.Context) ([]models.DocumentSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Summarize(s.chunks), nil
}

func (s *MemoryStore) Stats(_ context.Context) (models.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StatsOf(s.chunks, s.dimension), nil
}

// Len returns the chunk and embedding counts.
func (s *MemoryStore) Len() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), len(s.embeddings)
}
