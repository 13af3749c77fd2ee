package vectorstore

import (
	"context"
	"math"
	"sort"

	"docchat/internal/models"
)

// DefaultMinSimilarity drops results that are barely related to the query.
const DefaultMinSimilarity = 0.1

// Store keeps chunks and their embeddings index aligned.
type Store interface {
	Add(ctx context.Context, chunks []string, embeddings [][]float32, filename string) error
	Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error)
	// DeleteByFilename reports whether any chunk of filename was stored.
	DeleteByFilename(ctx context.Context, filename string) (bool, error)
	ClearAll(ctx context.Context) error
	Documents(ctx context.Context) ([]models.DocumentSummary, error)
	Stats(ctx context.Context) (models.StoreStats, error)
}

func CheckAligned(op string, chunks []string, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return models.NewValidationError(op, "chunks and embeddings length mismatch")
	}
	return nil
}

// CosineSimilarity returns 0 when either vector has zero norm or the
// lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// IsZero reports whether v has no direction to compare against.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// TopK filters results below minSimilarity and keeps the k best,
// highest similarity first. Ties keep their input order.
func TopK(results []models.SearchResult, k int, minSimilarity float64) []models.SearchResult {
	kept := results[:0:0]
	for _, r := range results {
		if r.Similarity > minSimilarity {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Similarity > kept[j].Similarity
	})
	if k >= 0 && len(kept) > k {
		kept = kept[:k]
	}
	return kept
}

// Summarize groups chunks by filename in first-seen order.
func Summarize(chunks []models.DocumentChunk) []models.DocumentSummary {
	var summaries []models.DocumentSummary
	index := make(map[string]int)
	for _, c := range chunks {
		i, ok := index[c.Filename]
		if !ok {
			index[c.Filename] = len(summaries)
			summaries = append(summaries, models.DocumentSummary{
				Filename:   c.Filename,
				SampleText: models.SampleText(c.Text),
			})
			i = len(summaries) - 1
		}
		summaries[i].Chunks++
	}
	return summaries
}

func StatsOf(chunks []models.DocumentChunk, dimension int) models.StoreStats {
	summaries := Summarize(chunks)
	files := make([]string, 0, len(summaries))
	for _, s := range summaries {
		files = append(files, s.Filename)
	}
	return models.StoreStats{
		TotalChunks:        len(chunks),
		TotalFiles:         len(files),
		Files:              files,
		EmbeddingDimension: dimension,
	}
}
