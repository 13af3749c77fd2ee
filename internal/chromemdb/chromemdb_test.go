package chromemdb

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"docchat/internal/models"
	"docchat/internal/vectorstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func newMemStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), "documents", true, testKey, vectorstore.DefaultMinSimilarity)
	require.NoError(t, err)
	return s
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []string{"alpha zero", "alpha one"}, [][]float32{{1, 0, 0}, {0.9, 0.1, 0}}, "a.txt"))
	require.NoError(t, s.Add(ctx, []string{"beta zero", "beta one", "beta two"}, [][]float32{{0, 1, 0}, {0, 0.9, 0.1}, {0.1, 0.9, 0}}, "b.txt"))
}

func TestStore_AddMismatch(t *testing.T) {
	s := newMemStore(t)
	err := s.Add(context.Background(), []string{"x"}, nil, "x.txt")
	assert.True(t, errors.Is(err, models.ErrValidation))

	err = s.Add(context.Background(), []string{"x"}, [][]float32{{0, 0}}, "x.txt")
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestStore_AddExistingFilenameRejected(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()
	seed(t, s)

	err := s.Add(ctx, []string{"replacement"}, [][]float32{{0, 0, 1}}, "a.txt")
	assert.True(t, errors.Is(err, models.ErrValidation))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalChunks)

	got, err := s.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alpha zero", got[0].Chunk.Text)
}

func TestStore_Search(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	got, err := s.Search(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	seed(t, s)

	got, err = s.Search(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "a.txt_0", got[0].Chunk.ID)
	assert.Equal(t, "a.txt", got[0].Chunk.Filename)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-5)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Similarity, got[i].Similarity)
		assert.Greater(t, got[i].Similarity, vectorstore.DefaultMinSimilarity)
	}

	got, err = s.Search(ctx, []float32{0, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_DeleteAndList(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()
	seed(t, s)

	found, err := s.DeleteByFilename(ctx, "b.txt")
	require.NoError(t, err)
	assert.True(t, found)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalChunks)
	assert.Equal(t, []string{"a.txt"}, stats.Files)
	assert.Equal(t, 3, stats.EmbeddingDimension)

	docs, err := s.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "alpha zero", docs[0].SampleText)
	assert.Equal(t, 2, docs[0].Chunks)

	found, err = s.DeleteByFilename(ctx, "b.txt")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_ClearAll(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()
	seed(t, s)

	require.NoError(t, s.ClearAll(ctx))
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalChunks)
	assert.Empty(t, stats.Files)

	require.NoError(t, s.Add(ctx, []string{"again"}, [][]float32{{1, 1, 1}}, "c.txt"))
	got, err := s.Search(ctx, []float32{1, 1, 1}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "again", got[0].Chunk.Text)
}

func TestStore_PersistentReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "chromemdb")
	ctx := context.Background()

	s, err := NewStore(dir, "documents", false, "", vectorstore.DefaultMinSimilarity)
	require.NoError(t, err)
	seed(t, s)

	s, err = NewStore(dir, "documents", false, "", vectorstore.DefaultMinSimilarity)
	require.NoError(t, err)

	docs, err := s.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a.txt", docs[0].Filename)
	assert.Equal(t, 3, docs[1].Chunks)

	got, err := s.Search(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b.txt_0", got[0].Chunk.ID)
}

func TestStore_ExportImport(t *testing.T) {
	ctx := context.Background()
	src := newMemStore(t)
	seed(t, src)

	file := filepath.Join(t.TempDir(), "documents.chromem")
	require.NoError(t, src.Export(ctx, file))

	dst := newMemStore(t)
	dst.SetDimension(3)
	require.NoError(t, dst.Import(ctx, file))

	stats, err := dst.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalChunks)
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, stats.Files)

	docs, err := dst.Documents(ctx)
	require.NoError(t, err)
	for _, d := range docs {
		assert.True(t, strings.HasSuffix(d.SampleText, "zero"))
	}
}

func TestStore_ExportNeedsKey(t *testing.T) {
	s, err := NewStore(t.TempDir(), "documents", true, "", vectorstore.DefaultMinSimilarity)
	require.NoError(t, err)
	assert.Error(t, s.Export(context.Background(), ""))
}
