package chromemdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"docchat/internal/models"
	"docchat/internal/vectorstore"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
)

const (
	compress = false

	metaFilename   = "filename"
	metaChunkIndex = "chunk_index"
)

// manifest remembers what chromem cannot list: files in insertion order,
// their chunk counts and the embedding dimension.
type manifest struct {
	Files     []string       `json:"files"`
	Chunks    map[string]int `json:"chunks"`
	Dimension int            `json:"dimension"`
}

// Store is a vectorstore.Store on top of a chromem-go collection.
type Store struct {
	mu             sync.RWMutex
	db             *chromem.DB
	collection     *chromem.Collection
	collectionName string
	dbPath         string
	inMemory       bool
	encryptionKey  string
	minSimilarity  float64
	manifest       manifest
}

var _ vectorstore.Store = (*Store)(nil)

// NewStore opens (or creates) the collection. Embeddings always come from the
// caller, so the collection's own embedding func refuses to run.
func NewStore(dbPath, collectionName string, inMemory bool, encryptionKey string, minSimilarity float64) (*Store, error) {
	var (
		db  *chromem.DB
		err error
	)
	if inMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	s := &Store{
		db:             db,
		collectionName: collectionName,
		dbPath:         dbPath,
		inMemory:       inMemory,
		encryptionKey:  encryptionKey,
		minSimilarity:  minSimilarity,
		manifest:       manifest{Chunks: make(map[string]int)},
	}
	if _, err := s.getOrCreateCollection(); err != nil {
		return nil, err
	}
	if err := s.loadManifest(); err != nil {
		return nil, err
	}

	log.Debug().Str("collection", collectionName).Bool("in_memory", inMemory).Int("count", s.collection.Count()).Msg("Opened chromem collection")
	return s, nil
}

// SetDimension records the embedding size when nothing has been stored yet.
// Import needs it to list a collection it did not write.
func (s *Store) SetDimension(dim int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manifest.Dimension == 0 {
		s.manifest.Dimension = dim
	}
}

func (s *Store) getOrCreateCollection() (*chromem.Collection, error) {
	c, err := s.db.GetOrCreateCollection(s.collectionName, nil, refuseEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	s.collection = c
	return c, nil
}

func refuseEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromemdb: embeddings must be supplied by the caller")
}

func (s *Store) Add(ctx context.Context, chunks []string, embeddings [][]float32, filename string) error {
	if err := vectorstore.CheckAligned("chromem add", chunks, embeddings); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// chunk ids derive from the filename; a second add would overwrite them
	if _, ok := s.manifest.Chunks[filename]; ok {
		return models.NewValidationError("chromem add", fmt.Sprintf("document %q already stored", filename))
	}

	docs := make([]chromem.Document, len(chunks))
	for i, text := range chunks {
		if vectorstore.IsZero(embeddings[i]) {
			return models.NewValidationError("chromem add", fmt.Sprintf("chunk %d has a zero embedding", i))
		}
		docs[i] = chromem.Document{
			ID:      models.ChunkID(filename, i),
			Content: text,
			Metadata: map[string]string{
				metaFilename:   filename,
				metaChunkIndex: strconv.Itoa(i),
			},
			Embedding: embeddings[i],
		}
	}

	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}

	s.manifest.Files = append(s.manifest.Files, filename)
	s.manifest.Chunks[filename] = len(chunks)
	s.manifest.Dimension = len(embeddings[0])
	return s.saveManifest()
}

func (s *Store) Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.collection.Count()
	// chromem normalizes the query, which is undefined for a zero vector
	if count == 0 || k <= 0 || vectorstore.IsZero(query) {
		return []models.SearchResult{}, nil
	}

	results, err := s.collection.QueryEmbedding(ctx, query, min(k, count), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, models.SearchResult{
			Chunk:      toChunk(r.ID, r.Content, r.Metadata),
			Similarity: float64(r.Similarity),
		})
	}
	return vectorstore.TopK(out, k, s.minSimilarity), nil
}

func (s *Store) DeleteByFilename(ctx context.Context, filename string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.manifest.Chunks[filename]
	if !ok {
		return false, nil
	}

	ids := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		ids = append(ids, models.ChunkID(filename, i))
	}
	if err := s.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", filename, err)
	}

	delete(s.manifest.Chunks, filename)
	for i, f := range s.manifest.Files {
		if f == filename {
			s.manifest.Files = append(s.manifest.Files[:i], s.manifest.Files[i+1:]...)
			break
		}
	}
	log.Info().Str("filename", filename).Int("removed", n).Msg("deleted document")
	return true, s.saveManifest()
}

// ClearAll drops the collection and starts an empty one.
func (s *Store) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(s.collectionName); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	if _, err := s.getOrCreateCollection(); err != nil {
		return err
	}
	s.manifest = manifest{Chunks: make(map[string]int)}
	return s.saveManifest()
}

func (s *Store) Documents(ctx context.Context) ([]models.DocumentSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]models.DocumentSummary, 0, len(s.manifest.Files))
	for _, f := range s.manifest.Files {
		summary := models.DocumentSummary{Filename: f, Chunks: s.manifest.Chunks[f]}
		doc, err := s.collection.GetByID(ctx, models.ChunkID(f, 0))
		if err == nil {
			summary.SampleText = models.SampleText(doc.Content)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *Store) Stats(_ context.Context) (models.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return models.StoreStats{
		TotalChunks:        s.collection.Count(),
		TotalFiles:         len(s.manifest.Files),
		Files:              append([]string{}, s.manifest.Files...),
		EmbeddingDimension: s.manifest.Dimension,
	}, nil
}

// Export writes the collection to an encrypted file. The key must be 32 bytes.
func (s *Store) Export(_ context.Context, filePath string) error {
	if s.encryptionKey == "" {
		return models.NewValidationError("export", "encryption key is required")
	}
	if filePath == "" {
		filePath = filepath.Join(s.dbPath, s.collectionName+".chromem")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	log.Debug().Str("collection", s.collectionName).Str("file", filePath).Bool("compress", compress).Msg("Exporting collection")
	if err := s.db.ExportToFile(filePath, compress, s.encryptionKey, s.collectionName); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// Import replaces the collection with the one stored in filePath. The
// manifest is rebuilt from the imported chunk metadata.
func (s *Store) Import(ctx context.Context, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.ImportFromFile(filePath, s.encryptionKey, s.collectionName); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	if _, err := s.getOrCreateCollection(); err != nil {
		return err
	}
	return s.rebuildManifest(ctx)
}

func (s *Store) rebuildManifest(ctx context.Context) error {
	count := s.collection.Count()
	if count == 0 {
		s.manifest = manifest{Chunks: make(map[string]int)}
		return s.saveManifest()
	}

	// any non-zero probe ranks every document; only the metadata is used
	probe, err := s.anyEmbedding(ctx)
	if err != nil {
		return err
	}
	results, err := s.collection.QueryEmbedding(ctx, probe, count, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	rebuilt := manifest{Chunks: make(map[string]int)}
	for _, r := range results {
		name := r.Metadata[metaFilename]
		if _, ok := rebuilt.Chunks[name]; !ok {
			rebuilt.Files = append(rebuilt.Files, name)
		}
		rebuilt.Chunks[name]++
		rebuilt.Dimension = len(r.Embedding)
	}
	sort.Strings(rebuilt.Files)
	s.manifest = rebuilt
	return s.saveManifest()
}

// anyEmbedding finds a probe vector for listing the collection.
func (s *Store) anyEmbedding(ctx context.Context) ([]float32, error) {
	for _, f := range s.manifest.Files {
		if doc, err := s.collection.GetByID(ctx, models.ChunkID(f, 0)); err == nil {
			return doc.Embedding, nil
		}
	}
	if s.manifest.Dimension > 0 {
		probe := make([]float32, s.manifest.Dimension)
		probe[0] = 1
		return probe, nil
	}
	return nil, fmt.Errorf("unknown embedding dimension")
}

func (s *Store) manifestPath() string {
	return filepath.Join(s.dbPath, s.collectionName+".manifest.json")
}

func (s *Store) loadManifest() error {
	if s.inMemory {
		return nil
	}
	data, err := os.ReadFile(s.manifestPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	if m.Chunks == nil {
		m.Chunks = make(map[string]int)
	}
	s.manifest = m
	return nil
}

func (s *Store) saveManifest() error {
	if s.inMemory {
		return nil
	}
	data, err := json.Marshal(s.manifest)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.manifestPath(), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func toChunk(id, content string, meta map[string]string) models.DocumentChunk {
	idx, _ := strconv.Atoi(meta[metaChunkIndex])
	return models.DocumentChunk{
		ID:         id,
		Text:       content,
		Filename:   meta[metaFilename],
		ChunkIndex: idx,
	}
}
