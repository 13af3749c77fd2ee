package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"docchat/internal/config"
	"docchat/internal/models"
	"docchat/internal/vectorstore"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// Chunk is one row of document_chunks.
type Chunk struct {
	bun.BaseModel `bun:"table:document_chunks,alias:dc"`
	ID            string          `bun:"id,pk"`
	Filename      string          `bun:"filename,notnull"`
	ChunkIndex    int             `bun:"chunk_index,notnull"`
	Content       string          `bun:"content,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	Similarity    float64         `bun:"similarity,scanonly"`
}

type docRow struct {
	Filename string `bun:"filename"`
	Chunks   int    `bun:"chunks"`
	Sample   string `bun:"sample"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the pool with pgdriver, or lib/pq when driver is
// "postgres".
func ConnectDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, models.NewValidationError("connect db", "database dsn is required")
	}
	switch cfg.Driver {
	case "pgdriver", "":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN))), nil
	case "postgres", "pq":
		return sql.Open("postgres", cfg.DSN)
	default:
		return nil, models.NewValidationError("connect db", fmt.Sprintf("unknown driver %q", cfg.Driver))
	}
}

// Schema returns the DDL for a table holding dim-sized vectors.
func Schema(dim int) []string {
	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
	id text PRIMARY KEY,
	filename text NOT NULL,
	chunk_index integer NOT NULL,
	content text NOT NULL,
	embedding vector(%d) NOT NULL,
	created_at timestamptz NOT NULL DEFAULT current_timestamp
)`, dim),
		"CREATE INDEX IF NOT EXISTS document_chunks_filename_idx ON document_chunks (filename)",
	}
}

func InitDB(ctx context.Context, db *bun.DB, dim int) error {
	for _, stmt := range Schema(dim) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Store is a vectorstore.Store on PostgreSQL with pgvector.
type Store struct {
	db            *bun.DB
	dimension     int
	minSimilarity float64
}

var _ vectorstore.Store = (*Store)(nil)

func NewStore(db *bun.DB, dimension int, minSimilarity float64) *Store {
	return &Store{db: db, dimension: dimension, minSimilarity: minSimilarity}
}

// Open connects, creates the schema and returns the store.
func Open(ctx context.Context, cfg config.DatabaseConfig, dimension int, minSimilarity float64) (*Store, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	db := NewDB(sqldb, cfg.Debug)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := InitDB(ctx, db, dimension); err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Str("driver", cfg.Driver).Int("dimension", dimension).Msg("Connected to pgvector store")
	return NewStore(db, dimension, minSimilarity), nil
}

func (s *Store) Add(ctx context.Context, chunks []string, embeddings [][]float32, filename string) error {
	if err := vectorstore.CheckAligned("pgvector add", chunks, embeddings); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	rows := make([]Chunk, len(chunks))
	for i, text := range chunks {
		if s.dimension > 0 && len(embeddings[i]) != s.dimension {
			return models.NewValidationError("pgvector add",
				fmt.Sprintf("embedding dimension %d, want %d", len(embeddings[i]), s.dimension))
		}
		rows[i] = Chunk{
			ID:         models.ChunkID(filename, i),
			Filename:   filename,
			ChunkIndex: i,
			Content:    text,
			Embedding:  pgvector.NewVector(embeddings[i]),
		}
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("store %s: %w", filename, err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error) {
	// cosine distance against a zero vector is NaN
	if k <= 0 || vectorstore.IsZero(query) {
		return []models.SearchResult{}, nil
	}

	vec := pgvector.NewVector(query)
	var rows []Chunk
	err := s.db.NewSelect().
		Model(&rows).
		Column("id", "filename", "chunk_index", "content").
		ColumnExpr("1 - (embedding <=> ?) AS similarity", vec).
		Where("1 - (embedding <=> ?) > ?", vec, s.minSimilarity).
		OrderExpr("embedding <=> ?", vec).
		Limit(k).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}

	out := make([]models.SearchResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.SearchResult{
			Chunk: models.DocumentChunk{
				ID:         r.ID,
				Text:       r.Content,
				Filename:   r.Filename,
				ChunkIndex: r.ChunkIndex,
			},
			Similarity: r.Similarity,
		})
	}
	return vectorstore.TopK(out, k, s.minSimilarity), nil
}

func (s *Store) DeleteByFilename(ctx context.Context, filename string) (bool, error) {
	res, err := s.db.NewDelete().
		Model((*Chunk)(nil)).
		Where("filename = ?", filename).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", filename, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		log.Info().Str("filename", filename).Int64("removed", n).Msg("deleted document")
	}
	return n > 0, nil
}

func (s *Store) ClearAll(ctx context.Context) error {
	_, err := s.db.NewTruncateTable().Model((*Chunk)(nil)).Exec(ctx)
	return err
}

func (s *Store) Documents(ctx context.Context) ([]models.DocumentSummary, error) {
	var rows []docRow
	err := s.db.NewSelect().
		Model((*Chunk)(nil)).
		Column("filename").
		ColumnExpr("count(*) AS chunks").
		ColumnExpr("(array_agg(content ORDER BY chunk_index))[1] AS sample").
		Group("filename").
		OrderExpr("min(created_at), filename").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	out := make([]models.DocumentSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.DocumentSummary{
			Filename:   r.Filename,
			Chunks:     r.Chunks,
			SampleText: models.SampleText(r.Sample),
		})
	}
	return out, nil
}

func (s *Store) Stats(ctx context.Context) (models.StoreStats, error) {
	docs, err := s.Documents(ctx)
	if err != nil {
		return models.StoreStats{}, err
	}
	stats := models.StoreStats{
		Files:              make([]string, 0, len(docs)),
		EmbeddingDimension: s.dimension,
	}
	for _, d := range docs {
		stats.TotalChunks += d.Chunks
		stats.Files = append(stats.Files, d.Filename)
	}
	stats.TotalFiles = len(stats.Files)
	return stats, nil
}

// DropDocuments removes the table entirely.
func DropDocuments(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*Chunk)(nil)).IfExists().Exec(ctx)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}
