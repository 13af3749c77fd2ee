package rag

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"docchat/internal/cache"
	"docchat/internal/config"
	"docchat/internal/helper"
	"docchat/internal/llmservice"
	"docchat/internal/models"
	"docchat/internal/parser"
	"docchat/internal/ratelimit"
	"docchat/internal/session"
	"docchat/internal/vectorstore"

	"github.com/rs/zerolog/log"
)

// Embedder is what the service needs from the embedding client.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Service ties retrieval, caching, rate limiting and the chat model together.
// All of its collaborators are safe for concurrent use.
type Service struct {
	store    vectorstore.Store
	embedder Embedder
	llm      llmservice.ChatModel
	history  session.HistoryStore
	chunker  *parser.Chunker
	cache    *cache.ResponseCache

	chatLimiter   *ratelimit.SlidingWindowLimiter
	uploadLimiter *ratelimit.SlidingWindowLimiter
	uploadMu      sync.Mutex

	faqs             []models.FAQ
	topK             int
	promptHistory    int
	maxMessageLength int
	maxFileSize      int64

	extract func(ctx context.Context, path string) (string, error)
	now     func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithExtractor replaces parser.Extract.
func WithExtractor(fn func(ctx context.Context, path string) (string, error)) Option {
	return func(s *Service) { s.extract = fn }
}

func WithFAQs(faqs []models.FAQ) Option {
	return func(s *Service) { s.faqs = faqs }
}

func WithCache(c *cache.ResponseCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithLimiters(chat, upload *ratelimit.SlidingWindowLimiter) Option {
	return func(s *Service) {
		s.chatLimiter = chat
		s.uploadLimiter = upload
	}
}

func New(cfg *config.Config, store vectorstore.Store, embedder Embedder, llm llmservice.ChatModel, history session.HistoryStore, opts ...Option) (*Service, error) {
	chunker, err := parser.NewChunkerFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	scope := ratelimit.WithScope(ratelimit.Scope(cfg.RateLimit.Scope))
	s := &Service{
		store:            store,
		embedder:         embedder,
		llm:              llm,
		history:          history,
		chunker:          chunker,
		cache:            cache.New(cfg.Cache.TTL(), cfg.Cache.MaxEntries),
		chatLimiter:      ratelimit.NewSlidingWindowLimiter(cfg.RateLimit.ChatPerMinute, cfg.RateLimit.Window(), scope),
		uploadLimiter:    ratelimit.NewSlidingWindowLimiter(cfg.RateLimit.UploadPerMinute, cfg.RateLimit.Window(), scope),
		faqs:             models.DefaultFAQs,
		topK:             cfg.RAG.TopK,
		promptHistory:    cfg.Chat.PromptHistory,
		maxMessageLength: cfg.Chat.MaxMessageLength,
		maxFileSize:      int64(cfg.RAG.MaxFileSizeMB) << 20,
		extract:          parser.Extract,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ProcessUpload indexes files one by one. A failing file gets an error
// entry and the rest of the batch continues; files already stored stay
// stored. The error return is reserved for rejecting the whole call.
func (s *Service) ProcessUpload(ctx context.Context, callerKey string, files []models.UploadFile) ([]models.FileStatus, error) {
	if len(files) == 0 {
		return nil, models.NewValidationError("upload", "no files provided")
	}
	if d := s.uploadLimiter.Allow(callerKey); !d.Allowed {
		return nil, models.NewRateLimitError("upload", "too many uploads", d.RetryAfter, nil)
	}

	// stored names are picked against the store, so batches run one at a time
	s.uploadMu.Lock()
	defer s.uploadMu.Unlock()

	taken, err := s.storedNames(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]models.FileStatus, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return statuses, err
		}
		status := s.processFile(ctx, f, taken)
		statuses = append(statuses, status)

		ev := log.Info()
		if status.Status != models.StatusSuccess {
			ev = log.Warn().Str("reason", status.Message)
		}
		ev.Str("filename", f.Name).Str("stored_as", status.StoredAs).Int("chunks", status.Chunks).Msg("processed upload")
	}
	return statuses, nil
}

// storedNames lists the filenames already in the store.
func (s *Service) storedNames(ctx context.Context) (map[string]bool, error) {
	docs, err := s.store.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	taken := make(map[string]bool, len(docs))
	for _, d := range docs {
		taken[d.Filename] = true
	}
	return taken, nil
}

// processFile stores one file under a name not in taken and records it there.
func (s *Service) processFile(ctx context.Context, f models.UploadFile, taken map[string]bool) models.FileStatus {
	status := models.FileStatus{Filename: f.Name, Status: models.StatusError}

	if !parser.Supported(f.Name) {
		status.Message = "File type not supported"
		return status
	}
	info, err := os.Stat(f.Path)
	if err != nil {
		status.Message = fmt.Sprintf("Cannot read file: %v", err)
		return status
	}
	if s.maxFileSize > 0 && info.Size() > s.maxFileSize {
		status.Message = fmt.Sprintf("File too large (max %d MB)", s.maxFileSize>>20)
		return status
	}

	text, err := s.extract(ctx, f.Path)
	if err != nil {
		status.Message = fmt.Sprintf("Failed to extract text: %v", err)
		return status
	}
	chunks := s.chunker.Texts(text)
	if len(chunks) == 0 {
		status.Message = "No text content could be extracted"
		return status
	}

	embeddings, err := s.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		status.Message = fmt.Sprintf("Failed to create embeddings: %v", err)
		return status
	}

	// same-named files in one second would otherwise share chunk ids
	storedAs := helper.UniqueFilename(helper.StoredFilename(f.Name, s.now()), func(name string) bool { return taken[name] })
	if err := s.store.Add(ctx, chunks, embeddings, storedAs); err != nil {
		status.Message = fmt.Sprintf("Failed to store document: %v", err)
		return status
	}
	taken[storedAs] = true

	status.Status = models.StatusSuccess
	status.StoredAs = storedAs
	status.Chunks = len(chunks)
	status.Message = fmt.Sprintf("Processed into %d chunks", len(chunks))
	return status
}

func (s *Service) ListDocuments(ctx context.Context) ([]models.DocumentSummary, error) {
	return s.store.Documents(ctx)
}

// DeleteDocument removes every chunk stored under filename.
func (s *Service) DeleteDocument(ctx context.Context, filename string) error {
	if filename == "" {
		return models.NewValidationError("delete document", "filename is required")
	}
	found, err := s.store.DeleteByFilename(ctx, filename)
	if err != nil {
		return err
	}
	if !found {
		return models.NewNotFoundError("delete document", fmt.Sprintf("document %q not found", filename))
	}
	// answers may quote the removed file
	s.cache.Clear()
	return nil
}

// ClearAll empties the store and the response cache.
func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	s.cache.Clear()
	log.Info().Msg("cleared all documents")
	return nil
}

func (s *Service) ClearSession(ctx context.Context, sessionID string) error {
	return s.history.Clear(ctx, sessionID)
}

func (s *Service) History(ctx context.Context, sessionID string) ([]models.ChatExchange, error) {
	return s.history.History(ctx, sessionID)
}

func (s *Service) Status(ctx context.Context, sessionID string) (models.SessionStatus, error) {
	history, err := s.history.History(ctx, sessionID)
	if err != nil {
		return models.SessionStatus{}, err
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return models.SessionStatus{}, err
	}
	return models.SessionStatus{
		SessionID:     sessionID,
		HistoryLength: len(history),
		HasDocuments:  stats.TotalChunks > 0,
		DocumentCount: stats.TotalFiles,
	}, nil
}

func (s *Service) Stats(ctx context.Context) (models.StoreStats, error) {
	return s.store.Stats(ctx)
}
