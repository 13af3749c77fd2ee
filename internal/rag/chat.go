package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"docchat/internal/cache"
	"docchat/internal/llmservice"
	"docchat/internal/models"

	"github.com/rs/zerolog/log"
)

var thinkTag = regexp.MustCompile(models.ThinkTag)

// Chat answers one message. Only invalid input is returned as an error;
// provider trouble becomes a fallback answer with Source set accordingly.
func (s *Service) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResult, error) {
	message := strings.TrimSpace(req.Message)
	if req.SessionID == "" {
		return nil, models.NewValidationError("chat", "session id is required")
	}
	if message == "" {
		return nil, models.NewValidationError("chat", "message is empty")
	}
	if s.maxMessageLength > 0 && utf8.RuneCountInString(message) > s.maxMessageLength {
		return nil, models.NewValidationError("chat", fmt.Sprintf("message longer than %d characters", s.maxMessageLength))
	}

	results := s.retrieve(ctx, message)
	res := s.answer(ctx, req, message, results)
	res.ContextUsed = len(results) > 0
	res.Sources = sources(results)

	n, err := s.history.Append(ctx, req.SessionID, models.NewChatExchange(message, res.Response, s.now()))
	if err != nil {
		log.Warn().Err(err).Str("session", req.SessionID).Msg("failed to record chat history")
	}
	res.HistoryLength = n
	return res, nil
}

func (s *Service) answer(ctx context.Context, req models.ChatRequest, message string, results []models.SearchResult) *models.ChatResult {
	key := cache.Key(message, contextSize(results))
	if cached, ok := s.cache.Get(key); ok {
		log.Debug().Str("session", req.SessionID).Msg("served from cache")
		return &models.ChatResult{Response: cached, Source: models.SourceCache}
	}

	if len(results) == 0 {
		if faq, ok := matchFAQ(s.faqs, message); ok {
			return &models.ChatResult{Response: faq.Answer, Source: models.SourceFAQ}
		}
	}

	callerKey := req.CallerKey
	if callerKey == "" {
		callerKey = req.SessionID
	}
	if d := s.chatLimiter.Allow(callerKey); !d.Allowed {
		log.Warn().Str("caller", callerKey).Dur("retry_after", d.RetryAfter).Msg("chat rate limited")
		return &models.ChatResult{
			Response:   degradedResponse(message, results),
			Source:     models.SourceDegraded,
			RetryAfter: d.RetryAfter,
		}
	}

	history, err := s.history.History(ctx, req.SessionID)
	if err != nil {
		log.Warn().Err(err).Str("session", req.SessionID).Msg("failed to read chat history")
	}

	reply, err := s.llm.Complete(ctx, buildMessages(message, history, results, s.promptHistory))
	if err == nil {
		reply = strings.TrimSpace(thinkTag.ReplaceAllString(reply, ""))
		if reply == "" {
			err = models.NewProviderError("chat", errors.New("empty completion"))
		}
	}
	if err != nil {
		return s.failure(message, err)
	}

	s.cache.Put(key, reply)
	return &models.ChatResult{Response: reply, Source: models.SourceLLM}
}

func (s *Service) failure(message string, err error) *models.ChatResult {
	if errors.Is(err, models.ErrRateLimited) {
		retry := models.RetryAfter(err)
		if retry <= 0 {
			retry = models.DefaultRetryAfter
		}
		log.Warn().Err(err).Dur("retry_after", retry).Msg("provider rate limited")
		return &models.ChatResult{
			Response:   fmt.Sprintf(models.RateLimitedMessageTemplate, int(math.Ceil(retry.Seconds()))),
			Source:     models.SourceRateLimited,
			RetryAfter: retry,
		}
	}

	log.Error().Err(err).Msg("chat completion failed")
	if faq, ok := matchFAQ(s.faqs, message); ok {
		return &models.ChatResult{Response: faq.Answer, Source: models.SourceError}
	}
	return &models.ChatResult{Response: models.FailureMessage, Source: models.SourceError}
}

// retrieve never fails the chat: without a usable query vector the message
// is answered without document context.
func (s *Service) retrieve(ctx context.Context, message string) []models.SearchResult {
	vector, err := s.embedder.EmbedQuery(ctx, message)
	if err != nil {
		log.Warn().Err(err).Msg("query embedding unavailable, answering without context")
		return nil
	}
	results, err := s.store.Search(ctx, vector, s.topK)
	if err != nil {
		log.Warn().Err(err).Msg("similarity search failed, answering without context")
		return nil
	}
	return results
}

func contextSize(results []models.SearchResult) int {
	n := 0
	for _, r := range results {
		n += utf8.RuneCountInString(r.Chunk.Text)
	}
	return n
}

func sources(results []models.SearchResult) []models.ChatSource {
	if len(results) == 0 {
		return nil
	}
	out := make([]models.ChatSource, len(results))
	for i, r := range results {
		out[i] = models.ChatSource{Filename: r.Chunk.Filename, ChunkIndex: r.Chunk.ChunkIndex, Similarity: r.Similarity}
	}
	return out
}

// buildMessages lays out system prompt, the last keep exchanges, then the
// retrieved context together with the new message.
func buildMessages(message string, history []models.ChatExchange, results []models.SearchResult, keep int) []llmservice.Message {
	system := models.BaseSystemPrompt + models.GeneralSystemPrompt
	if len(results) > 0 {
		system = models.BaseSystemPrompt + models.DocumentsSystemPrompt
	}
	messages := []llmservice.Message{{Role: llmservice.RoleSystem, Content: system}}

	if keep > 0 && len(history) > keep {
		history = history[len(history)-keep:]
	}
	for _, h := range history {
		messages = append(messages,
			llmservice.Message{Role: llmservice.RoleUser, Content: h.User},
			llmservice.Message{Role: llmservice.RoleAssistant, Content: h.Bot},
		)
	}

	user := message
	if len(results) > 0 {
		parts := make([]string, len(results))
		for i, r := range results {
			parts[i] = fmt.Sprintf("[Source: %s]\n%s", r.Chunk.Filename, r.Chunk.Text)
		}
		user = fmt.Sprintf("Relevant context from documents:\n%s\n\nUser question: %s",
			strings.Join(parts, models.ContextSeparator), message)
	}
	return append(messages, llmservice.Message{Role: llmservice.RoleUser, Content: user})
}

// matchFAQ returns the first entry with a keyword in message. Single word
// keywords must match a whole word.
func matchFAQ(faqs []models.FAQ, message string) (models.FAQ, bool) {
	lower := strings.ToLower(message)
	words := make(map[string]bool)
	for _, w := range tokenize(lower) {
		words[w] = true
	}
	for _, faq := range faqs {
		for _, kw := range faq.Keywords {
			kw = strings.ToLower(kw)
			if strings.Contains(kw, " ") {
				if strings.Contains(lower, kw) {
					return faq, true
				}
			} else if words[kw] {
				return faq, true
			}
		}
	}
	return models.FAQ{}, false
}

var stopWords = map[string]bool{
	"what": true, "when": true, "where": true, "which": true, "who": true, "whom": true,
	"this": true, "that": true, "these": true, "those": true, "with": true, "from": true,
	"have": true, "does": true, "about": true, "there": true, "their": true, "your": true,
	"would": true, "could": true, "should": true, "into": true, "please": true, "tell": true,
}

func keywords(message string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, w := range tokenize(strings.ToLower(message)) {
		if len([]rune(w)) < 4 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

const maxDegradedSentences = 3

// degradedResponse answers from the first two context chunks without the
// model: sentences that mention a query keyword, else the high load notice.
func degradedResponse(message string, results []models.SearchResult) string {
	kws := keywords(message)
	if len(kws) == 0 || len(results) == 0 {
		return models.HighLoadMessage
	}

	var picked []string
	for _, r := range results[:min(2, len(results))] {
		for _, sentence := range splitSentences(r.Chunk.Text) {
			lower := strings.ToLower(sentence)
			for _, kw := range kws {
				if strings.Contains(lower, kw) {
					picked = append(picked, sentence)
					break
				}
			}
			if len(picked) == maxDegradedSentences {
				break
			}
		}
		if len(picked) == maxDegradedSentences {
			break
		}
	}
	if len(picked) == 0 {
		return models.HighLoadMessage
	}
	return "I'm receiving a lot of requests right now, but here is what I found in your documents:\n\n" +
		strings.Join(picked, " ")
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if (r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}
