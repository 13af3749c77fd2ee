package models

import "time"

// ChatExchange is one user/bot turn kept in a session history.
type ChatExchange struct {
	User      string `json:"user"`
	Bot       string `json:"bot"`
	Timestamp string `json:"timestamp"`
}

func NewChatExchange(user, bot string, at time.Time) ChatExchange {
	return ChatExchange{User: user, Bot: bot, Timestamp: at.Format(time.RFC3339)}
}

// ResponseSource tells where a chat answer came from.
type ResponseSource string

const (
	SourceLLM         ResponseSource = "llm"
	SourceCache       ResponseSource = "cache"
	SourceFAQ         ResponseSource = "faq"
	SourceDegraded    ResponseSource = "degraded"
	SourceRateLimited ResponseSource = "rate_limited"
	SourceError       ResponseSource = "error"
)

type ChatRequest struct {
	SessionID string `json:"session_id"`
	CallerKey string `json:"caller_key,omitempty"`
	Message   string `json:"message"`
}

type ChatSource struct {
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Similarity float64 `json:"similarity"`
}

type ChatResult struct {
	Response      string         `json:"response"`
	Source        ResponseSource `json:"source"`
	ContextUsed   bool           `json:"context_used"`
	Sources       []ChatSource   `json:"sources,omitempty"`
	RetryAfter    time.Duration  `json:"retry_after,omitempty"`
	HistoryLength int            `json:"history_length"`
}

// UploadFile is a file already on disk waiting to be indexed.
type UploadFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type FileStatus struct {
	Filename string `json:"filename"`
	StoredAs string `json:"processed_filename,omitempty"`
	Chunks   int    `json:"chunks"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type SessionStatus struct {
	SessionID     string `json:"session_id"`
	HistoryLength int    `json:"chat_history_length"`
	HasDocuments  bool   `json:"has_documents"`
	DocumentCount int    `json:"documents_count"`
}
