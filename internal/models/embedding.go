package models

import "fmt"

// DocumentChunk is one retrieval unit cut from an uploaded document.
type DocumentChunk struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Filename   string `json:"filename"`
	ChunkIndex int    `json:"chunk_index"`
}

// NewDocumentChunk builds the chunk record stored for filename at index i.
func NewDocumentChunk(text, filename string, i int) DocumentChunk {
	return DocumentChunk{
		ID:         ChunkID(filename, i),
		Text:       text,
		Filename:   filename,
		ChunkIndex: i,
	}
}

func ChunkID(filename string, i int) string {
	return fmt.Sprintf("%s_%d", filename, i)
}

type SearchResult struct {
	Chunk      DocumentChunk `json:"chunk"`
	Similarity float64       `json:"similarity"`
}

// DocumentSummary groups the stored chunks of one file.
type DocumentSummary struct {
	Filename   string `json:"filename"`
	Chunks     int    `json:"chunks"`
	SampleText string `json:"sample_text"`
}

type StoreStats struct {
	TotalChunks        int      `json:"total_chunks"`
	TotalFiles         int      `json:"total_files"`
	Files              []string `json:"files"`
	EmbeddingDimension int      `json:"embedding_dimension"`
}

// SampleText returns the first sampleLen runes of text, with "..." when cut.
func SampleText(text string) string {
	r := []rune(text)
	if len(r) <= sampleLen {
		return text
	}
	return string(r[:sampleLen]) + "..."
}

const sampleLen = 200
