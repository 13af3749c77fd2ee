package models

import "time"

const (
	ContextSeparator = "\n---\n"
	ThinkTag         = `(?s)<think>.*?</think>`

	DefaultRetryAfter = 60 * time.Second
)

var (
	BaseSystemPrompt = `You are an intelligent AI assistant helping users with their questions.
You are friendly, helpful, and provide accurate information. Keep your responses concise but comprehensive.
`

	DocumentsSystemPrompt = `
You have access to information from documents uploaded by the user. Use this information to provide
accurate and relevant answers. If the uploaded documents don't contain relevant information for
the user's question, let them know and offer to help with general questions or suggest they upload
relevant documents.

Always base your answers primarily on the provided document context when available.
`

	GeneralSystemPrompt = `
The user hasn't uploaded any documents yet, so you're working with general knowledge.
Encourage them to upload relevant documents for more specific and accurate assistance.
You can also answer general questions and help with common support inquiries.
`

	HighLoadMessage = "The service is experiencing high load right now. Please try again in a moment."

	RateLimitedMessageTemplate = "The assistant is receiving too many requests. Please try again in %d seconds."

	FailureMessage = `I apologize, but I'm experiencing technical difficulties right now.
Please try again in a moment. In the meantime, you can:

1. Upload documents to train me on your specific content
2. Ask general questions about file formats and features
3. Check if your API key is properly configured

If the problem persists, please check the server logs for more details.`
)

// FAQ is a canned answer selected by keyword match.
type FAQ struct {
	Question string
	Answer   string
	Keywords []string
}

var DefaultFAQs = []FAQ{
	{
		Question: "How do I upload documents?",
		Answer:   "You can upload documents by passing their paths with the -file flag. Supported formats include PDF, DOCX, PPTX, XLSX, CSV, TXT, Markdown, and images (JPG, PNG, etc.).",
		Keywords: []string{"upload", "uploading", "add document", "add file"},
	},
	{
		Question: "What file formats are supported?",
		Answer:   "I support PDF, DOCX, PPTX, XLSX, ODS, CSV, TXT and Markdown files, and images (JPG, JPEG, PNG, GIF, BMP). For images, I use OCR to extract text content.",
		Keywords: []string{"format", "formats", "file type", "file types", "supported", "support"},
	},
	{
		Question: "How does the chatbot work?",
		Answer:   "I analyze your uploaded documents and create embeddings to understand the content. When you ask questions, I search for relevant information from your documents and provide context-aware answers using AI.",
		Keywords: []string{"how does", "how do you work", "chatbot work", "work"},
	},
	{
		Question: "Is my data secure?",
		Answer:   "Your uploaded documents are processed locally and their text is kept in the configured vector store. Nothing is shared beyond the embedding and chat providers you configure.",
		Keywords: []string{"secure", "security", "privacy", "private", "safe"},
	},
}
