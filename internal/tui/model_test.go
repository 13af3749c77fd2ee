package tui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/models"
)

type fakeService struct {
	requests []models.ChatRequest
	uploaded []models.UploadFile
	cleared  string
	chatErr  error
}

func (f *fakeService) Chat(_ context.Context, req models.ChatRequest) (*models.ChatResult, error) {
	f.requests = append(f.requests, req)
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &models.ChatResult{
		Response:      "Refunds take thirty days.",
		Source:        models.SourceLLM,
		Sources:       []models.ChatSource{{Filename: "policy.txt", ChunkIndex: 0, Similarity: 0.8}},
		HistoryLength: len(f.requests),
	}, nil
}

func (f *fakeService) ProcessUpload(_ context.Context, _ string, files []models.UploadFile) ([]models.FileStatus, error) {
	f.uploaded = files
	out := make([]models.FileStatus, len(files))
	for i, file := range files {
		out[i] = models.FileStatus{Filename: file.Name, Status: models.StatusSuccess, Chunks: 1, Message: "Processed into 1 chunks"}
	}
	return out, nil
}

func (f *fakeService) ListDocuments(context.Context) ([]models.DocumentSummary, error) {
	return []models.DocumentSummary{{Filename: "20240101_000000_policy.txt", Chunks: 2}}, nil
}

func (f *fakeService) ClearSession(_ context.Context, id string) error {
	f.cleared = id
	return nil
}

func sized(t *testing.T, svc ChatPort) Model {
	t.Helper()
	m := New(context.Background(), svc, "session-1")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

// enter submits text and runs the resulting command to completion.
func enter(t *testing.T, m Model, text string) Model {
	t.Helper()
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	if cmd == nil {
		return m
	}
	msg := cmd()
	reply, ok := msg.(replyMsg)
	require.True(t, ok, "unexpected message %T", msg)
	next, _ = m.Update(reply)
	return next.(Model)
}

func TestModel_ViewBeforeSize(t *testing.T) {
	m := New(context.Background(), &fakeService{}, "s")
	assert.Equal(t, "Loading...", m.View())
}

func TestModel_ChatTurn(t *testing.T) {
	svc := &fakeService{}
	m := enter(t, sized(t, svc), "how long for refunds?")

	require.Len(t, svc.requests, 1)
	assert.Equal(t, "session-1", svc.requests[0].SessionID)
	assert.Equal(t, callerKey, svc.requests[0].CallerKey)
	assert.False(t, m.waiting)
	assert.Empty(t, m.input.Value())
	require.Len(t, m.lines, 2)
	assert.Equal(t, "bot", m.lines[1].who)
	assert.Contains(t, m.status, "source=llm")
	assert.Contains(t, m.status, "policy.txt#0")
	assert.Contains(t, m.View(), "Refunds take thirty days.")
}

func TestModel_ChatError(t *testing.T) {
	svc := &fakeService{chatErr: errors.New("message is empty")}
	m := enter(t, sized(t, svc), "hello")
	assert.Equal(t, "Error: message is empty", m.status)
	assert.Len(t, m.lines, 1)
}

func TestModel_Commands(t *testing.T) {
	svc := &fakeService{}
	m := sized(t, svc)

	m = enter(t, m, "/upload /tmp/a.txt, /tmp/b.pdf")
	require.Len(t, svc.uploaded, 2)
	assert.Equal(t, "b.pdf", svc.uploaded[1].Name)
	assert.Equal(t, "Uploaded 2 of 2 files", m.status)

	m = enter(t, m, "/docs")
	assert.Equal(t, "1 documents", m.status)
	assert.Contains(t, m.lines[len(m.lines)-1].text, "(2 chunks)")

	m = enter(t, m, "/reset")
	assert.Equal(t, "session-1", svc.cleared)

	m = enter(t, m, "/upload")
	assert.Contains(t, m.status, "Usage")
	assert.Empty(t, svc.requests)
}

func TestModel_UploadExpandsGlobs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.md", "b.md", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	svc := &fakeService{}
	m := enter(t, sized(t, svc), "/upload "+filepath.Join(dir, "*.md"))

	require.Len(t, svc.uploaded, 2)
	assert.Equal(t, "a.md", svc.uploaded[0].Name)
	assert.Equal(t, filepath.Join(dir, "b.md"), svc.uploaded[1].Path)
	assert.Equal(t, "Uploaded 2 of 2 files", m.status)

	svc.uploaded = nil
	m = enter(t, m, "/upload "+filepath.Join(dir, "*.pdf"))
	assert.Nil(t, svc.uploaded)
	assert.Contains(t, m.status, "No files matched")
}

func TestModel_Quit(t *testing.T) {
	m := sized(t, &fakeService{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
