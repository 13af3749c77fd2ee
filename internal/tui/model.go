package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docchat/internal/helper"
	"docchat/internal/models"
)

// ChatPort is the TUI-facing subset of the chat service.
type ChatPort interface {
	Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResult, error)
	ProcessUpload(ctx context.Context, callerKey string, files []models.UploadFile) ([]models.FileStatus, error)
	ListDocuments(ctx context.Context) ([]models.DocumentSummary, error)
	ClearSession(ctx context.Context, sessionID string) error
}

const (
	callerKey = "tui"
	helpText  = "Commands: /upload <path|glob>[,...]  /docs  /reset  /help  (Ctrl+C to quit)"
)

type line struct {
	who  string
	text string
}

// replyMsg carries the outcome of a background service call.
type replyMsg struct {
	lines  []line
	status string
}

// Model is the Bubble Tea model for the chat UI.
type Model struct {
	ctx       context.Context
	service   ChatPort
	sessionID string
	input     textinput.Model
	viewport  viewport.Model
	lines     []line
	status    string
	waiting   bool
	ready     bool
}

func New(ctx context.Context, service ChatPort, sessionID string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your documents, or /help"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		ctx:       ctx,
		service:   service,
		sessionID: sessionID,
		input:     ti,
		viewport:  viewport.New(0, 0),
		status:    helpText,
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := transcriptStyle.GetFrameSize()
		_, qh := inputStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, session, status, input line
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-bh)
		m.refresh()
		return m, nil
	case replyMsg:
		m.waiting = false
		m.lines = append(m.lines, msg.lines...)
		m.status = msg.status
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.waiting {
				return m, nil
			}
			m.input.SetValue("")
			return m.submit(text)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if _, ok := msg.(tea.KeyMsg); !ok {
		var vcmd tea.Cmd
		m.viewport, vcmd = m.viewport.Update(msg)
		cmd = tea.Batch(cmd, vcmd)
	}
	return m, cmd
}

func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	cmd, arg, _ := strings.Cut(text, " ")
	switch cmd {
	case "/help":
		m.status = helpText
		return m, nil
	case "/upload":
		if strings.TrimSpace(arg) == "" {
			m.status = "Usage: /upload <path|glob>[,...]"
			return m, nil
		}
		m.waiting = true
		m.status = "Processing files..."
		return m, m.upload(arg)
	case "/docs":
		m.waiting = true
		return m, m.documents()
	case "/reset":
		m.waiting = true
		return m, m.reset()
	}

	m.lines = append(m.lines, line{who: "you", text: text})
	m.waiting = true
	m.status = "Thinking..."
	m.refresh()
	return m, m.chat(text)
}

func (m Model) chat(text string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.service.Chat(m.ctx, models.ChatRequest{SessionID: m.sessionID, CallerKey: callerKey, Message: text})
		if err != nil {
			return replyMsg{status: "Error: " + err.Error()}
		}
		status := fmt.Sprintf("source=%s  history=%d", res.Source, res.HistoryLength)
		if len(res.Sources) > 0 {
			names := make([]string, len(res.Sources))
			for i, s := range res.Sources {
				names[i] = fmt.Sprintf("%s#%d (%.2f)", s.Filename, s.ChunkIndex, s.Similarity)
			}
			status += "  context: " + strings.Join(names, ", ")
		}
		return replyMsg{lines: []line{{who: "bot", text: res.Response}}, status: status}
	}
}

func (m Model) upload(arg string) tea.Cmd {
	return func() tea.Msg {
		paths, err := helper.ExpandPaths(arg)
		if err != nil {
			return replyMsg{status: "Upload failed: " + err.Error()}
		}
		if len(paths) == 0 {
			return replyMsg{status: "No files matched " + arg}
		}
		files := make([]models.UploadFile, len(paths))
		for i, p := range paths {
			files[i] = models.UploadFile{Name: filepath.Base(p), Path: p}
		}
		statuses, err := m.service.ProcessUpload(m.ctx, callerKey, files)
		if err != nil {
			return replyMsg{status: "Upload failed: " + err.Error()}
		}
		out := make([]line, len(statuses))
		ok := 0
		for i, s := range statuses {
			if s.Status == models.StatusSuccess {
				ok++
			}
			out[i] = line{who: "system", text: fmt.Sprintf("%s: %s", s.Filename, s.Message)}
		}
		return replyMsg{lines: out, status: fmt.Sprintf("Uploaded %d of %d files", ok, len(statuses))}
	}
}

func (m Model) documents() tea.Cmd {
	return func() tea.Msg {
		docs, err := m.service.ListDocuments(m.ctx)
		if err != nil {
			return replyMsg{status: "Error: " + err.Error()}
		}
		if len(docs) == 0 {
			return replyMsg{status: "No documents uploaded yet."}
		}
		out := make([]line, len(docs))
		for i, d := range docs {
			out[i] = line{who: "system", text: fmt.Sprintf("%s (%d chunks)", d.Filename, d.Chunks)}
		}
		return replyMsg{lines: out, status: fmt.Sprintf("%d documents", len(docs))}
	}
}

func (m Model) reset() tea.Cmd {
	return func() tea.Msg {
		if err := m.service.ClearSession(m.ctx, m.sessionID); err != nil {
			return replyMsg{status: "Error: " + err.Error()}
		}
		return replyMsg{lines: []line{{who: "system", text: "Conversation history cleared."}}, status: helpText}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("docchat")
	session := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("session " + m.sessionID)
	transcript := transcriptStyle.Render(m.viewport.View())
	input := inputStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + session + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.lines) == 0 {
		return "No messages yet."
	}
	var b strings.Builder
	width := max(10, m.viewport.Width-4)
	for i, l := range m.lines {
		if i > 0 {
			b.WriteString("\n")
		}
		label := whoStyles[l.who].Render(l.who + ":")
		b.WriteString(label + " " + lipgloss.NewStyle().Width(width).Render(l.text))
	}
	return b.String()
}

var (
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	whoStyles       = map[string]lipgloss.Style{
		"you":    lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		"bot":    lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		"system": lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
)
