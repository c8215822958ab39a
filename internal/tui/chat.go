// Package tui is the interactive chat interface built on bubbletea.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"palaver/internal/dialogue"
	"palaver/internal/pipeline"
)

// Turner runs one conversational turn. Satisfied by *pipeline.Pipeline.
type Turner interface {
	Process(ctx context.Context, input dialogue.TurnInput) (*pipeline.TurnResult, error)
}

// FeedbackSink attaches explicit feedback to a logged episode. Satisfied by
// *episode.Store.
type FeedbackSink interface {
	AttachExplicitFeedback(ctx context.Context, id string, score int) error
}

type chatMessage struct {
	role    string // "you" or "palaver"
	content string
	time    time.Time
}

type (
	turnMsg     *pipeline.TurnResult
	turnErrMsg  error
	feedbackMsg string
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	faintStyle     = lipgloss.NewStyle().Faint(true)
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Model is the chat UI state.
type Model struct {
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model

	history   []chatMessage
	isLoading bool
	status    string
	err       error
	width     int
	height    int
	ready     bool

	sessionID     string
	turns         []dialogue.HistoryTurn
	lastEpisodeID string

	turner   Turner
	feedback FeedbackSink
	ctx      context.Context
}

// New builds the chat model. feedback may be nil; the /good and /bad
// commands then report that feedback is unavailable.
func New(ctx context.Context, sessionID string, turner Turner, feedback FeedbackSink) Model {
	ti := textinput.New()
	ti.Placeholder = "Say something... (/good, /bad rate the last reply; Ctrl+C exits)"
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 4096
	ti.Width = 80

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	vp := viewport.New(80, 20)
	vp.SetContent("")

	return Model{
		textinput: ti,
		viewport:  vp,
		spinner:   sp,
		sessionID: sessionID,
		turner:    turner,
		feedback:  feedback,
		ctx:       ctx,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.handleSubmit()
		default:
			m.textinput, tiCmd = m.textinput.Update(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerHeight, footerHeight, inputHeight := 2, 1, 3
		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-headerHeight-footerHeight-inputHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - headerHeight - footerHeight - inputHeight
		}
		m.textinput.Width = msg.Width - 4
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()

	case turnMsg:
		m.isLoading = false
		result := (*pipeline.TurnResult)(msg)
		m.history = append(m.history, chatMessage{role: "palaver", content: result.Output, time: time.Now()})
		m.turns = append(m.turns, dialogue.HistoryTurn{Role: "assistant", Content: result.Output})
		if result.Episode != nil {
			m.lastEpisodeID = result.Episode.ID
		}
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()

	case turnErrMsg:
		m.isLoading = false
		m.err = msg

	case feedbackMsg:
		m.status = string(msg)

	case spinner.TickMsg:
		m.spinner, spCmd = m.spinner.Update(msg)
	}

	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

func (m Model) handleSubmit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textinput.Value())
	if input == "" || m.isLoading {
		return m, nil
	}
	m.textinput.Reset()
	m.err = nil
	m.status = ""

	if strings.HasPrefix(input, "/") {
		return m.handleCommand(input)
	}

	m.history = append(m.history, chatMessage{role: "you", content: input, time: time.Now()})
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
	m.isLoading = true

	turnInput := dialogue.TurnInput{
		Text:      input,
		SessionID: m.sessionID,
		History:   append([]dialogue.HistoryTurn(nil), m.turns...),
	}
	m.turns = append(m.turns, dialogue.HistoryTurn{Role: "user", Content: input})

	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		result, err := m.turner.Process(m.ctx, turnInput)
		if err != nil && result == nil {
			return turnErrMsg(err)
		}
		return turnMsg(result)
	})
}

func (m Model) handleCommand(input string) (tea.Model, tea.Cmd) {
	switch input {
	case "/good", "/bad":
		score := 1
		if input == "/bad" {
			score = -1
		}
		if m.feedback == nil || m.lastEpisodeID == "" {
			m.status = "nothing to rate yet"
			return m, nil
		}
		id := m.lastEpisodeID
		return m, func() tea.Msg {
			if err := m.feedback.AttachExplicitFeedback(m.ctx, id, score); err != nil {
				return feedbackMsg("feedback failed: " + err.Error())
			}
			return feedbackMsg("feedback recorded, thanks")
		}
	case "/clear":
		m.history = nil
		m.turns = nil
		m.viewport.SetContent("")
		return m, nil
	default:
		m.status = "unknown command: " + input
		return m, nil
	}
}

func (m Model) renderHistory() string {
	var b strings.Builder
	for _, msg := range m.history {
		label := userStyle.Render("you")
		if msg.role != "you" {
			label = assistantStyle.Render("palaver")
		}
		stamp := faintStyle.Render(msg.time.Format("15:04"))
		b.WriteString(fmt.Sprintf("%s %s\n%s\n\n", label, stamp, msg.content))
	}
	return b.String()
}

func (m Model) View() string {
	if !m.ready {
		return "starting..."
	}

	header := titleStyle.Render("palaver") + faintStyle.Render("  session "+m.sessionID) + "\n"

	footer := ""
	switch {
	case m.err != nil:
		footer = errStyle.Render("error: " + m.err.Error())
	case m.isLoading:
		footer = m.spinner.View() + " thinking..."
	case m.status != "":
		footer = faintStyle.Render(m.status)
	}

	return header + "\n" + m.viewport.View() + "\n" + m.textinput.View() + "\n" + footer
}

// Run starts the chat program and blocks until exit.
func Run(ctx context.Context, sessionID string, turner Turner, feedback FeedbackSink) error {
	p := tea.NewProgram(New(ctx, sessionID, turner, feedback), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
