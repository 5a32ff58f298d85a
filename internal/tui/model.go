package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragqa/internal/pipeline"
	"ragqa/internal/textutil"
)

// RunFunc executes one pipeline run, reporting each state to observe.
type RunFunc func(ctx context.Context, observe func(pipeline.State)) (*pipeline.Result, error)

type stateMsg pipeline.State

type doneMsg struct {
	result *pipeline.Result
	err    error
}

// Model is the Bubble Tea model showing pipeline progress and then the answer.
type Model struct {
	query    string
	run      RunFunc
	ctx      context.Context
	cancel   context.CancelFunc
	events   chan tea.Msg
	spinner  spinner.Model
	viewport viewport.Model
	reached  map[pipeline.State]bool
	current  pipeline.State
	result   *pipeline.Result
	err      error
	done     bool
	ready    bool
}

// New creates a model that starts run when the program starts.
func New(ctx context.Context, query string, run RunFunc) Model {
	ctx, cancel := context.WithCancel(ctx)
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	return Model{
		query:    query,
		run:      run,
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan tea.Msg, len(pipeline.States())+2),
		spinner:  sp,
		viewport: viewport.New(0, 0),
		reached:  make(map[pipeline.State]bool),
	}
}

// Init starts the spinner and the pipeline run.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start(), m.wait())
}

func (m Model) start() tea.Cmd {
	return func() tea.Msg {
		go func() {
			res, err := m.run(m.ctx, func(s pipeline.State) { m.events <- stateMsg(s) })
			m.events <- doneMsg{result: res, err: err}
		}()
		return nil
	}
}

func (m Model) wait() tea.Cmd {
	return func() tea.Msg { return <-m.events }
}

// Update handles key, window, progress and completion events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, fh := answerBoxStyle.GetFrameSize()
		reserved := len(pipeline.States()) + 4
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-fh)
		if m.done {
			m.viewport.SetContent(m.renderAnswer())
		}
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.cancel()
			return m, tea.Quit
		}
		if m.done {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	case stateMsg:
		s := pipeline.State(msg)
		m.current = s
		m.reached[s] = true
		return m, m.wait()
	case doneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		m.viewport.SetContent(m.renderAnswer())
		return m, nil
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the stage list and, once finished, the answer.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("RAG Q&A"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.query))
	b.WriteString("\n\n")
	for _, s := range pipeline.States() {
		b.WriteString(m.stageLine(s))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render("failed: " + m.err.Error()))
		b.WriteString("\n")
	}
	if m.done && m.err == nil && m.ready {
		b.WriteString(answerBoxStyle.Render(m.viewport.View()))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("q: quit  ↑/↓: scroll"))
	return b.String()
}

// Result returns the finished run, or nil while running or after cancel.
func (m Model) Result() (*pipeline.Result, error) { return m.result, m.err }

func (m Model) stageLine(s pipeline.State) string {
	switch {
	case m.reached[s] && (s != m.current || m.done || s.Terminal()):
		return doneStyle.Render("✓ ") + s.String()
	case m.reached[s]:
		return m.spinner.View() + " " + s.String()
	case m.done:
		return dimStyle.Render("✗ " + s.String())
	default:
		return dimStyle.Render("· " + s.String())
	}
}

func (m Model) renderAnswer() string {
	if m.result == nil || m.err != nil {
		return ""
	}
	width := max(20, m.viewport.Width-2)
	wrap := lipgloss.NewStyle().Width(width)
	var b strings.Builder
	b.WriteString(headerStyle.Render("Answer"))
	b.WriteString("\n")
	b.WriteString(wrap.Render(m.result.Answer))
	b.WriteString("\n\n")
	b.WriteString(headerStyle.Render("Passages"))
	for i, c := range m.result.Reranked {
		fmt.Fprintf(&b, "\n\n%s\n", dimStyle.Render(fmt.Sprintf("[%d] chunk %d  score=%.3f", i+1, c.ID, c.Score)))
		b.WriteString(wrap.Render(highlightBestSentence(c.Text, m.result.Query)))
	}
	return b.String()
}

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	doneStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	answerBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sentenceRe     = regexp.MustCompile(`[^.!?。！？]+(?:[.!?。！？]+|$)`)
)

// highlightBestSentence emphasises the sentence sharing the most terms with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{text}
	}
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
	}
	qTokens := textutil.TokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := -1, 0
	for i, s := range sentences {
		if score := overlap(qTokens, s); score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	if bestIdx >= 0 {
		sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	}
	return strings.Join(sentences, " ")
}

func overlap(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	for t := range textutil.TokenSet(sentence) {
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
