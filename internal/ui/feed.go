// Package ui renders a feed session in the terminal with Bubble Tea.
package ui

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/scrollfeed/pkg/session"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// chromeHeight is the number of lines outside the viewport: the address bar
// with its border and the status line.
const chromeHeight = 3

// fetchDoneMsg carries a fetch completion back into the update loop.
type fetchDoneMsg struct {
	completion session.Completion
}

// FeedModel shows a session as a scrollable list. The sentinel counts as
// visible whenever the viewport is scrolled to the bottom.
type FeedModel struct {
	session  *session.Session
	viewport viewport.Model
	spinner  spinner.Model
	input    textinput.Model

	ready           bool
	editing         bool
	sentinelVisible bool
	lastErr         error
	quitting        bool
}

// NewFeedModel creates the model for s. The session is mounted by Init.
func NewFeedModel(s *session.Session) FeedModel {
	if s == nil {
		panic("session cannot be nil")
	}

	ti := textinput.New()
	ti.Prompt = "go to: "
	ti.Placeholder = "/users?page=2"
	ti.CharLimit = 512

	return FeedModel{
		session: s,
		spinner: NewSpinner(),
		input:   ti,
	}
}

// Run shows s until the user quits, then tears the session down.
func Run(s *session.Session) error {
	defer s.Teardown()

	p := tea.NewProgram(NewFeedModel(s), tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("feed view: %w", err)
	}
	return nil
}

// Init implements tea.Model
func (m FeedModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, runFetches(m.session.Mount()))
}

// Update implements tea.Model
func (m FeedModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := max(msg.Height-chromeHeight, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.input.Width = max(msg.Width-len(m.input.Prompt)-1, 10)
		m.refresh()
		return m, m.syncSentinel(false)

	case fetchDoneMsg:
		if !m.session.Apply(msg.completion) {
			return m, nil
		}
		m.lastErr = msg.completion.Err
		m.refresh()
		// New content moves the sentinel, which counts as a fresh signal.
		// A failure leaves it in place; the user has to scroll again.
		return m, m.syncSentinel(msg.completion.Err == nil)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.session.View().Pending {
			m.refresh()
		}
		return m, cmd

	case tea.KeyMsg:
		if m.editing {
			return m.updateInput(msg)
		}
		return m.updateKeys(msg)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, tea.Batch(cmd, m.syncSentinel(false))
}

func (m FeedModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		m.quitting = true
		m.session.Teardown()
		return m, tea.Quit

	case "p":
		cmd := runFetches(m.session.LoadPrevious())
		m.refresh()
		return m, cmd

	case "r":
		// Retry: report the sentinel again if it is on screen.
		return m, m.syncSentinel(true)

	case "g":
		m.editing = true
		m.input.SetValue(m.session.Address())
		m.input.CursorEnd()
		return m, m.input.Focus()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, tea.Batch(cmd, m.syncSentinel(false))
}

func (m FeedModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		address := strings.TrimSpace(m.input.Value())
		m.editing = false
		m.input.Blur()
		if address == "" {
			return m, nil
		}
		cmd := runFetches(m.session.Navigate(address))
		m.refresh()
		return m, cmd

	case "esc":
		m.editing = false
		m.input.Blur()
		return m, nil

	case "ctrl+c":
		m.quitting = true
		m.session.Teardown()
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model
func (m FeedModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Initializing..."
	}

	header := AddressStyle.Render(m.session.Address())
	if m.editing {
		header = AddressStyle.Render(m.input.View())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		m.statusLine(),
	)
}

// refresh re-renders the list into the viewport.
func (m *FeedModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(RenderList(m.session.View(), m.spinner.View()))
}

// syncSentinel reports sentinel visibility changes to the session. force
// reports a visible sentinel even when it was already visible.
func (m *FeedModel) syncSentinel(force bool) tea.Cmd {
	visible := m.ready && m.session.View().ShowSentinel && m.viewport.AtBottom()
	if visible == m.sentinelVisible && !(force && visible) {
		return nil
	}
	m.sentinelVisible = visible

	if !visible {
		m.session.SentinelHidden()
		return nil
	}
	return runFetches(m.session.SentinelVisible())
}

func (m FeedModel) statusLine() string {
	v := m.session.View()

	status := fmt.Sprintf("pages %v • %d records • %s", m.session.Pages(), len(v.Records), m.session.ScrollState())
	if v.Loading {
		status += " " + m.spinner.View()
	}
	if m.lastErr != nil {
		status += " • " + ErrorStyle.Render("last fetch failed, press r to retry")
	}

	help := "↑/↓ scroll • p previous • g go to • r retry • q quit"
	return StatusStyle.Render(status + "   " + help)
}

// RenderList renders a view as list text. spin is shown while pending.
func RenderList(v session.View, spin string) string {
	var b strings.Builder

	if v.LoadPrevious != nil {
		b.WriteString(LinkStyle.Render(fmt.Sprintf("Load previous (page %d)", v.LoadPrevious.Page)))
		b.WriteString(HintStyle.Render("  press p"))
		b.WriteString("\n\n")
	}

	if v.Pending {
		b.WriteString(spin + " " + HintStyle.Render("Loading..."))
		return b.String()
	}

	if len(v.Records) == 0 {
		b.WriteString(HintStyle.Render("No records."))
	}
	for i, r := range v.Records {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(ItemStyle.Render(r.Display))
	}

	if v.ShowSentinel {
		b.WriteByte('\n')
		b.WriteString(SentinelStyle.Render(SentinelText))
	}
	return b.String()
}

// runFetches turns fetches into commands that run them concurrently.
func runFetches(fetches []session.Fetch) tea.Cmd {
	if len(fetches) == 0 {
		return nil
	}
	cmds := make([]tea.Cmd, len(fetches))
	for i, f := range fetches {
		cmds[i] = func() tea.Msg {
			return fetchDoneMsg{completion: f.Run()}
		}
	}
	return tea.Batch(cmds...)
}
