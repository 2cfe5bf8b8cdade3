// ABOUTME: Bubbletea model for the live voice overlay TUI
// ABOUTME: Defines overlay view state and update logic
package ui

import (
	"fmt"
	"strings"

	"github.com/Ashama-AI/ashama-go/internal/live"
	"github.com/Ashama-AI/ashama-go/internal/overlay"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxLines = 6

// Model represents the TUI state
type Model struct {
	// Session
	snap overlay.Snapshot

	// Transcript
	lines []line

	// Playback
	volume int

	actions *Actions

	// Dimensions
	width  int
	height int
}

type line struct {
	role    live.Role
	content string
}

// StatusMsg carries a controller snapshot
type StatusMsg struct {
	Snapshot overlay.Snapshot
}

// TranscriptMsg carries a committed utterance
type TranscriptMsg struct {
	Role    live.Role
	Content string
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#DC2626"))
	errorTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F97316"))
	statusText = lipgloss.NewStyle().Bold(true).Italic(true).Foreground(lipgloss.Color("#FFFFFF"))
	dimText    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	userText   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FCA5A5"))
	aiText     = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5E7EB"))
	frame      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3F3F46")).Padding(1, 2)
)

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.snap = msg.Snapshot
		if m.snap.State == overlay.StateClosed {
			return m, tea.Quit
		}
	case TranscriptMsg:
		m.lines = append(m.lines, line{role: msg.Role, content: msg.Content})
		if len(m.lines) > maxLines {
			m.lines = m.lines[len(m.lines)-maxLines:]
		}
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	if m.snap.State == overlay.StateError {
		b.WriteString(m.renderError())
	} else {
		b.WriteString(m.renderIndicators())
		b.WriteString("\n\n")
		b.WriteString(statusText.Render(m.status()))
		b.WriteString("\n")
		b.WriteString(dimText.Render("Afaan Oromoon gaaffii kee gaafadhu"))
	}

	b.WriteString("\n\n")
	b.WriteString(m.renderTranscript())
	b.WriteString(m.renderHelp())

	width := m.width - 4
	if width < 20 {
		width = 20
	}
	return frame.Width(width).Render(b.String())
}

// status mirrors the overlay headline: assistant speech wins over user speech
func (m Model) status() string {
	switch {
	case m.snap.AITalking:
		return overlay.StatusTalkingAI
	case m.snap.UserTalking:
		return overlay.StatusTalkingUser
	case m.snap.Status != "":
		return m.snap.Status
	default:
		return overlay.StatusConnecting
	}
}

func (m Model) renderHeader() string {
	if m.snap.State == overlay.StateError {
		return errorTitle.Render("● Dogoggora")
	}
	return titleStyle.Render("● Live Voice Session")
}

func (m Model) renderIndicators() string {
	return fmt.Sprintf("Ashama %s   Ati %s   Sagalee [%s] %d%%",
		indicator(m.snap.AITalking), indicator(m.snap.UserTalking),
		renderBar(m.volume, 100, 10), m.volume)
}

func (m Model) renderError() string {
	return errorTitle.Render(m.snap.Error) + "\n\n" +
		dimText.Render(fmt.Sprintf("r: %s", overlay.RetryLabel))
}

func (m Model) renderTranscript() string {
	if len(m.lines) == 0 {
		return ""
	}
	var b strings.Builder
	for _, l := range m.lines {
		if l.role == live.RoleUser {
			b.WriteString(userText.Render("Ati: " + l.content))
		} else {
			b.WriteString(aiText.Render("Ashama: " + l.content))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderHelp() string {
	return dimText.Render("↑/↓:Sagalee  r:Irra deebi'i  q:Cufi")
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		m.signal(func(a *Actions) chan struct{} { return a.Close })
		return m, tea.Quit
	case "r":
		if m.snap.State == overlay.StateError {
			m.signal(func(a *Actions) chan struct{} { return a.Retry })
		}
	case "up":
		m.setVolume(m.volume + 10)
	case "down":
		m.setVolume(m.volume - 10)
	}

	return m, nil
}

func (m *Model) setVolume(v int) {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	if v == m.volume {
		return
	}
	m.volume = v
	if m.actions != nil {
		select {
		case m.actions.Volume <- v:
		default:
		}
	}
}

func (m Model) signal(pick func(*Actions) chan struct{}) {
	if m.actions == nil {
		return
	}
	select {
	case pick(m.actions) <- struct{}{}:
	default:
	}
}

// Utility functions
func renderBar(value, max, width int) string {
	filled := (value * width) / max
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func indicator(on bool) string {
	if on {
		return "◉"
	}
	return "○"
}
