// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the channels it reports user actions on
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Actions carries user intents from the TUI to the controller
type Actions struct {
	Close  chan struct{}
	Retry  chan struct{}
	Volume chan int
}

// NewActions creates action channels
func NewActions() *Actions {
	return &Actions{
		Close:  make(chan struct{}, 1),
		Retry:  make(chan struct{}, 1),
		Volume: make(chan int, 10),
	}
}

// NewModel creates a new TUI model
func NewModel(actions *Actions) Model {
	return Model{
		volume:  100,
		actions: actions,
	}
}

// New creates the program. Send StatusMsg and TranscriptMsg to it.
func New(actions *Actions) *tea.Program {
	return tea.NewProgram(NewModel(actions), tea.WithAltScreen())
}
