// Package tui renders an interactive progress view for long-running
// hyperctl commands, for terminals that want more than a scrolling log.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ultraos/hyper/internal/hyperctl/validate"
)

var (
	colorOK   = lipgloss.Color("42")
	colorFail = lipgloss.Color("196")
	colorDim  = lipgloss.Color("241")
)

type resultMsg struct {
	results []validate.EntryResult
	err     error
}

type keyMap struct {
	Quit key.Binding
}

// ValidateModel drives a spinner while validate.Run runs in the
// background, then renders its per-entry pass/fail summary.
type ValidateModel struct {
	keys    keyMap
	spinner spinner.Model
	running bool
	results []validate.EntryResult
	err     error
	run     func() ([]validate.EntryResult, error)
}

// NewValidateModel wraps a deferred validate.Run call — run is called once,
// from Init, off the UI goroutine.
func NewValidateModel(run func() ([]validate.EntryResult, error)) ValidateModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return ValidateModel{
		keys: keyMap{
			Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		},
		spinner: s,
		running: true,
		run:     run,
	}
}

// Failed reports whether validation finished with at least one failing
// entry, for the caller to turn into a non-zero exit code.
func (m ValidateModel) Failed() bool {
	for _, r := range m.results {
		if !r.OK() {
			return true
		}
	}
	return false
}

func (m ValidateModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runValidate())
}

func (m ValidateModel) runValidate() tea.Cmd {
	run := m.run
	return func() tea.Msg {
		results, err := run()
		return resultMsg{results: results, err: err}
	}
}

func (m ValidateModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case resultMsg:
		m.running = false
		m.results = msg.results
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		if !m.running {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m ValidateModel) View() string {
	var b strings.Builder
	b.WriteString("  hyperctl validate\n\n")

	if m.running {
		fmt.Fprintf(&b, "  validating entries...  %s\n", m.spinner.View())
		return b.String()
	}

	if m.err != nil {
		fmt.Fprintf(&b, "  error: %s\n", m.err)
		return b.String()
	}

	failed := 0
	for _, r := range m.results {
		style := lipgloss.NewStyle().Foreground(colorOK)
		mark := "✓"
		if !r.OK() {
			style = lipgloss.NewStyle().Foreground(colorFail)
			mark = "✗"
			failed++
		}
		b.WriteString(style.Render(fmt.Sprintf("  %s %s", mark, r.Name)))
		b.WriteString("\n")
		if r.Binary.Err != nil {
			fmt.Fprintf(&b, "      binary %s: %v\n", r.Binary.Path, r.Binary.Err)
		}
		for _, mod := range r.Modules {
			if mod.Err != nil {
				fmt.Fprintf(&b, "      module %s: %v\n", mod.Path, mod.Err)
			}
		}
	}

	b.WriteString("\n")
	summary := fmt.Sprintf("  %d entries, %d failed", len(m.results), failed)
	b.WriteString(lipgloss.NewStyle().Foreground(colorDim).Render(summary))
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(colorDim).Render("  q quit"))

	return b.String()
}
