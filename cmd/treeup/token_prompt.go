package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	txtTokenPrompt      = "Enter your access token"
	txtTokenPlaceholder = "sl.••••••••"
	txtTokenHelp        = "Press 'Enter' to submit. 'Esc' or 'Ctrl+C' to quit."
	txtTokenEmpty       = "Token cannot be empty"
)

var errPromptCancelled = errors.New("token prompt cancelled")

type tokenModel struct {
	input        textinput.Model
	errorMessage string
	submitted    bool
	cancelled    bool
}

func newTokenModel() tokenModel {
	input := textinput.New()
	input.Placeholder = txtTokenPlaceholder
	input.EchoMode = textinput.EchoPassword
	input.EchoCharacter = '•'
	input.CharLimit = 2048
	input.Width = 64
	input.PromptStyle = green
	input.TextStyle = green
	input.PlaceholderStyle = gray
	input.Focus()

	return tokenModel{input: input}
}

func (m tokenModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m tokenModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancelled = true
			return m, tea.Quit

		case tea.KeyEnter:
			if strings.TrimSpace(m.input.Value()) == "" {
				m.errorMessage = txtTokenEmpty
				return m, nil
			}
			m.submitted = true
			return m, tea.Quit
		}
		m.errorMessage = ""
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m tokenModel) View() string {
	if m.submitted || m.cancelled {
		return ""
	}

	var b strings.Builder
	b.WriteString(cyan.Bold(true).Render(txtTokenPrompt) + "\n\n")
	b.WriteString(m.input.View() + "\n\n")
	if m.errorMessage != "" {
		b.WriteString(red.Render(m.errorMessage) + "\n\n")
	}
	b.WriteString(gray.Render(txtTokenHelp) + "\n")
	return b.String()
}

func (m tokenModel) token() (string, error) {
	if m.cancelled || !m.submitted {
		return "", errPromptCancelled
	}
	return strings.TrimSpace(m.input.Value()), nil
}

// promptToken asks for the access token without echoing it.
func promptToken() (string, error) {
	final, err := tea.NewProgram(newTokenModel()).Run()
	if err != nil {
		return "", fmt.Errorf("token prompt: %w", err)
	}
	return final.(tokenModel).token()
}
