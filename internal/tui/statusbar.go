package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	sbBaseStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("235")).Padding(0, 1)
	sbChatStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	sbModelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	sbReadyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	sbBusyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	sbOfflineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type StatusBarModel struct {
	ChatID    string
	ModelName string
	State     string
	LoggedIn  bool
	width     int
}

func NewStatusBarModel() *StatusBarModel {
	return &StatusBarModel{
		ModelName: "auto",
		State:     "ready",
	}
}

func (m *StatusBarModel) Init() tea.Cmd { return nil }

func (m *StatusBarModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	return m, nil
}

func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

func (m *StatusBarModel) View() string {
	chat := strings.TrimSpace(m.ChatID)
	if chat == "" {
		chat = "new"
	}
	chatStr := sbChatStyle.Render(fmt.Sprintf("[CHAT: %s]", chat))

	model := strings.TrimSpace(m.ModelName)
	if model == "" {
		model = "auto"
	}
	modelStr := sbModelStyle.Render(fmt.Sprintf("[MODEL: %s]", model))

	stateStyle := sbReadyStyle
	switch m.State {
	case "sending", "loading", "deleting":
		stateStyle = sbBusyStyle
	}
	stateStr := stateStyle.Render(fmt.Sprintf("[%s]", strings.ToUpper(m.State)))

	authStr := sbReadyStyle.Render("[online]")
	if !m.LoggedIn {
		authStr = sbOfflineStyle.Render("[logged out]")
	}

	s := fmt.Sprintf("%s | %s | %s | %s", chatStr, modelStr, stateStr, authStr)
	return sbBaseStyle.Width(m.width).Render(s)
}
