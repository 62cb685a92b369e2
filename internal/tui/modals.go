package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	modalBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("205")).
			Background(lipgloss.Color("235")).
			Padding(1, 2)
	modalTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true)
	modalHintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	modalSelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("51")).Bold(true)
	modalItemStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	modalOffStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	modalWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

type SelectOption struct {
	Label   string
	Value   string
	Enabled bool
}

// SelectModal is a bordered vertical picker. It backs both the model
// picker and the delete confirmation.
type SelectModal struct {
	Title    string
	Body     string
	Hint     string
	Visible  bool
	Selected int
	Options  []SelectOption
	MaxWidth int
	Danger   bool
}

func NewSelectModal(title, hint string) *SelectModal {
	return &SelectModal{
		Title:    title,
		Hint:     hint,
		Visible:  false,
		Selected: -1,
	}
}

func (m *SelectModal) SetOptions(options []SelectOption) {
	m.Options = append([]SelectOption(nil), options...)
	m.Selected = m.firstEnabledIndex()
}

func (m *SelectModal) firstEnabledIndex() int {
	for i, opt := range m.Options {
		if opt.Enabled {
			return i
		}
	}
	return -1
}

func (m *SelectModal) Open() {
	m.Visible = true
	if m.Selected < 0 || m.Selected >= len(m.Options) || !m.Options[m.Selected].Enabled {
		m.Selected = m.firstEnabledIndex()
	}
}

func (m *SelectModal) SetWidth(width int) {
	m.MaxWidth = width
}

func (m *SelectModal) Close() {
	m.Visible = false
}

func (m *SelectModal) Move(delta int) {
	if len(m.Options) == 0 || m.Selected < 0 {
		return
	}
	next := m.Selected
	for {
		next += delta
		if next < 0 || next >= len(m.Options) {
			return
		}
		if m.Options[next].Enabled {
			m.Selected = next
			return
		}
	}
}

// SelectByValue moves the cursor to the option carrying the given value.
func (m *SelectModal) SelectByValue(value string) {
	for i, opt := range m.Options {
		if opt.Enabled && opt.Value == value {
			m.Selected = i
			return
		}
	}
}

func (m *SelectModal) SelectedOption() (SelectOption, bool) {
	if m.Selected < 0 || m.Selected >= len(m.Options) {
		return SelectOption{}, false
	}
	opt := m.Options[m.Selected]
	if !opt.Enabled {
		return SelectOption{}, false
	}
	return opt, true
}

func (m *SelectModal) View() string {
	if !m.Visible {
		return ""
	}
	contentWidth := m.modalContentWidth()
	var lines []string
	for i, opt := range m.Options {
		prefix := "  "
		style := modalItemStyle
		if !opt.Enabled {
			style = modalOffStyle
		}
		if i == m.Selected {
			prefix = "> "
			style = modalSelStyle
		}
		line := prefix + opt.Label
		if contentWidth > 0 {
			line = flowLabeled(prefix, opt.Label, contentWidth)
		}
		lines = append(lines, style.Render(line))
	}

	title := m.Title
	body := m.Body
	hint := m.Hint
	if contentWidth > 0 {
		title = flowText(title, contentWidth)
		if body != "" {
			body = flowText(body, contentWidth)
		}
		hint = flowText(hint, contentWidth)
	}

	titleStyle := modalTitleStyle
	if m.Danger {
		titleStyle = modalWarnStyle
	}

	parts := []string{titleStyle.Render(title)}
	if body != "" {
		parts = append(parts, "", modalItemStyle.Render(body))
	}
	parts = append(parts, "", strings.Join(lines, "\n"), "", modalHintStyle.Render(hint))

	boxStyle := modalBoxStyle
	if m.MaxWidth > 0 {
		boxStyle = boxStyle.MaxWidth(m.MaxWidth)
	}
	return boxStyle.Render(strings.Join(parts, "\n"))
}

func (m *SelectModal) modalContentWidth() int {
	if m == nil || m.MaxWidth <= 0 {
		return 0
	}
	width := m.MaxWidth - 8
	if width < 20 {
		width = 20
	}
	return width
}

// LoginModal shows the device-authorization verification details while a
// login is in progress.
type LoginModal struct {
	Visible         bool
	VerificationURI string
	UserCode        string
	Waiting         bool
	ErrorMessage    string
	MaxWidth        int
}

func (m *LoginModal) Open() {
	m.Visible = true
	m.VerificationURI = ""
	m.UserCode = ""
	m.Waiting = true
	m.ErrorMessage = ""
}

func (m *LoginModal) SetGrant(uri, code string) {
	m.VerificationURI = uri
	m.UserCode = code
	m.Waiting = true
	m.ErrorMessage = ""
}

func (m *LoginModal) SetError(errMsg string) {
	m.Waiting = false
	m.ErrorMessage = strings.TrimSpace(errMsg)
}

func (m *LoginModal) Close() {
	m.Visible = false
	m.VerificationURI = ""
	m.UserCode = ""
	m.Waiting = false
	m.ErrorMessage = ""
}

func (m *LoginModal) SetWidth(width int) {
	m.MaxWidth = width
}

func (m *LoginModal) View() string {
	if !m.Visible {
		return ""
	}
	contentWidth := 0
	if m.MaxWidth > 0 {
		contentWidth = m.MaxWidth - 8
		if contentWidth < 20 {
			contentWidth = 20
		}
	}
	wrap := func(text string) string {
		if contentWidth <= 0 {
			return text
		}
		return flowText(text, contentWidth)
	}

	parts := []string{modalTitleStyle.Render(wrap("Log in"))}
	switch {
	case m.ErrorMessage != "":
		parts = append(parts, "", modalWarnStyle.Render(wrap(m.ErrorMessage)))
	case m.UserCode == "":
		parts = append(parts, "", modalHintStyle.Render(wrap("Contacting server...")))
	default:
		parts = append(parts,
			"",
			modalItemStyle.Render(wrap("Visit "+m.VerificationURI)),
			"",
			modalItemStyle.Render(wrap("and enter the code:")),
			"",
			modalSelStyle.Render(wrap(m.UserCode)),
			"",
			modalHintStyle.Render(wrap("Waiting for approval...")),
		)
	}
	parts = append(parts, "", modalHintStyle.Render(wrap("esc: cancel")))

	boxStyle := modalBoxStyle
	if m.MaxWidth > 0 {
		boxStyle = boxStyle.MaxWidth(m.MaxWidth)
	}
	return boxStyle.Render(strings.Join(parts, "\n"))
}

// newDeleteConfirmModal builds the confirmation shown before a chat is
// deleted.
func newDeleteConfirmModal(chatID, title string) *SelectModal {
	modal := NewSelectModal("Delete chat?", "up/down: navigate  enter: confirm  esc: cancel")
	modal.Danger = true
	label := strings.TrimSpace(title)
	if label == "" {
		label = chatID
	}
	modal.Body = fmt.Sprintf("%q and all its messages will be permanently deleted.", label)
	modal.SetOptions([]SelectOption{
		{Label: "Cancel", Value: "cancel", Enabled: true},
		{Label: "Delete", Value: chatID, Enabled: true},
	})
	return modal
}
