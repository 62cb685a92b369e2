package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/prpo-labs/prpo/internal/api"
)

var (
	sidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
	sidebarTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true)
	sidebarItemStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	sidebarSelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("51")).Bold(true)
	sidebarActiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	sidebarDimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// loadMoreRow is the synthetic last row shown while older pages remain.
const loadMoreRow = "__load_more__"

// SidebarModel renders the paged conversation list. Cursor movement is
// local; opening, deleting and paging are decided by the app model.
type SidebarModel struct {
	Visible  bool
	items    []api.ChatSummary
	hasMore  bool
	loading  bool
	cursor   int
	activeID string
	width    int
	height   int
}

func NewSidebarModel() *SidebarModel {
	return &SidebarModel{Visible: true}
}

// SetItems replaces the rows. The cursor follows the previously selected
// row when it survives the refresh.
func (m *SidebarModel) SetItems(items []api.ChatSummary, hasMore bool) {
	selectedID := ""
	if row, ok := m.SelectedRow(); ok && row != loadMoreRow {
		selectedID = row
	}

	m.items = items
	m.hasMore = hasMore

	m.cursor = 0
	if selectedID != "" {
		for i, item := range m.items {
			if item.ID == selectedID {
				m.cursor = i
				break
			}
		}
	}
	m.clampCursor()
}

func (m *SidebarModel) SetLoading(loading bool) {
	m.loading = loading
}

func (m *SidebarModel) SetActiveID(id string) {
	m.activeID = id
}

func (m *SidebarModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

func (m *SidebarModel) rowCount() int {
	n := len(m.items)
	if m.hasMore {
		n++
	}
	return n
}

func (m *SidebarModel) clampCursor() {
	if m.cursor < 0 {
		m.cursor = 0
	}
	if n := m.rowCount(); m.cursor >= n {
		m.cursor = n - 1
	}
}

func (m *SidebarModel) Move(delta int) {
	if m.rowCount() == 0 {
		return
	}
	m.cursor += delta
	m.clampCursor()
}

// SelectedRow returns the chat id under the cursor, or loadMoreRow when
// the cursor sits on the paging row.
func (m *SidebarModel) SelectedRow() (string, bool) {
	if m.cursor < 0 || m.cursor >= m.rowCount() {
		return "", false
	}
	if m.cursor == len(m.items) {
		return loadMoreRow, true
	}
	return m.items[m.cursor].ID, true
}

func (m *SidebarModel) View() string {
	if !m.Visible {
		return ""
	}

	innerWidth := m.width - 3
	if innerWidth < 10 {
		innerWidth = 10
	}

	lines := []string{sidebarTitleStyle.Render("Chats"), ""}

	if len(m.items) == 0 {
		empty := "No chats yet"
		if m.loading {
			empty = "Loading..."
		}
		lines = append(lines, sidebarDimStyle.Render(empty))
	}

	for i, item := range m.items {
		label := strings.TrimSpace(item.Title)
		if label == "" {
			label = "New chat"
		}
		label = truncateLabel(label, innerWidth-2)

		prefix := "  "
		style := sidebarItemStyle
		if item.ID == m.activeID {
			style = sidebarActiveStyle
			prefix = "* "
		}
		if i == m.cursor {
			style = sidebarSelStyle
			prefix = "> "
		}
		lines = append(lines, style.Render(prefix+label))
	}

	if m.hasMore {
		label := "Load more..."
		if m.loading {
			label = "Loading..."
		}
		style := sidebarDimStyle
		prefix := "  "
		if m.cursor == len(m.items) {
			style = sidebarSelStyle
			prefix = "> "
		}
		lines = append(lines, style.Render(prefix+label))
	}

	body := strings.Join(lines, "\n")
	if m.height > 0 {
		body = clipToHeight(body, m.height)
	}
	return sidebarStyle.Width(m.width).Height(m.height).Render(body)
}

func truncateLabel(label string, width int) string {
	if width <= 0 {
		return label
	}
	runes := []rune(label)
	if len(runes) <= width {
		return label
	}
	if width <= 1 {
		return string(runes[:width])
	}
	return string(runes[:width-1]) + "…"
}

func clipToHeight(body string, height int) string {
	lines := strings.Split(body, "\n")
	if len(lines) <= height {
		return body
	}
	return strings.Join(lines[:height], "\n")
}
