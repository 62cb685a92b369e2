package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

type CommandResultMsg struct {
	Msg string
}

type NewChatMsg struct{}
type ToggleSidebarMsg struct{}
type LoadMoreChatsMsg struct{}
type OpenChatMsg struct{ ID string }
type ConfirmDeleteMsg struct{ ID string }
type OpenModelPickerMsg struct{}
type ShowUsageMsg struct{}
type StartLoginMsg struct{}
type LogoutMsg struct{}

type slashCommand struct {
	Name        string
	Description string
}

var slashCommands = []slashCommand{
	{Name: "/new", Description: "Start a new chat"},
	{Name: "/chats", Description: "Toggle the chat list"},
	{Name: "/more", Description: "Load older chats"},
	{Name: "/open", Description: "Open a chat by id"},
	{Name: "/delete", Description: "Delete the current chat"},
	{Name: "/model", Description: "Choose a model"},
	{Name: "/usage", Description: "Show token usage"},
	{Name: "/login", Description: "Log in to the server"},
	{Name: "/logout", Description: "Log out"},
}

func filterSlashCommands(input string, limit int) []slashCommand {
	if limit <= 0 {
		limit = len(slashCommands)
	}

	raw := strings.TrimSpace(input)
	if raw == "" {
		return nil
	}
	if !strings.HasPrefix(raw, "/") {
		return nil
	}

	token := strings.Fields(raw)[0]
	if token == "/" {
		if limit > len(slashCommands) {
			limit = len(slashCommands)
		}
		return slashCommands[:limit]
	}
	token = strings.TrimPrefix(token, "/")

	query := strings.ToLower(strings.TrimSpace(token))
	if query == "" {
		if limit > len(slashCommands) {
			limit = len(slashCommands)
		}
		return slashCommands[:limit]
	}

	matches := make([]slashCommand, 0, limit)
	add := func(c slashCommand) bool {
		if len(matches) >= limit {
			return false
		}
		matches = append(matches, c)
		return true
	}

	// Prefix matches first for intuitive command completion.
	for _, c := range slashCommands {
		if strings.HasPrefix(strings.TrimPrefix(strings.ToLower(c.Name), "/"), query) {
			if !add(c) {
				return matches
			}
		}
	}

	// If needed, add substring matches to help discovery.
	for _, c := range slashCommands {
		name := strings.TrimPrefix(strings.ToLower(c.Name), "/")
		if strings.HasPrefix(name, query) {
			continue
		}
		if strings.Contains(name, query) {
			if !add(c) {
				return matches
			}
		}
	}

	return matches
}

func splitSlashCommand(input string) (name, arg string) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", ""
	}
	parts := strings.Fields(trimmed)
	if len(parts) == 0 {
		return "", ""
	}
	name = parts[0]
	if len(parts) > 1 {
		arg = strings.Join(parts[1:], " ")
	}
	return name, arg
}

func handleSlashCommand(cmdStr string, app *AppModel) tea.Cmd {
	return func() tea.Msg {
		name, arg := splitSlashCommand(cmdStr)
		switch name {
		case "/new":
			return NewChatMsg{}
		case "/chats":
			return ToggleSidebarMsg{}
		case "/more":
			return LoadMoreChatsMsg{}
		case "/open":
			if strings.TrimSpace(arg) == "" {
				return CommandResultMsg{Msg: "Usage: /open <chat-id>"}
			}
			return OpenChatMsg{ID: strings.TrimSpace(arg)}
		case "/delete":
			id := strings.TrimSpace(arg)
			if id == "" {
				id = app.controller.ConversationID()
			}
			if id == "" {
				return CommandResultMsg{Msg: "No chat selected to delete."}
			}
			return ConfirmDeleteMsg{ID: id}
		case "/model":
			return OpenModelPickerMsg{}
		case "/usage":
			return ShowUsageMsg{}
		case "/login":
			return StartLoginMsg{}
		case "/logout":
			return LogoutMsg{}
		default:
			if suggestions := filterSlashCommands(cmdStr, 1); len(suggestions) == 1 {
				return CommandResultMsg{Msg: fmt.Sprintf("Unknown command: %s. Did you mean %s?", name, suggestions[0].Name)}
			}
			return CommandResultMsg{Msg: fmt.Sprintf("Unknown command: %s", name)}
		}
	}
}
