package tui

import (
	"strings"
	"testing"

	"github.com/prpo-labs/prpo/internal/api"
)

func TestChatSlashSuggestionsFollowInput(t *testing.T) {
	t.Parallel()

	chat := NewChatModel()
	chat.SetInputValue("/de")
	suggestion, ok := chat.SelectedSlashSuggestion()
	if !ok {
		t.Fatal("expected a suggestion for /de")
	}
	if suggestion.Name != "/delete" {
		t.Fatalf("expected /delete suggested, got %q", suggestion.Name)
	}

	if !chat.ApplyTopSlashSuggestion() {
		t.Fatal("expected autocomplete to apply")
	}
	if got := chat.GetInputValue(); got != "/delete" {
		t.Fatalf("expected completed command, got %q", got)
	}
}

func TestChatSuggestionsClearOnPlainText(t *testing.T) {
	t.Parallel()

	chat := NewChatModel()
	chat.SetInputValue("/mo")
	if _, ok := chat.SelectedSlashSuggestion(); !ok {
		t.Fatal("expected suggestions for /mo")
	}

	chat.SetInputValue("hello")
	if _, ok := chat.SelectedSlashSuggestion(); ok {
		t.Fatal("expected no suggestions for plain text")
	}
}

func TestChatRendersTranscript(t *testing.T) {
	t.Parallel()

	chat := NewChatModel()
	chat.SetSize(80, 24)
	chat.SetMessages([]api.Message{
		{ID: "m1", Role: api.RoleUser, Content: "hello"},
		{ID: "m2", Role: api.RoleAssistant, Content: "hi there", ModelID: "gpt-5-mini"},
		{ID: "tmp_1_0", Role: api.RoleUser, Content: "pending line"},
	})

	view := chat.View()
	if !strings.Contains(view, "hello") {
		t.Fatalf("expected user message in view")
	}
	if !strings.Contains(view, "hi there") {
		t.Fatal("expected assistant message in view")
	}
	if !strings.Contains(view, "gpt-5-mini") {
		t.Fatal("expected model annotation in view")
	}
	if !strings.Contains(view, "pending line") {
		t.Fatal("expected optimistic message in view")
	}
}

func TestChatEmptyStateShownWithoutMessages(t *testing.T) {
	t.Parallel()

	chat := NewChatModel()
	chat.SetSize(80, 24)
	view := chat.View()
	if !strings.Contains(view, "created when you send") {
		t.Fatalf("expected empty-state tip, got %q", view)
	}
}
