package api

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single chat message as returned by the backend.
type Message struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
	ProviderID string    `json:"providerId,omitempty"`
	ModelID    string    `json:"modelId,omitempty"`
	RequestID  string    `json:"requestId,omitempty"`
}

// ChatSummary is a list entry. Title may be empty for chats that have not
// been auto-titled yet.
type ChatSummary struct {
	ID             string    `json:"id"`
	Title          string    `json:"title,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	LastProviderID string    `json:"lastProviderId,omitempty"`
	LastModelID    string    `json:"lastModelId,omitempty"`
}

// ChatDetail is a full conversation with its message history in
// chronological order.
type ChatDetail struct {
	ID       string    `json:"id"`
	Title    string    `json:"title,omitempty"`
	Messages []Message `json:"messages"`
}

// ChatPage is one page of the conversation list. NextCursor is empty when
// there are no further pages.
type ChatPage struct {
	Items      []ChatSummary `json:"items"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

// Routing describes how the backend routed a message: which provider and
// model produced the reply, plus accounting metadata.
type Routing struct {
	RequestID        string  `json:"requestId"`
	ProviderID       string  `json:"providerId"`
	ModelID          string  `json:"modelId"`
	LatencyMs        int64   `json:"latencyMs,omitempty"`
	PromptTokens     int64   `json:"promptTokens,omitempty"`
	CompletionTokens int64   `json:"completionTokens,omitempty"`
	TotalTokens      int64   `json:"totalTokens,omitempty"`
	Cost             float64 `json:"cost,omitempty"`
	Currency         string  `json:"currency,omitempty"`
}

// SendResult is the response to a message submission: the persisted user
// message and the assistant reply, in that order.
type SendResult struct {
	ConversationID   string  `json:"conversationId"`
	UserMessage      Message `json:"userMessage"`
	AssistantMessage Message `json:"assistantMessage"`
	Routing          Routing `json:"routing"`
}

type UsageProviderBreakdown struct {
	ProviderID   string  `json:"providerId"`
	Requests     int64   `json:"requests"`
	Tokens       int64   `json:"tokens"`
	Cost         float64 `json:"cost"`
	AvgLatencyMs float64 `json:"avgLatencyMs,omitempty"`
}

type UsageCredits struct {
	ProviderID   string  `json:"providerId"`
	TotalCredits float64 `json:"totalCredits"`
	UsedCredits  float64 `json:"usedCredits"`
}

// UsageSummary is the read-only billing aggregate for the current user.
type UsageSummary struct {
	From          string                   `json:"from,omitempty"`
	To            string                   `json:"to,omitempty"`
	TotalCost     float64                  `json:"totalCost"`
	Currency      string                   `json:"currency"`
	TotalRequests int64                    `json:"totalRequests"`
	TotalTokens   int64                    `json:"totalTokens"`
	ByProvider    []UsageProviderBreakdown `json:"byProvider"`
	Credits       []UsageCredits           `json:"credits"`
}
