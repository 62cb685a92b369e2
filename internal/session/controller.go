package session

import (
	"context"
	"errors"
	"strings"

	"github.com/prpo-labs/prpo/internal/api"
)

// SendStart classifies the outcome of StartSend.
type SendStart int

const (
	// SendStarted means the optimistic message was appended and the caller
	// must run PerformSend followed by FinishSend.
	SendStarted SendStart = iota
	// SendNoop means nothing happened: empty text or a send already in
	// flight.
	SendNoop
	// SendLoginRequired means the user is not authenticated; the caller
	// should start the login flow instead of sending.
	SendLoginRequired
)

// SendRequest captures everything PerformSend needs, plus the epoch token
// used to detect staleness at finish time.
type SendRequest struct {
	ConversationID  string
	Content         string
	PlaceholderID   string
	ForceProviderID string
	ForceModelID    string
	epoch           uint64
}

// SendDone is the resolution of a send. Created is non-nil when the
// conversation was lazily created before submitting.
type SendDone struct {
	Req     SendRequest
	Created *api.ChatSummary
	Result  *api.SendResult
	Err     error
}

// SendOutcome tells the presentation layer what to do next.
type SendOutcome struct {
	// RefreshList asks for a conversation list refresh to pick up the
	// updated title and ordering.
	RefreshList bool
	// FocusInput asks for input focus to be restored.
	FocusInput bool
}

// StartSend begins a send. It trims the text, appends an optimistic user
// message with a placeholder id, and marks the session busy.
func (c *Controller) StartSend(text string) (SendRequest, SendStart) {
	text = strings.TrimSpace(text)
	if text == "" || c.busy {
		return SendRequest{}, SendNoop
	}
	if c.creds.Loading() {
		return SendRequest{}, SendNoop
	}
	if !c.creds.Authenticated() {
		return SendRequest{}, SendLoginRequired
	}

	c.errMsg = ""
	c.busy = true

	placeholder := api.Message{
		ID:        c.nextPlaceholderID(),
		Role:      api.RoleUser,
		Content:   text,
		CreatedAt: c.now(),
	}
	c.messages = append(c.messages, placeholder)
	c.pendingID = placeholder.ID

	return SendRequest{
		ConversationID:  c.conversationID,
		Content:         text,
		PlaceholderID:   placeholder.ID,
		ForceProviderID: c.override.ProviderID,
		ForceModelID:    c.override.ModelID,
		epoch:           c.convEpoch,
	}, SendStarted
}

// PerformSend executes the network half of a send: acquire a credential,
// lazily create the conversation when none is active, then submit the
// message. It never touches controller state.
func (c *Controller) PerformSend(ctx context.Context, req SendRequest) SendDone {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return SendDone{Req: req, Err: err}
	}

	done := SendDone{Req: req}
	chatID := req.ConversationID
	if chatID == "" {
		created, err := c.svc.CreateChat(ctx, token)
		if err != nil {
			done.Err = err
			return done
		}
		done.Created = &created
		chatID = created.ID
	}

	result, err := c.svc.SendMessage(ctx, token, chatID, req.Content, req.ForceProviderID, req.ForceModelID)
	if err != nil {
		done.Err = err
		return done
	}
	done.Result = &result
	return done
}

// FinishSend reconciles a send result. On success the placeholder is
// replaced by the confirmed user message and the assistant reply; on
// failure it is rolled back. Stale results (the active conversation
// changed while the send was in flight) are discarded apart from the
// idempotent rollback.
func (c *Controller) FinishSend(done SendDone) SendOutcome {
	if done.Req.epoch != c.convEpoch {
		// Whoever bumped the epoch already reset busy and messages.
		c.removePlaceholder(done.Req.PlaceholderID)
		return SendOutcome{}
	}

	c.busy = false

	if done.Created != nil {
		if c.conversationID == "" {
			c.conversationID = done.Created.ID
			c.navigate(done.Created.ID)
		}
		summary := *done.Created
		if strings.TrimSpace(summary.Title) == "" {
			summary.Title = "New chat"
		}
		c.mergeSummary(summary)
	}

	if done.Err != nil {
		c.removePlaceholder(done.Req.PlaceholderID)
		c.errMsg = sendErrorMessage(done.Err)
		return SendOutcome{FocusInput: true}
	}

	c.removePlaceholder(done.Req.PlaceholderID)
	c.messages = append(c.messages, done.Result.UserMessage, done.Result.AssistantMessage)
	return SendOutcome{RefreshList: true, FocusInput: true}
}

func sendErrorMessage(err error) string {
	if errors.Is(err, api.ErrUnauthorized) {
		return "Session expired. Log in again."
	}
	return "Send failed: " + err.Error()
}

// SelectRequest identifies a conversation load started by selection.
type SelectRequest struct {
	ID    string
	epoch uint64
}

type SelectDone struct {
	Req    SelectRequest
	Detail api.ChatDetail
	Err    error
}

// StartSelect switches the active conversation, publishes the new route,
// and begins loading messages. Selecting the already-active conversation
// is a no-op unless its last load failed, in which case it retries; so is
// selecting while another mutating operation is in flight.
func (c *Controller) StartSelect(id string) (SelectRequest, bool) {
	id = strings.TrimSpace(id)
	if id == "" || c.busy {
		return SelectRequest{}, false
	}
	if id == c.conversationID && !c.selectFailed {
		return SelectRequest{}, false
	}

	c.errMsg = ""
	c.busy = true
	c.selectFailed = false
	c.conversationID = id
	c.convEpoch++
	c.navigate(id)
	return SelectRequest{ID: id, epoch: c.convEpoch}, true
}

func (c *Controller) PerformSelect(ctx context.Context, req SelectRequest) SelectDone {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return SelectDone{Req: req, Err: err}
	}
	detail, err := c.svc.GetChat(ctx, token, req.ID)
	return SelectDone{Req: req, Detail: detail, Err: err}
}

// FinishSelect replaces the message history on success. On failure the
// conversation id stays set so re-selecting the same row retries, and the
// previous messages are left untouched.
func (c *Controller) FinishSelect(done SelectDone) {
	if done.Req.epoch != c.convEpoch {
		return
	}
	c.busy = false
	if done.Err != nil {
		c.errMsg = "Failed to load chat: " + done.Err.Error()
		c.selectFailed = true
		return
	}
	c.messages = append([]api.Message(nil), done.Detail.Messages...)
}

// NewConversation resets to the empty session. The next send creates the
// conversation lazily, so navigating here never produces empty orphan
// conversations. Any in-flight operation against the previous conversation
// is invalidated.
func (c *Controller) NewConversation() {
	c.resetActive()
	c.navigate("")
}

// ResetLocal clears the active conversation without touching the route.
// The route synchronizer uses it when the observed route is already root.
func (c *Controller) ResetLocal() {
	c.resetActive()
}

// ListRequest is one page fetch of the conversation list.
type ListRequest struct {
	Reset  bool
	Cursor string
	Limit  int
	epoch  uint64
}

type ListDone struct {
	Req  ListRequest
	Page api.ChatPage
	Err  error
}

// StartListLoad begins a list refresh (reset) or a next-page append. List
// loading is guarded independently of the messaging busy flag so browsing
// history never blocks composing.
func (c *Controller) StartListLoad(reset bool) (ListRequest, bool) {
	if c.listLoading {
		return ListRequest{}, false
	}
	if !reset && c.cursor == "" {
		return ListRequest{}, false
	}

	c.errMsg = ""
	c.listLoading = true
	req := ListRequest{Reset: reset, Limit: c.pageSize, epoch: c.listEpoch}
	if !reset {
		req.Cursor = c.cursor
	}
	return req, true
}

// Bootstrap is the first authenticated list refresh. It runs at most once.
func (c *Controller) Bootstrap() (ListRequest, bool) {
	if c.bootstrapped {
		return ListRequest{}, false
	}
	req, ok := c.StartListLoad(true)
	if ok {
		c.bootstrapped = true
	}
	return req, ok
}

func (c *Controller) PerformListLoad(ctx context.Context, req ListRequest) ListDone {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return ListDone{Req: req, Err: err}
	}
	page, err := c.svc.ListChats(ctx, token, req.Limit, req.Cursor)
	return ListDone{Req: req, Page: page, Err: err}
}

// FinishListLoad applies a page. The cursor and the items move together:
// nothing else ever writes the cursor. A reset that raced a lazy creation
// keeps the active conversation in the list even when the server snapshot
// predates it.
func (c *Controller) FinishListLoad(done ListDone) {
	c.listLoading = false
	if done.Req.epoch != c.listEpoch {
		return
	}
	if done.Err != nil {
		c.errMsg = "Failed to load chats: " + done.Err.Error()
		return
	}

	if done.Req.Reset {
		items := append([]api.ChatSummary(nil), done.Page.Items...)
		if c.conversationID != "" {
			if active, ok := c.findSummary(c.conversationID); ok && !containsID(items, c.conversationID) {
				items = append([]api.ChatSummary{active}, items...)
			}
		}
		c.list = dedupeByID(items)
		c.cursor = done.Page.NextCursor
		return
	}

	c.list = dedupeByID(append(c.list, done.Page.Items...))
	c.cursor = done.Page.NextCursor
}

func (c *Controller) findSummary(id string) (api.ChatSummary, bool) {
	for _, item := range c.list {
		if item.ID == id {
			return item, true
		}
	}
	return api.ChatSummary{}, false
}

func containsID(items []api.ChatSummary, id string) bool {
	for _, item := range items {
		if item.ID == id {
			return true
		}
	}
	return false
}

// DeleteRequest identifies a confirmed deletion.
type DeleteRequest struct {
	ID string
}

type DeleteDone struct {
	Req DeleteRequest
	Err error
}

// DeleteOutcome reports the state transitions a finished deletion caused.
type DeleteOutcome struct {
	Removed bool
	// ResetActive is true when the deleted conversation was the active one
	// and the session was reset to empty.
	ResetActive bool
}

// StartDelete begins deleting a conversation after the presentation layer
// has confirmed it. Deletion has its own busy flag so it does not interact
// with messaging.
func (c *Controller) StartDelete(id string) (DeleteRequest, bool) {
	id = strings.TrimSpace(id)
	if id == "" || c.deleteBusy {
		return DeleteRequest{}, false
	}
	c.errMsg = ""
	c.deleteBusy = true
	return DeleteRequest{ID: id}, true
}

func (c *Controller) PerformDelete(ctx context.Context, req DeleteRequest) DeleteDone {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return DeleteDone{Req: req, Err: err}
	}
	return DeleteDone{Req: req, Err: c.svc.DeleteChat(ctx, token, req.ID)}
}

// FinishDelete removes the conversation from the list regardless of
// pagination state and, when it was active, resets the session and clears
// the route. On failure the list and session are unchanged.
func (c *Controller) FinishDelete(done DeleteDone) DeleteOutcome {
	c.deleteBusy = false
	if done.Err != nil {
		c.errMsg = "Failed to delete chat: " + done.Err.Error()
		return DeleteOutcome{}
	}

	for i, item := range c.list {
		if item.ID == done.Req.ID {
			c.list = append(c.list[:i], c.list[i+1:]...)
			break
		}
	}
	// Invalidate in-flight list pages that may still contain the row.
	c.listEpoch++

	out := DeleteOutcome{Removed: true}
	if done.Req.ID == c.conversationID {
		c.resetActive()
		c.navigate("")
		out.ResetActive = true
	}
	return out
}
