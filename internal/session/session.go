// Package session keeps the client's view of the active conversation and
// the conversation list consistent with the backend under concurrent,
// cancellable, partially-failing operations.
//
// The Controller owns all mutable state. Mutating entry points run in two
// phases: Start* mutates state synchronously and hands back a request,
// Perform* does the network call (safe to run off the event loop), and
// Finish* applies the result. Finish* validates the epoch token captured at
// Start* time and silently discards results whose context is no longer
// current.
package session

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/prpo-labs/prpo/internal/api"
)

// placeholderPrefix marks provisional message ids. Server ids never carry
// this prefix.
const placeholderPrefix = "tmp_"

// IsPlaceholder reports whether a message id belongs to an optimistic,
// not-yet-confirmed message.
func IsPlaceholder(id string) bool {
	return strings.HasPrefix(id, placeholderPrefix)
}

// ChatService is the remote conversation store. *api.Client satisfies it.
type ChatService interface {
	CreateChat(ctx context.Context, token string) (api.ChatSummary, error)
	GetChat(ctx context.Context, token, id string) (api.ChatDetail, error)
	ListChats(ctx context.Context, token string, limit int, cursor string) (api.ChatPage, error)
	SendMessage(ctx context.Context, token, id, content, forceProviderID, forceModelID string) (api.SendResult, error)
	DeleteChat(ctx context.Context, token, id string) error
}

// Credentials is the slice of the auth provider the controller needs.
type Credentials interface {
	Token(ctx context.Context) (string, error)
	Authenticated() bool
	Loading() bool
}

// Router is where conversation identity is published so the navigable
// location tracks the active conversation. Navigate("") means root.
type Router interface {
	Navigate(id string)
}

// ModelChoice is an explicit provider/model override. The zero value means
// automatic routing by the backend.
type ModelChoice struct {
	ProviderID string
	ModelID    string
}

func (m ModelChoice) Auto() bool { return m.ProviderID == "" && m.ModelID == "" }

// Controller drives the session state machine. It is not safe for
// concurrent use: Start*/Finish* and all accessors must run on a single
// goroutine (the TUI event loop); only Perform* may run elsewhere.
type Controller struct {
	svc    ChatService
	creds  Credentials
	router Router

	conversationID string
	messages       []api.Message
	pendingID      string
	busy           bool
	selectFailed   bool
	errMsg         string
	override       ModelChoice

	list        []api.ChatSummary
	cursor      string
	listLoading bool

	deleteBusy bool

	convEpoch    uint64
	listEpoch    uint64
	nextTmp      uint64
	bootstrapped bool

	pageSize int
	now      func() time.Time
}

func NewController(svc ChatService, creds Credentials, pageSize int) *Controller {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Controller{
		svc:      svc,
		creds:    creds,
		pageSize: pageSize,
		now:      time.Now,
	}
}

// SetRouter attaches the navigation sink. Nil is allowed.
func (c *Controller) SetRouter(r Router) { c.router = r }

func (c *Controller) navigate(id string) {
	if c.router != nil {
		c.router.Navigate(id)
	}
}

// ConversationID is empty until a conversation is selected or lazily
// created by the first send.
func (c *Controller) ConversationID() string { return c.conversationID }

// Messages returns a copy of the visible message sequence, including the
// optimistic placeholder while a send is in flight.
func (c *Controller) Messages() []api.Message {
	out := make([]api.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Controller) Busy() bool        { return c.busy }
func (c *Controller) DeleteBusy() bool  { return c.deleteBusy }
func (c *Controller) ListLoading() bool { return c.listLoading }
func (c *Controller) Err() string       { return c.errMsg }

// PendingSend reports whether an optimistic message is awaiting
// confirmation.
func (c *Controller) PendingSend() bool { return c.pendingID != "" }

// ListItems returns a copy of the known conversation summaries, newest
// first.
func (c *Controller) ListItems() []api.ChatSummary {
	out := make([]api.ChatSummary, len(c.list))
	copy(out, c.list)
	return out
}

// Cursor is the opaque continuation token; empty means no more pages.
func (c *Controller) Cursor() string { return c.cursor }

func (c *Controller) ModelOverride() ModelChoice     { return c.override }
func (c *Controller) SetModelOverride(m ModelChoice) { c.override = m }
func (c *Controller) ClearError()                    { c.errMsg = "" }

func (c *Controller) nextPlaceholderID() string {
	c.nextTmp++
	return placeholderPrefix + strconv.FormatUint(c.nextTmp, 10) + "_" +
		strconv.FormatInt(c.now().UnixMilli(), 10)
}

// removePlaceholder deletes the message with the given placeholder id.
// Removal of an id that is no longer present is a no-op, so rollback stays
// idempotent.
func (c *Controller) removePlaceholder(id string) {
	if id == "" {
		return
	}
	for i, m := range c.messages {
		if m.ID == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			break
		}
	}
	if c.pendingID == id {
		c.pendingID = ""
	}
}

// mergeSummary inserts or refreshes a list entry by id. New entries go to
// the top; the cursor is never touched here.
func (c *Controller) mergeSummary(s api.ChatSummary) {
	for i, item := range c.list {
		if item.ID == s.ID {
			c.list[i] = s
			return
		}
	}
	c.list = append([]api.ChatSummary{s}, c.list...)
}

// resetActive clears the active conversation and invalidates any in-flight
// operation against it. Callers decide whether to touch the route.
func (c *Controller) resetActive() {
	c.conversationID = ""
	c.messages = nil
	c.pendingID = ""
	c.busy = false
	c.selectFailed = false
	c.errMsg = ""
	c.convEpoch++
}

func dedupeByID(items []api.ChatSummary) []api.ChatSummary {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		out = append(out, item)
	}
	return out
}
