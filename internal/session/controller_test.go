package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prpo-labs/prpo/internal/api"
)

type fakeCreds struct {
	token   string
	loading bool
}

func (f fakeCreds) Token(ctx context.Context) (string, error) {
	if f.token == "" {
		return "", errors.New("not authenticated")
	}
	return f.token, nil
}

func (f fakeCreds) Authenticated() bool { return f.token != "" }
func (f fakeCreds) Loading() bool       { return f.loading }

type fakeService struct {
	createFn func() (api.ChatSummary, error)
	getFn    func(id string) (api.ChatDetail, error)
	listFn   func(limit int, cursor string) (api.ChatPage, error)
	sendFn   func(id, content, providerID, modelID string) (api.SendResult, error)
	deleteFn func(id string) error

	createCalls int
	sendCalls   int
	listCalls   int
}

func (f *fakeService) CreateChat(ctx context.Context, token string) (api.ChatSummary, error) {
	f.createCalls++
	if f.createFn == nil {
		return api.ChatSummary{ID: "c1"}, nil
	}
	return f.createFn()
}

func (f *fakeService) GetChat(ctx context.Context, token, id string) (api.ChatDetail, error) {
	if f.getFn == nil {
		return api.ChatDetail{ID: id}, nil
	}
	return f.getFn(id)
}

func (f *fakeService) ListChats(ctx context.Context, token string, limit int, cursor string) (api.ChatPage, error) {
	f.listCalls++
	if f.listFn == nil {
		return api.ChatPage{}, nil
	}
	return f.listFn(limit, cursor)
}

func (f *fakeService) SendMessage(ctx context.Context, token, id, content, providerID, modelID string) (api.SendResult, error) {
	f.sendCalls++
	if f.sendFn == nil {
		return api.SendResult{
			ConversationID:   id,
			UserMessage:      api.Message{ID: "m1", Role: api.RoleUser, Content: content},
			AssistantMessage: api.Message{ID: "m2", Role: api.RoleAssistant, Content: "reply"},
		}, nil
	}
	return f.sendFn(id, content, providerID, modelID)
}

func (f *fakeService) DeleteChat(ctx context.Context, token, id string) error {
	if f.deleteFn == nil {
		return nil
	}
	return f.deleteFn(id)
}

type recordingRouter struct {
	navigations []string
}

func (r *recordingRouter) Navigate(id string) {
	r.navigations = append(r.navigations, id)
}

func newTestController(svc *fakeService) (*Controller, *recordingRouter) {
	ctrl := NewController(svc, fakeCreds{token: "tok"}, 50)
	router := &recordingRouter{}
	ctrl.SetRouter(router)
	return ctrl, router
}

func TestSendCreatesConversationLazily(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		createFn: func() (api.ChatSummary, error) {
			return api.ChatSummary{ID: "c1", Title: ""}, nil
		},
	}
	ctrl, router := newTestController(svc)

	req, start := ctrl.StartSend("  Hello  ")
	require.Equal(t, SendStarted, start)
	assert.Equal(t, "Hello", req.Content)
	assert.True(t, ctrl.Busy())
	assert.True(t, ctrl.PendingSend())

	msgs := ctrl.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, IsPlaceholder(msgs[0].ID))
	assert.Equal(t, api.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hello", msgs[0].Content)

	done := ctrl.PerformSend(context.Background(), req)
	require.NoError(t, done.Err)
	require.NotNil(t, done.Created)

	outcome := ctrl.FinishSend(done)
	assert.True(t, outcome.RefreshList)
	assert.True(t, outcome.FocusInput)

	assert.Equal(t, "c1", ctrl.ConversationID())
	assert.Equal(t, []string{"c1"}, router.navigations)
	assert.False(t, ctrl.Busy())
	assert.False(t, ctrl.PendingSend())
	assert.Empty(t, ctrl.Err())

	msgs = ctrl.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, api.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, api.RoleAssistant, msgs[1].Role)

	items := ctrl.ListItems()
	require.Len(t, items, 1)
	assert.Equal(t, "c1", items[0].ID)
	assert.Equal(t, "New chat", items[0].Title)
	assert.Equal(t, 1, svc.createCalls)
}

func TestSendReusesExistingConversation(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	ctrl, _ := newTestController(svc)
	selectConversation(t, ctrl, "c9")

	req, start := ctrl.StartSend("hi")
	require.Equal(t, SendStarted, start)
	done := ctrl.PerformSend(context.Background(), req)
	require.NoError(t, done.Err)
	assert.Nil(t, done.Created)
	ctrl.FinishSend(done)

	assert.Equal(t, 0, svc.createCalls)
	assert.Equal(t, "c9", ctrl.ConversationID())
}

func TestSendRollbackOnFailure(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		sendFn: func(id, content, providerID, modelID string) (api.SendResult, error) {
			return api.SendResult{}, errors.New("boom")
		},
	}
	ctrl, _ := newTestController(svc)
	selectConversation(t, ctrl, "c1")
	before := ctrl.Messages()

	req, start := ctrl.StartSend("hello")
	require.Equal(t, SendStarted, start)
	done := ctrl.PerformSend(context.Background(), req)
	require.Error(t, done.Err)
	ctrl.FinishSend(done)

	assert.Equal(t, before, ctrl.Messages())
	assert.False(t, ctrl.Busy())
	assert.NotEmpty(t, ctrl.Err())

	// A second rollback attempt on an already-removed placeholder is a
	// no-op.
	ctrl.FinishSend(done)
	assert.Equal(t, before, ctrl.Messages())
}

func TestSendNoopCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		creds fakeCreds
		text  string
		want  SendStart
	}{
		{name: "empty text", creds: fakeCreds{token: "tok"}, text: "   ", want: SendNoop},
		{name: "auth loading", creds: fakeCreds{token: "tok", loading: true}, text: "hi", want: SendNoop},
		{name: "unauthenticated", creds: fakeCreds{}, text: "hi", want: SendLoginRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := NewController(&fakeService{}, tt.creds, 50)
			_, start := ctrl.StartSend(tt.text)
			assert.Equal(t, tt.want, start)
			assert.False(t, ctrl.Busy())
			assert.Empty(t, ctrl.Messages())
		})
	}
}

func TestSendRejectedWhileBusy(t *testing.T) {
	t.Parallel()

	ctrl, _ := newTestController(&fakeService{})

	_, start := ctrl.StartSend("first")
	require.Equal(t, SendStarted, start)

	// At most one mutating operation may be outstanding.
	_, start = ctrl.StartSend("second")
	assert.Equal(t, SendNoop, start)
	_, ok := ctrl.StartSelect("c2")
	assert.False(t, ok)
	assert.Len(t, ctrl.Messages(), 1)
}

func TestSendStaleResultDiscardedAfterNewConversation(t *testing.T) {
	t.Parallel()

	ctrl, router := newTestController(&fakeService{})
	selectConversation(t, ctrl, "c1")

	req, start := ctrl.StartSend("hello")
	require.Equal(t, SendStarted, start)
	done := ctrl.PerformSend(context.Background(), req)

	// User resets to a fresh chat while the send is in flight.
	ctrl.NewConversation()
	assert.False(t, ctrl.Busy())
	assert.Empty(t, ctrl.Messages())
	assert.Equal(t, "", router.navigations[len(router.navigations)-1])

	outcome := ctrl.FinishSend(done)
	assert.False(t, outcome.RefreshList)
	assert.Empty(t, ctrl.Messages())
	assert.Equal(t, "", ctrl.ConversationID())
	assert.False(t, ctrl.Busy())
}

func TestSelectReplacesMessages(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		getFn: func(id string) (api.ChatDetail, error) {
			return api.ChatDetail{ID: id, Messages: []api.Message{
				{ID: "m1", Role: api.RoleUser, Content: "old"},
				{ID: "m2", Role: api.RoleAssistant, Content: "older reply"},
			}}, nil
		},
	}
	ctrl, _ := newTestController(svc)

	req, ok := ctrl.StartSelect("c1")
	require.True(t, ok)
	assert.True(t, ctrl.Busy())
	assert.Equal(t, "c1", ctrl.ConversationID())

	ctrl.FinishSelect(ctrl.PerformSelect(context.Background(), req))
	assert.False(t, ctrl.Busy())
	assert.Len(t, ctrl.Messages(), 2)

	// Selecting the active conversation is a no-op.
	_, ok = ctrl.StartSelect("c1")
	assert.False(t, ok)
}

func TestSelectFailureKeepsIDAndMessages(t *testing.T) {
	t.Parallel()

	calls := 0
	svc := &fakeService{
		getFn: func(id string) (api.ChatDetail, error) {
			calls++
			if calls == 1 {
				return api.ChatDetail{ID: id, Messages: []api.Message{{ID: "m1", Role: api.RoleUser, Content: "kept"}}}, nil
			}
			return api.ChatDetail{}, errors.New("unreachable backend")
		},
	}
	ctrl, _ := newTestController(svc)
	selectConversation(t, ctrl, "c1")

	req, ok := ctrl.StartSelect("c2")
	require.True(t, ok)
	ctrl.FinishSelect(ctrl.PerformSelect(context.Background(), req))

	// Retry-friendly: the id stays on the failed target, the last-known
	// messages are untouched.
	assert.Equal(t, "c2", ctrl.ConversationID())
	assert.NotEmpty(t, ctrl.Err())
	require.Len(t, ctrl.Messages(), 1)
	assert.Equal(t, "kept", ctrl.Messages()[0].Content)
	assert.False(t, ctrl.Busy())
}

func TestSelectRetryAfterFailedLoad(t *testing.T) {
	t.Parallel()

	calls := 0
	svc := &fakeService{
		getFn: func(id string) (api.ChatDetail, error) {
			calls++
			if calls == 1 {
				return api.ChatDetail{}, errors.New("backend down")
			}
			return api.ChatDetail{ID: id, Messages: []api.Message{{ID: "m1", Role: api.RoleAssistant, Content: "loaded"}}}, nil
		},
	}
	ctrl, _ := newTestController(svc)

	req, ok := ctrl.StartSelect("c1")
	require.True(t, ok)
	ctrl.FinishSelect(ctrl.PerformSelect(context.Background(), req))
	require.NotEmpty(t, ctrl.Err())
	require.Equal(t, "c1", ctrl.ConversationID())

	// The row stays selected; picking it again retries the load.
	req, ok = ctrl.StartSelect("c1")
	require.True(t, ok)
	ctrl.FinishSelect(ctrl.PerformSelect(context.Background(), req))
	assert.Empty(t, ctrl.Err())
	require.Len(t, ctrl.Messages(), 1)
	assert.Equal(t, "loaded", ctrl.Messages()[0].Content)

	// Loaded cleanly: re-selecting is a no-op again.
	_, ok = ctrl.StartSelect("c1")
	assert.False(t, ok)
}

func TestSelectStaleResponseNotApplied(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		getFn: func(id string) (api.ChatDetail, error) {
			return api.ChatDetail{ID: id, Messages: []api.Message{{ID: "m-" + id, Role: api.RoleAssistant, Content: id}}}, nil
		},
	}
	ctrl, _ := newTestController(svc)

	reqA, ok := ctrl.StartSelect("a")
	require.True(t, ok)
	doneA := ctrl.PerformSelect(context.Background(), reqA)

	// The user switches before the first load resolves.
	ctrl.ResetLocal()
	reqB, ok := ctrl.StartSelect("b")
	require.True(t, ok)
	doneB := ctrl.PerformSelect(context.Background(), reqB)

	ctrl.FinishSelect(doneA)
	ctrl.FinishSelect(doneB)

	assert.Equal(t, "b", ctrl.ConversationID())
	require.Len(t, ctrl.Messages(), 1)
	assert.Equal(t, "b", ctrl.Messages()[0].Content)
}

func TestListLoadResetAndPagination(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		listFn: func(limit int, cursor string) (api.ChatPage, error) {
			if cursor == "" {
				return api.ChatPage{
					Items:      []api.ChatSummary{{ID: "c1"}, {ID: "c2"}},
					NextCursor: "1700000000000:c2",
				}, nil
			}
			return api.ChatPage{Items: []api.ChatSummary{{ID: "c3"}}}, nil
		},
	}
	ctrl, _ := newTestController(svc)

	req, ok := ctrl.StartListLoad(true)
	require.True(t, ok)
	assert.True(t, ctrl.ListLoading())
	ctrl.FinishListLoad(ctrl.PerformListLoad(context.Background(), req))
	assert.False(t, ctrl.ListLoading())
	assert.Len(t, ctrl.ListItems(), 2)
	assert.Equal(t, "1700000000000:c2", ctrl.Cursor())

	req, ok = ctrl.StartListLoad(false)
	require.True(t, ok)
	ctrl.FinishListLoad(ctrl.PerformListLoad(context.Background(), req))
	assert.Len(t, ctrl.ListItems(), 3)
	assert.Equal(t, "", ctrl.Cursor())

	// Cursor exhausted: load-more becomes a no-op.
	_, ok = ctrl.StartListLoad(false)
	assert.False(t, ok)
}

func TestListLoadSecondCallWhilePendingIsNoop(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		listFn: func(limit int, cursor string) (api.ChatPage, error) {
			return api.ChatPage{Items: []api.ChatSummary{{ID: "p-" + cursor}}}, nil
		},
	}
	ctrl, _ := newTestController(svc)
	ctrl.cursor = "cur"

	req, ok := ctrl.StartListLoad(false)
	require.True(t, ok)
	_, ok = ctrl.StartListLoad(false)
	assert.False(t, ok)

	ctrl.FinishListLoad(ctrl.PerformListLoad(context.Background(), req))
	assert.Len(t, ctrl.ListItems(), 1)
	assert.Equal(t, 1, svc.listCalls)
}

func TestListLoadDoesNotBlockSend(t *testing.T) {
	t.Parallel()

	ctrl, _ := newTestController(&fakeService{})
	selectConversation(t, ctrl, "c1")

	_, ok := ctrl.StartListLoad(true)
	require.True(t, ok)

	_, start := ctrl.StartSend("still works")
	assert.Equal(t, SendStarted, start)
}

func TestListRefreshKeepsLazilyCreatedConversation(t *testing.T) {
	t.Parallel()

	// The refresh snapshot predates the creation, so it does not contain
	// the new conversation.
	svc := &fakeService{
		listFn: func(limit int, cursor string) (api.ChatPage, error) {
			return api.ChatPage{Items: []api.ChatSummary{{ID: "old-1"}, {ID: "old-2"}}}, nil
		},
	}
	ctrl, _ := newTestController(svc)

	listReq, ok := ctrl.StartListLoad(true)
	require.True(t, ok)
	listDone := ctrl.PerformListLoad(context.Background(), listReq)

	sendReq, start := ctrl.StartSend("hello")
	require.Equal(t, SendStarted, start)
	ctrl.FinishSend(ctrl.PerformSend(context.Background(), sendReq))
	require.Equal(t, "c1", ctrl.ConversationID())

	ctrl.FinishListLoad(listDone)

	ids := make([]string, 0, len(ctrl.ListItems()))
	count := 0
	for _, item := range ctrl.ListItems() {
		ids = append(ids, item.ID)
		if item.ID == "c1" {
			count++
		}
	}
	assert.Equal(t, 1, count, "new conversation must appear exactly once, got %v", ids)
}

func TestListMergeDeduplicatesOnRefreshAfterCreate(t *testing.T) {
	t.Parallel()

	// The refresh completes after creation and already includes the new
	// conversation.
	svc := &fakeService{
		listFn: func(limit int, cursor string) (api.ChatPage, error) {
			return api.ChatPage{Items: []api.ChatSummary{{ID: "c1", Title: "Greeting"}, {ID: "old-1"}}}, nil
		},
	}
	ctrl, _ := newTestController(svc)

	sendReq, start := ctrl.StartSend("hello")
	require.Equal(t, SendStarted, start)
	ctrl.FinishSend(ctrl.PerformSend(context.Background(), sendReq))

	listReq, ok := ctrl.StartListLoad(true)
	require.True(t, ok)
	ctrl.FinishListLoad(ctrl.PerformListLoad(context.Background(), listReq))

	count := 0
	for _, item := range ctrl.ListItems() {
		if item.ID == "c1" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestDeleteActiveConversationResetsSession(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		listFn: func(limit int, cursor string) (api.ChatPage, error) {
			return api.ChatPage{Items: []api.ChatSummary{{ID: "c1"}, {ID: "c2"}}}, nil
		},
	}
	ctrl, router := newTestController(svc)

	listReq, _ := ctrl.StartListLoad(true)
	ctrl.FinishListLoad(ctrl.PerformListLoad(context.Background(), listReq))
	selectConversation(t, ctrl, "c1")

	req, ok := ctrl.StartDelete("c1")
	require.True(t, ok)
	assert.True(t, ctrl.DeleteBusy())

	out := ctrl.FinishDelete(ctrl.PerformDelete(context.Background(), req))
	assert.True(t, out.Removed)
	assert.True(t, out.ResetActive)

	assert.Equal(t, "", ctrl.ConversationID())
	assert.Empty(t, ctrl.Messages())
	assert.False(t, ctrl.DeleteBusy())
	assert.Equal(t, "", router.navigations[len(router.navigations)-1])

	for _, item := range ctrl.ListItems() {
		assert.NotEqual(t, "c1", item.ID)
	}
}

func TestDeleteOtherConversationLeavesSessionAlone(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		listFn: func(limit int, cursor string) (api.ChatPage, error) {
			return api.ChatPage{Items: []api.ChatSummary{{ID: "c1"}, {ID: "c2"}}}, nil
		},
	}
	ctrl, _ := newTestController(svc)

	listReq, _ := ctrl.StartListLoad(true)
	ctrl.FinishListLoad(ctrl.PerformListLoad(context.Background(), listReq))
	selectConversation(t, ctrl, "c1")

	req, ok := ctrl.StartDelete("c2")
	require.True(t, ok)
	out := ctrl.FinishDelete(ctrl.PerformDelete(context.Background(), req))
	assert.True(t, out.Removed)
	assert.False(t, out.ResetActive)
	assert.Equal(t, "c1", ctrl.ConversationID())
	require.Len(t, ctrl.ListItems(), 1)
	assert.Equal(t, "c1", ctrl.ListItems()[0].ID)
}

func TestDeleteFailureChangesNothing(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		listFn: func(limit int, cursor string) (api.ChatPage, error) {
			return api.ChatPage{Items: []api.ChatSummary{{ID: "c1"}}}, nil
		},
		deleteFn: func(id string) error { return errors.New("denied") },
	}
	ctrl, _ := newTestController(svc)
	listReq, _ := ctrl.StartListLoad(true)
	ctrl.FinishListLoad(ctrl.PerformListLoad(context.Background(), listReq))
	selectConversation(t, ctrl, "c1")

	req, ok := ctrl.StartDelete("c1")
	require.True(t, ok)
	out := ctrl.FinishDelete(ctrl.PerformDelete(context.Background(), req))
	assert.False(t, out.Removed)
	assert.Equal(t, "c1", ctrl.ConversationID())
	assert.Len(t, ctrl.ListItems(), 1)
	assert.NotEmpty(t, ctrl.Err())
	assert.False(t, ctrl.DeleteBusy())
}

func TestDeleteInvalidatesInFlightListPage(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		listFn: func(limit int, cursor string) (api.ChatPage, error) {
			return api.ChatPage{Items: []api.ChatSummary{{ID: "c1"}, {ID: "c2"}}}, nil
		},
	}
	ctrl, _ := newTestController(svc)

	listReq, ok := ctrl.StartListLoad(true)
	require.True(t, ok)
	listDone := ctrl.PerformListLoad(context.Background(), listReq)

	delReq, ok := ctrl.StartDelete("c1")
	require.True(t, ok)
	ctrl.FinishDelete(ctrl.PerformDelete(context.Background(), delReq))

	// The page was fetched before the deletion; applying it would
	// resurrect the deleted row, so it is discarded.
	ctrl.FinishListLoad(listDone)
	for _, item := range ctrl.ListItems() {
		assert.NotEqual(t, "c1", item.ID)
	}
	assert.False(t, ctrl.ListLoading())
}

func TestBootstrapRunsOnce(t *testing.T) {
	t.Parallel()

	ctrl, _ := newTestController(&fakeService{})

	req, ok := ctrl.Bootstrap()
	require.True(t, ok)
	ctrl.FinishListLoad(ctrl.PerformListLoad(context.Background(), req))

	_, ok = ctrl.Bootstrap()
	assert.False(t, ok)
}

func TestModelOverridePassedToService(t *testing.T) {
	t.Parallel()

	var gotProvider, gotModel string
	svc := &fakeService{
		sendFn: func(id, content, providerID, modelID string) (api.SendResult, error) {
			gotProvider, gotModel = providerID, modelID
			return api.SendResult{
				UserMessage:      api.Message{ID: "m1", Role: api.RoleUser, Content: content},
				AssistantMessage: api.Message{ID: "m2", Role: api.RoleAssistant, Content: "ok", ModelID: modelID},
			}, nil
		},
	}
	ctrl, _ := newTestController(svc)
	selectConversation(t, ctrl, "c1")

	ctrl.SetModelOverride(ModelChoice{ProviderID: "openai", ModelID: "gpt-5-mini"})
	req, start := ctrl.StartSend("hi")
	require.Equal(t, SendStarted, start)
	ctrl.FinishSend(ctrl.PerformSend(context.Background(), req))

	assert.Equal(t, "openai", gotProvider)
	assert.Equal(t, "gpt-5-mini", gotModel)

	// Back to auto: no override forwarded.
	ctrl.SetModelOverride(ModelChoice{})
	req, start = ctrl.StartSend("again")
	require.Equal(t, SendStarted, start)
	ctrl.FinishSend(ctrl.PerformSend(context.Background(), req))
	assert.Empty(t, gotProvider)
	assert.Empty(t, gotModel)
}

func TestErrorClearedAtOperationStart(t *testing.T) {
	t.Parallel()

	svc := &fakeService{
		sendFn: func(id, content, providerID, modelID string) (api.SendResult, error) {
			return api.SendResult{}, errors.New("boom")
		},
	}
	ctrl, _ := newTestController(svc)
	selectConversation(t, ctrl, "c1")

	req, _ := ctrl.StartSend("fail")
	ctrl.FinishSend(ctrl.PerformSend(context.Background(), req))
	require.NotEmpty(t, ctrl.Err())

	_, ok := ctrl.StartListLoad(true)
	require.True(t, ok)
	assert.Empty(t, ctrl.Err())
}

// selectConversation drives a full successful selection so tests can start
// from a session with an active conversation.
func selectConversation(t *testing.T, ctrl *Controller, id string) {
	t.Helper()
	req, ok := ctrl.StartSelect(id)
	require.True(t, ok, "select %s", id)
	done := ctrl.PerformSelect(context.Background(), req)
	require.NoError(t, done.Err)
	ctrl.FinishSelect(done)
	require.Equal(t, id, ctrl.ConversationID())
	require.False(t, ctrl.Busy())
}

func TestRapidSendsAtMostOneInFlight(t *testing.T) {
	t.Parallel()

	ctrl, _ := newTestController(&fakeService{})
	selectConversation(t, ctrl, "c1")

	started := 0
	for i := 0; i < 10; i++ {
		_, start := ctrl.StartSend(fmt.Sprintf("msg %d", i))
		if start == SendStarted {
			started++
		}
	}
	assert.Equal(t, 1, started)
}
