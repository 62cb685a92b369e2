package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/prpo-labs/prpo/internal/api"
	"github.com/prpo-labs/prpo/internal/auth"
	"github.com/prpo-labs/prpo/internal/config"
	"github.com/prpo-labs/prpo/internal/session"
	"github.com/prpo-labs/prpo/internal/state"
)

var appStyle = lipgloss.NewStyle().Margin(0, 0)

// AuthManager is the auth surface the TUI needs beyond the controller's
// credential reads. *auth.Keyring satisfies it.
type AuthManager interface {
	session.Credentials
	Restore()
	Login(ctx context.Context, notify auth.LoginNotifier) error
	Logout() error
}

type SendDoneMsg struct{ Done session.SendDone }
type SelectDoneMsg struct{ Done session.SelectDone }
type ListDoneMsg struct{ Done session.ListDone }
type DeleteDoneMsg struct{ Done session.DeleteDone }

type AuthRestoredMsg struct{}
type LoginGrantMsg struct {
	VerificationURI string
	UserCode        string
}
type LoginFinishedMsg struct{ Err error }
type UsageFetchedMsg struct {
	Summary api.UsageSummary
	Err     error
}
type ConfigReloadedMsg struct{ Cfg *config.Config }

type AppModel struct {
	cfg     *config.Config
	db      *state.DB
	client  *api.Client
	authMgr AuthManager
	profile string

	controller *session.Controller
	syncer     *session.Synchronizer

	chat        *ChatModel
	statusbar   *StatusBarModel
	sidebar     *SidebarModel
	deleteModal *SelectModal
	modelModal  *SelectModal
	loginModal  *LoginModal

	initialRoute string

	inputHistory      []string
	inputHistoryIndex int
	inputDraft        string
	historyBrowsing   bool

	sidebarFocused bool
	width          int
	height         int

	loginCancel context.CancelFunc
	loginGrants chan LoginGrantMsg
}

func NewAppModel(cfg *config.Config, db *state.DB, client *api.Client, authMgr AuthManager, profile, initialRoute string) *AppModel {
	controller := session.NewController(client, authMgr, cfg.Chats.PageSize)
	controller.SetRouter(&StateRouter{DB: db, Profile: profile})

	model := &AppModel{
		cfg:          cfg,
		db:           db,
		client:       client,
		authMgr:      authMgr,
		profile:      profile,
		controller:   controller,
		syncer:       session.NewSynchronizer(controller),
		chat:         NewChatModel(),
		statusbar:    NewStatusBarModel(),
		sidebar:      NewSidebarModel(),
		loginModal:   &LoginModal{},
		initialRoute: strings.TrimSpace(initialRoute),
	}
	model.loadPersistedModelChoice()
	model.loadPersistedInputHistory()
	model.resetInputHistoryNavigation()
	model.syncFromController()
	return model
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(
		m.chat.Init(),
		m.statusbar.Init(),
		textinput.Blink,
		m.restoreAuthCmd(),
	)
}

func (m *AppModel) restoreAuthCmd() tea.Cmd {
	return func() tea.Msg {
		m.authMgr.Restore()
		return AuthRestoredMsg{}
	}
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if model, cmd, handled := m.handleKey(msg); handled {
			return model, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case AuthRestoredMsg:
		m.statusbar.LoggedIn = m.authMgr.Authenticated()
		if req, ok := m.syncer.SetAuthReady(); ok {
			cmds = append(cmds, m.performSelectCmd(req))
		} else if m.initialRoute != "" {
			if req, ok := m.syncer.Observe(m.initialRoute); ok {
				cmds = append(cmds, m.performSelectCmd(req))
			}
		}
		m.initialRoute = ""
		if m.authMgr.Authenticated() {
			if req, ok := m.controller.Bootstrap(); ok {
				cmds = append(cmds, m.performListCmd(req))
			}
		}
		m.syncFromController()
		return m, tea.Batch(cmds...)

	case SendDoneMsg:
		outcome := m.controller.FinishSend(msg.Done)
		m.syncFromController()
		if outcome.RefreshList {
			if req, ok := m.controller.StartListLoad(true); ok {
				cmds = append(cmds, m.performListCmd(req))
			}
		}
		if outcome.FocusInput && !m.sidebarFocused {
			cmds = append(cmds, m.chat.Focus())
		}
		m.syncFromController()
		return m, tea.Batch(cmds...)

	case SelectDoneMsg:
		m.controller.FinishSelect(msg.Done)
		m.syncFromController()
		return m, nil

	case ListDoneMsg:
		m.controller.FinishListLoad(msg.Done)
		m.syncFromController()
		return m, nil

	case DeleteDoneMsg:
		m.controller.FinishDelete(msg.Done)
		m.syncFromController()
		return m, nil

	case NewChatMsg:
		m.controller.NewConversation()
		m.syncFromController()
		return m, m.chat.Focus()

	case ToggleSidebarMsg:
		m.sidebar.Visible = !m.sidebar.Visible
		if !m.sidebar.Visible {
			m.sidebarFocused = false
		}
		m.layout()
		return m, nil

	case LoadMoreChatsMsg:
		if req, ok := m.controller.StartListLoad(false); ok {
			cmds = append(cmds, m.performListCmd(req))
		}
		m.syncFromController()
		return m, tea.Batch(cmds...)

	case OpenChatMsg:
		if req, ok := m.controller.StartSelect(msg.ID); ok {
			cmds = append(cmds, m.performSelectCmd(req))
		}
		m.syncFromController()
		return m, tea.Batch(cmds...)

	case ConfirmDeleteMsg:
		m.openDeleteConfirm(msg.ID)
		return m, nil

	case OpenModelPickerMsg:
		m.openModelPicker()
		return m, nil

	case ShowUsageMsg:
		return m, m.fetchUsageCmd()

	case UsageFetchedMsg:
		if msg.Err != nil {
			m.chat.SetNotice("Failed to load usage: "+msg.Err.Error(), true)
			return m, nil
		}
		m.chat.SetNotice(formatUsageNotice(msg.Summary), false)
		return m, nil

	case StartLoginMsg:
		return m, m.startLogin()

	case LoginGrantMsg:
		m.loginModal.SetGrant(msg.VerificationURI, msg.UserCode)
		cmds = append(cmds, m.waitForLoginGrant())
		return m, tea.Batch(cmds...)

	case LoginFinishedMsg:
		m.loginCancel = nil
		if msg.Err != nil {
			if !errors.Is(msg.Err, context.Canceled) {
				m.loginModal.SetError(msg.Err.Error())
			} else {
				m.loginModal.Close()
			}
			return m, nil
		}
		m.loginModal.Close()
		m.statusbar.LoggedIn = true
		if req, ok := m.controller.Bootstrap(); ok {
			cmds = append(cmds, m.performListCmd(req))
		}
		m.chat.SetNotice("Logged in.", false)
		m.syncFromController()
		return m, tea.Batch(cmds...)

	case LogoutMsg:
		if err := m.authMgr.Logout(); err != nil {
			m.chat.SetNotice("Logout failed: "+err.Error(), true)
			return m, nil
		}
		m.controller.NewConversation()
		m.statusbar.LoggedIn = false
		m.chat.SetNotice("Logged out.", false)
		m.syncFromController()
		return m, nil

	case ConfigReloadedMsg:
		if msg.Cfg != nil {
			m.cfg = msg.Cfg
		}
		return m, nil

	case CommandResultMsg:
		m.chat.SetNotice(msg.Msg, false)
		return m, nil

	case LoadingTickMsg:
		if m.chat.IsLoading() {
			cmds = append(cmds, loadingTickCmd())
		}
	}

	chatModel, cmd := m.chat.Update(msg)
	if c, ok := chatModel.(*ChatModel); ok {
		m.chat = c
	}
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleKey routes key events by modal priority. It reports handled=false
// only for keys that should fall through to the text input.
func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit, true
	}

	if m.loginModal.Visible {
		if msg.String() == "esc" {
			if m.loginCancel != nil {
				m.loginCancel()
				m.loginCancel = nil
			}
			m.loginModal.Close()
		}
		return m, nil, true
	}

	if m.deleteModal != nil && m.deleteModal.Visible {
		switch msg.String() {
		case "esc":
			m.deleteModal.Close()
			m.deleteModal = nil
			return m, nil, true
		case "up", "k":
			m.deleteModal.Move(-1)
			return m, nil, true
		case "down", "j":
			m.deleteModal.Move(1)
			return m, nil, true
		case "enter":
			opt, ok := m.deleteModal.SelectedOption()
			m.deleteModal.Close()
			m.deleteModal = nil
			if !ok || opt.Value == "cancel" {
				return m, nil, true
			}
			if req, started := m.controller.StartDelete(opt.Value); started {
				m.syncFromController()
				return m, m.performDeleteCmd(req), true
			}
			return m, nil, true
		default:
			return m, nil, true
		}
	}

	if m.modelModal != nil && m.modelModal.Visible {
		switch msg.String() {
		case "esc":
			m.modelModal.Close()
			m.modelModal = nil
			return m, nil, true
		case "up", "k":
			m.modelModal.Move(-1)
			return m, nil, true
		case "down", "j":
			m.modelModal.Move(1)
			return m, nil, true
		case "enter":
			opt, ok := m.modelModal.SelectedOption()
			m.modelModal.Close()
			m.modelModal = nil
			if ok {
				m.applyModelSelection(opt.Value)
			}
			return m, nil, true
		default:
			return m, nil, true
		}
	}

	if m.sidebarFocused {
		switch msg.String() {
		case "tab", "esc":
			m.sidebarFocused = false
			return m, m.chat.Focus(), true
		case "up", "k":
			m.sidebar.Move(-1)
			return m, nil, true
		case "down", "j":
			m.sidebar.Move(1)
			return m, nil, true
		case "d":
			if row, ok := m.sidebar.SelectedRow(); ok && row != loadMoreRow {
				m.openDeleteConfirm(row)
			}
			return m, nil, true
		case "enter":
			row, ok := m.sidebar.SelectedRow()
			if !ok {
				return m, nil, true
			}
			if row == loadMoreRow {
				if req, started := m.controller.StartListLoad(false); started {
					m.syncFromController()
					return m, m.performListCmd(req), true
				}
				return m, nil, true
			}
			if req, started := m.controller.StartSelect(row); started {
				m.sidebarFocused = false
				m.syncFromController()
				return m, tea.Batch(m.performSelectCmd(req), m.chat.Focus()), true
			}
			m.sidebarFocused = false
			return m, m.chat.Focus(), true
		default:
			return m, nil, true
		}
	}

	switch msg.String() {
	case "tab":
		if m.chat.ApplyTopSlashSuggestion() {
			return m, nil, true
		}
		if m.sidebar.Visible {
			m.sidebarFocused = true
			m.chat.Blur()
			return m, nil, true
		}
		return m, nil, true
	case "up", "down":
		delta := 1
		if msg.String() == "up" {
			delta = -1
		}
		if _, ok := m.chat.SelectedSlashSuggestion(); ok {
			m.chat.MoveSlashSelection(delta)
			return m, nil, true
		}
		if m.navigateInputHistory(delta) {
			return m, nil, true
		}
		return m, nil, false
	case "enter":
		return m.submitInput()
	}

	m.resetHistoryBrowsingOnEdit(msg)
	return m, nil, false
}

func (m *AppModel) submitInput() (tea.Model, tea.Cmd, bool) {
	text := strings.TrimSpace(m.chat.GetInputValue())
	if text == "" {
		return m, nil, true
	}

	if strings.HasPrefix(text, "/") {
		if suggestion, ok := m.chat.SelectedSlashSuggestion(); ok && !strings.EqualFold(strings.Fields(text)[0], suggestion.Name) {
			m.chat.ApplyTopSlashSuggestion()
			return m, nil, true
		}
		m.chat.ClearInput()
		m.appendInputHistory(text)
		return m, handleSlashCommand(text, m), true
	}

	req, start := m.controller.StartSend(text)
	switch start {
	case session.SendStarted:
		m.chat.ClearInput()
		m.appendInputHistory(text)
		m.syncFromController()
		return m, tea.Batch(m.performSendCmd(req), loadingTickCmd()), true
	case session.SendLoginRequired:
		m.chat.SetNotice("Not logged in. Run /login first.", true)
		return m, nil, true
	default:
		return m, nil, true
	}
}

func (m *AppModel) performSendCmd(req session.SendRequest) tea.Cmd {
	return func() tea.Msg {
		return SendDoneMsg{Done: m.controller.PerformSend(context.Background(), req)}
	}
}

func (m *AppModel) performSelectCmd(req session.SelectRequest) tea.Cmd {
	return func() tea.Msg {
		return SelectDoneMsg{Done: m.controller.PerformSelect(context.Background(), req)}
	}
}

func (m *AppModel) performListCmd(req session.ListRequest) tea.Cmd {
	return func() tea.Msg {
		return ListDoneMsg{Done: m.controller.PerformListLoad(context.Background(), req)}
	}
}

func (m *AppModel) performDeleteCmd(req session.DeleteRequest) tea.Cmd {
	return func() tea.Msg {
		return DeleteDoneMsg{Done: m.controller.PerformDelete(context.Background(), req)}
	}
}

func (m *AppModel) fetchUsageCmd() tea.Cmd {
	return func() tea.Msg {
		token, err := m.authMgr.Token(context.Background())
		if err != nil {
			return UsageFetchedMsg{Err: err}
		}
		summary, err := m.client.Usage(context.Background(), token, "", "")
		return UsageFetchedMsg{Summary: summary, Err: err}
	}
}

func (m *AppModel) startLogin() tea.Cmd {
	if m.loginCancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.loginCancel = cancel
	m.loginGrants = make(chan LoginGrantMsg, 1)
	m.loginModal.Open()

	grants := m.loginGrants
	runCmd := func() tea.Msg {
		err := m.authMgr.Login(ctx, func(uri, code string) {
			select {
			case grants <- LoginGrantMsg{VerificationURI: uri, UserCode: code}:
			default:
			}
		})
		// Release the grant waiter even when the flow fails before the
		// notifier ever fires.
		close(grants)
		return LoginFinishedMsg{Err: err}
	}
	return tea.Batch(runCmd, m.waitForLoginGrant())
}

func (m *AppModel) waitForLoginGrant() tea.Cmd {
	grants := m.loginGrants
	return func() tea.Msg {
		grant, ok := <-grants
		if !ok {
			return nil
		}
		return grant
	}
}

func (m *AppModel) openDeleteConfirm(chatID string) {
	title := ""
	for _, item := range m.controller.ListItems() {
		if item.ID == chatID {
			title = item.Title
			break
		}
	}
	m.deleteModal = newDeleteConfirmModal(chatID, title)
	m.deleteModal.SetWidth(m.width)
	m.deleteModal.Open()
}

func (m *AppModel) openModelPicker() {
	options := []SelectOption{{Label: "Automatic", Value: "auto", Enabled: true}}
	for _, model := range m.cfg.Models {
		label := model.Label
		if label == "" {
			label = model.ModelID
		}
		options = append(options, SelectOption{Label: label, Value: model.ModelID, Enabled: true})
	}

	m.modelModal = NewSelectModal("Choose model", "up/down: navigate  enter: select  esc: close")
	m.modelModal.SetOptions(options)
	current := m.controller.ModelOverride()
	if current.Auto() {
		m.modelModal.SelectByValue("auto")
	} else {
		m.modelModal.SelectByValue(current.ModelID)
	}
	m.modelModal.SetWidth(m.width)
	m.modelModal.Open()
}

func (m *AppModel) applyModelSelection(modelID string) {
	choice, ok := m.cfg.FindModel(modelID)
	if !ok {
		m.chat.SetNotice("Unknown model: "+modelID, true)
		return
	}
	m.controller.SetModelOverride(session.ModelChoice{ProviderID: choice.ProviderID, ModelID: choice.ModelID})
	if m.db != nil {
		_ = m.db.SetModelChoice(context.Background(), m.profile, choice.ProviderID, choice.ModelID)
	}
	m.syncFromController()
}

// syncFromController pushes controller state into the widgets. Called
// after every Finish* so the view never drifts from the state machine.
func (m *AppModel) syncFromController() {
	m.chat.SetMessages(m.controller.Messages())
	m.chat.SetLoading(m.controller.Busy())
	m.chat.SetNotice(m.controller.Err(), m.controller.Err() != "")

	m.sidebar.SetItems(m.controller.ListItems(), m.controller.Cursor() != "")
	m.sidebar.SetLoading(m.controller.ListLoading())
	m.sidebar.SetActiveID(m.controller.ConversationID())

	m.statusbar.ChatID = m.controller.ConversationID()
	m.statusbar.LoggedIn = m.authMgr.Authenticated()
	override := m.controller.ModelOverride()
	if override.Auto() {
		m.statusbar.ModelName = "auto"
	} else {
		m.statusbar.ModelName = override.ModelID
	}
	switch {
	case m.controller.Busy():
		m.statusbar.State = "sending"
	case m.controller.DeleteBusy():
		m.statusbar.State = "deleting"
	case m.controller.ListLoading():
		m.statusbar.State = "loading"
	default:
		m.statusbar.State = "ready"
	}
}

func (m *AppModel) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	sidebarWidth := 0
	if m.sidebar.Visible {
		sidebarWidth = m.width / 4
		if sidebarWidth < 20 {
			sidebarWidth = 20
		}
		if sidebarWidth > 36 {
			sidebarWidth = 36
		}
	}
	contentHeight := m.height - 1
	m.sidebar.SetSize(sidebarWidth, contentHeight)
	m.chat.SetSize(m.width-sidebarWidth, contentHeight)
	m.statusbar.SetWidth(m.width)
	if m.deleteModal != nil {
		m.deleteModal.SetWidth(m.width)
	}
	if m.modelModal != nil {
		m.modelModal.SetWidth(m.width)
	}
	m.loginModal.SetWidth(m.width)
}

func (m *AppModel) View() string {
	var overlay string
	switch {
	case m.loginModal.Visible:
		overlay = m.loginModal.View()
	case m.deleteModal != nil && m.deleteModal.Visible:
		overlay = m.deleteModal.View()
	case m.modelModal != nil && m.modelModal.Visible:
		overlay = m.modelModal.View()
	}
	if overlay != "" {
		if m.width > 0 && m.height > 0 {
			return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, overlay)
		}
		return overlay
	}

	var main string
	if m.sidebar.Visible {
		main = lipgloss.JoinHorizontal(lipgloss.Top, m.sidebar.View(), m.chat.View())
	} else {
		main = m.chat.View()
	}
	return appStyle.Render(lipgloss.JoinVertical(lipgloss.Left, main, m.statusbar.View()))
}

func formatUsageNotice(summary api.UsageSummary) string {
	currency := summary.Currency
	if currency == "" {
		currency = "USD"
	}
	return fmt.Sprintf("Usage: %d requests, %d tokens, %.4f %s",
		summary.TotalRequests, summary.TotalTokens, summary.TotalCost, currency)
}

func (m *AppModel) loadPersistedModelChoice() {
	if m.db == nil {
		return
	}
	row, err := m.db.GetModelChoice(context.Background(), m.profile)
	if err != nil {
		return
	}
	if row.ProviderID == "" && row.ModelID == "" {
		return
	}
	m.controller.SetModelOverride(session.ModelChoice{ProviderID: row.ProviderID, ModelID: row.ModelID})
}

func (m *AppModel) loadPersistedInputHistory() {
	if m.db == nil {
		return
	}
	history, err := m.db.GetInputHistory(context.Background(), m.profile)
	if err != nil {
		return
	}
	m.inputHistory = history
}

func (m *AppModel) appendInputHistory(entry string) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return
	}
	if n := len(m.inputHistory); n > 0 && m.inputHistory[n-1] == entry {
		m.resetInputHistoryNavigation()
		return
	}
	m.inputHistory = append(m.inputHistory, entry)
	if len(m.inputHistory) > state.DefaultInputHistoryLimit {
		m.inputHistory = m.inputHistory[len(m.inputHistory)-state.DefaultInputHistoryLimit:]
	}
	if m.db != nil {
		_ = m.db.AppendInputHistory(context.Background(), m.profile, entry)
	}
	m.resetInputHistoryNavigation()
}

func (m *AppModel) resetInputHistoryNavigation() {
	m.inputHistoryIndex = len(m.inputHistory)
	m.inputDraft = ""
	m.historyBrowsing = false
}

// navigateInputHistory moves through previously submitted inputs. It only
// engages when the input is empty or already browsing, so cursor movement
// inside a draft keeps working.
func (m *AppModel) navigateInputHistory(delta int) bool {
	if len(m.inputHistory) == 0 {
		return false
	}
	if !m.historyBrowsing {
		if strings.TrimSpace(m.chat.GetInputValue()) != "" || delta > 0 {
			return false
		}
		m.inputDraft = m.chat.GetInputValue()
		m.inputHistoryIndex = len(m.inputHistory)
		m.historyBrowsing = true
	}

	next := m.inputHistoryIndex + delta
	if next < 0 {
		next = 0
	}
	if next >= len(m.inputHistory) {
		m.chat.SetInputValue(m.inputDraft)
		m.resetInputHistoryNavigation()
		return true
	}
	m.inputHistoryIndex = next
	m.chat.SetInputValue(m.inputHistory[next])
	return true
}

func (m *AppModel) resetHistoryBrowsingOnEdit(msg tea.KeyMsg) {
	if !m.historyBrowsing {
		return
	}
	switch msg.Type {
	case tea.KeyRunes, tea.KeyBackspace, tea.KeySpace:
		m.historyBrowsing = false
		m.inputHistoryIndex = len(m.inputHistory)
	}
}
