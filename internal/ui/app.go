package ui

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/roomwatch/internal/backend"
	"github.com/five82/roomwatch/internal/prefs"
	"github.com/five82/roomwatch/internal/refresh"
	"github.com/five82/roomwatch/internal/session"
	"github.com/five82/roomwatch/internal/state"
)

// View represents the current active view.
type View int

const (
	ViewLogin View = iota
	ViewRooms
	ViewAlerts
	ViewRules
	ViewLogs
)

func (v View) String() string {
	switch v {
	case ViewLogin:
		return "Sign in"
	case ViewRooms:
		return "Rooms"
	case ViewAlerts:
		return "Alerts"
	case ViewRules:
		return "Rules"
	case ViewLogs:
		return "Logs"
	default:
		return "Unknown"
	}
}

// Options configures the UI.
type Options struct {
	Context  context.Context
	API      backend.API
	Store    *state.RoomStore
	Readings *refresh.Coordinator[backend.Details]
	Alerts   *refresh.Coordinator[backend.Alert]

	Session     session.Session
	SessionPath string
	Prefs       prefs.Prefs
	PrefsPath   string
	LogPath     string
	Logger      *slog.Logger

	// RefreshRooms asks the room poller for an immediate poll.
	RefreshRooms func()
	// Date pins the first day shown. Zero follows today.
	Date time.Time
	// Tick drives the header clock. Zero uses DefaultUIInterval.
	Tick time.Duration
	// Now is the clock used for day navigation. Defaults to time.Now.
	Now func() time.Time
}

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx          context.Context
	api          backend.API
	store        *state.RoomStore
	readings     *refresh.Coordinator[backend.Details]
	alerts       *refresh.Coordinator[backend.Alert]
	refreshRooms func()
	log          *slog.Logger
	now          func() time.Time
	tick         time.Duration
	subs         *subscriptions

	session     session.Session
	sessionPath string
	prefs       prefs.Prefs
	prefsPath   string
	logPath     string

	// UI state
	keys     keyMap
	theme    Theme
	view     View
	width    int
	height   int
	ready    bool
	showHelp bool
	notice   notice

	// Data state
	snapshot     state.Snapshot
	query        refresh.Query
	readingsSnap []refresh.Entity[backend.Details]
	alertsSnap   []refresh.Entity[backend.Alert]

	// Rooms
	roomRow      int
	sensorRow    int
	confirmLeave bool
	// lastReadings holds the newest reading of sensors with nothing today;
	// lastAsked records which sensors were already looked up.
	lastReadings map[string]backend.Details
	lastAsked    map[string]bool

	// Alerts
	alertRow       int
	alertDetail    string // room id whose detail is open
	detailViewport viewport.Model

	rules ruleState
	form  *ruleForm
	phone *phoneForm
	login loginForm
	logs  logState
}

// changeSource identifies which shared container signalled a change.
type changeSource int

const (
	sourceStore changeSource = iota
	sourceReadings
	sourceAlerts
)

type subscription struct {
	ch          <-chan struct{}
	unsubscribe func()
}

type subscriptions struct {
	bySource map[changeSource]subscription
}

func (s *subscriptions) close() {
	for _, sub := range s.bySource {
		sub.unsubscribe()
	}
}

// New creates a new Bubble Tea model. Store, Readings and Alerts are required.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	tick := opts.Tick
	if tick <= 0 {
		tick = DefaultUIInterval
	}
	refreshRooms := opts.RefreshRooms
	if refreshRooms == nil {
		refreshRooms = func() {}
	}

	query := refresh.Today()
	if !opts.Date.IsZero() && !sameDate(opts.Date, now()) {
		query = refresh.On(opts.Date)
	}

	subs := &subscriptions{bySource: make(map[changeSource]subscription)}
	ch, unsub := opts.Store.Subscribe()
	subs.bySource[sourceStore] = subscription{ch, unsub}
	ch, unsub = opts.Readings.Subscribe()
	subs.bySource[sourceReadings] = subscription{ch, unsub}
	ch, unsub = opts.Alerts.Subscribe()
	subs.bySource[sourceAlerts] = subscription{ch, unsub}

	view := ViewRooms
	if !opts.Session.Valid() {
		view = ViewLogin
	}

	return Model{
		ctx:          ctx,
		api:          opts.API,
		store:        opts.Store,
		readings:     opts.Readings,
		alerts:       opts.Alerts,
		refreshRooms: refreshRooms,
		log:          logger,
		now:          now,
		tick:         tick,
		subs:         subs,
		session:      opts.Session,
		sessionPath:  opts.SessionPath,
		prefs:        opts.Prefs,
		prefsPath:    opts.PrefsPath,
		logPath:      opts.LogPath,
		keys:         DefaultKeyMap(),
		theme:        GetTheme(opts.Prefs.Theme),
		view:         view,
		snapshot:     opts.Store.Snapshot(),
		query:        query,
		rules:        ruleState{filter: -1},
		lastReadings: make(map[string]backend.Details),
		lastAsked:    make(map[string]bool),
		login:        newLoginForm(opts.Session.UserEmail),
		logs:         newLogState(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tickCmd(m.tick),
		m.listen(sourceStore),
		m.listen(sourceReadings),
		m.listen(sourceAlerts),
	}
	if m.view == ViewLogin {
		cmds = append(cmds, textinput.Blink)
	} else {
		m.refreshRooms()
		cmds = append(cmds, startViewCmd(m.view))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resizeViewports()
		return m, nil

	case tickMsg:
		if !m.notice.until.IsZero() && !m.now().Before(m.notice.until) {
			m.notice = notice{}
		}
		var cmd tea.Cmd
		if m.view == ViewLogs && m.logs.follow {
			cmd = m.loadLogs()
		}
		return m, tea.Batch(cmd, tickCmd(m.tick))

	case changeMsg:
		m.applyChange(msg.source)
		cmd := m.listen(msg.source)
		if msg.source == sourceReadings {
			cmd = tea.Batch(cmd, m.fetchLastReadings())
		}
		return m, cmd

	case startViewMsg:
		if View(msg) == m.view {
			return m, m.startLoops()
		}
		return m, nil

	case authMsg:
		return m.handleAuth(msg)

	case rulesMsg:
		m.rules.loading = false
		if msg.err != nil {
			m.rules.err = msg.err
			return m, nil
		}
		m.rules.err = nil
		m.rules.items = msg.rules
		m.clampRules()
		return m, nil

	case ruleSavedMsg:
		return m.handleRuleSaved(msg)

	case lastReadingMsg:
		m.handleLastReading(msg)
		return m, nil

	case phoneMsg:
		m.handlePhoneLoaded(msg)
		return m, nil

	case phoneSavedMsg:
		return m.handlePhoneSaved(msg)

	case actionMsg:
		return m.handleAction(msg)

	case logLinesMsg:
		m.handleLogLines(msg)
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderHeader() + "\n" + m.renderCommandBar() + "\n" + m.renderContent()
}

func (m Model) renderContent() string {
	if m.phone != nil && m.view != ViewLogin {
		return m.renderPhoneForm()
	}
	switch m.view {
	case ViewLogin:
		return m.renderLogin()
	case ViewRooms:
		return m.renderRooms()
	case ViewAlerts:
		return m.renderAlerts()
	case ViewRules:
		if m.form != nil {
			return m.renderRuleForm()
		}
		return m.renderRules()
	case ViewLogs:
		return m.renderLogs()
	default:
		return ""
	}
}

// handleKey routes keys to overlays, text inputs, globals and then the view.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	// Views that own a text input get keys first.
	switch {
	case m.view == ViewLogin:
		return m.handleLoginKey(msg)
	case m.phone != nil:
		return m.handlePhoneKey(msg)
	case m.view == ViewRooms && m.confirmLeave:
		return m.handleLeaveKey(msg)
	case m.view == ViewRules && m.form != nil:
		return m.handleFormKey(msg)
	case m.view == ViewRules && m.rules.confirmDelete:
		return m.handleConfirmKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.prefs.Theme = m.theme.Name
		m.savePrefs()
		return m, nil
	case key.Matches(msg, m.keys.Logout):
		return m.logout()
	case key.Matches(msg, m.keys.EditPhone):
		return m.openPhoneForm()
	case key.Matches(msg, m.keys.ViewRooms):
		return m, m.switchView(ViewRooms)
	case key.Matches(msg, m.keys.ViewAlerts):
		return m, m.switchView(ViewAlerts)
	case key.Matches(msg, m.keys.ViewRules):
		return m, m.switchView(ViewRules)
	case key.Matches(msg, m.keys.ViewLogs):
		return m, m.switchView(ViewLogs)
	case key.Matches(msg, m.keys.PrevDay):
		m.shiftDay(-1)
		return m, nil
	case key.Matches(msg, m.keys.NextDay):
		m.shiftDay(1)
		return m, nil
	case key.Matches(msg, m.keys.Today):
		m.setQuery(refresh.Today())
		return m, nil
	case key.Matches(msg, m.keys.Refresh):
		return m, m.manualRefresh()
	}

	switch m.view {
	case ViewRooms:
		return m.handleRoomsKey(msg)
	case ViewAlerts:
		return m.handleAlertsKey(msg)
	case ViewRules:
		return m.handleRulesKey(msg)
	case ViewLogs:
		return m.handleLogsKey(msg)
	}
	return m, nil
}

// switchView stops the loops owned by the current view and starts those of
// next.
func (m *Model) switchView(next View) tea.Cmd {
	if next == m.view {
		return nil
	}
	m.stopLoops()
	m.view = next
	m.alertDetail = ""
	m.form = nil
	m.phone = nil
	m.confirmLeave = false
	m.rules.confirmDelete = false
	return m.startLoops()
}

func (m *Model) stopLoops() {
	m.readings.Stop()
	m.alerts.Stop()
}

func (m *Model) startLoops() tea.Cmd {
	switch m.view {
	case ViewRooms:
		m.readings.Start(m.selectedSensorIDs(), m.query)
	case ViewAlerts:
		m.alerts.Start(m.snapshot.RoomIDs(), m.query)
	case ViewRules:
		return m.loadRules()
	case ViewLogs:
		return m.loadLogs()
	}
	return nil
}

// applyChange pulls fresh data from the container that signalled.
func (m *Model) applyChange(src changeSource) {
	switch src {
	case sourceStore:
		m.snapshot = m.store.Snapshot()
		m.clampRooms()
		m.syncLoopIDs()
	case sourceReadings:
		m.readingsSnap = m.readings.Snapshot()
	case sourceAlerts:
		m.alertsSnap = m.alerts.Snapshot()
		m.clampAlerts()
		m.updateDetailViewport()
	}
}

// syncLoopIDs follows room list changes without restarting the loop.
func (m *Model) syncLoopIDs() {
	switch m.view {
	case ViewRooms:
		if ids := m.selectedSensorIDs(); !equalIDs(ids, m.readings.IDs()) {
			m.readings.SetIDs(ids)
			m.readings.Refresh()
		}
	case ViewAlerts:
		if ids := m.snapshot.RoomIDs(); !equalIDs(ids, m.alerts.IDs()) {
			m.alerts.SetIDs(ids)
			m.alerts.Refresh()
		}
	}
}

// shiftDay moves the selected day by delta, never past today.
func (m *Model) shiftDay(delta int) {
	now := m.now()
	day := m.query.Day(now).AddDate(0, 0, delta)
	switch {
	case sameDate(day, now):
		m.setQuery(refresh.Today())
	case day.After(now):
		return
	default:
		m.setQuery(refresh.On(day))
	}
}

func (m *Model) setQuery(q refresh.Query) {
	if q.Follows() == m.query.Follows() && q.Date.Equal(m.query.Date) {
		return
	}
	m.query = q
	m.readings.SetQuery(q)
	m.alerts.SetQuery(q)
}

func (m *Model) manualRefresh() tea.Cmd {
	m.refreshRooms()
	switch m.view {
	case ViewRooms:
		m.readings.Refresh()
	case ViewAlerts:
		m.alerts.Refresh()
	case ViewRules:
		m.setNotice("Reloading rules…", false)
		return m.loadRules()
	case ViewLogs:
		return m.loadLogs()
	}
	m.setNotice("Refreshing…", false)
	return nil
}

func (m *Model) savePrefs() {
	if err := prefs.Save(m.prefsPath, m.prefs); err != nil {
		m.log.Warn("save prefs", "err", err)
	}
}

func (m Model) logout() (tea.Model, tea.Cmd) {
	m.stopLoops()
	m.readings.Reset()
	m.alerts.Reset()
	if m.api != nil {
		m.api.SetToken("")
	}
	if err := session.Clear(m.sessionPath); err != nil {
		m.log.Warn("clear session", "err", err)
	}
	m.store.Clear()
	m.session = session.Session{}
	m.rules = ruleState{filter: -1}
	m.phone = nil
	m.confirmLeave = false
	m.lastReadings = make(map[string]backend.Details)
	m.lastAsked = make(map[string]bool)
	m.view = ViewLogin
	m.login = newLoginForm(m.login.email())
	m.setNotice("Signed out", false)
	return m, m.login.focusCmd()
}

// Close releases subscriptions and stops every loop.
func (m Model) Close() {
	m.stopLoops()
	m.subs.close()
	if m.session.Valid() {
		m.savePrefs()
	}
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Messages

type tickMsg time.Time

type changeMsg struct{ source changeSource }

// startViewMsg starts the loops of a view once the program is running.
type startViewMsg View

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func startViewCmd(v View) tea.Cmd {
	return func() tea.Msg { return startViewMsg(v) }
}

// listen waits for the next change signal from src.
func (m Model) listen(src changeSource) tea.Cmd {
	sub, ok := m.subs.bySource[src]
	if !ok {
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		select {
		case <-sub.ch:
			return changeMsg{source: src}
		case <-ctx.Done():
			return nil
		}
	}
}

// Run starts the Bubble Tea program and blocks until the user quits or the
// context is cancelled.
func Run(opts Options) error {
	m := New(opts)

	programOpts := []tea.ProgramOption{tea.WithAltScreen()}
	if opts.Context != nil {
		programOpts = append(programOpts, tea.WithContext(opts.Context))
	}
	final, err := tea.NewProgram(m, programOpts...).Run()
	if fm, ok := final.(Model); ok {
		fm.Close()
	} else {
		m.Close()
	}
	if errors.Is(err, tea.ErrProgramKilled) && opts.Context != nil && opts.Context.Err() != nil {
		return nil
	}
	return err
}
