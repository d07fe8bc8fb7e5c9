package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"radio-tui/host"
	"radio-tui/model"
	"radio-tui/session"
)

const volumeStep = 0.05

// Controller is the playback surface the UI drives
type Controller interface {
	Play(station model.Station) error
	Pause()
	Resume() error
	Stop()

	Attach(observer host.Observer) session.Snapshot
	Detach()
}

// Mixer controls output volume
type Mixer interface {
	SetVolume(volume float64)
	Volume() float64
	IncreaseVolume(delta float64)
	DecreaseVolume(delta float64)
	ToggleMute()
	IsMuted() bool
}

// Saver persists the last played station and volume
type Saver interface {
	SaveLastStation(stationID string, volume float64) error
}

// Exit tells the caller how the UI was left
type Exit int

const (
	// ExitQuit means playback was stopped and the program should end
	ExitQuit Exit = iota
	// ExitBackground means playback keeps running without the UI
	ExitBackground
)

// KeyMap defines the key bindings
type KeyMap struct {
	Up         key.Binding
	Down       key.Binding
	Select     key.Binding
	Toggle     key.Binding
	Stop       key.Binding
	VolUp      key.Binding
	VolDown    key.Binding
	Mute       key.Binding
	Search     key.Binding
	Background key.Binding
	Quit       key.Binding
}

// ShortHelp returns the bindings shown in the help line
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Toggle, k.Stop, k.Search, k.Background, k.Quit}
}

// FullHelp returns every binding, grouped
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select, k.Toggle, k.Stop},
		{k.VolUp, k.VolDown, k.Mute, k.Search, k.Background, k.Quit},
	}
}

// DefaultKeyMap is the default set of bindings
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓", "down"),
	),
	Select: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("Enter", "play"),
	),
	Toggle: key.NewBinding(
		key.WithKeys(" "),
		key.WithHelp("Space", "pause/resume"),
	),
	Stop: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "stop"),
	),
	VolUp: key.NewBinding(
		key.WithKeys("+", "="),
		key.WithHelp("+", "vol+"),
	),
	VolDown: key.NewBinding(
		key.WithKeys("-", "_"),
		key.WithHelp("-", "vol-"),
	),
	Mute: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "mute"),
	),
	Search: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "search"),
	),
	Background: key.NewBinding(
		key.WithKeys("b"),
		key.WithHelp("b", "background"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "esc"),
		key.WithHelp("Esc", "quit"),
	),
}

var (
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#10B981")
	accentColor    = lipgloss.Color("#F59E0B")
	textColor      = lipgloss.Color("#CDD6F4")
	dimTextColor   = lipgloss.Color("#6C7086")
	playingColor   = lipgloss.Color("#A6E3A1")
	pausedColor    = lipgloss.Color("#89B4FA")

	titleStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	stationItemStyle = lipgloss.NewStyle().
				Foreground(textColor)

	stationSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#1E1E2E")).
				Background(primaryColor).
				Bold(true).
				Padding(0, 1)

	stationPlayingStyle = lipgloss.NewStyle().
				Foreground(playingColor).
				Bold(true)

	stationSelectedPlayingStyle = lipgloss.NewStyle().
					Foreground(lipgloss.Color("#1E1E2E")).
					Background(secondaryColor).
					Bold(true).
					Padding(0, 1)

	pausedStyle = lipgloss.NewStyle().
			Foreground(pausedColor)

	statusStyle = lipgloss.NewStyle().
			Foreground(dimTextColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F38BA8"))

	volumeStyle = lipgloss.NewStyle().
			Foreground(accentColor)
)

// Options configures a UI run
type Options struct {
	Stations      []model.Station
	LastStationID string
	// AutoPlay starts the last station when nothing is playing yet
	AutoPlay bool
}

// Model is the bubbletea model
type Model struct {
	logger  *zap.SugaredLogger
	control Controller
	mixer   Mixer
	saver   Saver
	events  <-chan tea.Msg

	catalog  *model.Catalog
	filtered []model.Station
	query    string
	cursor   int
	width    int
	height   int
	keys     KeyMap

	state   session.State
	station *model.Station

	errorMessage string
	autoPlayIdx  int
	searching    bool
	search       textinput.Model
	spinner      spinner.Model
	exit         Exit
}

// Messages
type stateChangedMsg struct {
	state   session.State
	station *model.Station
}
type streamErrorMsg struct {
	message string
}
type playResultMsg struct {
	station model.Station
	err     error
}
type resumeResultMsg struct {
	err error
}
type autoPlayMsg struct{}

// NewModel builds the model from the attach snapshot so the first frame
// already shows the current playback state
func NewModel(logger *zap.SugaredLogger, control Controller, mixer Mixer, saver Saver, events <-chan tea.Msg, snap session.Snapshot, opts Options) Model {
	search := textinput.New()
	search.Placeholder = "name, tag or country"
	search.Prompt = "/ "
	search.CharLimit = 64

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = volumeStyle

	m := Model{
		logger:      logger,
		control:     control,
		mixer:       mixer,
		saver:       saver,
		events:      events,
		catalog:     model.NewCatalog(opts.Stations),
		keys:        DefaultKeyMap,
		state:       snap.State,
		station:     snap.Station,
		autoPlayIdx: -1,
		search:      search,
		spinner:     spin,
	}

	m.filtered = m.catalog.All()

	// start on the station that is playing, otherwise on the last one
	focusID := opts.LastStationID
	if snap.Station != nil {
		focusID = snap.Station.ID
	}
	if idx := indexOf(m.filtered, focusID); idx >= 0 {
		m.cursor = idx
		if opts.AutoPlay && snap.State.Phase == session.PhaseIdle && snap.Station == nil {
			m.autoPlayIdx = idx
		}
	}

	return m
}

func indexOf(stations []model.Station, id string) int {
	if id == "" {
		return -1
	}
	for i, s := range stations {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Exit reports how the UI ended
func (m Model) Exit() Exit {
	return m.exit
}

func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		return <-events
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForEvent(m.events), m.spinner.Tick}
	if m.autoPlayIdx >= 0 {
		cmds = append(cmds, func() tea.Msg { return autoPlayMsg{} })
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case stateChangedMsg:
		m.state = msg.state
		m.station = msg.station
		if msg.state.Phase != session.PhaseError {
			m.errorMessage = ""
		}
		return m, waitForEvent(m.events)

	case streamErrorMsg:
		m.errorMessage = msg.message
		return m, waitForEvent(m.events)

	case playResultMsg:
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
			return m, nil
		}
		m.saveConfig(msg.station.ID)
		return m, nil

	case resumeResultMsg:
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
		}
		return m, nil

	case autoPlayMsg:
		if m.autoPlayIdx >= 0 && m.autoPlayIdx < len(m.filtered) {
			m.cursor = m.autoPlayIdx
			m.autoPlayIdx = -1
			return m, m.playStation()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.searching {
			return m.handleSearchKeys(msg)
		}
		return m.handleStationKeys(msg)
	}

	return m, nil
}

func (m Model) handleStationKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.filtered)-1 {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Select):
		if len(m.filtered) == 0 {
			return m, nil
		}
		m.errorMessage = ""
		return m, m.playStation()

	case key.Matches(msg, m.keys.Toggle):
		switch m.state.Phase {
		case session.PhasePlaying, session.PhaseLoading:
			m.control.Pause()
			return m, nil
		case session.PhasePaused:
			control := m.control
			return m, func() tea.Msg {
				return resumeResultMsg{err: control.Resume()}
			}
		case session.PhaseError:
			// retry the failed station
			if m.station != nil {
				return m, m.play(*m.station)
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Stop):
		m.control.Stop()
		return m, nil

	case key.Matches(msg, m.keys.VolUp):
		m.mixer.IncreaseVolume(volumeStep)
		m.saveConfig("")
		return m, nil

	case key.Matches(msg, m.keys.VolDown):
		m.mixer.DecreaseVolume(volumeStep)
		m.saveConfig("")
		return m, nil

	case key.Matches(msg, m.keys.Mute):
		m.mixer.ToggleMute()
		return m, nil

	case key.Matches(msg, m.keys.Search):
		m.searching = true
		m.search.SetValue(m.query)
		return m, m.search.Focus()

	case key.Matches(msg, m.keys.Background):
		m.exit = ExitBackground
		return m, tea.Quit

	case key.Matches(msg, m.keys.Quit):
		if m.query != "" {
			m.applyFilter("")
			return m, nil
		}
		m.exit = ExitQuit
		return m, tea.Quit

	case len(msg.String()) == 1 && msg.String() >= "0" && msg.String() <= "9":
		m.mixer.SetVolume(float64(msg.String()[0]-'0') / 10.0)
		m.saveConfig("")
		return m, nil
	}

	return m, nil
}

func (m Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.searching = false
		m.search.Blur()
		m.applyFilter(m.search.Value())
		return m, nil

	case tea.KeyEsc:
		m.searching = false
		m.search.Blur()
		m.applyFilter("")
		return m, nil
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.applyFilter(m.search.Value())
	return m, cmd
}

func (m *Model) applyFilter(query string) {
	m.query = strings.TrimSpace(query)
	m.filtered = m.catalog.Search(m.query)
	if m.cursor >= len(m.filtered) {
		m.cursor = len(m.filtered) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) playStation() tea.Cmd {
	if m.cursor < 0 || m.cursor >= len(m.filtered) {
		return nil
	}
	return m.play(m.filtered[m.cursor])
}

func (m *Model) play(station model.Station) tea.Cmd {
	control := m.control
	return func() tea.Msg {
		return playResultMsg{station: station, err: control.Play(station)}
	}
}

// saveConfig persists the volume together with stationID, or with the
// current station when stationID is empty. Nothing is saved when there is no
// station to remember.
func (m *Model) saveConfig(stationID string) {
	if stationID == "" && m.station != nil {
		stationID = m.station.ID
	}
	if stationID == "" || m.saver == nil {
		return
	}

	saver, logger, volume := m.saver, m.logger, m.mixer.Volume()
	go func() {
		if err := saver.SaveLastStation(stationID, volume); err != nil {
			logger.Warnw("Failed to save last station", "station", stationID, "error", err)
		}
	}()
}

// View renders the UI
func (m Model) View() string {
	var b strings.Builder

	title := titleStyle.Render("📻 Radio")
	b.WriteString(fmt.Sprintf("%s  %s\n", title, m.renderVolume()))

	if m.searching {
		b.WriteString(m.search.View() + "\n")
	} else if m.query != "" {
		b.WriteString(statusStyle.Render(fmt.Sprintf("filter: %s (%d)", m.query, len(m.filtered))) + "\n")
	}

	b.WriteString(strings.Repeat("─", 40) + "\n")

	if len(m.filtered) == 0 {
		b.WriteString(statusStyle.Render("  no stations") + "\n")
	} else {
		b.WriteString(m.renderStationList())
	}

	b.WriteString(m.renderStatus())

	if m.errorMessage != "" {
		b.WriteString(errorStyle.Render("✗ "+m.errorMessage) + "\n")
	}

	if m.searching {
		b.WriteString(statusStyle.Render("Enter apply  Esc clear"))
	} else {
		b.WriteString(statusStyle.Render("↑↓ select  Enter play  Space pause  s stop  +- volume  / search  b background  Esc quit"))
	}

	return b.String()
}

func (m Model) renderStatus() string {
	if m.station == nil {
		return ""
	}

	name := m.station.DisplayName()

	switch m.state.Phase {
	case session.PhaseLoading:
		return fmt.Sprintf("%s %s\n", m.spinner.View(), statusStyle.Render("Connecting to "+name))
	case session.PhasePlaying:
		return stationPlayingStyle.Render("▶ "+name) + "\n"
	case session.PhasePaused:
		return pausedStyle.Render("⏸ "+name) + "\n"
	case session.PhaseError:
		return statusStyle.Render("■ "+name+" (Space to retry)") + "\n"
	}
	return ""
}

func (m Model) renderVolume() string {
	vol := int(m.mixer.Volume()*100 + 0.5)

	if m.mixer.IsMuted() {
		return statusStyle.Render(fmt.Sprintf("🔇 %d%%", vol))
	}
	return volumeStyle.Render(fmt.Sprintf("🔊 %d%%", vol))
}

func (m Model) renderStationList() string {
	var lines []string

	maxVisible := 12
	if m.height > 0 {
		maxVisible = m.height - 8
		if maxVisible < 5 {
			maxVisible = 5
		}
	}
	if maxVisible > len(m.filtered) {
		maxVisible = len(m.filtered)
	}

	startIdx := 0
	if m.cursor >= maxVisible {
		startIdx = m.cursor - maxVisible + 1
	}
	endIdx := startIdx + maxVisible
	if endIdx > len(m.filtered) {
		endIdx = len(m.filtered)
		startIdx = endIdx - maxVisible
		if startIdx < 0 {
			startIdx = 0
		}
	}

	if startIdx > 0 {
		lines = append(lines, statusStyle.Render("  ↑ more"))
	}

	for i := startIdx; i < endIdx; i++ {
		station := m.filtered[i]
		isSelected := i == m.cursor
		isCurrent := m.station != nil && m.station.ID == station.ID && m.state.Phase.HasStream()

		prefix := "  "
		if isCurrent {
			prefix = "▶ "
		}

		text := prefix + station.DisplayName()

		var styled string
		switch {
		case isSelected && isCurrent:
			styled = stationSelectedPlayingStyle.Render(text)
		case isSelected:
			styled = stationSelectedStyle.Render(text)
		case isCurrent:
			styled = stationPlayingStyle.Render(text)
		default:
			styled = stationItemStyle.Render(text)
		}

		lines = append(lines, styled)
	}

	if endIdx < len(m.filtered) {
		lines = append(lines, statusStyle.Render("  ↓ more"))
	}

	return strings.Join(lines, "\n") + "\n"
}

// Run attaches to control, runs the UI until the user quits or backgrounds
// it or ctx is done, and detaches again. Quitting stops playback;
// backgrounding leaves it running.
func Run(ctx context.Context, logger *zap.SugaredLogger, control Controller, mixer Mixer, saver Saver, opts Options) (Exit, error) {
	logger = logger.Named("tui")

	bridge := newObserverBridge()
	snap := control.Attach(bridge.observer())
	defer func() {
		control.Detach()
		bridge.close()
	}()

	logger.Debugw("Attached to host", "state", snap.State)

	m := NewModel(logger, control, mixer, saver, bridge.events, snap, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	final, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		logger.Debug("UI closed by context")
		control.Stop()
		return ExitQuit, nil
	}
	if err != nil {
		return ExitQuit, fmt.Errorf("run tui: %w", err)
	}

	exit := ExitQuit
	if fm, ok := final.(Model); ok {
		exit = fm.Exit()
	}

	if exit == ExitQuit {
		control.Stop()
	}

	logger.Debugw("UI closed", "background", exit == ExitBackground)

	return exit, nil
}
