package render

import (
	"context"
	"fmt"
	"image/color"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/stat"

	"github.com/roman-kulish/fsm-monitor/internal/fsm"
	"github.com/roman-kulish/fsm-monitor/internal/session"
)

const (
	// DefaultWindow is the number of recent samples shown by the dashboard.
	DefaultWindow = 300

	minSparklineWidth     = 10
	defaultSparklineWidth = 60
	statsColumnsWidth     = 56
)

var sparkTicks = []rune("▁▂▃▄▅▆▇█")

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))

	helpStyle = lipgloss.NewStyle().Faint(true)
)

type refreshMsg struct {
	total int
	stats session.Stats
	final bool
}

// DashboardOption configures a Dashboard.
type DashboardOption func(d *Dashboard)

// WithWindow sets the number of recent samples plotted.
func WithWindow(n int) DashboardOption {
	return func(d *Dashboard) {
		if n > 0 {
			d.window = n
		}
	}
}

// WithColorTheme sets the colors of the photodiode series.
func WithColorTheme(theme ColorTheme) DashboardOption {
	return func(d *Dashboard) {
		d.theme = theme
	}
}

// WithSelection sets the initially selected LED groups.
func WithSelection(selection Selection) DashboardOption {
	return func(d *Dashboard) {
		d.selection = selection
	}
}

// WithSelectionHandler registers a callback invoked whenever the user selects
// another LED group, e.g. to keep chart snapshots in sync.
func WithSelectionHandler(fn func(Selection)) DashboardOption {
	return func(d *Dashboard) {
		d.onSelect = fn
	}
}

// WithProgramOptions passes options to the bubbletea program, e.g. to replace
// the terminal input and output.
func WithProgramOptions(options ...tea.ProgramOption) DashboardOption {
	return func(d *Dashboard) {
		d.programOptions = append(d.programOptions, options...)
	}
}

// Dashboard is the live terminal view of a session. It implements
// session.Renderer, the LED group of each array is selected with the keyboard.
type Dashboard struct {
	title   string
	layout  *fsm.Layout
	history *History
	window  int
	theme   ColorTheme

	selection Selection
	onSelect  func(Selection)

	mu      sync.Mutex
	latest  refreshMsg
	running bool
	notify  chan struct{}

	programOptions []tea.ProgramOption
	quitChan       chan struct{} // Signal to stop the session
}

// NewDashboard creates a dashboard for a session layout.
func NewDashboard(title string, layout *fsm.Layout, options ...DashboardOption) *Dashboard {
	d := Dashboard{
		title:    title,
		layout:   layout,
		window:   DefaultWindow,
		theme:    ClassicTheme,
		notify:   make(chan struct{}, 1),
		quitChan: make(chan struct{}, 1),
	}

	for _, option := range options {
		option(&d)
	}

	d.history = NewHistory(layout.Channels(), d.window)

	return &d
}

// History returns the recent samples the dashboard draws from.
func (d *Dashboard) History() *History {
	return d.history
}

// Render records the appended samples and schedules a refresh of the view.
// It never blocks the consumer, refreshes are coalesced.
func (d *Dashboard) Render(update session.Update) {
	d.history.Append(update.Appended)

	d.mu.Lock()
	d.latest = refreshMsg{total: update.Total, stats: update.Stats, final: update.Final}
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Run shows the dashboard until ctx is cancelled or the user quits, see Done.
func (d *Dashboard) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("dashboard is already running")
	}
	d.running = true
	d.mu.Unlock()

	options := append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, d.programOptions...)
	program := tea.NewProgram(d.model(), options...)

	done := make(chan struct{})
	defer close(done)

	go d.forward(program, done)

	_, err := program.Run()
	if ctx.Err() != nil {
		return nil // stopped by the session
	}
	return err
}

// forward sends the latest refresh to the program until done is closed.
func (d *Dashboard) forward(program *tea.Program, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-d.notify:
			d.mu.Lock()
			msg := d.latest
			d.mu.Unlock()

			program.Send(msg) // no-op once the program has exited
		}
	}
}

// Done returns the channel that signals when user wants to quit
func (d *Dashboard) Done() <-chan struct{} {
	return d.quitChan
}

func (d *Dashboard) model() dashboardModel {
	return dashboardModel{
		title:     d.title,
		layout:    d.layout,
		history:   d.history,
		colors:    Palette(d.theme, fsm.PhotodiodesPerGroup),
		selection: d.selection,
		onSelect:  d.onSelect,
		quitChan:  d.quitChan,
	}
}

// dashboardModel is the bubbletea model of the dashboard
type dashboardModel struct {
	title     string
	layout    *fsm.Layout
	history   *History
	colors    []color.RGBA
	selection Selection
	onSelect  func(Selection)

	total    int
	stats    session.Stats
	final    bool
	quitting bool

	width    int
	height   int
	quitChan chan struct{} // Channel to signal session stop
}

func (m dashboardModel) Init() tea.Cmd {
	return nil
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case refreshMsg:
		m.total = msg.total
		m.stats = msg.stats
		m.final = msg.final
	}

	return m, nil
}

func (m dashboardModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	groups := m.layout.NumGroups()

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		// Signal the session to stop
		select {
		case m.quitChan <- struct{}{}:
		default:
		}
		return m, tea.Quit

	case "a":
		m.selection.A = cycle(m.selection.A, 1, groups)
	case "A":
		m.selection.A = cycle(m.selection.A, -1, groups)
	case "b":
		m.selection.B = cycle(m.selection.B, 1, groups)
	case "B":
		m.selection.B = cycle(m.selection.B, -1, groups)
	default:
		return m, nil
	}

	if m.onSelect != nil {
		m.onSelect(m.selection)
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.quitting {
		return "Stopping session...\n"
	}

	var b strings.Builder

	// Title
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Samples: "))
	b.WriteString(valueStyle.Render(humanize.Comma(int64(m.total))))
	b.WriteString(headerStyle.Render("  Frames: "))
	b.WriteString(valueStyle.Render(humanize.Comma(int64(m.stats.Frames))))
	if m.stats.DecodeErrors > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf("  Decode errors: %d", m.stats.DecodeErrors)))
	}
	if m.final {
		b.WriteString(warnStyle.Render("  (stopped)"))
	}
	b.WriteString("\n\n")

	groups := m.layout.Groups()
	for _, array := range []fsm.Array{fsm.ArrayA, fsm.ArrayB} {
		group := m.selection.Group(array)

		b.WriteString(headerStyle.Render(fmt.Sprintf("Array %s  LED %s: %s", array, array, groups[group])))
		b.WriteString("\n")

		for pd := 0; pd < fsm.PhotodiodesPerGroup; pd++ {
			values := m.history.Series(array, m.layout.Index(group, pd))
			b.WriteString(m.renderSeries(pd, values))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("a/A: LED A group  b/B: LED B group  q: stop and export"))

	return b.String()
}

func (m dashboardModel) renderSeries(pd int, values []float64) string {
	width := defaultSparklineWidth
	if m.width > 0 {
		width = max(minSparklineWidth, m.width-statsColumnsWidth)
	}

	style := lipgloss.NewStyle().Foreground(terminalColor(m.colors[pd]))
	label := fmt.Sprintf("  PD%d ", pd+1)

	if len(values) == 0 {
		return label + valueStyle.Render("no data")
	}

	mean, std := stat.MeanStdDev(values, nil)
	if len(values) < 2 {
		std = 0
	}

	return label + style.Render(sparkline(values, width)) + valueStyle.Render(fmt.Sprintf(" %s  mean %s  σ %s",
		formatVolts(values[len(values)-1]), formatVolts(mean), formatVolts(std)))
}

// sparkline renders the last width values as block characters scaled to
// their own range.
func sparkline(values []float64, width int) string {
	if len(values) > width {
		values = values[len(values)-width:]
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	var b strings.Builder
	for _, v := range values {
		i := 0
		if hi > lo {
			i = int((v - lo) / (hi - lo) * float64(len(sparkTicks)-1))
		}
		b.WriteRune(sparkTicks[i])
	}
	return b.String()
}
