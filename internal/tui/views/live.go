package views

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/flatscout/flatscout/internal/engine/search"
	"github.com/flatscout/flatscout/internal/engine/storage"
	"github.com/flatscout/flatscout/internal/model"
	"github.com/flatscout/flatscout/internal/tui/styles"
)

// LiveDeps is what the live view needs to run and curate a search.
type LiveDeps struct {
	Engine     *search.Engine
	Exclusions *storage.ExclusionStore
	Options    func() (search.Options, error)
	// Prepare lets the host adjust criteria before a run, e.g. strip
	// transit when its lookups are disabled in config.
	Prepare func(*model.SearchCriteria)
}

// LiveModel shows one search as it happens: status line, metadata
// panel and a rolling result table the user can prune.
type LiveModel struct {
	deps     LiveDeps
	criteria *model.SearchCriteria

	ctx    context.Context
	cancel context.CancelFunc
	events chan tea.Msg

	progress  progress.Model
	table     table.Model
	startTime time.Time

	status      string
	destination string
	modes       []string
	places      []string
	pct         float64

	results []model.Listing
	byID    map[string]int
	byPart  map[string]string

	done        bool
	confirmQuit bool
	err         error
	flash       string
	width       int
	height      int
}

type searchEventMsg struct{ event model.Event }
type searchDoneMsg struct{}
type searchFailedMsg struct{ err error }
type liveTickMsg time.Time

func liveTick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return liveTickMsg(t)
	})
}

func NewLiveModel(deps LiveDeps, criteria *model.SearchCriteria) LiveModel {
	ctx, cancel := context.WithCancel(context.Background())
	return LiveModel{
		deps:      deps,
		criteria:  criteria,
		ctx:       ctx,
		cancel:    cancel,
		events:    make(chan tea.Msg),
		progress:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(50)),
		table:     newResultTable(),
		startTime: time.Now(),
		status:    "starting...",
		byID:      make(map[string]int),
		byPart:    make(map[string]string),
	}
}

func newResultTable() table.Model {
	columns := []table.Column{
		{Title: "ID", Width: 20},
		{Title: "Price", Width: 7},
		{Title: "Rooms", Width: 5},
		{Title: "Commute", Width: 18},
		{Title: "Address", Width: 38},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.Foreground(styles.Primary).Bold(true)
	s.Selected = s.Selected.Foreground(styles.Text).Background(styles.Primary)
	t.SetStyles(s)
	return t
}

func (m LiveModel) Init() tea.Cmd {
	return tea.Batch(m.start(), m.listen(), liveTick())
}

// start pumps engine events into the model's channel. It runs in a
// bubbletea command goroutine, so the model itself stays single-owner.
func (m LiveModel) start() tea.Cmd {
	deps := m.deps
	criteria := m.criteria
	ctx := m.ctx
	events := m.events

	return func() tea.Msg {
		defer close(events)
		opts, err := deps.Options()
		if err != nil {
			events <- searchFailedMsg{err: err}
			return nil
		}
		for ev := range deps.Engine.Search(ctx, criteria, opts) {
			events <- searchEventMsg{event: ev}
		}
		return nil
	}
}

func (m LiveModel) listen() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return searchDoneMsg{}
		}
		return msg
	}
}

func (m LiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		return m.handleKey(msg)
	case searchEventMsg:
		m.applyEvent(msg.event)
		return m, m.listen()
	case searchFailedMsg:
		m.err = msg.err
		return m, m.listen()
	case liveTickMsg:
		if m.done {
			return m, nil
		}
		return m, liveTick()
	case searchDoneMsg:
		m.done = true
		m.pct = 1
		if m.err == nil {
			m.status = fmt.Sprintf("done, %d result(s) in %s",
				len(m.results), time.Since(m.startTime).Truncate(time.Second))
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m LiveModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.cancel()
		return m, tea.Quit
	case "esc":
		if m.done {
			return m, func() tea.Msg { return NavigateToForm{} }
		}
		if m.confirmQuit {
			m.cancel()
			return m, func() tea.Msg { return NavigateToForm{} }
		}
		m.confirmQuit = true
		return m, nil
	case "enter":
		if m.done {
			return m, func() tea.Msg { return NavigateToForm{} }
		}
	case "x":
		m.excludeSelected()
		return m, nil
	}
	if m.confirmQuit {
		m.confirmQuit = false
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *LiveModel) applyEvent(ev model.Event) {
	switch e := ev.(type) {
	case model.ProgressEvent:
		m.status = e.Message
	case model.MetadataEvent:
		if e.Destination != nil {
			m.destination = fmt.Sprintf("%.4f, %.4f", e.Destination.Lat(), e.Destination.Lon())
			m.bump(0.15)
		}
		if len(e.Polygons) > 0 {
			m.modes = m.modes[:0]
			for mode := range e.Polygons {
				m.modes = append(m.modes, string(mode))
			}
			m.bump(0.3)
		}
		if len(e.Places) > 0 {
			m.places = e.Places
			m.bump(0.45)
		}
	case model.PropertiesEvent:
		for _, l := range e.Listings {
			m.upsert(l)
		}
		m.bump(m.pct + 0.02)
		m.refreshRows()
	}
}

// bump ratchets the progress estimate; it never goes backwards and
// saturates below done.
func (m *LiveModel) bump(pct float64) {
	if pct > 0.95 {
		pct = 0.95
	}
	if pct > m.pct {
		m.pct = pct
	}
}

// upsert merges one emitted listing into the table: a composite id
// retires the rows it supersedes, smaller composites included.
func (m *LiveModel) upsert(l model.Listing) {
	for _, prev := range model.SupersededIDs(m.byPart, l.ID) {
		if idx, ok := m.byID[prev]; ok {
			m.removeAt(idx)
		}
	}
	if idx, ok := m.byID[l.ID]; ok {
		m.results[idx] = l
		return
	}
	m.byID[l.ID] = len(m.results)
	m.results = append(m.results, l)
}

func (m *LiveModel) removeAt(idx int) {
	delete(m.byID, m.results[idx].ID)
	m.results = append(m.results[:idx], m.results[idx+1:]...)
	for i := idx; i < len(m.results); i++ {
		m.byID[m.results[i].ID] = i
	}
}

func (m *LiveModel) excludeSelected() {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.results) {
		return
	}
	l := m.results[idx]
	if m.deps.Exclusions != nil {
		if err := m.deps.Exclusions.Add(l); err != nil {
			m.flash = fmt.Sprintf("could not exclude %s: %v", l.ID, err)
			return
		}
	}
	m.removeAt(idx)
	m.refreshRows()
	m.flash = fmt.Sprintf("excluded %s", l.ID)
}

func (m *LiveModel) refreshRows() {
	rows := make([]table.Row, len(m.results))
	for i, l := range m.results {
		rows[i] = table.Row{
			l.ID,
			fmt.Sprintf("%d", l.Price),
			fmt.Sprintf("%.1f", l.Rooms),
			commuteCell(l.Commute),
			l.Address,
		}
	}
	m.table.SetRows(rows)
}

func commuteCell(commute map[model.TravelMode]*float64) string {
	if len(commute) == 0 {
		return "-"
	}
	var parts []string
	for mode, minutes := range commute {
		if minutes == nil {
			parts = append(parts, string(mode)[:1]+": n/a")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %.0fm", string(mode)[:1], *minutes))
	}
	return strings.Join(parts, " ")
}

func (m LiveModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("Searching near " + m.criteria.Destination))
	b.WriteString("\n\n")

	b.WriteString(styles.Panel.Render(m.renderMetadata()))
	b.WriteString("\n\n")

	b.WriteString(m.progress.ViewAs(m.pct))
	b.WriteString("\n\n")

	if len(m.results) > 0 {
		b.WriteString(m.table.View())
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}
	if m.flash != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Warning).Render(m.flash))
		b.WriteString("\n")
	}

	switch {
	case m.done:
		b.WriteString(styles.StatusBar.Render("enter new search • x exclude • ctrl+c quit"))
	case m.confirmQuit:
		b.WriteString(styles.ErrorText.Render("Press ESC again to stop this search"))
		b.WriteString("\n")
		b.WriteString(styles.StatusBar.Render("esc confirm stop • any key continue"))
	default:
		b.WriteString(styles.StatusBar.Render("x exclude • esc stop • ctrl+c quit"))
	}
	return b.String()
}

func (m LiveModel) renderMetadata() string {
	var sb strings.Builder
	row := func(label, value string) {
		if value == "" {
			return
		}
		sb.WriteString(styles.Label.Render(label))
		sb.WriteString(styles.Value.Render(value))
		sb.WriteString("\n")
	}
	row("Status:", m.status)
	row("Destination:", m.destination)
	row("Reachable by:", strings.Join(m.modes, ", "))
	row("Places:", strings.Join(m.places, ", "))
	row("Results:", fmt.Sprintf("%d", len(m.results)))
	row("Elapsed:", time.Since(m.startTime).Truncate(time.Second).String())
	return strings.TrimRight(sb.String(), "\n")
}
