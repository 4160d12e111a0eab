// Package tui is the interactive front end: a criteria form feeding a
// live search view.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/flatscout/flatscout/internal/tui/views"
)

type viewID int

const (
	viewForm viewID = iota
	viewLive
)

// App is the root bubbletea model.
type App struct {
	currentView viewID
	width       int
	height      int
	deps        views.LiveDeps
	form        views.FormModel
	live        views.LiveModel
}

func NewApp(deps views.LiveDeps) App {
	return App{
		currentView: viewForm,
		deps:        deps,
		form:        views.NewFormModel(recentDestinations()),
	}
}

func recentDestinations() []string {
	var dests []string
	for _, e := range LoadRecent() {
		dests = append(dests, e.Destination)
	}
	return dests
}

func (a App) Init() tea.Cmd {
	return a.form.Init()
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
	case views.StartSearchMsg:
		SaveRecent(msg.Criteria.Destination)
		if a.deps.Prepare != nil {
			a.deps.Prepare(msg.Criteria)
		}
		a.currentView = viewLive
		a.live = views.NewLiveModel(a.deps, msg.Criteria)
		return a, tea.Batch(a.live.Init(), a.sizeCmd())
	case views.NavigateToForm:
		a.currentView = viewForm
		a.form = views.NewFormModel(recentDestinations())
		return a, a.form.Init()
	}

	var cmd tea.Cmd
	switch a.currentView {
	case viewForm:
		var m tea.Model
		m, cmd = a.form.Update(msg)
		a.form = m.(views.FormModel)
	case viewLive:
		var m tea.Model
		m, cmd = a.live.Update(msg)
		a.live = m.(views.LiveModel)
	}

	return a, cmd
}

func (a App) View() string {
	var content string
	switch a.currentView {
	case viewForm:
		content = a.form.View()
	case viewLive:
		content = a.live.View()
	}

	return lipgloss.Place(
		a.width, a.height,
		lipgloss.Center, lipgloss.Top,
		content,
	)
}

// sizeCmd sends a WindowSizeMsg so newly created views get the current terminal size.
func (a App) sizeCmd() tea.Cmd {
	w, h := a.width, a.height
	return func() tea.Msg {
		return tea.WindowSizeMsg{Width: w, Height: h}
	}
}

// Run starts the TUI.
func Run(deps views.LiveDeps) error {
	p := tea.NewProgram(NewApp(deps), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
