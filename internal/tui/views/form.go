package views

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/flatscout/flatscout/internal/model"
	"github.com/flatscout/flatscout/internal/tui/styles"
)

// Field indices
const (
	fieldDest = iota
	fieldModes
	fieldMaxMinutes
	fieldCategory
	fieldPriceMax
	fieldRoomsMin
	fieldKeywords
	fieldSince
	fieldCount
)

// StartSearchMsg moves the app to the live view with ready criteria.
type StartSearchMsg struct {
	Criteria *model.SearchCriteria
}

// NavigateToForm returns to the criteria form.
type NavigateToForm struct{}

type FormModel struct {
	inputs  []textinput.Model
	focused int
	err     string
	recent  []string
}

func NewFormModel(recent []string) FormModel {
	inputs := make([]textinput.Model, fieldCount)
	inputs[fieldDest] = newInput("ETH Zurich, Raemistrasse 101", 50)
	inputs[fieldModes] = newInput("bike,transit", 30)
	inputs[fieldMaxMinutes] = newInput("bike=20,transit=35", 30)
	inputs[fieldCategory] = newInput("unit or shared-room (optional)", 30)
	inputs[fieldPriceMax] = newInput("2200", 10)
	inputs[fieldRoomsMin] = newInput("2.5", 10)
	inputs[fieldKeywords] = newInput("exclude: basement, temporary...", 40)
	inputs[fieldSince] = newInput("24h (optional, only new listings)", 30)

	if len(recent) > 0 {
		inputs[fieldDest].Placeholder = recent[0]
	}
	inputs[fieldDest].Focus()

	return FormModel{inputs: inputs, recent: recent}
}

func newInput(placeholder string, width int) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 100
	ti.Width = width
	return ti
}

func (m FormModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m FormModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "up", "shift+tab":
			m.err = ""
			m.focusPrev()
			return m, nil
		case "down", "tab":
			m.err = ""
			m.focusNext()
			return m, nil
		case "enter":
			if cmd := m.submit(); cmd != nil {
				return m, cmd
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focused], cmd = m.inputs[m.focused].Update(msg)
	return m, cmd
}

func (m *FormModel) focusNext() {
	m.inputs[m.focused].Blur()
	m.focused = (m.focused + 1) % fieldCount
	m.inputs[m.focused].Focus()
}

func (m *FormModel) focusPrev() {
	m.inputs[m.focused].Blur()
	m.focused = (m.focused + fieldCount - 1) % fieldCount
	m.inputs[m.focused].Focus()
}

func (m *FormModel) submit() tea.Cmd {
	dest := strings.TrimSpace(m.inputs[fieldDest].Value())
	if dest == "" && len(m.recent) > 0 {
		dest = m.recent[0]
	}
	if dest == "" {
		m.err = "destination is required"
		return nil
	}

	criteria := &model.SearchCriteria{
		Destination: dest,
		MaxMinutes:  make(map[model.TravelMode]float64),
	}

	for _, raw := range splitList(m.inputs[fieldModes].Value()) {
		mode := model.TravelMode(raw)
		switch mode {
		case model.ModeWalk, model.ModeBike, model.ModeCar, model.ModeTransit:
			criteria.Modes = append(criteria.Modes, mode)
		default:
			m.err = fmt.Sprintf("unknown travel mode %q", raw)
			return nil
		}
	}

	for _, pair := range splitList(m.inputs[fieldMaxMinutes].Value()) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			m.err = fmt.Sprintf("bad commute limit %q, want mode=minutes", pair)
			return nil
		}
		minutes, err := strconv.ParseFloat(v, 64)
		if err != nil || minutes <= 0 {
			m.err = fmt.Sprintf("bad minutes in %q", pair)
			return nil
		}
		criteria.MaxMinutes[model.TravelMode(k)] = minutes
	}

	criteria.ExcludeKeywords = splitList(m.inputs[fieldKeywords].Value())

	if raw := strings.TrimSpace(m.inputs[fieldSince].Value()); raw != "" {
		window, err := time.ParseDuration(raw)
		if err != nil || window <= 0 {
			m.err = fmt.Sprintf("bad time window %q", raw)
			return nil
		}
		cutoff := time.Now().Add(-window)
		criteria.CreatedAfter = &cutoff
	}

	bucket, hasBucket, err := m.parseBucket()
	if err != "" {
		m.err = err
		return nil
	}
	if hasBucket {
		criteria.Buckets = []model.FilterBucket{bucket}
	}

	return func() tea.Msg {
		return StartSearchMsg{Criteria: criteria}
	}
}

func (m *FormModel) parseBucket() (model.FilterBucket, bool, string) {
	bucket := model.FilterBucket{Name: "form", Category: model.CategoryUnit}
	has := false

	if raw := strings.TrimSpace(m.inputs[fieldCategory].Value()); raw != "" {
		switch model.Category(raw) {
		case model.CategoryUnit, model.CategorySharedRoom:
			bucket.Category = model.Category(raw)
			has = true
		default:
			return bucket, false, fmt.Sprintf("unknown category %q", raw)
		}
	}
	if raw := strings.TrimSpace(m.inputs[fieldPriceMax].Value()); raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil || price <= 0 {
			return bucket, false, fmt.Sprintf("bad price %q", raw)
		}
		bucket.Price.Max = &price
		has = true
	}
	if raw := strings.TrimSpace(m.inputs[fieldRoomsMin].Value()); raw != "" {
		rooms, err := strconv.ParseFloat(raw, 64)
		if err != nil || rooms <= 0 {
			return bucket, false, fmt.Sprintf("bad room count %q", raw)
		}
		bucket.Rooms.Min = &rooms
		has = true
	}
	return bucket, has, ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var formLabels = [fieldCount]string{
	"Destination:",
	"Modes:",
	"Max commute:",
	"Category:",
	"Max price:",
	"Min rooms:",
	"Keywords:",
	"Newer than:",
}

func (m FormModel) View() string {
	var b strings.Builder
	b.WriteString(styles.Title.Render("New search"))
	b.WriteString("\n\n")

	for i := 0; i < fieldCount; i++ {
		label := styles.Label.Render(formLabels[i])
		if i == m.focused {
			label = styles.Label.Foreground(styles.Primary).Render(formLabels[i])
		}
		b.WriteString(label)
		b.WriteString(m.inputs[i].View())
		b.WriteString("\n")
	}

	if len(m.recent) > 0 {
		b.WriteString("\n")
		b.WriteString(styles.StatusBar.Render("recent: " + strings.Join(m.recent, " | ")))
	}

	if m.err != "" {
		b.WriteString("\n")
		b.WriteString(styles.ErrorText.Render(m.err))
	}

	b.WriteString("\n")
	b.WriteString(styles.StatusBar.Render("tab/↑↓ move • enter search • ctrl+c quit"))
	return b.String()
}
