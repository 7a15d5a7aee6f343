// Package ui implements the interactive focus timer terminal UI.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
	"github.com/eliteGoblin/focusd/focustab/internal/usecase"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	clockStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F7DC6F")).
			Padding(1, 4).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#777777"))
	cursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
)

type tickMsg time.Time

// item is one row of the site list: a preset or a custom site.
type item struct {
	preset domain.PresetID
	custom domain.CustomSite
	label  string
}

func (i item) isCustom() bool { return i.preset == "" }

// Model is the bubbletea model hosting the live timer.
type Model struct {
	ctx      context.Context
	timer    *usecase.FocusTimer
	sites    *usecase.SiteManager
	activity *usecase.Activity

	items    []item
	selected domain.SiteSelection
	cursor   int
	adding   bool
	input    textinput.Model
	status   string
	width    int
}

// NewModel creates the UI model and reconstructs the timer from persisted state.
func NewModel(ctx context.Context, timer *usecase.FocusTimer, sites *usecase.SiteManager, activity *usecase.Activity) *Model {
	input := textinput.New()
	input.Placeholder = "example.com"
	input.CharLimit = 253
	input.Prompt = "add site › "

	m := &Model{
		ctx:      ctx,
		timer:    timer,
		sites:    sites,
		activity: activity,
		input:    input,
	}
	timer.ReconstructOnLoad(ctx)
	m.refresh()
	return m
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the one-second display refresh.
func (m *Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles key presses and ticks.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		if m.timer.Tick(m.ctx) {
			m.status = "Session complete. Blocking lifted."
		}
		return m, tickCmd()

	case tea.KeyMsg:
		if m.adding {
			return m.updateAdding(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m *Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit

	case " ":
		if m.timer.IsRunning() {
			m.report(m.timer.Pause(m.ctx), "Paused.")
		} else {
			m.report(m.timer.Start(m.ctx), "Focus session started.")
		}

	case "r":
		m.report(m.timer.Reset(m.ctx), "Timer reset.")

	case "j", "down":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}

	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}

	case "enter":
		if it, ok := m.current(); ok && !it.isCustom() {
			selected, err := m.sites.Toggle(m.ctx, it.preset)
			if selected {
				m.report(err, it.label+" will be blocked.")
			} else {
				m.report(err, it.label+" will not be blocked.")
			}
			m.refresh()
		}

	case "a":
		m.adding = true
		m.input.SetValue("")
		m.input.Focus()
		return m, textinput.Blink

	case "d":
		if it, ok := m.current(); ok && it.isCustom() {
			_, err := m.sites.RemoveCustom(m.ctx, it.custom.ID)
			m.report(err, "Removed "+it.custom.Domain+".")
			m.refresh()
		}
	}
	return m, nil
}

func (m *Model) updateAdding(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.adding = false
		m.input.Blur()
		return m, nil

	case "enter":
		m.adding = false
		m.input.Blur()
		site, added, err := m.sites.AddCustom(m.ctx, m.input.Value())
		switch {
		case err != nil:
			m.report(err, "")
		case added:
			m.status = "Added " + site.Domain + "."
		default:
			m.status = "Nothing added."
		}
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the timer and site list.
func (m *Model) View() string {
	var b strings.Builder
	view := m.timer.Snapshot()

	b.WriteString(titleStyle.Render("focustab"))
	b.WriteString("\n\n")
	b.WriteString(clockStyle.Render(FormatRemaining(view.RemainingSeconds)))
	b.WriteString("\n")

	state := idleStyle.Render("idle")
	switch {
	case view.IsRunning:
		state = runningStyle.Render("focusing")
	case view.IsPaused:
		state = idleStyle.Render("paused")
	}
	streak := 0
	if m.activity != nil {
		streak = m.activity.Current(m.ctx).Streak
	}
	fmt.Fprintf(&b, "%s · %d sites blocked · streak %d\n\n",
		state, len(m.sites.ResolvedDomains(m.ctx)), streak)

	for i, it := range m.items {
		pointer := "  "
		if i == m.cursor {
			pointer = cursorStyle.Render("› ")
		}
		mark := "[ ]"
		if it.isCustom() || m.selected.HasPreset(it.preset) {
			mark = "[x]"
		}
		line := fmt.Sprintf("%s%s %s", pointer, mark, it.label)
		if it.isCustom() {
			line += dimStyle.Render("  custom")
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	if m.adding {
		b.WriteString(m.input.View() + "\n")
	} else if m.status != "" {
		b.WriteString(m.status + "\n")
	}
	b.WriteString(dimStyle.Render("space start/pause · r reset · j/k move · enter toggle · a add · d delete · q quit"))
	b.WriteString("\n")
	return b.String()
}

// FormatRemaining renders seconds as "MM : SS".
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d : %02d", seconds/60, seconds%60)
}

func (m *Model) current() (item, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return item{}, false
	}
	return m.items[m.cursor], true
}

func (m *Model) report(err error, ok string) {
	if err != nil {
		m.status = "Error: " + err.Error()
		return
	}
	m.status = ok
}

// refresh rebuilds the list from the catalog and persisted selection.
func (m *Model) refresh() {
	m.selected = m.sites.Selection(m.ctx)

	items := make([]item, 0, len(m.items))
	for _, p := range m.sites.Catalog().GetAll() {
		items = append(items, item{preset: p.ID(), label: p.Name()})
	}
	for _, c := range m.selected.CustomSites {
		items = append(items, item{custom: c, label: c.Domain})
	}
	m.items = items
	if m.cursor >= len(m.items) {
		m.cursor = len(m.items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// Run starts the interactive program and blocks until the user quits.
func Run(ctx context.Context, timer *usecase.FocusTimer, sites *usecase.SiteManager, activity *usecase.Activity) error {
	p := tea.NewProgram(NewModel(ctx, timer, sites, activity), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
