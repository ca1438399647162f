// Package review is the interactive Change Set review screen: a list of
// changed paths, the diff of the selected one, and revert/accept actions that
// apply to the whole set.
package review

import (
	"context"
	"fmt"
	"strings"

	"mcpguard/internal/logging"
	"mcpguard/internal/model"
	"mcpguard/internal/tui/components"
	"mcpguard/internal/tui/helpers"
	"mcpguard/internal/tui/styles"
	"mcpguard/internal/ui"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Engine is what the review screen drives.
type Engine interface {
	CheckChanges(ctx context.Context) (*model.ChangeSet, error)
	RevertChanges(ctx context.Context, cs *model.ChangeSet) error
	AcceptChanges(ctx context.Context, cs *model.ChangeSet) error
}

type KeyMap struct {
	Revert     key.Binding
	Accept     key.Binding
	Check      key.Binding
	Confirm    key.Binding
	Cancel     key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding
	Quit       key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Revert:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "revert all")),
		Accept:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "accept all")),
		Check:      key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "check again")),
		Confirm:    key.NewBinding(key.WithKeys("y", "Y"), key.WithHelp("y", "confirm")),
		Cancel:     key.NewBinding(key.WithKeys("n", "N", "esc"), key.WithHelp("n/esc", "cancel")),
		ScrollUp:   key.NewBinding(key.WithKeys("pgup", "ctrl+u"), key.WithHelp("pgup", "scroll diff")),
		ScrollDown: key.NewBinding(key.WithKeys("pgdown", "ctrl+d"), key.WithHelp("pgdn", "scroll diff")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Revert, k.Accept, k.Check, k.ScrollDown, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

type mode int

const (
	modeBrowse mode = iota
	modeConfirmRevert
	modeConfirmAccept
)

type (
	checkedMsg struct {
		cs  *model.ChangeSet
		err error
	}

	appliedMsg struct {
		action string
		cs     *model.ChangeSet
		err    error
	}
)

type changeItem struct {
	entry model.ChangeEntry
}

func (i changeItem) Title() string       { return i.entry.DisplayName }
func (i changeItem) Description() string { return fmt.Sprintf("%s · %s", i.entry.Kind, i.entry.Path) }
func (i changeItem) FilterValue() string { return i.entry.Path }

// Model is the review screen.
type Model struct {
	ctx    context.Context
	engine Engine
	logger *logging.AppLogger

	layout   components.LayoutModel
	list     list.Model
	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model
	keys     KeyMap

	width  int
	height int

	cs      *model.ChangeSet
	mode    mode
	busy    bool
	outcome string
	shown   int
}

// New creates the review screen. It runs a check as soon as it starts.
func New(ctx context.Context, engine Engine, uiCtx helpers.UIContext) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.SpinnerStyle

	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)

	m := Model{
		ctx:      ctx,
		engine:   engine,
		logger:   logging.OrDefault(uiCtx.Logger),
		layout:   components.NewLayout(components.LayoutConfig{Title: "mcpguard review"}),
		list:     l,
		viewport: viewport.New(0, 0),
		spinner:  s,
		help:     help.New(),
		keys:     DefaultKeyMap(),
		busy:     true,
		shown:    -1,
	}
	if uiCtx.HasValidDimensions() {
		m = m.resize(uiCtx.Width, uiCtx.Height)
	}
	return m
}

// ChangeSet returns the Change Set currently on screen.
func (m Model) ChangeSet() *model.ChangeSet {
	return m.cs
}

// Outcome returns the message of the last transaction.
func (m Model) Outcome() string {
	return m.outcome
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.check())
}

func (m Model) check() tea.Cmd {
	return func() tea.Msg {
		cs, err := m.engine.CheckChanges(m.ctx)
		return checkedMsg{cs: cs, err: err}
	}
}

func (m Model) apply(action string) tea.Cmd {
	cs := m.cs
	return func() tea.Msg {
		var err error
		if action == "revert" {
			err = m.engine.RevertChanges(m.ctx, cs)
		} else {
			err = m.engine.AcceptChanges(m.ctx, cs)
		}
		return appliedMsg{action: action, cs: cs, err: err}
	}
}

func (m Model) resize(width, height int) Model {
	m.width = width
	m.height = height
	m.layout, _ = m.layout.Update(tea.WindowSizeMsg{Width: width, Height: height})

	contentWidth := m.layout.ContentWidth()
	paneHeight := m.layout.ContentHeight() - 2
	listWidth := contentWidth / 3
	diffWidth := contentWidth - listWidth - 4

	m.list.SetSize(listWidth-4, paneHeight)
	m.viewport.Width = diffWidth - 4
	m.viewport.Height = paneHeight
	return m
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	m.logger.LogMessage(msg)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m = m.resize(msg.Width, msg.Height)
		m.shown = -1
		m = m.syncDiff()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case checkedMsg:
		m.busy = false
		m.mode = modeBrowse
		if msg.err != nil {
			m.logger.Warn("Check failed", "error", msg.err)
			m.layout = m.layout.SetError(msg.err)
			return m, nil
		}
		m.layout = m.layout.SetError(nil)
		m.cs = msg.cs
		items := make([]list.Item, len(msg.cs.Entries))
		for i, e := range msg.cs.Entries {
			items[i] = changeItem{entry: e}
		}
		cmds = append(cmds, m.list.SetItems(items))
		m.list.Select(0)
		m.shown = -1
		m = m.syncDiff()
		return m, tea.Batch(cmds...)

	case appliedMsg:
		m.outcome = ui.Outcome(msg.action, msg.cs, msg.err)
		if msg.err != nil {
			m.logger.Warn("Transaction failed", "action", msg.action, "error", msg.err)
		}
		// the set on screen is spent either way
		return m, m.check()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	switch m.mode {
	case modeConfirmRevert, modeConfirmAccept:
		switch {
		case key.Matches(msg, m.keys.Confirm):
			action := "revert"
			if m.mode == modeConfirmAccept {
				action = "accept"
			}
			m.mode = modeBrowse
			m.busy = true
			m.outcome = ""
			return m, tea.Batch(m.spinner.Tick, m.apply(action))
		case key.Matches(msg, m.keys.Cancel):
			m.mode = modeBrowse
		}
		return m, nil
	}

	if m.busy {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Revert):
		if !m.cs.Empty() {
			m.mode = modeConfirmRevert
		}
		return m, nil
	case key.Matches(msg, m.keys.Accept):
		if !m.cs.Empty() {
			m.mode = modeConfirmAccept
		}
		return m, nil
	case key.Matches(msg, m.keys.Check):
		m.busy = true
		m.outcome = ""
		return m, tea.Batch(m.spinner.Tick, m.check())
	case key.Matches(msg, m.keys.ScrollUp), key.Matches(msg, m.keys.ScrollDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	m = m.syncDiff()
	return m, cmd
}

// syncDiff shows the diff of the selected entry.
func (m Model) syncDiff() Model {
	if m.cs.Empty() {
		m.viewport.SetContent("")
		return m
	}
	idx := m.list.Index()
	if idx == m.shown || idx < 0 || idx >= len(m.cs.Entries) {
		return m
	}
	m.shown = idx
	e := m.cs.Entries[idx]
	m.viewport.SetContent(e.Path + "\n\n" + colorDiff(e.DiffText))
	m.viewport.GotoTop()
	return m
}

func colorDiff(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"), strings.HasPrefix(line, "@@"):
			lines[i] = styles.DiffHunkStyle.Render(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = styles.DiffAddStyle.Render(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = styles.DiffRemoveStyle.Render(line)
		case strings.HasPrefix(line, " "), line == "":
		default:
			lines[i] = styles.DiffNoteStyle.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) View() string {
	layout := m.layout.SetHelpText(m.help.View(m.keys))

	var body strings.Builder
	switch {
	case m.cs == nil && m.busy:
		layout = layout.SetSubtitle(m.spinner.View() + " Checking tracked files...")
	case m.cs == nil:
		layout = layout.SetSubtitle("No check has completed.")
	case m.busy:
		layout = layout.SetSubtitle(m.spinner.View() + " Working...")
	default:
		layout = layout.SetSubtitle(ui.Headline(m.cs))
	}

	if m.outcome != "" {
		style := styles.SuccessStyle
		if strings.Contains(m.outcome, "failed") {
			style = styles.ErrorStyle
		}
		body.WriteString(style.Render(m.outcome))
		body.WriteString("\n")
	}

	switch m.mode {
	case modeConfirmRevert:
		body.WriteString(styles.WarningStyle.Render(fmt.Sprintf("Revert %d change(s) to the baseline? Files without a baseline are deleted. (y/n)", len(m.cs.Entries))))
		body.WriteString("\n")
	case modeConfirmAccept:
		body.WriteString(styles.WarningStyle.Render(fmt.Sprintf("Accept %d change(s) as the new baseline? (y/n)", len(m.cs.Entries))))
		body.WriteString("\n")
	}

	if !m.cs.Empty() {
		listPane := styles.PaneFocusedStyle.Render(m.list.View())
		diffPane := styles.PaneStyle.Render(m.viewport.View())
		body.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, listPane, diffPane))
	}

	return layout.Render(strings.TrimRight(body.String(), "\n"))
}
