package tasklist

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail2tasks/internal/keys"
	"github.com/nhle/mail2tasks/internal/model"
	"github.com/nhle/mail2tasks/internal/store"
	tasksync "github.com/nhle/mail2tasks/internal/sync"
	"github.com/nhle/mail2tasks/internal/theme"
	"github.com/nhle/mail2tasks/internal/ui"
)

// TasksLoadedMsg is sent when tasks have been loaded from the store.
type TasksLoadedMsg struct {
	Tasks []model.Task
	Err   error
}

// ActionDoneMsg is sent when a mark-done or delete has completed.
type ActionDoneMsg struct {
	Status string
	Err    error
}

// SyncDoneMsg is sent when a sync started from the browser finishes.
type SyncDoneMsg struct {
	Report tasksync.Report
	Err    error
}

// Syncer runs a sync on demand.
type Syncer interface {
	RunNow(ctx context.Context) (tasksync.Report, error)
}

// Model is the task browser.
type Model struct {
	frame       ui.Frame
	list        list.Model
	help        help.Model
	spinner     spinner.Model
	store       store.TaskStore
	syncer      Syncer
	keys        *keys.KeyMap
	includeDone bool
	syncing     bool
	status      string
	statusErr   bool
}

// New creates a task browser. syncer may be nil, in which case the sync
// key reports that syncing is unavailable.
func New(s store.TaskStore, syncer Syncer, k *keys.KeyMap, width, height int) Model {
	frame := ui.NewFrame(width, height)

	l := list.New([]list.Item{}, TaskDelegate{}, width, frame.BodyHeight()-1)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		frame:   frame,
		list:    l,
		help:    help.New(),
		spinner: sp,
		store:   s,
		syncer:  syncer,
		keys:    k,
	}
}

// Init returns a command that loads the initial set of tasks.
func (m Model) Init() tea.Cmd {
	return m.LoadTasks()
}

// Update handles messages for the browser.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case TasksLoadedMsg:
		if msg.Err != nil {
			m.setStatus("loading tasks: "+msg.Err.Error(), true)
			return m, nil
		}
		items := make([]list.Item, len(msg.Tasks))
		for i, task := range msg.Tasks {
			items[i] = TaskItem{Task: task}
		}
		return m, m.list.SetItems(items)

	case ActionDoneMsg:
		if msg.Err != nil {
			m.setStatus(msg.Err.Error(), true)
			return m, nil
		}
		m.setStatus(msg.Status, false)
		return m, m.LoadTasks()

	case SyncDoneMsg:
		m.syncing = false
		if msg.Err != nil {
			m.setStatus("sync failed: "+msg.Err.Error(), true)
			return m, nil
		}
		m.setStatus(fmt.Sprintf("sync: %d added, %d processed, %d skipped",
			msg.Report.TasksAdded, msg.Report.EmailsProcessed, msg.Report.EmailsSkipped), false)
		return m, m.LoadTasks()

	case spinner.TickMsg:
		if !m.syncing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.Done):
		if t, ok := m.selected(); ok && !t.Done {
			return m, m.markDone(t.ID)
		}
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		if t, ok := m.selected(); ok {
			return m, m.deleteTask(t.ID)
		}
		return m, nil

	case key.Matches(msg, m.keys.ToggleDone):
		m.includeDone = !m.includeDone
		return m, m.LoadTasks()

	case key.Matches(msg, m.keys.Refresh):
		return m, m.LoadTasks()

	case key.Matches(msg, m.keys.Sync):
		if m.syncer == nil {
			m.setStatus("sync is not available", true)
			return m, nil
		}
		if m.syncing {
			return m, nil
		}
		m.syncing = true
		m.setStatus("syncing mailbox...", false)
		return m, tea.Batch(m.spinner.Tick, m.runSync())
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) selected() (model.Task, bool) {
	item, ok := m.list.SelectedItem().(TaskItem)
	if !ok {
		return model.Task{}, false
	}
	return item.Task, true
}

func (m *Model) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
}

// View renders the browser.
func (m Model) View() string {
	var body string
	if len(m.list.Items()) == 0 {
		body = m.renderEmptyState()
	} else {
		body = m.list.View()
	}
	body = lipgloss.JoinVertical(lipgloss.Left, body, theme.HelpStyle.Render(m.help.View(m.keys)))

	status := m.status
	if m.syncing {
		status = m.spinner.View() + " " + status
	}
	if m.statusErr {
		status = theme.ErrorStyle.Render(status)
	}

	return m.frame.Render(
		m.frame.Header("mail2tasks", m.headerInfo()),
		body,
		m.frame.StatusBar(status),
	)
}

func (m Model) headerInfo() string {
	n := len(m.list.Items())
	if m.includeDone {
		return fmt.Sprintf("%d task(s), done included", n)
	}
	return fmt.Sprintf("%d open task(s)", n)
}

// renderEmptyState shows guidance text when no tasks are available.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.frame.Width).
		Height(max(m.frame.BodyHeight()-1, 1)).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	return style.Render("No open tasks.\n\nPress s to sync the mailbox.")
}

// LoadTasks returns a tea.Cmd that queries the store.
func (m Model) LoadTasks() tea.Cmd {
	s := m.store
	includeDone := m.includeDone
	return func() tea.Msg {
		tasks, err := s.ListTasks(context.Background(), includeDone)
		return TasksLoadedMsg{Tasks: tasks, Err: err}
	}
}

func (m Model) markDone(id int64) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		if err := s.MarkDone(context.Background(), id); err != nil {
			return ActionDoneMsg{Err: err}
		}
		return ActionDoneMsg{Status: fmt.Sprintf("task #%d marked done", id)}
	}
}

func (m Model) deleteTask(id int64) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		if err := s.DeleteTask(context.Background(), id); err != nil {
			return ActionDoneMsg{Err: err}
		}
		return ActionDoneMsg{Status: fmt.Sprintf("task #%d deleted", id)}
	}
}

func (m Model) runSync() tea.Cmd {
	syncer := m.syncer
	return func() tea.Msg {
		report, err := syncer.RunNow(context.Background())
		return SyncDoneMsg{Report: report, Err: err}
	}
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.frame = ui.NewFrame(width, height)
	m.list.SetSize(width, max(m.frame.BodyHeight()-1, 1))
	m.help.Width = width
}
