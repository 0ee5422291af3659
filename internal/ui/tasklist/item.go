package tasklist

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mail2tasks/internal/model"
	"github.com/nhle/mail2tasks/internal/theme"
)

// TaskItem wraps a model.Task so it can be used in a bubbles/list.
type TaskItem struct {
	Task model.Task
}

// FilterValue returns the string used for fuzzy filtering.
func (i TaskItem) FilterValue() string { return i.Task.Description }

// Title returns the task description for the list.
func (i TaskItem) Title() string { return i.Task.Description }

// Description returns a short summary line for the list.
func (i TaskItem) Description() string {
	parts := []string{string(i.Task.Priority)}
	if d := i.Task.DeadlineString(); d != "" {
		parts = append(parts, "due "+d)
	}
	if i.Task.Note != "" {
		parts = append(parts, i.Task.Note)
	}
	return strings.Join(parts, " | ")
}

// TaskDelegate implements list.ItemDelegate for rendering task lines.
type TaskDelegate struct{}

// Height returns the number of lines each item takes.
func (d TaskDelegate) Height() int { return 2 }

// Spacing returns the number of blank lines between items.
func (d TaskDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d TaskDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a task as a title line and a note line.
func (d TaskDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ti, ok := item.(TaskItem)
	if !ok {
		return
	}
	fmt.Fprint(w, RenderTask(ti.Task, index == m.Index()))
}

// RenderTask formats a task in two lines: status, priority, description
// and deadline, then the note. It is shared with the plain list output.
func RenderTask(t model.Task, selected bool) string {
	prefix := "○"
	if t.Done {
		prefix = "✓"
	}

	priority := theme.PriorityStyle(string(t.Priority)).Render(fmt.Sprintf("%-6s", t.Priority))

	desc := t.Description
	if t.Done {
		desc = theme.DoneStyle.Render(desc)
	}

	line := fmt.Sprintf("%s #%d %s %s", prefix, t.ID, priority, desc)
	if d := t.DeadlineString(); d != "" {
		line += theme.HelpStyle.Render("  due " + d)
	}

	note := theme.NoteStyle.Render("   " + t.Note)

	if selected {
		return theme.SelectedItemStyle.Render(line) + "\n" + note
	}
	return theme.ListItemStyle.Render(line) + "\n" + note
}
