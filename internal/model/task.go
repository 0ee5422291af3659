package model

import (
	"fmt"
	"strings"
	"time"
)

// Priority is the urgency level of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// DateLayout is the ISO calendar date format used for deadlines.
const DateLayout = "2006-01-02"

// priorityAliases maps the spellings a language model (or a user) may
// produce onto the normalized priority levels.
var priorityAliases = map[string]Priority{
	"low":     PriorityLow,
	"basse":   PriorityLow,
	"medium":  PriorityMedium,
	"normal":  PriorityMedium,
	"moyenne": PriorityMedium,
	"high":    PriorityHigh,
	"haute":   PriorityHigh,
	"urgent":  PriorityHigh,
}

// ParsePriority normalizes s to one of the Priority constants.
// Unknown or empty values resolve to PriorityMedium.
func ParsePriority(s string) Priority {
	if p, ok := priorityAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return p
	}
	return PriorityMedium
}

// Valid reports whether p is one of the known priority levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is an actionable item, either entered manually or extracted
// from an email during sync.
type Task struct {
	// ID is assigned by the store and increases monotonically.
	ID int64 `json:"id" db:"id"`

	// Description is the short summary of the work. Never empty.
	Description string `json:"description" db:"description"`

	Priority Priority `json:"priority" db:"priority"`

	// Deadline is an optional YYYY-MM-DD date.
	Deadline *string `json:"deadline" db:"deadline"`

	// Note holds free-text context.
	Note string `json:"note" db:"note"`

	Done bool `json:"done" db:"status"`

	// CreatedAt is set at insertion and never changes.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewTask holds the caller-supplied fields for a task about to be stored.
type NewTask struct {
	Description string
	Priority    Priority
	Deadline    *string
	Note        string
}

// Validate checks the fields a caller must supply before handing a task
// to the store. It normalizes the priority in place.
func (t *NewTask) Validate() error {
	t.Description = strings.TrimSpace(t.Description)
	if t.Description == "" {
		return fmt.Errorf("task description must not be empty")
	}
	if !t.Priority.Valid() {
		t.Priority = ParsePriority(string(t.Priority))
	}
	if t.Deadline != nil {
		d := strings.TrimSpace(*t.Deadline)
		if d == "" {
			t.Deadline = nil
			return nil
		}
		if _, err := time.Parse(DateLayout, d); err != nil {
			return fmt.Errorf("invalid deadline %q, use YYYY-MM-DD", d)
		}
		t.Deadline = &d
	}
	return nil
}

// NormalizeDeadline returns a pointer to s if it is a valid YYYY-MM-DD
// date, or nil otherwise.
func NormalizeDeadline(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return nil
	}
	return &s
}

// DeadlineString returns the deadline or an empty string when absent.
func (t Task) DeadlineString() string {
	if t.Deadline == nil {
		return ""
	}
	return *t.Deadline
}
