package domain

import (
	"fmt"
	"strings"
	"time"
)

// Priority orders how urgently a task should be handled.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Status tracks a task through its lifecycle.
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
	StatusArchived   Status = "ARCHIVED"
)

// ParsePriority validates a raw priority string.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToUpper(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return p, nil
	default:
		return "", Validation(fmt.Sprintf("invalid priority %q", s))
	}
}

// ParseStatus validates a raw status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusTodo, StatusInProgress, StatusDone, StatusArchived:
		return st, nil
	default:
		return "", Validation(fmt.Sprintf("invalid status %q", s))
	}
}

// Task is a single item on a list. Position is unique within a list and
// defines display order ascending.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	Tags        []string   `json:"tags"`
	Position    int        `json:"position"`
	ListID      string     `json:"listId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TaskInput carries the caller-supplied fields for task creation.
type TaskInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Priority    Priority   `json:"priority"`
	Tags        []string   `json:"tags"`
	ListID      string     `json:"listId"`
	Position    int        `json:"position"`
}

// Validate rejects malformed input before any write happens.
func (in TaskInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return Validation("title is required")
	}
	if len(in.Title) > 255 {
		return Validation("title exceeds 255 characters")
	}
	if in.ListID == "" {
		return Validation("listId is required")
	}
	if _, err := ParsePriority(string(in.Priority)); err != nil {
		return err
	}
	return ValidatePosition(in.Position)
}

// TaskPatch is a partial task update; nil fields are left untouched.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	Tags        *[]string  `json:"tags,omitempty"`
}

// Validate rejects malformed patch fields before any write happens.
func (p TaskPatch) Validate() error {
	if p.Title != nil {
		if strings.TrimSpace(*p.Title) == "" {
			return Validation("title must not be empty")
		}
		if len(*p.Title) > 255 {
			return Validation("title exceeds 255 characters")
		}
	}
	if p.Priority != nil {
		if _, err := ParsePriority(string(*p.Priority)); err != nil {
			return err
		}
	}
	if p.Status != nil {
		if _, err := ParseStatus(string(*p.Status)); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns a copy of t with the patch fields overlaid and UpdatedAt bumped.
func (p TaskPatch) Apply(t Task, now time.Time) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.DueDate != nil {
		t.DueDate = p.DueDate
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Tags != nil {
		t.Tags = *p.Tags
	}
	t.UpdatedAt = now
	return t
}

// TaskFilter narrows task listings. Zero-value fields are unconstrained;
// set fields combine with AND semantics.
type TaskFilter struct {
	ListID   string
	Status   Status
	Priority Priority
	Tag      string
}

// NormalizeTaskFilter validates raw query values and builds a fixed filter.
func NormalizeTaskFilter(listID, status, priority, tag string) (TaskFilter, error) {
	f := TaskFilter{ListID: strings.TrimSpace(listID), Tag: strings.TrimSpace(tag)}
	if s := strings.TrimSpace(status); s != "" {
		st, err := ParseStatus(s)
		if err != nil {
			return TaskFilter{}, err
		}
		f.Status = st
	}
	if p := strings.TrimSpace(priority); p != "" {
		pr, err := ParsePriority(p)
		if err != nil {
			return TaskFilter{}, err
		}
		f.Priority = pr
	}
	return f, nil
}

// Matches reports whether the task satisfies every set filter dimension.
func (f TaskFilter) Matches(t Task) bool {
	if f.ListID != "" && t.ListID != f.ListID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, tag := range t.Tags {
			if tag == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
