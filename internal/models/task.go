package models

import "time"

// TaskStatus is the task workflow state
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

// ValidStatus reports whether s is a known task status
func ValidStatus(s TaskStatus) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// ReminderState tracks the delivery lifecycle of a task's reminder.
// A reminder fires when it is pending and its due time has passed;
// the scheduler moves it to sent or failed exactly once.
type ReminderState string

const (
	ReminderDisabled ReminderState = "disabled"
	ReminderPending  ReminderState = "pending"
	ReminderSent     ReminderState = "sent"
	ReminderFailed   ReminderState = "failed"
)

// Task represents a task owned by a user. The reminder fields are
// mutated only by the scheduler (pending->sent/failed) or by explicit
// user action (arm, re-arm, disable).
type Task struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"userId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	DueDate     *time.Time `json:"dueDate,omitempty"`

	ReminderState ReminderState `json:"reminderState"`
	ReminderDueAt *time.Time    `json:"reminderDueAt,omitempty"`
	// ReminderEmail overrides the owner's address when set
	ReminderEmail string `json:"reminderEmail,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	OwnerEmail string `json:"-"` // Populated via JOIN
}

// ReminderDue reports whether the reminder is eligible for firing at now
func (t *Task) ReminderDue(now time.Time) bool {
	return t.ReminderState == ReminderPending &&
		t.ReminderDueAt != nil && !t.ReminderDueAt.After(now)
}
