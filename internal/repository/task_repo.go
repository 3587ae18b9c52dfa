package repository

import (
	"database/sql"
	"fmt"
	"time"

	"taskhive/internal/database"
	"taskhive/internal/models"
)

// TaskRepository handles database operations for tasks and their reminders
type TaskRepository struct {
	db *database.DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *database.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `t.id, t.user_id, t.title, t.description, t.status, t.due_date,
	t.reminder_state, t.reminder_due_at, t.reminder_email, t.created_at, t.updated_at`

// CreateTask inserts a new task
func (r *TaskRepository) CreateTask(task *models.Task) (*models.Task, error) {
	if task.Status == "" {
		task.Status = models.StatusTodo
	}
	if task.ReminderState == "" {
		task.ReminderState = models.ReminderDisabled
	}

	query := `
		INSERT INTO tasks (user_id, title, description, status, due_date, reminder_state, reminder_due_at, reminder_email)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(query, task.UserID, task.Title, task.Description,
		task.Status, task.DueDate, task.ReminderState, task.ReminderDueAt, task.ReminderEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	task.ID = id
	task.CreatedAt = time.Now()
	task.UpdatedAt = time.Now()
	return task, nil
}

// GetTaskByID retrieves a task by ID
func (r *TaskRepository) GetTaskByID(id int64) (*models.Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks t WHERE t.id = ?"

	task, err := r.scanTask(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// ListTasksByUser returns all tasks owned by a user
func (r *TaskRepository) ListTasksByUser(userID int64) ([]models.Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks t WHERE t.user_id = ? ORDER BY t.created_at DESC"

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	return r.collectTasks(rows)
}

// UpdateTask persists mutable task fields. Reminder state is not
// touched here; it moves only through Arm/Disable/CompareAndSet.
func (r *TaskRepository) UpdateTask(task *models.Task) error {
	query := `
		UPDATE tasks
		SET title = ?, description = ?, status = ?, due_date = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.Exec(query, task.Title, task.Description, task.Status,
		task.DueDate, time.Now(), task.ID)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

// DeleteTask removes a task
func (r *TaskRepository) DeleteTask(id int64) error {
	_, err := r.db.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// FindDueReminders returns tasks whose reminder is pending and due at
// or before now, excluding completed tasks, with the owner's email
// joined in for destination fallback.
func (r *TaskRepository) FindDueReminders(now time.Time) ([]models.Task, error) {
	query := "SELECT " + taskColumns + `, u.email
		FROM tasks t
		JOIN users u ON u.id = t.user_id
		WHERE t.reminder_state = ?
		AND t.reminder_due_at <= ?
		AND t.status != ?
		ORDER BY t.reminder_due_at ASC
	`

	rows, err := r.db.Query(query, models.ReminderPending, now, models.StatusDone)
	if err != nil {
		return nil, fmt.Errorf("failed to find due reminders: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var task models.Task
		var dueDate, reminderDueAt sql.NullTime
		if err := rows.Scan(
			&task.ID, &task.UserID, &task.Title, &task.Description, &task.Status,
			&dueDate, &task.ReminderState, &reminderDueAt, &task.ReminderEmail,
			&task.CreatedAt, &task.UpdatedAt, &task.OwnerEmail,
		); err != nil {
			return nil, fmt.Errorf("failed to scan due reminder: %w", err)
		}
		if dueDate.Valid {
			task.DueDate = &dueDate.Time
		}
		if reminderDueAt.Valid {
			task.ReminderDueAt = &reminderDueAt.Time
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// CompareAndSetReminderState transitions the reminder state only if
// the record still holds the expected state. Returns false when the
// expected state no longer matched, i.e. someone else won the write.
func (r *TaskRepository) CompareAndSetReminderState(id int64, expected, next models.ReminderState) (bool, error) {
	query := `
		UPDATE tasks
		SET reminder_state = ?, updated_at = ?
		WHERE id = ? AND reminder_state = ?
	`
	result, err := r.db.Exec(query, next, time.Now(), id, expected)
	if err != nil {
		return false, fmt.Errorf("failed to update reminder state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

// ArmReminder schedules (or reschedules) a task's reminder
func (r *TaskRepository) ArmReminder(id int64, dueAt time.Time, email string) error {
	query := `
		UPDATE tasks
		SET reminder_state = ?, reminder_due_at = ?, reminder_email = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.Exec(query, models.ReminderPending, dueAt, email, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to arm reminder: %w", err)
	}
	return nil
}

// DisableReminder turns a task's reminder off
func (r *TaskRepository) DisableReminder(id int64) error {
	query := `
		UPDATE tasks
		SET reminder_state = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.Exec(query, models.ReminderDisabled, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to disable reminder: %w", err)
	}
	return nil
}

// RetryFailedReminders promotes all failed reminders back to pending.
// Used by the admin CLI; the scheduler never retries on its own.
func (r *TaskRepository) RetryFailedReminders() (int64, error) {
	result, err := r.db.Exec("UPDATE tasks SET reminder_state = ?, updated_at = ? WHERE reminder_state = ?",
		models.ReminderPending, time.Now(), models.ReminderFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to retry reminders: %w", err)
	}
	return result.RowsAffected()
}

// ListAllTasks returns every task ordered by id
func (r *TaskRepository) ListAllTasks() ([]models.Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks t ORDER BY t.id"

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	return r.collectTasks(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *TaskRepository) scanTask(row rowScanner) (*models.Task, error) {
	var task models.Task
	var dueDate, reminderDueAt sql.NullTime

	err := row.Scan(
		&task.ID, &task.UserID, &task.Title, &task.Description, &task.Status,
		&dueDate, &task.ReminderState, &reminderDueAt, &task.ReminderEmail,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if dueDate.Valid {
		task.DueDate = &dueDate.Time
	}
	if reminderDueAt.Valid {
		task.ReminderDueAt = &reminderDueAt.Time
	}
	return &task, nil
}

func (r *TaskRepository) collectTasks(rows *sql.Rows) ([]models.Task, error) {
	var tasks []models.Task
	for rows.Next() {
		task, err := r.scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}
