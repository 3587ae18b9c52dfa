package service

import (
	"errors"
	"fmt"
	"time"

	"taskhive/internal/models"
	"taskhive/internal/reminder"
	"taskhive/internal/repository"
	"taskhive/internal/validation"
)

var ErrTaskNotFound = errors.New("task not found")

// TaskService handles task business logic. Every operation is scoped to
// the owning user; a task belonging to someone else behaves exactly like
// a missing one.
type TaskService struct {
	taskRepo *repository.TaskRepository
}

// NewTaskService creates a new task service
func NewTaskService(taskRepo *repository.TaskRepository) *TaskService {
	return &TaskService{taskRepo: taskRepo}
}

// getOwned fetches a task and verifies ownership
func (s *TaskService) getOwned(userID, taskID int64) (*models.Task, error) {
	task, err := s.taskRepo.GetTaskByID(taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if task == nil || task.UserID != userID {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

// CreateTask creates a task for the user
func (s *TaskService) CreateTask(userID int64, title, description string, dueDate *time.Time) (*models.Task, error) {
	if err := validation.ValidateTitle(title); err != nil {
		return nil, err
	}

	task, err := s.taskRepo.CreateTask(&models.Task{
		UserID:      userID,
		Title:       title,
		Description: description,
		DueDate:     dueDate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return task, nil
}

// GetTask returns one of the user's tasks
func (s *TaskService) GetTask(userID, taskID int64) (*models.Task, error) {
	return s.getOwned(userID, taskID)
}

// ListTasks returns all tasks for the user
func (s *TaskService) ListTasks(userID int64) ([]models.Task, error) {
	tasks, err := s.taskRepo.ListTasksByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// UpdateTask updates title, description, status and due date. Reminder
// fields are untouched here; they move through the arm/disable calls.
func (s *TaskService) UpdateTask(userID, taskID int64, title, description string, status models.TaskStatus, dueDate *time.Time) (*models.Task, error) {
	task, err := s.getOwned(userID, taskID)
	if err != nil {
		return nil, err
	}

	if err := validation.ValidateTitle(title); err != nil {
		return nil, err
	}
	if !models.ValidStatus(status) {
		return nil, validation.ValidationError{Field: "status", Message: "invalid task status"}
	}

	task.Title = title
	task.Description = description
	task.Status = status
	task.DueDate = dueDate

	if err := s.taskRepo.UpdateTask(task); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return task, nil
}

// DeleteTask removes one of the user's tasks
func (s *TaskService) DeleteTask(userID, taskID int64) error {
	if _, err := s.getOwned(userID, taskID); err != nil {
		return err
	}
	if err := s.taskRepo.DeleteTask(taskID); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// ArmReminder schedules a reminder for the task. An empty overrideEmail
// means the reminder goes to the owner's account address. Arming a sent
// or failed reminder restarts it at pending with the new due time.
func (s *TaskService) ArmReminder(userID, taskID int64, dueAt time.Time, overrideEmail string) (*models.Task, error) {
	task, err := s.getOwned(userID, taskID)
	if err != nil {
		return nil, err
	}
	if overrideEmail != "" {
		if err := validation.ValidateEmail(overrideEmail); err != nil {
			return nil, err
		}
	}

	next, err := reminder.Apply(task.ReminderState, reminder.Arm{DueAt: dueAt, Destination: overrideEmail})
	if err != nil {
		return nil, err
	}

	if err := s.taskRepo.ArmReminder(taskID, dueAt, overrideEmail); err != nil {
		return nil, fmt.Errorf("failed to arm reminder: %w", err)
	}

	task.ReminderState = next
	task.ReminderDueAt = &dueAt
	task.ReminderEmail = overrideEmail
	return task, nil
}

// DisableReminder turns the task's reminder off
func (s *TaskService) DisableReminder(userID, taskID int64) (*models.Task, error) {
	task, err := s.getOwned(userID, taskID)
	if err != nil {
		return nil, err
	}

	next, err := reminder.Apply(task.ReminderState, reminder.Disable{})
	if err != nil {
		return nil, err
	}

	if err := s.taskRepo.DisableReminder(taskID); err != nil {
		return nil, fmt.Errorf("failed to disable reminder: %w", err)
	}

	task.ReminderState = next
	return task, nil
}

// RetryReminder re-queues a failed reminder for the next scheduler pass.
// The compare-and-set guards against the scheduler touching the row in
// between, in which case the task is simply returned as it now is.
func (s *TaskService) RetryReminder(userID, taskID int64) (*models.Task, error) {
	task, err := s.getOwned(userID, taskID)
	if err != nil {
		return nil, err
	}

	next, err := reminder.Apply(task.ReminderState, reminder.Retry{})
	if err != nil {
		return nil, err
	}

	won, err := s.taskRepo.CompareAndSetReminderState(taskID, task.ReminderState, next)
	if err != nil {
		return nil, fmt.Errorf("failed to retry reminder: %w", err)
	}
	if !won {
		return s.getOwned(userID, taskID)
	}

	task.ReminderState = next
	return task, nil
}
