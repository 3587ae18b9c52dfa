package service

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"taskhive/internal/database"
	"taskhive/internal/models"
	"taskhive/internal/repository"
)

func newTestTaskService(t *testing.T) (*TaskService, int64, int64) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.RunMigrations("../../migrations"); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	users := repository.NewUserRepository(db)
	alice, err := users.CreateUser("Alice", "alice", "alice@example.com", "hash", nil)
	if err != nil {
		t.Fatal(err)
	}
	bob, err := users.CreateUser("Bob", "bob", "bob@example.com", "hash", nil)
	if err != nil {
		t.Fatal(err)
	}

	return NewTaskService(repository.NewTaskRepository(db)), alice.ID, bob.ID
}

func TestTaskCRUD(t *testing.T) {
	svc, alice, _ := newTestTaskService(t)

	due := time.Now().Add(48 * time.Hour).UTC()
	task, err := svc.CreateTask(alice, "write report", "quarterly numbers", &due)
	if err != nil {
		t.Fatalf("CreateTask error: %v", err)
	}
	if task.Status != models.StatusTodo {
		t.Errorf("new task status = %q, want todo", task.Status)
	}
	if task.ReminderState != models.ReminderDisabled {
		t.Errorf("new task reminder = %q, want disabled", task.ReminderState)
	}

	updated, err := svc.UpdateTask(alice, task.ID, "write report", "quarterly numbers", models.StatusInProgress, &due)
	if err != nil {
		t.Fatalf("UpdateTask error: %v", err)
	}
	if updated.Status != models.StatusInProgress {
		t.Errorf("status = %q, want in_progress", updated.Status)
	}

	list, err := svc.ListTasks(alice)
	if err != nil {
		t.Fatalf("ListTasks error: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListTasks returned %d tasks, want 1", len(list))
	}

	if err := svc.DeleteTask(alice, task.ID); err != nil {
		t.Fatalf("DeleteTask error: %v", err)
	}
	if _, err := svc.GetTask(alice, task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("get after delete: got %v, want ErrTaskNotFound", err)
	}
}

func TestTasksAreOwnerScoped(t *testing.T) {
	svc, alice, bob := newTestTaskService(t)

	task, err := svc.CreateTask(alice, "private", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	// Another user's task is indistinguishable from a missing one.
	if _, err := svc.GetTask(bob, task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("cross-user get: got %v, want ErrTaskNotFound", err)
	}
	if err := svc.DeleteTask(bob, task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("cross-user delete: got %v, want ErrTaskNotFound", err)
	}
	if _, err := svc.ArmReminder(bob, task.ID, time.Now().Add(time.Hour), ""); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("cross-user arm: got %v, want ErrTaskNotFound", err)
	}

	list, err := svc.ListTasks(bob)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("bob sees %d of alice's tasks", len(list))
	}
}

func TestArmAndDisableReminder(t *testing.T) {
	svc, alice, _ := newTestTaskService(t)

	task, err := svc.CreateTask(alice, "write report", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	dueAt := time.Now().Add(time.Hour).UTC()
	armed, err := svc.ArmReminder(alice, task.ID, dueAt, "team@example.com")
	if err != nil {
		t.Fatalf("ArmReminder error: %v", err)
	}
	if armed.ReminderState != models.ReminderPending {
		t.Errorf("state = %q, want pending", armed.ReminderState)
	}
	if armed.ReminderEmail != "team@example.com" {
		t.Errorf("ReminderEmail = %q", armed.ReminderEmail)
	}

	if _, err := svc.ArmReminder(alice, task.ID, time.Time{}, ""); err == nil {
		t.Error("arming without a due time should fail")
	}
	if _, err := svc.ArmReminder(alice, task.ID, dueAt, "not-an-email"); err == nil {
		t.Error("invalid override address should fail")
	}

	disabled, err := svc.DisableReminder(alice, task.ID)
	if err != nil {
		t.Fatalf("DisableReminder error: %v", err)
	}
	if disabled.ReminderState != models.ReminderDisabled {
		t.Errorf("state = %q, want disabled", disabled.ReminderState)
	}
}

func TestRetryReminder(t *testing.T) {
	svc, alice, _ := newTestTaskService(t)

	task, err := svc.CreateTask(alice, "write report", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ArmReminder(alice, task.ID, time.Now().Add(time.Hour), ""); err != nil {
		t.Fatal(err)
	}

	// Retrying a pending reminder is rejected by the state machine.
	if _, err := svc.RetryReminder(alice, task.ID); err == nil {
		t.Error("retry of pending reminder should fail")
	}

	if _, err := svc.taskRepo.CompareAndSetReminderState(task.ID, models.ReminderPending, models.ReminderFailed); err != nil {
		t.Fatal(err)
	}

	retried, err := svc.RetryReminder(alice, task.ID)
	if err != nil {
		t.Fatalf("RetryReminder error: %v", err)
	}
	if retried.ReminderState != models.ReminderPending {
		t.Errorf("state = %q, want pending", retried.ReminderState)
	}
}
