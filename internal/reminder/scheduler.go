package reminder

import (
	"context"
	"fmt"
	"log"
	"time"

	"taskhive/internal/clock"
	"taskhive/internal/models"
)

// Repository is the slice of task storage the scheduler needs. The
// state write is a compare-and-set: it succeeds only if the record is
// still in the expected state, so concurrent schedulers (or a user
// disabling mid-tick) cannot double-transition a reminder.
type Repository interface {
	FindDueReminders(now time.Time) ([]models.Task, error)
	CompareAndSetReminderState(id int64, expected, next models.ReminderState) (bool, error)
}

// Dispatcher delivers a notification. Implementations apply their own
// transport behavior; the scheduler bounds each call with a timeout.
type Dispatcher interface {
	Send(ctx context.Context, destination, subject, htmlBody, textBody string) error
}

// Scheduler polls for due reminders on a fixed period and drives each
// one through dispatch and a single state transition.
type Scheduler struct {
	repo            Repository
	dispatcher      Dispatcher
	clock           clock.Clock
	period          time.Duration
	dispatchTimeout time.Duration
}

// NewScheduler creates a reminder scheduler
func NewScheduler(repo Repository, dispatcher Dispatcher, clk clock.Clock, period, dispatchTimeout time.Duration) *Scheduler {
	if period <= 0 {
		period = time.Minute
	}
	if dispatchTimeout <= 0 {
		dispatchTimeout = 10 * time.Second
	}
	return &Scheduler{
		repo:            repo,
		dispatcher:      dispatcher,
		clock:           clk,
		period:          period,
		dispatchTimeout: dispatchTimeout,
	}
}

// Run ticks until ctx is cancelled. The first tick is aligned to the
// next period boundary (second 0 of the minute at the default period).
// Ticks are consumed serially from one goroutine, so a slow tick can
// never overlap the next one; the ticker drops intervening fires.
func (s *Scheduler) Run(ctx context.Context) {
	select {
	case <-time.After(alignDelay(s.clock.Now(), s.period)):
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("Reminder scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// alignDelay is the wait until the next period boundary after now
func alignDelay(now time.Time, period time.Duration) time.Duration {
	return now.Truncate(period).Add(period).Sub(now)
}

// Tick processes the current batch of due reminders. A repository
// failure aborts the whole tick; a dispatch failure is recorded
// against its own reminder and does not affect the rest of the batch.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now()

	due, err := s.repo.FindDueReminders(now)
	if err != nil {
		log.Printf("Reminder tick aborted, repository unavailable: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}

	log.Printf("Reminder tick: %d due reminder(s)", len(due))

	sent, failed := 0, 0
	for i := range due {
		task := &due[i]
		if s.processOne(ctx, task) {
			sent++
		} else {
			failed++
		}
	}

	log.Printf("Reminder tick complete: %d sent, %d failed", sent, failed)
}

// processOne dispatches a single reminder and commits its state
// transition. Returns true when the reminder was delivered.
func (s *Scheduler) processOne(ctx context.Context, task *models.Task) bool {
	err := s.dispatch(ctx, task)
	if err != nil {
		log.Printf("Reminder dispatch failed for task %d: %v", task.ID, err)
	}

	next, applyErr := Apply(models.ReminderPending, Fire{Succeeded: err == nil})
	if applyErr != nil {
		log.Printf("Reminder transition rejected for task %d: %v", task.ID, applyErr)
		return false
	}

	won, casErr := s.repo.CompareAndSetReminderState(task.ID, models.ReminderPending, next)
	if casErr != nil {
		log.Printf("Failed to persist reminder state for task %d: %v", task.ID, casErr)
		return false
	}
	if !won {
		// Someone else transitioned the record first (concurrent
		// scheduler instance or a user disable); our write is a no-op.
		log.Printf("Reminder for task %d already transitioned elsewhere", task.ID)
		return err == nil
	}

	return err == nil
}

// dispatch sends the reminder email with a bounded timeout, so a hung
// transport surfaces as a failure instead of stalling the tick.
func (s *Scheduler) dispatch(ctx context.Context, task *models.Task) error {
	destination := task.ReminderEmail
	if destination == "" {
		destination = task.OwnerEmail
	}
	if destination == "" {
		return fmt.Errorf("no destination address for task %d", task.ID)
	}

	subject, htmlBody, textBody := composeReminderEmail(task)

	ctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()

	return s.dispatcher.Send(ctx, destination, subject, htmlBody, textBody)
}

// composeReminderEmail builds the reminder message for a task
func composeReminderEmail(task *models.Task) (subject, htmlBody, textBody string) {
	subject = fmt.Sprintf("Reminder: %s", task.Title)

	description := task.Description
	if description == "" {
		description = "No description"
	}
	dueDate := "No due date"
	if task.DueDate != nil {
		dueDate = task.DueDate.Format("Jan 2, 2006 15:04")
	}

	htmlBody = fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<style>
		body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
		.container { max-width: 600px; margin: 0 auto; padding: 20px; }
		.card { border: 1px solid #ddd; padding: 20px; margin: 15px 0; border-radius: 8px; background-color: #f9f9f9; }
		.footer { text-align: center; margin-top: 20px; font-size: 12px; color: #666; }
	</style>
</head>
<body>
	<div class="container">
		<h2>Task Reminder</h2>
		<p>This is a reminder about your task:</p>
		<div class="card">
			<h3 style="margin: 0;">%s</h3>
			<p style="margin: 5px 0;"><strong>Description:</strong> %s</p>
			<p style="margin: 5px 0;"><strong>Status:</strong> %s</p>
			<p style="margin: 5px 0;"><strong>Due Date:</strong> %s</p>
		</div>
		<p>Don't forget to complete this task!</p>
		<div class="footer">
			<p>This is an automated reminder from Taskhive. Please do not reply.</p>
		</div>
	</div>
</body>
</html>
`, task.Title, description, task.Status, dueDate)

	textBody = fmt.Sprintf(`Task Reminder

This is a reminder about your task:

%s
Description: %s
Status: %s
Due Date: %s

Don't forget to complete this task!

---
This is an automated reminder from Taskhive. Please do not reply.
`, task.Title, description, task.Status, dueDate)

	return subject, htmlBody, textBody
}
