package reminder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"taskhive/internal/clock"
	"taskhive/internal/models"
)

// fakeRepo is an in-memory task store honoring the due predicate and
// the compare-and-set contract.
type fakeRepo struct {
	mu       sync.Mutex
	tasks    map[int64]*models.Task
	findErr  error
	casCalls int
}

func newFakeRepo(tasks ...*models.Task) *fakeRepo {
	r := &fakeRepo{tasks: make(map[int64]*models.Task)}
	for _, task := range tasks {
		r.tasks[task.ID] = task
	}
	return r
}

func (r *fakeRepo) FindDueReminders(now time.Time) ([]models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	var due []models.Task
	for _, task := range r.tasks {
		if task.ReminderDue(now) && task.Status != models.StatusDone {
			due = append(due, *task)
		}
	}
	return due, nil
}

func (r *fakeRepo) CompareAndSetReminderState(id int64, expected, next models.ReminderState) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.casCalls++
	task, ok := r.tasks[id]
	if !ok || task.ReminderState != expected {
		return false, nil
	}
	task.ReminderState = next
	return true, nil
}

func (r *fakeRepo) state(id int64) models.ReminderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[id].ReminderState
}

// fakeDispatcher records sends and can fail or hang per destination.
type fakeDispatcher struct {
	mu      sync.Mutex
	sends   []string
	failFor map[string]error
	hangFor map[string]bool
}

func (d *fakeDispatcher) Send(ctx context.Context, destination, subject, htmlBody, textBody string) error {
	d.mu.Lock()
	hang := d.hangFor[destination]
	failErr := d.failFor[destination]
	d.mu.Unlock()

	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if failErr != nil {
		return failErr
	}

	d.mu.Lock()
	d.sends = append(d.sends, destination+"|"+subject)
	d.mu.Unlock()
	return nil
}

func (d *fakeDispatcher) sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sends...)
}

func pendingTask(id int64, dueAt time.Time) *models.Task {
	return &models.Task{
		ID:            id,
		UserID:        1,
		Title:         "write report",
		Status:        models.StatusTodo,
		ReminderState: models.ReminderPending,
		ReminderDueAt: &dueAt,
		OwnerEmail:    "alice@example.com",
	}
}

func newSchedulerForTest(repo *fakeRepo, d *fakeDispatcher, clk clock.Clock) *Scheduler {
	return NewScheduler(repo, d, clk, time.Minute, time.Second)
}

func TestTickSendsDueReminderExactlyOnce(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)

	// Reminder armed for t+100s.
	repo := newFakeRepo(pendingTask(42, start.Add(100*time.Second)))
	dispatcher := &fakeDispatcher{}
	s := newSchedulerForTest(repo, dispatcher, clk)

	// t+50s: not yet due, nothing fires.
	clk.Set(start.Add(50 * time.Second))
	s.Tick(context.Background())
	if got := len(dispatcher.sent()); got != 0 {
		t.Fatalf("premature send: %d", got)
	}
	if repo.state(42) != models.ReminderPending {
		t.Fatalf("state = %q, want pending", repo.state(42))
	}

	// t+110s: due, exactly one send, state becomes sent.
	clk.Set(start.Add(110 * time.Second))
	s.Tick(context.Background())
	if got := len(dispatcher.sent()); got != 1 {
		t.Fatalf("sends = %d, want 1", got)
	}
	if repo.state(42) != models.ReminderSent {
		t.Fatalf("state = %q, want sent", repo.state(42))
	}

	// t+170s: already sent, no further send.
	clk.Set(start.Add(170 * time.Second))
	s.Tick(context.Background())
	if got := len(dispatcher.sent()); got != 1 {
		t.Fatalf("sends after third tick = %d, want 1", got)
	}
}

func TestTickIdempotentBackToBack(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start.Add(time.Hour))

	repo := newFakeRepo(pendingTask(1, start))
	dispatcher := &fakeDispatcher{}
	s := newSchedulerForTest(repo, dispatcher, clk)

	s.Tick(context.Background())
	s.Tick(context.Background())

	if got := len(dispatcher.sent()); got != 1 {
		t.Fatalf("sends = %d, want 1", got)
	}
}

func TestTickLatePickupAfterDowntime(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// The scheduler was down for a day; the due predicate is <=, so the
	// missed reminder still fires on the next tick that runs.
	clk := clock.NewFake(start.Add(24 * time.Hour))

	repo := newFakeRepo(pendingTask(1, start))
	dispatcher := &fakeDispatcher{}
	s := newSchedulerForTest(repo, dispatcher, clk)

	s.Tick(context.Background())
	if got := len(dispatcher.sent()); got != 1 {
		t.Fatalf("sends = %d, want 1", got)
	}
}

func TestTickDispatchFailureIsIsolated(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start.Add(time.Minute))

	broken := pendingTask(1, start)
	broken.ReminderEmail = "broken@example.com"
	healthy := pendingTask(2, start)

	repo := newFakeRepo(broken, healthy)
	dispatcher := &fakeDispatcher{
		failFor: map[string]error{"broken@example.com": errors.New("smtp refused")},
	}
	s := newSchedulerForTest(repo, dispatcher, clk)

	s.Tick(context.Background())

	if repo.state(1) != models.ReminderFailed {
		t.Errorf("broken task state = %q, want failed", repo.state(1))
	}
	if repo.state(2) != models.ReminderSent {
		t.Errorf("healthy task state = %q, want sent", repo.state(2))
	}
	if got := len(dispatcher.sent()); got != 1 {
		t.Errorf("sends = %d, want 1", got)
	}
}

func TestTickHungDispatchTimesOutAsFailure(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start.Add(time.Minute))

	task := pendingTask(1, start)
	repo := newFakeRepo(task)
	dispatcher := &fakeDispatcher{hangFor: map[string]bool{"alice@example.com": true}}

	s := NewScheduler(repo, dispatcher, clk, time.Minute, 20*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Tick(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tick did not return; hung dispatch was not bounded")
	}

	if repo.state(1) != models.ReminderFailed {
		t.Errorf("state = %q, want failed", repo.state(1))
	}
}

func TestTickRepositoryFailureAbortsWholeTick(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start.Add(time.Minute))

	repo := newFakeRepo(pendingTask(1, start))
	repo.findErr = errors.New("connection refused")
	dispatcher := &fakeDispatcher{}
	s := newSchedulerForTest(repo, dispatcher, clk)

	s.Tick(context.Background())

	if got := len(dispatcher.sent()); got != 0 {
		t.Errorf("sends = %d, want 0", got)
	}
	if repo.casCalls != 0 {
		t.Errorf("casCalls = %d, want 0", repo.casCalls)
	}

	// The next tick recovers once the repository is back.
	repo.mu.Lock()
	repo.findErr = nil
	repo.mu.Unlock()
	s.Tick(context.Background())
	if got := len(dispatcher.sent()); got != 1 {
		t.Errorf("sends after recovery = %d, want 1", got)
	}
}

func TestTickConcurrentDisableMakesWriteNoOp(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start.Add(time.Minute))

	task := pendingTask(1, start)
	repo := newFakeRepo(task)
	dispatcher := &fakeDispatcher{}
	s := newSchedulerForTest(repo, dispatcher, clk)

	// Simulate a user disabling between the read and the write: the
	// repository state changed, so the scheduler's CAS must lose.
	repo.tasks[1].ReminderState = models.ReminderDisabled
	due := []models.Task{*task}
	due[0].ReminderState = models.ReminderPending
	for i := range due {
		s.processOne(context.Background(), &due[i])
	}

	if repo.state(1) != models.ReminderDisabled {
		t.Fatalf("state = %q, want disabled (CAS loser must not overwrite)", repo.state(1))
	}
}

func TestTickDestinationFallsBackToOwnerEmail(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start.Add(time.Minute))

	override := pendingTask(1, start)
	override.ReminderEmail = "team@example.com"
	fallback := pendingTask(2, start)

	repo := newFakeRepo(override, fallback)
	dispatcher := &fakeDispatcher{}
	s := newSchedulerForTest(repo, dispatcher, clk)

	s.Tick(context.Background())

	sends := dispatcher.sent()
	if len(sends) != 2 {
		t.Fatalf("sends = %d, want 2", len(sends))
	}
	joined := strings.Join(sends, "\n")
	if !strings.Contains(joined, "team@example.com|") {
		t.Errorf("override destination not used: %v", sends)
	}
	if !strings.Contains(joined, "alice@example.com|") {
		t.Errorf("owner fallback not used: %v", sends)
	}
}

func TestAlignDelay(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		period time.Duration
		want   time.Duration
	}{
		{
			name:   "mid minute",
			now:    time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC),
			period: time.Minute,
			want:   30 * time.Second,
		},
		{
			name:   "on the boundary",
			now:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			period: time.Minute,
			want:   time.Minute,
		},
		{
			name:   "just before the boundary",
			now:    time.Date(2025, 6, 1, 12, 0, 59, 500_000_000, time.UTC),
			period: time.Minute,
			want:   500 * time.Millisecond,
		},
		{
			name:   "short period",
			now:    time.Date(2025, 6, 1, 12, 0, 3, 0, time.UTC),
			period: 5 * time.Second,
			want:   2 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := alignDelay(tt.now, tt.period); got != tt.want {
				t.Errorf("alignDelay(%v, %v) = %v, want %v", tt.now, tt.period, got, tt.want)
			}
		})
	}
}

func TestComposeReminderEmail(t *testing.T) {
	dueDate := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	task := &models.Task{
		Title:       "write report",
		Description: "quarterly numbers",
		Status:      models.StatusInProgress,
		DueDate:     &dueDate,
	}

	subject, html, text := composeReminderEmail(task)
	if subject != "Reminder: write report" {
		t.Errorf("subject = %q", subject)
	}
	for _, body := range []string{html, text} {
		if !strings.Contains(body, "quarterly numbers") {
			t.Error("body missing description")
		}
		if !strings.Contains(body, "Jun 2, 2025") {
			t.Error("body missing formatted due date")
		}
	}

	// Empty fields fall back to placeholders.
	_, _, text = composeReminderEmail(&models.Task{Title: "x", Status: models.StatusTodo})
	if !strings.Contains(text, "No description") || !strings.Contains(text, "No due date") {
		t.Errorf("placeholders missing: %q", text)
	}
}
