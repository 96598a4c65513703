package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"upgrade-tracker/internal/model"
	"upgrade-tracker/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type note struct {
	userID uint
	title  string
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (n *fakeNotifier) Notify(userID uint, title, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note{userID: userID, title: title})
}

func (n *fakeNotifier) all() []note {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]note, len(n.notes))
	copy(out, n.notes)
	return out
}

var testDBCounter int

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	testDBCounter++
	dsn := fmt.Sprintf("file:checker_test_%d?mode=memory&cache=shared", testDBCounter)
	db, err := repository.NewDB(dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap test db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

type checkerFixture struct {
	taskRepo     *repository.TaskRepository
	settingsRepo *repository.SettingsRepository
	notifier     *fakeNotifier
	clock        *fakeClock
	checker      *CheckerService
}

func newCheckerFixture(t *testing.T, cfg CheckerConfig) *checkerFixture {
	t.Helper()
	db := newTestDB(t)
	f := &checkerFixture{
		taskRepo:     repository.NewTaskRepository(db),
		settingsRepo: repository.NewSettingsRepository(db),
		notifier:     &fakeNotifier{},
		clock:        &fakeClock{now: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)},
	}
	f.checker = NewCheckerService(f.taskRepo, f.settingsRepo, f.notifier, f.clock, cfg)
	return f
}

func (f *checkerFixture) createTask(t *testing.T, task *model.Task) {
	t.Helper()
	if err := f.taskRepo.Create(context.Background(), task); err != nil {
		t.Fatalf("create task: %v", err)
	}
}

func (f *checkerFixture) saveSettings(t *testing.T, settings model.Settings) {
	t.Helper()
	if err := f.settingsRepo.Save(context.Background(), &settings); err != nil {
		t.Fatalf("save settings: %v", err)
	}
}

func dailyTask(userID uint, start time.Time) *model.Task {
	task := &model.Task{UserID: userID, Name: "barracks"}
	task.SetRepeat(model.NewPresetRule(model.RepeatDaily))
	task.Length = model.Duration{Hours: 1}
	task.SetStart(start)
	return task
}

// A daily timer due at 10:00 checked at 10:00:01 fires one due alert and
// reschedules to the same time next day.
func TestTickFiresDueAndAdvances(t *testing.T) {
	f := newCheckerFixture(t, DefaultCheckerConfig())
	start := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	task := dailyTask(1, start)
	f.createTask(t, task)

	f.clock.Set(time.Date(2025, 1, 1, 10, 0, 1, 0, time.UTC))
	f.checker.Tick(context.Background())

	notes := f.notifier.all()
	if len(notes) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notes))
	}
	if notes[0].userID != 1 || notes[0].title != "Upgrade finished" {
		t.Fatalf("unexpected notification %+v", notes[0])
	}

	reloaded, err := f.taskRepo.FindByID(context.Background(), 1, task.ID)
	if err != nil {
		t.Fatalf("reload task: %v", err)
	}
	want := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	if !reloaded.FinishAt.Equal(want) {
		t.Fatalf("FinishAt = %v, want %v", reloaded.FinishAt, want)
	}
	if reloaded.Notified || reloaded.AdvanceNotified {
		t.Fatal("flags must re-arm for the next occurrence")
	}
	if reloaded.OccurrenceCursor != 1 || reloaded.NotifyCount != 1 {
		t.Fatalf("cursor=%d count=%d, want 1/1", reloaded.OccurrenceCursor, reloaded.NotifyCount)
	}
}

func TestTickFiresAdvanceNotification(t *testing.T) {
	f := newCheckerFixture(t, DefaultCheckerConfig())
	f.saveSettings(t, model.Settings{UserID: 1, AdvanceNotifySeconds: 300, AlsoNotifyAtDue: true})

	now := f.clock.Now()
	start := now.Add(-time.Hour).Add(200 * time.Second)
	task := dailyTask(1, start)
	f.createTask(t, task)

	f.checker.Tick(context.Background())

	notes := f.notifier.all()
	if len(notes) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notes))
	}
	if notes[0].title != "Upgrade almost done" {
		t.Fatalf("unexpected title %q", notes[0].title)
	}

	reloaded, err := f.taskRepo.FindByID(context.Background(), 1, task.ID)
	if err != nil {
		t.Fatalf("reload task: %v", err)
	}
	if !reloaded.AdvanceNotified {
		t.Fatal("advance flag must be set")
	}
	if reloaded.Notified {
		t.Fatal("due alert must not have fired yet")
	}
}

// With "also notify at due" off, a timer that already got its advance alert
// is marked notified silently instead of producing a second popup.
func TestTickSuppressesDueAfterAdvance(t *testing.T) {
	f := newCheckerFixture(t, DefaultCheckerConfig())
	f.saveSettings(t, model.Settings{UserID: 1, AdvanceNotifySeconds: 300, AlsoNotifyAtDue: false})

	now := f.clock.Now()
	task := &model.Task{UserID: 1, Name: "storage"}
	task.Length = model.Duration{Hours: 1}
	start := now.Add(-61 * time.Minute)
	task.SetStart(start)
	task.AdvanceNotified = true
	f.createTask(t, task)

	f.checker.Tick(context.Background())

	if notes := f.notifier.all(); len(notes) != 0 {
		t.Fatalf("got %d notifications, want 0 (suppressed)", len(notes))
	}

	reloaded, err := f.taskRepo.FindByID(context.Background(), 1, task.ID)
	if err != nil {
		t.Fatalf("reload task: %v", err)
	}
	if !reloaded.Notified {
		t.Fatal("task must be marked notified silently")
	}
	if !reloaded.Done {
		t.Fatal("one-shot timer must close once due")
	}
}

func TestTickSkipsAwaitingAckTasks(t *testing.T) {
	f := newCheckerFixture(t, DefaultCheckerConfig())

	start := f.clock.Now().Add(-2 * time.Hour)
	task := dailyTask(1, start)
	task.AwaitingAck = true
	f.createTask(t, task)

	f.checker.Tick(context.Background())

	if notes := f.notifier.all(); len(notes) != 0 {
		t.Fatalf("paused task produced %d notifications", len(notes))
	}
}

func TestTickPurgesExpiredPendingDeletes(t *testing.T) {
	f := newCheckerFixture(t, DefaultCheckerConfig())

	task := dailyTask(1, f.clock.Now().Add(time.Hour))
	task.MarkPendingDelete(f.clock.Now().Add(-5 * time.Second))
	f.createTask(t, task)

	f.checker.Tick(context.Background())

	_, err := f.taskRepo.FindByID(context.Background(), 1, task.ID)
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record gone, got err=%v", err)
	}
}

func TestTickKeepsFreshPendingDeletes(t *testing.T) {
	f := newCheckerFixture(t, DefaultCheckerConfig())

	task := dailyTask(1, f.clock.Now().Add(time.Hour))
	task.MarkPendingDelete(f.clock.Now().Add(-time.Second))
	f.createTask(t, task)

	f.checker.Tick(context.Background())

	if _, err := f.taskRepo.FindByID(context.Background(), 1, task.ID); err != nil {
		t.Fatalf("task inside grace window must survive: %v", err)
	}
}

func TestTickDelayAdaptsAndClamps(t *testing.T) {
	cfg := CheckerConfig{
		MinInterval: time.Second,
		MaxInterval: time.Minute,
		Guard:       2 * time.Second,
	}

	t.Run("no pending events sleeps max", func(t *testing.T) {
		f := newCheckerFixture(t, cfg)
		if got := f.checker.Tick(context.Background()); got != time.Minute {
			t.Fatalf("delay = %v, want max interval", got)
		}
	})

	t.Run("near finish wakes guard early", func(t *testing.T) {
		f := newCheckerFixture(t, cfg)
		start := f.clock.Now().Add(-time.Hour).Add(10 * time.Second)
		f.createTask(t, dailyTask(1, start))
		if got := f.checker.Tick(context.Background()); got != 8*time.Second {
			t.Fatalf("delay = %v, want 8s (10s out minus 2s guard)", got)
		}
	})

	t.Run("imminent finish clamps to min", func(t *testing.T) {
		f := newCheckerFixture(t, cfg)
		start := f.clock.Now().Add(-time.Hour).Add(time.Second)
		f.createTask(t, dailyTask(1, start))
		if got := f.checker.Tick(context.Background()); got != time.Second {
			t.Fatalf("delay = %v, want min interval", got)
		}
	})

	t.Run("distant finish clamps to max", func(t *testing.T) {
		f := newCheckerFixture(t, cfg)
		start := f.clock.Now().Add(-time.Hour).Add(48 * time.Hour)
		f.createTask(t, dailyTask(1, start))
		if got := f.checker.Tick(context.Background()); got != time.Minute {
			t.Fatalf("delay = %v, want max interval", got)
		}
	})
}

// A tick after a long stall (system sleep) still processes everything that
// came due in between, because checks use absolute instants.
func TestTickSelfHealsAfterStall(t *testing.T) {
	f := newCheckerFixture(t, DefaultCheckerConfig())
	start := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	task := dailyTask(1, start)
	f.createTask(t, task)

	f.clock.Set(time.Date(2025, 1, 1, 16, 0, 0, 0, time.UTC))
	f.checker.Tick(context.Background())

	notes := f.notifier.all()
	if len(notes) != 1 {
		t.Fatalf("got %d notifications after stall, want 1", len(notes))
	}
}
