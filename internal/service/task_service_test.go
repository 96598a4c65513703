package service

import (
	"context"
	"testing"
	"time"

	"upgrade-tracker/internal/model"
	"upgrade-tracker/internal/repository"
)

type taskFixture struct {
	taskRepo    *repository.TaskRepository
	accountRepo *repository.AccountRepository
	clock       *fakeClock
	svc         *TaskService
	user        *model.User
}

func newTaskFixture(t *testing.T) *taskFixture {
	t.Helper()
	db := newTestDB(t)
	f := &taskFixture{
		taskRepo:    repository.NewTaskRepository(db),
		accountRepo: repository.NewAccountRepository(db),
		clock:       &fakeClock{now: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)},
	}
	f.svc = NewTaskService(f.taskRepo, f.accountRepo, f.clock)

	userRepo := repository.NewUserRepository(db)
	user, err := userRepo.UpsertFromTelegram(context.Background(), 42, "Test", "", "test")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	f.user = user
	return f
}

func TestCreateTaskComputesFinish(t *testing.T) {
	f := newTaskFixture(t)
	start := f.clock.Now()

	task, err := f.svc.CreateTask(context.Background(), f.user, TaskInput{
		Name:    "town hall",
		Account: "main",
		StartAt: &start,
		Length:  model.Duration{Days: 1, Hours: 6},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	want := start.AddDate(0, 0, 1).Add(6 * time.Hour)
	if !task.FinishAt.Equal(want) {
		t.Fatalf("FinishAt = %v, want %v", task.FinishAt, want)
	}
	if task.AccountID == nil {
		t.Fatal("account should have been created and linked")
	}

	accounts, err := f.accountRepo.ListByUser(context.Background(), f.user.ID)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Name != "main" {
		t.Fatalf("unexpected accounts %+v", accounts)
	}
}

func TestCreateTaskRequiresName(t *testing.T) {
	f := newTaskFixture(t)
	if _, err := f.svc.CreateTask(context.Background(), f.user, TaskInput{}); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestCompleteTaskAcknowledgesPausedTimer(t *testing.T) {
	f := newTaskFixture(t)
	start := f.clock.Now().Add(-2 * time.Hour)

	task, err := f.svc.CreateTask(context.Background(), f.user, TaskInput{
		Name:    "lab",
		StartAt: &start,
		Length:  model.Duration{Hours: 1},
		Repeat:  model.NewPresetRule(model.RepeatDaily).WithPauseUntilAck(true),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	task.AdvanceRecurrence()
	if !task.AwaitingAck {
		t.Fatal("setup: task should be paused")
	}
	if err := f.taskRepo.Save(context.Background(), task); err != nil {
		t.Fatalf("save: %v", err)
	}

	done, err := f.svc.CompleteTask(context.Background(), f.user, task.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.AwaitingAck {
		t.Fatal("complete must acknowledge the paused timer")
	}
	if done.Done {
		t.Fatal("a repeating timer must not close on acknowledgement")
	}
	if done.OccurrenceCursor != 1 {
		t.Fatalf("cursor = %d, want 1 kept across acknowledgement", done.OccurrenceCursor)
	}
}

func TestCompleteTaskClosesOneShot(t *testing.T) {
	f := newTaskFixture(t)
	start := f.clock.Now().Add(-2 * time.Hour)

	task, err := f.svc.CreateTask(context.Background(), f.user, TaskInput{
		Name:    "wall",
		StartAt: &start,
		Length:  model.Duration{Hours: 1},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	done, err := f.svc.CompleteTask(context.Background(), f.user, task.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !done.Done || done.CompletedAt == nil {
		t.Fatal("one-shot timer must close with a completion time")
	}
}

func TestDeleteUndoRoundTrip(t *testing.T) {
	f := newTaskFixture(t)
	start := f.clock.Now()

	task, err := f.svc.CreateTask(context.Background(), f.user, TaskInput{
		Name:    "mine",
		StartAt: &start,
		Length:  model.Duration{Hours: 1},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	marked, err := f.svc.RequestDelete(context.Background(), f.user, task.ID)
	if err != nil {
		t.Fatalf("request delete: %v", err)
	}
	if !marked.PendingDelete || marked.DeleteMarkedAt == nil {
		t.Fatal("delete request must mark the task")
	}

	restored, err := f.svc.UndoDelete(context.Background(), f.user, task.ID)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if restored.PendingDelete || restored.DeleteMarkedAt != nil {
		t.Fatal("undo must clear the pending delete mark")
	}
}

func TestListVisibleSortsAndFilters(t *testing.T) {
	f := newTaskFixture(t)
	now := f.clock.Now()

	mk := func(name string, finishIn time.Duration) *model.Task {
		start := now.Add(finishIn - time.Hour)
		task, err := f.svc.CreateTask(context.Background(), f.user, TaskInput{
			Name:    name,
			StartAt: &start,
			Length:  model.Duration{Hours: 1},
		})
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		return task
	}

	mk("late", 3*time.Hour)
	mk("early", time.Hour)
	stale := mk("stale", 2*time.Hour)

	// Push one task past its pending-delete grace window.
	past := now.Add(-10 * time.Second)
	stale.MarkPendingDelete(past)
	if err := f.taskRepo.Save(context.Background(), stale); err != nil {
		t.Fatalf("save: %v", err)
	}

	visible, err := f.svc.ListVisible(context.Background(), f.user, model.DefaultSettings(f.user.ID))
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(visible) != 2 {
		t.Fatalf("got %d visible tasks, want 2", len(visible))
	}
	if visible[0].Name != "early" || visible[1].Name != "late" {
		t.Fatalf("order = %q, %q; want early, late", visible[0].Name, visible[1].Name)
	}
}
