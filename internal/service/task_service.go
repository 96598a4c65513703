package service

import (
	"context"
	"fmt"
	"time"

	"upgrade-tracker/internal/model"
	"upgrade-tracker/internal/repository"
)

// TaskInput represents data required to create an upgrade timer.
type TaskInput struct {
	Name    string
	Account string
	StartAt *time.Time
	Length  model.Duration
	Repeat  model.RecurrenceRule
}

// TaskService wraps timer-related business logic.
type TaskService struct {
	taskRepo    *repository.TaskRepository
	accountRepo *repository.AccountRepository
	clock       Clock
}

func NewTaskService(taskRepo *repository.TaskRepository, accountRepo *repository.AccountRepository, clock Clock) *TaskService {
	if clock == nil {
		clock = SystemClock()
	}
	return &TaskService{taskRepo: taskRepo, accountRepo: accountRepo, clock: clock}
}

func (s *TaskService) CreateTask(ctx context.Context, user *model.User, input TaskInput) (*model.Task, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("name is required")
	}

	var accountID *uint
	if input.Account != "" {
		account, err := s.accountRepo.GetOrCreate(ctx, user.ID, input.Account)
		if err != nil {
			return nil, err
		}
		if account != nil {
			accountID = &account.ID
		}
	}

	task := model.Task{
		UserID:    user.ID,
		AccountID: accountID,
		Name:      input.Name,
	}
	task.SetRepeat(input.Repeat)
	task.Length = input.Length.Normalize()
	if input.StartAt != nil {
		task.SetStart(*input.StartAt)
	}

	if err := s.taskRepo.Create(ctx, &task); err != nil {
		return nil, err
	}

	return &task, nil
}

// ListVisible returns the user's timers sorted by due instant, with records
// past their purge windows filtered out.
func (s *TaskService) ListVisible(ctx context.Context, user *model.User, settings model.Settings) ([]model.Task, error) {
	tasks, err := s.taskRepo.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	policy := settings.PurgePolicy()
	visible := tasks[:0]
	for _, task := range tasks {
		if policy.ShouldPurge(task, now, false) {
			continue
		}
		visible = append(visible, task)
	}
	model.SortByFinish(visible)
	return visible, nil
}

func (s *TaskService) GetTask(ctx context.Context, user *model.User, taskID uint) (*model.Task, error) {
	return s.taskRepo.FindByID(ctx, user.ID, taskID)
}

// CompleteTask acknowledges a paused recurring timer or closes a one-shot
// one. Recurring timers that are not paused have nothing to complete.
func (s *TaskService) CompleteTask(ctx context.Context, user *model.User, taskID uint) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, user.ID, taskID)
	if err != nil {
		return nil, err
	}

	if task.AwaitingAck {
		task.Acknowledge()
	} else if !task.Repeat.IsRepeating() {
		task.MarkDone(s.clock.Now())
	}

	if err := s.taskRepo.Save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// RequestDelete marks a timer pending-delete, starting the undo window.
func (s *TaskService) RequestDelete(ctx context.Context, user *model.User, taskID uint) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, user.ID, taskID)
	if err != nil {
		return nil, err
	}
	task.MarkPendingDelete(s.clock.Now())
	if err := s.taskRepo.Save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// UndoDelete reverses a pending delete that is still inside its grace window.
func (s *TaskService) UndoDelete(ctx context.Context, user *model.User, taskID uint) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, user.ID, taskID)
	if err != nil {
		return nil, err
	}
	if !task.PendingDelete {
		return task, nil
	}
	task.UndoPendingDelete()
	if err := s.taskRepo.Save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteNow removes a timer immediately, skipping the grace window.
func (s *TaskService) DeleteNow(ctx context.Context, user *model.User, taskID uint) error {
	return s.taskRepo.Delete(ctx, user.ID, taskID)
}

// SetStart moves a timer's start instant. The due instant follows and the
// recurrence cycle resets.
func (s *TaskService) SetStart(ctx context.Context, user *model.User, taskID uint, start time.Time) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, user.ID, taskID)
	if err != nil {
		return nil, err
	}
	task.SetStart(start)
	if err := s.taskRepo.Save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// SetLength replaces a timer's duration.
func (s *TaskService) SetLength(ctx context.Context, user *model.User, taskID uint, length model.Duration) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, user.ID, taskID)
	if err != nil {
		return nil, err
	}
	task.SetLength(length)
	if err := s.taskRepo.Save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}
