package service

import (
	"context"
	"log"
	"time"

	"upgrade-tracker/internal/model"
	"upgrade-tracker/internal/repository"
)

// Clock abstracts time so checker behavior is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Notifier delivers alerts to a user. Fire-and-forget: the checker never
// retries and never fails a tick over a delivery error.
type Notifier interface {
	Notify(userID uint, title, body string)
}

// CheckerConfig bounds the adaptive polling interval.
type CheckerConfig struct {
	// MinInterval is the fastest the checker may poll.
	MinInterval time.Duration
	// MaxInterval bounds the worst-case notification latency.
	MaxInterval time.Duration
	// Guard wakes the checker slightly before the nearest instant to
	// absorb timer jitter.
	Guard time.Duration
}

// DefaultCheckerConfig polls between one and five seconds with a two-second
// guard.
func DefaultCheckerConfig() CheckerConfig {
	return CheckerConfig{
		MinInterval: time.Second,
		MaxInterval: 5 * time.Second,
		Guard:       2 * time.Second,
	}
}

func (c CheckerConfig) normalized() CheckerConfig {
	d := DefaultCheckerConfig()
	if c.MinInterval <= 0 {
		c.MinInterval = d.MinInterval
	}
	if c.MaxInterval < c.MinInterval {
		c.MaxInterval = c.MinInterval
	}
	if c.Guard < 0 {
		c.Guard = 0
	}
	return c
}

// CheckerService drives all timers from a single adaptive timer. A tick
// scans every task, fires advance and due alerts, advances recurring timers,
// sweeps purgeable records and derives the next wake-up delay. Ticks are
// never concurrent: the loop waits for one tick to finish before arming the
// timer again, and every decision is made against absolute instants so a
// stalled host (system sleep) heals itself on the next tick.
type CheckerService struct {
	taskRepo     *repository.TaskRepository
	settingsRepo *repository.SettingsRepository
	notifier     Notifier
	clock        Clock
	cfg          CheckerConfig
}

func NewCheckerService(taskRepo *repository.TaskRepository, settingsRepo *repository.SettingsRepository, notifier Notifier, clock Clock, cfg CheckerConfig) *CheckerService {
	if clock == nil {
		clock = SystemClock()
	}
	return &CheckerService{
		taskRepo:     taskRepo,
		settingsRepo: settingsRepo,
		notifier:     notifier,
		clock:        clock,
		cfg:          cfg.normalized(),
	}
}

// Run ticks until ctx is cancelled.
func (s *CheckerService) Run(ctx context.Context) {
	timer := time.NewTimer(s.cfg.MinInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		delay := s.Tick(ctx)
		timer.Reset(delay)
	}
}

// Tick performs one scan and returns the delay until the next one.
func (s *CheckerService) Tick(ctx context.Context) time.Duration {
	now := s.clock.Now()

	tasks, err := s.taskRepo.ListAll(ctx)
	if err != nil {
		log.Printf("checker: list tasks: %v", err)
		return s.cfg.MaxInterval
	}

	settings := make(map[uint]model.Settings)
	lookup := func(userID uint) model.Settings {
		if st, ok := settings[userID]; ok {
			return st
		}
		st, err := s.settingsRepo.GetOrCreate(ctx, userID)
		if err != nil {
			log.Printf("checker: settings for user %d: %v", userID, err)
			st = model.DefaultSettings(userID)
		}
		settings[userID] = st
		return st
	}

	remaining := tasks[:0]
	for i := range tasks {
		task := &tasks[i]
		st := lookup(task.UserID)

		if st.PurgePolicy().ShouldPurge(*task, now, false) {
			if err := s.taskRepo.Delete(ctx, task.UserID, task.ID); err != nil {
				log.Printf("checker: purge task %d: %v", task.ID, err)
			}
			continue
		}
		remaining = append(remaining, *task)
		if task.PendingDelete || task.Done || task.AwaitingAck || !task.HasFinish() {
			continue
		}

		if s.checkTask(task, st, now) {
			if err := s.taskRepo.Save(ctx, task); err != nil {
				log.Printf("checker: save task %d: %v", task.ID, err)
			}
			remaining[len(remaining)-1] = *task
		}
	}

	return s.nextDelay(remaining, settings, now)
}

// checkTask applies the advance and due conditions to one task and reports
// whether it was mutated.
func (s *CheckerService) checkTask(task *model.Task, st model.Settings, now time.Time) bool {
	changed := false

	lead := st.AdvanceLead()
	if lead > 0 && !task.AdvanceNotified && task.FinishAt.After(now) && !task.FinishAt.Add(-lead).After(now) {
		s.notify(task, "Upgrade almost done", advanceBody(task, now))
		task.AdvanceNotified = true
		changed = true
	}

	if !task.FinishAt.After(now) && !task.Notified {
		if !st.AlsoNotifyAtDue && task.AdvanceNotified {
			// The advance alert already covered this occurrence.
			task.Notified = true
		} else {
			s.notify(task, "Upgrade finished", dueBody(task))
			task.Notified = true
		}
		changed = true

		if task.Repeat.IsRepeating() {
			switch task.AdvanceRecurrence() {
			case model.AdvancePaused:
				s.notify(task, "Waiting for confirmation", ackBody(task))
			case model.AdvanceExpired:
				log.Printf("[info] timer %d reached its end time", task.ID)
			}
		} else {
			task.MarkDone(now)
		}
	}

	return changed
}

// nextDelay finds the nearest unfired instant across all tasks, backs off by
// the guard and clamps the result into [MinInterval, MaxInterval].
func (s *CheckerService) nextDelay(tasks []model.Task, settings map[uint]model.Settings, now time.Time) time.Duration {
	var nearest time.Time

	consider := func(at time.Time) {
		if nearest.IsZero() || at.Before(nearest) {
			nearest = at
		}
	}

	for i := range tasks {
		task := &tasks[i]
		if task.PendingDelete || task.Done || task.AwaitingAck || task.Expired || !task.HasFinish() {
			continue
		}
		st, ok := settings[task.UserID]
		if !ok {
			st = model.DefaultSettings(task.UserID)
		}

		if lead := st.AdvanceLead(); lead > 0 && !task.AdvanceNotified {
			consider(task.FinishAt.Add(-lead))
		}
		if !task.Notified {
			if !st.AlsoNotifyAtDue && task.AdvanceNotified {
				// Due popup is suppressed; the max clamp bounds how
				// late the silent bookkeeping can run.
				continue
			}
			consider(task.FinishAt)
		}
	}

	if nearest.IsZero() {
		return s.cfg.MaxInterval
	}

	delay := nearest.Sub(now) - s.cfg.Guard
	if delay < s.cfg.MinInterval {
		return s.cfg.MinInterval
	}
	if delay > s.cfg.MaxInterval {
		return s.cfg.MaxInterval
	}
	return delay
}

func (s *CheckerService) notify(task *model.Task, title, body string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(task.UserID, title, body)
}

func advanceBody(task *model.Task, now time.Time) string {
	left := task.FinishAt.Sub(now).Round(time.Second)
	return task.Name + " finishes in " + left.String()
}

func dueBody(task *model.Task) string {
	return task.Name + " is ready"
}

func ackBody(task *model.Task) string {
	return task.Name + " is paused until you confirm it with /done"
}
