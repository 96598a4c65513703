package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"upgrade-tracker/internal/model"
	"upgrade-tracker/internal/repository"
)

// ReportService builds human-readable summaries of upcoming finishes.
type ReportService struct {
	taskRepo    *repository.TaskRepository
	accountRepo *repository.AccountRepository
}

func NewReportService(taskRepo *repository.TaskRepository, accountRepo *repository.AccountRepository) *ReportService {
	return &ReportService{taskRepo: taskRepo, accountRepo: accountRepo}
}

// Summary lists a user's running, due and paused timers grouped by account,
// nearest finish first.
func (s *ReportService) Summary(ctx context.Context, user model.User, now time.Time) (string, error) {
	tasks, err := s.taskRepo.ListByUser(ctx, user.ID)
	if err != nil {
		return "", err
	}

	accounts, err := s.accountRepo.ListByUser(ctx, user.ID)
	if err != nil {
		return "", err
	}
	accountNames := make(map[uint]string)
	for _, acc := range accounts {
		accountNames[acc.ID] = acc.Name
	}

	var running, finished, paused []model.Task
	for _, task := range tasks {
		if task.PendingDelete {
			continue
		}
		switch {
		case task.AwaitingAck:
			paused = append(paused, task)
		case task.Done || (task.HasFinish() && !task.FinishAt.After(now) && task.Notified):
			finished = append(finished, task)
		default:
			running = append(running, task)
		}
	}
	model.SortByFinish(running)

	var builder strings.Builder
	builder.WriteString("📋 <b>Upgrade report</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("2006-01-02 15:04")))

	builder.WriteString("⏳ <b>Running</b>\n")
	if len(running) == 0 {
		builder.WriteString("— nothing in progress\n")
	} else {
		for _, task := range running {
			builder.WriteString(formatRunning(task, accountNames, now))
		}
	}

	if len(paused) > 0 {
		builder.WriteString("\n✋ <b>Waiting for confirmation</b>\n")
		for _, task := range paused {
			builder.WriteString(formatLine(task, accountNames))
		}
	}

	if len(finished) > 0 {
		builder.WriteString("\n✅ <b>Finished</b>\n")
		for _, task := range finished {
			builder.WriteString(formatLine(task, accountNames))
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

func formatRunning(task model.Task, accountNames map[uint]string, now time.Time) string {
	var sb strings.Builder

	icon := "🟢"
	if task.HasFinish() {
		switch {
		case !task.FinishAt.After(now):
			icon = "⚠️"
		case task.FinishAt.Sub(now) <= time.Hour:
			icon = "⏳"
		}
	}

	sb.WriteString(fmt.Sprintf("%s %s", icon, html.EscapeString(strings.TrimSpace(task.Name))))
	writeAccount(&sb, task, accountNames)

	if task.HasFinish() {
		finish := task.FinishAt.In(now.Location())
		if now.After(finish) {
			sb.WriteString(fmt.Sprintf("\n   ⏰ was due %s", finish.Format("2006-01-02 15:04")))
		} else {
			sb.WriteString(fmt.Sprintf("\n   ⏰ done %s · in %s", finish.Format("2006-01-02 15:04"), finish.Sub(now).Round(time.Minute)))
		}
	} else {
		sb.WriteString("\n   ⏰ not started yet")
	}

	if task.Repeat.IsRepeating() {
		sb.WriteString(fmt.Sprintf("\n   ♻️ repeats %s", describeRepeat(task.Repeat)))
	}

	sb.WriteByte('\n')
	return sb.String()
}

func formatLine(task model.Task, accountNames map[uint]string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("• %s", html.EscapeString(strings.TrimSpace(task.Name))))
	writeAccount(&sb, task, accountNames)
	sb.WriteByte('\n')
	return sb.String()
}

func writeAccount(sb *strings.Builder, task model.Task, accountNames map[uint]string) {
	if task.AccountID == nil {
		return
	}
	if name, ok := accountNames[*task.AccountID]; ok {
		trimmed := strings.TrimSpace(name)
		if trimmed != "" {
			sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(trimmed)))
		}
	}
}

func describeRepeat(rule model.RecurrenceRule) string {
	var base string
	switch rule.Mode {
	case model.RepeatDaily:
		base = "daily"
	case model.RepeatWeekly:
		base = "weekly"
	case model.RepeatMonthly:
		base = "monthly"
	case model.RepeatYearly:
		base = "yearly"
	case model.RepeatCustom:
		base = "every " + rule.Custom.String()
	default:
		return "never"
	}
	if rule.HasSkip() {
		base += fmt.Sprintf(", %d on / %d off", rule.RemindEvery, rule.SkipCount)
	}
	if rule.EndAt != nil {
		base += " until " + rule.EndAt.Format("2006-01-02")
	}
	return base
}
