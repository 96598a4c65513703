package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"upgrade-tracker/internal/bot"
	"upgrade-tracker/internal/config"
	"upgrade-tracker/internal/repository"
	"upgrade-tracker/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	clock := service.SystemClock()
	accountSvc := service.NewAccountService(accountRepo)
	taskSvc := service.NewTaskService(taskRepo, accountRepo, clock)
	reportSvc := service.NewReportService(taskRepo, accountRepo)

	telegramBot, err := bot.New(cfg.TelegramToken, userRepo, settingsRepo, accountSvc, taskSvc, reportSvc, &cfg)
	if err != nil {
		log.Fatalf("bot: %v", err)
	}

	checker := service.NewCheckerService(taskRepo, settingsRepo, telegramBot, clock, service.CheckerConfig{
		MinInterval: cfg.MinCheckInterval,
		MaxInterval: cfg.MaxCheckInterval,
		Guard:       cfg.CheckGuard,
	})
	go checker.Run(ctx)

	scheduler := service.NewSchedulerService(time.Local)
	reportJob := func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := telegramBot.SendDailyReports(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("report: %v", err)
		}
	}
	if cfg.ReportTime != "" {
		if _, err := scheduler.ScheduleDaily(cfg.ReportTime, reportJob); err != nil {
			log.Fatalf("schedule daily report: %v", err)
		}
	} else if _, err := scheduler.ScheduleInterval(cfg.ReportInterval, reportJob); err != nil {
		log.Fatalf("schedule reports: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	log.Println("Upgrade tracker started.")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("bot stopped with error: %v", err)
	}
	log.Println("Shutdown complete.")
}
