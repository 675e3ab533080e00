package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"weekly-planner/internal/bot"
	"weekly-planner/internal/config"
	"weekly-planner/internal/repository"
	"weekly-planner/internal/service"
	pkgLog "weekly-planner/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	l := pkgLog.Init(pkgLog.ZapConfig{
		Level:        cfg.Logger.Level,
		Mode:         cfg.Logger.Mode,
		Encoding:     cfg.Logger.Encoding,
		ColorEnabled: cfg.Logger.ColorEnabled,
	})

	if err := run(ctx, cfg, l); err != nil {
		l.Errorf(ctx, "weeklyplanner: %v", err)
		os.Exit(1)
	}
	l.Info(ctx, "shutdown complete")
}

func run(ctx context.Context, cfg config.Config, l pkgLog.Logger) error {
	if err := cfg.RequireTelegram(); err != nil {
		return err
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	plannerSvc, err := service.NewPlannerService(db, service.PlannerOptions{
		SortPreferences: cfg.Planner.SortPreferences,
		RemoteTimeout:   cfg.Planner.RemoteTimeout,
		SessionTTL:      cfg.Bot.SessionTTL,
		SessionLimit:    cfg.Bot.SessionLimit,
	}, l)
	if err != nil {
		return fmt.Errorf("planner service: %w", err)
	}
	defer plannerSvc.Close()
	reminderSvc := service.NewReminderService(time.Local)

	telegramBot, err := bot.New(cfg, userRepo, plannerSvc, reminderSvc, l)
	if err != nil {
		return fmt.Errorf("bot: %w", err)
	}

	scheduler := service.NewSchedulerService(time.Local)
	job := func(name string, timeout time.Duration, fn func(ctx context.Context) error) func() {
		return func() {
			jobCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := fn(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				l.Warnf(jobCtx, "%s: %v", name, err)
			}
		}
	}
	if _, err := scheduler.ScheduleDaily(cfg.Schedule.DigestTime, job("daily digest", 5*time.Minute, telegramBot.SendDailyDigests)); err != nil {
		return fmt.Errorf("schedule digest: %w", err)
	}
	if _, err := scheduler.ScheduleWeekly(cfg.Schedule.ReviewDay, cfg.Schedule.ReviewTime, job("review reminder", 5*time.Minute, telegramBot.SendReviewReminders)); err != nil {
		return fmt.Errorf("schedule review reminder: %w", err)
	}
	if cfg.Schedule.SyncInterval > 0 {
		resync := func(ctx context.Context) error {
			telegramBot.ResyncAll(ctx)
			return nil
		}
		if _, err := scheduler.ScheduleInterval(cfg.Schedule.SyncInterval, job("resync", cfg.Schedule.SyncInterval, resync)); err != nil {
			return fmt.Errorf("schedule resync: %w", err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	l.Info(ctx, "weekly planner bot started")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("bot stopped: %w", err)
	}
	return nil
}
