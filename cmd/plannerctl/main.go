package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"weekly-planner/internal/config"
	"weekly-planner/internal/identity"
	"weekly-planner/internal/model"
	"weekly-planner/internal/planner"
	"weekly-planner/internal/repository"
	"weekly-planner/internal/week"
	pkgLog "weekly-planner/pkg/log"
)

var Version = "dev"

// app carries what every subcommand needs once the root has run.
type app struct {
	cfg        config.Config
	db         *gorm.DB
	l          pkgLog.Logger
	dbURL      string
	logLevel   string
	telegramID int64
	account    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	rootCmd := &cobra.Command{
		Use:               "plannerctl",
		Short:             "Inspect, export and import weekly planner data",
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) { a.close() },
	}
	rootCmd.PersistentFlags().StringVar(&a.dbURL, "db", "", "sqlite database path (default from config)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (default from config)")
	rootCmd.PersistentFlags().Int64Var(&a.telegramID, "telegram-id", 0, "account by Telegram user id")
	rootCmd.PersistentFlags().StringVar(&a.account, "account", "", "account by planner id")

	rootCmd.AddCommand(weeksCmd(a))
	rootCmd.AddCommand(exportCmd(a))
	rootCmd.AddCommand(importCmd(a))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "help" {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.dbURL != "" {
		cfg.DatabaseURL = a.dbURL
	}
	if a.logLevel != "" {
		cfg.Logger.Level = a.logLevel
	}
	a.cfg = cfg
	a.l = pkgLog.Init(pkgLog.ZapConfig{
		Level:        cfg.Logger.Level,
		Mode:         cfg.Logger.Mode,
		Encoding:     "console",
		ColorEnabled: cfg.Logger.ColorEnabled,
	})

	if a.telegramID == 0 && a.account == "" {
		return errors.New("one of --telegram-id or --account is required")
	}

	a.db, err = repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	return nil
}

func (a *app) close() {
	if a.db == nil {
		return
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}

// signIn starts the account lookup in the background. Store calls made
// before it finishes wait for it, up to the hydration timeout. A failed
// lookup resolves to nobody so those calls return at once.
func (a *app) signIn(ctx context.Context) *identity.Session {
	sess := identity.NewSession(a.cfg.Auth.HydrationTimeout)
	go func() {
		id, err := a.lookupAccount(ctx)
		if err != nil {
			a.l.Warnf(ctx, "sign in: %v", err)
		}
		sess.Resolve(id)
	}()
	return sess
}

func (a *app) lookupAccount(ctx context.Context) (string, error) {
	users := repository.NewUserRepository(a.db)
	var (
		u   *model.User
		err error
	)
	if a.account != "" {
		u, err = users.FindByID(ctx, a.account)
	} else {
		u, err = users.FindByTelegramID(ctx, a.telegramID)
	}
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

type storeSet struct {
	tasks    *repository.TaskRepository
	weeks    *repository.WeekRepository
	resolver *week.Resolver
}

func (a *app) stores(ctx context.Context) storeSet {
	ids := a.signIn(ctx)
	weeks := repository.NewWeekRepository(a.db, ids)
	return storeSet{
		tasks:    repository.NewTaskRepository(a.db, ids, a.l),
		weeks:    weeks,
		resolver: week.NewResolver(weeks, ids, week.NewCache(), a.l),
	}
}

func (a *app) planner(ctx context.Context) (*planner.Planner, error) {
	s := a.stores(ctx)
	return planner.New(s.tasks, s.weeks, s.resolver, a.l, planner.Options{
		BaseContext:   ctx,
		RemoteTimeout: a.cfg.Planner.RemoteTimeout,
		Now:           time.Now,
	})
}
