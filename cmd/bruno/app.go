package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/bruno/internal/ability"
	"github.com/zulandar/bruno/internal/agent"
	"github.com/zulandar/bruno/internal/chat"
	"github.com/zulandar/bruno/internal/config"
	"github.com/zulandar/bruno/internal/db"
	"github.com/zulandar/bruno/internal/llm"
	"github.com/zulandar/bruno/internal/logging"
	"github.com/zulandar/bruno/internal/memory"
	"github.com/zulandar/bruno/internal/schedule"
	"github.com/zulandar/bruno/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// pruneSpec is how often idle sessions are expired.
const pruneSpec = "@every 1m"

// app holds the components shared by the commands that answer messages.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *gorm.DB
	store   *store.Store
	memory  *memory.Manager
	llm     llm.Client
	agent   *agent.Agent
	timers  *ability.TimerStore
	service *chat.Service
}

// loadConfig reads the --config flag and loads the configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrEnv(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newApp connects the database, migrates it and wires the agent with its
// abilities.
func newApp(cfg *config.Config) (*app, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		closeDB(gormDB)
		return nil, err
	}

	st, err := store.New(store.Opts{DB: gormDB})
	if err != nil {
		closeDB(gormDB)
		return nil, err
	}
	mem := memory.New(memory.Opts{
		Backend:    st.Log(),
		SessionTTL: time.Duration(cfg.Session.TTLMinutes) * time.Minute,
		Logger:     logger,
	})

	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		closeDB(gormDB)
		return nil, err
	}

	timers := ability.NewTimerStore(gormDB)
	timer, err := ability.NewTimer(ability.TimerOpts{Store: timers, LLM: client, Logger: logger})
	if err != nil {
		closeDB(gormDB)
		return nil, err
	}
	notes, err := ability.NewNotes(ability.NotesOpts{Store: ability.NewNoteStore(gormDB), Logger: logger})
	if err != nil {
		closeDB(gormDB)
		return nil, err
	}

	ag, err := agent.New(agent.Opts{
		Config:    cfg.Agent,
		LLM:       client,
		Memory:    mem,
		Abilities: []ability.Ability{timer, notes},
		Logger:    logger,
	})
	if err != nil {
		closeDB(gormDB)
		return nil, err
	}
	ag.Initialize()

	svc, err := chat.NewService(chat.ServiceOpts{Store: st, Memory: mem, Dispatcher: ag, Logger: logger})
	if err != nil {
		closeDB(gormDB)
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      gormDB,
		store:   st,
		memory:  mem,
		llm:     client,
		agent:   ag,
		timers:  timers,
		service: svc,
	}, nil
}

// jobs returns the background jobs: the timer sweep and session pruning.
// A nil notifier still completes timers, it only skips the messages.
func (a *app) jobs(notifier ability.Notifier) ([]schedule.Job, error) {
	sweeper, err := ability.NewSweeper(ability.SweeperOpts{
		Store:    a.timers,
		Notifier: notifier,
		Warning:  time.Duration(a.cfg.Timers.WarningMinutes) * time.Minute,
		Logger:   a.logger,
	})
	if err != nil {
		return nil, err
	}
	return []schedule.Job{
		{
			Name: "timer-sweep",
			Spec: a.cfg.Timers.SweepCron,
			Run: func(ctx context.Context) error {
				_, err := sweeper.Sweep(ctx)
				return err
			},
		},
		{
			Name: "session-prune",
			Spec: pruneSpec,
			Run: func(ctx context.Context) error {
				if n := a.memory.PruneExpired(); n > 0 {
					a.logger.Debug("pruned idle sessions", zap.Int("count", n))
				}
				return nil
			},
		},
	}, nil
}

// Close shuts the agent down and releases the database.
func (a *app) Close() {
	a.agent.Shutdown()
	closeDB(a.db)
	a.logger.Sync()
}

func closeDB(gormDB *gorm.DB) {
	if sqlDB, err := gormDB.DB(); err == nil {
		sqlDB.Close()
	}
}
