package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/bruno/internal/api"
	"github.com/zulandar/bruno/internal/chat"
	"github.com/zulandar/bruno/internal/chat/discord"
	slackadapter "github.com/zulandar/bruno/internal/chat/slack"
	"github.com/zulandar/bruno/internal/config"
	"github.com/zulandar/bruno/internal/schedule"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newBotCmd() *cobra.Command {
	var withAPI bool

	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Run the chat-platform bot",
		Long: `Connects to the configured chat platform (Discord or Slack), answers
messages addressed to Bruno and delivers timer notifications. With --api the
HTTP API is served alongside.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd, withAPI)
		},
	}

	cmd.Flags().BoolVar(&withAPI, "api", false, "also serve the HTTP API")
	return cmd
}

func runBot(cmd *cobra.Command, withAPI bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireChat(); err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	adapter, err := createAdapter(cfg, a.logger)
	if err != nil {
		return err
	}
	bot, err := chat.NewBot(chat.BotOpts{
		Adapter:       adapter,
		Replier:       a.service,
		TriggerWord:   cfg.Chat.TriggerWord,
		Cooldown:      time.Duration(cfg.Chat.CooldownSec) * time.Second,
		MaxMessageLen: cfg.Chat.MaxMessageLen,
		Logger:        a.logger,
	})
	if err != nil {
		return err
	}
	notifier, err := chat.NewTimerNotifier(a.store, adapter)
	if err != nil {
		return err
	}
	jobs, err := a.jobs(notifier)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The bot ending (adapter closed) stops everything else.
		defer cancel()
		return bot.Run(gctx)
	})
	g.Go(func() error {
		return schedule.Run(gctx, a.logger, jobs...)
	})
	if withAPI {
		srv, err := api.New(api.ServerOpts{
			Conversations: a.service,
			Memory:        a.memory,
			Agent:         a.agent,
			Port:          cfg.API.Port,
			Logger:        a.logger,
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.Run(gctx) })
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Bruno bot running on %s (model %s)\n", cfg.Chat.Platform, cfg.LLM.Model)
	return g.Wait()
}

// createAdapter builds a platform adapter from the config.
func createAdapter(cfg *config.Config, logger *zap.Logger) (chat.Adapter, error) {
	switch cfg.Chat.Platform {
	case "discord":
		return discord.New(discord.AdapterOpts{
			BotToken: cfg.Chat.Discord.BotToken,
			GuildID:  cfg.Chat.Discord.ServerID,
			Logger:   logger,
		})
	case "slack":
		return slackadapter.New(slackadapter.AdapterOpts{
			AppToken:  cfg.Chat.Slack.AppToken,
			BotToken:  cfg.Chat.Slack.BotToken,
			ChannelID: cfg.Chat.Slack.Channel,
			Logger:    logger,
		})
	default:
		return nil, fmt.Errorf("chat: unsupported platform %q", cfg.Chat.Platform)
	}
}
