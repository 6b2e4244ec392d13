package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/bruno/internal/api"
	"github.com/zulandar/bruno/internal/schedule"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serves the direct-caller HTTP API and runs the timer sweeper. Timers
set through the API complete on schedule but have no chat channel to
notify.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, port)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides api.port)")
	return cmd
}

func runServe(cmd *cobra.Command, port int) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.API.Port = port
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	jobs, err := a.jobs(nil)
	if err != nil {
		return err
	}
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

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return schedule.Run(gctx, a.logger, jobs...) })

	fmt.Fprintf(cmd.OutOrStdout(), "Bruno API running at http://localhost:%d/api\n", cfg.API.Port)
	return g.Wait()
}
