package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/bruno/internal/llm"
)

func newLLMCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "llm",
		Short: "Inspect the model backend",
	}

	cmd.AddCommand(newLLMModelsCmd())
	cmd.AddCommand(newLLMPingCmd())
	return cmd
}

func newLLMModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models the backend has available",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := llm.NewClient(cfg.LLM)
			if err != nil {
				return err
			}
			models, err := client.ListModels(cmd.Context())
			if err != nil {
				return fmt.Errorf("list models: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, m := range models {
				marker := " "
				if m == cfg.LLM.Model {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\n", marker, m)
			}
			return nil
		},
	}
}

func newLLMPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the model backend is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := llm.NewClient(cfg.LLM)
			if err != nil {
				return err
			}
			if !client.CheckConnection(cmd.Context()) {
				return fmt.Errorf("llm: %s unreachable at %s", cfg.LLM.Provider, cfg.LLM.BaseURL)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s reachable at %s (model %s)\n", cfg.LLM.Provider, cfg.LLM.BaseURL, cfg.LLM.Model)
			return nil
		},
	}
}
