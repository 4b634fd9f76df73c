package main

import (
	"fmt"

	"github.com/spf13/cobra"
	openai "github.com/sashabaranov/go-openai"
)

func newToolsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the contact-discovery tools this deployment's adapter credentials expose to the LLM-selection mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			pipe, err := buildPipeline(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			for _, meta := range pipe.Tools.Catalog() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-8s %v\n", meta.StableName, meta.SemVer, meta.Capabilities)
			}
			return nil
		},
	}
	cmd.AddCommand(newToolsExploreCommand())
	return cmd
}

// newToolsExploreCommand lets an operator hand the model a free-form
// query and watch it pick and call adapters on its own, instead of
// driving them through C6/C7's fixed step order. Useful for checking
// what a new adapter or prompt change does before wiring it into a plan.
func newToolsExploreCommand() *cobra.Command {
	var query string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Run the model-directed tool loop over a free-form query",
		RunE: func(cmd *cobra.Command, args []string) error {
			if query == "" {
				return fmt.Errorf("%w (--query is required)", errConfig)
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			pipe, err := buildPipeline(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			pipe.Explorer.DryRun = dryRun

			final, _, err := pipe.Explorer.Run(cmd.Context(), openai.ChatCompletionRequest{
				Model: cfg.LLM.Model,
			}, "Use the available tools to resolve the business described below. Prefer exact verification over inference.", query, nil)
			if err != nil {
				return fmt.Errorf("explore: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), final)
			return nil
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "free-form description of the business to resolve")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "record intended tool calls without executing them")
	return cmd
}
