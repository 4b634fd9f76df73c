package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/resolveco/resolveco/internal/cache"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the on-disk HTTP and LLM judge caches",
	}
	cmd.AddCommand(newCacheGCCommand())
	cmd.AddCommand(newCacheClearCommand())
	return cmd
}

func newCacheGCCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Purge expired cache entries and enforce size/count limits from config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			c := cfg.Cache

			httpAged, err := cache.PurgeHTTPCacheByAge(c.HTTPDir, c.MaxAge)
			if err != nil {
				return fmt.Errorf("purge http cache by age: %w", err)
			}
			llmAged, err := cache.PurgeLLMCacheByAge(c.LLMDir, c.MaxAge)
			if err != nil {
				return fmt.Errorf("purge llm cache by age: %w", err)
			}
			httpEvicted, err := cache.EnforceHTTPCacheLimits(c.HTTPDir, c.HTTPMaxBytes, c.HTTPMaxCount)
			if err != nil {
				return fmt.Errorf("enforce http cache limits: %w", err)
			}
			llmEvicted, err := cache.EnforceLLMCacheLimits(c.LLMDir, c.LLMMaxBytes, c.LLMMaxCount)
			if err != nil {
				return fmt.Errorf("enforce llm cache limits: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "http cache: %d expired, %d evicted over limit\n", httpAged, httpEvicted)
			fmt.Fprintf(cmd.OutOrStdout(), "llm cache: %d expired, %d evicted over limit\n", llmAged, llmEvicted)
			return nil
		},
	}
}

func newCacheClearCommand() *cobra.Command {
	var which string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove an entire cache directory and recreate it empty",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			var dir string
			switch which {
			case "http":
				dir = cfg.Cache.HTTPDir
			case "llm":
				dir = cfg.Cache.LLMDir
			default:
				return fmt.Errorf("%w (--which must be \"http\" or \"llm\", got %q)", errConfig, which)
			}
			if err := cache.ClearDir(dir); err != nil {
				return fmt.Errorf("clear %s cache: %w", which, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s cache at %s\n", which, dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&which, "which", "http", `which cache to clear: "http" or "llm"`)
	return cmd
}
