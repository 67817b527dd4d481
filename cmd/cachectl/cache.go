package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"playground-gateway/internal/app"
	"playground-gateway/internal/config"
	"playground-gateway/internal/respcache"
	"playground-gateway/pkg/logging"
)

// session holds an opened store and the cache loaded from it.
type session struct {
	cache *respcache.ResponseCache
	close func() error
}

func openSession(ctx context.Context, configPath string) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if level == "" {
		level = "warn"
	}
	logger, err := logging.NewLogger(logging.Options{Env: cfg.Env, Level: level})
	if err != nil {
		return nil, err
	}

	store, closeStore, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &session{
		cache: app.NewResponseCache(ctx, cfg, store, logger),
		close: func() error {
			_ = logger.Sync()
			return closeStore()
		},
	}, nil
}

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer func() { _ = s.close() }()

			stats := s.cache.Stats()
			oldest := "-"
			if stats.OldestEntry != nil {
				oldest = stats.OldestEntry.Format(time.RFC3339)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Entries: %d\nOldest:  %s\n", stats.Size, oldest)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List cached entries, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer func() { _ = s.close() }()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "HASH\tPROVIDER\tMODEL\tCREATED\tPROMPT")
			for _, e := range s.cache.Entries() {
				created := time.UnixMilli(e.Timestamp).UTC().Format(time.RFC3339)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Hash, e.Provider, e.ModelName, created, truncate(e.Prompt, 60))
			}
			return tw.Flush()
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear all cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer func() { _ = s.close() }()

			if err := s.cache.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All cache entries cleared.")
			return nil
		},
	}

	var provider, model string
	lookupCmd := &cobra.Command{
		Use:   "lookup <prompt>",
		Short: "Look up a cached response for a single-message prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer func() { _ = s.close() }()

			prompt := args[0]
			msgs := []respcache.Message{{Role: "user", Content: prompt}}
			hit, ok := s.cache.Lookup(cmd.Context(), prompt, msgs, provider, model)
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "miss")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s hit (score %.2f, hash %s)\n%s\n", hit.Kind, hit.Score, hit.Hash, hit.Response)
			return nil
		},
	}
	lookupCmd.Flags().StringVar(&provider, "provider", "openai", "provider the entry was cached under")
	lookupCmd.Flags().StringVar(&model, "model", "gpt-4", "model the entry was cached under")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.AddCommand(statsCmd, listCmd, clearCmd, lookupCmd)
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
