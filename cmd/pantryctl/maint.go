package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pantrynav/pantrynav/internal/auth"
	"github.com/pantrynav/pantrynav/internal/cache"
	"github.com/pantrynav/pantrynav/internal/config"
)

func openCache(cmd *cobra.Command) (*cache.Cache, *config.CacheToolConfig, error) {
	cfg, err := config.LoadCacheTool()
	if err != nil {
		return nil, nil, err
	}
	c, err := cache.New(cmd.Context(), cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return c, cfg, nil
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the typed Redis cache",
	}

	stats := &cobra.Command{
		Use:   "stats [TYPE]",
		Short: "Show key counts and settings per cache type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cfg, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			typed := cache.NewTyped(c, cache.TypesFromConfig(cfg.Cache), newLogger(cfg.LogConfig))
			if len(args) == 1 {
				s, err := typed.Stats(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), s)
			}
			all, err := typed.AllStats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), all)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear TYPE",
		Short: "Delete every entry of a cache type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cfg, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			typed := cache.NewTyped(c, cache.TypesFromConfig(cfg.Cache), newLogger(cfg.LogConfig))
			n, err := typed.Clear(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"type": args[0], "deleted": n})
		},
	}

	cmd.AddCommand(stats, clearCmd)
	return cmd
}

func newRateLimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Inspect and reset rate limit counters",
	}

	withLimiter := func(fn func(cmd *cobra.Command, l *cache.RateLimiter, service, client string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			c, cfg, err := openCache(cmd)
			if err != nil {
				return err
			}
			defer c.Close()
			l := cache.NewRateLimiter(c, cache.PoliciesFromConfig(cfg.RateLimits), newLogger(cfg.LogConfig))
			return fn(cmd, l, args[0], args[1])
		}
	}

	check := &cobra.Command{
		Use:   "check SERVICE CLIENT",
		Short: "Count one request against the limit",
		Args:  cobra.ExactArgs(2),
		RunE: withLimiter(func(cmd *cobra.Command, l *cache.RateLimiter, service, client string) error {
			res, err := l.CheckLimit(cmd.Context(), service, client)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"allowed":     res.Allowed,
				"remaining":   res.Remaining,
				"reset_at":    res.ResetAt,
				"retry_after": int(res.RetryAfter.Seconds()),
			})
		}),
	}

	info := &cobra.Command{
		Use:   "info SERVICE CLIENT",
		Short: "Show the current counters of a client",
		Args:  cobra.ExactArgs(2),
		RunE: withLimiter(func(cmd *cobra.Command, l *cache.RateLimiter, service, client string) error {
			li, err := l.LimitInfo(cmd.Context(), service, client)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), li)
		}),
	}

	reset := &cobra.Command{
		Use:   "reset SERVICE CLIENT",
		Short: "Clear the counters of a client",
		Args:  cobra.ExactArgs(2),
		RunE: withLimiter(func(cmd *cobra.Command, l *cache.RateLimiter, service, client string) error {
			return l.ResetLimit(cmd.Context(), service, client)
		}),
	}

	cmd.AddCommand(check, info, reset)
	return cmd
}

func newAdminTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "admin-token",
		Short: "Generate an admin token and its ADMIN_TOKEN_HASH",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := auth.GenerateAdminToken()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Token (shown once): %s\n", tok.Plaintext)
			fmt.Fprintf(out, "Token id:           %s\n", tok.ID)
			fmt.Fprintf(out, "ADMIN_TOKEN_HASH=%s\n", tok.Hash)
			return nil
		},
	}
}
