package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pantrynav/pantrynav/internal/config"
	"github.com/pantrynav/pantrynav/internal/logging"
	"github.com/pantrynav/pantrynav/internal/model"
	"github.com/pantrynav/pantrynav/internal/repository"
)

func newSetupDBCmd() *cobra.Command {
	var down, seed bool

	cmd := &cobra.Command{
		Use:   "setup-db",
		Short: "Create the database if missing and apply the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.LoadDBTool()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogConfig)
			redacted := logging.RedactURL(cfg.DatabaseURL)

			created, err := repository.EnsureDatabase(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("%s", logging.SanitizeError(err, cfg.DatabaseURL))
			}
			logger.Info("database checked", "database_url", redacted, "created", created)

			repo, err := repository.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("%s", logging.SanitizeError(err, cfg.DatabaseURL))
			}
			defer repo.Close()

			if down {
				if err := repo.RevertMigrations(ctx); err != nil {
					return err
				}
				logger.Info("schema dropped")
				return nil
			}

			applied, err := repo.ApplyMigrations(ctx)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", "migrations", applied)

			if seed {
				n, err := repository.SeedCategories(ctx, cfg.DatabaseURL, model.StandardCategories)
				if err != nil {
					return err
				}
				logger.Info("categories seeded", "inserted", n)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "Drop the schema instead of applying it")
	cmd.Flags().BoolVar(&seed, "seed", true, "Insert the standard service categories")
	return cmd
}
