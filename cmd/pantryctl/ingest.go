package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pantrynav/pantrynav/internal/config"
	"github.com/pantrynav/pantrynav/internal/feeder"
	"github.com/pantrynav/pantrynav/internal/geo"
	"github.com/pantrynav/pantrynav/internal/logging"
	"github.com/pantrynav/pantrynav/internal/normalize"
	"github.com/pantrynav/pantrynav/internal/repository"
)

func newIngestCmd() *cobra.Command {
	var skipDB bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Collect provider data, normalize it, export JSON/CSV and store it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.LoadFeeder()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogConfig)

			var store feeder.Store
			if cfg.DatabaseURL != "" && !skipDB {
				repo, err := repository.New(ctx, cfg.DatabaseURL)
				if err != nil {
					return fmt.Errorf("%s", logging.SanitizeError(err, cfg.DatabaseURL))
				}
				defer repo.Close()
				store = repo
			}

			pipeline := feeder.NewPipeline(
				feeder.NewCollector(feeder.DefaultSources(*cfg), logger),
				normalize.NewProcessor(geo.NewNominatim(cfg.GeocoderConfig, logger), logger),
				store,
				cfg.DataDir,
				logger,
			)
			res, err := pipeline.Run(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().BoolVar(&skipDB, "skip-db", false, "Only export files, even when DATABASE_URL is set")
	return cmd
}
