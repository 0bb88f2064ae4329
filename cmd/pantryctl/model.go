package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pantrynav/pantrynav/internal/config"
	"github.com/pantrynav/pantrynav/internal/geo"
	"github.com/pantrynav/pantrynav/internal/httpclient"
	"github.com/pantrynav/pantrynav/internal/predict"
	"github.com/pantrynav/pantrynav/internal/routing"
)

func newRouteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Build the street graph and compute routes over it",
	}

	var bbox string
	build := &cobra.Command{
		Use:   "build-graph",
		Short: "Download the drivable street network and save the graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadRouting()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogConfig)
			if bbox == "" {
				bbox = cfg.BoundingBox
			}
			box, err := routing.ParseBBox(bbox)
			if err != nil {
				return err
			}

			retrier := httpclient.NewRetrier(httpclient.New(httpclient.Options{Timeout: 3 * time.Minute}))
			g, err := routing.NewOverpassClient(cfg.OverpassURL, retrier, logger).FetchGraph(cmd.Context(), box)
			if err != nil {
				return err
			}
			if err := g.Save(cfg.GraphFile); err != nil {
				return err
			}
			logger.Info("street graph saved", "file", cfg.GraphFile, "nodes", g.NodeCount(), "edges", g.EdgeCount())
			return nil
		},
	}
	build.Flags().StringVar(&bbox, "bbox", "", "south,west,north,east (default ROUTING_BBOX)")

	find := &cobra.Command{
		Use:   "find START_ADDRESS END_ADDRESS",
		Short: "Compute the fastest route between two addresses",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadRouting()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogConfig)
			g, err := routing.LoadGraph(cfg.GraphFile)
			if err != nil {
				return err
			}
			r, err := routing.NewRouter(g, geo.NewNominatim(cfg.GeocoderConfig, logger), logger).Route(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), r)
		},
	}

	cmd.AddCommand(build, find)
	return cmd
}

func newPredictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Train and query the demand model",
	}

	var samplesFile, from, to string
	train := &cobra.Command{
		Use:   "train",
		Short: "Fit the demand model and save it to DEMAND_MODEL_FILE",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadPredict()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogConfig)

			var samples []predict.Sample
			if samplesFile != "" {
				f, err := os.Open(samplesFile)
				if err != nil {
					return err
				}
				defer f.Close()
				if samples, err = predict.ReadSamplesCSV(f); err != nil {
					return err
				}
			} else {
				start, err := time.Parse(time.DateOnly, from)
				if err != nil {
					return fmt.Errorf("invalid --from: %w", err)
				}
				end, err := time.Parse(time.DateOnly, to)
				if err != nil {
					return fmt.Errorf("invalid --to: %w", err)
				}
				samples = predict.SyntheticSamples(start, end, predict.DefaultSeed)
			}

			m, err := predict.Train(samples, predict.DefaultSeed, predict.DefaultTestFraction, time.Now().UTC())
			if err != nil {
				return err
			}
			if err := m.Save(cfg.ModelFile); err != nil {
				return err
			}
			logger.Info("model trained", "file", cfg.ModelFile, "mse", m.MSE, "train_samples", m.TrainSamples)
			return printJSON(cmd.OutOrStdout(), m)
		},
	}
	train.Flags().StringVar(&samplesFile, "samples", "", "CSV of observed samples (default synthetic data)")
	train.Flags().StringVar(&from, "from", "2023-01-01", "First day of synthetic data")
	train.Flags().StringVar(&to, "to", "2023-12-31", "Last day of synthetic data")

	var lat, lon float64
	var at string
	query := &cobra.Command{
		Use:   "query",
		Short: "Predict demand at a location and time",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadPredict()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogConfig)

			t := time.Now()
			if at != "" {
				if t, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
			}

			var weather predict.WeatherSource
			if cfg.WeatherAPIKey != "" {
				weather = predict.NewOpenWeather(cfg.WeatherURL, cfg.WeatherAPIKey, httpclient.NewRetrier(httpclient.New(httpclient.Options{})))
			}
			p := predict.NewPredictor(cfg.ModelFile, predict.NewFeatureBuilder(weather, logger))
			res, err := p.Predict(cmd.Context(), lat, lon, t)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	query.Flags().Float64Var(&lat, "lat", 42.9634, "Latitude")
	query.Flags().Float64Var(&lon, "lon", -85.6681, "Longitude")
	query.Flags().StringVar(&at, "at", "", "RFC 3339 time (default now)")

	cmd.AddCommand(train, query)
	return cmd
}
