package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pantrynav/pantrynav/internal/backup"
	"github.com/pantrynav/pantrynav/internal/config"
	"github.com/pantrynav/pantrynav/internal/httpclient"
	"github.com/pantrynav/pantrynav/internal/logging"
	"github.com/pantrynav/pantrynav/internal/perf"
	"github.com/pantrynav/pantrynav/internal/repository"
	"github.com/pantrynav/pantrynav/internal/scaling"
	"github.com/pantrynav/pantrynav/internal/security"
)

func newBackupManager(cmd *cobra.Command) (*backup.Manager, func(), error) {
	ctx := cmd.Context()
	cfg, err := config.LoadBackup()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg.LogConfig)

	opts, err := backup.OptionsFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	store, err := backup.NewGCSStore(ctx, cfg.Bucket, cfg.CredentialsFile)
	if err != nil {
		return nil, nil, err
	}

	var db backup.DatabaseBackups
	if cfg.SQLInstance != "" {
		sql, err := backup.NewCloudSQL(ctx, cfg.GCPProjectID, cfg.SQLInstance, cfg.CredentialsFile)
		if err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		db = sql
	} else {
		logger.Warn("CLOUDSQL_INSTANCE not set, database backups unavailable")
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close storage client", "error", err)
		}
	}
	return backup.NewManager(store, db, opts, logger), cleanup, nil
}

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up the database, data files and configuration",
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Run every enabled backup and prune old ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, cleanup, err := newBackupManager(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			res := m.Run(cmd.Context())
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if len(res.Errors) > 0 {
				return fmt.Errorf("%d backup section(s) failed", len(res.Errors))
			}
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the last backup of each section",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, cleanup, err := newBackupManager(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return printJSON(cmd.OutOrStdout(), m.Status(cmd.Context()))
		},
	}

	restore := &cobra.Command{
		Use:   "restore BACKUP_ID",
		Short: "Restore the database from a backup run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, cleanup, err := newBackupManager(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return m.RestoreDatabaseBackup(cmd.Context(), args[0])
		},
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete backups older than their retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, cleanup, err := newBackupManager(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			n, err := m.CleanupOldBackups(cmd.Context())
			if perr := printJSON(cmd.OutOrStdout(), map[string]int{"deleted": n}); perr != nil {
				return perr
			}
			return err
		},
	}

	cmd.AddCommand(run, status, restore, cleanupCmd)
	return cmd
}

func newScaler(cmd *cobra.Command) (*scaling.Scaler, error) {
	ctx := cmd.Context()
	cfg, err := config.LoadScaler()
	if err != nil {
		return nil, err
	}
	if cfg.GCPProjectID == "" || cfg.GroupName == "" {
		return nil, fmt.Errorf("GCP_PROJECT_ID and INSTANCE_GROUP_NAME are required")
	}

	group, err := scaling.NewComputeGroup(ctx, cfg.GCPProjectID, cfg.Zone, cfg.GroupName, cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	monitoring, err := scaling.NewCloudMonitoring(ctx, cfg.GCPProjectID, cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	return scaling.NewScaler(group, monitoring, scaling.OptionsFromConfig(cfg), cfg.MetricsWindow, newLogger(cfg.LogConfig)), nil
}

func newScaleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scale",
		Short: "Scale the instance group on CPU, memory and request rate",
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Evaluate every policy once and resize the group",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newScaler(cmd)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s.RunScalingDecision(cmd.Context()))
		},
	}

	policies := &cobra.Command{
		Use:   "policies",
		Short: "Install the autoscaler for the instance group",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newScaler(cmd)
			if err != nil {
				return err
			}
			return s.CreateScalingPolicies(cmd.Context())
		},
	}

	cmd.AddCommand(run, policies)
	return cmd
}

func newScanCmd() *cobra.Command {
	var report string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run static analysis, dependency, secret and network scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadScan()
			if err != nil {
				return err
			}
			if report != "" {
				cfg.ReportFile = report
			}

			scanner := security.NewScanner(security.ExecRunner{Timeout: cfg.ToolTimeout}, cfg, newLogger(cfg.LogConfig))
			r, err := scanner.GenerateReport(scanner.RunFullScan(cmd.Context()), cfg.ReportFile)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), r.Summary)
		},
	}

	cmd.Flags().StringVar(&report, "report", "", "Report file (default SECURITY_REPORT_FILE)")
	return cmd
}

func newPerfCmd() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "perf",
		Short: "Run load, stress and database performance tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.LoadPerf()
			if err != nil {
				return err
			}
			if baseURL != "" {
				cfg.BaseURL = baseURL
			}
			logger := newLogger(cfg.LogConfig)

			scenario, err := perf.ScenarioFromConfig(cfg)
			if err != nil {
				return err
			}

			var db perf.QueryRunner
			if cfg.DatabaseEnabled && cfg.DatabaseURL != "" {
				repo, err := repository.New(ctx, cfg.DatabaseURL)
				if err != nil {
					return fmt.Errorf("%s", logging.SanitizeError(err, cfg.DatabaseURL))
				}
				defer repo.Close()
				db = perf.NewPoolRunner(repo.Pool())
			}

			tester := perf.NewTester(perfClient(), cfg.BaseURL, scenario, db, logger)
			r, err := tester.RunFullTest(ctx, cfg)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), r.Summary)
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "API base URL (default PERF_BASE_URL)")
	return cmd
}

// perfClient is the shared client with a larger idle pool per host.
func perfClient() *http.Client {
	c := httpclient.New(httpclient.Options{})
	if t, ok := c.Transport.(*http.Transport); ok {
		t = t.Clone()
		t.MaxIdleConnsPerHost = 256
		c.Transport = t
	}
	return c
}
