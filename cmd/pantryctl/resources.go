package main

import (
	"github.com/spf13/cobra"

	"github.com/pantrynav/pantrynav/internal/config"
	"github.com/pantrynav/pantrynav/internal/directory"
)

func newResourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resources",
		Short: "Manage the resource directory file",
	}

	var category, search string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "Print resources from RESOURCES_FILE (or the defaults)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadResources()
			if err != nil {
				return err
			}
			dir := directory.New(newLogger(cfg.LogConfig))
			if err := dir.Load(cfg.ResourcesFile); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dir.List(directory.Query{
				Category: category,
				Search:   search,
				Limit:    limit,
			}))
		},
	}
	list.Flags().StringVar(&category, "category", "", "Only resources in this category")
	list.Flags().StringVar(&search, "search", "", "Case-insensitive text search")
	list.Flags().IntVar(&limit, "limit", 100, "Maximum number of resources")

	var out string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default resources to a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadResources()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogConfig)
			path := out
			if path == "" {
				path = cfg.ResourcesFile
			}
			if err := directory.New(logger).Save(path); err != nil {
				return err
			}
			logger.Info("resources written", "file", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&out, "out", "", "Destination file (default RESOURCES_FILE)")

	cmd.AddCommand(list, initCmd)
	return cmd
}
