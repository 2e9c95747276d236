// Package cmd provides the command-line interface for incboard.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/danielolaszy/incboard/internal/config"
	"github.com/danielolaszy/incboard/internal/jira"
	"github.com/danielolaszy/incboard/internal/logging"
	"github.com/danielolaszy/incboard/internal/store"
	"github.com/danielolaszy/incboard/internal/store/sqlite"
	syncer "github.com/danielolaszy/incboard/internal/sync"
)

var rootCmd = &cobra.Command{
	Use:   "incboard",
	Short: "incboard mirrors a Jira project into a local incident board",
	Long: `incboard keeps a local, queryable mirror of one Jira project's issues
and comments. A periodic sync job searches the configured project, flattens
Jira's rich-text payloads, and reconciles the results against the local store
so dashboard readers always see a consistent, de-duplicated snapshot.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "path to the mirror database (overrides INCBOARD_DB)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(settingsCmd)
}

// loadEnvironment builds the shared config and store for a command
// invocation, honoring the --db override.
func loadEnvironment(cmd *cobra.Command) (*config.Config, store.Store, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.DBPath = db
	}
	if cfg.LogFile != "" {
		logging.SetupFileLogger(cfg.LogFile, logging.LevelInfo)
	}

	st, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

// newSyncer validates the PAT configuration and assembles the sync
// pipeline. A missing credential is fatal here, before anything is
// written.
func newSyncer(cfg *config.Config, st store.Store) (*syncer.Syncer, error) {
	if err := config.ValidatePAT(cfg); err != nil {
		return nil, err
	}

	creds := &jira.PATCredentials{
		Email: cfg.Jira.PATEmail,
		Token: cfg.Jira.PATToken,
	}
	client := jira.NewClient(cfg.Jira.SiteURL, creds, cfg.RequestTimeout)
	return syncer.New(cfg, client, st), nil
}
