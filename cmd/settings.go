package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// settingsCmd groups the sync settings subcommands.
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read and change the sync settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current project key, severity filter, and last sync time",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := loadEnvironment(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		settings, err := st.GetSettings(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("project key: %s\n", orUnset(settings.ProjectKey))
		fmt.Printf("severity:    %s\n", orUnset(settings.Severity))
		if settings.LastSyncAt == 0 {
			fmt.Println("last sync:   never")
		} else {
			fmt.Printf("last sync:   %s\n", time.UnixMilli(settings.LastSyncAt).Format(time.RFC3339))
		}
		return nil
	},
}

var settingsSetProjectCmd = &cobra.Command{
	Use:   "set-project <key>",
	Short: "Set the Jira project mirrored by the sync job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := loadEnvironment(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		normalized, err := st.SetProjectKey(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("project key set to %s\n", normalized)
		return nil
	},
}

var settingsSetSeverityCmd = &cobra.Command{
	Use:   "set-severity <severity>",
	Short: "Set the board's severity filter (ALL, P1, P2, P3, P4)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := loadEnvironment(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		normalized, err := st.SetSeverity(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("severity set to %s\n", normalized)
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetProjectCmd)
	settingsCmd.AddCommand(settingsSetSeverityCmd)
}

func orUnset(value string) string {
	if value == "" {
		return "<not set>"
	}
	return value
}
