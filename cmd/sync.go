package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/incboard/internal/logging"
)

// syncCmd runs the Jira synchronization, either once (the on-demand
// trigger) or on an interval (the scheduler loop).
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the local mirror with Jira",
	Long: `Run one sync pass against the configured Jira project: search the 25
most recently updated issues, reconcile them into the local ticket store, and
reconcile each issue's complete comment list (new comments inserted, edited
comments patched, deleted comments pruned).

With --interval the command keeps running and repeats the pass on a fixed
cadence. A failed pass is logged and retried whole on the next tick.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, st, err := loadEnvironment(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		sy, err := newSyncer(cfg, st)
		if err != nil {
			return err
		}

		loop, err := cmd.Flags().GetBool("interval")
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if !loop {
			return sy.RunOnce(ctx)
		}

		logging.Info("starting sync scheduler",
			"interval", cfg.SyncInterval.String(),
			"site", cfg.Jira.SiteURL,
			"token", logging.MaskSensitive(cfg.Jira.PATToken))
		sy.RunForever(ctx, cfg.SyncInterval)
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("interval", false, "keep running, repeating the sync on the configured cadence")
}
