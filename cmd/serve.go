package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/incboard/internal/config"
	"github.com/danielolaszy/incboard/internal/jira"
	"github.com/danielolaszy/incboard/internal/logging"
	"github.com/danielolaszy/incboard/internal/web"
)

// serveCmd runs the HTTP server: the dashboard query surface, the
// on-demand sync trigger, settings mutations, and (when configured)
// the OAuth connect/callback endpoints. By default it also runs the
// interval scheduler in-process.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the mirror's HTTP API and run the sync scheduler",
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

		// OAuth endpoints are an optional extension; the flow is only
		// wired when the application credentials are configured.
		var flow *jira.Flow
		if config.ValidateOAuth(cfg) == nil {
			flow = &jira.Flow{
				ClientID:     cfg.OAuth.ClientID,
				ClientSecret: cfg.OAuth.ClientSecret,
				CallbackURL:  cfg.OAuth.CallbackURL,
				Scopes:       cfg.OAuth.Scopes,
				States:       st,
				Accounts:     st,
			}
		}

		server := web.NewServer(cfg, st, sy, flow)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		scheduler, err := cmd.Flags().GetBool("scheduler")
		if err != nil {
			return err
		}
		if scheduler {
			go sy.RunForever(ctx, cfg.SyncInterval)
		}

		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: server.Router,
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()

		logging.Info("serving",
			"addr", cfg.HTTPAddr,
			"db", cfg.DBPath,
			"scheduler", scheduler,
			"oauth", flow != nil)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().Bool("scheduler", true, "run the interval sync scheduler in-process")
}
