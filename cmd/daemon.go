package main

import (
	"context"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fieldops/regsync/internal/supervise"
	"github.com/fieldops/regsync/pkg/registration"
	"github.com/fieldops/regsync/pkg/scheduler"
	"github.com/fieldops/regsync/pkg/server"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newDaemonCmd() *cobra.Command {
	var (
		flagListen   string
		flagInterval time.Duration
		flagRegain   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the auto-sync scheduler and the HTTP control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := scheduler.ConfigFromEnv(rootAgentID)
			if cmd.Flags().Changed("interval") {
				cfg.Interval = flagInterval
			}
			if cmd.Flags().Changed("regain-interval") {
				cfg.RegainInterval = flagRegain
			}
			auto := scheduler.New(a.syncer, a.online, cfg, func(res registration.SyncResult) {
				if res.Changed() {
					log.Info().Str("summary", res.Summary()).Msg("background sync changed the queue")
				}
			})

			g, gctx := errgroup.WithContext(ctx)
			if err := auto.Start(gctx); err != nil {
				return err
			}
			defer auto.Stop()

			if strings.TrimSpace(flagListen) != "" {
				srv := &http.Server{
					Addr:              flagListen,
					Handler:           server.New(a.syncer, a.queue, a.registrations).Routes(),
					ReadHeaderTimeout: 10 * time.Second,
				}
				supervise.Go(gctx, g, "control-api", func(context.Context) error {
					log.Info().Str("listen", flagListen).Msg("control API listening")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return errors.Wrap(err, "serve control API")
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			} else {
				g.Go(func() error {
					<-gctx.Done()
					return nil
				})
			}

			err = g.Wait()
			log.Info().Msg("daemon stopping")
			return err
		},
	}
	cmd.Flags().StringVar(&flagListen, "listen", ":8080", "Control API listen address, empty to disable")
	cmd.Flags().DurationVar(&flagInterval, "interval", scheduler.DefaultInterval, "Auto-sync interval (default from AUTOSYNC_INTERVAL)")
	cmd.Flags().DurationVar(&flagRegain, "regain-interval", 0, "Connectivity poll interval for sync-on-reconnect, 0 disables")
	return cmd
}
