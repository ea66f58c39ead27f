package main

import (
	"fmt"
	"strings"

	"github.com/fieldops/regsync/pkg/registration"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	syncModeQueue  = "queue"
	syncModeRemote = "remote"
	syncModeAll    = "all"
)

func newSyncCmd() *cobra.Command {
	var flagMode string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync queued and unsubmitted registrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := strings.ToLower(strings.TrimSpace(flagMode))
			if mode == syncModeRemote && strings.TrimSpace(rootAgentID) == "" {
				return fmt.Errorf("--agent is required for --mode %s", syncModeRemote)
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			progress := func(done, total int) {
				log.Info().Int("done", done).Int("total", total).Msg("sync progress")
			}
			var res registration.SyncResult
			switch mode {
			case syncModeQueue:
				res = a.syncer.SyncPendingRegistrations(cmd.Context(), rootAgentID, progress)
			case syncModeRemote:
				res = a.syncer.SyncAllUnsyncedRegistrations(cmd.Context(), rootAgentID, progress)
			case syncModeAll:
				res = a.syncer.SyncEverything(cmd.Context(), rootAgentID, progress)
			default:
				return fmt.Errorf("unknown --mode %q (want %s, %s or %s)", flagMode, syncModeQueue, syncModeRemote, syncModeAll)
			}
			log.Info().Str("summary", res.Summary()).Bool("success", res.Success).Msg("sync finished")
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVar(&flagMode, "mode", syncModeAll, "What to sync: queue, remote or all")
	return cmd
}

func newRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <queue-id>",
		Short: "Retry one queued registration now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			msg, err := a.syncer.RetryPending(cmd.Context(), strings.TrimSpace(args[0]))
			if msg != "" {
				fmt.Fprintln(cmd.OutOrStdout(), msg)
			}
			return err
		},
	}
}
