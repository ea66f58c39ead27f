package main

import (
	"fmt"

	"github.com/fieldops/regsync/pkg/registration"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newPendingCmd() *cobra.Command {
	var flagCount bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List registrations waiting in the local queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if flagCount {
				n, err := a.queue.Count(cmd.Context(), rootAgentID)
				if err != nil {
					log.Warn().Err(err).Msg("count pending failed")
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
				return err
			}
			entries, err := a.queue.ListPending(cmd.Context(), rootAgentID)
			if err != nil {
				log.Warn().Err(err).Msg("list pending failed")
			}
			if entries == nil {
				entries = []registration.PendingRegistration{}
			}
			return printJSON(cmd, entries)
		},
	}
	cmd.Flags().BoolVar(&flagCount, "count", false, "Print only the number of queued registrations")
	return cmd
}
