package main

import (
	"fmt"

	"github.com/fieldops/regsync/internal/env"
	"github.com/fieldops/regsync/pkg/datastore/postgres"
	"github.com/fieldops/regsync/pkg/queue"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the local queue and the postgres datastore tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			queuePath := rootQueueDB
			if queuePath == "" {
				resolved, err := queue.ResolvePath()
				if err != nil {
					return err
				}
				queuePath = resolved
			}
			q := queue.New(queuePath)
			if err := q.Open(ctx); err != nil {
				return err
			}
			defer q.Close()
			log.Info().Str("path", queuePath).Msg("local queue ready")

			url := env.String(env.DatabaseURL, "")
			if url == "" {
				return fmt.Errorf("%s must be provided to migrate the postgres datastore", env.DatabaseURL)
			}
			store, err := postgres.Open(ctx, url)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return err
			}
			log.Info().Msg("postgres datastore migrated")
			return nil
		},
	}
}
