package main

import (
	"os"
	"strings"

	"github.com/fieldops/regsync/internal/env"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "regsync",
	Short: "Offline-first registration queue and sync pipeline",
	Long: `regsync captures customer registrations into a local durable queue, reconciles
them with the remote datastore and forwards them to the forms endpoint.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := zerolog.ParseLevel(strings.ToLower(rootLogLevel))
		if err != nil {
			return errors.Wrapf(err, "invalid --log-level %q", rootLogLevel)
		}
		zerolog.SetGlobalLevel(level)
		return nil
	},
}

var (
	rootLogLevel string
	rootQueueDB  string
	rootBackend  string
	rootAgentID  string
	rootOffline  bool
)

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&rootQueueDB, "queue-db", "", "Local queue database path (default from QUEUE_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&rootBackend, "backend", "", "Datastore backend: bitable, postgres or memory (default from DATASTORE_BACKEND)")
	rootCmd.PersistentFlags().StringVar(&rootAgentID, "agent", "", "Agent id owning the registrations")
	rootCmd.PersistentFlags().BoolVar(&rootOffline, "offline", false, "Treat the device as offline")
	rootCmd.AddCommand(
		newCaptureCmd(),
		newPendingCmd(),
		newSyncCmd(),
		newRetryCmd(),
		newDaemonCmd(),
		newMigrateCmd(),
	)
	if err := env.Ensure(); err != nil {
		log.Warn().Err(err).Msg("dotenv not loaded")
	} else if path := env.LoadedPath(); path != "" {
		log.Debug().Str("dotenv", path).Msg("environment loaded")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("regsync command failed")
	}
}
