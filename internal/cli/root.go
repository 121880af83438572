// Package cli implements the warelay command tree.
package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jortega-dev/warelay/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	log *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warelay",
		Short: "WhatsApp to assistant chat relay",
		Long:  "warelay receives WhatsApp webhook messages, tracks per-user sessions, and relays conversations to an AI assistant.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Credentials commonly live in a local .env, as in the
			// original deployment. Missing file is fine.
			_ = godotenv.Load()

			level := logLevel
			if level == "" {
				level = "info"
			}
			log = logging.New(nil, level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "warelay.yaml", "config file path")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSendCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
