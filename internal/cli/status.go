package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jortega-dev/warelay/internal/config"
	"github.com/jortega-dev/warelay/internal/version"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show warelay status and configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("warelay %s (commit %s)\n\n", version.Version, version.Commit)

			cfg, err := config.Load(cfgFile)
			if err != nil {
				fmt.Printf("Config:    error loading: %v\n", err)
				return nil
			}
			if _, statErr := os.Stat(cfgFile); statErr != nil {
				fmt.Println("Config:    not found (using defaults)")
			} else {
				fmt.Printf("Config:    %s\n", cfgFile)
			}

			fmt.Printf("Server:    port=%d bind=%s\n", cfg.Server.Port, cfg.Server.Bind)

			fmt.Printf("WhatsApp:  phone_number_id=%s graph=%s token=%s signature=%s\n",
				valueOrUnset(cfg.WhatsApp.PhoneNumberID),
				cfg.WhatsApp.GraphVersion,
				configured(cfg.WhatsApp.AccessToken),
				configured(cfg.WhatsApp.AppSecret))

			fmt.Printf("Assistant: id=%s key=%s timeout=%ds threads=%s\n",
				valueOrUnset(cfg.Assistant.AssistantID),
				configured(cfg.Assistant.APIKey),
				cfg.Assistant.TimeoutSeconds,
				cfg.Assistant.ThreadsPath)

			fmt.Printf("Session:   timeout=%ds warning=%ds sweep=%ds snapshot=%ds\n",
				cfg.Session.TimeoutSeconds, cfg.Session.WarningSeconds,
				cfg.Session.SweepSeconds, cfg.Session.SnapshotSeconds)
			fmt.Printf("Snapshot:  %s (%s)\n", cfg.Session.SnapshotPath,
				fileState(cfg.Session.SnapshotPath))

			if cfg.Tickets.WebhookURL != "" {
				fmt.Println("Tickets:   webhook configured")
			} else {
				fmt.Println("Tickets:   log only (no webhook URL)")
			}

			return nil
		},
	}
}

func valueOrUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}

func configured(secret string) string {
	if secret == "" {
		return "missing"
	}
	return "set"
}

func fileState(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "absent"
	}
	return fmt.Sprintf("%d bytes", info.Size())
}
