package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jortega-dev/warelay/internal/config"
	"github.com/jortega-dev/warelay/internal/whatsapp"
)

func newSendCmd() *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send a WhatsApp text message to a user",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")

			if !whatsapp.IsValidPhoneNumber(to) {
				return fmt.Errorf("invalid recipient number %q", to)
			}

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if cfg.WhatsApp.AccessToken == "" {
				return fmt.Errorf("whatsapp access token not configured")
			}

			client := whatsapp.NewClient(whatsapp.ClientConfig{
				AccessToken:   cfg.WhatsApp.AccessToken,
				PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
				GraphVersion:  cfg.WhatsApp.GraphVersion,
				BaseURL:       cfg.WhatsApp.BaseURL,
			}, log)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := client.SendText(ctx, to, message); err != nil {
				return err
			}
			fmt.Println("sent")
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "recipient phone number (digits only)")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}
