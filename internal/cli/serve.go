package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jortega-dev/warelay/internal/assistant"
	"github.com/jortega-dev/warelay/internal/config"
	"github.com/jortega-dev/warelay/internal/httpapi"
	"github.com/jortega-dev/warelay/internal/logging"
	"github.com/jortega-dev/warelay/internal/observability"
	"github.com/jortega-dev/warelay/internal/router"
	"github.com/jortega-dev/warelay/internal/session"
	"github.com/jortega-dev/warelay/internal/ticket"
	"github.com/jortega-dev/warelay/internal/whatsapp"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server and session sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if logLevel == "" && cfg.Logging.Level != "" {
				log = logging.New(nil, cfg.Logging.Level)
			}

			store := session.NewStore(
				time.Duration(cfg.Session.TimeoutSeconds)*time.Second, log)

			persister := session.NewPersister(cfg.Session.SnapshotPath, log)
			store.Restore(persister.Load())

			metrics := observability.New("warelay", prometheus.DefaultRegisterer, func() float64 {
				sessions, _ := store.Stats()
				return float64(sessions)
			})

			wa := whatsapp.NewClient(whatsapp.ClientConfig{
				AccessToken:   cfg.WhatsApp.AccessToken,
				PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
				GraphVersion:  cfg.WhatsApp.GraphVersion,
				BaseURL:       cfg.WhatsApp.BaseURL,
			}, log)

			threads := assistant.NewThreadMap(cfg.Assistant.ThreadsPath, log)
			asst := assistant.NewClient(assistant.Config{
				APIKey:      cfg.Assistant.APIKey,
				AssistantID: cfg.Assistant.AssistantID,
				BaseURL:     cfg.Assistant.BaseURL,
				Timeout:     time.Duration(cfg.Assistant.TimeoutSeconds) * time.Second,
			}, threads, log)

			var tickets ticket.Creator
			if cfg.Tickets.WebhookURL != "" {
				tickets = ticket.NewWebhookCreator(cfg.Tickets.WebhookURL, log)
			} else {
				tickets = ticket.NewLogCreator(log)
			}

			rt := router.New(store, asst, wa, tickets, persister, metrics, log)

			sweeper := session.NewSweeper(session.SweeperConfig{
				Interval:         time.Duration(cfg.Session.SweepSeconds) * time.Second,
				Warning:          time.Duration(cfg.Session.WarningSeconds) * time.Second,
				Timeout:          time.Duration(cfg.Session.TimeoutSeconds) * time.Second,
				SnapshotInterval: time.Duration(cfg.Session.SnapshotSeconds) * time.Second,
			}, store, wa, persister, metrics, log)

			srv := httpapi.New(httpapi.ServerConfig{
				Port:         cfg.Server.Port,
				Bind:         cfg.Server.Bind,
				VerifyToken:  cfg.WhatsApp.VerifyToken,
				HistoryLimit: cfg.Session.HistoryLimit,
			}, whatsapp.NewVerifier(cfg.WhatsApp.AppSecret, log), rt, wa, store, log)

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go sweeper.Run(ctx)

			err = srv.Start(ctx)

			// Final snapshot so a clean shutdown loses nothing.
			persister.Save(store.Snapshot())
			return err
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	return cmd
}
