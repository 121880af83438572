package session

import (
	"context"
	"fmt"
	"time"

	"github.com/jortega-dev/warelay/internal/logging"
	"github.com/jortega-dev/warelay/internal/observability"
)

// Notifier delivers a text message to a user. Implemented by the
// WhatsApp delivery client.
type Notifier interface {
	Notify(ctx context.Context, userID, text string) error
}

const (
	closingNotice = "Tu sesión ha sido cerrada debido a inactividad. Puedes iniciar una nueva conversación cuando lo necesites."
	warningNotice = "¿Sigues ahí? Tu sesión se cerrará por inactividad en %d minutos."
)

// SweeperConfig holds the sweeper's timing knobs. Warning must be below
// Timeout; both are measured against a session's last activity.
type SweeperConfig struct {
	Interval         time.Duration
	Warning          time.Duration
	Timeout          time.Duration
	SnapshotInterval time.Duration
}

// Sweeper is the background task enforcing the session timeout policy.
// It is constructed by the composition root and run explicitly; it stops
// when its context is cancelled.
type Sweeper struct {
	cfg       SweeperConfig
	store     *Store
	notifier  Notifier
	persister *Persister
	metrics   *observability.Metrics
	log       *logging.Logger
}

// NewSweeper creates a sweeper over the given store. The persister may be
// nil to disable periodic snapshots.
func NewSweeper(
	cfg SweeperConfig,
	store *Store,
	notifier Notifier,
	persister *Persister,
	metrics *observability.Metrics,
	log *logging.Logger,
) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = 5 * time.Minute
	}
	return &Sweeper{
		cfg:       cfg,
		store:     store,
		notifier:  notifier,
		persister: persister,
		metrics:   metrics,
		log:       log.Sub("sweeper"),
	}
}

// Run loops until ctx is cancelled. Errors inside a cycle are logged and
// never terminate the loop.
func (sw *Sweeper) Run(ctx context.Context) {
	sw.log.Info().
		Dur("interval", sw.cfg.Interval).
		Dur("warning", sw.cfg.Warning).
		Dur("timeout", sw.cfg.Timeout).
		Msg("sweeper started")

	ticker := time.NewTicker(sw.cfg.Interval)
	defer ticker.Stop()

	lastSnapshot := time.Now()
	for {
		select {
		case <-ctx.Done():
			sw.log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			sw.sweep(ctx)

			// Elapsed counter rather than wall-clock matching, so a
			// drifting tick cannot skip a save window.
			if time.Since(lastSnapshot) >= sw.cfg.SnapshotInterval {
				sw.snapshot()
				lastSnapshot = time.Now()
			}
		}
	}
}

// sweep runs a single scan-and-act cycle. The scan flags and collects
// users under the store lock; notification delivery happens after the
// lock is released so a slow send cannot block message handling.
func (sw *Sweeper) sweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			sw.log.Error().Str("panic", fmt.Sprint(r)).Msg("recovered in sweep cycle")
		}
	}()

	toWarn, toClose := sw.store.ScanIdle(sw.cfg.Warning, sw.cfg.Timeout)

	for _, userID := range toWarn {
		sw.warn(ctx, userID)
	}
	for _, userID := range toClose {
		sw.close(ctx, userID)
	}
}

func (sw *Sweeper) warn(ctx context.Context, userID string) {
	remaining := int((sw.cfg.Timeout - sw.cfg.Warning) / time.Minute)
	text := fmt.Sprintf(warningNotice, remaining)

	if err := sw.notifier.Notify(ctx, userID, text); err != nil {
		sw.log.Error().Err(err).Str("user", userID).Msg("failed to send inactivity warning")
	} else {
		sw.log.Info().Str("user", userID).Msg("sent inactivity warning")
	}
	sw.store.AppendSystemNotice(userID, text)
	sw.metrics.SessionEvent("warned")
}

func (sw *Sweeper) close(ctx context.Context, userID string) {
	if err := sw.notifier.Notify(ctx, userID, closingNotice); err != nil {
		sw.log.Error().Err(err).Str("user", userID).Msg("failed to send closing notice")
	}
	sw.store.AppendSystemNotice(userID, closingNotice)
	sw.store.Remove(userID)
	sw.log.Info().Str("user", userID).Msg("closed inactive session")
	sw.metrics.SessionEvent("expired")
}

func (sw *Sweeper) snapshot() {
	if sw.persister == nil {
		return
	}
	sw.persister.Save(sw.store.Snapshot())
}
