package workers

import (
	"chat-relay/contract"
	"context"
	"log/slog"
	"time"
)

// SessionExpiryWorker closes connections whose bearer token has expired.
type SessionExpiryWorker struct {
	log      *slog.Logger
	presence contract.IPresence
	interval time.Duration
}

func NewSessionExpiryWorker(log *slog.Logger, presence contract.IPresence, interval time.Duration) *SessionExpiryWorker {
	return &SessionExpiryWorker{
		log:      log.With("worker", "session_expiry"),
		presence: presence,
		interval: interval,
	}
}

func (w *SessionExpiryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := w.presence.ExpireSessions(now); n > 0 {
				w.log.Info("Expired sessions closed", "count", n)
			}
		}
	}
}
