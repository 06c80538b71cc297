package realtime

import (
	"context"
	"log/slog"
	"time"

	v1 "pointy/shared/contracts/pointing/v1"
)

// Heartbeat keeps the server-side connection alive with application-level pings.
// The PING reply is consumed by whoever handles inbound events.
type Heartbeat struct {
	Sender Sender
	Every  time.Duration
	Log    *slog.Logger
}

// Run sends a ping immediately, then every Every until ctx is cancelled.
// Send failures are logged and the schedule continues.
func (h Heartbeat) Run(ctx context.Context) {
	every := h.Every
	if every <= 0 {
		every = heartbeatInterval
	}
	log := h.Log
	if log == nil {
		log = slog.Default()
	}

	h.ping(ctx, log)

	t := time.NewTicker(every)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if h.ping(ctx, log) {
				failures = 0
				continue
			}
			failures++
			log.Info("ws.ping.fail.count", "failures", failures)
		}
	}
}

func (h Heartbeat) ping(ctx context.Context, log *slog.Logger) bool {
	if h.Sender == nil {
		return false
	}
	if err := h.Sender.Send(ctx, v1.PingRequest{Action: v1.ActionPing}); err != nil {
		heartbeatsSent.WithLabelValues("fail").Inc()
		log.Info("ws.ping.fail", "err", err)
		return false
	}
	heartbeatsSent.WithLabelValues("ok").Inc()
	return true
}
