package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	connectAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      "connect_attempts_total",
		Subsystem: "realtime",
		Help:      "Websocket dial attempts, labelled by result.",
	}, []string{"result"})

	framesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      "frames_received_total",
		Subsystem: "realtime",
		Help:      "Inbound frames, labelled by outcome (delivered, malformed).",
	}, []string{"outcome"})

	framesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      "frames_sent_total",
		Subsystem: "realtime",
		Help:      "Outbound frames, labelled by path (direct, deferred, failed).",
	}, []string{"path"})

	pendingSends = prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "pending_sends",
		Subsystem: "realtime",
		Help:      "Writes waiting for the channel to open.",
	})

	heartbeatsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      "heartbeats_total",
		Subsystem: "realtime",
		Help:      "Heartbeat pings, labelled by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(connectAttempts)
	prometheus.MustRegister(framesReceived)
	prometheus.MustRegister(framesSent)
	prometheus.MustRegister(pendingSends)
	prometheus.MustRegister(heartbeatsSent)
}
