package pointing

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsHandled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      "events_total",
		Subsystem: "pointing",
		Help:      "Inbound events, labelled by type and outcome (applied, unknown, invalid, error).",
	}, []string{"type", "outcome"})

	commandsExecuted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      "commands_total",
		Subsystem: "pointing",
		Help:      "Executed commands, labelled by name and result.",
	}, []string{"command", "result"})

	knownSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "known_sessions",
		Subsystem: "pointing",
		Help:      "Number of sessions in the local known set.",
	})

	droppedUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name:      "dropped_updates_total",
		Subsystem: "pointing",
		Help:      "Session values replaced before a slow subscriber read them.",
	})
)

func init() {
	prometheus.MustRegister(eventsHandled)
	prometheus.MustRegister(commandsExecuted)
	prometheus.MustRegister(knownSessions)
	prometheus.MustRegister(droppedUpdates)
}
