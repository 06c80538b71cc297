package realtime

import "time"

// Transport limits and defaults.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB

	// Max writes held while the channel is not open.
	maxPendingSends = 1024

	defaultDialTimeout  = 10 * time.Second
	defaultWriteTimeout = 5 * time.Second

	defaultReconnectMin = 500 * time.Millisecond
	defaultReconnectMax = 30 * time.Second

	// Fraction of the reconnect delay applied as random jitter in both directions.
	reconnectJitter = 0.2
)

const (
	// Malformed inbound frames are always counted but logged at most this often.
	malformedLogLimit  = 10
	malformedLogWindow = time.Minute
)

const (
	// Heartbeat default; the server drops idle sockets after a few minutes.
	heartbeatInterval = 30 * time.Second
)
