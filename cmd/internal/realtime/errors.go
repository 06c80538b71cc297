package realtime

import "errors"

var (
	// ErrClosed is returned by Send and Connect after Close.
	ErrClosed = errors.New("realtime: transport closed")
	// ErrAlreadyOpen is returned by Connect while a channel is open or being opened.
	ErrAlreadyOpen = errors.New("realtime: channel already open")
	// ErrQueueFull is returned by Send when too many writes are waiting for the channel to open.
	ErrQueueFull = errors.New("realtime: pending send queue full")
	// ErrFlushFailed is returned by Connect when a deferred write fails on the new channel.
	// The channel is closed and the remaining deferred writes stay queued.
	ErrFlushFailed = errors.New("realtime: deferred flush failed")
)
