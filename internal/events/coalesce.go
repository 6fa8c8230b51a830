package events

import "time"

// WindowFlushStart is emitted when a drained window starts executing.
type WindowFlushStart struct {
	FlushID uint64
	Members int
}

// WindowFlushFinish is emitted after every member of a drained window has
// been completed. Pruned counts members whose context was already done at
// drain time.
type WindowFlushFinish struct {
	FlushID  uint64
	Members  int
	Groups   int
	Pruned   int
	Duration time.Duration
}

// DownstreamStart is emitted before a request, plain or composite, is sent to
// the remote schema.
type DownstreamStart struct {
	FlushID   uint64
	Operation string
	Members   int
}

// DownstreamFinish is emitted after a downstream call returns.
type DownstreamFinish struct {
	FlushID   uint64
	Operation string
	Members   int
	Err       error
	Duration  time.Duration
}

// RemoteRequestStart is emitted by the HTTP downstream before posting.
type RemoteRequestStart struct {
	Endpoint string
}

// RemoteRequestFinish is emitted by the HTTP downstream after the response
// arrived or the request failed.
type RemoteRequestFinish struct {
	Endpoint string
	Status   int
	Err      error
	Duration time.Duration
}
