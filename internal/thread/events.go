package thread

import "github.com/mujina-miner/mujina/internal/job"

// EventKind discriminates a ThreadEvent.
type EventKind int

const (
	EventShareFound EventKind = iota
	EventWorkDepletionWarning
	EventWorkExhausted
	EventStatusUpdate
	EventGoingOffline
)

// Event is one message in a thread's event stream, delivered to the
// scheduler in emission order.
type Event struct {
	Kind EventKind
	ID   Identity

	Share                Job  // EventShareFound
	EstimatedRemainingMS int64 // EventWorkDepletionWarning
	Extranonce2Searched  uint64 // EventWorkExhausted
	Status               HashThreadStatus // EventStatusUpdate
}

// Job aliases job.Share to keep the event payload typed without importing
// job into every caller's namespace by hand.
type Job = job.Share

// RangeEventKind discriminates a RangeEvent.
type RangeEventKind int

const (
	RangeDepletionWarning RangeEventKind = iota
	RangeExhausted
)

// RangeEvent is raised by an Engine as it works through the extranonce2
// sub-range of its current task, and translated by the owning HashThread
// into EventWorkDepletionWarning/EventWorkExhausted on the thread's own
// event stream.
type RangeEvent struct {
	Kind                 RangeEventKind
	EstimatedRemainingMS int64  // RangeDepletionWarning
	Extranonce2Searched  uint64 // RangeExhausted
}

// RemovalSignal is published by a board to its threads on a watch channel;
// observing any non-Running value commits the thread to graceful exit.
type RemovalSignal int

const (
	Running RemovalSignal = iota
	BoardDisconnected
	HardwareFault
	UserRequested
	Shutdown
)

// HardwareFaultDescription pairs the HardwareFault signal with its reason,
// carried alongside the watch value by callers that need it (the watch
// channel itself only needs to carry RemovalSignal for the thread's own
// exit decision).
type HardwareFaultDescription struct {
	Signal      RemovalSignal
	Description string
}

// HashThreadStatus is the cached, possibly-lagging snapshot returned by
// HashThread.Status().
type HashThreadStatus struct {
	ID              Identity
	Idle            bool
	HashRateEstimate float64 // hashes/sec, exponentially smoothed
	SharesFound     uint64
	CurrentJobID    string
}
