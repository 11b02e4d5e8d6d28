package board

import (
	"context"
	"sync"

	"github.com/mujina-miner/mujina/internal/thermal"
	"github.com/mujina-miner/mujina/internal/thread"
)

// BoardState is a snapshot of a board's identity and live status, published
// on a watch channel so the HTTP API can read it without holding a lock
// across a suspension point.
type BoardState struct {
	Name        string
	Serial      string // board id; "unknown" if the hardware exposes none
	Model       string
	Fans        []FanStatus
	Sensors     []TemperatureSample
	ThreadNames []string
}

// FanStatus is one fan's commanded duty and (if known) measured RPM.
type FanStatus struct {
	Name    string
	DutyPct int
	RPM     int // 0 if unknown
}

// TemperatureSample is one sensor reading in degrees Celsius.
type TemperatureSample struct {
	Name  string
	Value float64
}

// BoardRegistration is returned by a Factory alongside the Board itself: a
// watch receiver seeded with the board's initial state.
type BoardRegistration struct {
	StateRx <-chan BoardState
}

// Board owns exclusive control over one physical (or virtual) hashboard's
// control and chip-data channels. It is created by a matched Factory on
// connect and spawns one or more HashThreads for the scheduler.
type Board struct {
	id       string
	name     string
	thermal  *thermal.Controller
	stateCh  chan BoardState
	shutdown func(context.Context)

	mu      sync.Mutex
	threads []*thread.HashThread
}

// NewBoard constructs a Board and its initial-state watch channel. Board-type
// factories (bitaxe, virtual) call this after opening their channels and
// return the *BoardRegistration alongside the Board; shutdown is invoked
// once on graceful shutdown or disconnect to release hardware resources.
func NewBoard(id, name string, initial BoardState, ctrl *thermal.Controller, shutdown func(context.Context)) (*Board, *BoardRegistration) {
	ch := make(chan BoardState, 1)
	ch <- initial
	b := &Board{id: id, name: name, stateCh: ch, thermal: ctrl, shutdown: shutdown}
	return b, &BoardRegistration{StateRx: ch}
}

// ID returns the board's registry key (serial, else "unknown").
func (b *Board) ID() string { return b.id }

// Name returns the board's human-readable descriptor name.
func (b *Board) Name() string { return b.name }

// Thermal returns the board's thermal controller.
func (b *Board) Thermal() *thermal.Controller { return b.thermal }

// AttachThreads records the hash threads this board spawned, for status
// reporting; the scheduler is the sole owner of their lifecycle.
func (b *Board) AttachThreads(threads []*thread.HashThread) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.threads = threads
}

// Threads returns the hash threads currently attached to this board.
func (b *Board) Threads() []*thread.HashThread {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*thread.HashThread, len(b.threads))
	copy(out, b.threads)
	return out
}

// PublishState pushes a new snapshot to the board's watch channel. A full
// channel drops the stale pending value in favour of the newest one, the
// usual watch-channel semantics.
func (b *Board) PublishState(state BoardState) {
	select {
	case b.stateCh <- state:
	default:
		select {
		case <-b.stateCh:
		default:
		}
		select {
		case b.stateCh <- state:
		default:
		}
	}
}

// Shutdown releases the board's hardware resources by invoking the shutdown
// hook. Every call invokes the hook again (repeated calls are not deduped);
// with a nil hook it is a no-op.
func (b *Board) Shutdown(ctx context.Context) {
	if b.shutdown != nil {
		b.shutdown(ctx)
	}
}
