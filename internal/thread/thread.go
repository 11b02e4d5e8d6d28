// Package thread implements the HashThread actor: a schedulable unit owning
// a set of hashing engines, accepting work assignments from the scheduler
// and reporting shares, status, and lifecycle events back.
package thread

import (
	"context"
	"time"

	"github.com/mujina-miner/mujina/internal/job"
	"github.com/mujina-miner/mujina/internal/types"
)

// EngineNonce is one candidate nonce surfaced by the underlying hashing
// engine (a physical BM13xx chip-data channel or the CPU miner's worker
// pool), still addressed against whichever task was active when found.
type EngineNonce struct {
	JobID       string
	Nonce       uint32
	NTime       uint32
	Version     uint32
	Extranonce2 *types.Extranonce2 // nil for fixed-root jobs
}

// Engine is the board-specific hashing backend a HashThread drives. Bitaxe
// boards implement it over the chip-data serial channel; the virtual board
// implements it over a CPU worker pool.
type Engine interface {
	AssignWork(task job.HashTask)
	GoIdle()
	Nonces() <-chan EngineNonce
	RangeEvents() <-chan RangeEvent
	HashRateEstimate() float64
	Shutdown()
}

type commandKind int

const (
	cmdUpdateWork commandKind = iota
	cmdReplaceWork
	cmdGoIdle
	cmdShutdown
)

type command struct {
	kind  commandKind
	task  *job.HashTask
	reply chan *job.HashTask
}

// HashThread is a schedulable actor: at most one active HashTask, reporting
// ShareFound/WorkDepletionWarning/WorkExhausted/StatusUpdate/GoingOffline to
// the scheduler in emission order.
type HashThread struct {
	id       Identity
	engine   Engine
	cmdCh    chan command
	events   chan Event
	removal  <-chan RemovalSignal
	statusCh chan HashThreadStatus

	currentTask *job.HashTask
	sharesFound uint64
	// validJobIDs accumulates job ids whose shares are still accepted.
	// UpdateWork adds the new id without clearing old ones (late shares
	// from the prior task remain valid); ReplaceWork and GoIdle reset it.
	validJobIDs map[string]bool
}

// New spawns a HashThread actor driving engine, observing removal for its
// exit signal. statusPeriod governs how often StatusUpdate events fire (and
// therefore how stale Status() may be).
func New(engine Engine, removal <-chan RemovalSignal, statusPeriod time.Duration) *HashThread {
	t := &HashThread{
		id:          newIdentity(),
		engine:      engine,
		cmdCh:       make(chan command, 8),
		events:      make(chan Event, 64),
		removal:     removal,
		statusCh:    make(chan HashThreadStatus, 1),
		validJobIDs: make(map[string]bool),
	}
	if statusPeriod <= 0 {
		statusPeriod = 2 * time.Second
	}
	go t.run(statusPeriod)
	return t
}

// ID returns the thread's stable identity.
func (t *HashThread) ID() Identity { return t.id }

// UpdateWork assigns new work without invalidating shares in flight from
// the prior task; returns the prior task, if any.
func (t *HashThread) UpdateWork(ctx context.Context, task job.HashTask) (*job.HashTask, bool) {
	return t.send(ctx, command{kind: cmdUpdateWork, task: &task})
}

// ReplaceWork assigns new work and invalidates the prior task: any
// in-flight shares against it are dropped. Returns the prior task, if any.
func (t *HashThread) ReplaceWork(ctx context.Context, task job.HashTask) (*job.HashTask, bool) {
	return t.send(ctx, command{kind: cmdReplaceWork, task: &task})
}

// GoIdle enters low-power mode; returns the prior task, if any.
func (t *HashThread) GoIdle(ctx context.Context) (*job.HashTask, bool) {
	return t.send(ctx, command{kind: cmdGoIdle})
}

// Shutdown commits the thread to exit; it emits GoingOffline then returns.
func (t *HashThread) Shutdown(ctx context.Context) {
	t.send(ctx, command{kind: cmdShutdown})
}

func (t *HashThread) send(ctx context.Context, cmd command) (*job.HashTask, bool) {
	cmd.reply = make(chan *job.HashTask, 1)
	select {
	case t.cmdCh <- cmd:
	case <-ctx.Done():
		return nil, false
	}
	select {
	case prior := <-cmd.reply:
		return prior, true
	case <-ctx.Done():
		return nil, false
	}
}

// TakeEventReceiver transfers the event stream to the caller (the
// scheduler). Intended to be called exactly once per thread.
func (t *HashThread) TakeEventReceiver() <-chan Event {
	return t.events
}

// Status returns the last cached status snapshot; it may lag by up to one
// status-update period.
func (t *HashThread) Status() HashThreadStatus {
	select {
	case s := <-t.statusCh:
		t.statusCh <- s
		return s
	default:
		return HashThreadStatus{ID: t.id, Idle: true}
	}
}

func (t *HashThread) run(statusPeriod time.Duration) {
	ticker := time.NewTicker(statusPeriod)
	defer ticker.Stop()
	defer close(t.events)

	for {
		select {
		case cmd := <-t.cmdCh:
			t.handleCommand(cmd)
			if cmd.kind == cmdShutdown {
				t.emit(Event{Kind: EventGoingOffline, ID: t.id})
				return
			}

		case sig, ok := <-t.removal:
			if !ok || sig != Running {
				t.engine.Shutdown()
				t.emit(Event{Kind: EventGoingOffline, ID: t.id})
				return
			}

		case n := <-t.engine.Nonces():
			t.handleNonce(n)

		case re := <-t.engine.RangeEvents():
			t.handleRangeEvent(re)

		case <-ticker.C:
			t.publishStatus()
		}
	}
}

func (t *HashThread) handleCommand(cmd command) {
	prior := t.currentTask
	switch cmd.kind {
	case cmdUpdateWork:
		t.engine.AssignWork(*cmd.task)
		t.currentTask = cmd.task
		t.validJobIDs[cmd.task.Template.JobID] = true
	case cmdReplaceWork:
		t.engine.AssignWork(*cmd.task)
		t.currentTask = cmd.task
		t.validJobIDs = map[string]bool{cmd.task.Template.JobID: true}
	case cmdGoIdle:
		t.engine.GoIdle()
		t.currentTask = nil
		t.validJobIDs = make(map[string]bool)
	case cmdShutdown:
	}
	if cmd.reply != nil {
		cmd.reply <- prior
	}
}

func (t *HashThread) handleNonce(n EngineNonce) {
	if !t.validJobIDs[n.JobID] {
		// Late share against a job invalidated by ReplaceWork/GoIdle, or
		// against no job at all.
		return
	}
	share := job.Share{
		JobID:       n.JobID,
		Nonce:       n.Nonce,
		NTime:       n.NTime,
		Version:     n.Version,
		Extranonce2: n.Extranonce2,
	}
	t.sharesFound++
	t.emit(Event{Kind: EventShareFound, ID: t.id, Share: share})
}

// handleRangeEvent translates an engine's extranonce2-range progress signal
// into the corresponding thread event.
func (t *HashThread) handleRangeEvent(re RangeEvent) {
	switch re.Kind {
	case RangeDepletionWarning:
		t.emit(Event{Kind: EventWorkDepletionWarning, ID: t.id, EstimatedRemainingMS: re.EstimatedRemainingMS})
	case RangeExhausted:
		t.emit(Event{Kind: EventWorkExhausted, ID: t.id, Extranonce2Searched: re.Extranonce2Searched})
	}
}

func (t *HashThread) publishStatus() {
	status := HashThreadStatus{
		ID:               t.id,
		Idle:             t.currentTask == nil,
		HashRateEstimate: t.engine.HashRateEstimate(),
		SharesFound:      t.sharesFound,
	}
	if t.currentTask != nil {
		status.CurrentJobID = t.currentTask.Template.JobID
	}

	select {
	case <-t.statusCh:
	default:
	}
	t.statusCh <- status
	t.emit(Event{Kind: EventStatusUpdate, ID: t.id, Status: status})
}

func (t *HashThread) emit(ev Event) {
	select {
	case t.events <- ev:
	default:
		// The scheduler is the sole reader and the channel is bounded; a
		// full channel here means the scheduler is stalled, which is a
		// back-pressure condition the scheduler's own loop must resolve.
		t.events <- ev
	}
}
