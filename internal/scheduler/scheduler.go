// Package scheduler implements the single scheduling actor that multiplexes
// thread arrivals, thread events, job-source events, and administrative
// pause/resume commands, dispatching HashTasks and routing found shares back
// to their originating source.
package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mujina-miner/mujina/internal/job"
	"github.com/mujina-miner/mujina/internal/thread"
	"github.com/mujina-miner/mujina/internal/types"
)

// SourceEventKind discriminates a SourceEvent.
type SourceEventKind int

const (
	NewJob SourceEventKind = iota
	UpdateJob
	ReplaceJob
	ClearJobs
)

// SourceEvent is published by a job source (the Stratum client, or a local
// test harness) to the scheduler.
type SourceEvent struct {
	Kind     SourceEventKind
	Source   job.SourceHandle
	Template job.JobTemplate // unused for ClearJobs
}

// AdminKind discriminates an AdminCommand.
type AdminKind int

const (
	Pause AdminKind = iota
	Resume
)

// AdminCommand is an administrative directive from the API layer.
type AdminCommand struct {
	Kind  AdminKind
	Reply chan struct{}
}

type threadEvent struct {
	id thread.Identity
	ev thread.Event
}

type threadEntry struct {
	ht *thread.HashThread
}

// Scheduler is the single actor owning the thread registry. Construct with
// New and run it with Run in its own goroutine; all other interaction goes
// through the channel-returning methods, never direct field access.
type Scheduler struct {
	log *logrus.Entry

	arrivals     chan *thread.HashThread
	sourceEvents chan SourceEvent
	admin        chan AdminCommand
	events       chan threadEvent

	threads map[thread.Identity]*threadEntry
	paused  bool

	// current is the scheduler's single active job template, reflecting the
	// "single active source" simplification of the minimum-viable dispatch
	// policy: whichever source most recently issued NewJob/ReplaceJob/UpdateJob
	// owns the whole thread pool until it clears or is superseded.
	current       *job.JobTemplate
	currentSource job.SourceHandle
	haveCurrent   bool

	// jobSources maps a JobTemplate's id back to the source handle that
	// issued it, so a later ShareFound event (which only carries a job id)
	// can be routed without the thread itself retaining the handle past a
	// ReplaceWork.
	jobSources map[string]job.SourceHandle
}

// New builds an idle Scheduler.
func New(log *logrus.Entry) *Scheduler {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Scheduler{
		log:          log,
		arrivals:     make(chan *thread.HashThread, 16),
		sourceEvents: make(chan SourceEvent, 64),
		admin:        make(chan AdminCommand, 4),
		events:       make(chan threadEvent, 256),
		threads:      make(map[thread.Identity]*threadEntry),
		jobSources:   make(map[string]job.SourceHandle),
	}
}

// SubmitThread hands a newly-spawned HashThread to the scheduler. The daemon
// calls this once for each thread a board spawns, right after the board is
// created.
func (s *Scheduler) SubmitThread(ctx context.Context, ht *thread.HashThread) bool {
	select {
	case s.arrivals <- ht:
		return true
	case <-ctx.Done():
		return false
	}
}

// PublishSourceEvent delivers a job-source event to the scheduler.
func (s *Scheduler) PublishSourceEvent(ctx context.Context, ev SourceEvent) bool {
	select {
	case s.sourceEvents <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Pause sends go_idle to every thread and suppresses dispatch until Resume.
func (s *Scheduler) Pause(ctx context.Context) bool {
	return s.sendAdmin(ctx, Pause)
}

// Resume re-splits the current job (if any) across all threads.
func (s *Scheduler) Resume(ctx context.Context) bool {
	return s.sendAdmin(ctx, Resume)
}

func (s *Scheduler) sendAdmin(ctx context.Context, kind AdminKind) bool {
	reply := make(chan struct{})
	select {
	case s.admin <- AdminCommand{Kind: kind, Reply: reply}:
	case <-ctx.Done():
		return false
	}
	select {
	case <-reply:
		return true
	case <-ctx.Done():
		return false
	}
}

// Run drives the scheduler's single-task select loop until ctx is
// cancelled. Back-pressure is honest: every channel here is bounded and
// Run never drops a message by selecting default.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case ht := <-s.arrivals:
			s.handleArrival(ht)

		case se := <-s.sourceEvents:
			s.handleSourceEvent(se)

		case cmd := <-s.admin:
			s.handleAdmin(cmd)

		case te := <-s.events:
			s.handleThreadEvent(te)
		}
	}
}

func (s *Scheduler) handleArrival(ht *thread.HashThread) {
	s.threads[ht.ID()] = &threadEntry{ht: ht}
	go s.forward(ht)

	if !s.paused && s.haveCurrent {
		s.dispatchAll(false)
	}
}

// forward relays one thread's event stream into the scheduler's central
// aggregation channel, tagging each event with the thread's identity so the
// scheduler can fold ShareFound and react to GoingOffline without a
// per-thread select arm.
func (s *Scheduler) forward(ht *thread.HashThread) {
	for ev := range ht.TakeEventReceiver() {
		s.events <- threadEvent{id: ht.ID(), ev: ev}
	}
}

func (s *Scheduler) handleSourceEvent(se SourceEvent) {
	switch se.Kind {
	case NewJob, ReplaceJob:
		s.jobSources[se.Template.JobID] = se.Source
		s.current = &se.Template
		s.currentSource = se.Source
		s.haveCurrent = true
		if !s.paused {
			s.dispatchAll(se.Kind == ReplaceJob)
		}

	case UpdateJob:
		s.jobSources[se.Template.JobID] = se.Source
		s.current = &se.Template
		s.currentSource = se.Source
		s.haveCurrent = true
		if !s.paused {
			s.dispatchAll(false)
		}

	case ClearJobs:
		if s.haveCurrent && s.currentSource.Equal(se.Source) {
			s.current = nil
			s.haveCurrent = false
			s.goIdleAll()
		}
	}
}

func (s *Scheduler) handleAdmin(cmd AdminCommand) {
	switch cmd.Kind {
	case Pause:
		s.paused = true
		s.goIdleAll()
	case Resume:
		s.paused = false
		if s.haveCurrent {
			s.dispatchAll(true)
		}
	}
	close(cmd.Reply)
}

func (s *Scheduler) handleThreadEvent(te threadEvent) {
	switch te.ev.Kind {
	case thread.EventShareFound:
		share := te.ev.Share
		if source, ok := s.jobSources[share.JobID]; ok {
			if err := source.SubmitShare(share); err != nil {
				s.log.WithError(err).WithField("job_id", share.JobID).Warn("share submission failed")
			}
		} else {
			s.log.WithField("job_id", share.JobID).Warn("share found for unknown job id, dropping")
		}

	case thread.EventGoingOffline:
		delete(s.threads, te.id)

	case thread.EventWorkDepletionWarning, thread.EventWorkExhausted, thread.EventStatusUpdate:
		// Observational; no scheduling action required by the minimum
		// viable policy.
	}
}

// dispatchAll splits the current job's extranonce2 range across all
// registered threads proportionally to their cached hashrate estimate,
// falling back to an equal split when every thread reports zero (e.g. right
// after startup, before any status update has landed). replace selects
// replace_work over update_work.
func (s *Scheduler) dispatchAll(replace bool) {
	if s.current == nil {
		return
	}
	ids := make([]thread.Identity, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return
	}

	en2Range, hasRange := s.current.ExtranonceRange()
	weights := make([]float64, len(ids))
	for i, id := range ids {
		weights[i] = s.threads[id].ht.Status().HashRateEstimate
	}

	var ranges []types.Extranonce2Range
	if hasRange {
		ranges = splitProportional(en2Range, weights)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i, id := range ids {
		task := job.HashTask{Template: *s.current, Source: s.currentSource}
		if ranges != nil {
			task.Range = ranges[i]
		}
		entry := s.threads[id]
		if replace {
			entry.ht.ReplaceWork(ctx, task)
		} else {
			entry.ht.UpdateWork(ctx, task)
		}
	}
}

func (s *Scheduler) goIdleAll() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, entry := range s.threads {
		entry.ht.GoIdle(ctx)
	}
}

// splitProportional partitions r into len(weights) non-overlapping
// sub-ranges sized proportionally to weights, falling back to r.Split when
// every weight is zero (or non-positive).
func splitProportional(r types.Extranonce2Range, weights []float64) []types.Extranonce2Range {
	n := len(weights)
	if n == 0 {
		return nil
	}
	sum := 0.0
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	if sum <= 0 {
		return r.Split(n)
	}

	total := r.Max() - r.Min() + 1
	sizes := make([]uint64, n)
	var assigned uint64
	for i, w := range weights {
		if w < 0 {
			w = 0
		}
		sizes[i] = uint64(float64(total) * w / sum)
		assigned += sizes[i]
	}
	remainder := total - assigned
	for i := 0; remainder > 0 && i < n; i++ {
		sizes[i]++
		remainder--
	}

	out := make([]types.Extranonce2Range, 0, n)
	cursor := r.Min()
	for i := 0; i < n; i++ {
		size := sizes[i]
		if size == 0 {
			size = 1
		}
		end := cursor + size - 1
		if i == n-1 || end > r.Max() || end < cursor {
			end = r.Max()
		}
		out = append(out, types.NewExtranonce2Range(cursor, end, r.Size()))
		if end >= r.Max() {
			cursor = r.Max()
		} else {
			cursor = end + 1
		}
	}
	return out
}
