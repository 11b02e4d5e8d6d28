package stratum

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mujina-miner/mujina/internal/job"
	"github.com/mujina-miner/mujina/internal/scheduler"
	"github.com/mujina-miner/mujina/internal/types"
)

// SourceStatus is a thread-safe snapshot of a Source's live state, read by
// the HTTP API without touching the source's own goroutine.
type SourceStatus struct {
	Name            string
	Connected       bool
	CurrentJobID    string
	ShareDifficulty float64
	SharesAccepted  uint64
	SharesRejected  uint64
}

// suggestedShareRate targets one share every 3 seconds: frequent enough for
// the scheduler to see a responsive hashrate signal, sparse enough not to
// flood the pool.
const suggestedShareRate = types.ShareRate(3 * time.Second)

// materialChangeFactor gates re-suggesting difficulty: only a >=2x or <=0.5x
// change from the last suggestion is worth another round trip to the pool.
const materialChangeFactor = 2.0

// protocolState is everything learned from the handshake and from
// mid-session notifications, needed to translate further mining.notify /
// Share traffic.
type protocolState struct {
	extranonce1     []byte
	extranonce2Size int
	shareDifficulty *types.Difficulty
	versionMask     *uint32
}

// Source is a Stratum v1 job source: it owns a reconnecting client.run
// connection and bridges its protocol events to scheduler.SourceEvent,
// and job.SourceCommand share submissions back to mining.submit.
type Source struct {
	cfg    PoolConfig
	log    *logrus.Entry
	sched  *scheduler.Scheduler
	handle job.SourceHandle

	commands chan job.SourceCommand

	state                   *protocolState
	expectedHashRate        types.HashRate
	lastSuggestedDifficulty *uint64
	firstShareLogged        bool

	statusMu sync.Mutex
	status   SourceStatus
}

// Status returns a snapshot of the source's current connection and share
// counters, safe to call from any goroutine (the HTTP API's handler pool).
func (s *Source) Status() SourceStatus {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

func (s *Source) updateStatus(fn func(*SourceStatus)) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	fn(&s.status)
}

// NewSource builds a Source and the handle the scheduler will see in
// SourceEvents it publishes. The caller starts the source by calling Run in
// its own goroutine.
func NewSource(cfg PoolConfig, sched *scheduler.Scheduler, log *logrus.Entry) (*Source, job.SourceHandle) {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	s := &Source{
		cfg:      cfg,
		log:      log.WithField("pool", cfg.name()),
		sched:    sched,
		commands: make(chan job.SourceCommand, 32),
		status:   SourceStatus{Name: cfg.name()},
	}
	s.handle = job.NewSourceHandle(cfg.name(), s)
	return s, s.handle
}

// Submit implements job.CommandSender: commands from the scheduler (a found
// share, a hashrate update) are queued for the Run loop. Submission never
// blocks the caller; a full queue drops the command with a log line, same
// policy as the hash engines' nonce-reporting channels.
func (s *Source) Submit(cmd job.SourceCommand) error {
	select {
	case s.commands <- cmd:
		return nil
	default:
		s.log.Warn("command queue full, dropping")
		return fmt.Errorf("stratum: command queue full")
	}
}

// Run blocks until ctx is cancelled. It defers dialing the pool until the
// scheduler reports a positive hashrate (so the handshake's inline
// suggest_difficulty always has a meaningful value), then connects and
// reconnects with jittered exponential backoff across drops.
func (s *Source) Run(ctx context.Context) {
	s.log.Info("waiting for hashrate before connecting")

	for s.expectedHashRate <= 0 {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.commands:
			if cmd.UpdateHashRate != nil {
				s.expectedHashRate = *cmd.UpdateHashRate
			}
			// SubmitShare before a connection exists: nothing to submit to.
		}
	}

	bo := newBackoff(time.Second, 60*time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.connectAndServe(ctx); err != nil {
			s.log.WithError(err).Warn("disconnected from pool")
		}
		if s.state != nil && s.state.extranonce1 != nil {
			// The connection got as far as a successful subscribe.
			bo.reset()
		}
		s.state = nil
		s.updateStatus(func(st *SourceStatus) { st.Connected = false; st.CurrentJobID = "" })
		s.sched.PublishSourceEvent(ctx, scheduler.SourceEvent{Kind: scheduler.ClearJobs, Source: s.handle})

		select {
		case <-ctx.Done():
			return
		case <-time.After(bo.next()):
		}
	}
}

// connectAndServe runs one connection lifetime: dial, handshake, and serve
// client events and scheduler commands until the connection drops.
func (s *Source) connectAndServe(ctx context.Context) error {
	s.log.WithField("hashrate", s.expectedHashRate).Debug("connecting to pool")

	initialDiff, hasInitial := computeSuggestedDifficulty(s.expectedHashRate)
	var initialDiffPtr *uint64
	if hasInitial {
		initialDiffPtr = &initialDiff
		s.lastSuggestedDifficulty = &initialDiff
	}

	events := make(chan clientEvent, 64)
	commands := make(chan clientCommand, 16)
	cl := newClient(s.cfg, s.log, events, commands)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- cl.run(connCtx, initialDiffPtr) }()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-runErr:
			return err

		case ev := <-events:
			s.handleClientEvent(ctx, ev)

		case cmd := <-s.commands:
			switch {
			case cmd.SubmitShare != nil:
				s.submit(*cmd.SubmitShare, commands)
			case cmd.UpdateHashRate != nil:
				s.expectedHashRate = *cmd.UpdateHashRate
				s.maybeSuggestDifficulty(commands)
			}
		}
	}
}

func (s *Source) submit(sh job.Share, commands chan<- clientCommand) {
	params, err := s.shareToSubmitParams(sh)
	if err != nil {
		s.log.WithError(err).Warn("failed to convert share")
		return
	}
	select {
	case commands <- clientCommand{submitShare: &params}:
	default:
		s.log.Warn("client command queue full, dropping share submission")
	}
}

func (s *Source) handleClientEvent(ctx context.Context, ev clientEvent) {
	switch ev.kind {
	case eventVersionRollingConfigured:
		if s.state == nil {
			s.state = &protocolState{versionMask: ev.authorizedMask}
		} else {
			s.state.versionMask = ev.authorizedMask
		}

	case eventSubscribed:
		if s.state == nil {
			s.state = &protocolState{}
		}
		s.state.extranonce1 = ev.extranonce1
		s.state.extranonce2Size = ev.extranonce2Size
		s.updateStatus(func(st *SourceStatus) { st.Connected = true })

	case eventNewJob:
		template, err := s.jobToTemplate(ev.job)
		if err != nil {
			s.log.WithError(err).Warn("failed to convert job")
			return
		}
		kind := scheduler.UpdateJob
		if ev.job.cleanJobs {
			kind = scheduler.ReplaceJob
		}
		s.sched.PublishSourceEvent(ctx, scheduler.SourceEvent{Kind: kind, Source: s.handle, Template: template})
		s.updateStatus(func(st *SourceStatus) { st.CurrentJobID = ev.job.jobID })

	case eventDifficultyChanged:
		d := types.From(ev.difficulty)
		if s.state != nil {
			s.state.shareDifficulty = &d
		}
		s.updateStatus(func(st *SourceStatus) { st.ShareDifficulty = d.AsFloat64() })

	case eventVersionMaskSet:
		mask := ev.versionMask
		if s.state != nil {
			s.state.versionMask = &mask
		}

	case eventShareAccepted:
		if !s.firstShareLogged {
			s.firstShareLogged = true
			s.log.WithField("job_id", ev.shareJobID).Info("first share accepted")
		}
		s.updateStatus(func(st *SourceStatus) { st.SharesAccepted++ })

	case eventShareRejected:
		s.log.WithFields(logrus.Fields{"job_id": ev.shareJobID, "reason": ev.rejectReason}).Warn("share rejected by pool")
		s.updateStatus(func(st *SourceStatus) { st.SharesRejected++ })

	case eventDisconnected:
		s.log.Warn("pool closed the connection")
		s.updateStatus(func(st *SourceStatus) { st.Connected = false })

	case eventError:
		s.log.WithError(ev.err).Warn("pool protocol error")
	}
}

// jobToTemplate converts a parsed mining.notify into the pool-independent
// JobTemplate the scheduler and hash threads operate on.
func (s *Source) jobToTemplate(j jobNotification) (job.JobTemplate, error) {
	if s.state == nil {
		return job.JobTemplate{}, fmt.Errorf("stratum: no protocol state (not subscribed)")
	}

	var mask uint32
	if s.state.versionMask != nil {
		mask = *s.state.versionMask
	}

	shareDifficulty := types.From(1)
	if s.state.shareDifficulty != nil {
		shareDifficulty = *s.state.shareDifficulty
	}

	return job.JobTemplate{
		JobID:         j.jobID,
		PrevBlockHash: j.prevHash,
		Version:       job.VersionTemplate{Base: j.version, Mask: mask},
		NBits:         j.nbits,
		NTime:         j.ntime,
		Target:        shareDifficulty,
		MerkleRoot: job.ComputedMerkleRootKind(job.ComputedMerkleRoot{
			Coinbase1:        j.coinbase1,
			Extranonce1:      s.state.extranonce1,
			Extranonce2Range: types.FullRange(s.state.extranonce2Size),
			Coinbase2:        j.coinbase2,
			MerkleBranches:   j.branches,
		}),
	}, nil
}

// shareToSubmitParams converts a found Share into the fully-resolved
// mining.submit params, defaulting extranonce2 to zeros and omitting
// version_bits when the pool never authorized version rolling.
func (s *Source) shareToSubmitParams(sh job.Share) (submitParams, error) {
	if s.state == nil {
		return submitParams{}, fmt.Errorf("stratum: no protocol state (not subscribed)")
	}

	en2 := make([]byte, s.state.extranonce2Size)
	if sh.Extranonce2 != nil {
		en2 = sh.Extranonce2.Bytes()
	}

	var versionBits *uint32
	if s.state.versionMask != nil {
		rolled := sh.Version & *s.state.versionMask
		versionBits = &rolled
	}

	return submitParams{
		username:    s.cfg.Username,
		jobID:       sh.JobID,
		extranonce2: en2,
		ntime:       sh.NTime,
		nonce:       sh.Nonce,
		versionBits: versionBits,
	}, nil
}

// computeSuggestedDifficulty targets suggestedShareRate at the given
// hashrate, flooring at difficulty 1. ok is false for a non-positive
// hashrate, meaning there's nothing worth suggesting yet.
func computeSuggestedDifficulty(hashrate types.HashRate) (uint64, bool) {
	if hashrate <= 0 {
		return 0, false
	}
	target := types.TargetForShareRate(suggestedShareRate, hashrate)
	diff := types.FromTarget(target).AsUint64Saturating()
	if diff < 1 {
		diff = 1
	}
	return diff, true
}

// maybeSuggestDifficulty re-suggests only when the computed difficulty
// moved materially (>=2x or <=0.5x) from the last value sent.
func (s *Source) maybeSuggestDifficulty(commands chan<- clientCommand) {
	newDiff, ok := computeSuggestedDifficulty(s.expectedHashRate)
	if !ok {
		return
	}

	dominated := true
	if s.lastSuggestedDifficulty != nil {
		ratio := float64(newDiff) / float64(*s.lastSuggestedDifficulty)
		dominated = ratio >= materialChangeFactor || ratio <= 1/materialChangeFactor
	}
	if !dominated {
		return
	}

	s.lastSuggestedDifficulty = &newDiff
	select {
	case commands <- clientCommand{suggestDifficulty: &newDiff}:
	default:
	}
}
