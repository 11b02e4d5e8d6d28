// Package bitaxe implements the physical BM13xx board factory: it opens the
// board's control/chip-data serial channel, performs the GPIO reset pulse,
// and drives the wire codec to assign work and collect nonces.
package bitaxe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/daedaluz/goserial"
	"github.com/sirupsen/logrus"

	"github.com/mujina-miner/mujina/internal/bm13xx"
	"github.com/mujina-miner/mujina/internal/board"
	"github.com/mujina-miner/mujina/internal/job"
	"github.com/mujina-miner/mujina/internal/thermal"
	"github.com/mujina-miner/mujina/internal/thread"
	"github.com/mujina-miner/mujina/internal/types"
)

const (
	controlBaud   = 115200
	resetLowHold  = 120 * time.Millisecond
	resetHighHold = 120 * time.Millisecond

	usbVendorID  = 0x0403 // FTDI, the USB-serial bridge on Bitaxe-class boards
	usbProductID = 0x6015

	// nominalHashrate is the expected output of a single BM13xx chain, used
	// as an estimate where the wire protocol itself carries no hashrate
	// telemetry (the chip reports nonces found, not attempts made).
	nominalHashrate = 1e12 // 1 TH/s

	// rangeRotationInterval is how long one extranonce2 value's job frame
	// is left with the chip before the host assumes its nonce space is
	// searched and rolls the next extranonce2 value in, mirroring how a
	// pool-facing host paces re-sends independently of any on-chip attempt
	// counter (the wire protocol exposes none).
	rangeRotationInterval = 2 * time.Second

	depletionWarningFraction = 0.9
)

func init() {
	board.Global().Register(board.BoardDescriptor{
		Name: "bitaxe",
		Match: board.USBMatch{
			VendorID:  usbVendorID,
			ProductID: usbProductID,
		},
		Factory: Open,
	})
}

// Open implements board.Factory: it opens the serial port at the connected
// device's path, resets the chip chain, and starts the monitor loop.
func Open(ctx context.Context, info board.UsbDeviceInfo) (*board.Board, *board.BoardRegistration, error) {
	opts := goserial.NewOptions().SetReadTimeout(time.Second)
	port, err := goserial.Open(info.Path, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("bitaxe: open serial port %s: %w", info.Path, err)
	}

	if err := configureControlBaud(port); err != nil {
		port.Close()
		return nil, nil, fmt.Errorf("bitaxe: configure baud: %w", err)
	}

	if err := resetChain(port); err != nil {
		port.Close()
		return nil, nil, fmt.Errorf("bitaxe: reset: %w", err)
	}

	log := logrus.WithField("board", info.Serial)
	engine := newEngine(port, log)

	id := info.Serial
	if id == "" {
		id = "unknown"
	}

	ctrl := thermal.NewController(thermal.DefaultConfig())
	initial := board.BoardState{
		Name:   "bitaxe",
		Serial: id,
		Model:  "bitaxe (BM13xx)",
	}

	boardCtx, cancel := context.WithCancel(ctx)
	b, reg := board.NewBoard(id, "bitaxe", initial, ctrl, func(context.Context) {
		cancel()
		engine.Shutdown()
	})

	removal := make(chan thread.RemovalSignal, 1)
	removal <- thread.Running
	ht := thread.New(engine, removal, 2*time.Second)
	b.AttachThreads([]*thread.HashThread{ht})

	go engine.run(boardCtx)

	return b, reg, nil
}

// configureControlBaud sets the control channel to 115200 8N1, the bit-exact
// rate the BM13xx control protocol assumes before any chip-data baud
// negotiation via the MiscControl register.
func configureControlBaud(port *goserial.Port) error {
	attrs, err := port.GetAttr()
	if err != nil {
		return err
	}
	attrs.MakeRaw()
	attrs.SetSpeed(goserial.B115200)
	return port.SetAttr(goserial.TCSANOW, attrs)
}

func resetChain(port *goserial.Port) error {
	if err := port.EnableModemLines(goserial.TIOCM_DTR); err != nil {
		return err
	}
	time.Sleep(resetLowHold)
	if err := port.DisableModemLines(goserial.TIOCM_DTR); err != nil {
		return err
	}
	time.Sleep(resetHighHold)
	return nil
}

// pendingJob correlates a wire work-id with the pool job and, for a
// computed-root job, the extranonce2 value baked into the frame's merkle
// root, so a later nonce response can be reported against both.
type pendingJob struct {
	jobID   string
	ntime   uint32
	version uint32
	en2     *types.Extranonce2
}

// engine drives one chip chain over its serial channel: encoding work
// frames, decoding nonce responses, and correlating the wire's single-byte
// work id back to the pool's string job id.
type engine struct {
	port *goserial.Port
	log  *logrus.Entry

	mu         sync.Mutex
	nextWorkID byte
	pending    map[byte]pendingJob // recent work-id -> pool job correlation

	nonces      chan thread.EngineNonce
	rangeEvents chan thread.RangeEvent

	rangeMu         sync.Mutex
	computed        *job.ComputedMerkleRoot
	rng             types.Extranonce2Range
	assignedAt      time.Time
	en2Consumed     uint64
	depletionWarned bool
	currentJobID    string
	currentNBits    uint32
	currentNTime    uint32
	currentPrevHash [32]byte
	currentVersion  uint32

	hashrateMu sync.Mutex
	hashrate   float64
}

func newEngine(port *goserial.Port, log *logrus.Entry) *engine {
	return &engine{
		port:        port,
		log:         log,
		pending:     make(map[byte]pendingJob),
		nonces:      make(chan thread.EngineNonce, 32),
		rangeEvents: make(chan thread.RangeEvent, 4),
		hashrate:    nominalHashrate,
	}
}

func (e *engine) AssignWork(task job.HashTask) {
	var merkleRoot [32]byte
	var en2 *types.Extranonce2

	if c, ok := task.Template.MerkleRoot.Computed(); ok {
		rng := task.Range
		next, ok := rng.Next()
		if !ok {
			e.signalExhausted(0)
			e.GoIdle()
			return
		}
		merkleRoot = c.Root(next)
		v := next
		en2 = &v

		e.rangeMu.Lock()
		e.computed = &c
		e.rng = rng
		e.assignedAt = time.Now()
		e.en2Consumed = 1
		e.depletionWarned = false
		e.rangeMu.Unlock()
	} else if h, ok := task.Template.MerkleRoot.Fixed(); ok {
		merkleRoot = h
		e.rangeMu.Lock()
		e.computed = nil
		e.rangeMu.Unlock()
	}

	e.rangeMu.Lock()
	e.currentJobID = task.Template.JobID
	e.currentNBits = task.Template.NBits
	e.currentNTime = task.Template.NTime
	e.currentPrevHash = task.Template.PrevBlockHash
	e.currentVersion = task.Template.Version.Base
	e.rangeMu.Unlock()

	e.mu.Lock()
	workID := e.nextWorkID
	e.nextWorkID++
	e.pending[workID] = pendingJob{
		jobID:   task.Template.JobID,
		ntime:   task.Template.NTime,
		version: task.Template.Version.Base,
		en2:     en2,
	}
	e.mu.Unlock()

	frame := bm13xx.EncodeJobFull(bm13xx.JobFull{
		JobID:         workID,
		NumMidstates:  1,
		StartingNonce: 0,
		NBits:         task.Template.NBits,
		NTime:         task.Template.NTime,
		MerkleRoot:    merkleRoot,
		PrevBlockHash: task.Template.PrevBlockHash,
		Version:       task.Template.Version.Base,
	})
	if _, err := e.port.Write(frame); err != nil {
		e.log.WithError(err).Warn("failed to write work frame")
	}
}

func (e *engine) GoIdle() {
	frame, err := bm13xx.EncodeCommand(bm13xx.Command{Kind: bm13xx.CmdChainInactive, Broadcast: true})
	if err != nil {
		return
	}
	if _, err := e.port.Write(frame); err != nil {
		e.log.WithError(err).Warn("failed to write chain-inactive command")
	}

	e.rangeMu.Lock()
	e.computed = nil
	e.rangeMu.Unlock()
}

func (e *engine) Nonces() <-chan thread.EngineNonce { return e.nonces }

func (e *engine) RangeEvents() <-chan thread.RangeEvent { return e.rangeEvents }

func (e *engine) HashRateEstimate() float64 {
	e.hashrateMu.Lock()
	defer e.hashrateMu.Unlock()
	return e.hashrate
}

func (e *engine) Shutdown() {
	e.port.Close()
}

// checkRangeProgress watches elapsed wall-clock time against
// rangeRotationInterval, firing a depletion warning as the current
// extranonce2 value's assumed job lifetime nears its end and rotating to
// the task's next extranonce2 value (or signalling exhaustion) once it's
// elapsed.
func (e *engine) checkRangeProgress() {
	e.rangeMu.Lock()
	if e.computed == nil {
		e.rangeMu.Unlock()
		return
	}
	elapsed := time.Since(e.assignedAt)
	warned := e.depletionWarned
	e.rangeMu.Unlock()

	threshold := time.Duration(depletionWarningFraction * float64(rangeRotationInterval))
	if !warned && elapsed >= threshold {
		remaining := rangeRotationInterval - elapsed
		if remaining < 0 {
			remaining = 0
		}
		e.rangeMu.Lock()
		e.depletionWarned = true
		e.rangeMu.Unlock()
		e.sendRangeEvent(thread.RangeEvent{Kind: thread.RangeDepletionWarning, EstimatedRemainingMS: remaining.Milliseconds()})
	}

	if elapsed >= rangeRotationInterval {
		e.rotateExtranonce2()
	}
}

// rotateExtranonce2 advances the assigned task's extranonce2 range,
// pushing a fresh work frame carrying the new merkle root, or signals
// RangeExhausted and goes idle once the range has no value left.
func (e *engine) rotateExtranonce2() {
	e.rangeMu.Lock()
	computed := e.computed
	rng := e.rng
	next, ok := rng.Next()
	jobID, nbits, ntime, prevHash, version := e.currentJobID, e.currentNBits, e.currentNTime, e.currentPrevHash, e.currentVersion
	if ok {
		e.rng = rng
		e.en2Consumed++
		e.assignedAt = time.Now()
		e.depletionWarned = false
	}
	searched := e.en2Consumed
	e.rangeMu.Unlock()

	if computed == nil {
		return
	}
	if !ok {
		e.signalExhausted(searched)
		e.GoIdle()
		return
	}

	root := computed.Root(next)
	v := next

	e.mu.Lock()
	workID := e.nextWorkID
	e.nextWorkID++
	e.pending[workID] = pendingJob{jobID: jobID, ntime: ntime, version: version, en2: &v}
	e.mu.Unlock()

	frame := bm13xx.EncodeJobFull(bm13xx.JobFull{
		JobID:         workID,
		NumMidstates:  1,
		StartingNonce: 0,
		NBits:         nbits,
		NTime:         ntime,
		MerkleRoot:    root,
		PrevBlockHash: prevHash,
		Version:       version,
	})
	if _, err := e.port.Write(frame); err != nil {
		e.log.WithError(err).Warn("failed to write rotated work frame")
	}
}

func (e *engine) signalExhausted(searched uint64) {
	e.sendRangeEvent(thread.RangeEvent{Kind: thread.RangeExhausted, Extranonce2Searched: searched})
}

func (e *engine) sendRangeEvent(ev thread.RangeEvent) {
	select {
	case e.rangeEvents <- ev:
	default:
		e.log.Warn("range event channel full, dropping")
	}
}

// run reads the chip-data channel, decoding response frames and translating
// nonce reports into EngineNonce events until ctx is cancelled.
func (e *engine) run(ctx context.Context) {
	dec := bm13xx.NewDecoder(bm13xx.DirectionResponse)
	buf := make([]byte, 256)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := e.port.ReadTimeout(buf, time.Second)
		e.checkRangeProgress()
		if err != nil {
			continue
		}
		if n == 0 {
			continue
		}

		frames, errs := dec.Feed(buf[:n])
		for _, perr := range errs {
			e.log.WithError(perr).Debug("response frame resynchronised")
		}
		for _, f := range frames {
			if f.Response == nil || f.Response.Kind != bm13xx.RespNonce {
				continue
			}
			e.deliverNonce(*f.Response)
		}
	}
}

func (e *engine) deliverNonce(resp bm13xx.Response) {
	e.mu.Lock()
	p, ok := e.pending[resp.WorkID]
	e.mu.Unlock()
	if !ok {
		return
	}

	select {
	case e.nonces <- thread.EngineNonce{JobID: p.jobID, Nonce: resp.Nonce, NTime: p.ntime, Version: p.version, Extranonce2: p.en2}:
	default:
		e.log.Warn("nonce channel full, dropping report")
	}
}
