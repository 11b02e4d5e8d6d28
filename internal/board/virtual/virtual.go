// Package virtual implements the CPU-miner board factory: a pool of
// goroutines that fully compute SHA-256d against real job headers instead of
// delegating to ASIC hardware. Host CPU load and temperature sensors stand
// in for the fan/thermal telemetry a physical board would report.
package virtual

import (
	"context"
	"crypto/sha256"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/sirupsen/logrus"

	"github.com/mujina-miner/mujina/internal/board"
	"github.com/mujina-miner/mujina/internal/job"
	"github.com/mujina-miner/mujina/internal/thermal"
	"github.com/mujina-miner/mujina/internal/thread"
	"github.com/mujina-miner/mujina/internal/types"
)

const virtualTag = "cpu"

func init() {
	board.Global().RegisterVirtual(board.VirtualBoardDescriptor{
		Name:    "virtual-cpu",
		Tag:     virtualTag,
		Factory: Open,
	})
}

// Open implements board.VirtualFactory: it starts one search goroutine per
// host CPU and a sensor-polling loop feeding the board's thermal.Controller
// from host.SensorsTemperatures.
func Open(ctx context.Context, tag string) (*board.Board, *board.BoardRegistration, error) {
	log := logrus.WithField("board", "virtual-cpu")

	e := newEngine(log)

	ctrl := thermal.NewController(thermal.DefaultConfig())
	initial := board.BoardState{
		Name:   "virtual-cpu",
		Serial: tag,
		Model:  "CPU SHA-256d miner",
	}

	boardCtx, cancel := context.WithCancel(ctx)
	b, reg := board.NewBoard(tag, "virtual-cpu", initial, ctrl, func(context.Context) {
		cancel()
		e.Shutdown()
	})

	removal := make(chan thread.RemovalSignal, 1)
	removal <- thread.Running
	ht := thread.New(e, removal, 2*time.Second)
	b.AttachThreads([]*thread.HashThread{ht})

	go e.runSensors(boardCtx, b)

	return b, reg, nil
}

// searchJob is the immutable description of one worker's assignment: a
// fixed header prefix (everything but nonce) plus the target it must beat.
// en2 is the extranonce2 value baked into the merkle root for computed-root
// jobs, reported back alongside any nonce found against this prefix; it is
// nil for fixed-root jobs.
type searchJob struct {
	jobID   string
	prefix  [76]byte // version(4) + prevhash(32) + merkleroot(32) + ntime(4) + nbits(4), little-endian
	ntime   uint32
	version uint32
	target  types.U256
	en2     *types.Extranonce2
}

// fullNonceSpace is the per-extranonce2 search space a worker's 32-bit
// nonce counter covers before it wraps back to its starting point.
const fullNonceSpace = uint64(1) << 32

// depletionWarningFraction is the fraction of fullNonceSpace consumed
// across all workers before a RangeDepletionWarning fires for the current
// extranonce2 value.
const depletionWarningFraction = 0.9

type engine struct {
	log *logrus.Entry

	mu      sync.Mutex
	current *searchJob
	gen     uint64 // bumped on every AssignWork/GoIdle to retire stale workers

	rangeMu          sync.Mutex
	computed         *job.ComputedMerkleRoot // non-nil while current task has a computed root
	rng              types.Extranonce2Range
	attemptsSinceEn2 uint64
	en2Consumed      uint64 // extranonce2 values consumed for the current task
	depletionWarned  bool

	nonces      chan thread.EngineNonce
	rangeEvents chan thread.RangeEvent

	attempts   atomic.Uint64
	lastMark   time.Time
	markMu     sync.Mutex
	hashrateMu sync.Mutex
	hashrate   float64

	shutdownOnce sync.Once
	done         chan struct{}
}

func newEngine(log *logrus.Entry) *engine {
	e := &engine{
		log:         log,
		nonces:      make(chan thread.EngineNonce, 32),
		rangeEvents: make(chan thread.RangeEvent, 4),
		lastMark:    time.Now(),
		done:        make(chan struct{}),
	}
	threads := runtime.NumCPU()
	if threads < 1 {
		threads = 1
	}
	for i := 0; i < threads; i++ {
		go e.worker(i)
	}
	go e.hashrateLoop()
	return e
}

func (e *engine) AssignWork(task job.HashTask) {
	var root [32]byte
	var en2 *types.Extranonce2

	if c, ok := task.Template.MerkleRoot.Computed(); ok {
		rng := task.Range
		next, ok := rng.Next()
		if !ok {
			e.signalExhausted(0)
			e.GoIdle()
			return
		}
		root = c.Root(next)
		v := next
		en2 = &v

		e.rangeMu.Lock()
		e.computed = &c
		e.rng = rng
		e.attemptsSinceEn2 = 0
		e.en2Consumed = 1
		e.depletionWarned = false
		e.rangeMu.Unlock()
	} else if h, ok := task.Template.MerkleRoot.Fixed(); ok {
		root = h
		e.rangeMu.Lock()
		e.computed = nil
		e.rangeMu.Unlock()
	}

	sj := &searchJob{
		jobID:   task.Template.JobID,
		ntime:   task.Template.NTime,
		version: task.Template.Version.Base,
		target:  task.Template.Target.ToTarget(),
		en2:     en2,
	}
	putLE32(sj.prefix[0:4], sj.version)
	copy(sj.prefix[4:36], reverse32(task.Template.PrevBlockHash))
	copy(sj.prefix[36:68], reverse32(root))
	putLE32(sj.prefix[68:72], sj.ntime)
	putLE32(sj.prefix[72:76], task.Template.NBits)

	e.mu.Lock()
	e.current = sj
	e.gen++
	e.mu.Unlock()
}

func (e *engine) GoIdle() {
	e.mu.Lock()
	e.current = nil
	e.gen++
	e.mu.Unlock()

	e.rangeMu.Lock()
	e.computed = nil
	e.rangeMu.Unlock()
}

func (e *engine) Nonces() <-chan thread.EngineNonce { return e.nonces }

func (e *engine) RangeEvents() <-chan thread.RangeEvent { return e.rangeEvents }

// checkRangeProgress accounts attemptsThisTick against the current
// extranonce2 value's nonce space, firing a depletion warning as it nears
// full coverage and rotating to the task's next extranonce2 value (or
// signalling exhaustion) once it's fully covered.
func (e *engine) checkRangeProgress(attemptsThisTick uint64, hashrate float64) {
	e.rangeMu.Lock()
	if e.computed == nil {
		e.rangeMu.Unlock()
		return
	}
	e.attemptsSinceEn2 += attemptsThisTick
	consumed := e.attemptsSinceEn2
	warned := e.depletionWarned
	e.rangeMu.Unlock()

	if !warned && float64(consumed) >= depletionWarningFraction*float64(fullNonceSpace) {
		var remainingMS int64
		if hashrate > 0 && fullNonceSpace > consumed {
			remainingMS = int64(float64(fullNonceSpace-consumed) / hashrate * 1000)
		}
		e.rangeMu.Lock()
		e.depletionWarned = true
		e.rangeMu.Unlock()
		e.sendRangeEvent(thread.RangeEvent{Kind: thread.RangeDepletionWarning, EstimatedRemainingMS: remainingMS})
	}

	if consumed >= fullNonceSpace {
		e.rotateExtranonce2()
	}
}

// rotateExtranonce2 advances the current task's extranonce2 range to its
// next value, rebuilding the header's merkle root in place, or signals
// RangeExhausted and goes idle once the range has no value left.
func (e *engine) rotateExtranonce2() {
	e.rangeMu.Lock()
	computed := e.computed
	rng := e.rng
	next, ok := rng.Next()
	if ok {
		e.rng = rng
		e.en2Consumed++
		e.attemptsSinceEn2 = 0
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
	if e.current != nil {
		sj := *e.current
		sj.en2 = &v
		copy(sj.prefix[36:68], reverse32(root))
		e.current = &sj
		e.gen++
	}
	e.mu.Unlock()
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

func (e *engine) HashRateEstimate() float64 {
	e.hashrateMu.Lock()
	defer e.hashrateMu.Unlock()
	return e.hashrate
}

func (e *engine) Shutdown() {
	e.shutdownOnce.Do(func() { close(e.done) })
}

// worker repeatedly takes a snapshot of the current job and searches a
// private nonce stripe (offset by worker id, stepping by the worker count is
// unnecessary since each worker free-runs its own counter starting from a
// distinct base) until the job is replaced or the engine is shut down.
func (e *engine) worker(id int) {
	var local uint32 = uint32(id) * 0x10000000
	var header [80]byte
	attemptBatch := uint64(0)

	for {
		select {
		case <-e.done:
			return
		default:
		}

		e.mu.Lock()
		sj := e.current
		gen := e.gen
		e.mu.Unlock()
		if sj == nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		copy(header[:76], sj.prefix[:])
		putLE32(header[76:80], local)
		digest := sha256d(header[:])
		attemptBatch++
		local++

		if attemptBatch >= 1<<12 {
			e.attempts.Add(attemptBatch)
			attemptBatch = 0
		}

		if types.U256FromBytesLE(digest[:]).Cmp(sj.target) <= 0 {
			select {
			case e.nonces <- thread.EngineNonce{JobID: sj.jobID, Nonce: local - 1, NTime: sj.ntime, Version: sj.version, Extranonce2: sj.en2}:
			default:
				e.log.Warn("nonce channel full, dropping report")
			}
		}

		// Reload work if the scheduler replaced it mid-stripe.
		e.mu.Lock()
		if e.gen != gen {
			e.mu.Unlock()
			continue
		}
		e.mu.Unlock()
	}
}

// hashrateLoop converts the attempts counter into a rolling hashes/sec
// estimate, mirroring the batched-mark idiom of the hardware engines.
func (e *engine) hashrateLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.markMu.Lock()
			elapsed := time.Since(e.lastMark).Seconds()
			e.lastMark = time.Now()
			e.markMu.Unlock()
			if elapsed <= 0 {
				continue
			}
			n := e.attempts.Swap(0)
			hashrate := float64(n) / elapsed
			e.hashrateMu.Lock()
			e.hashrate = hashrate
			e.hashrateMu.Unlock()

			e.checkRangeProgress(n, hashrate)
		}
	}
}

// runSensors polls host CPU load and (where available) sensor temperatures,
// feeding the board's thermal.Controller and publishing the resulting fan
// duty / temperature sample as board state.
func (e *engine) runSensors(ctx context.Context, b *board.Board) {
	ticker := time.NewTicker(b.Thermal().Config().Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case now := <-ticker.C:
			temp := readTemperature()
			res := b.Thermal().Observe(temp, now)
			if !res.Accepted {
				continue
			}

			load := readLoadPercent()
			b.PublishState(board.BoardState{
				Name:   "virtual-cpu",
				Serial: b.ID(),
				Model:  "CPU SHA-256d miner",
				Fans:   []board.FanStatus{{Name: "cpu-load", DutyPct: int(load)}},
				Sensors: []board.TemperatureSample{{Name: "host", Value: temp}},
			})
		}
	}
}

// readTemperature returns the hottest host sensor reading, falling back to
// a nominal idle temperature when the platform exposes none (common in
// containers and on some CI runners).
func readTemperature() float64 {
	sensors, err := host.SensorsTemperatures()
	if err != nil || len(sensors) == 0 {
		return 45
	}
	max := sensors[0].Temperature
	for _, s := range sensors[1:] {
		if s.Temperature > max {
			max = s.Temperature
		}
	}
	return max
}

func readLoadPercent() float64 {
	pcts, err := cpu.Percent(0, false)
	if err != nil || len(pcts) == 0 {
		return 0
	}
	return pcts[0]
}

func putLE32(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}

func reverse32(h [32]byte) [32]byte {
	var out [32]byte
	for i := 0; i < 32; i++ {
		out[i] = h[31-i]
	}
	return out
}

func sha256d(data []byte) [32]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}
